package scheduler

import (
	"errors"
	"testing"
)

func TestDAGCycleDetectionAndRollback(t *testing.T) {
	d := newDAG()
	if err := d.Add("a", nil); err != nil {
		t.Fatal(err)
	}
	if err := d.Add("b", []string{"a"}); err != nil {
		t.Fatal(err)
	}
	if err := d.Add("c", []string{"b"}); err != nil {
		t.Fatal(err)
	}

	// a -> c would close a cycle a <- b <- c <- a.
	err := d.Add("a", []string{"c"})
	if !errors.Is(err, ErrDependencyCycle) {
		t.Fatalf("err = %v, want ErrDependencyCycle", err)
	}

	// Rollback: a's original (empty) dependency list survives.
	if deps := d.Dependencies("a"); len(deps) != 0 {
		t.Fatalf("a's dependencies after rollback = %v, want none", deps)
	}
}

func TestDAGSelfCycle(t *testing.T) {
	d := newDAG()
	err := d.Add("a", []string{"a"})
	if !errors.Is(err, ErrDependencyCycle) {
		t.Fatalf("err = %v, want ErrDependencyCycle", err)
	}
	if deps := d.Dependencies("a"); deps != nil {
		t.Fatalf("failed registration should not persist, got %v", deps)
	}
}

func TestDAGTopoOrder(t *testing.T) {
	d := newDAG()
	for _, reg := range []struct {
		id   string
		deps []string
	}{
		{"report", []string{"validate", "import"}},
		{"validate", []string{"import"}},
		{"import", nil},
	} {
		if err := d.Add(reg.id, reg.deps); err != nil {
			t.Fatal(err)
		}
	}

	order := d.TopoOrder()
	pos := make(map[string]int, len(order))
	for i, id := range order {
		pos[id] = i
	}
	if pos["import"] > pos["validate"] || pos["validate"] > pos["report"] {
		t.Fatalf("topological order violated: %v", order)
	}
}

func TestDAGUnknownDependencyAllowed(t *testing.T) {
	d := newDAG()
	if err := d.Add("b", []string{"not-registered-yet"}); err != nil {
		t.Fatalf("forward dependency should register cleanly, got %v", err)
	}
}
