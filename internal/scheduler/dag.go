package scheduler

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrDependencyCycle is returned when registering a task would make the
// dependency graph cyclic. The registration is rolled back.
var ErrDependencyCycle = errors.New("scheduler: dependency cycle")

// dag tracks task-to-task dependency edges and detects cycles at
// registration time.
type dag struct {
	mu    sync.Mutex
	edges map[string][]string // task -> tasks it depends on
}

func newDAG() *dag {
	return &dag{edges: make(map[string][]string)}
}

// Add registers a task with its dependencies. Depended-on tasks need
// not be registered yet. If the new edges close a cycle the graph is
// restored and ErrDependencyCycle returned.
func (d *dag) Add(taskID string, dependsOn []string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	prev, existed := d.edges[taskID]
	d.edges[taskID] = append([]string(nil), dependsOn...)

	if cycle := d.findCycleLocked(); cycle != nil {
		if existed {
			d.edges[taskID] = prev
		} else {
			delete(d.edges, taskID)
		}
		return fmt.Errorf("%w: %v", ErrDependencyCycle, cycle)
	}
	return nil
}

// Remove drops a task node. Edges pointing at it remain and simply
// never satisfy until the task returns.
func (d *dag) Remove(taskID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.edges, taskID)
}

// Dependencies returns the registered dependency ids of a task.
func (d *dag) Dependencies(taskID string) []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.edges[taskID]...)
}

// TopoOrder returns every registered task in dependency-first order,
// ties broken by task id for determinism.
func (d *dag) TopoOrder() []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	ids := make([]string, 0, len(d.edges))
	for id := range d.edges {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	visited := make(map[string]bool, len(ids))
	var order []string
	var visit func(id string)
	visit = func(id string) {
		if visited[id] {
			return
		}
		visited[id] = true
		deps := append([]string(nil), d.edges[id]...)
		sort.Strings(deps)
		for _, dep := range deps {
			if _, known := d.edges[dep]; known {
				visit(dep)
			}
		}
		order = append(order, id)
	}
	for _, id := range ids {
		visit(id)
	}
	return order
}

// findCycleLocked runs DFS with recursion-stack detection and returns
// one cycle path, or nil when the graph is acyclic.
func (d *dag) findCycleLocked() []string {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(d.edges))
	var stack []string
	var cycle []string

	var visit func(id string) bool
	visit = func(id string) bool {
		color[id] = gray
		stack = append(stack, id)
		for _, dep := range d.edges[id] {
			switch color[dep] {
			case gray:
				// Close the loop for the error message.
				for i, s := range stack {
					if s == dep {
						cycle = append(append([]string(nil), stack[i:]...), dep)
						break
					}
				}
				return true
			case white:
				if visit(dep) {
					return true
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[id] = black
		return false
	}

	for id := range d.edges {
		if color[id] == white && visit(id) {
			return cycle
		}
	}
	return nil
}
