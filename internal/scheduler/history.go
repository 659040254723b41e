package scheduler

import (
	"sync"

	"github.com/schedcu/core/internal/types"
)

// historyCapacity bounds the retained execution history per process.
const historyCapacity = 1000

// history is a ring of the most recent terminal executions, consulted
// for dependency satisfaction.
type history struct {
	mu      sync.RWMutex
	entries []*types.TaskExecution
	next    int
	full    bool
}

func newHistory() *history {
	return &history{entries: make([]*types.TaskExecution, historyCapacity)}
}

// Record appends a terminal execution, evicting the oldest when full.
func (h *history) Record(exec *types.TaskExecution) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries[h.next] = exec
	h.next = (h.next + 1) % len(h.entries)
	if h.next == 0 {
		h.full = true
	}
}

// Satisfied reports whether a dependency edge is met by any retained
// execution of the depended-on task.
func (h *history) Satisfied(dep types.TaskDependency) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, e := range h.entries {
		if e == nil || e.TaskID != dep.DependsOnTaskID {
			continue
		}
		switch dep.Kind {
		case types.DependencySuccess:
			if e.Status == types.TaskCompleted {
				return true
			}
		case types.DependencyFailure:
			if e.Status == types.TaskFailed {
				return true
			}
		default: // completion
			if e.Status == types.TaskCompleted || e.Status == types.TaskFailed {
				return true
			}
		}
	}
	return false
}

// Find returns a copy of the retained execution with the given id.
func (h *history) Find(executionID string) (*types.TaskExecution, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, e := range h.entries {
		if e != nil && e.ExecutionID == executionID {
			cp := *e
			return &cp, true
		}
	}
	return nil, false
}

// Len returns the number of retained executions.
func (h *history) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.full {
		return len(h.entries)
	}
	return h.next
}

// Recent returns up to n most recent executions, newest first.
func (h *history) Recent(n int) []*types.TaskExecution {
	h.mu.RLock()
	defer h.mu.RUnlock()
	total := h.next
	if h.full {
		total = len(h.entries)
	}
	if n > total {
		n = total
	}
	out := make([]*types.TaskExecution, 0, n)
	for i := 1; i <= n; i++ {
		idx := (h.next - i + len(h.entries)) % len(h.entries)
		out = append(out, h.entries[idx])
	}
	return out
}
