package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrUnknownFunction is returned when a task's function path has no
// registered implementation at execution time.
var ErrUnknownFunction = errors.New("scheduler: unknown function path")

// TaskFunc is the signature every registered task function implements.
// Long-running functions must honor ctx cancellation; there is no
// forced termination.
type TaskFunc func(ctx context.Context, args []any, kwargs map[string]any) (any, error)

// Registry maps function paths to implementations. Resolution happens
// at execution time, never at registration, so tasks may be registered
// before their functions.
type Registry struct {
	mu    sync.RWMutex
	funcs map[string]TaskFunc
}

// NewRegistry returns an empty function registry.
func NewRegistry() *Registry {
	return &Registry{funcs: make(map[string]TaskFunc)}
}

// Register binds a function path. Re-registering replaces the previous
// binding.
func (r *Registry) Register(path string, fn TaskFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.funcs[path] = fn
}

// Resolve looks up a function path.
func (r *Registry) Resolve(path string) (TaskFunc, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.funcs[path]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFunction, path)
	}
	return fn, nil
}
