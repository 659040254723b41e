// Package kv defines the key-value store interface used for
// cross-process coordination: distributed locks, the faceted-search
// cache, and counters. The only primitive the core relies on for
// correctness is atomic set-if-absent with TTL.
package kv

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a key does not exist.
var ErrNotFound = errors.New("key not found")

// Store is the coordination interface. Implementations must make SetNX
// and CompareAndDelete atomic with respect to concurrent callers.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// SetNX sets key to value only if the key is absent, with the given
	// TTL. Returns true if the key was set.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	// CompareAndDelete deletes key only if its current value equals
	// expect. Returns true if the key was deleted.
	CompareAndDelete(ctx context.Context, key, expect string) (bool, error)
	Delete(ctx context.Context, key string) error
	// Incr atomically increments a counter key and returns the new value.
	Incr(ctx context.Context, key string) (int64, error)
}
