package scheduler

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/schedcu/core/internal/kv"
)

// Distributed lock defaults. The TTL guarantees release on crash.
const (
	DefaultLockTTL        = 300 * time.Second
	DefaultLockRetryDelay = 500 * time.Millisecond
	DefaultLockMaxWait    = 30 * time.Second
)

// ErrLockNotAcquired is returned when the lock stays contended past
// max wait.
var ErrLockNotAcquired = errors.New("scheduler: lock not acquired within max wait")

// lockManager serializes task runs across processes through the KV
// store's atomic set-if-absent.
type lockManager struct {
	kv         kv.Store
	ttl        time.Duration
	retryDelay time.Duration
	maxWait    time.Duration
}

func newLockManager(store kv.Store) *lockManager {
	return &lockManager{
		kv:         store,
		ttl:        DefaultLockTTL,
		retryDelay: DefaultLockRetryDelay,
		maxWait:    DefaultLockMaxWait,
	}
}

func lockKey(taskID string) string {
	return "lock:task:" + taskID
}

// Acquire takes the task's named lock, retrying on contention until
// max wait. The returned lock id is required for release; only the
// holder of that id can release the lock.
func (m *lockManager) Acquire(ctx context.Context, taskID string, maxWait time.Duration) (string, error) {
	raw := make([]byte, 16)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generating lock id: %w", err)
	}
	lockID := hex.EncodeToString(raw)

	if maxWait <= 0 {
		maxWait = m.maxWait
	}
	deadline := time.Now().Add(maxWait)

	for {
		ok, err := m.kv.SetNX(ctx, lockKey(taskID), lockID, m.ttl)
		if err != nil {
			return "", fmt.Errorf("acquiring lock for task %s: %w", taskID, err)
		}
		if ok {
			return lockID, nil
		}
		if time.Now().Add(m.retryDelay).After(deadline) {
			return "", fmt.Errorf("task %s: %w", taskID, ErrLockNotAcquired)
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(m.retryDelay):
		}
	}
}

// Release frees the lock only if the caller still owns it. Releasing a
// lock that expired and was re-acquired elsewhere is a silent no-op.
func (m *lockManager) Release(ctx context.Context, taskID, lockID string) error {
	_, err := m.kv.CompareAndDelete(ctx, lockKey(taskID), lockID)
	if err != nil {
		return fmt.Errorf("releasing lock for task %s: %w", taskID, err)
	}
	return nil
}
