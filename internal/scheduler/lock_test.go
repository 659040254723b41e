package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/schedcu/core/internal/kv"
)

func TestLockMutualExclusion(t *testing.T) {
	ctx := context.Background()
	m := newLockManager(kv.NewMemory())
	m.retryDelay = 5 * time.Millisecond

	lockID, err := m.Acquire(ctx, "task-1", 100*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	if lockID == "" {
		t.Fatal("empty lock id")
	}

	// Second acquirer times out while the lock is held.
	if _, err := m.Acquire(ctx, "task-1", 30*time.Millisecond); !errors.Is(err, ErrLockNotAcquired) {
		t.Fatalf("err = %v, want ErrLockNotAcquired", err)
	}

	// A different task's lock is independent.
	otherID, err := m.Acquire(ctx, "task-2", 30*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	if otherID == lockID {
		t.Fatal("lock ids must be unique")
	}

	if err := m.Release(ctx, "task-1", lockID); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Acquire(ctx, "task-1", 30*time.Millisecond); err != nil {
		t.Fatalf("reacquire after release failed: %v", err)
	}
}

func TestLockReleaseRequiresOwnership(t *testing.T) {
	ctx := context.Background()
	m := newLockManager(kv.NewMemory())

	lockID, err := m.Acquire(ctx, "task-1", 30*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}

	// Releasing with the wrong id is a no-op; the real holder keeps it.
	if err := m.Release(ctx, "task-1", "not-the-owner"); err != nil {
		t.Fatal(err)
	}
	m.retryDelay = 5 * time.Millisecond
	if _, err := m.Acquire(ctx, "task-1", 20*time.Millisecond); !errors.Is(err, ErrLockNotAcquired) {
		t.Fatalf("lock should still be held, got %v", err)
	}

	if err := m.Release(ctx, "task-1", lockID); err != nil {
		t.Fatal(err)
	}
}

func TestLockContextCancellation(t *testing.T) {
	m := newLockManager(kv.NewMemory())
	m.retryDelay = 5 * time.Millisecond

	if _, err := m.Acquire(context.Background(), "task-1", time.Second); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(15 * time.Millisecond)
		cancel()
	}()
	if _, err := m.Acquire(ctx, "task-1", 10*time.Second); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
