package scheduler

import (
	"sync"
	"time"
)

// errorRingCapacity bounds the retained error log per process.
const errorRingCapacity = 100

// TaskError is one retained execution failure.
type TaskError struct {
	TaskID      string    `json:"task_id"`
	ExecutionID string    `json:"execution_id"`
	Message     string    `json:"message"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// Health is a point-in-time snapshot of the scheduler.
type Health struct {
	QueueDepth   int         `json:"queue_depth"`
	Running      int         `json:"running"`
	HistorySize  int         `json:"history_size"`
	TotalErrors  int64       `json:"total_errors"`
	RecentErrors []TaskError `json:"recent_errors"`
}

// healthMonitor retains the last 100 errors and serves gauges.
type healthMonitor struct {
	mu     sync.Mutex
	errors []TaskError
	next   int
	full   bool
	total  int64
}

func newHealthMonitor() *healthMonitor {
	return &healthMonitor{errors: make([]TaskError, errorRingCapacity)}
}

func (m *healthMonitor) RecordError(e TaskError) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors[m.next] = e
	m.next = (m.next + 1) % len(m.errors)
	if m.next == 0 {
		m.full = true
	}
	m.total++
}

// recent returns retained errors, newest first.
func (m *healthMonitor) recent() []TaskError {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := m.next
	if m.full {
		total = len(m.errors)
	}
	out := make([]TaskError, 0, total)
	for i := 1; i <= total; i++ {
		out = append(out, m.errors[(m.next-i+len(m.errors))%len(m.errors)])
	}
	return out
}

func (m *healthMonitor) totalErrors() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.total
}
