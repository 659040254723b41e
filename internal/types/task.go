package types

import "time"

// TaskPriority orders tasks into five strict bands. Lower value wins.
type TaskPriority int

const (
	PriorityCritical   TaskPriority = 0
	PriorityHigh       TaskPriority = 1
	PriorityNormal     TaskPriority = 2
	PriorityLow        TaskPriority = 3
	PriorityBackground TaskPriority = 4
)

// String returns the band name used in logs and execution records.
func (p TaskPriority) String() string {
	switch p {
	case PriorityCritical:
		return "critical"
	case PriorityHigh:
		return "high"
	case PriorityNormal:
		return "normal"
	case PriorityLow:
		return "low"
	case PriorityBackground:
		return "background"
	default:
		return "unknown"
	}
}

// TaskStatus is the lifecycle state of a task execution.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskQueued    TaskStatus = "queued"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
	TaskRetrying  TaskStatus = "retrying"
	TaskCancelled TaskStatus = "cancelled"
	TaskSkipped   TaskStatus = "skipped"
)

// Terminal reports whether no further transitions can occur.
func (s TaskStatus) Terminal() bool {
	switch s {
	case TaskCompleted, TaskFailed, TaskCancelled, TaskSkipped:
		return true
	}
	return false
}

// RetryStrategy selects the backoff curve between attempts.
type RetryStrategy string

const (
	RetryNone        RetryStrategy = "none"
	RetryFixed       RetryStrategy = "fixed"
	RetryLinear      RetryStrategy = "linear"
	RetryExponential RetryStrategy = "exponential"
)

// RetryConfig controls whether and how a failed task is re-enqueued.
type RetryConfig struct {
	Strategy     RetryStrategy `json:"strategy"`
	MaxAttempts  int           `json:"max_attempts"`
	InitialDelay time.Duration `json:"initial_delay"`
	MaxDelay     time.Duration `json:"max_delay"`
	Multiplier   float64       `json:"multiplier"`
	Jitter       bool          `json:"jitter"`
}

// DefaultRetryConfig mirrors the scheduler's out-of-the-box policy:
// three exponential attempts starting at one second, capped at a minute.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		Strategy:     RetryExponential,
		MaxAttempts:  3,
		InitialDelay: time.Second,
		MaxDelay:     time.Minute,
		Multiplier:   2.0,
		Jitter:       true,
	}
}

// DependencyKind selects which prior outcome satisfies a dependency.
type DependencyKind string

const (
	DependencyCompletion DependencyKind = "completion" // completed or failed
	DependencySuccess    DependencyKind = "success"
	DependencyFailure    DependencyKind = "failure"
)

// TaskDependency declares an ordering edge in the task DAG.
type TaskDependency struct {
	DependsOnTaskID string         `json:"depends_on_task_id"`
	Kind            DependencyKind `json:"kind"`
	Timeout         time.Duration  `json:"timeout,omitempty"`
}

// TaskDefinition is the registered description of a schedulable task.
// FunctionPath is resolved through the function registry at execution
// time, never at registration.
type TaskDefinition struct {
	TaskID       string           `json:"task_id"`
	Name         string           `json:"name"`
	FunctionPath string           `json:"function_path"`
	Priority     TaskPriority     `json:"priority"`
	Args         []any            `json:"args,omitempty"`
	Kwargs       map[string]any   `json:"kwargs,omitempty"`
	Retry        RetryConfig      `json:"retry"`
	Dependencies []TaskDependency `json:"dependencies,omitempty"`
	RequireLock  bool             `json:"require_lock"`
	LockTimeout  time.Duration    `json:"lock_timeout,omitempty"`
	Timeout      time.Duration    `json:"timeout,omitempty"`
	Tags         []string         `json:"tags,omitempty"`
}

// TaskMetrics captures per-execution timing diagnostics.
type TaskMetrics struct {
	QueueWait time.Duration `json:"queue_wait,omitempty"`
	Runtime   time.Duration `json:"runtime,omitempty"`
	LockWait  time.Duration `json:"lock_wait,omitempty"`
}

// TaskExecution is one run (or scheduled run) of a task definition.
type TaskExecution struct {
	ExecutionID   string      `json:"execution_id"`
	TaskID        string      `json:"task_id"`
	Status        TaskStatus  `json:"status"`
	ScheduledTime time.Time   `json:"scheduled_time"`
	StartedTime   *time.Time  `json:"started_time,omitempty"`
	CompletedTime *time.Time  `json:"completed_time,omitempty"`
	Result        any         `json:"result,omitempty"`
	Error         string      `json:"error,omitempty"`
	RetryCount    int         `json:"retry_count"`
	LockID        string      `json:"lock_id,omitempty"`
	Metrics       TaskMetrics `json:"metrics"`
}
