package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/schedcu/core/internal/kv"
	"github.com/schedcu/core/internal/types"
)

// DefaultMaxConcurrentTasks caps simultaneous task executions.
const DefaultMaxConcurrentTasks = 10

// Executor loop yields.
const (
	emptyQueueYield = 100 * time.Millisecond
	overCapYield    = 100 * time.Millisecond
	notReadyYield   = time.Second
)

// ErrUnknownTask is returned when an operation names an unregistered
// task id.
var ErrUnknownTask = errors.New("scheduler: unknown task")

// Options tunes one scheduler instance.
type Options struct {
	MaxConcurrentTasks int
}

// cronEntry is a lazily expanded cron schedule for one task.
type cronEntry struct {
	schedule cron.Schedule
	start    *time.Time
	end      *time.Time
}

// execState pairs an execution with its cancellation hook while it is
// known to the scheduler.
type execState struct {
	exec   *types.TaskExecution
	cancel context.CancelFunc // non-nil while running
}

// Scheduler owns the task queue, the dependency DAG, and the single
// cooperative executor loop.
type Scheduler struct {
	registry *Registry
	queue    *queue
	graph    *dag
	locks    *lockManager
	hist     *history
	health   *healthMonitor
	log      *logrus.Logger

	sem *semaphore.Weighted
	cap int

	mu    sync.Mutex
	tasks map[string]*types.TaskDefinition
	execs map[string]*execState
	crons map[string]*cronEntry

	cronParser cron.Parser
	now        func() time.Time
	wg         sync.WaitGroup
}

// New builds a scheduler over the given KV store and function registry.
func New(store kv.Store, registry *Registry, log *logrus.Logger, opts Options) *Scheduler {
	if opts.MaxConcurrentTasks <= 0 {
		opts.MaxConcurrentTasks = DefaultMaxConcurrentTasks
	}
	return &Scheduler{
		registry:   registry,
		queue:      newQueue(),
		graph:      newDAG(),
		locks:      newLockManager(store),
		hist:       newHistory(),
		health:     newHealthMonitor(),
		log:        log,
		sem:        semaphore.NewWeighted(int64(opts.MaxConcurrentTasks)),
		cap:        opts.MaxConcurrentTasks,
		tasks:      make(map[string]*types.TaskDefinition),
		execs:      make(map[string]*execState),
		crons:      make(map[string]*cronEntry),
		cronParser: cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
		now:        time.Now,
	}
}

// SetClock overrides the time source. Test hook.
func (s *Scheduler) SetClock(now func() time.Time) { s.now = now }

// RegisterTask validates the task's dependency edges against the DAG
// and stores the definition. A cycle rolls the registration back.
func (s *Scheduler) RegisterTask(def types.TaskDefinition) error {
	if def.TaskID == "" {
		return errors.New("scheduler: task id required")
	}
	deps := make([]string, 0, len(def.Dependencies))
	for _, d := range def.Dependencies {
		deps = append(deps, d.DependsOnTaskID)
	}
	if err := s.graph.Add(def.TaskID, deps); err != nil {
		return err
	}

	s.mu.Lock()
	s.tasks[def.TaskID] = &def
	s.mu.Unlock()

	s.log.WithFields(logrus.Fields{
		"task_id":  def.TaskID,
		"priority": def.Priority.String(),
	}).Debug("task registered")
	return nil
}

// Submit enqueues one execution of a registered task. A zero
// scheduledAt means run as soon as possible.
func (s *Scheduler) Submit(taskID string, scheduledAt time.Time) (*types.TaskExecution, error) {
	s.mu.Lock()
	def, ok := s.tasks[taskID]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTask, taskID)
	}

	exec := &types.TaskExecution{
		ExecutionID:   uuid.NewString(),
		TaskID:        taskID,
		Status:        types.TaskQueued,
		ScheduledTime: scheduledAt,
	}
	s.mu.Lock()
	s.execs[exec.ExecutionID] = &execState{exec: exec}
	snap := *exec
	s.mu.Unlock()
	s.queue.Push(exec, def.Priority)
	return &snap, nil
}

// Cancel removes a queued execution immediately, or flags a running one
// for cooperative cancellation. Returns false for unknown or already
// terminal executions.
func (s *Scheduler) Cancel(executionID string) bool {
	if exec := s.queue.RemoveExecution(executionID); exec != nil {
		s.mu.Lock()
		exec.Status = types.TaskCancelled
		snap := *exec
		delete(s.execs, executionID)
		s.mu.Unlock()
		s.hist.Record(&snap)
		return true
	}

	s.mu.Lock()
	st, ok := s.execs[executionID]
	var cancel context.CancelFunc
	if ok && st.exec.Status == types.TaskRunning {
		st.exec.Status = types.TaskCancelled
		cancel = st.cancel
	} else {
		ok = false
	}
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	return ok
}

// CancelTask removes every queued execution of a task. Running
// executions are untouched.
func (s *Scheduler) CancelTask(taskID string) int {
	removed := s.queue.RemoveTask(taskID)
	for _, exec := range removed {
		s.mu.Lock()
		exec.Status = types.TaskCancelled
		snap := *exec
		delete(s.execs, exec.ExecutionID)
		s.mu.Unlock()
		s.hist.Record(&snap)
	}
	return len(removed)
}

// GetExecution returns a snapshot of an execution by id, consulting
// the history ring once the execution has reached a terminal state.
// Callers never share the live struct.
func (s *Scheduler) GetExecution(executionID string) (*types.TaskExecution, bool) {
	s.mu.Lock()
	if st, ok := s.execs[executionID]; ok {
		snap := *st.exec
		s.mu.Unlock()
		return &snap, true
	}
	s.mu.Unlock()
	return s.hist.Find(executionID)
}

// ScheduleCron expands a cron expression lazily: only the next
// occurrence inside the window is enqueued, and each completed run
// schedules its successor.
func (s *Scheduler) ScheduleCron(taskID, expr string, start, end *time.Time) error {
	s.mu.Lock()
	_, known := s.tasks[taskID]
	s.mu.Unlock()
	if !known {
		return fmt.Errorf("%w: %s", ErrUnknownTask, taskID)
	}

	schedule, err := s.cronParser.Parse(expr)
	if err != nil {
		return fmt.Errorf("parsing cron expression %q: %w", expr, err)
	}

	s.mu.Lock()
	s.crons[taskID] = &cronEntry{schedule: schedule, start: start, end: end}
	s.mu.Unlock()

	return s.scheduleNextCron(taskID)
}

// NextCronAfter computes the next occurrence of an expression after t.
// Exposed because expansion must be idempotent: identical inputs give
// identical times.
func (s *Scheduler) NextCronAfter(expr string, t time.Time) (time.Time, error) {
	schedule, err := s.cronParser.Parse(expr)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing cron expression %q: %w", expr, err)
	}
	return schedule.Next(t), nil
}

func (s *Scheduler) scheduleNextCron(taskID string) error {
	s.mu.Lock()
	entry, ok := s.crons[taskID]
	s.mu.Unlock()
	if !ok {
		return nil
	}

	from := s.now()
	if entry.start != nil && from.Before(*entry.start) {
		from = *entry.start
	}
	next := entry.schedule.Next(from)
	if entry.end != nil && next.After(*entry.end) {
		s.log.WithField("task_id", taskID).Info("cron window closed")
		s.mu.Lock()
		delete(s.crons, taskID)
		s.mu.Unlock()
		return nil
	}
	_, err := s.Submit(taskID, next)
	return err
}

// Health reports queue, execution, and error gauges.
func (s *Scheduler) Health() Health {
	s.mu.Lock()
	running := 0
	for _, st := range s.execs {
		if st.exec.Status == types.TaskRunning {
			running++
		}
	}
	s.mu.Unlock()
	return Health{
		QueueDepth:   s.queue.Len(),
		Running:      running,
		HistorySize:  s.hist.Len(),
		TotalErrors:  s.health.totalErrors(),
		RecentErrors: s.health.recent(),
	}
}

// Run drives the executor loop until ctx is cancelled, then waits for
// in-flight tasks. Tasks are launched concurrently; the loop itself
// never blocks on task bodies.
func (s *Scheduler) Run(ctx context.Context) {
	s.log.WithField("max_concurrent", s.cap).Info("scheduler loop started")
	for ctx.Err() == nil {
		if !s.sem.TryAcquire(1) {
			s.yield(ctx, overCapYield)
			continue
		}

		exec := s.queue.Pop()
		if exec == nil {
			s.sem.Release(1)
			s.yield(ctx, emptyQueueYield)
			continue
		}

		def := s.definition(exec.TaskID)
		if def == nil {
			s.sem.Release(1)
			s.finish(exec, types.TaskFailed, nil, fmt.Errorf("%w: %s", ErrUnknownTask, exec.TaskID))
			continue
		}

		now := s.now()
		if exec.ScheduledTime.After(now) {
			s.queue.Push(exec, def.Priority)
			s.sem.Release(1)
			s.yield(ctx, notReadyYield)
			continue
		}
		if !s.dependenciesReady(def) {
			s.queue.Push(exec, def.Priority)
			s.sem.Release(1)
			s.yield(ctx, notReadyYield)
			continue
		}

		s.wg.Add(1)
		go s.runTask(ctx, def, exec)
	}
	s.wg.Wait()
	s.log.Info("scheduler loop stopped")
}

func (s *Scheduler) yield(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}

func (s *Scheduler) definition(taskID string) *types.TaskDefinition {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tasks[taskID]
}

func (s *Scheduler) dependenciesReady(def *types.TaskDefinition) bool {
	for _, dep := range def.Dependencies {
		if !s.hist.Satisfied(dep) {
			return false
		}
	}
	return true
}

// runTask executes one task in a worker goroutine: lock, resolve,
// invoke, and route the outcome through retry policy. The semaphore
// slot is released on every exit path.
func (s *Scheduler) runTask(loopCtx context.Context, def *types.TaskDefinition, exec *types.TaskExecution) {
	defer s.wg.Done()
	defer s.sem.Release(1)

	started := s.now()
	s.mu.Lock()
	if !exec.ScheduledTime.IsZero() {
		exec.Metrics.QueueWait = started.Sub(exec.ScheduledTime)
	}
	exec.StartedTime = &started
	exec.Status = types.TaskRunning
	s.mu.Unlock()

	if def.RequireLock {
		lockStart := s.now()
		lockID, err := s.locks.Acquire(loopCtx, def.TaskID, def.LockTimeout)
		lockWait := s.now().Sub(lockStart)
		s.mu.Lock()
		exec.Metrics.LockWait = lockWait
		exec.LockID = lockID
		s.mu.Unlock()
		if err != nil {
			s.handleFailure(def, exec, fmt.Errorf("acquiring task lock: %w", err))
			return
		}
		defer func() {
			if err := s.locks.Release(context.Background(), def.TaskID, lockID); err != nil {
				s.log.WithField("task_id", def.TaskID).WithError(err).Warn("lock release failed")
			}
		}()
	}

	fn, err := s.registry.Resolve(def.FunctionPath)
	if err != nil {
		s.handleFailure(def, exec, err)
		return
	}

	var runCtx context.Context
	var cancel context.CancelFunc
	if def.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(loopCtx, def.Timeout)
	} else {
		runCtx, cancel = context.WithCancel(loopCtx)
	}
	defer cancel()

	s.mu.Lock()
	if st, ok := s.execs[exec.ExecutionID]; ok {
		st.cancel = cancel
	}
	s.mu.Unlock()

	result, err := s.invoke(runCtx, fn, def)

	s.mu.Lock()
	exec.Metrics.Runtime = s.now().Sub(started)
	cancelled := exec.Status == types.TaskCancelled
	s.mu.Unlock()

	// finish and handleFailure re-check for a cancellation that lands
	// after this read, so a completed result never overwrites it.
	switch {
	case cancelled:
		s.finish(exec, types.TaskCancelled, nil, nil)
	case err != nil && errors.Is(err, context.DeadlineExceeded):
		s.handleFailure(def, exec, fmt.Errorf("execution exceeded timeout %s", def.Timeout))
	case err != nil:
		s.handleFailure(def, exec, err)
	default:
		s.finish(exec, types.TaskCompleted, result, nil)
		if err := s.scheduleNextCron(def.TaskID); err != nil {
			s.log.WithField("task_id", def.TaskID).WithError(err).Warn("cron reschedule failed")
		}
	}
}

// invoke runs the function body, converting panics to errors so a
// misbehaving task cannot take down the executor.
func (s *Scheduler) invoke(ctx context.Context, fn TaskFunc, def *types.TaskDefinition) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return fn(ctx, def.Args, def.Kwargs)
}

// handleFailure applies the retry policy: either a new pending
// execution at now + delay, or terminal failure.
func (s *Scheduler) handleFailure(def *types.TaskDefinition, exec *types.TaskExecution, cause error) {
	s.mu.Lock()
	if exec.Status == types.TaskCancelled {
		s.mu.Unlock()
		s.finish(exec, types.TaskCancelled, nil, nil)
		return
	}
	attempts := exec.RetryCount + 1
	s.mu.Unlock()

	if !ShouldRetry(def.Retry, attempts) {
		s.finish(exec, types.TaskFailed, nil, cause)
		return
	}

	delay := ComputeDelay(def.Retry, attempts-1)
	now := s.now()
	retry := &types.TaskExecution{
		ExecutionID:   uuid.NewString(),
		TaskID:        exec.TaskID,
		Status:        types.TaskQueued,
		ScheduledTime: now.Add(delay),
		RetryCount:    attempts,
	}
	s.mu.Lock()
	exec.Status = types.TaskRetrying
	exec.Error = cause.Error()
	completed := now
	exec.CompletedTime = &completed
	delete(s.execs, exec.ExecutionID)
	s.execs[retry.ExecutionID] = &execState{exec: retry}
	s.mu.Unlock()
	s.queue.Push(retry, def.Priority)

	// Attempt timestamps are diagnostic only.
	s.log.WithFields(logrus.Fields{
		"task_id":      def.TaskID,
		"attempt":      attempts,
		"retry_delay":  delay,
		"attempted_at": now,
	}).Warnf("task failed, retrying: %v", cause)
}

// finish records a terminal status and pushes a snapshot into the
// history ring. A cancellation that raced in wins over the reported
// status so Cancel never returns true for an execution the history
// ends up calling completed.
func (s *Scheduler) finish(exec *types.TaskExecution, status types.TaskStatus, result any, cause error) {
	now := s.now()
	s.mu.Lock()
	if exec.Status == types.TaskCancelled {
		status, result, cause = types.TaskCancelled, nil, nil
	}
	exec.Status = status
	exec.CompletedTime = &now
	exec.Result = result
	if cause != nil {
		exec.Error = cause.Error()
	}
	snap := *exec
	delete(s.execs, exec.ExecutionID)
	s.mu.Unlock()

	if cause != nil {
		s.health.RecordError(TaskError{
			TaskID:      exec.TaskID,
			ExecutionID: exec.ExecutionID,
			Message:     cause.Error(),
			OccurredAt:  now,
		})
		s.log.WithFields(logrus.Fields{
			"task_id":      exec.TaskID,
			"execution_id": exec.ExecutionID,
		}).Errorf("task failed: %v", cause)
	}
	s.hist.Record(&snap)
}
