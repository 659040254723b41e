// Package scheduler drives background work: a five-band priority queue,
// a task dependency DAG, distributed locking over the KV store, retry
// with backoff, cron expansion, and a single cooperative executor loop.
package scheduler

import (
	"container/list"
	"sync"

	"github.com/schedcu/core/internal/types"
)

// priorityBands is the number of strict priority levels.
const priorityBands = 5

// queue is a five-band FIFO with a secondary index by execution and
// task id for O(1) cancellation.
type queue struct {
	mu     sync.Mutex
	bands  [priorityBands]*list.List
	byExec map[string]*list.Element
	byTask map[string]map[string]struct{} // task id -> execution ids
	size   int
}

type queued struct {
	exec     *types.TaskExecution
	priority types.TaskPriority
}

func newQueue() *queue {
	q := &queue{
		byExec: make(map[string]*list.Element),
		byTask: make(map[string]map[string]struct{}),
	}
	for i := range q.bands {
		q.bands[i] = list.New()
	}
	return q
}

// Push enqueues at the tail of the task's priority band.
func (q *queue) Push(exec *types.TaskExecution, p types.TaskPriority) {
	if p < 0 || int(p) >= priorityBands {
		p = types.PriorityNormal
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, dup := q.byExec[exec.ExecutionID]; dup {
		return
	}
	el := q.bands[p].PushBack(&queued{exec: exec, priority: p})
	q.byExec[exec.ExecutionID] = el
	if q.byTask[exec.TaskID] == nil {
		q.byTask[exec.TaskID] = make(map[string]struct{})
	}
	q.byTask[exec.TaskID][exec.ExecutionID] = struct{}{}
	q.size++
}

// Pop removes and returns the head of the highest non-empty band.
// Returns nil when the queue is empty.
func (q *queue) Pop() *types.TaskExecution {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, band := range q.bands {
		el := band.Front()
		if el == nil {
			continue
		}
		item := el.Value.(*queued)
		q.removeLocked(el, item)
		return item.exec
	}
	return nil
}

// RemoveTask drops every queued execution of a task and returns them.
func (q *queue) RemoveTask(taskID string) []*types.TaskExecution {
	q.mu.Lock()
	defer q.mu.Unlock()
	var removed []*types.TaskExecution
	for execID := range q.byTask[taskID] {
		el := q.byExec[execID]
		item := el.Value.(*queued)
		q.removeLocked(el, item)
		removed = append(removed, item.exec)
	}
	return removed
}

// RemoveExecution drops one queued execution. Returns nil if it is not
// queued.
func (q *queue) RemoveExecution(execID string) *types.TaskExecution {
	q.mu.Lock()
	defer q.mu.Unlock()
	el, ok := q.byExec[execID]
	if !ok {
		return nil
	}
	item := el.Value.(*queued)
	q.removeLocked(el, item)
	return item.exec
}

func (q *queue) removeLocked(el *list.Element, item *queued) {
	q.bands[item.priority].Remove(el)
	delete(q.byExec, item.exec.ExecutionID)
	if ids := q.byTask[item.exec.TaskID]; ids != nil {
		delete(ids, item.exec.ExecutionID)
		if len(ids) == 0 {
			delete(q.byTask, item.exec.TaskID)
		}
	}
	q.size--
}

func (q *queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}
