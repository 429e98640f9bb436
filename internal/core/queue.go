package core

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

var (
	// ErrTaskNotFound is returned by Update when the id is not in the running
	// set. That only happens on a scheduler or client bug, never in normal
	// operation.
	ErrTaskNotFound = errors.New("task not found in running set")

	// ErrSubmission wraps a persistence failure during Submit. The task is
	// guaranteed absent from the queue; the caller may retry.
	ErrSubmission = errors.New("task submission failed")
)

// TaskStore is the durable id -> task mapping behind the queue. Writes are
// serialized by the implementation; the queue calls it while holding its own
// lock, so ordering of writes matches ordering of state transitions.
type TaskStore interface {
	SaveTask(ctx context.Context, task *Task, state TaskState) error
	DeleteTask(ctx context.Context, id string) error
	LoadTasks(ctx context.Context) (queued, abandoned []*Task, err error)
}

// Queue is the capability surface the scheduler and the transport layer
// depend on. TaskQueue is the only implementation in the daemon; tests may
// substitute their own.
type Queue interface {
	Submit(ctx context.Context, cmd CommandRequest) (*Task, error)
	PopNext(ctx context.Context) *Task
	Update(ctx context.Context, id string, result TaskRunResult) error
	List(states ...TaskState) []*Task
	Query(id string) (*Task, TaskState, bool)
}

// TaskQueue is a thread-safe FIFO of pending tasks plus the set of in-flight
// tasks, backed by durable storage. A task id lives in exactly one of
// {pending, running, abandoned} at any time, or in none once completed.
//
// Only queued and abandoned tasks are persisted. A task picked up by a worker
// has its row deleted; a crash while it runs loses that task.
type TaskQueue struct {
	store TaskStore

	mu        sync.Mutex
	pending   []*Task
	running   map[string]*Task
	abandoned map[string]*Task
}

// NewTaskQueue builds a queue and reloads persisted tasks from the store.
// Queued rows come back in submission order, preserving FIFO across restarts.
func NewTaskQueue(ctx context.Context, store TaskStore) (*TaskQueue, error) {
	q := &TaskQueue{
		store:     store,
		running:   make(map[string]*Task),
		abandoned: make(map[string]*Task),
	}
	queued, abandoned, err := store.LoadTasks(ctx)
	if err != nil {
		return nil, fmt.Errorf("reload tasks: %w", err)
	}
	q.pending = queued
	for _, task := range abandoned {
		q.abandoned[task.ID] = task
	}
	return q, nil
}

// Submit creates a task for the command with a fresh id and zero tries,
// persists it, and appends it to the FIFO tail. The write happens before the
// task becomes visible: on storage failure nothing is enqueued.
func (q *TaskQueue) Submit(ctx context.Context, cmd CommandRequest) (*Task, error) {
	task := &Task{
		ID:      NewID(),
		Command: cmd,
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if err := q.store.SaveTask(ctx, task, TaskStateQueued); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSubmission, err)
	}
	q.pending = append(q.pending, task)
	return task.Clone(), nil
}

// PopNext removes the FIFO head, moves it to the running set, and counts the
// dequeue as an attempt. Returns nil when the queue is empty. The persisted
// row is deleted: running tasks are never durable.
func (q *TaskQueue) PopNext(ctx context.Context) *Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return nil
	}
	task := q.pending[0]
	q.pending = q.pending[1:]
	task.Tries++
	q.running[task.ID] = task
	// A failed delete leaves a stale row that resurrects the task on restart.
	// At-least-once is acceptable here, so the error is not fatal.
	_ = q.store.DeleteTask(ctx, task.ID)
	return task.Clone()
}

// Update transitions a running task according to the reported outcome:
//
//	Completed -> removed everywhere (terminal)
//	Failed    -> requeued at the tail, LastAttempt set to now
//	Skipped   -> requeued at the tail, attempt bookkeeping reverted
//	Abandoned -> retained in the abandoned set (terminal), never retried
//
// Requeued tasks may be overtaken by younger first-time entries; FIFO order is
// only promised for first submissions.
func (q *TaskQueue) Update(ctx context.Context, id string, result TaskRunResult) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	task, ok := q.running[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	delete(q.running, id)

	switch result {
	case RunResultCompleted:
		return nil
	case RunResultFailed:
		now := time.Now().UTC()
		task.LastAttempt = &now
		q.pending = append(q.pending, task)
		if err := q.store.SaveTask(ctx, task, TaskStateQueued); err != nil {
			return fmt.Errorf("persist requeued task %s: %w", id, err)
		}
		return nil
	case RunResultSkipped:
		// The dequeue was not an execution; undo its tries increment so
		// backoff windows are measured in real attempts.
		task.Tries--
		q.pending = append(q.pending, task)
		if err := q.store.SaveTask(ctx, task, TaskStateQueued); err != nil {
			return fmt.Errorf("persist skipped task %s: %w", id, err)
		}
		return nil
	case RunResultAbandoned:
		q.abandoned[id] = task
		if err := q.store.SaveTask(ctx, task, TaskStateAbandoned); err != nil {
			return fmt.Errorf("persist abandoned task %s: %w", id, err)
		}
		return nil
	default:
		return fmt.Errorf("unknown task run result %q", result)
	}
}

// List returns a snapshot of tasks in the given states. An empty filter means
// no restriction. Pending tasks come back in FIFO order; running and
// abandoned are sorted by id for a stable output.
func (q *TaskQueue) List(states ...TaskState) []*Task {
	want := func(s TaskState) bool {
		if len(states) == 0 {
			return true
		}
		for _, state := range states {
			if state == s {
				return true
			}
		}
		return false
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	var tasks []*Task
	if want(TaskStateQueued) {
		for _, task := range q.pending {
			tasks = append(tasks, task.Clone())
		}
	}
	if want(TaskStateRunning) {
		tasks = append(tasks, sortedClones(q.running)...)
	}
	if want(TaskStateAbandoned) {
		tasks = append(tasks, sortedClones(q.abandoned)...)
	}
	return tasks
}

// Query looks up a single task and the state it is currently in.
func (q *TaskQueue) Query(id string) (*Task, TaskState, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if task, ok := q.running[id]; ok {
		return task.Clone(), TaskStateRunning, true
	}
	for _, task := range q.pending {
		if task.ID == id {
			return task.Clone(), TaskStateQueued, true
		}
	}
	if task, ok := q.abandoned[id]; ok {
		return task.Clone(), TaskStateAbandoned, true
	}
	return nil, "", false
}

// PurgeAbandoned removes abandoned tasks whose last attempt is older than the
// retention window and returns their ids. Tasks without a recorded attempt
// are kept.
func (q *TaskQueue) PurgeAbandoned(ctx context.Context, olderThan time.Duration) []string {
	cutoff := time.Now().UTC().Add(-olderThan)
	q.mu.Lock()
	defer q.mu.Unlock()
	var purged []string
	for id, task := range q.abandoned {
		if task.LastAttempt == nil || task.LastAttempt.After(cutoff) {
			continue
		}
		delete(q.abandoned, id)
		_ = q.store.DeleteTask(ctx, id)
		purged = append(purged, id)
	}
	sort.Strings(purged)
	return purged
}

func sortedClones(m map[string]*Task) []*Task {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	tasks := make([]*Task, 0, len(ids))
	for _, id := range ids {
		tasks = append(tasks, m[id].Clone())
	}
	return tasks
}
