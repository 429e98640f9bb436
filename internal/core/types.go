package core

import (
	"time"
)

// CommandRequest describes one command to execute: the working directory,
// the program name, and its arguments. Immutable once submitted.
type CommandRequest struct {
	Path    string   `json:"path"`
	Program string   `json:"program"`
	Args    []string `json:"args"`
}

// Task is one unit of queued work wrapping a command. The queue owns the
// task; callers only ever see copies.
type Task struct {
	ID          string         `json:"id"`
	Command     CommandRequest `json:"command"`
	Tries       int            `json:"tries"`
	LastAttempt *time.Time     `json:"last_attempt,omitempty"`
}

// Clone returns a deep copy so queue internals never escape to callers.
func (t *Task) Clone() *Task {
	cp := *t
	cp.Command.Args = append([]string(nil), t.Command.Args...)
	if t.LastAttempt != nil {
		la := *t.LastAttempt
		cp.LastAttempt = &la
	}
	return &cp
}

// TaskState is derived from which collection currently holds the task.
type TaskState string

const (
	TaskStateQueued    TaskState = "queued"
	TaskStateRunning   TaskState = "running"
	TaskStateAbandoned TaskState = "abandoned"
)

// TaskRunResult is the one-shot outcome reported after a worker handled a task.
type TaskRunResult string

const (
	// RunResultCompleted means the command exited successfully; the task is done.
	RunResultCompleted TaskRunResult = "completed"
	// RunResultFailed means the command exited non-zero or could not be
	// spawned; the task is requeued for another attempt.
	RunResultFailed TaskRunResult = "failed"
	// RunResultSkipped means the backoff window has not elapsed yet; the task
	// returns to the queue tail unprocessed with its attempt bookkeeping unchanged.
	RunResultSkipped TaskRunResult = "skipped"
	// RunResultAbandoned means the retry budget is exhausted; the task moves
	// to a terminal state retained for inspection and is never retried.
	RunResultAbandoned TaskRunResult = "abandoned"
)

// ParseTaskState validates a textual state, for API and CLI filters.
func ParseTaskState(s string) (TaskState, bool) {
	switch TaskState(s) {
	case TaskStateQueued, TaskStateRunning, TaskStateAbandoned:
		return TaskState(s), true
	}
	return "", false
}
