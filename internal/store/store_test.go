package store

import (
	"context"
	"testing"
	"time"

	"cmdq/internal/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(context.Background(), dir)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, dir
}

func makeTask(id, program string) *core.Task {
	return &core.Task{
		ID: id,
		Command: core.CommandRequest{
			Path:    "/tmp",
			Program: program,
			Args:    []string{"-v", "arg with spaces"},
		},
	}
}

func TestSaveAndGetTask(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()
	attempt := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	task := makeTask("t1", "echo")
	task.Tries = 3
	task.LastAttempt = &attempt
	require.NoError(t, s.SaveTask(ctx, task, core.TaskStateQueued))

	got, state, err := s.GetTask(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, core.TaskStateQueued, state)
	assert.Equal(t, task.Command, got.Command)
	assert.Equal(t, 3, got.Tries)
	require.NotNil(t, got.LastAttempt)
	assert.True(t, got.LastAttempt.Equal(attempt))
}

func TestGetTaskNotFound(t *testing.T) {
	s, _ := openTestStore(t)
	_, _, err := s.GetTask(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrTaskNotFound)
}

func TestSaveTaskUpsertsExistingRow(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()
	task := makeTask("t1", "echo")
	require.NoError(t, s.SaveTask(ctx, task, core.TaskStateQueued))

	task.Tries = 5
	require.NoError(t, s.SaveTask(ctx, task, core.TaskStateAbandoned))

	got, state, err := s.GetTask(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, core.TaskStateAbandoned, state)
	assert.Equal(t, 5, got.Tries)
}

func TestLoadTasksPreservesInsertionOrder(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()
	for _, id := range []string{"c", "a", "b"} {
		require.NoError(t, s.SaveTask(ctx, makeTask(id, "echo"), core.TaskStateQueued))
	}

	queued, abandoned, err := s.LoadTasks(ctx)
	require.NoError(t, err)
	assert.Empty(t, abandoned)
	ids := make([]string, 0, len(queued))
	for _, task := range queued {
		ids = append(ids, task.ID)
	}
	assert.Equal(t, []string{"c", "a", "b"}, ids, "rows load in insertion order, not id order")
}

func TestRequeueMovesTaskToTail(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveTask(ctx, makeTask("first", "echo"), core.TaskStateQueued))
	require.NoError(t, s.SaveTask(ctx, makeTask("second", "echo"), core.TaskStateQueued))

	// A popped task loses its row; reporting a failure writes a fresh one.
	require.NoError(t, s.DeleteTask(ctx, "first"))
	requeued := makeTask("first", "echo")
	requeued.Tries = 1
	require.NoError(t, s.SaveTask(ctx, requeued, core.TaskStateQueued))

	queued, _, err := s.LoadTasks(ctx)
	require.NoError(t, err)
	require.Len(t, queued, 2)
	assert.Equal(t, "second", queued[0].ID)
	assert.Equal(t, "first", queued[1].ID)
}

func TestLoadTasksSplitsAbandoned(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveTask(ctx, makeTask("q1", "echo"), core.TaskStateQueued))
	dead := makeTask("d1", "false")
	dead.Tries = 21
	require.NoError(t, s.SaveTask(ctx, dead, core.TaskStateAbandoned))

	queued, abandoned, err := s.LoadTasks(ctx)
	require.NoError(t, err)
	require.Len(t, queued, 1)
	require.Len(t, abandoned, 1)
	assert.Equal(t, "q1", queued[0].ID)
	assert.Equal(t, "d1", abandoned[0].ID)
}

func TestDeleteTaskIgnoresMissingID(t *testing.T) {
	s, _ := openTestStore(t)
	assert.NoError(t, s.DeleteTask(context.Background(), "missing"))
}

// Reopening the database after a process restart must rebuild the queue with
// every submitted task, in order, including tasks that were mid-flight when
// the process died.
func TestQueueRecoversAcrossRestart(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := Open(ctx, dir)
	require.NoError(t, err)
	queue, err := core.NewTaskQueue(ctx, s)
	require.NoError(t, err)
	for _, program := range []string{"one", "two", "three"} {
		_, err := queue.Submit(ctx, core.CommandRequest{Path: "/tmp", Program: program})
		require.NoError(t, err)
	}
	// A failed attempt moves its task to the tail on disk too.
	popped := queue.PopNext(ctx)
	require.Equal(t, "one", popped.Command.Program)
	require.NoError(t, queue.Update(ctx, popped.ID, core.RunResultFailed))
	require.NoError(t, s.Close())

	s2, err := Open(ctx, dir)
	require.NoError(t, err)
	defer s2.Close()
	recovered, err := core.NewTaskQueue(ctx, s2)
	require.NoError(t, err)

	tasks := recovered.List(core.TaskStateQueued)
	require.Len(t, tasks, 3)
	assert.Equal(t, "two", tasks[0].Command.Program)
	assert.Equal(t, "three", tasks[1].Command.Program)
	assert.Equal(t, "one", tasks[2].Command.Program)
	assert.Equal(t, 1, tasks[2].Tries)
	require.NotNil(t, tasks[2].LastAttempt)
}

func TestAbandonedTaskSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := Open(ctx, dir)
	require.NoError(t, err)
	queue, err := core.NewTaskQueue(ctx, s)
	require.NoError(t, err)
	task, err := queue.Submit(ctx, core.CommandRequest{Path: "/tmp", Program: "false"})
	require.NoError(t, err)
	popped := queue.PopNext(ctx)
	require.NoError(t, queue.Update(ctx, popped.ID, core.RunResultFailed))
	popped = queue.PopNext(ctx)
	require.NoError(t, queue.Update(ctx, popped.ID, core.RunResultAbandoned))
	require.NoError(t, s.Close())

	s2, err := Open(ctx, dir)
	require.NoError(t, err)
	defer s2.Close()
	recovered, err := core.NewTaskQueue(ctx, s2)
	require.NoError(t, err)

	got, state, found := recovered.Query(task.ID)
	require.True(t, found)
	assert.Equal(t, core.TaskStateAbandoned, state)
	assert.Equal(t, 2, got.Tries)
}

func TestTaskLogPath(t *testing.T) {
	s, dir := openTestStore(t)
	require.NoError(t, s.EnsureTaskLogDir())
	path := s.TaskLogPath("abc")
	assert.Contains(t, path, dir)
	assert.Contains(t, path, "abc.log")
}
