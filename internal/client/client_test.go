package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"cmdq/internal/api"
	"cmdq/internal/core"
	"cmdq/internal/logging"
	"cmdq/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}

func newTestDaemon(t *testing.T) (*Client, *core.TaskQueue) {
	t.Helper()
	ctx := context.Background()
	st, err := store.Open(ctx, t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	queue, err := core.NewTaskQueue(ctx, st)
	require.NoError(t, err)

	server := api.NewServer("127.0.0.1:0", queue, st, logging.NewWithWriter("error", testWriter{t}))
	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)

	c, err := New(ts.URL)
	require.NoError(t, err)
	return c, queue
}

func TestClientSubmitAndQuery(t *testing.T) {
	c, _ := newTestDaemon(t)
	ctx := context.Background()

	task, err := c.SubmitCommand(ctx, core.CommandRequest{Path: "/tmp", Program: "echo", Args: []string{"hi"}})
	require.NoError(t, err)
	assert.NotEmpty(t, task.ID)
	assert.Equal(t, "queued", task.State)

	got, err := c.QueryTask(ctx, task.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, task.ID, got.ID)
	assert.Equal(t, []string{"hi"}, got.Args)
}

func TestClientQueryUnknownTask(t *testing.T) {
	c, _ := newTestDaemon(t)
	got, err := c.QueryTask(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestClientSubmitRejected(t *testing.T) {
	c, _ := newTestDaemon(t)
	_, err := c.SubmitCommand(context.Background(), core.CommandRequest{Path: "/tmp"})
	require.Error(t, err)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
}

func TestClientListTasksByState(t *testing.T) {
	c, queue := newTestDaemon(t)
	ctx := context.Background()
	_, err := c.SubmitCommand(ctx, core.CommandRequest{Path: "/tmp", Program: "one"})
	require.NoError(t, err)
	_, err = c.SubmitCommand(ctx, core.CommandRequest{Path: "/tmp", Program: "two"})
	require.NoError(t, err)
	require.NotNil(t, queue.PopNext(ctx))

	all, err := c.ListTasks(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	running, err := c.ListTasks(ctx, core.TaskStateRunning)
	require.NoError(t, err)
	require.Len(t, running, 1)
	assert.Equal(t, "one", running[0].Program)
}

func TestClientHealth(t *testing.T) {
	c, _ := newTestDaemon(t)
	assert.True(t, c.Health(context.Background()))

	down, err := New("http://127.0.0.1:1")
	require.NoError(t, err)
	assert.False(t, down.Health(context.Background()))
}
