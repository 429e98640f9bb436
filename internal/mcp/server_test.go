package mcp

import (
	"context"
	"testing"

	"cmdq/internal/core"
	"cmdq/internal/logging"
	"cmdq/internal/store"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}

func newMCPFixture(t *testing.T) (*MCPServer, *core.TaskQueue) {
	t.Helper()
	ctx := context.Background()
	st, err := store.Open(ctx, t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	queue, err := core.NewTaskQueue(ctx, st)
	require.NoError(t, err)
	return NewMCPServer(queue, logging.NewWithWriter("error", testWriter{t})), queue
}

func callRequest(name string, args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, res.Content)
	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return text.Text
}

func TestHandleQueueCommand(t *testing.T) {
	s, queue := newMCPFixture(t)
	res, err := s.handleQueueCommand(context.Background(), callRequest("queue_command", map[string]any{
		"path":    "/tmp",
		"program": "yt-dlp",
		"args":    "-x https://example.com/v",
	}))
	require.NoError(t, err)
	require.False(t, res.IsError)
	assert.Contains(t, resultText(t, res), "Command queued")

	tasks := queue.List(core.TaskStateQueued)
	require.Len(t, tasks, 1)
	assert.Equal(t, "yt-dlp", tasks[0].Command.Program)
	assert.Equal(t, []string{"-x", "https://example.com/v"}, tasks[0].Command.Args)
}

func TestHandleQueueCommandMissingProgram(t *testing.T) {
	s, _ := newMCPFixture(t)
	res, err := s.handleQueueCommand(context.Background(), callRequest("queue_command", map[string]any{
		"path": "/tmp",
	}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestHandleListTasks(t *testing.T) {
	s, queue := newMCPFixture(t)
	ctx := context.Background()

	res, err := s.handleListTasks(ctx, callRequest("list_tasks", nil))
	require.NoError(t, err)
	assert.Contains(t, resultText(t, res), "No tasks found")

	_, err = queue.Submit(ctx, core.CommandRequest{Path: "/tmp", Program: "echo", Args: []string{"hi"}})
	require.NoError(t, err)

	res, err = s.handleListTasks(ctx, callRequest("list_tasks", map[string]any{"state": "queued"}))
	require.NoError(t, err)
	text := resultText(t, res)
	assert.Contains(t, text, "Found 1 task(s)")
	assert.Contains(t, text, "echo hi")

	res, err = s.handleListTasks(ctx, callRequest("list_tasks", map[string]any{"state": "bogus"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestHandleQueryTask(t *testing.T) {
	s, queue := newMCPFixture(t)
	ctx := context.Background()
	task, err := queue.Submit(ctx, core.CommandRequest{Path: "/tmp", Program: "echo"})
	require.NoError(t, err)

	res, err := s.handleQueryTask(ctx, callRequest("query_task", map[string]any{"task_id": task.ID}))
	require.NoError(t, err)
	require.False(t, res.IsError)
	text := resultText(t, res)
	assert.Contains(t, text, task.ID)
	assert.Contains(t, text, "State: queued")

	res, err = s.handleQueryTask(ctx, callRequest("query_task", map[string]any{"task_id": "missing"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}
