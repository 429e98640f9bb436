package core

import (
	"os"
	"path/filepath"
	"testing"

	"cmdq/internal/logging"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type tmpLogDir struct {
	dir string
}

func (d tmpLogDir) EnsureTaskLogDir() error {
	return os.MkdirAll(d.dir, 0o755)
}

func (d tmpLogDir) TaskLogPath(taskID string) string {
	return filepath.Join(d.dir, taskID+".log")
}

func newCommandExecutor(t *testing.T) (*CommandExecutor, tmpLogDir) {
	t.Helper()
	logs := tmpLogDir{dir: filepath.Join(t.TempDir(), "logs")}
	return NewCommandExecutor(logs, logging.NewWithWriter("error", testWriter{t})), logs
}

func TestExecuteCapturesOutput(t *testing.T) {
	executor, logs := newCommandExecutor(t)
	task := &Task{
		ID:      NewID(),
		Command: CommandRequest{Path: t.TempDir(), Program: "echo", Args: []string{"hello", "world"}},
		Tries:   1,
	}

	result, err := executor.Execute(task)
	require.NoError(t, err)
	assert.Equal(t, RunResultCompleted, result)

	data, err := os.ReadFile(logs.TaskLogPath(task.ID))
	require.NoError(t, err)
	assert.Contains(t, string(data), "--- attempt 1: echo [hello world]")
	assert.Contains(t, string(data), "hello world")
}

func TestExecuteRunsInWorkingDirectory(t *testing.T) {
	executor, logs := newCommandExecutor(t)
	dir := t.TempDir()
	task := &Task{
		ID:      NewID(),
		Command: CommandRequest{Path: dir, Program: "pwd"},
		Tries:   1,
	}

	result, err := executor.Execute(task)
	require.NoError(t, err)
	assert.Equal(t, RunResultCompleted, result)

	data, err := os.ReadFile(logs.TaskLogPath(task.ID))
	require.NoError(t, err)
	// macOS TempDir sits behind a /private symlink, so match the suffix.
	assert.Contains(t, string(data), filepath.Base(dir))
}

func TestExecuteNonZeroExitFails(t *testing.T) {
	executor, logs := newCommandExecutor(t)
	task := &Task{
		ID:      NewID(),
		Command: CommandRequest{Path: t.TempDir(), Program: "false"},
		Tries:   3,
	}

	result, err := executor.Execute(task)
	require.Error(t, err)
	assert.Equal(t, RunResultFailed, result)

	data, err := os.ReadFile(logs.TaskLogPath(task.ID))
	require.NoError(t, err)
	assert.Contains(t, string(data), "--- attempt 3 failed:")
}

func TestExecuteMissingProgramFails(t *testing.T) {
	executor, _ := newCommandExecutor(t)
	task := &Task{
		ID:      NewID(),
		Command: CommandRequest{Path: t.TempDir(), Program: "no-such-program-cmdq"},
		Tries:   1,
	}

	result, err := executor.Execute(task)
	require.Error(t, err)
	assert.Equal(t, RunResultFailed, result)
}

func TestExecuteAppendsAcrossAttempts(t *testing.T) {
	executor, logs := newCommandExecutor(t)
	task := &Task{
		ID:      NewID(),
		Command: CommandRequest{Path: t.TempDir(), Program: "echo", Args: []string{"once"}},
		Tries:   1,
	}

	_, err := executor.Execute(task)
	require.NoError(t, err)
	task.Tries = 2
	_, err = executor.Execute(task)
	require.NoError(t, err)

	data, err := os.ReadFile(logs.TaskLogPath(task.ID))
	require.NoError(t, err)
	assert.Contains(t, string(data), "--- attempt 1:")
	assert.Contains(t, string(data), "--- attempt 2:")
}
