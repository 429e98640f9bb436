package core

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
)

// Executor runs the external command wrapped by a task and reports the
// outcome. Spawn failures count the same as a non-zero exit.
type Executor interface {
	Execute(task *Task) (TaskRunResult, error)
}

// LogDir locates per-task output log files. The store implements it.
type LogDir interface {
	EnsureTaskLogDir() error
	TaskLogPath(taskID string) string
}

// CommandExecutor executes task commands as subprocesses and captures their
// combined output under the state directory. There is no timeout: a hung
// command occupies its worker slot until it exits.
type CommandExecutor struct {
	logs   LogDir
	logger *slog.Logger
}

// NewCommandExecutor creates a new executor.
func NewCommandExecutor(logs LogDir, logger *slog.Logger) *CommandExecutor {
	return &CommandExecutor{
		logs:   logs,
		logger: logger,
	}
}

// Execute spawns the task's program in its working directory and waits for it
// to finish. The returned error carries detail for logging; the result alone
// decides the queue transition.
func (e *CommandExecutor) Execute(task *Task) (TaskRunResult, error) {
	if err := e.logs.EnsureTaskLogDir(); err != nil {
		return RunResultFailed, fmt.Errorf("ensure task log dir: %w", err)
	}
	logPath := e.logs.TaskLogPath(task.ID)
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return RunResultFailed, fmt.Errorf("open log file: %w", err)
	}
	defer logFile.Close()

	output := &syncWriter{w: logFile}
	fmt.Fprintf(logFile, "--- attempt %d: %s %v\n", task.Tries, task.Command.Program, task.Command.Args)

	cmd := exec.Command(task.Command.Program, task.Command.Args...) // #nosec G204
	cmd.Dir = task.Command.Path
	cmd.Stdout = output
	cmd.Stderr = output

	if err := cmd.Run(); err != nil {
		fmt.Fprintf(logFile, "--- attempt %d failed: %v\n", task.Tries, err)
		return RunResultFailed, fmt.Errorf("run command: %w", err)
	}
	return RunResultCompleted, nil
}

type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}
