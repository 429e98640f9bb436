package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"cmdq/internal/core"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// MCPServer exposes the command queue to MCP clients over stdio, so agents
// can queue shell commands and inspect their progress.
type MCPServer struct {
	queue  core.Queue
	logger *slog.Logger
}

// NewMCPServer creates a new MCP server instance.
func NewMCPServer(queue core.Queue, logger *slog.Logger) *MCPServer {
	return &MCPServer{
		queue:  queue,
		logger: logger,
	}
}

// Run starts the MCP server using stdio transport.
func (s *MCPServer) Run() error {
	mcpServer := server.NewMCPServer(
		"cmdq",
		"1.0.0",
		server.WithToolCapabilities(true),
	)
	s.registerTools(mcpServer)
	s.logger.Info("MCP server starting on stdio")
	return server.ServeStdio(mcpServer)
}

func (s *MCPServer) registerTools(mcpServer *server.MCPServer) {
	mcpServer.AddTool(mcp.NewTool("queue_command",
		mcp.WithDescription("Queue a shell command for asynchronous execution with automatic retry"),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Working directory the command runs in"),
		),
		mcp.WithString("program",
			mcp.Required(),
			mcp.Description("Executable name"),
		),
		mcp.WithString("args",
			mcp.Description("Space-separated arguments (optional)"),
		),
	), s.handleQueueCommand)

	mcpServer.AddTool(mcp.NewTool("list_tasks",
		mcp.WithDescription("List tasks in the queue"),
		mcp.WithString("state",
			mcp.Description("Filter by state"),
			mcp.Enum("queued", "running", "abandoned"),
		),
	), s.handleListTasks)

	mcpServer.AddTool(mcp.NewTool("query_task",
		mcp.WithDescription("Look up one task by id"),
		mcp.WithString("task_id",
			mcp.Required(),
			mcp.Description("Task id"),
		),
	), s.handleQueryTask)
}

func (s *MCPServer) handleQueueCommand(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path := mcp.ParseString(request, "path", "")
	program := mcp.ParseString(request, "program", "")
	if path == "" || program == "" {
		return mcp.NewToolResultError("path and program are required"), nil
	}
	args := strings.Fields(mcp.ParseString(request, "args", ""))

	task, err := s.queue.Submit(ctx, core.CommandRequest{
		Path:    path,
		Program: program,
		Args:    args,
	})
	if err != nil {
		s.logger.Error("submit command", "program", program, "err", err)
		return mcp.NewToolResultError(fmt.Sprintf("failed to queue command: %v", err)), nil
	}

	s.logger.Info("command queued via mcp", "task_id", task.ID, "program", program)
	return mcp.NewToolResultText(fmt.Sprintf("Command queued\nID: %s\nProgram: %s\nDirectory: %s",
		task.ID, program, path)), nil
}

func (s *MCPServer) handleListTasks(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var states []core.TaskState
	if raw := mcp.ParseString(request, "state", ""); raw != "" {
		state, ok := core.ParseTaskState(raw)
		if !ok {
			return mcp.NewToolResultError(fmt.Sprintf("unknown state %q", raw)), nil
		}
		states = append(states, state)
	}

	tasks := s.queue.List(states...)
	if len(tasks) == 0 {
		return mcp.NewToolResultText("No tasks found"), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d task(s):\n\n", len(tasks))
	for _, task := range tasks {
		_, state, _ := s.queue.Query(task.ID)
		fmt.Fprintf(&b, "%s [%s]\n", task.ID, state)
		fmt.Fprintf(&b, "  Command: %s %s\n", task.Command.Program, strings.Join(task.Command.Args, " "))
		fmt.Fprintf(&b, "  Directory: %s\n", task.Command.Path)
		fmt.Fprintf(&b, "  Tries: %d\n", task.Tries)
		if task.LastAttempt != nil {
			fmt.Fprintf(&b, "  Last attempt: %s\n", task.LastAttempt.UTC().Format(time.RFC3339))
		}
		b.WriteString("\n")
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (s *MCPServer) handleQueryTask(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	taskID := mcp.ParseString(request, "task_id", "")
	if taskID == "" {
		return mcp.NewToolResultError("task_id is required"), nil
	}
	task, state, ok := s.queue.Query(taskID)
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("task not found: %s", taskID)), nil
	}

	last := "never"
	if task.LastAttempt != nil {
		last = task.LastAttempt.UTC().Format(time.RFC3339)
	}
	return mcp.NewToolResultText(fmt.Sprintf(
		"ID: %s\nState: %s\nCommand: %s %s\nDirectory: %s\nTries: %d\nLast attempt: %s",
		task.ID, state, task.Command.Program, strings.Join(task.Command.Args, " "),
		task.Command.Path, task.Tries, last)), nil
}
