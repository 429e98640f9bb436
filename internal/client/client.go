package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"cmdq/internal/core"
)

// Task is the API's task representation as seen by clients.
type Task struct {
	ID          string   `json:"id"`
	Path        string   `json:"path"`
	Program     string   `json:"program"`
	Args        []string `json:"args"`
	Tries       int      `json:"tries"`
	LastAttempt *string  `json:"last_attempt,omitempty"`
	State       string   `json:"state,omitempty"`
}

// Client talks to the cmdqd HTTP API.
type Client struct {
	host   *url.URL
	client *http.Client
}

// New builds a client for the given host, e.g. "http://localhost:8392".
func New(host string) (*Client, error) {
	parsed, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("parse server host %q: %w", host, err)
	}
	return &Client{
		host: parsed,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}, nil
}

// SubmitCommand queues a command and returns the created task.
func (c *Client) SubmitCommand(ctx context.Context, cmd core.CommandRequest) (*Task, error) {
	payload, err := json.Marshal(map[string]any{
		"path":    cmd.Path,
		"program": cmd.Program,
		"args":    cmd.Args,
	})
	if err != nil {
		return nil, fmt.Errorf("encode command: %w", err)
	}
	var task Task
	if err := c.do(ctx, http.MethodPost, "/api/commands", bytes.NewReader(payload), &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// ListTasks returns tasks in the given states; no states means all.
func (c *Client) ListTasks(ctx context.Context, states ...core.TaskState) ([]Task, error) {
	path := "/api/commands"
	if len(states) > 0 {
		parts := make([]string, 0, len(states))
		for _, state := range states {
			parts = append(parts, string(state))
		}
		path += "?state=" + strings.Join(parts, ",")
	}
	var tasks []Task
	if err := c.do(ctx, http.MethodGet, path, nil, &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

// QueryTask looks up a single task. Returns nil when the id is unknown.
func (c *Client) QueryTask(ctx context.Context, id string) (*Task, error) {
	var task Task
	err := c.do(ctx, http.MethodGet, "/api/commands/"+id, nil, &task)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &task, nil
}

// Health reports whether the daemon answers its health check.
func (c *Client) Health(ctx context.Context) bool {
	var status map[string]string
	return c.do(ctx, http.MethodGet, "/health", nil, &status) == nil
}

// APIError is a non-2xx response from the daemon.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned status %d: %s", e.StatusCode, e.Body)
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, out any) error {
	u := *c.host
	parsed, err := url.Parse(path)
	if err != nil {
		return fmt.Errorf("parse request path %q: %w", path, err)
	}
	u.Path = parsed.Path
	u.RawQuery = parsed.RawQuery

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
