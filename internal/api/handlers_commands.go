package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"cmdq/internal/core"

	"github.com/go-chi/chi/v5"
)

type submitCommandRequest struct {
	Path    string   `json:"path"`
	Program string   `json:"program"`
	Args    []string `json:"args"`
}

type taskResponse struct {
	ID          string   `json:"id"`
	Path        string   `json:"path"`
	Program     string   `json:"program"`
	Args        []string `json:"args"`
	Tries       int      `json:"tries"`
	LastAttempt *string  `json:"last_attempt,omitempty"`
	State       string   `json:"state,omitempty"`
}

func (s *Server) handleSubmitCommand(w http.ResponseWriter, r *http.Request) {
	var req submitCommandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}

	req.Program = strings.TrimSpace(req.Program)
	if req.Program == "" {
		writeError(w, http.StatusBadRequest, "invalid_input", "program is required")
		return
	}
	if req.Path == "" {
		writeError(w, http.StatusBadRequest, "invalid_input", "path is required")
		return
	}

	task, err := s.queue.Submit(r.Context(), core.CommandRequest{
		Path:    req.Path,
		Program: req.Program,
		Args:    req.Args,
	})
	if err != nil {
		s.logger.Error("submit command", "program", req.Program, "err", err)
		writeError(w, http.StatusInternalServerError, "submission_failed", "failed to persist task; please retry")
		return
	}

	writeJSON(w, http.StatusCreated, taskToResponse(task, core.TaskStateQueued))
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	states, ok := parseStateFilter(r.URL.Query().Get("state"))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_input", "state must be queued, running or abandoned")
		return
	}

	if len(states) == 0 {
		states = []core.TaskState{core.TaskStateQueued, core.TaskStateRunning, core.TaskStateAbandoned}
	}
	resp := make([]taskResponse, 0)
	for _, state := range states {
		for _, task := range s.queue.List(state) {
			resp = append(resp, taskToResponse(task, state))
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleQueryTask(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	task, state, ok := s.queue.Query(taskID)
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "task not found")
		return
	}
	writeJSON(w, http.StatusOK, taskToResponse(task, state))
}

func (s *Server) handleTaskLog(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	if _, _, ok := s.queue.Query(taskID); !ok {
		writeError(w, http.StatusNotFound, "not_found", "task not found")
		return
	}

	tail := parseIntDefault(r.URL.Query().Get("tail"), 0)
	file, err := os.Open(s.logs.TaskLogPath(taskID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			writeError(w, http.StatusNotFound, "not_found", "log not found")
		} else {
			s.logger.Error("open task log", "task_id", taskID, "err", err)
			writeError(w, http.StatusInternalServerError, "internal_error", "failed to read log")
		}
		return
	}
	defer file.Close()

	data, err := readTailLines(file, tail)
	if err != nil {
		s.logger.Error("read task log", "task_id", taskID, "err", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to read log")
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write(data)
}

func parseStateFilter(raw string) ([]core.TaskState, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, true
	}
	var states []core.TaskState
	for _, part := range strings.Split(raw, ",") {
		state, ok := core.ParseTaskState(strings.TrimSpace(part))
		if !ok {
			return nil, false
		}
		states = append(states, state)
	}
	return states, true
}

func taskToResponse(task *core.Task, state core.TaskState) taskResponse {
	resp := taskResponse{
		ID:      task.ID,
		Path:    task.Command.Path,
		Program: task.Command.Program,
		Args:    task.Command.Args,
		Tries:   task.Tries,
		State:   string(state),
	}
	if task.LastAttempt != nil {
		formatted := task.LastAttempt.UTC().Format(time.RFC3339)
		resp.LastAttempt = &formatted
	}
	return resp
}

func parseIntDefault(value string, def int) int {
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func readTailLines(file *os.File, tail int) ([]byte, error) {
	data, err := io.ReadAll(file)
	if err != nil {
		return nil, err
	}
	if tail <= 0 {
		return data, nil
	}
	lines := strings.Split(string(data), "\n")
	if len(lines) > tail {
		lines = lines[len(lines)-tail:]
	}
	return []byte(strings.Join(lines, "\n")), nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	payload := map[string]any{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	}
	writeJSON(w, status, payload)
}
