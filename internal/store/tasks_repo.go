package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cmdq/internal/core"
)

var ErrTaskNotFound = errors.New("task not found")

// SaveTask upserts the persisted record for a task. A task requeued after a
// worker picked it up gets a fresh row, so the on-disk order follows the
// in-memory FIFO tail.
func (s *Store) SaveTask(ctx context.Context, task *core.Task, state core.TaskState) error {
	args, err := json.Marshal(task.Command.Args)
	if err != nil {
		return fmt.Errorf("encode args: %w", err)
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err = s.DB.ExecContext(ctx, `
		INSERT INTO tasks (id, path, program, args, tries, last_attempt, state, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			tries = excluded.tries,
			last_attempt = excluded.last_attempt,
			state = excluded.state,
			updated_at = excluded.updated_at
	`, task.ID, task.Command.Path, task.Command.Program, string(args),
		task.Tries, nullableTime(task.LastAttempt), string(state), now, now)
	if err != nil {
		return fmt.Errorf("save task: %w", err)
	}
	return nil
}

// DeleteTask removes the persisted record. Deleting an absent id is not an
// error: completed tasks already lost their row when they were dequeued.
func (s *Store) DeleteTask(ctx context.Context, id string) error {
	if _, err := s.DB.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	return nil
}

// GetTask loads a single persisted record.
func (s *Store) GetTask(ctx context.Context, id string) (*core.Task, core.TaskState, error) {
	row := s.DB.QueryRowContext(ctx, `
		SELECT id, path, program, args, tries, last_attempt, state
		FROM tasks WHERE id = ?
	`, id)
	task, state, err := scanTask(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, "", ErrTaskNotFound
		}
		return nil, "", err
	}
	return task, state, nil
}

// LoadTasks returns all persisted tasks split by state, queued ones in
// submission order.
func (s *Store) LoadTasks(ctx context.Context) (queued, abandoned []*core.Task, err error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, path, program, args, tries, last_attempt, state
		FROM tasks
		ORDER BY seq ASC
	`)
	if err != nil {
		return nil, nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		task, state, err := scanTask(rows)
		if err != nil {
			return nil, nil, err
		}
		switch state {
		case core.TaskStateAbandoned:
			abandoned = append(abandoned, task)
		default:
			queued = append(queued, task)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}
	return queued, abandoned, nil
}

func scanTask(scanner interface {
	Scan(dest ...any) error
}) (*core.Task, core.TaskState, error) {
	var (
		id          string
		path        string
		program     string
		argsJSON    string
		tries       int
		lastAttempt sql.NullString
		state       string
	)
	if err := scanner.Scan(&id, &path, &program, &argsJSON, &tries, &lastAttempt, &state); err != nil {
		return nil, "", fmt.Errorf("scan task: %w", err)
	}
	var args []string
	if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
		return nil, "", fmt.Errorf("decode args for task %s: %w", id, err)
	}
	task := &core.Task{
		ID: id,
		Command: core.CommandRequest{
			Path:    path,
			Program: program,
			Args:    args,
		},
		Tries: tries,
	}
	if lastAttempt.Valid {
		if t, err := time.Parse(time.RFC3339Nano, lastAttempt.String); err == nil {
			task.LastAttempt = &t
		}
	}
	return task, core.TaskState(state), nil
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return value.UTC().Format(time.RFC3339Nano)
}
