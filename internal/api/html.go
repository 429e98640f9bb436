package api

import (
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"strings"
	"time"

	"cmdq/internal/core"
)

//go:embed templates/index.html
var templateFS embed.FS

var indexTmpl = template.Must(template.ParseFS(templateFS, "templates/index.html"))

type taskRow struct {
	ID          string
	Path        string
	Process     string
	Tries       int
	LastAttempt string
}

type indexData struct {
	QueuedTasks    []taskRow
	RunningTasks   []taskRow
	AbandonedTasks []taskRow
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	data := indexData{
		QueuedTasks:    toRows(s.queue.List(core.TaskStateQueued)),
		RunningTasks:   toRows(s.queue.List(core.TaskStateRunning)),
		AbandonedTasks: toRows(s.queue.List(core.TaskStateAbandoned)),
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := indexTmpl.Execute(w, data); err != nil {
		s.logger.Error("render index", "err", err)
	}
}

func toRows(tasks []*core.Task) []taskRow {
	rows := make([]taskRow, 0, len(tasks))
	for _, task := range tasks {
		last := "never"
		if task.LastAttempt != nil {
			last = fmt.Sprintf("%s ago", time.Since(*task.LastAttempt).Round(time.Second))
		}
		rows = append(rows, taskRow{
			ID:          task.ID,
			Path:        task.Command.Path,
			Process:     strings.TrimSpace(task.Command.Program + " " + strings.Join(task.Command.Args, " ")),
			Tries:       task.Tries,
			LastAttempt: last,
		})
	}
	return rows
}
