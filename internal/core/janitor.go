package core

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ParseCron validates a 5-field cron expression and returns its schedule.
func ParseCron(expr string) (cron.Schedule, error) {
	if strings.HasPrefix(strings.TrimSpace(expr), "@") {
		return nil, fmt.Errorf("only 5-field cron expressions are supported")
	}
	schedule, err := cronParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression: %w", err)
	}
	return schedule, nil
}

// Janitor purges abandoned tasks past their retention window, along with
// their output logs, on a cron schedule.
type Janitor struct {
	queue     *TaskQueue
	logs      LogDir
	logger    *slog.Logger
	retention time.Duration

	cron *cron.Cron
	ctx  context.Context
}

// NewJanitor builds a janitor for the given schedule. retention is how long
// an abandoned task stays inspectable before it is removed.
func NewJanitor(queue *TaskQueue, logs LogDir, logger *slog.Logger, expr string, retention time.Duration) (*Janitor, error) {
	schedule, err := ParseCron(expr)
	if err != nil {
		return nil, fmt.Errorf("janitor schedule: %w", err)
	}
	j := &Janitor{
		queue:     queue,
		logs:      logs,
		logger:    logger,
		retention: retention,
		cron:      cron.New(),
	}
	j.cron.Schedule(schedule, cron.FuncJob(j.sweep))
	return j, nil
}

// Start begins the scheduling loop. ctx is used for queue and store calls
// made by sweeps.
func (j *Janitor) Start(ctx context.Context) {
	j.ctx = ctx
	j.cron.Start()
}

// Stop stops scheduling and returns a context that is done when a sweep in
// progress has finished.
func (j *Janitor) Stop() context.Context {
	return j.cron.Stop()
}

func (j *Janitor) sweep() {
	ctx := j.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	purged := j.queue.PurgeAbandoned(ctx, j.retention)
	for _, id := range purged {
		if err := os.Remove(j.logs.TaskLogPath(id)); err != nil && !os.IsNotExist(err) {
			j.logger.Warn("remove task log", "task_id", id, "err", err)
		}
	}
	if len(purged) > 0 {
		j.logger.Info("purged abandoned tasks", "count", len(purged))
	}
}
