package core

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"cmdq/internal/notify"
)

// SchedulerConfig bounds the worker pool and the retry policy.
type SchedulerConfig struct {
	// Workers is the maximum number of commands executing at once.
	Workers int
	// PollInterval is how long an idle worker sleeps before checking the
	// queue again. Backoff is coarse: a skipped task waits for the next poll,
	// not for a per-task timer.
	PollInterval time.Duration
	// MaxRetries is the attempt budget before a task is abandoned.
	MaxRetries int
	Retry      RetryPolicy
}

// DefaultSchedulerConfig returns the reference configuration.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Workers:      4,
		PollInterval: 10 * time.Second,
		MaxRetries:   20,
		Retry:        DefaultRetryPolicy(),
	}
}

// Scheduler drains the queue with a fixed pool of long-lived workers, each
// looping {pop, run, report}. No global lock serializes execution; workers
// coordinate only through the queue.
type Scheduler struct {
	queue    Queue
	executor Executor
	notifier notify.Notifier
	logger   *slog.Logger
	cfg      SchedulerConfig

	wg     sync.WaitGroup
	cancel context.CancelFunc

	now func() time.Time
}

// NewScheduler constructs a scheduler with the given dependencies.
func NewScheduler(queue Queue, executor Executor, notifier notify.Notifier, logger *slog.Logger, cfg SchedulerConfig) *Scheduler {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 10 * time.Second
	}
	if notifier == nil {
		notifier = &notify.NoOpNotifier{}
	}
	return &Scheduler{
		queue:    queue,
		executor: executor,
		notifier: notifier,
		logger:   logger,
		cfg:      cfg,
		now:      time.Now,
	}
}

// Start launches the worker pool. Workers run until Stop is called or ctx is
// cancelled; a command already executing runs to completion either way.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	for i := 0; i < s.cfg.Workers; i++ {
		s.wg.Add(1)
		go s.worker(ctx, i)
	}
}

// Stop signals the workers and waits for in-flight tasks to be reported.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Scheduler) worker(ctx context.Context, id int) {
	defer s.wg.Done()
	logger := s.logger.With("worker_id", id)
	logger.Debug("worker started")
	for {
		task := s.queue.PopNext(ctx)
		if task == nil {
			select {
			case <-ctx.Done():
				logger.Debug("worker stopped")
				return
			case <-time.After(s.cfg.PollInterval):
			}
			continue
		}
		result := s.runTask(ctx, task, logger)
		if result == RunResultSkipped {
			// Backoff pending. The task went back to the tail; revisit it on a
			// later poll cycle instead of spinning on the queue.
			select {
			case <-ctx.Done():
				logger.Debug("worker stopped")
				return
			case <-time.After(s.cfg.PollInterval):
			}
			continue
		}
		select {
		case <-ctx.Done():
			logger.Debug("worker stopped")
			return
		default:
		}
	}
}

// runTask decides between skip, abandon, and execute, then reports exactly
// one outcome back to the queue. A panic in the executor is reported as a
// failure so the task is never stranded in the running set.
func (s *Scheduler) runTask(ctx context.Context, task *Task, logger *slog.Logger) (result TaskRunResult) {
	result = RunResultFailed
	defer func() {
		if r := recover(); r != nil {
			logger.Error("task execution panicked", "task_id", task.ID, "panic", r)
		}
		if err := s.queue.Update(ctx, task.ID, result); err != nil {
			logger.Error("report task outcome", "task_id", task.ID, "result", result, "err", err)
		}
	}()

	if task.Tries > 1 && task.LastAttempt != nil {
		ready := task.LastAttempt.Add(s.cfg.Retry.Delay(task.Tries - 1))
		if s.now().Before(ready) {
			logger.Debug("backoff pending", "task_id", task.ID, "ready_at", ready)
			result = RunResultSkipped
			return
		}
	}

	if task.Tries > s.cfg.MaxRetries {
		logger.Warn("retry budget exhausted, abandoning task",
			"task_id", task.ID, "tries", task.Tries, "max_retries", s.cfg.MaxRetries)
		result = RunResultAbandoned
		s.notifyAbandoned(ctx, task)
		return
	}

	logger.Info("running task", "task_id", task.ID,
		"program", task.Command.Program, "tries", task.Tries)
	res, err := s.executor.Execute(task)
	if err != nil {
		logger.Warn("task attempt failed", "task_id", task.ID, "tries", task.Tries, "err", err)
	}
	result = res
	return
}

func (s *Scheduler) notifyAbandoned(ctx context.Context, task *Task) {
	title := "cmdq task abandoned"
	body := fmt.Sprintf("%s %v in %s gave up after %d attempts",
		task.Command.Program, task.Command.Args, task.Command.Path, task.Tries-1)
	if err := s.notifier.Send(ctx, title, body); err != nil {
		s.logger.Warn("send abandonment notification", "task_id", task.ID, "err", err)
	}
}
