package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cmdq/internal/api"
	"cmdq/internal/config"
	"cmdq/internal/core"
	"cmdq/internal/logging"
	cmdqmcp "cmdq/internal/mcp"
	"cmdq/internal/notify"
	"cmdq/internal/store"
)

func main() {
	cfg, err := config.Parse()
	if err != nil {
		log.Fatalf("failed to parse config: %v", err)
	}

	logger := logging.New(cfg.LogLevel)

	baseCtx := context.Background()
	storeInst, err := store.Open(baseCtx, cfg.StateDir)
	if err != nil {
		logger.Error("open store", "err", err)
		os.Exit(1)
	}
	defer storeInst.Close()

	queue, err := core.NewTaskQueue(baseCtx, storeInst)
	if err != nil {
		logger.Error("load queue", "err", err)
		os.Exit(1)
	}

	var notifier notify.Notifier = &notify.NoOpNotifier{}
	if cfg.Bark.Enabled {
		bark, err := notify.NewBarkNotifier(cfg.Bark.URL)
		if err != nil {
			logger.Error("configure bark notifier", "err", err)
			os.Exit(1)
		}
		notifier = bark
	}

	executor := core.NewCommandExecutor(storeInst, logger)
	scheduler := core.NewScheduler(queue, executor, notifier, logger, core.SchedulerConfig{
		Workers:      cfg.Queue.Concurrency,
		PollInterval: cfg.Queue.PollInterval,
		MaxRetries:   cfg.Queue.MaxRetries,
		Retry: core.RetryPolicy{
			Base: cfg.Queue.RetryBaseDelay,
			Max:  cfg.Queue.RetryMaxDelay,
		},
	})

	janitor, err := core.NewJanitor(queue, storeInst, logger, cfg.Janitor.Cron, cfg.Janitor.Retention)
	if err != nil {
		logger.Error("configure janitor", "err", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(baseCtx)
	defer cancel()

	scheduler.Start(ctx)
	janitor.Start(ctx)

	switch cfg.Mode {
	case "http":
		runHTTPMode(cfg, queue, storeInst, scheduler, janitor, logger)
	case "mcp":
		runMCPMode(queue, scheduler, janitor, logger, cfg.ShutdownGrace, cancel)
	case "both":
		runBothMode(cfg, queue, storeInst, scheduler, janitor, logger)
	}
}

func runHTTPMode(cfg *config.Config, queue *core.TaskQueue, storeInst *store.Store, scheduler *core.Scheduler, janitor *core.Janitor, logger *slog.Logger) {
	server := api.NewServer(cfg.Server.Addr, queue, storeInst, logger)

	serverErr := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.Info("received signal", "signal", sig.String())
	case err := <-serverErr:
		logger.Error("server error", "err", err)
	}

	shutdown(server, scheduler, janitor, logger, cfg.ShutdownGrace)
}

func runMCPMode(queue *core.TaskQueue, scheduler *core.Scheduler, janitor *core.Janitor, logger *slog.Logger, grace time.Duration, cancel context.CancelFunc) {
	mcpServer := cmdqmcp.NewMCPServer(queue, logger)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		logger.Info("received signal, shutting down")
		cancel()
	}()

	if err := mcpServer.Run(); err != nil {
		logger.Error("mcp server error", "err", err)
		os.Exit(1)
	}
	stopBackground(scheduler, janitor, logger, grace)
}

func runBothMode(cfg *config.Config, queue *core.TaskQueue, storeInst *store.Store, scheduler *core.Scheduler, janitor *core.Janitor, logger *slog.Logger) {
	mcpServer := cmdqmcp.NewMCPServer(queue, logger)
	mcpErr := make(chan error, 1)
	go func() {
		if err := mcpServer.Run(); err != nil {
			mcpErr <- err
		}
	}()

	server := api.NewServer(cfg.Server.Addr, queue, storeInst, logger)
	serverErr := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.Info("received signal", "signal", sig.String())
	case err := <-serverErr:
		logger.Error("server error", "err", err)
	case err := <-mcpErr:
		logger.Error("mcp server error", "err", err)
	}

	shutdown(server, scheduler, janitor, logger, cfg.ShutdownGrace)
}

func shutdown(server *api.Server, scheduler *core.Scheduler, janitor *core.Janitor, logger *slog.Logger, grace time.Duration) {
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), grace)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", "err", err)
	}
	stopBackground(scheduler, janitor, logger, grace)
}

func stopBackground(scheduler *core.Scheduler, janitor *core.Janitor, logger *slog.Logger, grace time.Duration) {
	stopCtx := janitor.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(grace):
		logger.Warn("janitor stop timed out")
	}

	done := make(chan struct{})
	go func() {
		scheduler.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(grace):
		// A hung external command can hold a worker indefinitely; don't block
		// process exit on it.
		logger.Warn("scheduler stop timed out")
	}
	logger.Info("shutdown complete")
}
