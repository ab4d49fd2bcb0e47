package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/titanscrape/titan/internal/jobqueue"
	"github.com/titanscrape/titan/internal/logging"
	"github.com/titanscrape/titan/internal/orchestrator"
)

func newWorkerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run the fetch-job worker pool against the escalation ladder",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorker(cmd.Context())
		},
	}
}

func runWorker(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	orch := orchestrator.New(orchestrator.Config{
		Ladder:    a.ladder,
		Tickets:   a.tickets,
		Metrics:   a.metrics,
		Telemetry: a.telemetry,
	})

	pool := jobqueue.NewWorkerPool(jobqueue.Config{
		Queue:       a.queue,
		Handler:     orch.Execute,
		WorkerCount: cfg.JobQueue.WorkerCount,
		JobTimeout:  cfg.JobQueue.JobTimeout,
		Metrics:     a.metrics,
	})

	logging.Action(logging.JobQueue, "worker pool starting", zap.Int("workers", cfg.JobQueue.WorkerCount))
	pool.Run(ctx)
	logging.Action(logging.JobQueue, "worker pool stopped")

	cleanupCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.ladder.CleanupAll(cleanupCtx); err != nil {
		logging.Warn(logging.Tier, "tier cleanup reported errors", zap.Error(err))
	}
	return nil
}
