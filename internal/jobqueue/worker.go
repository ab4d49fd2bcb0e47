package jobqueue

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/titanscrape/titan/internal/logging"
	"github.com/titanscrape/titan/internal/metrics"
	"github.com/titanscrape/titan/internal/model"
)

// DefaultWorkerCount is the worker pool size when Config.WorkerCount is
// unset (spec.md §4.6: "N concurrent workers, configurable, default 10").
const DefaultWorkerCount = 10

// DefaultJobTimeout bounds one job's whole orchestration when
// Config.JobTimeout is unset (spec.md §5: "Job timeout: 5 min").
const DefaultJobTimeout = 5 * time.Minute

// Config bundles a WorkerPool's collaborators and tuning knobs.
type Config struct {
	Queue       Queue
	Handler     Handler
	WorkerCount int
	JobTimeout  time.Duration
	Metrics     *metrics.Metrics
}

// WorkerPool runs Config.WorkerCount goroutines, each reserving a job,
// invoking Config.Handler under a per-job timeout, and persisting the
// result (spec.md §4.6). The orchestrator is registered as Handler.
type WorkerPool struct {
	cfg Config
	wg  sync.WaitGroup
}

// NewWorkerPool builds a WorkerPool, defaulting WorkerCount and JobTimeout.
func NewWorkerPool(cfg Config) *WorkerPool {
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = DefaultWorkerCount
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = DefaultJobTimeout
	}
	return &WorkerPool{cfg: cfg}
}

// Run starts the pool and blocks until ctx is cancelled, then waits for
// every in-flight worker to return from its current job.
func (p *WorkerPool) Run(ctx context.Context) {
	for i := 0; i < p.cfg.WorkerCount; i++ {
		p.wg.Add(1)
		go p.loop(ctx, i)
	}
	<-ctx.Done()
	p.wg.Wait()
}

func (p *WorkerPool) loop(ctx context.Context, workerIndex int) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		job, err := p.cfg.Queue.Reserve(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logging.Warn(logging.JobQueue, "reserve failed", zap.Int("worker", workerIndex), zap.Error(err))
			continue
		}

		p.process(ctx, job)
	}
}

func (p *WorkerPool) process(ctx context.Context, job *model.Job) {
	if p.cfg.Metrics != nil {
		p.cfg.Metrics.JobsInFlight.Inc()
		defer p.cfg.Metrics.JobsInFlight.Dec()
	}

	jobCtx, cancel := context.WithTimeout(ctx, p.cfg.JobTimeout)
	defer cancel()

	resultCh := make(chan model.TierResult, 1)
	go func() {
		resultCh <- p.cfg.Handler(jobCtx, job.Request)
	}()

	start := time.Now()
	select {
	case result := <-resultCh:
		if err := p.cfg.Queue.Complete(ctx, job.ID, result); err != nil {
			logging.Warn(logging.JobQueue, "failed to persist job result", zap.String("job_id", job.ID), zap.Error(err))
		}
		if p.cfg.Metrics != nil {
			outcome := model.JobComplete
			if !result.Success {
				outcome = model.JobFailed
			}
			p.cfg.Metrics.JobsCompleted.WithLabelValues(string(outcome)).Inc()
			p.cfg.Metrics.JobDuration.Observe(time.Since(start).Seconds())
		}
	case <-jobCtx.Done():
		if err := p.cfg.Queue.Fail(ctx, job.ID, "job timeout exceeded"); err != nil {
			logging.Warn(logging.JobQueue, "failed to persist job timeout", zap.String("job_id", job.ID), zap.Error(err))
		}
		if p.cfg.Metrics != nil {
			p.cfg.Metrics.JobsCompleted.WithLabelValues(string(model.JobFailed)).Inc()
		}
	}
}
