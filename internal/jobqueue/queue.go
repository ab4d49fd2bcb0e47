// Package jobqueue implements the durable FIFO between the fetch submission
// API and the orchestrator (spec.md §4.6): enqueue, a worker pool pulling
// jobs and invoking a registered handler, and out-of-order result readback.
package jobqueue

import (
	"context"
	"errors"

	"github.com/titanscrape/titan/internal/model"
)

var (
	// ErrNotFound is returned by Status/Complete/Fail/Cancel for an unknown job_id.
	ErrNotFound = errors.New("jobqueue: job not found")
	// ErrNotQueued is returned by Cancel when the job is already
	// in_progress (spec.md §4.6: "in_progress rejects with conflict").
	ErrNotQueued = errors.New("jobqueue: job is not queued")
	// ErrAlreadyDone is returned by Cancel when the job already reached a
	// terminal state (spec.md §4.6: "complete rejects as already-done").
	ErrAlreadyDone = errors.New("jobqueue: job already finished")
)

// Handler runs one fetch request to completion. It is invoked by the
// worker pool for every dequeued job; the orchestrator registers itself as
// the handler for the fetch-job function (spec.md §4.6).
type Handler func(ctx context.Context, req model.FetchRequest) model.TierResult

// Queue is the pluggable contract behind the Job Queue: a Redis-backed
// reliable queue in the standard deployment, in-memory for tests.
type Queue interface {
	// Enqueue persists req as a new queued job and returns its job_id.
	Enqueue(ctx context.Context, req model.FetchRequest) (string, error)
	// Reserve blocks (up to the context deadline) for the next queued job,
	// marking it in_progress and stamping start_time atomically with the
	// dequeue so no two workers can reserve the same job.
	Reserve(ctx context.Context) (*model.Job, error)
	// Complete stores result and marks the job complete or failed
	// depending on result, stamping finish_time. At-most-once: a second
	// call for the same job_id is a no-op.
	Complete(ctx context.Context, jobID string, result model.TierResult) error
	// Fail marks the job failed with errMsg (e.g. a per-job timeout),
	// stamping finish_time. At-most-once, like Complete.
	Fail(ctx context.Context, jobID string, errMsg string) error
	// Status returns the job's current record.
	Status(ctx context.Context, jobID string) (*model.Job, error)
	// Cancel transitions a queued job to cancelled. See ErrNotQueued and
	// ErrAlreadyDone for the other two cases.
	Cancel(ctx context.Context, jobID string) error
}
