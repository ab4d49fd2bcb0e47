package jobqueue

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/titanscrape/titan/internal/model"
)

// MemoryQueue is an in-process Queue backed by a channel of job IDs and a
// mutex-guarded map, used for tests and single-process deployments.
type MemoryQueue struct {
	mu    sync.Mutex
	jobs  map[string]*model.Job
	ready chan string
}

// NewMemoryQueue creates an empty MemoryQueue with room for backlog queued
// jobs before Enqueue starts blocking callers.
func NewMemoryQueue(backlog int) *MemoryQueue {
	if backlog <= 0 {
		backlog = 256
	}
	return &MemoryQueue{
		jobs:  make(map[string]*model.Job),
		ready: make(chan string, backlog),
	}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, req model.FetchRequest) (string, error) {
	jobID := uuid.NewString()
	req.JobID = jobID
	job := &model.Job{
		ID:         jobID,
		Request:    req,
		Status:     model.JobQueued,
		EnqueuedAt: time.Now(),
	}

	q.mu.Lock()
	q.jobs[jobID] = job
	q.mu.Unlock()

	select {
	case q.ready <- jobID:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	return jobID, nil
}

func (q *MemoryQueue) Reserve(ctx context.Context) (*model.Job, error) {
	for {
		select {
		case jobID := <-q.ready:
			q.mu.Lock()
			job, ok := q.jobs[jobID]
			if !ok || job.Status != model.JobQueued {
				q.mu.Unlock()
				continue // cancelled between enqueue and reserve
			}
			now := time.Now()
			job.Status = model.JobInProgress
			job.StartedAt = &now
			q.mu.Unlock()
			return job, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (q *MemoryQueue) Complete(ctx context.Context, jobID string, result model.TierResult) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	job, ok := q.jobs[jobID]
	if !ok {
		return ErrNotFound
	}
	if job.Status.Terminal() {
		return nil // at-most-once
	}
	now := time.Now()
	job.Result = &result
	job.FinishedAt = &now
	if result.Success {
		job.Status = model.JobComplete
	} else {
		job.Status = model.JobFailed
		job.Error = result.Error
	}
	return nil
}

func (q *MemoryQueue) Fail(ctx context.Context, jobID string, errMsg string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	job, ok := q.jobs[jobID]
	if !ok {
		return ErrNotFound
	}
	if job.Status.Terminal() {
		return nil
	}
	now := time.Now()
	job.Status = model.JobFailed
	job.Error = errMsg
	job.FinishedAt = &now
	return nil
}

func (q *MemoryQueue) Status(ctx context.Context, jobID string) (*model.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	job, ok := q.jobs[jobID]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *job
	return &copied, nil
}

func (q *MemoryQueue) Cancel(ctx context.Context, jobID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	job, ok := q.jobs[jobID]
	if !ok {
		return ErrNotFound
	}
	switch job.Status {
	case model.JobQueued:
		now := time.Now()
		job.Status = model.JobCancelled
		job.FinishedAt = &now
		return nil
	case model.JobInProgress:
		return ErrNotQueued
	default:
		return ErrAlreadyDone
	}
}
