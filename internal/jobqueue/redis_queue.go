package jobqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/titanscrape/titan/internal/logging"
	"github.com/titanscrape/titan/internal/model"
)

// reserveTimeout bounds each BRPOPLPUSH poll so Reserve can still observe
// ctx cancellation between attempts.
const reserveTimeout = 2 * time.Second

// RedisQueue is the standard-deployment Queue backend: a reliable list
// queue (BRPOPLPUSH moving a job_id from the pending list to a processing
// list atomically) with job records kept in a parallel hash, mirroring the
// teacher's Redis task-queue layout with at-most-once completion added.
type RedisQueue struct {
	client         *redis.Client
	pendingKey     string
	processingKey  string
	jobKeyPrefix   string
}

// NewRedisQueue builds a Queue backed by client. keyPrefix namespaces every
// Redis key this queue touches (spec.md's configurable `queue_key`).
func NewRedisQueue(client *redis.Client, keyPrefix string) *RedisQueue {
	if keyPrefix == "" {
		keyPrefix = "jobqueue"
	}
	return &RedisQueue{
		client:        client,
		pendingKey:    keyPrefix + ":pending",
		processingKey: keyPrefix + ":processing",
		jobKeyPrefix:  keyPrefix + ":job:",
	}
}

func (q *RedisQueue) jobKey(jobID string) string {
	return q.jobKeyPrefix + jobID
}

func (q *RedisQueue) Enqueue(ctx context.Context, req model.FetchRequest) (string, error) {
	jobID := uuid.NewString()
	req.JobID = jobID
	job := model.Job{
		ID:         jobID,
		Request:    req,
		Status:     model.JobQueued,
		EnqueuedAt: time.Now(),
	}

	raw, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("jobqueue: encode job: %w", err)
	}

	pipe := q.client.TxPipeline()
	pipe.Set(ctx, q.jobKey(jobID), raw, 0)
	pipe.LPush(ctx, q.pendingKey, jobID)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("jobqueue: enqueue %s: %w", jobID, err)
	}
	return jobID, nil
}

func (q *RedisQueue) Reserve(ctx context.Context) (*model.Job, error) {
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		jobID, err := q.client.BRPopLPush(ctx, q.pendingKey, q.processingKey, reserveTimeout).Result()
		if err == redis.Nil {
			continue // poll timed out with nothing queued, recheck ctx
		}
		if err != nil {
			return nil, fmt.Errorf("jobqueue: reserve: %w", err)
		}

		job, err := q.load(ctx, jobID)
		if err != nil {
			logging.Warn(logging.JobQueue, "dropping undecodable job from processing list",
				zap.String("job_id", jobID), zap.Error(err))
			q.client.LRem(ctx, q.processingKey, 1, jobID)
			continue
		}
		if job.Status != model.JobQueued {
			// Already cancelled or otherwise finalized between enqueue and
			// reserve; drop it from the in-flight list and move on.
			q.client.LRem(ctx, q.processingKey, 1, jobID)
			continue
		}

		now := time.Now()
		job.Status = model.JobInProgress
		job.StartedAt = &now
		if err := q.save(ctx, job); err != nil {
			return nil, err
		}
		return job, nil
	}
}

func (q *RedisQueue) Complete(ctx context.Context, jobID string, result model.TierResult) error {
	job, err := q.load(ctx, jobID)
	if err != nil {
		return err
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
	if err := q.save(ctx, job); err != nil {
		return err
	}
	q.client.LRem(ctx, q.processingKey, 1, jobID)
	return nil
}

func (q *RedisQueue) Fail(ctx context.Context, jobID string, errMsg string) error {
	job, err := q.load(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status.Terminal() {
		return nil
	}
	now := time.Now()
	job.Status = model.JobFailed
	job.Error = errMsg
	job.FinishedAt = &now
	if err := q.save(ctx, job); err != nil {
		return err
	}
	q.client.LRem(ctx, q.processingKey, 1, jobID)
	return nil
}

func (q *RedisQueue) Status(ctx context.Context, jobID string) (*model.Job, error) {
	return q.load(ctx, jobID)
}

func (q *RedisQueue) Cancel(ctx context.Context, jobID string) error {
	job, err := q.load(ctx, jobID)
	if err != nil {
		return err
	}
	switch job.Status {
	case model.JobQueued:
		now := time.Now()
		job.Status = model.JobCancelled
		job.FinishedAt = &now
		if err := q.save(ctx, job); err != nil {
			return err
		}
		q.client.LRem(ctx, q.pendingKey, 1, jobID)
		return nil
	case model.JobInProgress:
		return ErrNotQueued
	default:
		return ErrAlreadyDone
	}
}

func (q *RedisQueue) load(ctx context.Context, jobID string) (*model.Job, error) {
	raw, err := q.client.Get(ctx, q.jobKey(jobID)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("jobqueue: load %s: %w", jobID, err)
	}
	var job model.Job
	if err := json.Unmarshal(raw, &job); err != nil {
		return nil, fmt.Errorf("jobqueue: decode %s: %w", jobID, err)
	}
	return &job, nil
}

func (q *RedisQueue) save(ctx context.Context, job *model.Job) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("jobqueue: encode %s: %w", job.ID, err)
	}
	if err := q.client.Set(ctx, q.jobKey(job.ID), raw, 0).Err(); err != nil {
		return fmt.Errorf("jobqueue: save %s: %w", job.ID, err)
	}
	return nil
}
