package jobqueue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/titanscrape/titan/internal/model"
)

func runQueueContract(t *testing.T, q Queue) {
	ctx := context.Background()

	jobID, err := q.Enqueue(ctx, model.FetchRequest{URL: "https://example.com/"})
	require.NoError(t, err)

	job, err := q.Reserve(ctx)
	require.NoError(t, err)
	assert.Equal(t, jobID, job.ID)
	assert.Equal(t, model.JobInProgress, job.Status)

	require.NoError(t, q.Complete(ctx, jobID, model.TierResult{Success: true, Content: "ok"}))

	final, err := q.Status(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, model.JobComplete, final.Status)
}

func TestMemoryQueue_Contract(t *testing.T) {
	runQueueContract(t, NewMemoryQueue(4))
}

func TestRedisQueue_Contract(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	runQueueContract(t, NewRedisQueue(client, "test"))
}

func TestRedisQueue_CancelQueuedJob(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	q := NewRedisQueue(client, "test")
	ctx := context.Background()

	jobID, err := q.Enqueue(ctx, model.FetchRequest{URL: "https://example.com/"})
	require.NoError(t, err)

	require.NoError(t, q.Cancel(ctx, jobID))
	job, err := q.Status(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, model.JobCancelled, job.Status)
}

func TestRedisQueue_CancelInProgressConflicts(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	q := NewRedisQueue(client, "test")
	ctx := context.Background()

	jobID, err := q.Enqueue(ctx, model.FetchRequest{URL: "https://example.com/"})
	require.NoError(t, err)
	_, err = q.Reserve(ctx)
	require.NoError(t, err)

	assert.ErrorIs(t, q.Cancel(ctx, jobID), ErrNotQueued)
}

func TestRedisQueue_StatusUnknownJob(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	q := NewRedisQueue(client, "test")

	_, err := q.Status(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisQueue_ReserveHonorsContextCancellation(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	q := NewRedisQueue(client, "test")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := q.Reserve(ctx)
	assert.Error(t, err)
}
