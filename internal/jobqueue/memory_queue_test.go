package jobqueue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/titanscrape/titan/internal/model"
)

func TestMemoryQueue_EnqueueReserveComplete(t *testing.T) {
	q := NewMemoryQueue(4)
	ctx := context.Background()

	jobID, err := q.Enqueue(ctx, model.FetchRequest{URL: "https://example.com/"})
	require.NoError(t, err)
	require.NotEmpty(t, jobID)

	job, err := q.Reserve(ctx)
	require.NoError(t, err)
	assert.Equal(t, jobID, job.ID)
	assert.Equal(t, model.JobInProgress, job.Status)
	assert.NotNil(t, job.StartedAt)

	require.NoError(t, q.Complete(ctx, jobID, model.TierResult{Success: true, Content: "ok"}))

	final, err := q.Status(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, model.JobComplete, final.Status)
	assert.NotNil(t, final.FinishedAt)
	require.NotNil(t, final.Result)
	assert.Equal(t, "ok", final.Result.Content)
}

func TestMemoryQueue_CompleteIsAtMostOnce(t *testing.T) {
	q := NewMemoryQueue(4)
	ctx := context.Background()

	jobID, err := q.Enqueue(ctx, model.FetchRequest{URL: "https://example.com/"})
	require.NoError(t, err)
	_, err = q.Reserve(ctx)
	require.NoError(t, err)

	require.NoError(t, q.Complete(ctx, jobID, model.TierResult{Success: true, Content: "first"}))
	require.NoError(t, q.Complete(ctx, jobID, model.TierResult{Success: true, Content: "second"}))

	final, err := q.Status(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, "first", final.Result.Content)
}

func TestMemoryQueue_FailedResultMarksJobFailed(t *testing.T) {
	q := NewMemoryQueue(4)
	ctx := context.Background()

	jobID, err := q.Enqueue(ctx, model.FetchRequest{URL: "https://example.com/"})
	require.NoError(t, err)
	_, err = q.Reserve(ctx)
	require.NoError(t, err)

	require.NoError(t, q.Complete(ctx, jobID, model.TierResult{Success: false, Error: "blocked"}))

	final, err := q.Status(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, model.JobFailed, final.Status)
	assert.Equal(t, "blocked", final.Error)
}

func TestMemoryQueue_Cancel(t *testing.T) {
	q := NewMemoryQueue(4)
	ctx := context.Background()

	queuedID, err := q.Enqueue(ctx, model.FetchRequest{URL: "https://example.com/a"})
	require.NoError(t, err)
	require.NoError(t, q.Cancel(ctx, queuedID))
	job, err := q.Status(ctx, queuedID)
	require.NoError(t, err)
	assert.Equal(t, model.JobCancelled, job.Status)

	inProgressID, err := q.Enqueue(ctx, model.FetchRequest{URL: "https://example.com/b"})
	require.NoError(t, err)
	_, err = q.Reserve(ctx)
	require.NoError(t, err)
	assert.ErrorIs(t, q.Cancel(ctx, inProgressID), ErrNotQueued)

	doneID, err := q.Enqueue(ctx, model.FetchRequest{URL: "https://example.com/c"})
	require.NoError(t, err)
	job, err = q.Reserve(ctx)
	require.NoError(t, err)
	require.NoError(t, q.Complete(ctx, job.ID, model.TierResult{Success: true}))
	assert.ErrorIs(t, q.Cancel(ctx, doneID), ErrAlreadyDone)
}

func TestMemoryQueue_Status_UnknownJob(t *testing.T) {
	q := NewMemoryQueue(4)
	_, err := q.Status(context.Background(), "does-not-exist")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestWorkerPool_ProcessesJobAndPersistsResult(t *testing.T) {
	q := NewMemoryQueue(4)
	handlerCalls := make(chan model.FetchRequest, 1)
	pool := NewWorkerPool(Config{
		Queue:       q,
		WorkerCount: 1,
		JobTimeout:  time.Second,
		Handler: func(ctx context.Context, req model.FetchRequest) model.TierResult {
			handlerCalls <- req
			return model.TierResult{Success: true, Content: "handled"}
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	go pool.Run(ctx)

	jobID, err := q.Enqueue(context.Background(), model.FetchRequest{URL: "https://example.com/"})
	require.NoError(t, err)

	select {
	case <-handlerCalls:
	case <-time.After(time.Second):
		t.Fatal("handler was never invoked")
	}

	require.Eventually(t, func() bool {
		job, err := q.Status(context.Background(), jobID)
		return err == nil && job.Status == model.JobComplete
	}, time.Second, 10*time.Millisecond)

	cancel()
}

func TestWorkerPool_JobTimeoutMarksFailed(t *testing.T) {
	q := NewMemoryQueue(4)
	pool := NewWorkerPool(Config{
		Queue:       q,
		WorkerCount: 1,
		JobTimeout:  20 * time.Millisecond,
		Handler: func(ctx context.Context, req model.FetchRequest) model.TierResult {
			<-ctx.Done()
			return model.TierResult{Success: false, Error: "context cancelled"}
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	go pool.Run(ctx)
	defer cancel()

	jobID, err := q.Enqueue(context.Background(), model.FetchRequest{URL: "https://example.com/"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		job, statusErr := q.Status(context.Background(), jobID)
		return statusErr == nil && job.Status == model.JobFailed
	}, time.Second, 10*time.Millisecond)

	job, err := q.Status(context.Background(), jobID)
	require.NoError(t, err)
	assert.Equal(t, "job timeout exceeded", job.Error)
}
