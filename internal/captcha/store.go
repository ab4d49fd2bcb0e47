// Package captcha implements the manual-solve task lifecycle: creation,
// assignment, solution submission, expiry, and the durable stores behind it.
package captcha

import (
	"context"
	"errors"
	"time"

	"github.com/titanscrape/titan/internal/model"
)

// ErrNotFound is returned when a task UUID has no matching row.
var ErrNotFound = errors.New("captcha: task not found")

// ErrAlreadyAssigned is returned by Store.Assign when a concurrent caller
// won the race to claim the task first.
var ErrAlreadyAssigned = errors.New("captcha: task already assigned")

// ListFilter narrows Store.List by the operator-facing query parameters.
type ListFilter struct {
	Status model.CaptchaStatus // empty means any
	Domain string              // empty means any
	Limit  int
	Offset int
}

// TaskStore is the durable table behind CaptchaTask: indices on (status),
// (domain), (priority, created_at), and (uuid) unique.
type TaskStore interface {
	Create(ctx context.Context, task *model.CaptchaTask) error
	Get(ctx context.Context, uuid string) (*model.CaptchaTask, error)
	List(ctx context.Context, filter ListFilter) ([]model.CaptchaTask, error)
	// Assign atomically transitions pending -> assigned, failing with
	// ErrAlreadyAssigned if another caller already claimed the task.
	Assign(ctx context.Context, uuid, operatorID string, now time.Time) (*model.CaptchaTask, error)
	// Update persists an already-loaded task's mutable fields (status,
	// solver result, timestamps, extra). Callers own state-machine checks.
	Update(ctx context.Context, task *model.CaptchaTask) error
	// ListExpirable returns non-terminal tasks whose expires_at has passed.
	ListExpirable(ctx context.Context, now time.Time) ([]model.CaptchaTask, error)
	Close() error
}
