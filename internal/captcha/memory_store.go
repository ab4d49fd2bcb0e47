package captcha

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/titanscrape/titan/internal/model"
)

// MemoryStore is an in-process TaskStore used by unit tests and by
// single-process deployments that don't need a real database.
type MemoryStore struct {
	mu    sync.Mutex
	tasks map[string]model.CaptchaTask
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tasks: make(map[string]model.CaptchaTask)}
}

func (s *MemoryStore) Create(ctx context.Context, task *model.CaptchaTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[task.UUID] = *task
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, uuid string) (*model.CaptchaTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[uuid]
	if !ok {
		return nil, ErrNotFound
	}
	return &t, nil
}

func (s *MemoryStore) List(ctx context.Context, filter ListFilter) ([]model.CaptchaTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []model.CaptchaTask
	for _, t := range s.tasks {
		if filter.Status != "" && t.Status != filter.Status {
			continue
		}
		if filter.Domain != "" && t.Domain != filter.Domain {
			continue
		}
		matched = append(matched, t)
	}

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].Priority != matched[j].Priority {
			return matched[i].Priority > matched[j].Priority
		}
		return matched[i].CreatedAt.Before(matched[j].CreatedAt)
	})

	start := filter.Offset
	if start > len(matched) {
		start = len(matched)
	}
	end := len(matched)
	if filter.Limit > 0 && start+filter.Limit < end {
		end = start + filter.Limit
	}
	return matched[start:end], nil
}

func (s *MemoryStore) Assign(ctx context.Context, uuid, operatorID string, now time.Time) (*model.CaptchaTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[uuid]
	if !ok {
		return nil, ErrNotFound
	}
	if !t.IsAssignable(now) {
		return nil, ErrAlreadyAssigned
	}
	t.Status = model.CaptchaAssigned
	t.AssignedTo = operatorID
	t.UpdatedAt = now
	s.tasks[uuid] = t
	out := t
	return &out, nil
}

func (s *MemoryStore) Update(ctx context.Context, task *model.CaptchaTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[task.UUID]; !ok {
		return ErrNotFound
	}
	s.tasks[task.UUID] = *task
	return nil
}

func (s *MemoryStore) ListExpirable(ctx context.Context, now time.Time) ([]model.CaptchaTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []model.CaptchaTask
	for _, t := range s.tasks {
		if t.IsExpired(now) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *MemoryStore) Close() error { return nil }
