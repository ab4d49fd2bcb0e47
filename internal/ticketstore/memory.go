package ticketstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/titanscrape/titan/internal/model"
)

// MemoryStore is an in-process Store used by tests and single-worker
// deployments (spec.md §4.5 "in-memory for tests").
type MemoryStore struct {
	mu      sync.RWMutex
	tickets map[string]model.GoldenTicket
}

// NewMemoryStore builds an empty in-memory ticket store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tickets: make(map[string]model.GoldenTicket)}
}

func (s *MemoryStore) Get(ctx context.Context, domain string) (*model.GoldenTicket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tickets[domain]
	if !ok {
		return nil, nil
	}
	if t.IsExpired(time.Now()) {
		return nil, nil
	}
	return &t, nil
}

func (s *MemoryStore) Set(ctx context.Context, ticket model.GoldenTicket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tickets[ticket.Domain] = ticket
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, domain string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tickets, domain)
	return nil
}

func (s *MemoryStore) Extend(ctx context.Context, domain string, delta time.Duration, maxTTL time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tickets[domain]
	if !ok {
		return nil
	}
	t.TTLSeconds += int(delta.Seconds())
	t.ClampTTL(int(maxTTL.Seconds()))
	s.tickets[domain] = t
	return nil
}

func (s *MemoryStore) GetAllDomains(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	domains := make([]string, 0, len(s.tickets))
	for d := range s.tickets {
		domains = append(domains, d)
	}
	sort.Strings(domains)
	return domains, nil
}
