package eventbus

import (
	"context"
	"sync"
	"time"

	"github.com/titanscrape/titan/internal/model"
)

// MemorySubscriberBuffer bounds each subscriber's inbox; a slow consumer
// drops events rather than blocking publishers, matching the bus's
// at-most-once delivery guarantee for a crashed subscriber.
const MemorySubscriberBuffer = 64

type memorySubscriber struct {
	ch     chan model.Event
	domain string
	types  []model.EventType
}

// MemoryBus is an in-process Bus used by tests and single-worker
// deployments. Events are delivered in publication order per channel to
// each subscriber, matching spec.md §5's ordering guarantee.
type MemoryBus struct {
	mu          sync.RWMutex
	subscribers map[string]map[*memorySubscriber]struct{}
}

// NewMemoryBus builds an empty in-memory event bus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subscribers: make(map[string]map[*memorySubscriber]struct{})}
}

func (b *MemoryBus) Publish(ctx context.Context, channel string, event model.Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for sub := range b.subscribers[channel] {
		if !MatchesFilter(event, sub.domain, sub.types) {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			// Subscriber inbox full: drop rather than block the publisher.
		}
	}
	return nil
}

func (b *MemoryBus) Subscribe(ctx context.Context, channel string) (<-chan model.Event, func(), error) {
	return b.SubscribeFiltered(ctx, channel, "", nil)
}

func (b *MemoryBus) SubscribeFiltered(ctx context.Context, channel string, domain string, eventTypes []model.EventType) (<-chan model.Event, func(), error) {
	sub := &memorySubscriber{
		ch:     make(chan model.Event, MemorySubscriberBuffer),
		domain: domain,
		types:  eventTypes,
	}

	b.mu.Lock()
	if b.subscribers[channel] == nil {
		b.subscribers[channel] = make(map[*memorySubscriber]struct{})
	}
	b.subscribers[channel][sub] = struct{}{}
	b.mu.Unlock()

	unsubscribe := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subscribers[channel], sub)
		if len(b.subscribers[channel]) == 0 {
			delete(b.subscribers, channel)
		}
	}
	return sub.ch, unsubscribe, nil
}

func (b *MemoryBus) WaitFor(ctx context.Context, channel string, predicate Predicate, timeout time.Duration) (*model.Event, error) {
	stream, unsubscribe, err := b.Subscribe(ctx, channel)
	if err != nil {
		return nil, err
	}
	defer unsubscribe()

	deadline := time.After(timeout)
	for {
		select {
		case event := <-stream:
			if predicate(event) {
				return &event, nil
			}
		case <-deadline:
			return nil, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}
