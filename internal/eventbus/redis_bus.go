package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/titanscrape/titan/internal/logging"
	"github.com/titanscrape/titan/internal/model"
)

// RedisBus is the standard-deployment Bus backend: a thin wrapper over
// Redis pub/sub, preserving Redis's own per-channel delivery order to each
// subscribing connection (spec.md §5).
type RedisBus struct {
	client *redis.Client
}

// NewRedisBus builds a Bus backed by client.
func NewRedisBus(client *redis.Client) *RedisBus {
	return &RedisBus{client: client}
}

func (b *RedisBus) Publish(ctx context.Context, channel string, event model.Event) error {
	raw, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("eventbus: encode event: %w", err)
	}
	if err := b.client.Publish(ctx, channel, raw).Err(); err != nil {
		return fmt.Errorf("eventbus: publish on %s: %w", channel, err)
	}
	return nil
}

func (b *RedisBus) Subscribe(ctx context.Context, channel string) (<-chan model.Event, func(), error) {
	return b.SubscribeFiltered(ctx, channel, "", nil)
}

func (b *RedisBus) SubscribeFiltered(ctx context.Context, channel string, domain string, eventTypes []model.EventType) (<-chan model.Event, func(), error) {
	pubsub := b.client.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		return nil, nil, fmt.Errorf("eventbus: subscribe to %s: %w", channel, err)
	}

	out := make(chan model.Event, MemorySubscriberBuffer)
	done := make(chan struct{})

	go func() {
		defer close(out)
		raw := pubsub.Channel()
		for {
			select {
			case msg, ok := <-raw:
				if !ok {
					return
				}
				var event model.Event
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					logging.Warn(logging.EventBus, "dropping undecodable event",
						zap.String("channel", channel), zap.Error(err))
					continue
				}
				if !MatchesFilter(event, domain, eventTypes) {
					continue
				}
				select {
				case out <- event:
				case <-done:
					return
				}
			case <-done:
				return
			}
		}
	}()

	unsubscribe := func() {
		close(done)
		_ = pubsub.Close()
	}
	return out, unsubscribe, nil
}

func (b *RedisBus) WaitFor(ctx context.Context, channel string, predicate Predicate, timeout time.Duration) (*model.Event, error) {
	stream, unsubscribe, err := b.Subscribe(ctx, channel)
	if err != nil {
		return nil, err
	}
	defer unsubscribe()

	deadline := time.After(timeout)
	for {
		select {
		case event, ok := <-stream:
			if !ok {
				return nil, nil
			}
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
