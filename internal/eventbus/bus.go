// Package eventbus implements the named-channel publish/subscribe
// abstraction used to coordinate CAPTCHA solving and HITL sessions across
// workers and operator-facing clients (spec.md §4.5).
package eventbus

import (
	"context"
	"time"

	"github.com/titanscrape/titan/internal/model"
)

// Predicate filters events for WaitFor.
type Predicate func(model.Event) bool

// Bus is the pluggable publish/subscribe contract. Implementations must
// preserve per-channel publication order to each subscriber (spec.md §5).
type Bus interface {
	// Publish sends event on channel to all current subscribers.
	Publish(ctx context.Context, channel string, event model.Event) error
	// Subscribe returns a stream of every event published on channel from
	// this point forward, plus an unsubscribe func to release it.
	Subscribe(ctx context.Context, channel string) (<-chan model.Event, func(), error)
	// SubscribeFiltered is Subscribe restricted to events matching domain
	// (if non-empty) and one of eventTypes (if non-empty).
	SubscribeFiltered(ctx context.Context, channel string, domain string, eventTypes []model.EventType) (<-chan model.Event, func(), error)
	// WaitFor blocks until an event matching predicate arrives on channel,
	// the timeout elapses (returns nil, nil), or ctx is cancelled.
	WaitFor(ctx context.Context, channel string, predicate Predicate, timeout time.Duration) (*model.Event, error)
}

// DefaultChannel is the shared notifications channel name used when a
// deployment does not need per-domain channel separation (spec.md §6
// "Event-stream protocol ... one shared per deployment").
const DefaultChannel = "captcha:events"

// MatchesFilter reports whether event passes the domain/type filter used
// by SubscribeFiltered implementations.
func MatchesFilter(event model.Event, domain string, eventTypes []model.EventType) bool {
	if domain != "" && event.Domain != domain {
		return false
	}
	if len(eventTypes) == 0 {
		return true
	}
	for _, t := range eventTypes {
		if event.Type == t {
			return true
		}
	}
	return false
}
