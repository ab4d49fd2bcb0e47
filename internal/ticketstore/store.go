// Package ticketstore implements the Ticket Store: a domain-scoped mapping
// to GoldenTicket with TTL enforced both by the backing store and at read
// time (spec.md §4.5).
package ticketstore

import (
	"context"
	"time"

	"github.com/titanscrape/titan/internal/model"
)

// Store is the pluggable contract named in spec.md §4.5 — "a Redis-backed
// store in the standard deployment, in-memory for tests". Implementations
// must enforce read-time expiry even if the backend has not yet evicted
// the key.
type Store interface {
	// Get returns the ticket for domain, or nil if none is cached or the
	// cached one has expired.
	Get(ctx context.Context, domain string) (*model.GoldenTicket, error)
	// Set stores ticket, overwriting any existing entry for its domain.
	Set(ctx context.Context, ticket model.GoldenTicket) error
	// Delete invalidates the ticket for domain, e.g. after it triggers a
	// blocked response (spec.md §4.2 "Ticket usage").
	Delete(ctx context.Context, domain string) error
	// Extend adds delta to the ticket's effective TTL, clamped to maxTTL.
	Extend(ctx context.Context, domain string, delta time.Duration, maxTTL time.Duration) error
	// GetAllDomains lists every domain with a live (store-level, not
	// necessarily read-time-fresh) entry, for introspection.
	GetAllDomains(ctx context.Context) ([]string, error)
}

// DefaultKeyPrefix is the default namespace prefix for ticket keys, matching
// the original's `<session_prefix>:<domain>` layout (SPEC_FULL.md).
const DefaultKeyPrefix = "captcha:session"

func key(prefix, domain string) string {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return prefix + ":" + domain
}
