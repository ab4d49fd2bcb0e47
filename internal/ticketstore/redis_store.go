package ticketstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/titanscrape/titan/internal/model"
)

// RedisStore is the standard-deployment Store backend: shared across
// workers, TTL enforced by Redis eviction and, defensively, by read-time
// expiry checks (spec.md §4.5).
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore builds a Store backed by client, namespacing keys under
// prefix (DefaultKeyPrefix if empty).
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) Get(ctx context.Context, domain string) (*model.GoldenTicket, error) {
	raw, err := s.client.Get(ctx, key(s.prefix, domain)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ticketstore: get %s: %w", domain, err)
	}
	var ticket model.GoldenTicket
	if err := json.Unmarshal([]byte(raw), &ticket); err != nil {
		return nil, fmt.Errorf("ticketstore: decode %s: %w", domain, err)
	}
	if ticket.IsExpired(time.Now()) {
		return nil, nil
	}
	return &ticket, nil
}

func (s *RedisStore) Set(ctx context.Context, ticket model.GoldenTicket) error {
	raw, err := json.Marshal(ticket)
	if err != nil {
		return fmt.Errorf("ticketstore: encode %s: %w", ticket.Domain, err)
	}
	ttl := time.Duration(ticket.TTLSeconds) * time.Second
	if err := s.client.Set(ctx, key(s.prefix, ticket.Domain), raw, ttl).Err(); err != nil {
		return fmt.Errorf("ticketstore: set %s: %w", ticket.Domain, err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, domain string) error {
	if err := s.client.Del(ctx, key(s.prefix, domain)).Err(); err != nil {
		return fmt.Errorf("ticketstore: delete %s: %w", domain, err)
	}
	return nil
}

func (s *RedisStore) Extend(ctx context.Context, domain string, delta time.Duration, maxTTL time.Duration) error {
	ticket, err := s.Get(ctx, domain)
	if err != nil {
		return err
	}
	if ticket == nil {
		return nil
	}
	ticket.TTLSeconds += int(delta.Seconds())
	ticket.ClampTTL(int(maxTTL.Seconds()))
	return s.Set(ctx, *ticket)
}

func (s *RedisStore) GetAllDomains(ctx context.Context) ([]string, error) {
	pattern := s.prefix + ":*"
	var domains []string
	iter := s.client.Scan(ctx, 0, pattern, 0).Iterator()
	prefixLen := len(s.prefix) + 1
	for iter.Next(ctx) {
		k := iter.Val()
		if len(k) > prefixLen {
			domains = append(domains, k[prefixLen:])
		}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("ticketstore: scan domains: %w", err)
	}
	return domains, nil
}
