package ticketstore

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

func newTestRedisStore(t *testing.T) *RedisStore {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewRedisStore(client, "")
}

func sampleTicket(domain string, ttl int) model.GoldenTicket {
	return model.GoldenTicket{
		Domain:      domain,
		SourceURL:   "https://" + domain + "/",
		HarvestedAt: time.Now(),
		TTLSeconds:  ttl,
		Cookies:     []model.Cookie{{Name: "cf_clearance", Value: "abc"}},
	}
}

func runStoreContract(t *testing.T, store Store) {
	ctx := context.Background()

	got, err := store.Get(ctx, "example.com")
	require.NoError(t, err)
	assert.Nil(t, got)

	ticket := sampleTicket("example.com", 900)
	require.NoError(t, store.Set(ctx, ticket))

	got, err = store.Get(ctx, "example.com")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "example.com", got.Domain)
	assert.True(t, got.HasCloudflareClearance())

	domains, err := store.GetAllDomains(ctx)
	require.NoError(t, err)
	assert.Contains(t, domains, "example.com")

	require.NoError(t, store.Delete(ctx, "example.com"))
	got, err = store.Get(ctx, "example.com")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMemoryStore_Contract(t *testing.T) {
	runStoreContract(t, NewMemoryStore())
}

func TestRedisStore_Contract(t *testing.T) {
	runStoreContract(t, newTestRedisStore(t))
}

func TestMemoryStore_ReadTimeExpiry(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	expired := sampleTicket("stale.com", 1)
	expired.HarvestedAt = time.Now().Add(-time.Hour)
	require.NoError(t, store.Set(ctx, expired))

	got, err := store.Get(ctx, "stale.com")
	require.NoError(t, err)
	assert.Nil(t, got, "ticket past its ttl must never be returned")
}

func TestMemoryStore_Extend_ClampsToMaxTTL(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	ticket := sampleTicket("clamp.com", 3000)
	require.NoError(t, store.Set(ctx, ticket))
	require.NoError(t, store.Extend(ctx, "clamp.com", time.Hour, time.Hour))

	got, err := store.Get(ctx, "clamp.com")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.LessOrEqual(t, got.TTLSeconds, 3600)
}

func TestRedisStore_OverwriteSemantics(t *testing.T) {
	store := newTestRedisStore(t)
	ctx := context.Background()

	first := sampleTicket("over.com", 900)
	first.Cookies = []model.Cookie{{Name: "session", Value: "v1"}}
	require.NoError(t, store.Set(ctx, first))

	second := sampleTicket("over.com", 900)
	second.Cookies = []model.Cookie{{Name: "session", Value: "v2"}}
	require.NoError(t, store.Set(ctx, second))

	got, err := store.Get(ctx, "over.com")
	require.NoError(t, err)
	require.Len(t, got.Cookies, 1)
	assert.Equal(t, "v2", got.Cookies[0].Value)
}
