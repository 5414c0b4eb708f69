//go:build integration

package redis_test

import (
	"context"
	"os"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ineyio/quoterouter"
	cacheredis "github.com/ineyio/quoterouter/cache/redis"
)

func newTestStore(t *testing.T, opts ...cacheredis.Option) *cacheredis.Store {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	client := goredis.NewClient(&goredis.Options{Addr: addr})
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Fatalf("redis not available at %s: %v", addr, err)
	}

	prefix := "test:" + t.Name() + ":"
	t.Cleanup(func() {
		iter := client.Scan(ctx, 0, prefix+"*", 100).Iterator()
		for iter.Next(ctx) {
			client.Del(ctx, iter.Val())
		}
		client.Close()
	})
	return cacheredis.New(client, append([]cacheredis.Option{cacheredis.WithKeyPrefix(prefix)}, opts...)...)
}

func maersk() []quoterouter.Quote {
	return []quoterouter.Quote{{
		CarrierName:     "Maersk",
		TransitTime:     "28-32 days",
		TotalCost:       decimal.NewFromInt(2200),
		Currency:        "USD",
		ServiceProvider: "carrierapi",
	}}
}

func TestPutGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	_, err := s.Put(ctx, "fcl:k", maersk(), now)
	require.NoError(t, err)

	got, ok, err := s.Get(ctx, "fcl:k", now.Add(time.Minute))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Maersk", got.Quotes[0].CarrierName)
	assert.True(t, got.Quotes[0].TotalCost.Equal(decimal.NewFromInt(2200)))
	assert.True(t, got.ExpiresAt.Equal(now.Add(24*time.Hour)))
}

func TestLogicalExpiryIsMiss(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	_, err := s.Put(ctx, "fcl:k", maersk(), now)
	require.NoError(t, err)

	_, ok, err := s.Get(ctx, "fcl:k", now.Add(25*time.Hour))
	require.NoError(t, err)
	assert.False(t, ok)

	stats, err := s.Stats(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Total)
}

func TestPurgeAndStats(t *testing.T) {
	s := newTestStore(t, cacheredis.WithTTL(time.Hour))
	ctx := context.Background()
	now := time.Now().UTC()

	_, err := s.Put(ctx, "fcl:old", maersk(), now.Add(-2*time.Hour))
	require.NoError(t, err)
	_, err = s.Put(ctx, "fcl:new", maersk(), now)
	require.NoError(t, err)

	stats, err := s.Stats(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.Expired)
	assert.Equal(t, 1, stats.Active)

	n, err := s.Purge(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, ok, err := s.Get(ctx, "fcl:new", now)
	require.NoError(t, err)
	assert.True(t, ok)
}
