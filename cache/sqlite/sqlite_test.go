package sqlite_test

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ineyio/quoterouter"
	cachesqlite "github.com/ineyio/quoterouter/cache/sqlite"
)

var t0 = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func quotes(carrier string, cost int64) []quoterouter.Quote {
	return []quoterouter.Quote{{
		CarrierName:     carrier,
		TransitTime:     "28-32 days",
		TotalCost:       decimal.NewFromInt(cost),
		Currency:        "USD",
		ServiceProvider: "carrierapi",
	}}
}

func openStore(t *testing.T, path string, opts ...cachesqlite.Option) *cachesqlite.Store {
	t.Helper()
	s, err := cachesqlite.Open(context.Background(), path, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_PutGetRoundTrip(t *testing.T) {
	s := openStore(t, filepath.Join(t.TempDir(), "cache.db"))
	ctx := context.Background()

	in := append(quotes("Maersk", 2200), quotes("MSC", 2350)...)
	_, err := s.Put(ctx, "fcl:k", in, t0)
	require.NoError(t, err)

	got, ok, err := s.Get(ctx, "fcl:k", t0.Add(time.Hour))
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, got.Quotes, 2)
	assert.Equal(t, "Maersk", got.Quotes[0].CarrierName)
	assert.Equal(t, "MSC", got.Quotes[1].CarrierName)
	assert.True(t, got.Quotes[0].TotalCost.Equal(decimal.NewFromInt(2200)))
	assert.Equal(t, t0, got.CachedAt)
	assert.Equal(t, t0.Add(24*time.Hour), got.ExpiresAt)
	assert.Equal(t, quoterouter.ProvenanceLive, got.Provenance)
}

func TestStore_ExpiredIsMiss(t *testing.T) {
	s := openStore(t, filepath.Join(t.TempDir(), "cache.db"))
	ctx := context.Background()

	_, err := s.Put(ctx, "fcl:k", quotes("Maersk", 2200), t0)
	require.NoError(t, err)

	_, ok, err := s.Get(ctx, "fcl:k", t0.Add(25*time.Hour))
	require.NoError(t, err)
	assert.False(t, ok)

	stats, err := s.Stats(ctx, t0)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Total)
}

func TestStore_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	ctx := context.Background()

	first, err := cachesqlite.Open(ctx, path)
	require.NoError(t, err)
	_, err = first.Put(ctx, "air:k", quotes("Lufthansa Cargo", 900), t0)
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second := openStore(t, path)
	got, ok, err := second.Get(ctx, "air:k", t0.Add(time.Minute))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Lufthansa Cargo", got.Quotes[0].CarrierName)
}

func TestStore_PurgeAndStats(t *testing.T) {
	s := openStore(t, filepath.Join(t.TempDir(), "cache.db"), cachesqlite.WithTTL(time.Hour))
	ctx := context.Background()

	_, err := s.Put(ctx, "fcl:old", quotes("Maersk", 2200), t0)
	require.NoError(t, err)
	_, err = s.Put(ctx, "fcl:new", quotes("MSC", 2300), t0.Add(2*time.Hour))
	require.NoError(t, err)

	stats, err := s.Stats(ctx, t0.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.Active)
	assert.Equal(t, 1, stats.Expired)
	assert.Equal(t, t0, stats.Oldest)
	assert.Equal(t, t0.Add(2*time.Hour), stats.Newest)

	n, err := s.Purge(ctx, t0.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, ok, err := s.Get(ctx, "fcl:new", t0.Add(2*time.Hour))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestStore_PutRejectsEmpty(t *testing.T) {
	s := openStore(t, filepath.Join(t.TempDir(), "cache.db"))
	_, err := s.Put(context.Background(), "fcl:k", nil, t0)
	assert.ErrorIs(t, err, quoterouter.ErrInvalidRequest)
}

func TestStore_FullDatabaseReportsCacheFull(t *testing.T) {
	s := openStore(t, filepath.Join(t.TempDir(), "cache.db"),
		cachesqlite.WithMaxPageCount(32),
		cachesqlite.WithTTL(time.Hour),
	)
	ctx := context.Background()

	bulky := quotes(strings.Repeat("x", 16*1024), 1000)

	var fullErr error
	for i := 0; i < 100; i++ {
		if _, err := s.Put(ctx, quoterouter.FingerprintKey(fmt.Sprintf("fcl:%d", i)), bulky, t0); err != nil {
			fullErr = err
			break
		}
	}
	require.Error(t, fullErr)
	assert.ErrorIs(t, fullErr, quoterouter.ErrCacheFull)

	_, err := s.Purge(ctx, t0.Add(2*time.Hour))
	require.NoError(t, err)

	_, err = s.Put(ctx, "fcl:after-purge", bulky, t0.Add(2*time.Hour))
	assert.NoError(t, err)
}
