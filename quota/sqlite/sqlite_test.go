package sqlite_test

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	quotasqlite "github.com/ineyio/quoterouter/quota/sqlite"
)

func openStore(t *testing.T, path string) *quotasqlite.Store {
	t.Helper()
	s, err := quotasqlite.Open(context.Background(), path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestTryReserve_StopsAtLimit(t *testing.T) {
	s := openStore(t, filepath.Join(t.TempDir(), "quota.db"))
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		ok, err := s.TryReserve(ctx, "free", "2026-03")
		require.NoError(t, err)
		require.True(t, ok, "reserve %d", i)
	}

	ok, err := s.TryReserve(ctx, "free", "2026-03")
	require.NoError(t, err)
	assert.False(t, ok)

	p, err := s.Usage(ctx, "free", "2026-03")
	require.NoError(t, err)
	assert.Equal(t, int64(50), p.CallsUsed)
	assert.Equal(t, int64(0), p.Remaining())
}

func TestTryReserve_PeriodRollover(t *testing.T) {
	s := openStore(t, filepath.Join(t.TempDir(), "quota.db"))
	ctx := context.Background()
	s.SetLimit("free", 1)

	ok, err := s.TryReserve(ctx, "free", "2026-03")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = s.TryReserve(ctx, "free", "2026-03")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.TryReserve(ctx, "free", "2026-04")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCountersSurviveReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quota.db")
	ctx := context.Background()

	first, err := quotasqlite.Open(ctx, path)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		ok, err := first.TryReserve(ctx, "guest", "2026-03")
		require.NoError(t, err)
		require.True(t, ok)
	}
	require.NoError(t, first.Close())

	second := openStore(t, path)
	remaining, err := second.Remaining(ctx, "guest", "2026-03")
	require.NoError(t, err)
	assert.Equal(t, int64(47), remaining)
}

func TestPrune(t *testing.T) {
	s := openStore(t, filepath.Join(t.TempDir(), "quota.db"))
	ctx := context.Background()

	for _, period := range []string{"2025-12", "2026-01", "2026-02"} {
		ok, err := s.TryReserve(ctx, "free", period)
		require.NoError(t, err)
		require.True(t, ok)
	}

	n, err := s.Prune(ctx, "2026-01")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	p, err := s.Usage(ctx, "free", "2025-12")
	require.NoError(t, err)
	assert.Equal(t, int64(0), p.CallsUsed)

	p, err = s.Usage(ctx, "free", "2026-01")
	require.NoError(t, err)
	assert.Equal(t, int64(1), p.CallsUsed)
}

func TestTryReserve_ConcurrentNeverExceedsLimit(t *testing.T) {
	s := openStore(t, filepath.Join(t.TempDir(), "quota.db"))
	ctx := context.Background()
	s.SetLimit("free", 10)

	var wg sync.WaitGroup
	var granted atomic.Int64
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.TryReserve(ctx, "free", "2026-03")
			if err == nil && ok {
				granted.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(10), granted.Load())
}

func TestZeroLimitRefuses(t *testing.T) {
	s := openStore(t, filepath.Join(t.TempDir(), "quota.db"))
	s.SetLimit("guest", 0)

	ok, err := s.TryReserve(context.Background(), "guest", "2026-03")
	require.NoError(t, err)
	assert.False(t, ok)
}
