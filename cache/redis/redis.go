// Package redis provides a Redis-backed CacheStore for quoterouter.
//
// Each entry is a JSON document under "<prefix>entry:<fingerprint>" with a
// Redis TTL, and a sorted set "<prefix>index" scores every fingerprint by its
// expiry in unix milliseconds for Stats and Purge.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/ineyio/quoterouter"
)

// Store is a Redis-backed CacheStore shared by every instance.
type Store struct {
	client    goredis.Cmdable
	keyPrefix string
	ttl       time.Duration
}

var _ quoterouter.CacheStore = (*Store)(nil)

// Option configures Store.
type Option func(*Store)

// WithKeyPrefix sets the Redis key prefix (default "quoterouter:cache:").
func WithKeyPrefix(prefix string) Option {
	return func(s *Store) { s.keyPrefix = prefix }
}

// WithTTL sets the entry lifetime (default 24h).
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) { s.ttl = ttl }
}

// New creates a Redis-backed CacheStore.
func New(client goredis.Cmdable, opts ...Option) *Store {
	s := &Store{
		client:    client,
		keyPrefix: "quoterouter:cache:",
		ttl:       quoterouter.DefaultCacheTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) entryKey(key quoterouter.FingerprintKey) string {
	return s.keyPrefix + "entry:" + string(key)
}

func (s *Store) indexKey() string { return s.keyPrefix + "index" }

type document struct {
	Quotes    []quoterouter.Quote `json:"quotes"`
	CachedAt  time.Time           `json:"cached_at"`
	ExpiresAt time.Time           `json:"expires_at"`
}

// Get returns a live entry, deleting it instead when it has expired.
func (s *Store) Get(ctx context.Context, key quoterouter.FingerprintKey, now time.Time) (quoterouter.CacheEntry, bool, error) {
	raw, err := s.client.Get(ctx, s.entryKey(key)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return quoterouter.CacheEntry{}, false, nil
	}
	if err != nil {
		return quoterouter.CacheEntry{}, false, fmt.Errorf("quoterouter/redis: get: %w", err)
	}

	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return quoterouter.CacheEntry{}, false, fmt.Errorf("quoterouter/redis: decode entry: %w", err)
	}

	entry := quoterouter.CacheEntry{
		Key:        key,
		Quotes:     doc.Quotes,
		CachedAt:   doc.CachedAt.UTC(),
		ExpiresAt:  doc.ExpiresAt.UTC(),
		Provenance: quoterouter.ProvenanceLive,
	}
	if entry.Expired(now) {
		if err := s.evict(ctx, key); err != nil {
			return quoterouter.CacheEntry{}, false, err
		}
		return quoterouter.CacheEntry{}, false, nil
	}
	return entry, true, nil
}

// Put stores quotes under key, replacing any previous entry.
func (s *Store) Put(ctx context.Context, key quoterouter.FingerprintKey, quotes []quoterouter.Quote, now time.Time) (quoterouter.CacheEntry, error) {
	if len(quotes) == 0 {
		return quoterouter.CacheEntry{}, fmt.Errorf("%w: cannot cache an empty quote set", quoterouter.ErrInvalidRequest)
	}
	entry := quoterouter.NewCacheEntry(key, quotes, now, s.ttl)

	raw, err := json.Marshal(document{Quotes: entry.Quotes, CachedAt: entry.CachedAt, ExpiresAt: entry.ExpiresAt})
	if err != nil {
		return quoterouter.CacheEntry{}, fmt.Errorf("quoterouter/redis: encode entry: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Set(ctx, s.entryKey(key), raw, entry.ExpiresAt.Sub(entry.CachedAt))
		pipe.ZAdd(ctx, s.indexKey(), goredis.Z{
			Score:  float64(entry.ExpiresAt.UnixMilli()),
			Member: string(key),
		})
		return nil
	})
	if err != nil {
		if isOutOfMemory(err) {
			return quoterouter.CacheEntry{}, fmt.Errorf("%w: %v", quoterouter.ErrCacheFull, err)
		}
		return quoterouter.CacheEntry{}, fmt.Errorf("quoterouter/redis: put: %w", err)
	}
	return entry, nil
}

// Purge removes entries that expired before olderThan.
func (s *Store) Purge(ctx context.Context, olderThan time.Time) (int, error) {
	members, err := s.client.ZRangeByScore(ctx, s.indexKey(), &goredis.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprintf("(%d", olderThan.UnixMilli()),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("quoterouter/redis: purge: %w", err)
	}
	if len(members) == 0 {
		return 0, nil
	}

	keys := make([]string, len(members))
	zmembers := make([]any, len(members))
	for i, m := range members {
		keys[i] = s.entryKey(quoterouter.FingerprintKey(m))
		zmembers[i] = m
	}

	var removed *goredis.IntCmd
	_, err = s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Del(ctx, keys...)
		removed = pipe.ZRem(ctx, s.indexKey(), zmembers...)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("quoterouter/redis: purge: %w", err)
	}
	return int(removed.Val()), nil
}

// Stats summarizes the index. CachedAt bounds are derived from expiry scores
// and the configured TTL.
func (s *Store) Stats(ctx context.Context, now time.Time) (quoterouter.CacheStats, error) {
	var (
		total, expired *goredis.IntCmd
		first, last    *goredis.ZSliceCmd
	)
	_, err := s.client.Pipelined(ctx, func(pipe goredis.Pipeliner) error {
		total = pipe.ZCard(ctx, s.indexKey())
		expired = pipe.ZCount(ctx, s.indexKey(), "-inf", fmt.Sprintf("(%d", now.UnixMilli()))
		first = pipe.ZRangeWithScores(ctx, s.indexKey(), 0, 0)
		last = pipe.ZRangeWithScores(ctx, s.indexKey(), -1, -1)
		return nil
	})
	if err != nil {
		return quoterouter.CacheStats{}, fmt.Errorf("quoterouter/redis: stats: %w", err)
	}

	stats := quoterouter.CacheStats{
		Total:   int(total.Val()),
		Expired: int(expired.Val()),
	}
	stats.Active = stats.Total - stats.Expired
	if z := first.Val(); len(z) == 1 {
		stats.Oldest = time.UnixMilli(int64(z[0].Score)).UTC().Add(-s.ttl)
	}
	if z := last.Val(); len(z) == 1 {
		stats.Newest = time.UnixMilli(int64(z[0].Score)).UTC().Add(-s.ttl)
	}
	return stats, nil
}

func (s *Store) evict(ctx context.Context, key quoterouter.FingerprintKey) error {
	_, err := s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Del(ctx, s.entryKey(key))
		pipe.ZRem(ctx, s.indexKey(), string(key))
		return nil
	})
	if err != nil {
		return fmt.Errorf("quoterouter/redis: evict: %w", err)
	}
	return nil
}

// isOutOfMemory matches the OOM reply Redis sends when maxmemory is reached
// under a noeviction policy.
func isOutOfMemory(err error) bool {
	return strings.HasPrefix(err.Error(), "OOM ")
}
