// Package redis provides a Redis-backed QuotaLedger for quoterouter.
//
// Each (tier key, period) counter is a plain Redis integer. Reservation is an
// atomic Lua check-and-increment, which makes the ledger safe to share across
// instances. Counters expire on their own a few months after creation.
package redis

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/ineyio/quoterouter"
)

const defaultCounterTTL = 100 * 24 * time.Hour

// Store is a Redis-backed QuotaLedger.
type Store struct {
	client       goredis.Cmdable
	keyPrefix    string
	counterTTL   time.Duration
	defaultLimit int64

	mu     sync.RWMutex
	limits map[string]int64
}

var (
	_ quoterouter.QuotaLedger   = (*Store)(nil)
	_ quoterouter.QuotaLimiter  = (*Store)(nil)
	_ quoterouter.QuotaReporter = (*Store)(nil)
)

// Option configures Store.
type Option func(*Store)

// WithKeyPrefix sets the Redis key prefix (default "quoterouter:quota:").
func WithKeyPrefix(prefix string) Option {
	return func(s *Store) { s.keyPrefix = prefix }
}

// WithCounterTTL sets how long a period counter is kept (default 100 days).
func WithCounterTTL(ttl time.Duration) Option {
	return func(s *Store) { s.counterTTL = ttl }
}

// WithDefaultLimit sets the limit used for tier keys without SetLimit (default 50).
func WithDefaultLimit(limit int64) Option {
	return func(s *Store) { s.defaultLimit = limit }
}

// New creates a new Redis-backed QuotaLedger.
// The client must be a connected *goredis.Client or *goredis.ClusterClient.
func New(client goredis.Cmdable, opts ...Option) *Store {
	s := &Store{
		client:       client,
		keyPrefix:    "quoterouter:quota:",
		counterTTL:   defaultCounterTTL,
		defaultLimit: quoterouter.DefaultMonthlyLimit,
		limits:       make(map[string]int64),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) counterKey(tierKey, periodID string) string {
	return s.keyPrefix + tierKey + ":" + periodID
}

// reserveScript is a Lua script for atomic reserve.
// KEYS[1] = counter key
// ARGV[1] = limit
// ARGV[2] = ttl (seconds)
//
// Returns:
//
//	1 = reserved OK
//	0 = limit reached
var reserveScript = goredis.NewScript(`
local counter_key = KEYS[1]
local limit = tonumber(ARGV[1])
local ttl = tonumber(ARGV[2])

local used = tonumber(redis.call("GET", counter_key) or "0")
if used >= limit then
    return 0
end

local n = redis.call("INCR", counter_key)
if n == 1 then
    redis.call("EXPIRE", counter_key, ttl)
end
return 1
`)

// SetLimit configures the monthly limit for a tier key.
func (s *Store) SetLimit(tierKey string, limit int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.limits[tierKey] = limit
}

func (s *Store) limit(tierKey string) int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if l, ok := s.limits[tierKey]; ok {
		return l
	}
	return s.defaultLimit
}

// TryReserve consumes one call if the period is below its limit.
func (s *Store) TryReserve(ctx context.Context, tierKey, periodID string) (bool, error) {
	result, err := reserveScript.Run(ctx, s.client,
		[]string{s.counterKey(tierKey, periodID)},
		s.limit(tierKey), int64(s.counterTTL/time.Second),
	).Int64()
	if err != nil {
		return false, fmt.Errorf("quoterouter/redis: reserve: %w", err)
	}

	switch result {
	case 1:
		return true, nil
	case 0:
		return false, nil
	default:
		return false, fmt.Errorf("quoterouter/redis: unexpected reserve result: %d", result)
	}
}

// Remaining returns the calls left in the period.
func (s *Store) Remaining(ctx context.Context, tierKey, periodID string) (int64, error) {
	p, err := s.Usage(ctx, tierKey, periodID)
	if err != nil {
		return 0, err
	}
	return p.Remaining(), nil
}

// Usage returns the counter for the period.
func (s *Store) Usage(ctx context.Context, tierKey, periodID string) (quoterouter.QuotaPeriod, error) {
	val, err := s.client.Get(ctx, s.counterKey(tierKey, periodID)).Result()
	if err != nil && err != goredis.Nil {
		return quoterouter.QuotaPeriod{}, fmt.Errorf("quoterouter/redis: usage: %w", err)
	}

	var used int64
	if err == nil {
		used, err = strconv.ParseInt(val, 10, 64)
		if err != nil {
			return quoterouter.QuotaPeriod{}, fmt.Errorf("quoterouter/redis: usage: parse counter: %w", err)
		}
	}

	return quoterouter.QuotaPeriod{
		PeriodID:  periodID,
		TierKey:   tierKey,
		CallsUsed: used,
		Limit:     s.limit(tierKey),
	}, nil
}
