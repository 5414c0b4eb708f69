// Package postgres provides a PostgreSQL-backed QuotaLedger for quoterouter.
//
// One row per (tier key, period) holds the calls used. Reservation is a single
// conditional UPSERT, which makes the ledger safe for multi-instance
// deployments and durable across restarts.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ineyio/quoterouter"
)

// Store is a PostgreSQL-backed QuotaLedger.
type Store struct {
	pool         *pgxpool.Pool
	tablePrefix  string
	defaultLimit int64

	mu     sync.RWMutex
	limits map[string]int64
}

var (
	_ quoterouter.QuotaLedger   = (*Store)(nil)
	_ quoterouter.QuotaLimiter  = (*Store)(nil)
	_ quoterouter.QuotaReporter = (*Store)(nil)
	_ quoterouter.QuotaPruner   = (*Store)(nil)
)

// Option configures Store.
type Option func(*Store)

// WithTablePrefix sets the table name prefix (default "quoterouter_").
func WithTablePrefix(prefix string) Option {
	return func(s *Store) { s.tablePrefix = prefix }
}

// WithDefaultLimit sets the limit used for tier keys without SetLimit (default 50).
func WithDefaultLimit(limit int64) Option {
	return func(s *Store) { s.defaultLimit = limit }
}

// New creates a new PostgreSQL-backed QuotaLedger.
func New(pool *pgxpool.Pool, opts ...Option) *Store {
	s := &Store{
		pool:         pool,
		tablePrefix:  "quoterouter_",
		defaultLimit: quoterouter.DefaultMonthlyLimit,
		limits:       make(map[string]int64),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) periodsTable() string { return s.tablePrefix + "quota_periods" }

// EnsureSchema creates the required table if it doesn't exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	q := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			tier_key TEXT NOT NULL,
			period_id TEXT NOT NULL,
			calls_used BIGINT NOT NULL DEFAULT 0,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (tier_key, period_id)
		);
	`, s.periodsTable())
	_, err := s.pool.Exec(ctx, q)
	if err != nil {
		return fmt.Errorf("quoterouter/postgres: ensure schema: %w", err)
	}
	return nil
}

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
// The row lock taken by the UPSERT serializes concurrent reservers.
func (s *Store) TryReserve(ctx context.Context, tierKey, periodID string) (bool, error) {
	limit := s.limit(tierKey)
	if limit <= 0 {
		return false, nil
	}

	var used int64
	err := s.pool.QueryRow(ctx,
		fmt.Sprintf(`INSERT INTO %s AS q (tier_key, period_id, calls_used)
			VALUES ($1, $2, 1)
			ON CONFLICT (tier_key, period_id) DO UPDATE
				SET calls_used = q.calls_used + 1, updated_at = now()
				WHERE q.calls_used < $3
			RETURNING q.calls_used`, s.periodsTable()),
		tierKey, periodID, limit,
	).Scan(&used)

	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("quoterouter/postgres: reserve: %w", err)
	}
	return true, nil
}

// Remaining returns the calls left in the period.
func (s *Store) Remaining(ctx context.Context, tierKey, periodID string) (int64, error) {
	p, err := s.Usage(ctx, tierKey, periodID)
	if err != nil {
		return 0, err
	}
	return p.Remaining(), nil
}

// Usage returns the counter for the period; a missing row reads as unused.
func (s *Store) Usage(ctx context.Context, tierKey, periodID string) (quoterouter.QuotaPeriod, error) {
	var used int64
	err := s.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT calls_used FROM %s WHERE tier_key = $1 AND period_id = $2`, s.periodsTable()),
		tierKey, periodID,
	).Scan(&used)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return quoterouter.QuotaPeriod{}, fmt.Errorf("quoterouter/postgres: usage: %w", err)
	}

	return quoterouter.QuotaPeriod{
		PeriodID:  periodID,
		TierKey:   tierKey,
		CallsUsed: used,
		Limit:     s.limit(tierKey),
	}, nil
}

// Prune removes periods before beforePeriodID.
func (s *Store) Prune(ctx context.Context, beforePeriodID string) (int, error) {
	tag, err := s.pool.Exec(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE period_id < $1`, s.periodsTable()),
		beforePeriodID,
	)
	if err != nil {
		return 0, fmt.Errorf("quoterouter/postgres: prune: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
