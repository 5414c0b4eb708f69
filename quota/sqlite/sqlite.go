// Package sqlite provides a SQLite-backed QuotaLedger for quoterouter.
//
// Counters survive process restarts, which suits single-instance deployments
// that must not hand out a fresh monthly budget after every redeploy.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ineyio/quoterouter"
	"github.com/ineyio/quoterouter/internal/sqlitedb"
	"github.com/ineyio/quoterouter/quota/sqlite/migrations"
)

// Store is a SQLite-backed QuotaLedger.
type Store struct {
	db           *sql.DB
	defaultLimit int64
	clock        func() time.Time

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

// WithDefaultLimit sets the limit used for tier keys without SetLimit (default 50).
func WithDefaultLimit(limit int64) Option {
	return func(s *Store) { s.defaultLimit = limit }
}

// WithClock sets the time source for updated_at.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.clock = now }
}

// Open opens a SQLite quota ledger at path and applies embedded migrations.
func Open(ctx context.Context, path string, opts ...Option) (*Store, error) {
	db, err := sqlitedb.Open(ctx, path, "quota", migrations.FS, sqlitedb.Options{})
	if err != nil {
		return nil, fmt.Errorf("quoterouter/sqlite: %w", err)
	}
	s := &Store{
		db:           db,
		defaultLimit: quoterouter.DefaultMonthlyLimit,
		clock:        time.Now,
		limits:       make(map[string]int64),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
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
func (s *Store) TryReserve(ctx context.Context, tierKey, periodID string) (bool, error) {
	limit := s.limit(tierKey)
	if limit <= 0 {
		return false, nil
	}

	var used int64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO quota_periods (tier_key, period_id, calls_used, updated_at)
		 VALUES (?, ?, 1, ?)
		 ON CONFLICT(tier_key, period_id) DO UPDATE SET
		   calls_used = calls_used + 1,
		   updated_at = excluded.updated_at
		 WHERE calls_used < ?
		 RETURNING calls_used`,
		tierKey, periodID, sqlitedb.ToMillis(s.clock()), limit,
	).Scan(&used)

	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("quoterouter/sqlite: reserve: %w", err)
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
	err := s.db.QueryRowContext(ctx,
		`SELECT calls_used FROM quota_periods WHERE tier_key = ? AND period_id = ?`,
		tierKey, periodID,
	).Scan(&used)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return quoterouter.QuotaPeriod{}, fmt.Errorf("quoterouter/sqlite: usage: %w", err)
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
	res, err := s.db.ExecContext(ctx, `DELETE FROM quota_periods WHERE period_id < ?`, beforePeriodID)
	if err != nil {
		return 0, fmt.Errorf("quoterouter/sqlite: prune: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("quoterouter/sqlite: prune: %w", err)
	}
	return int(n), nil
}
