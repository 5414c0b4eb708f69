// Package sqlite provides a SQLite-backed CacheStore for quoterouter.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ineyio/quoterouter"
	"github.com/ineyio/quoterouter/cache/sqlite/migrations"
	"github.com/ineyio/quoterouter/internal/sqlitedb"
)

// Store persists live quote sets in SQLite so they survive restarts.
type Store struct {
	db           *sql.DB
	ttl          time.Duration
	maxPageCount int
}

var _ quoterouter.CacheStore = (*Store)(nil)

// Option configures Store.
type Option func(*Store)

// WithTTL sets the entry lifetime (default 24h).
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) { s.ttl = ttl }
}

// WithMaxPageCount caps the database file size in pages. Writes beyond the
// cap fail with ErrCacheFull.
func WithMaxPageCount(pages int) Option {
	return func(s *Store) { s.maxPageCount = pages }
}

// Open opens a SQLite cache at path and applies embedded migrations.
func Open(ctx context.Context, path string, opts ...Option) (*Store, error) {
	s := &Store{ttl: quoterouter.DefaultCacheTTL}
	for _, opt := range opts {
		opt(s)
	}

	db, err := sqlitedb.Open(ctx, path, "cache", migrations.FS, sqlitedb.Options{MaxPageCount: s.maxPageCount})
	if err != nil {
		return nil, fmt.Errorf("quoterouter/sqlite: %w", err)
	}
	s.db = db
	return s, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Get returns a live entry, deleting it instead when it has expired.
func (s *Store) Get(ctx context.Context, key quoterouter.FingerprintKey, now time.Time) (quoterouter.CacheEntry, bool, error) {
	var (
		raw       string
		cachedAt  int64
		expiresAt int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT quotes, cached_at, expires_at FROM quote_cache WHERE fingerprint = ?`,
		string(key),
	).Scan(&raw, &cachedAt, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return quoterouter.CacheEntry{}, false, nil
	}
	if err != nil {
		return quoterouter.CacheEntry{}, false, fmt.Errorf("quoterouter/sqlite: get: %w", err)
	}

	entry := quoterouter.CacheEntry{
		Key:        key,
		CachedAt:   sqlitedb.FromMillis(cachedAt),
		ExpiresAt:  sqlitedb.FromMillis(expiresAt),
		Provenance: quoterouter.ProvenanceLive,
	}
	if entry.Expired(now) {
		// Only delete the row we read; a concurrent Put may have replaced it.
		if _, err := s.db.ExecContext(ctx,
			`DELETE FROM quote_cache WHERE fingerprint = ? AND expires_at = ?`,
			string(key), expiresAt,
		); err != nil {
			return quoterouter.CacheEntry{}, false, fmt.Errorf("quoterouter/sqlite: evict: %w", err)
		}
		return quoterouter.CacheEntry{}, false, nil
	}

	if err := json.Unmarshal([]byte(raw), &entry.Quotes); err != nil {
		return quoterouter.CacheEntry{}, false, fmt.Errorf("quoterouter/sqlite: decode quotes: %w", err)
	}
	return entry, true, nil
}

// Put stores quotes under key, replacing any previous entry.
func (s *Store) Put(ctx context.Context, key quoterouter.FingerprintKey, quotes []quoterouter.Quote, now time.Time) (quoterouter.CacheEntry, error) {
	if len(quotes) == 0 {
		return quoterouter.CacheEntry{}, fmt.Errorf("%w: cannot cache an empty quote set", quoterouter.ErrInvalidRequest)
	}
	entry := quoterouter.NewCacheEntry(key, quotes, now, s.ttl)

	raw, err := json.Marshal(entry.Quotes)
	if err != nil {
		return quoterouter.CacheEntry{}, fmt.Errorf("quoterouter/sqlite: encode quotes: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO quote_cache (fingerprint, quotes, cached_at, expires_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(fingerprint) DO UPDATE SET
		   quotes = excluded.quotes,
		   cached_at = excluded.cached_at,
		   expires_at = excluded.expires_at`,
		string(key), string(raw), sqlitedb.ToMillis(entry.CachedAt), sqlitedb.ToMillis(entry.ExpiresAt),
	)
	if err != nil {
		if sqlitedb.IsFull(err) {
			return quoterouter.CacheEntry{}, fmt.Errorf("%w: %v", quoterouter.ErrCacheFull, err)
		}
		return quoterouter.CacheEntry{}, fmt.Errorf("quoterouter/sqlite: put: %w", err)
	}
	return entry, nil
}

// Purge removes entries that expired before olderThan.
func (s *Store) Purge(ctx context.Context, olderThan time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM quote_cache WHERE expires_at < ?`,
		sqlitedb.ToMillis(olderThan),
	)
	if err != nil {
		return 0, fmt.Errorf("quoterouter/sqlite: purge: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("quoterouter/sqlite: purge: %w", err)
	}
	return int(n), nil
}

// Stats summarizes the stored entries.
func (s *Store) Stats(ctx context.Context, now time.Time) (quoterouter.CacheStats, error) {
	var (
		total, active  int
		oldest, newest sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
		        COALESCE(SUM(CASE WHEN expires_at >= ? THEN 1 ELSE 0 END), 0),
		        MIN(cached_at),
		        MAX(cached_at)
		 FROM quote_cache`,
		sqlitedb.ToMillis(now),
	).Scan(&total, &active, &oldest, &newest)
	if err != nil {
		return quoterouter.CacheStats{}, fmt.Errorf("quoterouter/sqlite: stats: %w", err)
	}

	stats := quoterouter.CacheStats{Total: total, Active: active, Expired: total - active}
	if oldest.Valid {
		stats.Oldest = sqlitedb.FromMillis(oldest.Int64)
	}
	if newest.Valid {
		stats.Newest = sqlitedb.FromMillis(newest.Int64)
	}
	return stats, nil
}
