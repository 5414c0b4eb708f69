// Package cache provides an in-memory CacheStore for quoterouter.
package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ineyio/quoterouter"
)

// MemoryStore is an in-process CacheStore. Entries are lost on restart.
type MemoryStore struct {
	mu         sync.RWMutex
	entries    map[quoterouter.FingerprintKey]quoterouter.CacheEntry
	ttl        time.Duration
	maxEntries int
}

var _ quoterouter.CacheStore = (*MemoryStore)(nil)

// Option configures MemoryStore.
type Option func(*MemoryStore)

// WithTTL sets the entry lifetime (default 24h).
func WithTTL(ttl time.Duration) Option {
	return func(s *MemoryStore) { s.ttl = ttl }
}

// WithMaxEntries caps the number of stored entries. A Put of a new key beyond
// the cap fails with ErrCacheFull. Zero means unbounded.
func WithMaxEntries(n int) Option {
	return func(s *MemoryStore) { s.maxEntries = n }
}

// NewMemoryStore creates an empty memory-backed cache.
func NewMemoryStore(opts ...Option) *MemoryStore {
	s := &MemoryStore{
		entries: make(map[quoterouter.FingerprintKey]quoterouter.CacheEntry),
		ttl:     quoterouter.DefaultCacheTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns a live entry, evicting it instead when it has expired.
func (s *MemoryStore) Get(_ context.Context, key quoterouter.FingerprintKey, now time.Time) (quoterouter.CacheEntry, bool, error) {
	s.mu.RLock()
	entry, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return quoterouter.CacheEntry{}, false, nil
	}

	if entry.Expired(now) {
		s.mu.Lock()
		// Re-check under the write lock; a concurrent Put may have refreshed it.
		if cur, ok := s.entries[key]; ok && cur.Expired(now) {
			delete(s.entries, key)
		}
		s.mu.Unlock()
		return quoterouter.CacheEntry{}, false, nil
	}

	entry.Quotes = append([]quoterouter.Quote(nil), entry.Quotes...)
	return entry, true, nil
}

// Put stores quotes under key, replacing any previous entry.
func (s *MemoryStore) Put(_ context.Context, key quoterouter.FingerprintKey, quotes []quoterouter.Quote, now time.Time) (quoterouter.CacheEntry, error) {
	if len(quotes) == 0 {
		return quoterouter.CacheEntry{}, fmt.Errorf("%w: cannot cache an empty quote set", quoterouter.ErrInvalidRequest)
	}
	entry := quoterouter.NewCacheEntry(key, quotes, now, s.ttl)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[key]; !exists && s.maxEntries > 0 && len(s.entries) >= s.maxEntries {
		return quoterouter.CacheEntry{}, quoterouter.ErrCacheFull
	}
	s.entries[key] = entry
	return entry, nil
}

// Purge removes entries that expired before olderThan.
func (s *MemoryStore) Purge(_ context.Context, olderThan time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, entry := range s.entries {
		if entry.ExpiresAt.Before(olderThan) {
			delete(s.entries, key)
			removed++
		}
	}
	return removed, nil
}

// Stats summarizes the stored entries.
func (s *MemoryStore) Stats(_ context.Context, now time.Time) (quoterouter.CacheStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var stats quoterouter.CacheStats
	for _, entry := range s.entries {
		stats.Total++
		if entry.Expired(now) {
			stats.Expired++
		} else {
			stats.Active++
		}
		if stats.Oldest.IsZero() || entry.CachedAt.Before(stats.Oldest) {
			stats.Oldest = entry.CachedAt
		}
		if entry.CachedAt.After(stats.Newest) {
			stats.Newest = entry.CachedAt
		}
	}
	return stats, nil
}

// Len returns the number of stored entries, expired ones included.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
