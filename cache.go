package quoterouter

import (
	"context"
	"time"
)

// DefaultCacheTTL is how long a live quote set stays valid.
const DefaultCacheTTL = 24 * time.Hour

// CacheStore persists live quote sets by fingerprint.
type CacheStore interface {
	// Get returns the entry for key. An entry whose ExpiresAt has passed is
	// reported as a miss and may be evicted.
	Get(ctx context.Context, key FingerprintKey, now time.Time) (CacheEntry, bool, error)

	// Put stores quotes under key with ExpiresAt = now + TTL, replacing any
	// existing entry. Returns ErrCacheFull when the medium rejects the write
	// for lack of space.
	Put(ctx context.Context, key FingerprintKey, quotes []Quote, now time.Time) (CacheEntry, error)

	// Purge removes every entry with ExpiresAt before olderThan.
	Purge(ctx context.Context, olderThan time.Time) (int, error)

	// Stats summarizes the stored entries as of now.
	Stats(ctx context.Context, now time.Time) (CacheStats, error)
}

// CacheEntry is a stored live quote set.
type CacheEntry struct {
	Key        FingerprintKey `json:"key"`
	Quotes     []Quote        `json:"quotes"`
	CachedAt   time.Time      `json:"cached_at"`
	ExpiresAt  time.Time      `json:"expires_at"`
	Provenance Provenance     `json:"provenance"`
}

// Expired reports whether the entry is no longer valid at now.
func (e CacheEntry) Expired(now time.Time) bool {
	return now.After(e.ExpiresAt)
}

// NewCacheEntry builds the entry a store should persist for a Put.
func NewCacheEntry(key FingerprintKey, quotes []Quote, now time.Time, ttl time.Duration) CacheEntry {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	now = now.UTC()
	return CacheEntry{
		Key:        key,
		Quotes:     append([]Quote(nil), quotes...),
		CachedAt:   now,
		ExpiresAt:  now.Add(ttl),
		Provenance: ProvenanceLive,
	}
}

// CacheStats is a point-in-time summary for usage dashboards.
type CacheStats struct {
	Total   int       `json:"total"`
	Active  int       `json:"active"`
	Expired int       `json:"expired"`
	Oldest  time.Time `json:"oldest,omitempty"`
	Newest  time.Time `json:"newest,omitempty"`
}
