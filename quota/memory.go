// Package quota provides an in-memory QuotaLedger for quoterouter.
package quota

import (
	"context"
	"sync"

	"github.com/ineyio/quoterouter"
)

// MemoryLedger is an in-process QuotaLedger. Counters are keyed by tier key
// and period, so a new month starts from zero without an explicit reset.
type MemoryLedger struct {
	mu           sync.Mutex
	limits       map[string]int64
	periods      map[periodKey]int64 // calls used
	defaultLimit int64
}

type periodKey struct {
	tierKey  string
	periodID string
}

var (
	_ quoterouter.QuotaLedger   = (*MemoryLedger)(nil)
	_ quoterouter.QuotaLimiter  = (*MemoryLedger)(nil)
	_ quoterouter.QuotaReporter = (*MemoryLedger)(nil)
	_ quoterouter.QuotaPruner   = (*MemoryLedger)(nil)
)

// Option configures MemoryLedger.
type Option func(*MemoryLedger)

// WithDefaultLimit sets the limit used for tier keys without SetLimit (default 50).
func WithDefaultLimit(limit int64) Option {
	return func(l *MemoryLedger) { l.defaultLimit = limit }
}

// NewMemoryLedger creates a new in-memory ledger.
func NewMemoryLedger(opts ...Option) *MemoryLedger {
	l := &MemoryLedger{
		limits:       make(map[string]int64),
		periods:      make(map[periodKey]int64),
		defaultLimit: quoterouter.DefaultMonthlyLimit,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// SetLimit configures the monthly limit for a tier key.
func (l *MemoryLedger) SetLimit(tierKey string, limit int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.limits[tierKey] = limit
}

// TryReserve consumes one call if the period is below its limit.
func (l *MemoryLedger) TryReserve(_ context.Context, tierKey, periodID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	k := periodKey{tierKey: tierKey, periodID: periodID}
	if l.periods[k] >= l.limitLocked(tierKey) {
		return false, nil
	}
	l.periods[k]++
	return true, nil
}

// Remaining returns the calls left in the period.
func (l *MemoryLedger) Remaining(ctx context.Context, tierKey, periodID string) (int64, error) {
	p, err := l.Usage(ctx, tierKey, periodID)
	if err != nil {
		return 0, err
	}
	return p.Remaining(), nil
}

// Usage returns the counter for the period; unknown periods read as unused.
func (l *MemoryLedger) Usage(_ context.Context, tierKey, periodID string) (quoterouter.QuotaPeriod, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	return quoterouter.QuotaPeriod{
		PeriodID:  periodID,
		TierKey:   tierKey,
		CallsUsed: l.periods[periodKey{tierKey: tierKey, periodID: periodID}],
		Limit:     l.limitLocked(tierKey),
	}, nil
}

// Prune drops counters of periods before beforePeriodID.
// Period IDs are "YYYY-MM", so string order is chronological.
func (l *MemoryLedger) Prune(_ context.Context, beforePeriodID string) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for k := range l.periods {
		if k.periodID < beforePeriodID {
			delete(l.periods, k)
			removed++
		}
	}
	return removed, nil
}

func (l *MemoryLedger) limitLocked(tierKey string) int64 {
	if limit, ok := l.limits[tierKey]; ok {
		return limit
	}
	return l.defaultLimit
}
