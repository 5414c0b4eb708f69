package quoterouter

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// UsageSnapshot is the read-only view behind the usage dashboard.
type UsageSnapshot struct {
	PeriodID string        `json:"period_id"`
	Cache    CacheStats    `json:"cache"`
	Quotas   []QuotaPeriod `json:"quotas"`
	AsOf     time.Time     `json:"as_of"`
}

// Usage reports cache statistics and the current period of every ledger key.
func (o *Orchestrator) Usage(ctx context.Context) (UsageSnapshot, error) {
	now := o.clock()
	period := PeriodFor(now)

	stats, err := o.cache.Stats(ctx, now)
	if err != nil {
		return UsageSnapshot{}, fmt.Errorf("quoterouter: cache stats: %w", err)
	}

	snap := UsageSnapshot{PeriodID: period, Cache: stats, AsOf: now.UTC()}
	for _, key := range o.ledgerKeys() {
		qp, err := o.quotaPeriod(ctx, key, period)
		if err != nil {
			return UsageSnapshot{}, err
		}
		snap.Quotas = append(snap.Quotas, qp)
	}
	return snap, nil
}

func (o *Orchestrator) quotaPeriod(ctx context.Context, key, period string) (QuotaPeriod, error) {
	if reporter, ok := o.ledger.(QuotaReporter); ok {
		qp, err := reporter.Usage(ctx, key, period)
		if err != nil {
			return QuotaPeriod{}, fmt.Errorf("quoterouter: quota usage %s: %w", key, err)
		}
		return qp, nil
	}

	remaining, err := o.ledger.Remaining(ctx, key, period)
	if err != nil {
		return QuotaPeriod{}, fmt.Errorf("quoterouter: quota remaining %s: %w", key, err)
	}
	limit := o.configuredLimit(key)
	used := limit - remaining
	if used < 0 {
		used = 0
	}
	return QuotaPeriod{PeriodID: period, TierKey: key, CallsUsed: used, Limit: limit}, nil
}

func (o *Orchestrator) configuredLimit(key string) int64 {
	var limit int64
	for _, t := range o.cfg.Tiers {
		if o.cfg.LedgerKey(t.Name) == key && t.MonthlyLimit > limit {
			limit = t.MonthlyLimit
		}
	}
	if limit == 0 && o.cfg.SharedBudget {
		return DefaultMonthlyLimit
	}
	return limit
}

func (o *Orchestrator) ledgerKeys() []string {
	seen := make(map[string]bool)
	var keys []string
	for _, t := range o.cfg.Tiers {
		k := o.cfg.LedgerKey(t.Name)
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 && o.cfg.SharedBudget {
		keys = append(keys, SharedLedgerKey)
	}
	sort.Strings(keys)
	return keys
}

// HousekeepingReport summarizes a Housekeep run.
type HousekeepingReport struct {
	CachePurged   int `json:"cache_purged"`
	PeriodsPruned int `json:"periods_pruned"`
}

// Housekeep purges expired cache entries and, when the ledger supports it,
// drops quota periods older than the previous month.
func (o *Orchestrator) Housekeep(ctx context.Context) (HousekeepingReport, error) {
	now := o.clock()
	var report HousekeepingReport

	purged, err := o.cache.Purge(ctx, now)
	if err != nil {
		return report, fmt.Errorf("quoterouter: purge cache: %w", err)
	}
	report.CachePurged = purged

	if pruner, ok := o.ledger.(QuotaPruner); ok {
		first := time.Date(now.UTC().Year(), now.UTC().Month(), 1, 0, 0, 0, 0, time.UTC)
		before := PeriodFor(first.AddDate(0, -1, 0))
		pruned, err := pruner.Prune(ctx, before)
		if err != nil {
			return report, fmt.Errorf("quoterouter: prune quota periods: %w", err)
		}
		report.PeriodsPruned = pruned
	}

	return report, nil
}
