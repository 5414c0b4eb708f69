package quoterouter

import "context"

const (
	// DefaultMonthlyLimit is the live-provider call budget per tier key and period.
	DefaultMonthlyLimit int64 = 50

	// DefaultLowWaterMark is the remaining-calls threshold that triggers a quota_low notice.
	DefaultLowWaterMark int64 = 5

	// SharedLedgerKey is the counter all metered tiers draw from when the budget is shared.
	SharedLedgerKey = "live-provider"
)

// QuotaLedger tracks live-provider calls per tier key and monthly period.
type QuotaLedger interface {
	// TryReserve atomically consumes one call if the period is below its limit.
	// It returns false and leaves state unchanged otherwise.
	TryReserve(ctx context.Context, tierKey, periodID string) (bool, error)

	// Remaining returns limit - used for the period, clamped at 0.
	Remaining(ctx context.Context, tierKey, periodID string) (int64, error)
}

// QuotaLimiter is implemented by ledgers whose limits can be configured per tier key.
type QuotaLimiter interface {
	SetLimit(tierKey string, limit int64)
}

// QuotaReporter is implemented by ledgers that can describe a period for dashboards.
type QuotaReporter interface {
	Usage(ctx context.Context, tierKey, periodID string) (QuotaPeriod, error)
}

// QuotaPruner is implemented by ledgers that can drop counters of past periods.
type QuotaPruner interface {
	// Prune deletes periods strictly before beforePeriodID.
	Prune(ctx context.Context, beforePeriodID string) (int, error)
}

// QuotaPeriod is the counter of one tier key in one period.
type QuotaPeriod struct {
	PeriodID  string `json:"period_id"`
	TierKey   string `json:"tier_key"`
	CallsUsed int64  `json:"calls_used"`
	Limit     int64  `json:"limit"`
}

// Remaining returns Limit - CallsUsed, clamped at 0.
func (p QuotaPeriod) Remaining() int64 {
	if r := p.Limit - p.CallsUsed; r > 0 {
		return r
	}
	return 0
}
