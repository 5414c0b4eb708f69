package quoterouter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PlaceholderProvider is the ServiceProvider of quotes produced when the estimator fails.
const PlaceholderProvider = "placeholder"

// Orchestrator resolves quote requests against the cache, the metered live
// provider and the estimator, in that order, and always yields one result.
type Orchestrator struct {
	cfg       Config
	providers map[Service]LiveProvider
	estimator Estimator
	cache     CacheStore
	ledger    QuotaLedger
	meter     Meter
	health    *HealthTracker
	leads     *LeadDispatcher
	logger    *zap.Logger
	clock     func() time.Time
	newID     func() string
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithCacheStore sets the cache store.
func WithCacheStore(cs CacheStore) Option {
	return func(o *Orchestrator) { o.cache = cs }
}

// WithQuotaLedger sets the quota ledger.
func WithQuotaLedger(ql QuotaLedger) Option {
	return func(o *Orchestrator) { o.ledger = ql }
}

// WithMeter sets the meter.
func WithMeter(m Meter) Option {
	return func(o *Orchestrator) { o.meter = m }
}

// WithHealthTracker sets the health tracker.
func WithHealthTracker(h *HealthTracker) Option {
	return func(o *Orchestrator) { o.health = h }
}

// WithLeadDispatcher enables lead capture for estimated results.
func WithLeadDispatcher(d *LeadDispatcher) Option {
	return func(o *Orchestrator) { o.leads = d }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.clock = now }
}

// WithIDGenerator sets the request ID generator.
func WithIDGenerator(fn func() string) Option {
	return func(o *Orchestrator) { o.newID = fn }
}

// NewOrchestrator creates an Orchestrator. For each service the first provider
// that supports it is used. A cache store, a quota ledger and an estimator are required.
func NewOrchestrator(cfg Config, providers []LiveProvider, estimator Estimator, opts ...Option) (*Orchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if estimator == nil {
		return nil, fmt.Errorf("quoterouter: an estimator is required")
	}

	provMap := make(map[Service]LiveProvider, 3)
	for _, svc := range []Service{ServiceFCL, ServiceLCL, ServiceAirFreight} {
		for _, p := range providers {
			if p != nil && p.Supports(svc) {
				provMap[svc] = p
				break
			}
		}
	}

	o := &Orchestrator{
		cfg:       cfg,
		providers: provMap,
		estimator: estimator,
	}

	for _, opt := range opts {
		opt(o)
	}

	if o.cache == nil {
		return nil, fmt.Errorf("quoterouter: a cache store is required")
	}
	if o.ledger == nil {
		return nil, fmt.Errorf("quoterouter: a quota ledger is required")
	}

	// Apply defaults after options.
	if o.meter == nil {
		o.meter = noopMeter{}
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	if o.clock == nil {
		o.clock = time.Now
	}
	if o.health == nil {
		o.health = NewHealthTrackerWithClock(o.clock)
	}
	if o.newID == nil {
		o.newID = func() string { return uuid.New().String() }
	}

	cfg.ApplyLimits(o.ledger)

	return o, nil
}

// Resolve returns exactly one quote set for req, tagged with its provenance.
//
// Only an invalid request or the caller abandoning ctx produce an error. The
// pipeline itself runs detached from ctx cancellation so that cache writes and
// quota accounting complete even when the result is no longer delivered.
func (o *Orchestrator) Resolve(ctx context.Context, req QuoteRequest, tier Tier) (ResolvedResult, error) {
	if err := req.Validate(); err != nil {
		return ResolvedResult{}, err
	}
	key, err := Fingerprint(req)
	if err != nil {
		return ResolvedResult{}, err
	}

	done := make(chan ResolvedResult, 1)
	go func() {
		done <- o.resolve(context.WithoutCancel(ctx), req, key, tier)
	}()

	select {
	case res := <-done:
		return res, nil
	case <-ctx.Done():
		return ResolvedResult{}, ctx.Err()
	}
}

// resolution carries per-request bookkeeping through the pipeline.
type resolution struct {
	req      QuoteRequest
	tier     Tier
	now      time.Time
	started  time.Time
	path     []State
	result   ResolvedResult
	cacheErr error
	estErr   error
}

func (o *Orchestrator) resolve(ctx context.Context, req QuoteRequest, key FingerprintKey, tier Tier) ResolvedResult {
	now := o.clock()
	r := &resolution{
		req:     req,
		tier:    tier,
		now:     now,
		started: time.Now(),
		path:    []State{StateCheckingCache},
		result: ResolvedResult{
			RequestID:   o.newID(),
			Fingerprint: key,
			ResolvedAt:  now.UTC(),
		},
	}

	// 1. Cache always wins, for every tier.
	if entry, ok := o.lookup(ctx, key, now); ok {
		r.result.Quotes = entry.Quotes
		r.result.Provenance = ProvenanceCached
		return o.finish(r)
	}

	// 2. Live, if the provider is usable and the tier is entitled.
	r.path = append(r.path, StateCheckingEntitlement)
	if provider, ok := o.admit(ctx, r); ok {
		r.path = append(r.path, StateCallingLive)
		if quotes, ok := o.callLive(ctx, provider, r); ok {
			r.cacheErr = o.store(ctx, key, quotes, now)
			r.result.Quotes = quotes
			r.result.Provenance = ProvenanceLive
			return o.finish(r)
		}
		r.addNotice(NoticeLiveUnavailable)
	}

	// 3. Estimate, degrading to a placeholder rather than failing.
	r.path = append(r.path, StateCallingEstimate)
	quote, err := o.estimate(ctx, req)
	if err != nil {
		r.estErr = err
		quote = o.placeholder(req.Service)
		r.result.Degraded = true
		r.addNotice(NoticeEstimatePlaceholder)
		o.logger.Warn("estimate failed, returning placeholder",
			zap.String("request_id", r.result.RequestID),
			zap.String("service", string(req.Service)),
			zap.Error(err),
		)
	}
	r.result.Quotes = []Quote{quote}
	r.result.Provenance = ProvenanceEstimated

	// 4. Lead capture is fire-and-forget.
	o.dispatchLead(r)

	return o.finish(r)
}

func (r *resolution) addNotice(n Notice) {
	if !r.result.HasNotice(n) {
		r.result.Notices = append(r.result.Notices, n)
	}
}

func (o *Orchestrator) lookup(ctx context.Context, key FingerprintKey, now time.Time) (CacheEntry, bool) {
	entry, ok, err := o.cache.Get(ctx, key, now)
	if err != nil {
		o.logger.Warn("cache read failed, treating as miss",
			zap.String("fingerprint", key.String()),
			zap.Error(fmt.Errorf("%w: %v", ErrCacheUnavailable, err)),
		)
		return CacheEntry{}, false
	}
	if !ok || len(entry.Quotes) == 0 {
		return CacheEntry{}, false
	}
	return entry, true
}

// admit decides whether the live provider may be called. For metered tiers
// quota is reserved only once the provider is known to be callable, so no
// paid call is reserved for a provider that will not be tried.
func (o *Orchestrator) admit(ctx context.Context, r *resolution) (LiveProvider, bool) {
	provider, ok := o.providers[r.req.Service]
	if !ok {
		r.addNotice(NoticeLiveUnavailable)
		return nil, false
	}
	// Unmetered tiers always try live; the open circuit only protects the budget.
	if !IsMetered(r.tier) {
		return provider, true
	}
	if o.health.GetHealth(provider.Name()) == HealthUnhealthy {
		r.addNotice(NoticeLiveUnavailable)
		return nil, false
	}

	ledgerKey := o.cfg.LedgerKey(r.tier)
	period := PeriodFor(r.now)

	reserved, err := o.ledger.TryReserve(ctx, ledgerKey, period)
	if err != nil {
		// Fail closed: an unreadable ledger must not turn into unmetered spend.
		o.logger.Warn("quota reserve failed, skipping live provider",
			zap.String("request_id", r.result.RequestID),
			zap.String("ledger_key", ledgerKey),
			zap.String("period", period),
			zap.Error(err),
		)
		r.addNotice(NoticeLiveUnavailable)
		return nil, false
	}

	if remaining, err := o.ledger.Remaining(ctx, ledgerKey, period); err == nil {
		r.result.QuotaRemaining = Int64Ptr(remaining)
		if reserved && remaining <= o.cfg.LowWaterMark {
			r.addNotice(NoticeQuotaLow)
		}
	}

	if !reserved {
		r.addNotice(NoticeQuotaExhausted)
		return nil, false
	}
	return provider, true
}

func (o *Orchestrator) callLive(ctx context.Context, provider LiveProvider, r *resolution) ([]Quote, bool) {
	callCtx, cancel := withTimeout(ctx, o.cfg.LiveTimeout)
	defer cancel()

	start := time.Now()
	quotes, err := safeFetch(callCtx, provider, r.req)
	if err == nil {
		quotes, err = usableQuotes(quotes)
	}
	duration := time.Since(start)

	event := LiveCallEvent{
		RequestID: r.result.RequestID,
		Provider:  provider.Name(),
		Service:   r.req.Service,
		Tier:      r.tier,
		Metered:   IsMetered(r.tier),
		Duration:  duration,
	}

	if err != nil {
		err = &ProviderError{Err: err, Provider: provider.Name(), Service: r.req.Service}
		o.health.RecordFailure(provider.Name())
		event.Error = err
		o.meter.OnLiveCall(event)
		o.logger.Warn("live provider failed, falling back to estimate",
			zap.String("request_id", r.result.RequestID),
			zap.String("provider", provider.Name()),
			zap.Error(err),
		)
		return nil, false
	}

	o.health.RecordSuccess(provider.Name())
	event.Success = true
	event.Quotes = len(quotes)
	o.meter.OnLiveCall(event)
	return quotes, true
}

// usableQuotes drops invalid quotes, keeping provider order.
func usableQuotes(quotes []Quote) ([]Quote, error) {
	if len(quotes) == 0 {
		return nil, ErrNoQuotes
	}
	out := make([]Quote, 0, len(quotes))
	var firstErr error
	for _, q := range quotes {
		if err := q.Validate(); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		out = append(out, q)
	}
	if len(out) == 0 {
		return nil, firstErr
	}
	return out, nil
}

// store writes a live result. On ErrCacheFull expired entries are purged and
// the write is retried once; any remaining failure is logged and dropped.
func (o *Orchestrator) store(ctx context.Context, key FingerprintKey, quotes []Quote, now time.Time) error {
	_, err := o.cache.Put(ctx, key, quotes, now)
	if errors.Is(err, ErrCacheFull) {
		purged, purgeErr := o.cache.Purge(ctx, now)
		if purgeErr != nil {
			err = errors.Join(err, purgeErr)
		} else {
			o.logger.Info("cache full, purged expired entries",
				zap.String("fingerprint", key.String()),
				zap.Int("purged", purged),
			)
			_, err = o.cache.Put(ctx, key, quotes, now)
		}
	}
	if err != nil {
		o.logger.Warn("cache write dropped",
			zap.String("fingerprint", key.String()),
			zap.Error(err),
		)
	}
	return err
}

func (o *Orchestrator) estimate(ctx context.Context, req QuoteRequest) (q Quote, err error) {
	callCtx, cancel := withTimeout(ctx, o.cfg.EstimateTimeout)
	defer cancel()

	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w: panic: %v", ErrEstimateFailed, p)
		}
	}()

	q, err = o.estimator.Estimate(callCtx, req)
	if err == nil {
		err = q.Validate()
	}
	if err != nil {
		return Quote{}, fmt.Errorf("%w: %w", ErrEstimateFailed, err)
	}
	return q, nil
}

func (o *Orchestrator) placeholder(svc Service) Quote {
	rate, ok := o.cfg.Placeholder[svc]
	if !ok {
		rate = DefaultConfig().Placeholder[svc]
	}
	return Quote{
		CarrierName:     "Indicative estimate",
		TransitTime:     rate.TransitTime,
		TotalCost:       rate.TotalCost,
		Currency:        rate.Currency,
		ServiceProvider: PlaceholderProvider,
	}
}

func (o *Orchestrator) dispatchLead(r *resolution) {
	if o.leads == nil {
		return
	}
	o.leads.Dispatch(Lead{
		RequestID: r.result.RequestID,
		Request:   r.req,
		Estimate:  r.result.Quotes[0],
		Degraded:  r.result.Degraded,
	})
}

func (o *Orchestrator) finish(r *resolution) ResolvedResult {
	r.path = append(r.path, StateDone)
	duration := time.Since(r.started)

	o.meter.OnResolve(ResolveEvent{
		RequestID:     r.result.RequestID,
		Fingerprint:   r.result.Fingerprint,
		Service:       r.req.Service,
		Tier:          r.tier,
		Provenance:    r.result.Provenance,
		Degraded:      r.result.Degraded,
		Path:          r.path,
		Notices:       r.result.Notices,
		CacheWriteErr: r.cacheErr,
		EstimateErr:   r.estErr,
		Duration:      duration,
	})
	return r.result
}

func safeFetch(ctx context.Context, p LiveProvider, req QuoteRequest) (quotes []Quote, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v", ErrProviderUnavailable, r)
		}
	}()
	return p.Fetch(ctx, req)
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
