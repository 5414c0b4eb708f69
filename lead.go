package quoterouter

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

const (
	defaultLeadQueueSize   = 256
	defaultLeadWorkers     = 2
	defaultLeadMaxAttempts = 3
	defaultLeadTimeout     = 10 * time.Second
	defaultLeadBackoff     = 500 * time.Millisecond
)

// Lead is an estimated request offered for manual follow-up.
type Lead struct {
	ID        string       `json:"id"`
	RequestID string       `json:"request_id"`
	Request   QuoteRequest `json:"request"`
	Estimate  Quote        `json:"estimate"`
	Degraded  bool         `json:"degraded,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
}

// LeadDispatcher delivers leads to a LeadCapture from background workers.
// Dispatch never blocks the resolution path; failures are logged only.
type LeadDispatcher struct {
	capture     LeadCapture
	queue       chan Lead
	workers     int
	maxAttempts int
	timeout     time.Duration
	backoff     time.Duration
	logger      *zap.Logger
	clock       func() time.Time
	newID       func() string

	mu      sync.RWMutex
	closed  bool
	started bool
	wg      sync.WaitGroup
}

// LeadOption configures a LeadDispatcher.
type LeadOption func(*LeadDispatcher)

// WithLeadQueueSize sets the buffered queue length (default 256).
func WithLeadQueueSize(n int) LeadOption {
	return func(d *LeadDispatcher) {
		if n > 0 {
			d.queue = make(chan Lead, n)
		}
	}
}

// WithLeadWorkers sets the number of delivery goroutines (default 2).
func WithLeadWorkers(n int) LeadOption {
	return func(d *LeadDispatcher) {
		if n > 0 {
			d.workers = n
		}
	}
}

// WithLeadMaxAttempts sets how many times one lead is tried (default 3).
func WithLeadMaxAttempts(n int) LeadOption {
	return func(d *LeadDispatcher) {
		if n > 0 {
			d.maxAttempts = n
		}
	}
}

// WithLeadTimeout bounds each delivery attempt (default 10s).
func WithLeadTimeout(t time.Duration) LeadOption {
	return func(d *LeadDispatcher) {
		if t > 0 {
			d.timeout = t
		}
	}
}

// WithLeadBackoff sets the initial retry interval (default 500ms).
func WithLeadBackoff(t time.Duration) LeadOption {
	return func(d *LeadDispatcher) {
		if t > 0 {
			d.backoff = t
		}
	}
}

// WithLeadLogger sets the logger.
func WithLeadLogger(l *zap.Logger) LeadOption {
	return func(d *LeadDispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithLeadClock sets the time source used for Lead.CreatedAt.
func WithLeadClock(now func() time.Time) LeadOption {
	return func(d *LeadDispatcher) {
		if now != nil {
			d.clock = now
		}
	}
}

// NewLeadDispatcher creates a dispatcher. Call Start before dispatching and Close on shutdown.
func NewLeadDispatcher(capture LeadCapture, opts ...LeadOption) *LeadDispatcher {
	d := &LeadDispatcher{
		capture:     capture,
		queue:       make(chan Lead, defaultLeadQueueSize),
		workers:     defaultLeadWorkers,
		maxAttempts: defaultLeadMaxAttempts,
		timeout:     defaultLeadTimeout,
		backoff:     defaultLeadBackoff,
		logger:      zap.NewNop(),
		clock:       time.Now,
		newID:       func() string { return ulid.Make().String() },
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Start launches the workers. Deliveries use ctx, so cancelling it stops retries.
func (d *LeadDispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started || d.closed {
		return
	}
	d.started = true

	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			for lead := range d.queue {
				d.deliver(ctx, lead)
			}
		}()
	}
}

// Dispatch enqueues a lead without blocking. It returns false when the
// dispatcher is closed or the queue is full.
func (d *LeadDispatcher) Dispatch(lead Lead) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return false
	}

	if lead.ID == "" {
		lead.ID = d.newID()
	}
	if lead.CreatedAt.IsZero() {
		lead.CreatedAt = d.clock().UTC()
	}

	select {
	case d.queue <- lead:
		return true
	default:
		d.logger.Warn("lead dropped",
			zap.String("lead_id", lead.ID),
			zap.String("request_id", lead.RequestID),
			zap.Error(ErrLeadQueueFull),
		)
		return false
	}
}

// Close stops accepting leads, waits for queued ones to be delivered, and returns.
func (d *LeadDispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	started := d.started
	d.mu.Unlock()

	if started {
		d.wg.Wait()
	}
}

func (d *LeadDispatcher) deliver(ctx context.Context, lead Lead) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = d.backoff
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(d.maxAttempts-1)), ctx)

	attempts := 0
	err := backoff.Retry(func() error {
		attempts++
		attemptCtx, cancel := context.WithTimeout(ctx, d.timeout)
		defer cancel()

		err := d.capture.Capture(attemptCtx, lead)
		if err != nil && IsFatal(err) {
			return backoff.Permanent(err)
		}
		return err
	}, policy)

	if err != nil {
		d.logger.Warn("lead capture failed",
			zap.String("lead_id", lead.ID),
			zap.String("request_id", lead.RequestID),
			zap.Int("attempts", attempts),
			zap.Error(err),
		)
		return
	}
	d.logger.Debug("lead captured",
		zap.String("lead_id", lead.ID),
		zap.String("request_id", lead.RequestID),
		zap.Int("attempts", attempts),
	)
}
