package quoterouter

import "context"

// LiveProvider is the interface that metered carrier-rate adapters must implement.
type LiveProvider interface {
	// Name returns the provider identifier (e.g. "carrierapi").
	Name() string

	// Supports returns true if this provider can price the given service.
	Supports(service Service) bool

	// Fetch performs one metered call and returns quotes in provider rank order.
	Fetch(ctx context.Context, req QuoteRequest) ([]Quote, error)
}

// Estimator produces a synthetic quote when live data is unavailable.
type Estimator interface {
	Estimate(ctx context.Context, req QuoteRequest) (Quote, error)
}

// LeadCapture forwards an estimated request for manual follow-up.
type LeadCapture interface {
	Capture(ctx context.Context, lead Lead) error
}
