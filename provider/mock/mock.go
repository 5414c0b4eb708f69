// Package mock provides an in-memory LiveProvider and Estimator for tests and demos.
package mock

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ineyio/quoterouter"
)

// Provider is a mock live carrier provider and estimator.
type Provider struct {
	name      string
	services  []quoterouter.Service
	latency   time.Duration
	failAfter int
	callCount atomic.Int64
	staticErr error
	quotes    []quoterouter.Quote
	fetchFunc func(quoterouter.QuoteRequest) ([]quoterouter.Quote, error)
}

var (
	_ quoterouter.LiveProvider = (*Provider)(nil)
	_ quoterouter.Estimator    = (*Provider)(nil)
)

// Option configures a mock Provider.
type Option func(*Provider)

// New creates a mock provider with the given options. By default it supports
// every service and returns one Maersk quote.
func New(opts ...Option) *Provider {
	p := &Provider{
		name:     "mock",
		services: []quoterouter.Service{quoterouter.ServiceFCL, quoterouter.ServiceLCL, quoterouter.ServiceAirFreight},
		quotes: []quoterouter.Quote{{
			CarrierName:     "Maersk",
			TransitTime:     "28-32 days",
			TotalCost:       decimal.NewFromInt(2200),
			Currency:        "USD",
			ServiceProvider: "mock",
		}},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// WithName sets the provider name.
func WithName(name string) Option {
	return func(p *Provider) { p.name = name }
}

// WithServices sets the supported services.
func WithServices(services ...quoterouter.Service) Option {
	return func(p *Provider) { p.services = services }
}

// WithLatency adds simulated latency to each call.
func WithLatency(d time.Duration) Option {
	return func(p *Provider) { p.latency = d }
}

// WithFailAfter makes the provider fail after N successful calls.
func WithFailAfter(n int) Option {
	return func(p *Provider) { p.failAfter = n }
}

// WithError makes the provider always return this error.
func WithError(err error) Option {
	return func(p *Provider) { p.staticErr = err }
}

// WithQuotes sets the quotes returned by Fetch. Estimate returns the first one.
func WithQuotes(quotes ...quoterouter.Quote) Option {
	return func(p *Provider) { p.quotes = quotes }
}

// WithFetchFunc sets a custom response function.
func WithFetchFunc(fn func(quoterouter.QuoteRequest) ([]quoterouter.Quote, error)) Option {
	return func(p *Provider) { p.fetchFunc = fn }
}

func (p *Provider) Name() string { return p.name }

func (p *Provider) Supports(svc quoterouter.Service) bool {
	for _, s := range p.services {
		if s == svc {
			return true
		}
	}
	return false
}

func (p *Provider) Fetch(ctx context.Context, req quoterouter.QuoteRequest) ([]quoterouter.Quote, error) {
	if p.latency > 0 {
		select {
		case <-time.After(p.latency):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	count := p.callCount.Add(1)

	if p.staticErr != nil {
		return nil, p.staticErr
	}

	if p.failAfter > 0 && int(count) > p.failAfter {
		return nil, quoterouter.ErrProviderUnavailable
	}

	if p.fetchFunc != nil {
		return p.fetchFunc(req)
	}

	return append([]quoterouter.Quote(nil), p.quotes...), nil
}

// Estimate returns the first configured quote.
func (p *Provider) Estimate(ctx context.Context, req quoterouter.QuoteRequest) (quoterouter.Quote, error) {
	quotes, err := p.Fetch(ctx, req)
	if err != nil {
		return quoterouter.Quote{}, err
	}
	if len(quotes) == 0 {
		return quoterouter.Quote{}, quoterouter.ErrNoQuotes
	}
	return quotes[0], nil
}

// CallCount returns the number of calls made to the provider.
func (p *Provider) CallCount() int64 { return p.callCount.Load() }
