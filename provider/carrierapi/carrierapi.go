// Package carrierapi is the metered live-rate client for a carrier aggregation
// API. It performs exactly one HTTP call per Fetch and never retries, since
// every attempt is billed.
package carrierapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/ineyio/quoterouter"
)

// Provider calls POST {baseURL}/rates.
type Provider struct {
	name       string
	baseURL    string
	apiKey     string
	httpClient *http.Client
	services   []quoterouter.Service
}

var _ quoterouter.LiveProvider = (*Provider)(nil)

// Option configures the provider.
type Option func(*Provider)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.httpClient = c }
}

// WithServices restricts the services the provider is asked for (default all).
func WithServices(services ...quoterouter.Service) Option {
	return func(p *Provider) { p.services = services }
}

// WithName overrides the provider name (default "carrierapi").
func WithName(name string) Option {
	return func(p *Provider) { p.name = name }
}

// New creates a carrier API client.
func New(baseURL, apiKey string, opts ...Option) *Provider {
	p := &Provider{
		name:       "carrierapi",
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Provider) Name() string { return p.name }

func (p *Provider) Supports(svc quoterouter.Service) bool {
	if len(p.services) == 0 {
		return svc.Valid()
	}
	for _, s := range p.services {
		if s == svc {
			return true
		}
	}
	return false
}

type apiRequest struct {
	Service     string         `json:"service"`
	Origin      string         `json:"origin"`
	Destination string         `json:"destination"`
	Params      map[string]any `json:"params,omitempty"`
}

type apiRate struct {
	Carrier     string          `json:"carrier"`
	TransitTime string          `json:"transit_time"`
	TotalCost   decimal.Decimal `json:"total_cost"`
	Currency    string          `json:"currency"`
}

type apiResponse struct {
	Rates []apiRate `json:"rates"`
}

// Fetch returns the carrier rates in the order the API listed them.
func (p *Provider) Fetch(ctx context.Context, req quoterouter.QuoteRequest) ([]quoterouter.Quote, error) {
	jsonBody, err := json.Marshal(apiRequest{
		Service:     string(req.Service),
		Origin:      req.Origin,
		Destination: req.Destination,
		Params:      req.Params,
	})
	if err != nil {
		return nil, fmt.Errorf("quoterouter: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/rates", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("quoterouter: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %w", quoterouter.ErrProviderUnavailable, ctx.Err())
		}
		return nil, quoterouter.ErrProviderUnavailable
	}
	defer resp.Body.Close()

	if err := mapHTTPError(resp); err != nil {
		return nil, err
	}

	var out apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", quoterouter.ErrMalformedResponse, err)
	}
	if len(out.Rates) == 0 {
		return nil, quoterouter.ErrNoQuotes
	}

	quotes := make([]quoterouter.Quote, 0, len(out.Rates))
	for _, r := range out.Rates {
		quotes = append(quotes, quoterouter.Quote{
			CarrierName:     strings.TrimSpace(r.Carrier),
			TransitTime:     strings.TrimSpace(r.TransitTime),
			TotalCost:       r.TotalCost,
			Currency:        strings.ToUpper(strings.TrimSpace(r.Currency)),
			ServiceProvider: p.name,
		})
	}
	return quotes, nil
}

func mapHTTPError(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	// Read body for error context, but don't fail if we can't.
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))

	switch resp.StatusCode {
	case http.StatusTooManyRequests:
		return quoterouter.ErrRateLimited
	case http.StatusUnauthorized, http.StatusForbidden:
		return quoterouter.ErrAuthFailed
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: %s", quoterouter.ErrInvalidRequest, string(body))
	default:
		return fmt.Errorf("%w: status %d", quoterouter.ErrProviderUnavailable, resp.StatusCode)
	}
}
