package quoterouter

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Service is a freight shipping mode.
type Service string

const (
	ServiceFCL        Service = "FCL"
	ServiceLCL        Service = "LCL"
	ServiceAirFreight Service = "AIR"
)

// ParseService resolves a case-insensitive service name or alias.
func ParseService(s string) (Service, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "fcl":
		return ServiceFCL, nil
	case "lcl":
		return ServiceLCL, nil
	case "air", "airfreight", "air_freight", "air-freight":
		return ServiceAirFreight, nil
	default:
		return "", fmt.Errorf("%w: unknown service %q", ErrInvalidRequest, s)
	}
}

// Valid reports whether s is one of the supported services.
func (s Service) Valid() bool {
	switch s {
	case ServiceFCL, ServiceLCL, ServiceAirFreight:
		return true
	}
	return false
}

// QuoteRequest describes a shipment to be priced. Build it with NewQuoteRequest;
// the params map is owned by the request and must not be mutated afterwards.
type QuoteRequest struct {
	Service     Service        `json:"service"`
	Origin      string         `json:"origin"`
	Destination string         `json:"destination"`
	Params      map[string]any `json:"params,omitempty"`
}

// NewQuoteRequest validates its input and returns a request holding a private copy of params.
func NewQuoteRequest(service Service, origin, destination string, params map[string]any) (QuoteRequest, error) {
	req := QuoteRequest{
		Service:     service,
		Origin:      strings.TrimSpace(origin),
		Destination: strings.TrimSpace(destination),
	}
	if err := req.Validate(); err != nil {
		return QuoteRequest{}, err
	}

	copied, err := copyParams(params)
	if err != nil {
		return QuoteRequest{}, err
	}
	req.Params = copied
	return req, nil
}

// Validate checks the request for required fields.
func (r QuoteRequest) Validate() error {
	if !r.Service.Valid() {
		return fmt.Errorf("%w: unknown service %q", ErrInvalidRequest, r.Service)
	}
	if strings.TrimSpace(r.Origin) == "" {
		return fmt.Errorf("%w: origin is required", ErrInvalidRequest)
	}
	if strings.TrimSpace(r.Destination) == "" {
		return fmt.Errorf("%w: destination is required", ErrInvalidRequest)
	}
	return nil
}

// copyParams deep-copies params through their JSON form, which is also the form
// the fingerprint hashes. Numbers are kept as json.Number in canonical decimal
// spelling, so 120, 120.0 and 1.2e2 are the same value.
func copyParams(params map[string]any) (map[string]any, error) {
	if len(params) == 0 {
		return map[string]any{}, nil
	}
	data, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("%w: params: %v", ErrInvalidRequest, err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var out map[string]any
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: params: %v", ErrInvalidRequest, err)
	}
	if err := canonicalNumbers(out); err != nil {
		return nil, err
	}
	return out, nil
}

// canonicalNumbers rewrites every json.Number in v, at any depth, to its
// shortest decimal form.
func canonicalNumbers(v any) error {
	switch t := v.(type) {
	case map[string]any:
		for k, elem := range t {
			if n, ok := elem.(json.Number); ok {
				c, err := canonicalNumber(n)
				if err != nil {
					return err
				}
				t[k] = c
				continue
			}
			if err := canonicalNumbers(elem); err != nil {
				return err
			}
		}
	case []any:
		for i, elem := range t {
			if n, ok := elem.(json.Number); ok {
				c, err := canonicalNumber(n)
				if err != nil {
					return err
				}
				t[i] = c
				continue
			}
			if err := canonicalNumbers(elem); err != nil {
				return err
			}
		}
	}
	return nil
}

func canonicalNumber(n json.Number) (json.Number, error) {
	d, err := decimal.NewFromString(n.String())
	if err != nil {
		return "", fmt.Errorf("%w: params: number %q: %v", ErrInvalidRequest, n, err)
	}
	return json.Number(d.String()), nil
}

// Quote is a single priced offer from a carrier or estimator.
type Quote struct {
	CarrierName     string          `json:"carrier_name"`
	TransitTime     string          `json:"transit_time"`
	TotalCost       decimal.Decimal `json:"total_cost"`
	Currency        string          `json:"currency"`
	ServiceProvider string          `json:"service_provider"`
}

// Validate checks that the quote is usable.
func (q Quote) Validate() error {
	if strings.TrimSpace(q.CarrierName) == "" {
		return fmt.Errorf("%w: carrier name is required", ErrMalformedResponse)
	}
	if strings.TrimSpace(q.Currency) == "" {
		return fmt.Errorf("%w: currency is required", ErrMalformedResponse)
	}
	if !q.TotalCost.IsPositive() {
		return fmt.Errorf("%w: total cost must be positive, got %s", ErrMalformedResponse, q.TotalCost)
	}
	return nil
}

// Provenance tags where a resolved quote set came from.
type Provenance string

const (
	ProvenanceCached    Provenance = "cached"
	ProvenanceLive      Provenance = "live"
	ProvenanceEstimated Provenance = "estimated"
)

// Notice is an informational, non-blocking message attached to a result.
type Notice string

const (
	NoticeQuotaLow            Notice = "quota_low"
	NoticeQuotaExhausted      Notice = "quota_exhausted"
	NoticeLiveUnavailable     Notice = "live_unavailable"
	NoticeEstimatePlaceholder Notice = "estimate_placeholder"
)

// ResolvedResult is the single value returned to the caller of Resolve.
type ResolvedResult struct {
	RequestID   string         `json:"request_id"`
	Fingerprint FingerprintKey `json:"fingerprint"`
	Quotes      []Quote        `json:"quotes"`
	Provenance  Provenance     `json:"provenance"`
	// Degraded is set when the estimator failed and a placeholder quote was returned.
	Degraded bool     `json:"degraded,omitempty"`
	Notices  []Notice `json:"notices,omitempty"`
	// QuotaRemaining is the metered budget left after this request, if it was consulted.
	QuotaRemaining *int64    `json:"quota_remaining,omitempty"`
	ResolvedAt     time.Time `json:"resolved_at"`
}

// HasNotice reports whether n was attached to the result.
func (r ResolvedResult) HasNotice(n Notice) bool {
	for _, got := range r.Notices {
		if got == n {
			return true
		}
	}
	return false
}

// Tier classifies a caller for quota purposes.
type Tier string

const (
	TierPro   Tier = "pro"
	TierFree  Tier = "free"
	TierGuest Tier = "guest"
)

// IsMetered reports whether calls made on behalf of tier consume the live budget.
// Only paid subscribers are unmetered; unknown tiers are treated as metered.
func IsMetered(tier Tier) bool {
	return tier != TierPro
}

// Int64Ptr returns a pointer to the given int64.
func Int64Ptr(v int64) *int64 { return &v }
