// Package webhook forwards captured leads to an HTTP endpoint as JSON.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/ineyio/quoterouter"
)

// Sink POSTs each lead to a URL.
type Sink struct {
	url        string
	token      string
	httpClient *http.Client
}

var _ quoterouter.LeadCapture = (*Sink)(nil)

// Option configures the sink.
type Option func(*Sink)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Sink) { s.httpClient = c }
}

// WithToken sends the token as a bearer Authorization header.
func WithToken(token string) Option {
	return func(s *Sink) { s.token = token }
}

// New creates a webhook sink.
func New(url string, opts ...Option) *Sink {
	s := &Sink{
		url:        strings.TrimSpace(url),
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Capture delivers one lead. Client errors other than 429 are reported as
// fatal so the dispatcher does not retry them.
func (s *Sink) Capture(ctx context.Context, lead quoterouter.Lead) error {
	body, err := json.Marshal(lead)
	if err != nil {
		return fmt.Errorf("%w: marshal lead: %v", quoterouter.ErrInvalidRequest, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: create request: %v", quoterouter.ErrInvalidRequest, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", lead.ID)
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", quoterouter.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return quoterouter.ErrRateLimited
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return quoterouter.ErrAuthFailed
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return fmt.Errorf("%w: webhook rejected lead with status %d", quoterouter.ErrInvalidRequest, resp.StatusCode)
	default:
		return fmt.Errorf("%w: webhook status %d", quoterouter.ErrProviderUnavailable, resp.StatusCode)
	}
}
