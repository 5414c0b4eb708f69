package quoterouter

import (
	"errors"
	"fmt"
)

// Sentinel errors.
var (
	ErrInvalidRequest      = errors.New("quoterouter: invalid request")
	ErrCacheFull           = errors.New("quoterouter: cache storage full")
	ErrCacheUnavailable    = errors.New("quoterouter: cache unavailable")
	ErrQuotaExceeded       = errors.New("quoterouter: quota exceeded")
	ErrRateLimited         = errors.New("quoterouter: rate limited by provider")
	ErrAuthFailed          = errors.New("quoterouter: authentication failed")
	ErrProviderUnavailable = errors.New("quoterouter: provider unavailable")
	ErrNoQuotes            = errors.New("quoterouter: provider returned no quotes")
	ErrMalformedResponse   = errors.New("quoterouter: malformed response")
	ErrEstimateFailed      = errors.New("quoterouter: estimate failed")
	ErrLeadQueueFull       = errors.New("quoterouter: lead queue full")
)

// ProviderError wraps a live provider failure with routing context.
type ProviderError struct {
	Err      error
	Provider string
	Service  Service
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("quoterouter: provider=%s service=%s: %v", e.Provider, e.Service, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// IsFatal returns true if retrying the same call cannot succeed.
func IsFatal(err error) bool {
	return errors.Is(err, ErrAuthFailed) || errors.Is(err, ErrInvalidRequest)
}

// IsRetryable returns true if the same call may succeed later.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrProviderUnavailable) ||
		errors.Is(err, ErrCacheUnavailable)
}
