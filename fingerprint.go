package quoterouter

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// FingerprintKey is the deterministic cache key of a normalized QuoteRequest.
type FingerprintKey string

func (k FingerprintKey) String() string { return string(k) }

// Fingerprint derives the cache key for req.
//
// The key is "<service>:<route slug>:<sha256 hex>". The slug is only there for
// debugging; the digest covers service, origin and destination separately, and
// the params encoded as JSON with keys sorted at every depth.
func Fingerprint(req QuoteRequest) (FingerprintKey, error) {
	params, err := canonicalParams(req.Params)
	if err != nil {
		return "", err
	}

	origin := normalizeName(req.Origin)
	destination := normalizeName(req.Destination)

	h := sha256.New()
	h.Write([]byte(req.Service))
	h.Write([]byte{0})
	h.Write([]byte(origin))
	h.Write([]byte{0})
	h.Write([]byte(destination))
	h.Write([]byte{0})
	h.Write(params)

	slug := RouteSlug(req.Origin, req.Destination)
	return FingerprintKey(strings.ToLower(string(req.Service)) + ":" + slug + ":" + hex.EncodeToString(h.Sum(nil))), nil
}

// RouteSlug lower-cases "origin-destination" and strips everything that is not a letter or digit.
func RouteSlug(origin, destination string) string {
	return normalizeName(origin + "-" + destination)
}

func normalizeName(s string) string {
	s = norm.NFKC.String(s)
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// canonicalParams encodes params in a stable form. encoding/json writes map
// keys in sorted order, which also covers nested objects; numbers are
// respelled by copyParams so requests built by hand hash like decoded ones.
func canonicalParams(params map[string]any) ([]byte, error) {
	if len(params) == 0 {
		return []byte("{}"), nil
	}
	canonical, err := copyParams(params)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(canonical)
	if err != nil {
		return nil, fmt.Errorf("%w: params: %v", ErrInvalidRequest, err)
	}
	return data, nil
}

// PeriodFor returns the calendar-month quota period ("YYYY-MM", UTC) containing now.
func PeriodFor(now time.Time) string {
	return now.UTC().Format("2006-01")
}
