package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/ineyio/quoterouter"
)

type handlers struct {
	resolver    Resolver
	logger      *zap.Logger
	defaultTier quoterouter.Tier
}

type quoteRequestBody struct {
	Service     string         `json:"service"`
	Origin      string         `json:"origin"`
	Destination string         `json:"destination"`
	Params      map[string]any `json:"params"`
}

func (h *handlers) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handlers) resolveQuote(w http.ResponseWriter, r *http.Request) {
	var body quoteRequestBody
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.UseNumber()
	if err := dec.Decode(&body); err != nil {
		writeError(w, r, newError("invalid_json", err.Error(), http.StatusBadRequest))
		return
	}

	svc, err := quoterouter.ParseService(body.Service)
	if err != nil {
		writeError(w, r, newError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	req, err := quoterouter.NewQuoteRequest(svc, body.Origin, body.Destination, body.Params)
	if err != nil {
		writeError(w, r, newError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	res, err := h.resolver.Resolve(r.Context(), req, h.tier(r))
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, res)
	case errors.Is(err, quoterouter.ErrInvalidRequest):
		writeError(w, r, newError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, r, newError("timeout", "quote resolution timed out", http.StatusGatewayTimeout))
	case errors.Is(err, context.Canceled):
		// The client is gone; the pipeline keeps running detached.
		h.logger.Debug("client abandoned quote request", zap.String("service", string(req.Service)))
	default:
		h.logger.Error("resolve failed", zap.Error(err))
		writeError(w, r, newError("internal", "quote resolution failed", http.StatusInternalServerError))
	}
}

func (h *handlers) tier(r *http.Request) quoterouter.Tier {
	raw := strings.ToLower(strings.TrimSpace(r.Header.Get(TierHeader)))
	if raw == "" {
		return h.defaultTier
	}
	return quoterouter.Tier(raw)
}

func (h *handlers) usage(w http.ResponseWriter, r *http.Request) {
	snap, err := h.resolver.Usage(r.Context())
	if err != nil {
		h.logger.Error("usage failed", zap.Error(err))
		writeError(w, r, newError("unavailable", "usage is temporarily unavailable", http.StatusServiceUnavailable))
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *handlers) housekeep(w http.ResponseWriter, r *http.Request) {
	report, err := h.resolver.Housekeep(r.Context())
	if err != nil {
		h.logger.Error("housekeeping failed", zap.Error(err))
		writeError(w, r, newError("unavailable", err.Error(), http.StatusServiceUnavailable))
		return
	}
	writeJSON(w, http.StatusOK, report)
}
