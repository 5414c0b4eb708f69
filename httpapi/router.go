// Package httpapi exposes the quote orchestrator over HTTP.
package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/ineyio/quoterouter"
)

// TierHeader carries the caller's subscription tier, set by the upstream
// subscription check.
const TierHeader = "X-Subscription-Tier"

const (
	defaultTimeout = 60 * time.Second
	maxBodyBytes   = 64 << 10
)

// Resolver is the part of the orchestrator the API serves.
type Resolver interface {
	Resolve(ctx context.Context, req quoterouter.QuoteRequest, tier quoterouter.Tier) (quoterouter.ResolvedResult, error)
	Usage(ctx context.Context) (quoterouter.UsageSnapshot, error)
	Housekeep(ctx context.Context) (quoterouter.HousekeepingReport, error)
}

var _ Resolver = (*quoterouter.Orchestrator)(nil)

type routerConfig struct {
	logger      *zap.Logger
	timeout     time.Duration
	defaultTier quoterouter.Tier
	middlewares []func(http.Handler) http.Handler
}

// Option customises the router.
type Option func(*routerConfig)

// WithLogger sets the request logger.
func WithLogger(l *zap.Logger) Option {
	return func(cfg *routerConfig) { cfg.logger = l }
}

// WithTimeout bounds each request (default 60s).
func WithTimeout(d time.Duration) Option {
	return func(cfg *routerConfig) { cfg.timeout = d }
}

// WithDefaultTier sets the tier used when the tier header is absent (default guest).
func WithDefaultTier(t quoterouter.Tier) Option {
	return func(cfg *routerConfig) { cfg.defaultTier = t }
}

// WithMiddlewares appends additional global middleware.
func WithMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) { cfg.middlewares = append(cfg.middlewares, mw...) }
}

// NewRouter builds the chi router serving quotes, usage and health.
func NewRouter(resolver Resolver, opts ...Option) chi.Router {
	cfg := routerConfig{
		logger:      zap.NewNop(),
		timeout:     defaultTimeout,
		defaultTier: quoterouter.TierGuest,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	h := &handlers{resolver: resolver, logger: cfg.logger, defaultTier: cfg.defaultTier}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, requestLogger(cfg.logger), middleware.Recoverer)
	if cfg.timeout > 0 {
		r.Use(middleware.Timeout(cfg.timeout))
	}
	for _, mw := range cfg.middlewares {
		if mw != nil {
			r.Use(mw)
		}
	}

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		writeError(w, req, newError("route_not_found", fmt.Sprintf("no route for %s", req.URL.Path), http.StatusNotFound))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		writeError(w, req, newError("method_not_allowed", fmt.Sprintf("method %s not allowed on %s", req.Method, req.URL.Path), http.StatusMethodNotAllowed))
	})

	r.Get("/healthz", h.healthz)
	r.Route("/v1", func(api chi.Router) {
		api.Post("/quotes", h.resolveQuote)
		api.Get("/usage", h.usage)
		api.Post("/housekeeping", h.housekeep)
	})
	return r
}

func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}
