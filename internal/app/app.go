// Package app wires the quoterouter binary: stores, providers, lead capture
// and the orchestrator, selected from Env.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ineyio/quoterouter"
	"github.com/ineyio/quoterouter/cache"
	cacheredis "github.com/ineyio/quoterouter/cache/redis"
	cachesqlite "github.com/ineyio/quoterouter/cache/sqlite"
	"github.com/ineyio/quoterouter/lead/logsink"
	"github.com/ineyio/quoterouter/lead/webhook"
	"github.com/ineyio/quoterouter/meter"
	"github.com/ineyio/quoterouter/provider/carrierapi"
	"github.com/ineyio/quoterouter/provider/llmestimate"
	"github.com/ineyio/quoterouter/quota"
	quotapg "github.com/ineyio/quoterouter/quota/postgres"
	quotaredis "github.com/ineyio/quoterouter/quota/redis"
	quotasqlite "github.com/ineyio/quoterouter/quota/sqlite"
)

// App holds the wired orchestrator and everything that must be closed with it.
type App struct {
	Orchestrator *quoterouter.Orchestrator
	Leads        *quoterouter.LeadDispatcher
	Config       quoterouter.Config
	Env          Env
	Logger       *zap.Logger

	closers []io.Closer
}

// Build constructs the App. The lead dispatcher is started on ctx.
func Build(ctx context.Context, e Env, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	cfg := quoterouter.DefaultConfig()
	if e.ConfigFile != "" {
		loaded, err := quoterouter.LoadConfig(e.ConfigFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	a := &App{Config: cfg, Env: e, Logger: logger}

	var redisClient *goredis.Client
	redisFor := func() *goredis.Client {
		if redisClient == nil {
			redisClient = goredis.NewClient(&goredis.Options{
				Addr:     e.RedisAddr,
				Password: e.RedisPassword,
				DB:       e.RedisDB,
			})
			a.closers = append(a.closers, redisClient)
		}
		return redisClient
	}

	cacheStore, err := a.buildCache(ctx, e, redisFor)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	ledger, err := a.buildLedger(ctx, e, redisFor)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	var providers []quoterouter.LiveProvider
	if e.CarrierAPIURL != "" {
		providers = append(providers, carrierapi.New(e.CarrierAPIURL, e.CarrierAPIKey,
			carrierapi.WithHTTPClient(&http.Client{Timeout: cfg.LiveTimeout})))
	} else {
		logger.Warn("no carrier API configured, every request will be estimated")
	}

	var estimator quoterouter.Estimator = unconfiguredEstimator{}
	if e.EstimatorKey != "" {
		estimator = llmestimate.New(e.EstimatorURL, e.EstimatorKey, e.EstimatorModel,
			llmestimate.WithHTTPClient(&http.Client{Timeout: cfg.EstimateTimeout}))
	} else {
		logger.Warn("no estimator configured, estimates will be placeholders")
	}

	var capture quoterouter.LeadCapture = logsink.New(logger)
	if e.LeadWebhookURL != "" {
		capture = webhook.New(e.LeadWebhookURL, webhook.WithToken(e.LeadWebhookToken))
	}
	a.Leads = quoterouter.NewLeadDispatcher(capture,
		quoterouter.WithLeadWorkers(e.LeadWorkers),
		quoterouter.WithLeadLogger(logger),
	)
	a.Leads.Start(ctx)

	orch, err := quoterouter.NewOrchestrator(cfg, providers, estimator,
		quoterouter.WithCacheStore(cacheStore),
		quoterouter.WithQuotaLedger(ledger),
		quoterouter.WithLeadDispatcher(a.Leads),
		quoterouter.WithMeter(meter.NewLogMeter(logger)),
		quoterouter.WithLogger(logger),
	)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.Orchestrator = orch
	return a, nil
}

func (a *App) buildCache(ctx context.Context, e Env, redisFor func() *goredis.Client) (quoterouter.CacheStore, error) {
	switch e.CacheBackend {
	case "", "memory":
		return cache.NewMemoryStore(cache.WithTTL(e.CacheTTL), cache.WithMaxEntries(e.CacheMaxEntries)), nil
	case "sqlite":
		s, err := cachesqlite.Open(ctx, e.SQLitePath,
			cachesqlite.WithTTL(e.CacheTTL),
			cachesqlite.WithMaxPageCount(e.SQLiteMaxPages),
		)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, s)
		return s, nil
	case "redis":
		return cacheredis.New(redisFor(), cacheredis.WithTTL(e.CacheTTL)), nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", e.CacheBackend)
	}
}

func (a *App) buildLedger(ctx context.Context, e Env, redisFor func() *goredis.Client) (quoterouter.QuotaLedger, error) {
	switch e.QuotaBackend {
	case "", "memory":
		return quota.NewMemoryLedger(), nil
	case "sqlite":
		s, err := quotasqlite.Open(ctx, e.SQLitePath)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, s)
		return s, nil
	case "redis":
		return quotaredis.New(redisFor()), nil
	case "postgres":
		if e.PostgresDSN == "" {
			return nil, fmt.Errorf("postgres quota backend requires %sPOSTGRES_DSN", EnvPrefix)
		}
		pool, err := pgxpool.New(ctx, e.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		a.closers = append(a.closers, closerFunc(func() error { pool.Close(); return nil }))
		s := quotapg.New(pool)
		if err := s.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown quota backend %q", e.QuotaBackend)
	}
}

// Close drains the lead queue and releases stores, in reverse order of creation.
func (a *App) Close() error {
	if a.Leads != nil {
		a.Leads.Close()
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// RunHousekeeping calls Housekeep every interval until ctx is done.
func (a *App) RunHousekeeping(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			report, err := a.Orchestrator.Housekeep(ctx)
			if err != nil {
				a.Logger.Warn("housekeeping failed", zap.Error(err))
				continue
			}
			a.Logger.Info("housekeeping",
				zap.Int("cache_purged", report.CachePurged),
				zap.Int("periods_pruned", report.PeriodsPruned),
			)
		}
	}
}

var errNoEstimator = errors.New("no estimator configured")

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// unconfiguredEstimator always fails, so results degrade to the placeholder quote.
type unconfiguredEstimator struct{}

func (unconfiguredEstimator) Estimate(context.Context, quoterouter.QuoteRequest) (quoterouter.Quote, error) {
	return quoterouter.Quote{}, errNoEstimator
}
