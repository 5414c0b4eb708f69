package app

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/ineyio/quoterouter/internal/logging"
)

// EnvPrefix namespaces every process setting.
const EnvPrefix = "QUOTEROUTER_"

// Env is the process configuration read from QUOTEROUTER_* variables.
type Env struct {
	ConfigFile string         `env:"CONFIG"`
	Log        logging.Config `envPrefix:"LOG_"`

	CacheBackend    string        `env:"CACHE_BACKEND" envDefault:"memory"`
	QuotaBackend    string        `env:"QUOTA_BACKEND" envDefault:"memory"`
	CacheMaxEntries int           `env:"CACHE_MAX_ENTRIES"`
	CacheTTL        time.Duration `env:"CACHE_TTL" envDefault:"24h"`

	SQLitePath     string `env:"SQLITE_PATH" envDefault:"quoterouter.db"`
	SQLiteMaxPages int    `env:"SQLITE_MAX_PAGES"`

	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB"`

	PostgresDSN string `env:"POSTGRES_DSN"`

	CarrierAPIURL string `env:"CARRIER_API_URL"`
	CarrierAPIKey string `env:"CARRIER_API_KEY"`

	EstimatorURL   string `env:"ESTIMATOR_URL" envDefault:"https://api.openai.com/v1"`
	EstimatorKey   string `env:"ESTIMATOR_API_KEY"`
	EstimatorModel string `env:"ESTIMATOR_MODEL" envDefault:"gpt-4o-mini"`

	LeadWebhookURL   string `env:"LEAD_WEBHOOK_URL"`
	LeadWebhookToken string `env:"LEAD_WEBHOOK_TOKEN"`
	LeadWorkers      int    `env:"LEAD_WORKERS" envDefault:"2"`

	ListenAddr        string        `env:"LISTEN_ADDR" envDefault:":8080"`
	HousekeepInterval time.Duration `env:"HOUSEKEEP_INTERVAL" envDefault:"1h"`
}

// ParseEnv loads Env from the process environment.
func ParseEnv() (Env, error) {
	var e Env
	if err := env.ParseWithOptions(&e, env.Options{Prefix: EnvPrefix}); err != nil {
		return Env{}, fmt.Errorf("parse env: %w", err)
	}
	return e, nil
}
