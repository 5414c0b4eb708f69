package quoterouter

import (
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Config is the top-level resolution configuration.
type Config struct {
	// SharedBudget makes all metered tiers draw from SharedLedgerKey.
	SharedBudget    bool                        `yaml:"shared_budget"`
	LowWaterMark    int64                       `yaml:"low_water_mark"`
	LiveTimeout     time.Duration               `yaml:"live_timeout"`
	EstimateTimeout time.Duration               `yaml:"estimate_timeout"`
	Tiers           []TierConfig                `yaml:"tiers"`
	Placeholder     map[Service]PlaceholderRate `yaml:"placeholder"`
}

// TierConfig sets the monthly live budget of one metered tier.
type TierConfig struct {
	Name         Tier  `yaml:"name"`
	MonthlyLimit int64 `yaml:"monthly_limit"`
}

// PlaceholderRate is the degraded quote returned when the estimator fails.
type PlaceholderRate struct {
	TotalCost   decimal.Decimal `yaml:"total_cost"`
	Currency    string          `yaml:"currency"`
	TransitTime string          `yaml:"transit_time"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() Config {
	return Config{
		LowWaterMark:    DefaultLowWaterMark,
		LiveTimeout:     20 * time.Second,
		EstimateTimeout: 30 * time.Second,
		Tiers: []TierConfig{
			{Name: TierFree, MonthlyLimit: DefaultMonthlyLimit},
			{Name: TierGuest, MonthlyLimit: DefaultMonthlyLimit},
		},
		Placeholder: map[Service]PlaceholderRate{
			ServiceFCL:        {TotalCost: decimal.NewFromInt(2500), Currency: "USD", TransitTime: "25-40 days"},
			ServiceLCL:        {TotalCost: decimal.NewFromInt(450), Currency: "USD", TransitTime: "30-45 days"},
			ServiceAirFreight: {TotalCost: decimal.NewFromInt(900), Currency: "USD", TransitTime: "3-7 days"},
		},
	}
}

// LoadConfig reads and parses a YAML config file on top of DefaultConfig.
// Environment variables in the format ${VAR} are expanded before parsing.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("quoterouter: read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	cfg := DefaultConfig()
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return Config{}, fmt.Errorf("quoterouter: parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate checks the config for consistency.
func (c Config) Validate() error {
	if c.LowWaterMark < 0 {
		return fmt.Errorf("quoterouter: config: low_water_mark must not be negative")
	}
	if c.LiveTimeout < 0 || c.EstimateTimeout < 0 {
		return fmt.Errorf("quoterouter: config: timeouts must not be negative")
	}

	names := make(map[Tier]bool, len(c.Tiers))
	for i, t := range c.Tiers {
		if t.Name == "" {
			return fmt.Errorf("quoterouter: config: tiers[%d]: name is required", i)
		}
		if !IsMetered(t.Name) {
			return fmt.Errorf("quoterouter: config: tiers[%d]: tier %q is unmetered and takes no limit", i, t.Name)
		}
		if names[t.Name] {
			return fmt.Errorf("quoterouter: config: duplicate tier %q", t.Name)
		}
		names[t.Name] = true

		if t.MonthlyLimit < 0 {
			return fmt.Errorf("quoterouter: config: tiers[%d] (%s): monthly_limit must not be negative", i, t.Name)
		}
	}

	for svc, p := range c.Placeholder {
		if !svc.Valid() {
			return fmt.Errorf("quoterouter: config: placeholder: unknown service %q", svc)
		}
		if !p.TotalCost.IsPositive() {
			return fmt.Errorf("quoterouter: config: placeholder (%s): total_cost must be positive", svc)
		}
		if p.Currency == "" {
			return fmt.Errorf("quoterouter: config: placeholder (%s): currency is required", svc)
		}
	}

	return nil
}

// LedgerKey returns the quota counter key for a metered tier. Tiers not
// listed in Tiers draw from the guest counter, so an unrecognized tier name
// never opens a budget of its own.
func (c Config) LedgerKey(tier Tier) string {
	if c.SharedBudget {
		return SharedLedgerKey
	}
	for _, t := range c.Tiers {
		if t.Name == tier {
			return string(tier)
		}
	}
	return string(TierGuest)
}

// ApplyLimits pushes the configured tier limits into a ledger that supports it.
func (c Config) ApplyLimits(ledger QuotaLedger) {
	limiter, ok := ledger.(QuotaLimiter)
	if !ok {
		return
	}
	if c.SharedBudget {
		var total int64
		for _, t := range c.Tiers {
			if t.MonthlyLimit > total {
				total = t.MonthlyLimit
			}
		}
		if total == 0 {
			total = DefaultMonthlyLimit
		}
		limiter.SetLimit(SharedLedgerKey, total)
		return
	}
	for _, t := range c.Tiers {
		limiter.SetLimit(c.LedgerKey(t.Name), t.MonthlyLimit)
	}
}
