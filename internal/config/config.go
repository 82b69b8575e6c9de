// Package config loads the full runtime configuration from a YAML file,
// layering environment overrides on top for deployment secrets.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"contraguard/internal/cache"
	"contraguard/internal/confirm"
	"contraguard/internal/engine"
	httpapi "contraguard/internal/interfaces/http"
	"contraguard/internal/persistence/postgres"
	"contraguard/internal/position"
	"contraguard/internal/regime"
	"contraguard/internal/risk"
	"contraguard/internal/safety"
	"contraguard/internal/stream"
	"contraguard/internal/upstream"
)

// LogConfig controls log output and rotation.
type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// AllocationSpec is the YAML-friendly form of the tier ladder. Tier and
// asset names are strings in the file and parsed into the risk enums.
type AllocationSpec struct {
	TierPercents map[string]float64 `yaml:"tier_percents"`
	AssetTiers   map[string]string  `yaml:"asset_tiers"`
}

// Build converts the file form into the allocation config the risk
// package consumes. An empty section yields the default ladder.
func (s AllocationSpec) Build() risk.AllocationConfig {
	if len(s.TierPercents) == 0 && len(s.AssetTiers) == 0 {
		return risk.DefaultAllocationConfig()
	}
	config := risk.AllocationConfig{
		TierPercents: make(map[risk.Tier]float64, len(s.TierPercents)),
		AssetTiers:   make(map[string]risk.Tier, len(s.AssetTiers)),
	}
	for name, pct := range s.TierPercents {
		config.TierPercents[risk.ParseTier(name)] = pct
	}
	for asset, name := range s.AssetTiers {
		config.AssetTiers[asset] = risk.ParseTier(name)
	}
	return config
}

// Config aggregates every component's settings.
type Config struct {
	Assets []string `yaml:"assets"`

	Engine      engine.Config           `yaml:"engine"`
	Safety      safety.Config           `yaml:"safety"`
	Confirm     confirm.Config          `yaml:"confirm"`
	Thresholds  regime.ThresholdConfig  `yaml:"thresholds"`
	Positions   position.ManagerConfig  `yaml:"positions"`
	Allocation  AllocationSpec          `yaml:"allocation"`
	Correlation risk.CorrelationConfig  `yaml:"correlation"`
	Cache       cache.Config            `yaml:"cache"`
	Postgres    postgres.Config         `yaml:"postgres"`
	Upstream    upstream.Config         `yaml:"upstream"`
	Server      httpapi.ServerConfig    `yaml:"server"`
	Stream      stream.Config           `yaml:"stream"`
	Log         LogConfig               `yaml:"log"`
}

// Default returns the full default configuration.
func Default() Config {
	return Config{
		Assets:      []string{"BTC", "ETH"},
		Engine:      engine.DefaultConfig(),
		Safety:      safety.DefaultConfig(),
		Confirm:     confirm.DefaultConfig(),
		Thresholds:  regime.DefaultThresholdConfig(),
		Positions:   position.DefaultManagerConfig(),
		Correlation: risk.DefaultCorrelationConfig(),
		Cache:       cache.DefaultConfig(),
		Postgres:    postgres.DefaultConfig(),
		Upstream:    upstream.DefaultConfig(),
		Server:      httpapi.DefaultServerConfig(),
		Stream:      stream.DefaultConfig(),
		Log: LogConfig{
			Level:      "info",
			File:       "",
			MaxSizeMB:  50,
			MaxBackups: 5,
			MaxAgeDays: 14,
		},
	}
}

// Load reads the YAML file at path over the defaults, then applies
// environment overrides. A missing file is not an error; a present but
// unparsable one is.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("no .env file, using process environment")
	}

	config := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			log.Warn().Str("path", path).Msg("config file not found, using defaults")
		case err != nil:
			return Config{}, fmt.Errorf("failed to read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, &config); err != nil {
				return Config{}, fmt.Errorf("failed to parse config YAML: %w", err)
			}
		}
	}

	config.applyEnv()

	if err := config.Validate(); err != nil {
		return Config{}, err
	}
	return config, nil
}

// applyEnv layers deployment overrides over the file values. Secrets
// never belong in the YAML file.
func (c *Config) applyEnv() {
	c.Cache.Addr = getEnv("CONTRAGUARD_REDIS_ADDR", c.Cache.Addr)
	c.Cache.Password = getEnv("CONTRAGUARD_REDIS_PASSWORD", c.Cache.Password)
	c.Postgres.DSN = getEnv("CONTRAGUARD_POSTGRES_DSN", c.Postgres.DSN)
	c.Postgres.Enabled = getEnvBool("CONTRAGUARD_POSTGRES_ENABLED", c.Postgres.Enabled)
	c.Upstream.BaseURL = getEnv("CONTRAGUARD_UPSTREAM_URL", c.Upstream.BaseURL)
	c.Stream.URL = getEnv("CONTRAGUARD_WS_URL", c.Stream.URL)
	c.Log.Level = getEnv("CONTRAGUARD_LOG_LEVEL", c.Log.Level)
}

// Validate rejects configurations that would make the risk controls
// inert.
func (c *Config) Validate() error {
	if len(c.Assets) == 0 {
		return fmt.Errorf("config: at least one asset is required")
	}
	if c.Engine.ATRMultiplier <= 0 {
		return fmt.Errorf("config: atr_multiplier must be positive, got %.2f", c.Engine.ATRMultiplier)
	}
	if c.Engine.RiskFraction <= 0 || c.Engine.RiskFraction > 0.1 {
		return fmt.Errorf("config: risk_fraction %.4f outside (0, 0.1]", c.Engine.RiskFraction)
	}
	if c.Safety.MaxDrawdownPct <= 0 || c.Safety.MaxDrawdownPct > 100 {
		return fmt.Errorf("config: max_drawdown_pct %.2f outside (0, 100]", c.Safety.MaxDrawdownPct)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: invalid server port %d", c.Server.Port)
	}

	allocation := c.Allocation.Build()
	var total float64
	for tier, pct := range allocation.TierPercents {
		if pct < 0 {
			return fmt.Errorf("config: negative allocation for %s", tier)
		}
		total += pct
	}
	if total > 100 {
		return fmt.Errorf("config: tier allocations sum to %.1f%%, exceeding 100%%", total)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		log.Warn().Str("key", key).Str("value", value).Msg("unparsable boolean env var, keeping fallback")
		return fallback
	}
	return parsed
}
