package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contraguard/internal/risk"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "contraguard.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaultValidates(t *testing.T) {
	config := Default()
	require.NoError(t, config.Validate())
	assert.Contains(t, config.Assets, "BTC")
	assert.Equal(t, 20.0, config.Safety.MaxDrawdownPct)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
assets: [BTC, ETH, SOL]
engine:
  atr_multiplier: 3.0
  risk_fraction: 0.02
safety:
  max_drawdown_pct: 15
server:
  port: 9090
`)

	config, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"BTC", "ETH", "SOL"}, config.Assets)
	assert.Equal(t, 3.0, config.Engine.ATRMultiplier)
	assert.Equal(t, 0.02, config.Engine.RiskFraction)
	assert.Equal(t, 15.0, config.Safety.MaxDrawdownPct)
	assert.Equal(t, 9090, config.Server.Port)

	// Untouched sections keep their defaults.
	assert.Equal(t, "localhost:6379", config.Cache.Addr)
}

func TestLoad_DurationStrings(t *testing.T) {
	path := writeConfig(t, `
cache:
  addr: redis.test:6379
  regime_ttl: 1h
upstream:
  timeout: 3s
server:
  read_timeout: 5s
stream:
  initial_backoff: 250ms
`)

	config, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "redis.test:6379", config.Cache.Addr)
	assert.Equal(t, time.Hour, config.Cache.RegimeTTL)
	// Unset durations in a present section keep their defaults.
	assert.Equal(t, 15*time.Minute, config.Cache.SentimentTTL)
	assert.Equal(t, 3*time.Second, config.Upstream.Timeout)
	assert.Equal(t, 5*time.Second, config.Server.ReadTimeout)
	assert.Equal(t, 250*time.Millisecond, config.Stream.InitialBackoff)
}

func TestLoad_BadDurationRejected(t *testing.T) {
	path := writeConfig(t, "cache:\n  regime_ttl: soon\n")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	config, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Engine, config.Engine)
}

func TestLoad_MalformedFileRejected(t *testing.T) {
	path := writeConfig(t, "assets: [BTC\n  bad yaml")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("CONTRAGUARD_REDIS_ADDR", "redis.internal:6380")
	t.Setenv("CONTRAGUARD_POSTGRES_ENABLED", "true")
	t.Setenv("CONTRAGUARD_UPSTREAM_URL", "http://reasoner.internal:8090")

	config, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "redis.internal:6380", config.Cache.Addr)
	assert.True(t, config.Postgres.Enabled)
	assert.Equal(t, "http://reasoner.internal:8090", config.Upstream.BaseURL)
}

func TestValidate_RejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no assets", func(c *Config) { c.Assets = nil }},
		{"zero atr multiplier", func(c *Config) { c.Engine.ATRMultiplier = 0 }},
		{"oversized risk fraction", func(c *Config) { c.Engine.RiskFraction = 0.5 }},
		{"drawdown over 100", func(c *Config) { c.Safety.MaxDrawdownPct = 120 }},
		{"bad port", func(c *Config) { c.Server.Port = 0 }},
		{"tiers over 100", func(c *Config) {
			c.Allocation = AllocationSpec{TierPercents: map[string]float64{"tier_1": 70, "tier_2": 40}}
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			config := Default()
			tc.mutate(&config)
			assert.Error(t, config.Validate())
		})
	}
}

func TestAllocationSpec_Build(t *testing.T) {
	spec := AllocationSpec{
		TierPercents: map[string]float64{"tier_1": 50, "tier_2": 25},
		AssetTiers:   map[string]string{"BTC": "tier_1", "DOGE": "meme"},
	}

	built := spec.Build()
	assert.Equal(t, 50.0, built.TierPercents[risk.Tier1])
	assert.Equal(t, risk.Tier1, built.AssetTiers["BTC"])
	assert.Equal(t, risk.TierExcluded, built.AssetTiers["DOGE"])
}

func TestAllocationSpec_EmptyUsesDefaultLadder(t *testing.T) {
	built := AllocationSpec{}.Build()
	assert.Equal(t, risk.DefaultAllocationConfig(), built)
}
