package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadCycleInput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cycle.json")
	payload := `{
  "asset": "BTC",
  "intraday": [
    {"ts": "2026-08-24T10:00:00Z", "open": 100, "high": 101, "low": 99, "close": 100.5, "volume": 10},
    {"ts": "2026-08-24T10:15:00Z", "open": 100.5, "high": 102, "low": 100, "close": 101, "volume": 12}
  ],
  "daily": [
    {"ts": "2026-08-23T00:00:00Z", "open": 98, "high": 103, "low": 97, "close": 100, "volume": 500}
  ],
  "sentiment": {"fear_score": 22, "valid": true},
  "technical_strength": 64,
  "portfolio_value": 10000,
  "account_balance": 10000,
  "exposures": {"ETH": 1500}
}`
	require.NoError(t, os.WriteFile(path, []byte(payload), 0o644))

	in, err := readCycleInput(path)
	require.NoError(t, err)

	assert.Equal(t, "BTC", in.Asset)
	assert.Equal(t, 2, in.Intraday.Len())
	assert.Equal(t, 101.0, in.Intraday.LastClose())
	assert.Equal(t, 1, in.Daily.Len())
	assert.Equal(t, 22, in.Sentiment.FearScore)
	assert.Equal(t, 64.0, in.TechnicalStrength)
	assert.Equal(t, 1500.0, in.Exposures["ETH"])
	assert.False(t, in.Now.IsZero())
}

func TestReadCycleInput_RejectsUnorderedCandles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cycle.json")
	payload := `{
  "asset": "BTC",
  "intraday": [
    {"ts": "2026-08-24T10:15:00Z", "close": 101},
    {"ts": "2026-08-24T10:00:00Z", "close": 100.5}
  ]
}`
	require.NoError(t, os.WriteFile(path, []byte(payload), 0o644))

	_, err := readCycleInput(path)
	assert.ErrorContains(t, err, "intraday series")
}

func TestReadCycleInput_MissingFile(t *testing.T) {
	_, err := readCycleInput(filepath.Join(t.TempDir(), "absent.json"))
	assert.ErrorContains(t, err, "failed to read cycle input")
}
