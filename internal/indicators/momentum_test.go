package indicators

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMACD_InsufficientData(t *testing.T) {
	result := MACD(trendSeries(20, 100, 1))
	assert.False(t, result.IsValid)
	assert.Equal(t, 0.0, result.MACD)
}

func TestMACD_UptrendPositive(t *testing.T) {
	result := MACD(trendSeries(100, 100, 1))
	require.True(t, result.IsValid)
	assert.Greater(t, result.MACD, 0.0, "fast EMA above slow EMA in an uptrend")
	assert.False(t, result.BearishCrossover)
}

func TestMACD_Deterministic(t *testing.T) {
	series := trendSeries(120, 50, 0.7)
	assert.Equal(t, MACD(series), MACD(series))
}

func TestBollinger_InsufficientData(t *testing.T) {
	result := Bollinger(trendSeries(10, 100, 1))
	assert.False(t, result.IsValid)
	assert.Equal(t, 0.5, result.PercentB, "neutral %B on insufficient data")
}

func TestBollinger_FlatSeriesSqueeze(t *testing.T) {
	result := Bollinger(trendSeries(30, 100, 0))
	require.True(t, result.IsValid)
	assert.True(t, result.Squeeze, "zero-width bands are a squeeze")
	assert.InDelta(t, 100.0, result.Middle, 1e-9)
	// Degenerate bands keep %B at neutral rather than dividing by zero.
	assert.Equal(t, 0.5, result.PercentB)
}

func TestBollinger_PriceAtExtremes(t *testing.T) {
	closes := make([]float64, 25)
	for i := range closes {
		closes[i] = 100
	}
	closes[len(closes)-1] = 110 // spike well above the band

	result := Bollinger(seriesFromCloses(closes))
	require.True(t, result.IsValid)
	assert.Greater(t, result.PercentB, 1.0, "%B exceeds 1 above the upper band")
}
