package regime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contraguard/internal/market"
)

func dailySeries(closes []float64) market.Series {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	candles := make([]market.Candle, len(closes))
	for i, c := range closes {
		candles[i] = market.Candle{
			Timestamp: base.AddDate(0, 0, i),
			Open:      c, High: c, Low: c, Close: c,
			Volume: 1000,
		}
	}
	s, err := market.NewSeries(candles)
	if err != nil {
		panic(err)
	}
	return s
}

func risingSeries(n int) market.Series {
	closes := make([]float64, n)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}
	return dailySeries(closes)
}

func fallingSeries(n int) market.Series {
	closes := make([]float64, n)
	for i := range closes {
		closes[i] = 1000 - float64(i)*2
	}
	return dailySeries(closes)
}

func TestClassify_InsufficientData(t *testing.T) {
	analysis := Classify(risingSeries(150))

	assert.Equal(t, Chop, analysis.Regime)
	assert.Equal(t, 0.0, analysis.Confidence)
	assert.Contains(t, analysis.Reasoning, "insufficient daily history")
}

func TestClassify_Bull(t *testing.T) {
	analysis := Classify(risingSeries(250))

	assert.Equal(t, Bull, analysis.Regime)
	assert.Equal(t, 85.0, analysis.Confidence)
	assert.True(t, analysis.GoldenCross)
	assert.False(t, analysis.DeathCross)
	assert.Greater(t, analysis.PriceVs200DMA, 0.0)
	assert.Greater(t, analysis.TrendStrength, 0.0)
	assert.LessOrEqual(t, analysis.TrendStrength, 100.0)
}

func TestClassify_Bear(t *testing.T) {
	analysis := Classify(fallingSeries(250))

	assert.Equal(t, Bear, analysis.Regime)
	assert.Equal(t, 85.0, analysis.Confidence)
	assert.True(t, analysis.DeathCross)
	assert.Less(t, analysis.PriceVs200DMA, 0.0)
}

func TestClassify_ChopOnDisagreement(t *testing.T) {
	// Long decline then a violent 10-bar recovery: price ends above the
	// 200dma while SMA50 is still below it.
	closes := make([]float64, 250)
	for i := 0; i < 240; i++ {
		closes[i] = 1000 - float64(i)*3
	}
	for i := 240; i < 250; i++ {
		closes[i] = closes[239] + float64(i-239)*200
	}
	analysis := Classify(dailySeries(closes))

	require.Equal(t, Chop, analysis.Regime, "reasoning: %s", analysis.Reasoning)
	assert.Equal(t, 60.0, analysis.Confidence)
	assert.Equal(t, 30.0, analysis.TrendStrength)
}

func TestClassify_Deterministic(t *testing.T) {
	series := risingSeries(260)
	assert.Equal(t, Classify(series), Classify(series))
}

func TestClassify_TrendStrengthCapped(t *testing.T) {
	// Parabolic finish pushes price far above the 200dma.
	closes := make([]float64, 250)
	for i := range closes {
		closes[i] = 100
	}
	for i := 200; i < 250; i++ {
		closes[i] = 100 + float64(i-199)*20
	}
	analysis := Classify(dailySeries(closes))

	require.Equal(t, Bull, analysis.Regime)
	assert.Equal(t, 100.0, analysis.TrendStrength)
}

func TestParseRegime_UnknownIsChop(t *testing.T) {
	assert.Equal(t, Chop, ParseRegime("sideways"))
	assert.Equal(t, Bull, ParseRegime("bull"))
	assert.Equal(t, Bear, ParseRegime("bear"))
}
