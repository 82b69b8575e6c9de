package risk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contraguard/internal/market"
)

func historySeries(closes []float64) market.Series {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	candles := make([]market.Candle, len(closes))
	for i, c := range closes {
		candles[i] = market.Candle{Timestamp: base.AddDate(0, 0, i), Open: c, High: c, Low: c, Close: c, Volume: 1}
	}
	s, err := market.NewSeries(candles)
	if err != nil {
		panic(err)
	}
	return s
}

// walk produces n closes following the given per-bar percentage moves,
// cycled.
func walk(n int, start float64, moves []float64) []float64 {
	closes := make([]float64, n)
	price := start
	for i := 0; i < n; i++ {
		price *= 1 + moves[i%len(moves)]
		closes[i] = price
	}
	return closes
}

func TestLimiter_PredefinedGroupBlocks(t *testing.T) {
	limiter := NewLimiter(DefaultCorrelationConfig())

	// BTC and ETH share the majors group; 40% of 100k = 40k ceiling.
	exposures := map[string]float64{"ETH": 35000}
	result := limiter.Check("BTC", 10000, 100000, exposures, nil)

	assert.False(t, result.Allowed)
	assert.False(t, result.Computed)
	assert.Equal(t, "majors", result.Group)
	assert.Equal(t, 45000.0, result.ProjectedExposure)
}

func TestLimiter_PredefinedGroupAllows(t *testing.T) {
	limiter := NewLimiter(DefaultCorrelationConfig())

	exposures := map[string]float64{"ETH": 10000, "SOL": 50000}
	result := limiter.Check("BTC", 10000, 100000, exposures, nil)

	assert.True(t, result.Allowed, "SOL is outside the majors group and must not count")
	assert.Equal(t, 20000.0, result.ProjectedExposure)
}

func TestLimiter_ComputedMatrixGroups(t *testing.T) {
	limiter := NewLimiter(DefaultCorrelationConfig())

	up := []float64{0.01, -0.005, 0.02, -0.01}
	anti := []float64{-0.01, 0.005, -0.02, 0.01}

	histories := map[string]market.Series{
		"BTC": historySeries(walk(100, 100, up)),
		"XYZ": historySeries(walk(100, 50, up)),   // moves with BTC
		"ABC": historySeries(walk(100, 20, anti)), // moves against BTC
	}
	exposures := map[string]float64{"XYZ": 25000, "ABC": 35000}

	result := limiter.Check("BTC", 10000, 100000, exposures, histories)
	require.True(t, result.Computed)

	// Only XYZ correlates with BTC: projected = 25000 + 10000 ≤ 40000. Had
	// the anti-correlated ABC counted, the check would have blocked.
	assert.True(t, result.Allowed, "reason: %s", result.Reason)
	assert.Equal(t, 35000.0, result.ProjectedExposure)
}

func TestLimiter_ComputedMatrixBlocks(t *testing.T) {
	limiter := NewLimiter(DefaultCorrelationConfig())

	up := []float64{0.01, -0.005, 0.02, -0.01}
	histories := map[string]market.Series{
		"BTC": historySeries(walk(100, 100, up)),
		"XYZ": historySeries(walk(100, 50, up)),
	}
	exposures := map[string]float64{"XYZ": 35000}

	result := limiter.Check("BTC", 10000, 100000, exposures, histories)
	require.True(t, result.Computed)
	assert.False(t, result.Allowed)
}

func TestLimiter_ThinHistoryFallsBackToGroups(t *testing.T) {
	limiter := NewLimiter(DefaultCorrelationConfig())

	histories := map[string]market.Series{
		"BTC": historySeries(walk(10, 100, []float64{0.01})), // 10 bars << 80% of 90
	}
	exposures := map[string]float64{"ETH": 35000}

	result := limiter.Check("BTC", 10000, 100000, exposures, histories)
	assert.False(t, result.Computed)
	assert.False(t, result.Allowed)
}

func TestPearson(t *testing.T) {
	a := []float64{0.01, -0.02, 0.03, -0.01, 0.02}
	b := []float64{0.01, -0.02, 0.03, -0.01, 0.02}
	assert.InDelta(t, 1.0, pearson(a, b), 1e-9)

	inv := []float64{-0.01, 0.02, -0.03, 0.01, -0.02}
	assert.InDelta(t, -1.0, pearson(a, inv), 1e-9)

	assert.Equal(t, 0.0, pearson(a, []float64{0.01}))
}
