package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLevelFor_Cutoffs(t *testing.T) {
	cases := []struct {
		utilization float64
		want        Level
	}{
		{0, LevelLow},
		{49.9, LevelLow},
		{50, LevelModerate},
		{79.9, LevelModerate},
		{80, LevelHigh},
		{99.9, LevelHigh},
		{100, LevelCritical},
		{130, LevelCritical},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, LevelFor(tc.utilization), "utilization %.1f", tc.utilization)
	}
}

func TestBuildStatus_OverallIsWorstAxis(t *testing.T) {
	status := BuildStatus(Utilizations{
		DrawdownPct: 2, MaxDrawdownPct: 20, // 10% -> low
		TradeRiskPct: 0.9, MaxTradeRiskPct: 1, // 90% -> high
		ConcentrationPct: 10, MaxConcentration: 40, // 25% -> low
		CorrelatedPct: 45, MaxCorrelatedPct: 40, // 112% -> critical
		DailyLossPct: 1, MaxDailyLossPct: 5, // 20% -> low
		OpenPositions: 3,
	})

	assert.Equal(t, LevelLow, status.Drawdown.Level)
	assert.Equal(t, LevelHigh, status.PerTradeRisk.Level)
	assert.Equal(t, LevelCritical, status.CorrelatedExp.Level)
	assert.Equal(t, LevelCritical, status.Overall)
	assert.Equal(t, 3, status.OpenPositions)
}

func TestBuildStatus_ZeroLimitsReadAsZeroUtilization(t *testing.T) {
	status := BuildStatus(Utilizations{DrawdownPct: 50})
	assert.Equal(t, LevelLow, status.Overall)
}
