package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlanStop_Basic(t *testing.T) {
	plan, err := PlanStop(100, 2.5, 2.0, 10000, 0.01)
	require.NoError(t, err)

	assert.Equal(t, 95.0, plan.StopPrice)
	assert.Equal(t, 5.0, plan.StopDistance)
	assert.Equal(t, 100.0, plan.RiskAmount)
	assert.InDelta(t, 20.0, plan.PositionSize, 1e-9) // 100 risk / 5 distance
}

func TestPlanStop_RejectsNonPositiveEntry(t *testing.T) {
	_, err := PlanStop(0, 2.5, 2.0, 10000, 0.01)
	assert.Error(t, err)

	_, err = PlanStop(-10, 2.5, 2.0, 10000, 0.01)
	assert.Error(t, err)
}

func TestPlanStop_RejectsStopAtOrAboveEntry(t *testing.T) {
	// Zero ATR puts the stop exactly at entry.
	_, err := PlanStop(100, 0, 2.0, 10000, 0.01)
	assert.Error(t, err)

	_, err = PlanStop(100, -1, 2.0, 10000, 0.01)
	assert.Error(t, err)
}

func TestPlanStop_RejectsEmptyAccount(t *testing.T) {
	_, err := PlanStop(100, 2.5, 2.0, 0, 0.01)
	assert.Error(t, err)
}

func TestPlanStop_DefaultsApplied(t *testing.T) {
	plan, err := PlanStop(100, 2.5, 0, 10000, 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultATRMultiplier, plan.ATRMultiplier)
	assert.Equal(t, 100.0-2.5*DefaultATRMultiplier, plan.StopPrice)
}

func TestPlanStop_StopFlooredAtZero(t *testing.T) {
	// Huge ATR would put the stop below zero; it is floored, not rejected.
	plan, err := PlanStop(10, 20, 2.0, 10000, 0.01)
	require.NoError(t, err)
	assert.Equal(t, 0.0, plan.StopPrice)
	assert.Equal(t, 10.0, plan.StopDistance)
}
