package regime

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultThresholds_SelectivityLadder(t *testing.T) {
	tc := DefaultThresholdConfig()

	// Fear ceiling tightens from bull to chop.
	assert.Greater(t, tc.Bull.FearCeiling, tc.Bear.FearCeiling)
	assert.Greater(t, tc.Bear.FearCeiling, tc.Chop.FearCeiling)

	// Required technical strength rises.
	assert.Less(t, tc.Bull.MinTechnicalStrength, tc.Bear.MinTechnicalStrength)
	assert.Less(t, tc.Bear.MinTechnicalStrength, tc.Chop.MinTechnicalStrength)

	// Position sizing shrinks.
	assert.Equal(t, 1.0, tc.Bull.PositionSizeFactor)
	assert.Equal(t, 0.5, tc.Bear.PositionSizeFactor)
	assert.Equal(t, 0.25, tc.Chop.PositionSizeFactor)
}

func TestDefaultThresholds_TradingNeverBlockedByRegime(t *testing.T) {
	tc := DefaultThresholdConfig()
	for _, r := range []Regime{Bull, Bear, Chop} {
		assert.True(t, tc.Resolve(r).AllowTrading, "regime %s must not block trading outright", r)
	}
}

func TestResolve_UnknownRegimeUsesChop(t *testing.T) {
	tc := DefaultThresholdConfig()
	assert.Equal(t, tc.Chop, tc.Resolve(Regime(99)))
}
