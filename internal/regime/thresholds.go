package regime

// Thresholds bundles the regime-adjusted gating parameters for new entries.
// Every regime keeps AllowTrading true: regimes tighten selectivity, only
// the safety switch blocks trading outright.
type Thresholds struct {
	FearCeiling          int     `yaml:"fear_ceiling" json:"fear_ceiling"`
	MinTechnicalStrength int     `yaml:"min_technical_strength" json:"min_technical_strength"`
	PositionSizeFactor   float64 `yaml:"position_size_factor" json:"position_size_factor"`
	VisionRequired       bool    `yaml:"vision_required" json:"vision_required"`
	AllowTrading         bool    `yaml:"allow_trading" json:"allow_trading"`
}

// ThresholdConfig holds the per-regime threshold bundles, overridable from
// configuration.
type ThresholdConfig struct {
	Bull Thresholds `yaml:"bull"`
	Bear Thresholds `yaml:"bear"`
	Chop Thresholds `yaml:"chop"`
}

// DefaultThresholdConfig returns the production threshold ladder: strictly
// increasing selectivity from bull to chop.
func DefaultThresholdConfig() ThresholdConfig {
	return ThresholdConfig{
		Bull: Thresholds{
			FearCeiling:          30,
			MinTechnicalStrength: 50,
			PositionSizeFactor:   1.0,
			VisionRequired:       false,
			AllowTrading:         true,
		},
		Bear: Thresholds{
			FearCeiling:          20,
			MinTechnicalStrength: 65,
			PositionSizeFactor:   0.5,
			VisionRequired:       true,
			AllowTrading:         true,
		},
		Chop: Thresholds{
			FearCeiling:          15,
			MinTechnicalStrength: 75,
			PositionSizeFactor:   0.25,
			VisionRequired:       true,
			AllowTrading:         true,
		},
	}
}

// Resolve returns the thresholds bundle for the given regime. Unknown
// regimes fall through to the chop bundle, the most selective one.
func (tc ThresholdConfig) Resolve(r Regime) Thresholds {
	switch r {
	case Bull:
		return tc.Bull
	case Bear:
		return tc.Bear
	default:
		return tc.Chop
	}
}
