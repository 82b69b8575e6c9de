package indicators

import (
	"contraguard/internal/market"
)

// Default lookback for support/resistance extraction.
const LevelLookback = 50

// LevelsResult holds the support and resistance levels extracted from the
// trailing lookback window.
type LevelsResult struct {
	Support    float64 `json:"support"`
	Resistance float64 `json:"resistance"`
	Lookback   int     `json:"lookback"`
	IsValid    bool    `json:"is_valid"`
	DataCount  int     `json:"data_count"`
}

// Levels extracts the lowest low and highest high of the trailing lookback
// window as support and resistance. Needs at least five candles for the
// levels to mean anything.
func Levels(series market.Series, lookback int) LevelsResult {
	if series.Len() < 5 {
		return LevelsResult{Lookback: lookback, IsValid: false, DataCount: series.Len()}
	}

	window := series.Tail(lookback)
	support := window[0].Low
	resistance := window[0].High
	for _, c := range window {
		if c.Low < support {
			support = c.Low
		}
		if c.High > resistance {
			resistance = c.High
		}
	}

	return LevelsResult{
		Support:    support,
		Resistance: resistance,
		Lookback:   lookback,
		IsValid:    true,
		DataCount:  series.Len(),
	}
}
