package indicators

import (
	"contraguard/internal/market"
)

// OBV divergence detection window (bars compared at each end).
const obvDivergenceWindow = 14

// OBVResult represents On-Balance Volume with divergence detection over the
// most recent window. A bullish divergence is price down while OBV holds up;
// bearish is the inverse.
type OBVResult struct {
	Value             float64 `json:"value"`
	BullishDivergence bool    `json:"bullish_divergence"`
	BearishDivergence bool    `json:"bearish_divergence"`
	IsValid           bool    `json:"is_valid"`
	DataCount         int     `json:"data_count"`
}

// OBV calculates On-Balance Volume and flags price/volume divergence across
// the trailing window. Needs at least two candles to accumulate.
func OBV(series market.Series) OBVResult {
	if series.Len() < 2 {
		return OBVResult{IsValid: false, DataCount: series.Len()}
	}

	obv := make([]float64, series.Len())
	for i := 1; i < series.Len(); i++ {
		switch {
		case series[i].Close > series[i-1].Close:
			obv[i] = obv[i-1] + series[i].Volume
		case series[i].Close < series[i-1].Close:
			obv[i] = obv[i-1] - series[i].Volume
		default:
			obv[i] = obv[i-1]
		}
	}

	result := OBVResult{
		Value:     obv[len(obv)-1],
		IsValid:   true,
		DataCount: series.Len(),
	}

	if series.Len() >= obvDivergenceWindow {
		start := series.Len() - obvDivergenceWindow
		priceDelta := series[series.Len()-1].Close - series[start].Close
		obvDelta := obv[len(obv)-1] - obv[start]

		result.BullishDivergence = priceDelta < 0 && obvDelta > 0
		result.BearishDivergence = priceDelta > 0 && obvDelta < 0
	}

	return result
}

// VWAPResult represents the Volume Weighted Average Price with the current
// price's signed distance from it in percent.
type VWAPResult struct {
	Value           float64 `json:"value"`
	DistancePercent float64 `json:"distance_percent"`
	IsValid         bool    `json:"is_valid"`
	DataCount       int     `json:"data_count"`
}

// VWAP calculates the volume weighted average price over the whole series
// using the typical price (H+L+C)/3 per bar. Zero cumulative volume yields
// an invalid result.
func VWAP(series market.Series) VWAPResult {
	if series.Len() == 0 {
		return VWAPResult{IsValid: false, DataCount: 0}
	}

	cumPV := 0.0
	cumVolume := 0.0
	for _, c := range series {
		typical := (c.High + c.Low + c.Close) / 3.0
		cumPV += typical * c.Volume
		cumVolume += c.Volume
	}

	if cumVolume == 0 {
		return VWAPResult{IsValid: false, DataCount: series.Len()}
	}

	vwap := cumPV / cumVolume
	price := series.LastClose()

	distance := 0.0
	if vwap > 0 {
		distance = (price - vwap) / vwap * 100.0
	}

	return VWAPResult{
		Value:           vwap,
		DistancePercent: distance,
		IsValid:         true,
		DataCount:       series.Len(),
	}
}

// VolumeRatio returns the most recent volume as a multiple of the average
// volume over the prior period bars. Used by capitulation/exhaustion
// factors. Invalid below period+1 candles.
type VolumeRatioResult struct {
	Ratio     float64 `json:"ratio"`
	Average   float64 `json:"average"`
	Latest    float64 `json:"latest"`
	IsValid   bool    `json:"is_valid"`
	DataCount int     `json:"data_count"`
}

// VolumeRatio compares the latest bar's volume against the mean of the
// preceding period bars. A neutral ratio of 1.0 is returned when data is
// insufficient.
func VolumeRatio(series market.Series, period int) VolumeRatioResult {
	if series.Len() < period+1 {
		return VolumeRatioResult{Ratio: 1.0, IsValid: false, DataCount: series.Len()}
	}

	window := series[series.Len()-period-1 : series.Len()-1]
	avg := 0.0
	for _, c := range window {
		avg += c.Volume
	}
	avg /= float64(period)

	latest := series[series.Len()-1].Volume
	if avg == 0 {
		return VolumeRatioResult{Ratio: 1.0, Average: 0, Latest: latest, IsValid: false, DataCount: series.Len()}
	}

	return VolumeRatioResult{
		Ratio:     latest / avg,
		Average:   avg,
		Latest:    latest,
		IsValid:   true,
		DataCount: series.Len(),
	}
}
