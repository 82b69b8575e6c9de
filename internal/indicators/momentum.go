package indicators

import (
	"math"

	"contraguard/internal/market"
)

// MACD parameters (fast EMA, slow EMA, signal EMA).
const (
	MACDFast   = 12
	MACDSlow   = 26
	MACDSignal = 9
)

// MACDResult represents the result of MACD calculation with crossover flags
// derived from the last two histogram values.
type MACDResult struct {
	MACD             float64 `json:"macd"`
	Signal           float64 `json:"signal"`
	Histogram        float64 `json:"histogram"`
	BullishCrossover bool    `json:"bullish_crossover"`
	BearishCrossover bool    `json:"bearish_crossover"`
	IsValid          bool    `json:"is_valid"`
	DataCount        int     `json:"data_count"`
}

// MACD calculates the Moving Average Convergence Divergence (12,26,9).
// Full confidence needs a long history; below slow+signal periods the
// result is flagged invalid with zeroed neutral values.
func MACD(series market.Series) MACDResult {
	prices := series.Closes()
	if len(prices) < MACDSlow+MACDSignal {
		return MACDResult{IsValid: false, DataCount: len(prices)}
	}

	fastEMA := emaSeries(prices, MACDFast)
	slowEMA := emaSeries(prices, MACDSlow)

	// MACD line exists once the slow EMA is seeded.
	macdLine := make([]float64, 0, len(prices)-MACDSlow+1)
	for i := MACDSlow - 1; i < len(prices); i++ {
		macdLine = append(macdLine, fastEMA[i]-slowEMA[i])
	}

	signalLine := emaSeries(macdLine, MACDSignal)

	last := len(macdLine) - 1
	histogram := macdLine[last] - signalLine[last]
	prevHistogram := histogram
	if last >= 1 {
		prevHistogram = macdLine[last-1] - signalLine[last-1]
	}

	return MACDResult{
		MACD:             macdLine[last],
		Signal:           signalLine[last],
		Histogram:        histogram,
		BullishCrossover: prevHistogram <= 0 && histogram > 0,
		BearishCrossover: prevHistogram >= 0 && histogram < 0,
		IsValid:          true,
		DataCount:        len(prices),
	}
}

// emaSeries computes a full EMA series seeded with an SMA over the first
// period values. Positions before the seed hold the running SMA.
func emaSeries(values []float64, period int) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 {
		return out
	}
	if len(values) < period {
		period = len(values)
	}

	seed := 0.0
	for i := 0; i < period; i++ {
		seed += values[i]
		out[i] = seed / float64(i+1)
	}
	out[period-1] = seed / float64(period)

	k := 2.0 / (float64(period) + 1.0)
	for i := period; i < len(values); i++ {
		out[i] = values[i]*k + out[i-1]*(1-k)
	}
	return out
}

// Bollinger parameters.
const (
	BollingerPeriod = 20
	BollingerStdDev = 2.0
	// Band width below this fraction of the middle band flags a squeeze.
	bollingerSqueezeWidth = 0.04
)

// BollingerResult represents Bollinger Bands with %B and squeeze flag.
// PercentB is 0 at the lower band, 1 at the upper band.
type BollingerResult struct {
	Upper     float64 `json:"upper"`
	Middle    float64 `json:"middle"`
	Lower     float64 `json:"lower"`
	PercentB  float64 `json:"percent_b"`
	Squeeze   bool    `json:"squeeze"`
	IsValid   bool    `json:"is_valid"`
	DataCount int     `json:"data_count"`
}

// Bollinger calculates Bollinger Bands (20, 2) over the close prices.
// Insufficient data yields a neutral %B of 0.5 flagged invalid.
func Bollinger(series market.Series) BollingerResult {
	prices := series.Closes()
	if len(prices) < BollingerPeriod {
		return BollingerResult{PercentB: 0.5, IsValid: false, DataCount: len(prices)}
	}

	window := prices[len(prices)-BollingerPeriod:]
	mean := 0.0
	for _, p := range window {
		mean += p
	}
	mean /= float64(BollingerPeriod)

	variance := 0.0
	for _, p := range window {
		variance += (p - mean) * (p - mean)
	}
	variance /= float64(BollingerPeriod)
	sd := math.Sqrt(variance)

	upper := mean + BollingerStdDev*sd
	lower := mean - BollingerStdDev*sd
	price := prices[len(prices)-1]

	percentB := 0.5
	if upper != lower {
		percentB = (price - lower) / (upper - lower)
	}

	squeeze := false
	if mean > 0 {
		squeeze = (upper-lower)/mean < bollingerSqueezeWidth
	}

	return BollingerResult{
		Upper:     upper,
		Middle:    mean,
		Lower:     lower,
		PercentB:  percentB,
		Squeeze:   squeeze,
		IsValid:   true,
		DataCount: len(prices),
	}
}
