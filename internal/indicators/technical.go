package indicators

import (
	"math"

	"contraguard/internal/market"
)

// Standard lookback windows used across the decision core.
const (
	RSIPeriod    = 14
	ATRPeriod    = 14
	ADXPeriod    = 14
	SMAShort     = 50
	SMALong      = 200
	ADXSafeLimit = 30.0 // ADX at or above this marks a strong trend; contrarian entries get dampened
)

// RSIResult represents the result of RSI calculation.
type RSIResult struct {
	Value     float64 `json:"value"`
	Period    int     `json:"period"`
	IsValid   bool    `json:"is_valid"`
	DataCount int     `json:"data_count"`
}

// RSI calculates the Relative Strength Index over the close prices using
// Wilder's smoothing. With fewer than period+1 candles it returns the
// neutral value 50 flagged invalid rather than a misleading number.
func RSI(series market.Series, period int) RSIResult {
	prices := series.Closes()
	if len(prices) < period+1 {
		return RSIResult{
			Value:     50.0,
			Period:    period,
			IsValid:   false,
			DataCount: len(prices),
		}
	}

	gains := make([]float64, len(prices)-1)
	losses := make([]float64, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		change := prices[i] - prices[i-1]
		if change > 0 {
			gains[i-1] = change
		} else {
			losses[i-1] = -change
		}
	}

	avgGain := 0.0
	avgLoss := 0.0
	for i := 0; i < period; i++ {
		avgGain += gains[i]
		avgLoss += losses[i]
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)

	alpha := 1.0 / float64(period)
	for i := period; i < len(gains); i++ {
		avgGain = avgGain*(1-alpha) + gains[i]*alpha
		avgLoss = avgLoss*(1-alpha) + losses[i]*alpha
	}

	if avgLoss == 0 {
		return RSIResult{Value: 100.0, Period: period, IsValid: true, DataCount: len(prices)}
	}

	rs := avgGain / avgLoss
	return RSIResult{
		Value:     100.0 - (100.0 / (1.0 + rs)),
		Period:    period,
		IsValid:   true,
		DataCount: len(prices),
	}
}

// SMAResult represents the result of a simple moving average calculation.
type SMAResult struct {
	Value     float64 `json:"value"`
	Period    int     `json:"period"`
	IsValid   bool    `json:"is_valid"`
	DataCount int     `json:"data_count"`
}

// SMA calculates the simple moving average of the most recent period closes.
func SMA(series market.Series, period int) SMAResult {
	prices := series.Closes()
	if len(prices) < period {
		return SMAResult{Value: 0, Period: period, IsValid: false, DataCount: len(prices)}
	}

	sum := 0.0
	for _, p := range prices[len(prices)-period:] {
		sum += p
	}
	return SMAResult{
		Value:     sum / float64(period),
		Period:    period,
		IsValid:   true,
		DataCount: len(prices),
	}
}

// ATRResult represents the result of ATR calculation.
type ATRResult struct {
	Value     float64 `json:"value"`
	Period    int     `json:"period"`
	IsValid   bool    `json:"is_valid"`
	DataCount int     `json:"data_count"`
}

// ATR calculates the Average True Range with Wilder smoothing.
func ATR(series market.Series, period int) ATRResult {
	if series.Len() < period+1 {
		return ATRResult{Value: 0, Period: period, IsValid: false, DataCount: series.Len()}
	}

	trueRanges := make([]float64, series.Len()-1)
	for i := 1; i < series.Len(); i++ {
		cur := series[i]
		prevClose := series[i-1].Close

		hl := cur.High - cur.Low
		hc := math.Abs(cur.High - prevClose)
		lc := math.Abs(cur.Low - prevClose)
		trueRanges[i-1] = math.Max(hl, math.Max(hc, lc))
	}

	atr := 0.0
	for i := 0; i < period; i++ {
		atr += trueRanges[i]
	}
	atr /= float64(period)

	alpha := 1.0 / float64(period)
	for i := period; i < len(trueRanges); i++ {
		atr = atr*(1-alpha) + trueRanges[i]*alpha
	}

	return ATRResult{Value: atr, Period: period, IsValid: true, DataCount: series.Len()}
}

// ADXResult represents the result of ADX calculation. SafeForContrarian is
// true when the trend is weak enough (ADX < 30) that fading it is viable.
type ADXResult struct {
	ADX               float64 `json:"adx"`
	PDI               float64 `json:"pdi"`
	MDI               float64 `json:"mdi"`
	Period            int     `json:"period"`
	IsValid           bool    `json:"is_valid"`
	DataCount         int     `json:"data_count"`
	SafeForContrarian bool    `json:"safe_for_contrarian"`
}

// ADX calculates the Average Directional Index for trend strength. An
// invalid result is marked unsafe: without enough data the engine must not
// assume the trend is fadeable.
func ADX(series market.Series, period int) ADXResult {
	if series.Len() < period*2+1 {
		return ADXResult{Period: period, IsValid: false, DataCount: series.Len(), SafeForContrarian: false}
	}

	trueRanges := make([]float64, series.Len()-1)
	plusDM := make([]float64, series.Len()-1)
	minusDM := make([]float64, series.Len()-1)

	for i := 1; i < series.Len(); i++ {
		cur := series[i]
		prev := series[i-1]

		hl := cur.High - cur.Low
		hc := math.Abs(cur.High - prev.Close)
		lc := math.Abs(cur.Low - prev.Close)
		trueRanges[i-1] = math.Max(hl, math.Max(hc, lc))

		plusMove := cur.High - prev.High
		minusMove := prev.Low - cur.Low

		if plusMove > minusMove && plusMove > 0 {
			plusDM[i-1] = plusMove
		}
		if minusMove > plusMove && minusMove > 0 {
			minusDM[i-1] = minusMove
		}
	}

	smoothedTR := 0.0
	smoothedPlusDM := 0.0
	smoothedMinusDM := 0.0
	for i := 0; i < period; i++ {
		smoothedTR += trueRanges[i]
		smoothedPlusDM += plusDM[i]
		smoothedMinusDM += minusDM[i]
	}

	alpha := 1.0 / float64(period)
	dxValues := make([]float64, 0, len(trueRanges)-period)
	for i := period; i < len(trueRanges); i++ {
		smoothedTR = smoothedTR*(1-alpha) + trueRanges[i]*alpha
		smoothedPlusDM = smoothedPlusDM*(1-alpha) + plusDM[i]*alpha
		smoothedMinusDM = smoothedMinusDM*(1-alpha) + minusDM[i]*alpha

		if smoothedTR > 0 {
			pdi := 100.0 * smoothedPlusDM / smoothedTR
			mdi := 100.0 * smoothedMinusDM / smoothedTR
			if sum := pdi + mdi; sum > 0 {
				dxValues = append(dxValues, 100.0*math.Abs(pdi-mdi)/sum)
			}
		}
	}

	var pdi, mdi, adx float64
	if smoothedTR > 0 {
		pdi = 100.0 * smoothedPlusDM / smoothedTR
		mdi = 100.0 * smoothedMinusDM / smoothedTR
	}

	// Wilder-smooth the DX series into ADX.
	if len(dxValues) > 0 {
		adx = dxValues[0]
		for i := 1; i < len(dxValues); i++ {
			adx = adx*(1-alpha) + dxValues[i]*alpha
		}
	}

	return ADXResult{
		ADX:               adx,
		PDI:               pdi,
		MDI:               mdi,
		Period:            period,
		IsValid:           true,
		DataCount:         series.Len(),
		SafeForContrarian: adx < ADXSafeLimit,
	}
}
