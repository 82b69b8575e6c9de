package indicators

import (
	"contraguard/internal/market"
)

// Snapshot aggregates every indicator the decision core consumes, computed
// from a single candle series in one pass.
type Snapshot struct {
	RSI       RSIResult         `json:"rsi"`
	SMA50     SMAResult         `json:"sma_50"`
	SMA200    SMAResult         `json:"sma_200"`
	ATR       ATRResult         `json:"atr"`
	MACD      MACDResult        `json:"macd"`
	Bollinger BollingerResult   `json:"bollinger"`
	OBV       OBVResult         `json:"obv"`
	ADX       ADXResult         `json:"adx"`
	VWAP      VWAPResult        `json:"vwap"`
	Volume    VolumeRatioResult `json:"volume"`
	Price     float64           `json:"price"`
}

// Calculate computes the full indicator snapshot for the series. Individual
// indicators degrade to their documented neutral defaults when the series
// is too short; the snapshot itself never fails.
func Calculate(series market.Series) Snapshot {
	return Snapshot{
		RSI:       RSI(series, RSIPeriod),
		SMA50:     SMA(series, SMAShort),
		SMA200:    SMA(series, SMALong),
		ATR:       ATR(series, ATRPeriod),
		MACD:      MACD(series),
		Bollinger: Bollinger(series),
		OBV:       OBV(series),
		ADX:       ADX(series, ADXPeriod),
		VWAP:      VWAP(series),
		Volume:    VolumeRatio(series, 20),
		Price:     series.LastClose(),
	}
}
