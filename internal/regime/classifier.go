package regime

import (
	"fmt"
	"math"
	"time"

	"contraguard/internal/indicators"
	"contraguard/internal/market"
)

// Regime represents the market regime classification.
type Regime int

const (
	Chop Regime = iota
	Bull
	Bear
)

func (r Regime) String() string {
	switch r {
	case Bull:
		return "bull"
	case Bear:
		return "bear"
	case Chop:
		return "chop"
	default:
		return "unknown"
	}
}

// ParseRegime maps a stored regime string back to the enum. Unknown values
// resolve to Chop, the conservative default.
func ParseRegime(s string) Regime {
	switch s {
	case "bull":
		return Bull
	case "bear":
		return Bear
	default:
		return Chop
	}
}

// MinDailyCandles is the history required for a confident classification.
// SMA200 dominates the requirement.
const MinDailyCandles = 200

// Analysis contains one regime classification. It is recomputed from the
// latest daily candles every cycle and never mutated in place.
type Analysis struct {
	Regime        Regime    `json:"regime"`
	PriceVs200DMA float64   `json:"price_vs_200dma_pct"`
	SMA50         float64   `json:"sma_50"`
	SMA200        float64   `json:"sma_200"`
	GoldenCross   bool      `json:"golden_cross"`
	DeathCross    bool      `json:"death_cross"`
	TrendStrength float64   `json:"trend_strength"` // 0-100
	Confidence    float64   `json:"confidence"`     // 0-100
	Reasoning     string    `json:"reasoning"`
	Timestamp     time.Time `json:"timestamp"`
}

// Classify performs regime classification over daily candles. Fewer than
// MinDailyCandles yields Chop with zero confidence and an explanatory
// reason; the classifier never errors. Pure function of its input.
func Classify(daily market.Series) Analysis {
	now := time.Time{}
	if last, ok := daily.Last(); ok {
		now = last.Timestamp
	}

	if daily.Len() < MinDailyCandles {
		return Analysis{
			Regime:     Chop,
			Confidence: 0,
			Reasoning: fmt.Sprintf("insufficient daily history: %d candles, need %d; defaulting to chop",
				daily.Len(), MinDailyCandles),
			Timestamp: now,
		}
	}

	sma50 := indicators.SMA(daily, indicators.SMAShort)
	sma200 := indicators.SMA(daily, indicators.SMALong)
	price := daily.LastClose()

	priceVs200 := 0.0
	if sma200.Value > 0 {
		priceVs200 = (price - sma200.Value) / sma200.Value * 100.0
	}

	analysis := Analysis{
		PriceVs200DMA: priceVs200,
		SMA50:         sma50.Value,
		SMA200:        sma200.Value,
		GoldenCross:   sma50.Value > sma200.Value,
		DeathCross:    sma50.Value < sma200.Value,
		Timestamp:     now,
	}

	strength := math.Min(100.0, math.Abs(priceVs200)*5.0)

	switch {
	case price > sma200.Value && sma50.Value > sma200.Value:
		analysis.Regime = Bull
		analysis.Confidence = 85
		analysis.TrendStrength = strength
		analysis.Reasoning = fmt.Sprintf("price %.2f above 200dma %.2f (%+.1f%%) with golden cross",
			price, sma200.Value, priceVs200)
	case price < sma200.Value && sma50.Value < sma200.Value:
		analysis.Regime = Bear
		analysis.Confidence = 85
		analysis.TrendStrength = strength
		analysis.Reasoning = fmt.Sprintf("price %.2f below 200dma %.2f (%+.1f%%) with death cross",
			price, sma200.Value, priceVs200)
	default:
		analysis.Regime = Chop
		analysis.Confidence = 60
		analysis.TrendStrength = 30
		analysis.Reasoning = fmt.Sprintf("price position (%+.1f%% vs 200dma) disagrees with 50/200 cross; treating as chop",
			priceVs200)
	}

	return analysis
}
