package confirm

import (
	"fmt"
	"strings"

	"contraguard/internal/indicators"
)

// Factor identifiers for the buy and sell checklists.
const (
	FactorExtremeFear       = "extreme_fear"
	FactorRSIOversold       = "rsi_oversold"
	FactorPriceAtSupport    = "price_at_support"
	FactorVolumeCapitulation = "volume_capitulation"
	FactorBullishTechnicals = "bullish_technicals"
	FactorVisionValidated   = "vision_validated"

	FactorExtremeGreed     = "extreme_greed"
	FactorRSIOverbought    = "rsi_overbought"
	FactorPriceAtResistance = "price_at_resistance"
	FactorVolumeExhaustion = "volume_exhaustion"
	FactorBearishTechnicals = "bearish_technicals"
)

// Config holds the multi-factor engine's fixed numeric conditions.
type Config struct {
	MinBuyFactors  int `yaml:"min_buy_factors"`
	MinSellFactors int `yaml:"min_sell_factors"`

	ExtremeFearMax   float64 `yaml:"extreme_fear_max"`   // fear score at or below triggers
	ExtremeGreedMin  float64 `yaml:"extreme_greed_min"`  // fear score at or above triggers
	RSIOversoldMax   float64 `yaml:"rsi_oversold_max"`
	RSIOverboughtMin float64 `yaml:"rsi_overbought_min"`
	LevelProximityPct float64 `yaml:"level_proximity_pct"` // distance from support/resistance
	CapitulationRatio float64 `yaml:"capitulation_ratio"`  // volume multiple for capitulation
	ExhaustionRatio   float64 `yaml:"exhaustion_ratio"`    // volume multiple for exhaustion
	MinVisionConfidence float64 `yaml:"min_vision_confidence"`

	// OnChainWeight applies to volume-derived factors sourced from on-chain
	// data; all other factors weigh 1.0.
	OnChainWeight float64 `yaml:"on_chain_weight"`

	// ADXDampening scales confidence when the trend is too strong to fade.
	ADXDampening float64 `yaml:"adx_dampening"`
}

// DefaultConfig returns the production factor thresholds.
func DefaultConfig() Config {
	return Config{
		MinBuyFactors:       3,
		MinSellFactors:      2,
		ExtremeFearMax:      25,
		ExtremeGreedMin:     75,
		RSIOversoldMax:      30,
		RSIOverboughtMin:    70,
		LevelProximityPct:   2.0,
		CapitulationRatio:   2.0,
		ExhaustionRatio:     2.5,
		MinVisionConfidence: 60,
		OnChainWeight:       1.5,
		ADXDampening:        0.5,
	}
}

// Inputs carries everything one multi-factor evaluation consumes.
type Inputs struct {
	Asset      string
	Indicators indicators.Snapshot
	Levels     indicators.LevelsResult
	Sentiment  SentimentRecord
	Vision     VisionRecord
}

// Engine evaluates the weighted buy and sell factor checklists.
type Engine struct {
	config Config
}

// NewEngine creates a multi-factor confirmation engine.
func NewEngine(config Config) *Engine {
	if config.MinBuyFactors <= 0 {
		config = DefaultConfig()
	}
	return &Engine{config: config}
}

// Evaluate runs both factor sets and aggregates them into a single outcome.
// The buy set passes at MinBuyFactors triggered, the sell set at
// MinSellFactors; if both pass the higher weighted score wins, with an
// exact tie resolving to Hold. Neither passing is Hold.
func (e *Engine) Evaluate(in Inputs) Outcome {
	buyFactors := e.evaluateBuyFactors(in)
	sellFactors := e.evaluateSellFactors(in)

	buyMet, buyScore, buyTotal := tally(buyFactors)
	sellMet, sellScore, sellTotal := tally(sellFactors)

	buyPasses := buyMet >= e.config.MinBuyFactors
	sellPasses := sellMet >= e.config.MinSellFactors

	outcome := Outcome{Signal: Hold}

	switch {
	case buyPasses && sellPasses && buyScore == sellScore:
		outcome.Reasoning = fmt.Sprintf("buy and sell checklists both passed with equal weight %.2f; holding", buyScore)
		outcome.Factors = append(triggered(buyFactors), triggered(sellFactors)...)
		outcome.FactorsMet = buyMet + sellMet
	case buyPasses && (!sellPasses || buyScore > sellScore):
		outcome.Signal = Buy
		outcome.Factors = triggered(buyFactors)
		outcome.FactorsMet = buyMet
		outcome.WeightedScore = buyScore
		outcome.MinRequired = e.config.MinBuyFactors
		outcome.Confidence = clampPercent(buyScore / buyTotal * 100.0)
		outcome.Reasoning = fmt.Sprintf("%d/%d buy factors met: %s", buyMet, len(buyFactors), factorList(buyFactors))
	case sellPasses:
		outcome.Signal = Sell
		outcome.Factors = triggered(sellFactors)
		outcome.FactorsMet = sellMet
		outcome.WeightedScore = sellScore
		outcome.MinRequired = e.config.MinSellFactors
		outcome.Confidence = clampPercent(sellScore / sellTotal * 100.0)
		outcome.Reasoning = fmt.Sprintf("%d/%d sell factors met: %s", sellMet, len(sellFactors), factorList(sellFactors))
	default:
		outcome.FactorsMet = buyMet + sellMet
		outcome.MinRequired = e.config.MinBuyFactors
		outcome.Reasoning = fmt.Sprintf("no checklist passed (buy %d/%d, sell %d/%d); holding",
			buyMet, e.config.MinBuyFactors, sellMet, e.config.MinSellFactors)
	}

	// A strong directional trend makes fading it hazardous: dampen the
	// contrarian signal's confidence rather than suppressing it.
	if outcome.Signal != Hold && in.Indicators.ADX.IsValid && !in.Indicators.ADX.SafeForContrarian {
		outcome.Confidence *= e.config.ADXDampening
		outcome.Reasoning += fmt.Sprintf("; ADX %.1f marks a strong trend, confidence dampened", in.Indicators.ADX.ADX)
	}

	return outcome
}

// Reconcile applies the engine's veto over an externally suggested action.
// A suggested buy that disagrees with the engine outcome is downgraded to
// hold. Suggested sells pass through: exits stay biased toward caution, so
// an external sell is never silently suppressed.
func (e *Engine) Reconcile(outcome Outcome, suggested Action) (Action, string) {
	if suggested == Buy && outcome.Signal != Buy {
		return Hold, fmt.Sprintf("suggested buy downgraded to hold: multi-factor outcome is %s (%s)",
			outcome.Signal, outcome.Reasoning)
	}
	return suggested, ""
}

func (e *Engine) evaluateBuyFactors(in Inputs) []FactorResult {
	snap := in.Indicators
	factors := make([]FactorResult, 0, 6)

	// 1. Extreme fear: contrarian entries want panic, not complacency.
	fear := float64(in.Sentiment.FearScore)
	factors = append(factors, factor(FactorExtremeFear,
		in.Sentiment.Valid && fear <= e.config.ExtremeFearMax,
		fear, e.config.ExtremeFearMax, 1.0,
		fmt.Sprintf("fear score %.0f vs ceiling %.0f", fear, e.config.ExtremeFearMax)))

	// 2. RSI oversold.
	factors = append(factors, factor(FactorRSIOversold,
		snap.RSI.IsValid && snap.RSI.Value <= e.config.RSIOversoldMax,
		snap.RSI.Value, e.config.RSIOversoldMax, 1.0,
		fmt.Sprintf("RSI %.1f vs oversold %.1f", snap.RSI.Value, e.config.RSIOversoldMax)))

	// 3. Price at support.
	atSupport := false
	supportDist := 0.0
	if in.Levels.IsValid && in.Levels.Support > 0 {
		supportDist = (snap.Price - in.Levels.Support) / in.Levels.Support * 100.0
		atSupport = supportDist >= 0 && supportDist <= e.config.LevelProximityPct
	}
	factors = append(factors, factor(FactorPriceAtSupport, atSupport,
		supportDist, e.config.LevelProximityPct, 1.0,
		fmt.Sprintf("price %.2f is %.2f%% above support %.2f", snap.Price, supportDist, in.Levels.Support)))

	// 4. Volume capitulation (on-chain sourced, heavier weight).
	factors = append(factors, factor(FactorVolumeCapitulation,
		snap.Volume.IsValid && snap.Volume.Ratio >= e.config.CapitulationRatio,
		snap.Volume.Ratio, e.config.CapitulationRatio, e.config.OnChainWeight,
		fmt.Sprintf("volume %.2fx average vs %.2fx capitulation mark", snap.Volume.Ratio, e.config.CapitulationRatio)))

	// 5. Bullish technicals: MACD turning up or price pinned to the lower band.
	bullTech := (snap.MACD.IsValid && (snap.MACD.BullishCrossover || snap.MACD.Histogram > 0)) ||
		(snap.Bollinger.IsValid && snap.Bollinger.PercentB <= 0.1)
	factors = append(factors, factor(FactorBullishTechnicals, bullTech,
		snap.MACD.Histogram, 0, 1.0,
		fmt.Sprintf("MACD hist %.4f, %%B %.2f", snap.MACD.Histogram, snap.Bollinger.PercentB)))

	// 6. Vision validated.
	factors = append(factors, factor(FactorVisionValidated,
		in.Vision.Present && in.Vision.IsValid && in.Vision.Confidence >= e.config.MinVisionConfidence,
		in.Vision.Confidence, e.config.MinVisionConfidence, 1.0,
		fmt.Sprintf("vision confidence %.0f vs %.0f required", in.Vision.Confidence, e.config.MinVisionConfidence)))

	return factors
}

func (e *Engine) evaluateSellFactors(in Inputs) []FactorResult {
	snap := in.Indicators
	factors := make([]FactorResult, 0, 5)

	fear := float64(in.Sentiment.FearScore)
	factors = append(factors, factor(FactorExtremeGreed,
		in.Sentiment.Valid && fear >= e.config.ExtremeGreedMin,
		fear, e.config.ExtremeGreedMin, 1.0,
		fmt.Sprintf("fear score %.0f vs greed floor %.0f", fear, e.config.ExtremeGreedMin)))

	factors = append(factors, factor(FactorRSIOverbought,
		snap.RSI.IsValid && snap.RSI.Value >= e.config.RSIOverboughtMin,
		snap.RSI.Value, e.config.RSIOverboughtMin, 1.0,
		fmt.Sprintf("RSI %.1f vs overbought %.1f", snap.RSI.Value, e.config.RSIOverboughtMin)))

	atResistance := false
	resistDist := 0.0
	if in.Levels.IsValid && in.Levels.Resistance > 0 {
		resistDist = (in.Levels.Resistance - snap.Price) / in.Levels.Resistance * 100.0
		atResistance = resistDist >= 0 && resistDist <= e.config.LevelProximityPct
	}
	factors = append(factors, factor(FactorPriceAtResistance, atResistance,
		resistDist, e.config.LevelProximityPct, 1.0,
		fmt.Sprintf("price %.2f is %.2f%% below resistance %.2f", snap.Price, resistDist, in.Levels.Resistance)))

	factors = append(factors, factor(FactorVolumeExhaustion,
		snap.Volume.IsValid && snap.Volume.Ratio >= e.config.ExhaustionRatio,
		snap.Volume.Ratio, e.config.ExhaustionRatio, e.config.OnChainWeight,
		fmt.Sprintf("volume %.2fx average vs %.2fx exhaustion mark", snap.Volume.Ratio, e.config.ExhaustionRatio)))

	bearTech := (snap.MACD.IsValid && (snap.MACD.BearishCrossover || snap.MACD.Histogram < 0)) ||
		(snap.Bollinger.IsValid && snap.Bollinger.PercentB >= 0.9)
	factors = append(factors, factor(FactorBearishTechnicals, bearTech,
		snap.MACD.Histogram, 0, 1.0,
		fmt.Sprintf("MACD hist %.4f, %%B %.2f", snap.MACD.Histogram, snap.Bollinger.PercentB)))

	return factors
}

func factor(id string, hit bool, value, threshold, weight float64, reason string) FactorResult {
	return FactorResult{
		ID:        id,
		Triggered: hit,
		Value:     value,
		Threshold: threshold,
		Weight:    weight,
		Reason:    reason,
	}
}

// tally counts triggered factors and sums triggered and total weights.
func tally(factors []FactorResult) (met int, score, total float64) {
	for _, f := range factors {
		total += f.Weight
		if f.Triggered {
			met++
			score += f.Weight
		}
	}
	return met, score, total
}

func triggered(factors []FactorResult) []FactorResult {
	out := make([]FactorResult, 0, len(factors))
	for _, f := range factors {
		if f.Triggered {
			out = append(out, f)
		}
	}
	return out
}

func factorList(factors []FactorResult) string {
	ids := make([]string, 0, len(factors))
	for _, f := range factors {
		if f.Triggered {
			ids = append(ids, f.ID)
		}
	}
	return strings.Join(ids, ", ")
}

func clampPercent(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
