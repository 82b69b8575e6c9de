package confirm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contraguard/internal/indicators"
)

// capitulationInputs is a textbook contrarian buy setup: panic sentiment,
// oversold RSI, price on support, heavy volume.
func capitulationInputs() Inputs {
	return Inputs{
		Asset: "BTC",
		Indicators: indicators.Snapshot{
			Price:     100,
			RSI:       indicators.RSIResult{Value: 22, IsValid: true},
			MACD:      indicators.MACDResult{Histogram: 0.5, IsValid: true},
			Bollinger: indicators.BollingerResult{PercentB: 0.05, IsValid: true},
			Volume:    indicators.VolumeRatioResult{Ratio: 2.8, IsValid: true},
			ADX:       indicators.ADXResult{ADX: 18, IsValid: true, SafeForContrarian: true},
		},
		Levels:    indicators.LevelsResult{Support: 99, Resistance: 140, IsValid: true},
		Sentiment: SentimentRecord{FearScore: 15, SourceCount: 4, Valid: true},
		Vision:    VisionRecord{Present: true, IsValid: true, Confidence: 80},
	}
}

// euphoriaInputs is the mirror sell setup: greed, overbought, at resistance.
func euphoriaInputs() Inputs {
	return Inputs{
		Asset: "BTC",
		Indicators: indicators.Snapshot{
			Price:     139,
			RSI:       indicators.RSIResult{Value: 81, IsValid: true},
			MACD:      indicators.MACDResult{Histogram: -0.3, IsValid: true},
			Bollinger: indicators.BollingerResult{PercentB: 0.97, IsValid: true},
			Volume:    indicators.VolumeRatioResult{Ratio: 1.2, IsValid: true},
			ADX:       indicators.ADXResult{ADX: 20, IsValid: true, SafeForContrarian: true},
		},
		Levels:    indicators.LevelsResult{Support: 99, Resistance: 140, IsValid: true},
		Sentiment: SentimentRecord{FearScore: 88, SourceCount: 4, Valid: true},
		Vision:    VisionRecord{},
	}
}

func quietInputs() Inputs {
	return Inputs{
		Asset: "BTC",
		Indicators: indicators.Snapshot{
			Price:     120,
			RSI:       indicators.RSIResult{Value: 52, IsValid: true},
			MACD:      indicators.MACDResult{Histogram: 0.01, IsValid: true},
			Bollinger: indicators.BollingerResult{PercentB: 0.5, IsValid: true},
			Volume:    indicators.VolumeRatioResult{Ratio: 1.0, IsValid: true},
			ADX:       indicators.ADXResult{ADX: 15, IsValid: true, SafeForContrarian: true},
		},
		Levels:    indicators.LevelsResult{Support: 99, Resistance: 140, IsValid: true},
		Sentiment: SentimentRecord{FearScore: 50, SourceCount: 4, Valid: true},
	}
}

func TestEvaluate_BuySignalOnCapitulation(t *testing.T) {
	engine := NewEngine(DefaultConfig())

	outcome := engine.Evaluate(capitulationInputs())
	require.Equal(t, Buy, outcome.Signal, "reasoning: %s", outcome.Reasoning)
	assert.GreaterOrEqual(t, outcome.FactorsMet, 3)
	assert.Equal(t, outcome.FactorsMet, len(outcome.Factors), "factors_met must equal triggered factor count")
	assert.Greater(t, outcome.Confidence, 0.0)
	assert.LessOrEqual(t, outcome.Confidence, 100.0)
}

func TestEvaluate_SellSignalOnEuphoria(t *testing.T) {
	engine := NewEngine(DefaultConfig())

	outcome := engine.Evaluate(euphoriaInputs())
	require.Equal(t, Sell, outcome.Signal, "reasoning: %s", outcome.Reasoning)
	assert.GreaterOrEqual(t, outcome.FactorsMet, 2)
	assert.Equal(t, outcome.FactorsMet, len(outcome.Factors))
}

func TestEvaluate_HoldWhenNothingTriggers(t *testing.T) {
	engine := NewEngine(DefaultConfig())

	outcome := engine.Evaluate(quietInputs())
	assert.Equal(t, Hold, outcome.Signal, "reasoning: %s", outcome.Reasoning)
	assert.Equal(t, 0.0, outcome.Confidence)
}

func TestEvaluate_ConfidenceAlwaysInRange(t *testing.T) {
	engine := NewEngine(DefaultConfig())

	for _, in := range []Inputs{capitulationInputs(), euphoriaInputs(), quietInputs(), {}} {
		outcome := engine.Evaluate(in)
		assert.GreaterOrEqual(t, outcome.Confidence, 0.0)
		assert.LessOrEqual(t, outcome.Confidence, 100.0)
	}
}

func TestEvaluate_OnChainFactorWeighsHeavier(t *testing.T) {
	engine := NewEngine(DefaultConfig())

	outcome := engine.Evaluate(capitulationInputs())
	require.Equal(t, Buy, outcome.Signal)

	var capWeight, fearWeight float64
	for _, f := range outcome.Factors {
		switch f.ID {
		case FactorVolumeCapitulation:
			capWeight = f.Weight
		case FactorExtremeFear:
			fearWeight = f.Weight
		}
	}
	assert.Equal(t, 1.5, capWeight)
	assert.Equal(t, 1.0, fearWeight)
}

func TestEvaluate_ADXDampensContrarianConfidence(t *testing.T) {
	engine := NewEngine(DefaultConfig())

	in := capitulationInputs()
	baseline := engine.Evaluate(in)
	require.Equal(t, Buy, baseline.Signal)

	in.Indicators.ADX = indicators.ADXResult{ADX: 45, IsValid: true, SafeForContrarian: false}
	dampened := engine.Evaluate(in)
	require.Equal(t, Buy, dampened.Signal)
	assert.InDelta(t, baseline.Confidence*0.5, dampened.Confidence, 1e-9)
}

func TestEvaluate_EmptyInputsHold(t *testing.T) {
	engine := NewEngine(DefaultConfig())

	outcome := engine.Evaluate(Inputs{})
	assert.Equal(t, Hold, outcome.Signal)
}

func TestReconcile_BuyVetoedWhenEngineDisagrees(t *testing.T) {
	engine := NewEngine(DefaultConfig())

	hold := engine.Evaluate(quietInputs())
	require.Equal(t, Hold, hold.Signal)

	action, reason := engine.Reconcile(hold, Buy)
	assert.Equal(t, Hold, action)
	assert.Contains(t, reason, "downgraded")
}

func TestReconcile_SellPassesThroughUnchanged(t *testing.T) {
	// Exit bias is asymmetric: an external sell is honored even when the
	// multi-factor engine reads hold.
	engine := NewEngine(DefaultConfig())

	hold := engine.Evaluate(quietInputs())
	require.Equal(t, Hold, hold.Signal)

	action, _ := engine.Reconcile(hold, Sell)
	assert.Equal(t, Sell, action)
}

func TestReconcile_AgreementPasses(t *testing.T) {
	engine := NewEngine(DefaultConfig())

	buy := engine.Evaluate(capitulationInputs())
	require.Equal(t, Buy, buy.Signal)

	action, _ := engine.Reconcile(buy, Buy)
	assert.Equal(t, Buy, action)
}
