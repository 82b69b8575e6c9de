package risk

import (
	"fmt"
)

// Default ATR stop multiplier and per-trade risk fraction.
const (
	DefaultATRMultiplier = 2.0
	DefaultRiskFraction  = 0.01
)

// StopPlan is the volatility-based stop and size for a prospective entry.
type StopPlan struct {
	EntryPrice    float64 `json:"entry_price"`
	StopPrice     float64 `json:"stop_price"`
	StopDistance  float64 `json:"stop_distance"`
	PositionSize  float64 `json:"position_size"`
	RiskAmount    float64 `json:"risk_amount"`
	ATR           float64 `json:"atr"`
	ATRMultiplier float64 `json:"atr_multiplier"`
}

// PlanStop computes an ATR-based stop and position size. It rejects a
// non-positive entry price, a stop at or above the entry, or a
// non-positive risk budget; rejection returns nil with the reason wrapped.
func PlanStop(entryPrice, atr, atrMultiplier, accountBalance, riskFraction float64) (*StopPlan, error) {
	if entryPrice <= 0 {
		return nil, fmt.Errorf("invalid entry price %.4f: must be positive", entryPrice)
	}
	if atrMultiplier <= 0 {
		atrMultiplier = DefaultATRMultiplier
	}
	if riskFraction <= 0 {
		riskFraction = DefaultRiskFraction
	}

	stop := entryPrice - atr*atrMultiplier
	if stop >= entryPrice {
		return nil, fmt.Errorf("stop %.4f at or above entry %.4f: ATR %.4f gives no protective distance", stop, entryPrice, atr)
	}
	if stop < 0 {
		stop = 0
	}

	distance := entryPrice - stop
	riskAmount := accountBalance * riskFraction
	if riskAmount <= 0 {
		return nil, fmt.Errorf("no risk budget: balance %.2f, fraction %.4f", accountBalance, riskFraction)
	}

	return &StopPlan{
		EntryPrice:    entryPrice,
		StopPrice:     stop,
		StopDistance:  distance,
		PositionSize:  riskAmount / distance,
		RiskAmount:    riskAmount,
		ATR:           atr,
		ATRMultiplier: atrMultiplier,
	}, nil
}
