package confirm

import (
	"time"
)

// Action is the closed set of trading actions the decision core emits.
type Action int

const (
	Hold Action = iota
	Buy
	Sell
)

func (a Action) String() string {
	switch a {
	case Buy:
		return "buy"
	case Sell:
		return "sell"
	case Hold:
		return "hold"
	default:
		return "unknown"
	}
}

// ParseAction maps an action string to the enum; unknown values resolve to
// Hold, the safe default.
func ParseAction(s string) Action {
	switch s {
	case "buy", "BUY":
		return Buy
	case "sell", "SELL":
		return Sell
	default:
		return Hold
	}
}

// SentimentRecord is the narrow sentiment input consumed from the external
// sentiment collaborator. FearScore runs 0 (extreme fear) to 100 (extreme
// greed). Valid is false when the provider could not be reached.
type SentimentRecord struct {
	FearScore   int       `json:"fear_score"`
	SourceCount int       `json:"source_count"`
	Timestamp   time.Time `json:"timestamp"`
	Valid       bool      `json:"valid"`
}

// VisionRecord is the chart-pattern validity flag produced by the external
// vision stage. Present is false when no vision analysis ran this cycle.
type VisionRecord struct {
	IsValid    bool    `json:"is_valid"`
	Confidence float64 `json:"confidence"` // 0-100
	Present    bool    `json:"present"`
}

// FactorResult records one factor evaluation. Immutable once computed.
type FactorResult struct {
	ID        string  `json:"id"`
	Triggered bool    `json:"triggered"`
	Value     float64 `json:"value"`
	Threshold float64 `json:"threshold"`
	Weight    float64 `json:"weight"`
	Reason    string  `json:"reason"`
}

// Outcome is the multi-factor engine's verdict for one evaluation cycle.
// Derived state: recomputed every cycle, logged but never persisted as
// authoritative.
type Outcome struct {
	Signal  Action         `json:"signal"`
	Factors []FactorResult `json:"factors"`
	// FactorsMet counts triggered factors on the checklist that produced
	// Signal; on a hold it is the combined count across both checklists.
	FactorsMet    int            `json:"factors_met"`
	WeightedScore float64        `json:"weighted_score"`
	MinRequired   int            `json:"min_required"`
	Confidence    float64        `json:"confidence"` // 0-100
	Reasoning     string         `json:"reasoning"`
}
