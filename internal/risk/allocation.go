package risk

import (
	"fmt"
	"strings"
)

// Tier is the asset classification bucket with its own allocation ceiling.
type Tier int

const (
	TierExcluded Tier = iota
	Tier1
	Tier2
	Tier3
)

func (t Tier) String() string {
	switch t {
	case Tier1:
		return "tier_1"
	case Tier2:
		return "tier_2"
	case Tier3:
		return "tier_3"
	case TierExcluded:
		return "excluded"
	default:
		return "unknown"
	}
}

// ParseTier maps a configured tier name to the enum; unknown names are
// excluded from allocation entirely.
func ParseTier(s string) Tier {
	switch strings.ToLower(s) {
	case "tier_1", "tier1":
		return Tier1
	case "tier_2", "tier2":
		return Tier2
	case "tier_3", "tier3":
		return Tier3
	default:
		return TierExcluded
	}
}

// AllocationConfig holds the per-tier portfolio percentage ceilings and the
// asset-to-tier assignment.
type AllocationConfig struct {
	TierPercents map[Tier]float64 `yaml:"-"`
	AssetTiers   map[string]Tier  `yaml:"-"`
}

// DefaultAllocationConfig returns the production tier ladder: 60/30/10/0
// percent of portfolio value.
func DefaultAllocationConfig() AllocationConfig {
	return AllocationConfig{
		TierPercents: map[Tier]float64{
			Tier1:        60.0,
			Tier2:        30.0,
			Tier3:        10.0,
			TierExcluded: 0.0,
		},
		AssetTiers: map[string]Tier{
			"BTC": Tier1,
			"ETH": Tier1,
			"SOL": Tier2,
			"BNB": Tier2,
			"ADA": Tier3,
			"DOT": Tier3,
		},
	}
}

// AllocationResult reports whether and how much of a requested allocation
// can proceed. Always recomputed; never cached beyond one evaluation.
type AllocationResult struct {
	CanAllocate       bool    `json:"can_allocate"`
	MaxAmount         float64 `json:"max_amount"`
	CurrentAllocation float64 `json:"current_allocation"`
	TierLimit         float64 `json:"tier_limit"`
	RemainingCapacity float64 `json:"remaining_capacity"`
	Tier              Tier    `json:"tier"`
	Reason            string  `json:"reason"`
}

// Allocator enforces the tiered allocation ceilings.
type Allocator struct {
	config AllocationConfig
}

// NewAllocator creates a tier allocation limiter.
func NewAllocator(config AllocationConfig) *Allocator {
	if config.TierPercents == nil {
		config = DefaultAllocationConfig()
	}
	return &Allocator{config: config}
}

// TierOf returns the configured tier for an asset; unassigned assets are
// excluded.
func (a *Allocator) TierOf(asset string) Tier {
	if tier, ok := a.config.AssetTiers[asset]; ok {
		return tier
	}
	return TierExcluded
}

// Check evaluates a requested allocation against the asset tier's remaining
// capacity. Requests above the remaining capacity are reduced to it, not
// rejected; a zero or negative remainder rejects with MaxAmount 0.
func (a *Allocator) Check(asset string, requested, currentTierAllocation, portfolioValue float64) AllocationResult {
	tier := a.TierOf(asset)
	tierPct := a.config.TierPercents[tier]
	tierLimit := portfolioValue * tierPct / 100.0

	result := AllocationResult{
		CurrentAllocation: currentTierAllocation,
		TierLimit:         tierLimit,
		Tier:              tier,
	}

	if tier == TierExcluded || tierPct <= 0 {
		result.Reason = fmt.Sprintf("%s is in %s: no allocation permitted", asset, tier)
		return result
	}

	remaining := tierLimit - currentTierAllocation
	result.RemainingCapacity = remaining

	if remaining <= 0 {
		result.Reason = fmt.Sprintf("%s ceiling reached: %.2f of %.2f allocated", tier, currentTierAllocation, tierLimit)
		return result
	}

	result.CanAllocate = true
	if requested > remaining {
		result.MaxAmount = remaining
		result.Reason = fmt.Sprintf("request %.2f reduced to remaining %s capacity %.2f", requested, tier, remaining)
	} else {
		result.MaxAmount = requested
		result.Reason = fmt.Sprintf("request %.2f within %s capacity %.2f", requested, tier, remaining)
	}
	return result
}
