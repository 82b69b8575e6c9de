package risk

import (
	"fmt"
	"math"

	"contraguard/internal/market"
)

// CorrelationConfig holds the correlated-exposure limiter settings.
type CorrelationConfig struct {
	// MaxGroupExposurePct caps the combined exposure of one correlation
	// group as a percentage of portfolio value.
	MaxGroupExposurePct float64 `yaml:"max_group_exposure_pct"`
	// CorrelationThreshold marks two assets as correlated when the
	// computed coefficient meets or exceeds it.
	CorrelationThreshold float64 `yaml:"correlation_threshold"`
	// LookbackBars is the return history window for computed correlation.
	LookbackBars int `yaml:"lookback_bars"`
	// Groups are the predefined correlation groups used when history is
	// too thin to compute a matrix.
	Groups map[string][]string `yaml:"groups"`
}

// DefaultCorrelationConfig returns the production correlation settings.
func DefaultCorrelationConfig() CorrelationConfig {
	return CorrelationConfig{
		MaxGroupExposurePct:  40.0,
		CorrelationThreshold: 0.7,
		LookbackBars:         90,
		Groups: map[string][]string{
			"majors":      {"BTC", "ETH"},
			"l1_platform": {"SOL", "ADA", "DOT", "AVAX"},
			"exchange":    {"BNB"},
		},
	}
}

// CorrelationResult reports a correlated-exposure check.
type CorrelationResult struct {
	Allowed           bool    `json:"allowed"`
	Group             string  `json:"group"`
	GroupExposure     float64 `json:"group_exposure"`
	ProjectedExposure float64 `json:"projected_exposure"`
	ExposureLimit     float64 `json:"exposure_limit"`
	Computed          bool    `json:"computed"` // true when a correlation matrix drove the grouping
	Reason            string  `json:"reason"`
}

// Limiter enforces correlated-group exposure ceilings. It prefers a
// correlation matrix computed from return history and falls back to the
// predefined groups when coverage is below 80% of the lookback.
type Limiter struct {
	config CorrelationConfig
}

// NewLimiter creates a correlation exposure limiter.
func NewLimiter(config CorrelationConfig) *Limiter {
	if config.MaxGroupExposurePct <= 0 {
		config = DefaultCorrelationConfig()
	}
	return &Limiter{config: config}
}

// GroupOf returns the predefined group name for an asset; ungrouped assets
// form their own singleton group.
func (l *Limiter) GroupOf(asset string) string {
	for name, members := range l.config.Groups {
		for _, m := range members {
			if m == asset {
				return name
			}
		}
	}
	return asset
}

// Check evaluates whether adding amount of asset keeps the correlated
// group's exposure under the ceiling. exposures maps asset to current
// exposure value; histories supplies candle series for the computed path
// and may be nil.
func (l *Limiter) Check(asset string, amount, portfolioValue float64, exposures map[string]float64, histories map[string]market.Series) CorrelationResult {
	limit := portfolioValue * l.config.MaxGroupExposurePct / 100.0

	var members []string
	var computed bool
	if l.hasCoverage(asset, histories) {
		members = l.correlatedMembers(asset, exposures, histories)
		computed = true
	} else {
		members = l.predefinedMembers(asset)
	}

	groupExposure := 0.0
	for _, m := range members {
		groupExposure += exposures[m]
	}
	projected := groupExposure + amount

	result := CorrelationResult{
		Group:             l.GroupOf(asset),
		GroupExposure:     groupExposure,
		ProjectedExposure: projected,
		ExposureLimit:     limit,
		Computed:          computed,
	}

	if projected > limit {
		result.Reason = fmt.Sprintf("correlated exposure %.2f would exceed limit %.2f (group %s)",
			projected, limit, result.Group)
		return result
	}

	result.Allowed = true
	result.Reason = fmt.Sprintf("correlated exposure %.2f within limit %.2f (group %s)",
		projected, limit, result.Group)
	return result
}

// hasCoverage reports whether at least 80% of the lookback history exists
// for the candidate asset and at least one exposure peer.
func (l *Limiter) hasCoverage(asset string, histories map[string]market.Series) bool {
	if histories == nil {
		return false
	}
	need := int(float64(l.config.LookbackBars) * 0.8)
	if histories[asset].Len() < need {
		return false
	}
	for other, s := range histories {
		if other != asset && s.Len() >= need {
			return true
		}
	}
	return false
}

// predefinedMembers returns the asset's static group including itself.
func (l *Limiter) predefinedMembers(asset string) []string {
	group := l.GroupOf(asset)
	if members, ok := l.config.Groups[group]; ok {
		return members
	}
	return []string{asset}
}

// correlatedMembers returns every exposed asset whose return correlation
// with the candidate meets the threshold, plus the candidate itself.
func (l *Limiter) correlatedMembers(asset string, exposures map[string]float64, histories map[string]market.Series) []string {
	members := []string{asset}
	base := returns(histories[asset].Tail(l.config.LookbackBars))
	need := int(float64(l.config.LookbackBars) * 0.8)

	for other := range exposures {
		if other == asset {
			continue
		}
		series, ok := histories[other]
		if !ok || series.Len() < need {
			// Thin history: assume correlated rather than under-counting
			// the group.
			members = append(members, other)
			continue
		}
		coeff := pearson(base, returns(series.Tail(l.config.LookbackBars)))
		if coeff >= l.config.CorrelationThreshold {
			members = append(members, other)
		}
	}
	return members
}

// returns converts a candle series into simple per-bar returns.
func returns(s market.Series) []float64 {
	if s.Len() < 2 {
		return nil
	}
	out := make([]float64, 0, s.Len()-1)
	for i := 1; i < s.Len(); i++ {
		if s[i-1].Close != 0 {
			out = append(out, (s[i].Close-s[i-1].Close)/s[i-1].Close)
		}
	}
	return out
}

// pearson computes the correlation coefficient over the overlapping tail
// of two return series. Degenerate input yields 0.
func pearson(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	if n < 2 {
		return 0
	}
	a = a[len(a)-n:]
	b = b[len(b)-n:]

	var meanA, meanB float64
	for i := 0; i < n; i++ {
		meanA += a[i]
		meanB += b[i]
	}
	meanA /= float64(n)
	meanB /= float64(n)

	var cov, varA, varB float64
	for i := 0; i < n; i++ {
		da := a[i] - meanA
		db := b[i] - meanB
		cov += da * db
		varA += da * da
		varB += db * db
	}
	if varA == 0 || varB == 0 {
		return 0
	}
	return cov / math.Sqrt(varA*varB)
}
