package risk

// Level maps a utilization percentage to a severity band.
type Level int

const (
	LevelLow Level = iota
	LevelModerate
	LevelHigh
	LevelCritical
)

func (l Level) String() string {
	switch l {
	case LevelLow:
		return "low"
	case LevelModerate:
		return "moderate"
	case LevelHigh:
		return "high"
	case LevelCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// Fixed utilization cut-offs for severity banding.
const (
	moderateCutoff = 50.0
	highCutoff     = 80.0
	criticalCutoff = 100.0
)

// LevelFor bands a utilization percentage: below 50 low, below 80
// moderate, below 100 high, at or above 100 critical.
func LevelFor(utilization float64) Level {
	switch {
	case utilization >= criticalCutoff:
		return LevelCritical
	case utilization >= highCutoff:
		return LevelHigh
	case utilization >= moderateCutoff:
		return LevelModerate
	default:
		return LevelLow
	}
}

// Axis is one risk dimension's utilization reading.
type Axis struct {
	Utilization float64 `json:"utilization"` // 0-100+ percent of its limit
	Level       Level   `json:"level"`
}

// Status aggregates utilization across every tracked risk dimension.
// Overall carries the worst level observed.
type Status struct {
	Drawdown       Axis  `json:"drawdown"`
	PerTradeRisk   Axis  `json:"per_trade_risk"`
	Concentration  Axis  `json:"concentration"`
	CorrelatedExp  Axis  `json:"correlated_exposure"`
	DailyLoss      Axis  `json:"daily_loss"`
	Overall        Level `json:"overall"`
	OpenPositions  int   `json:"open_positions"`
}

// Utilizations carries the raw current/limit pairs the status is built
// from. A non-positive limit reads as zero utilization.
type Utilizations struct {
	DrawdownPct       float64
	MaxDrawdownPct    float64
	TradeRiskPct      float64
	MaxTradeRiskPct   float64
	ConcentrationPct  float64
	MaxConcentration  float64
	CorrelatedPct     float64
	MaxCorrelatedPct  float64
	DailyLossPct      float64
	MaxDailyLossPct   float64
	OpenPositions     int
}

// BuildStatus computes the banded risk status from raw utilizations.
func BuildStatus(u Utilizations) Status {
	status := Status{
		Drawdown:      axis(u.DrawdownPct, u.MaxDrawdownPct),
		PerTradeRisk:  axis(u.TradeRiskPct, u.MaxTradeRiskPct),
		Concentration: axis(u.ConcentrationPct, u.MaxConcentration),
		CorrelatedExp: axis(u.CorrelatedPct, u.MaxCorrelatedPct),
		DailyLoss:     axis(u.DailyLossPct, u.MaxDailyLossPct),
		OpenPositions: u.OpenPositions,
	}

	status.Overall = status.Drawdown.Level
	for _, a := range []Axis{status.PerTradeRisk, status.Concentration, status.CorrelatedExp, status.DailyLoss} {
		if a.Level > status.Overall {
			status.Overall = a.Level
		}
	}
	return status
}

func axis(current, limit float64) Axis {
	utilization := 0.0
	if limit > 0 {
		utilization = current / limit * 100.0
	}
	return Axis{Utilization: utilization, Level: LevelFor(utilization)}
}
