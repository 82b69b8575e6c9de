package position

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// ExitReason identifies why a position was reduced or closed.
type ExitReason int

const (
	NoExit ExitReason = iota
	StopLoss
	CouncilSell
	TakeProfit
	Emergency
)

func (r ExitReason) String() string {
	switch r {
	case StopLoss:
		return "stop_loss"
	case CouncilSell:
		return "council_sell"
	case TakeProfit:
		return "take_profit"
	case Emergency:
		return "emergency"
	case NoExit:
		return "no_exit"
	default:
		return "unknown"
	}
}

// ParseExitReason maps a stored reason string back to the enum.
func ParseExitReason(s string) ExitReason {
	switch s {
	case "stop_loss":
		return StopLoss
	case "council_sell":
		return CouncilSell
	case "take_profit":
		return TakeProfit
	case "emergency":
		return Emergency
	default:
		return NoExit
	}
}

// ActionType identifies the single action a cycle applied to a position.
type ActionType int

const (
	ActionNone ActionType = iota
	ActionExit
	ActionPartialExit
	ActionBreakeven
	ActionTrailingStop
	ActionScaleIn
)

func (a ActionType) String() string {
	switch a {
	case ActionExit:
		return "exit"
	case ActionPartialExit:
		return "partial_exit"
	case ActionBreakeven:
		return "breakeven"
	case ActionTrailingStop:
		return "trailing_stop"
	case ActionScaleIn:
		return "scale_in"
	case ActionNone:
		return "none"
	default:
		return "unknown"
	}
}

// Event describes the outcome of evaluating one position for one cycle.
type Event struct {
	PositionID  string     `json:"position_id"`
	Asset       string     `json:"asset"`
	Action      ActionType `json:"action"`
	Reason      ExitReason `json:"reason"`
	Rule        string     `json:"rule"`
	Price       float64    `json:"price"`
	Size        float64    `json:"size"`
	RealizedPnL float64    `json:"realized_pnl"`
	NewStop     float64    `json:"new_stop,omitempty"`
	Detail      string     `json:"detail"`
}

// OrderRequest is handed to the external execution collaborator.
type OrderRequest struct {
	Asset  string  `json:"asset"`
	Side   string  `json:"side"` // "buy" or "sell"
	Size   float64 `json:"size"`
	Price  float64 `json:"price"`
	Reason string  `json:"reason"`
}

// Executor is the narrow order-execution interface. Execution failures
// abort the action; position state is only mutated after a successful
// handoff.
type Executor interface {
	Execute(ctx context.Context, req OrderRequest) error
}

// TradeRecord is the immutable record written when a position closes or
// partially exits.
type TradeRecord struct {
	ID          string     `json:"id" db:"id"`
	PositionID  string     `json:"position_id" db:"position_id"`
	Asset       string     `json:"asset" db:"asset"`
	Side        string     `json:"side" db:"side"`
	Size        float64    `json:"size" db:"size"`
	AvgEntry    float64    `json:"avg_entry" db:"avg_entry"`
	ExitPrice   float64    `json:"exit_price" db:"exit_price"`
	RealizedPnL float64    `json:"realized_pnl" db:"realized_pnl"`
	Reason      ExitReason `json:"reason" db:"reason"`
	ClosedAt    time.Time  `json:"closed_at" db:"closed_at"`
}

// TradeStore persists immutable trade records.
type TradeStore interface {
	Insert(ctx context.Context, trade TradeRecord) error
}

// ManagerConfig holds the lifecycle rule parameters.
type ManagerConfig struct {
	// ScaleOutFraction of the open size taken when the profit target hits.
	ScaleOutFraction float64 `yaml:"scale_out_fraction"`
	// BreakevenATRGain is the unrealized gain in ATR units that moves the
	// stop to entry.
	BreakevenATRGain float64 `yaml:"breakeven_atr_gain"`
	// TrailingATRMultiplier sets the trailing distance below the mark.
	TrailingATRMultiplier float64 `yaml:"trailing_atr_multiplier"`
	// ScaleInPullbackPct is the pullback from average entry that triggers
	// one add.
	ScaleInPullbackPct float64 `yaml:"scale_in_pullback_pct"`
	// ScaleInFraction of the current size added on a scale-in.
	ScaleInFraction float64 `yaml:"scale_in_fraction"`
}

// DefaultManagerConfig returns production lifecycle parameters.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		ScaleOutFraction:      0.5,
		BreakevenATRGain:      2.0,
		TrailingATRMultiplier: 2.0,
		ScaleInPullbackPct:    5.0,
		ScaleInFraction:       0.5,
	}
}

// EvalInputs carries the per-cycle market context for one position.
type EvalInputs struct {
	Price      float64
	ATR        float64
	SellSignal bool // upstream decision resolved to sell this cycle
	Now        time.Time
}

// Manager owns every live position and applies the exit rule chain.
type Manager struct {
	config    ManagerConfig
	executor  Executor
	trades    TradeStore
	positions map[string]*Position
}

// NewManager creates a position lifecycle manager.
func NewManager(config ManagerConfig, executor Executor, trades TradeStore) *Manager {
	if config.ScaleOutFraction <= 0 {
		config = DefaultManagerConfig()
	}
	return &Manager{
		config:    config,
		executor:  executor,
		trades:    trades,
		positions: make(map[string]*Position),
	}
}

// Track registers a position with the manager.
func (m *Manager) Track(p *Position) { m.positions[p.ID] = p }

// Get returns a tracked position by ID.
func (m *Manager) Get(id string) (*Position, bool) {
	p, ok := m.positions[id]
	return p, ok
}

// All returns every tracked position regardless of status.
func (m *Manager) All() []*Position {
	out := make([]*Position, 0, len(m.positions))
	for _, p := range m.positions {
		out = append(out, p)
	}
	return out
}

// OpenPositions returns every tracked position currently OPEN.
func (m *Manager) OpenPositions() []*Position {
	out := make([]*Position, 0, len(m.positions))
	for _, p := range m.positions {
		if p.Status == Open {
			out = append(out, p)
		}
	}
	return out
}

// OpenExposure sums the entry-cost exposure of OPEN positions per asset.
func (m *Manager) OpenExposure() map[string]float64 {
	out := make(map[string]float64)
	for _, p := range m.positions {
		if p.Status == Open {
			out[p.Asset] += p.AverageEntry() * p.Size
		}
	}
	return out
}

// rule is one priority-ordered lifecycle check. The chain evaluates in
// slice order and stops at the first rule whose applies predicate fires,
// keeping the ordering contract auditable in one place.
type rule struct {
	name    string
	applies func(m *Manager, p *Position, in EvalInputs) bool
	apply   func(ctx context.Context, m *Manager, p *Position, in EvalInputs) (Event, error)
}

// lifecycleRules is the fixed priority chain. Order is a contract:
// stop-loss strictly precedes everything, and protective actions precede
// the opportunistic scale-in.
var lifecycleRules = []rule{
	{
		name: "stop_loss",
		applies: func(_ *Manager, p *Position, in EvalInputs) bool {
			return p.StopHit(in.Price)
		},
		apply: func(ctx context.Context, m *Manager, p *Position, in EvalInputs) (Event, error) {
			return m.exitFull(ctx, p, in, StopLoss,
				fmt.Sprintf("price %.4f breached stop %.4f", in.Price, p.StopLoss))
		},
	},
	{
		name: "council_sell",
		applies: func(_ *Manager, p *Position, in EvalInputs) bool {
			return in.SellSignal
		},
		apply: func(ctx context.Context, m *Manager, p *Position, in EvalInputs) (Event, error) {
			return m.exitFull(ctx, p, in, CouncilSell, "upstream sell decision")
		},
	},
	{
		name: "take_profit",
		applies: func(_ *Manager, p *Position, in EvalInputs) bool {
			return p.TakeProfit > 0 && !p.ScaledOut && in.Price >= p.TakeProfit
		},
		apply: func(ctx context.Context, m *Manager, p *Position, in EvalInputs) (Event, error) {
			return m.scaleOut(ctx, p, in)
		},
	},
	{
		name: "breakeven",
		applies: func(m *Manager, p *Position, in EvalInputs) bool {
			return !p.BreakevenSet && in.ATR > 0 &&
				in.Price >= p.AverageEntry()+m.config.BreakevenATRGain*in.ATR
		},
		apply: func(_ context.Context, m *Manager, p *Position, in EvalInputs) (Event, error) {
			p.BreakevenSet = true
			p.RaiseStop(p.AverageEntry())
			return Event{
				PositionID: p.ID, Asset: p.Asset,
				Action: ActionBreakeven, Rule: "breakeven",
				Price: in.Price, NewStop: p.StopLoss,
				Detail: fmt.Sprintf("gain ≥ %.1fx ATR; stop moved to entry %.4f", m.config.BreakevenATRGain, p.AverageEntry()),
			}, nil
		},
	},
	{
		name: "trailing_stop",
		applies: func(m *Manager, p *Position, in EvalInputs) bool {
			if in.ATR <= 0 {
				return false
			}
			return in.Price-m.config.TrailingATRMultiplier*in.ATR > p.StopLoss
		},
		apply: func(_ context.Context, m *Manager, p *Position, in EvalInputs) (Event, error) {
			newStop := in.Price - m.config.TrailingATRMultiplier*in.ATR
			p.RaiseStop(newStop)
			return Event{
				PositionID: p.ID, Asset: p.Asset,
				Action: ActionTrailingStop, Rule: "trailing_stop",
				Price: in.Price, NewStop: p.StopLoss,
				Detail: fmt.Sprintf("stop raised to %.4f (%.1fx ATR below %.4f)", p.StopLoss, m.config.TrailingATRMultiplier, in.Price),
			}, nil
		},
	},
	{
		name: "scale_in",
		applies: func(m *Manager, p *Position, in EvalInputs) bool {
			if p.ScaledIn || p.StopHit(in.Price) {
				return false
			}
			trigger := p.AverageEntry() * (1 - m.config.ScaleInPullbackPct/100.0)
			return in.Price <= trigger && in.Price > p.StopLoss
		},
		apply: func(ctx context.Context, m *Manager, p *Position, in EvalInputs) (Event, error) {
			return m.scaleIn(ctx, p, in)
		},
	},
}

// Evaluate applies the priority chain to one OPEN position. At most one
// rule fires per cycle; no rule firing yields an ActionNone event.
func (m *Manager) Evaluate(ctx context.Context, p *Position, in EvalInputs) (Event, error) {
	if p.Status != Open {
		return Event{}, fmt.Errorf("cannot evaluate position %s in state %s", p.ID, p.Status)
	}

	for _, r := range lifecycleRules {
		if r.applies(m, p, in) {
			event, err := r.apply(ctx, m, p, in)
			if err != nil {
				return Event{}, fmt.Errorf("rule %s failed for position %s: %w", r.name, p.ID, err)
			}
			log.Debug().
				Str("position", p.ID).
				Str("asset", p.Asset).
				Str("rule", r.name).
				Str("action", event.Action.String()).
				Float64("price", in.Price).
				Msg("lifecycle rule fired")
			return event, nil
		}
	}

	return Event{PositionID: p.ID, Asset: p.Asset, Action: ActionNone, Detail: "no rule fired"}, nil
}

// EvaluateAll runs the chain over every OPEN position for the asset.
func (m *Manager) EvaluateAll(ctx context.Context, asset string, in EvalInputs) ([]Event, error) {
	events := make([]Event, 0)
	for _, p := range m.OpenPositions() {
		if p.Asset != asset {
			continue
		}
		event, err := m.Evaluate(ctx, p, in)
		if err != nil {
			return events, err
		}
		events = append(events, event)
	}
	return events, nil
}

// CloseAll liquidates every OPEN position at the given marks, used by the
// safety switch's emergency stop. Marks missing an asset fall back to the
// position's average entry so liquidation never stalls on a quote gap.
func (m *Manager) CloseAll(ctx context.Context, marks map[string]float64, now time.Time) ([]Event, error) {
	events := make([]Event, 0)
	for _, p := range m.OpenPositions() {
		price, ok := marks[p.Asset]
		if !ok || price <= 0 {
			price = p.AverageEntry()
		}
		event, err := m.exitFull(ctx, p, EvalInputs{Price: price, Now: now}, Emergency, "emergency liquidation")
		if err != nil {
			return events, fmt.Errorf("liquidation failed for %s: %w", p.ID, err)
		}
		events = append(events, event)
	}
	return events, nil
}

func (m *Manager) exitFull(ctx context.Context, p *Position, in EvalInputs, reason ExitReason, detail string) (Event, error) {
	size := p.Size
	if err := m.execute(ctx, p, "sell", size, in.Price, reason); err != nil {
		return Event{}, err
	}

	avgEntry := p.AverageEntry()
	pnl, err := p.ReduceFill(size, in.Price, in.Now)
	if err != nil {
		return Event{}, err
	}

	if err := m.recordTrade(ctx, p, size, avgEntry, in.Price, pnl, reason, in.Now); err != nil {
		return Event{}, err
	}

	return Event{
		PositionID: p.ID, Asset: p.Asset,
		Action: ActionExit, Reason: reason, Rule: reason.String(),
		Price: in.Price, Size: size, RealizedPnL: pnl,
		Detail: detail,
	}, nil
}

func (m *Manager) scaleOut(ctx context.Context, p *Position, in EvalInputs) (Event, error) {
	size := p.Size * m.config.ScaleOutFraction
	if err := m.execute(ctx, p, "sell", size, in.Price, TakeProfit); err != nil {
		return Event{}, err
	}

	avgEntry := p.AverageEntry()
	pnl, err := p.ReduceFill(size, in.Price, in.Now)
	if err != nil {
		return Event{}, err
	}
	p.ScaledOut = true

	if err := m.recordTrade(ctx, p, size, avgEntry, in.Price, pnl, TakeProfit, in.Now); err != nil {
		return Event{}, err
	}

	action := ActionPartialExit
	if p.Status == Closed {
		action = ActionExit
	}
	return Event{
		PositionID: p.ID, Asset: p.Asset,
		Action: action, Reason: TakeProfit, Rule: "take_profit",
		Price: in.Price, Size: size, RealizedPnL: pnl,
		Detail: fmt.Sprintf("profit target %.4f reached", p.TakeProfit),
	}, nil
}

func (m *Manager) scaleIn(ctx context.Context, p *Position, in EvalInputs) (Event, error) {
	size := p.Size * m.config.ScaleInFraction
	if err := m.execute(ctx, p, "buy", size, in.Price, NoExit); err != nil {
		return Event{}, err
	}
	if err := p.AddFill(size, in.Price, in.Now); err != nil {
		return Event{}, err
	}
	p.ScaledIn = true

	return Event{
		PositionID: p.ID, Asset: p.Asset,
		Action: ActionScaleIn, Rule: "scale_in",
		Price: in.Price, Size: size,
		Detail: fmt.Sprintf("pullback add; average entry now %.4f", p.AverageEntry()),
	}, nil
}

func (m *Manager) execute(ctx context.Context, p *Position, side string, size, price float64, reason ExitReason) error {
	if m.executor == nil {
		return nil
	}
	req := OrderRequest{
		Asset:  p.Asset,
		Side:   side,
		Size:   size,
		Price:  price,
		Reason: reason.String(),
	}
	if err := m.executor.Execute(ctx, req); err != nil {
		return fmt.Errorf("execution failed: %w", err)
	}
	return nil
}

func (m *Manager) recordTrade(ctx context.Context, p *Position, size, avgEntry, exitPrice, pnl float64, reason ExitReason, now time.Time) error {
	if m.trades == nil {
		return nil
	}
	record := TradeRecord{
		ID:          uuid.NewString(),
		PositionID:  p.ID,
		Asset:       p.Asset,
		Side:        p.Side.String(),
		Size:        size,
		AvgEntry:    avgEntry,
		ExitPrice:   exitPrice,
		RealizedPnL: pnl,
		Reason:      reason,
		ClosedAt:    now,
	}
	if err := m.trades.Insert(ctx, record); err != nil {
		return fmt.Errorf("failed to record trade: %w", err)
	}
	return nil
}
