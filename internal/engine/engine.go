// Package engine runs the full decision cycle: regime classification,
// regime-adjusted thresholds, multi-factor confirmation, the upstream
// suggestion veto, risk checks and position lifecycle evaluation, all
// gated by the safety switch.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"contraguard/internal/confirm"
	"contraguard/internal/indicators"
	"contraguard/internal/market"
	"contraguard/internal/position"
	"contraguard/internal/regime"
	"contraguard/internal/risk"
	"contraguard/internal/safety"
	"contraguard/internal/upstream"
)

// Suggester is the advisory reasoning service. Failures never block a
// cycle; the engine falls back to the locally computed outcome.
type Suggester interface {
	Suggest(ctx context.Context, req upstream.Request) (*upstream.Suggestion, error)
}

// Observer receives decision and risk telemetry. All methods must be
// non-blocking; the metrics registry satisfies this.
type Observer interface {
	RecordDecision(asset, action string)
	RecordExit(reason string)
	RecordUpstreamFallback()
	RecordCycle(asset, result string, elapsed time.Duration)
	RecordCycleError(class string)
	RecordRegimeSwitch(from, to string, gaugeValue float64)
	ObserveRisk(drawdownPct, peak float64, openPositions int, overall risk.Level)
}

// DecisionLog receives every final decision for operational history.
type DecisionLog interface {
	RecordDecision(FinalDecision)
}

// CycleCache serves cross-cycle regime and sentiment state. Misses and
// errors degrade to fresh computation, never to a failed cycle.
type CycleCache interface {
	GetRegime(ctx context.Context, asset string) (regime.Analysis, bool, error)
	SetRegime(ctx context.Context, asset string, analysis regime.Analysis) error
	GetSentiment(ctx context.Context, asset string) (confirm.SentimentRecord, bool, error)
	SetSentiment(ctx context.Context, asset string, record confirm.SentimentRecord) error
}

// Config holds the engine's risk limits and stop parameters.
type Config struct {
	ATRMultiplier       float64 `yaml:"atr_multiplier"`
	RiskFraction        float64 `yaml:"risk_fraction"`
	MaxDailyLossPct     float64 `yaml:"max_daily_loss_pct"`
	MaxConcentrationPct float64 `yaml:"max_concentration_pct"`
}

// DefaultConfig returns the production engine limits.
func DefaultConfig() Config {
	return Config{
		ATRMultiplier:       risk.DefaultATRMultiplier,
		RiskFraction:        risk.DefaultRiskFraction,
		MaxDailyLossPct:     5.0,
		MaxConcentrationPct: 25.0,
	}
}

// CycleInputs is the portfolio snapshot and market context for one asset's
// decision cycle, taken at cycle start.
type CycleInputs struct {
	Asset             string
	Intraday          market.Series
	Daily             market.Series
	Sentiment         confirm.SentimentRecord
	Vision            confirm.VisionRecord
	TechnicalStrength float64 // 0-100, from the upstream technical-signal record

	PortfolioValue float64
	AccountBalance float64
	// Exposures maps asset to current open exposure, and Histories supplies
	// return history for the computed correlation path.
	Exposures map[string]float64
	Histories map[string]market.Series

	Now time.Time
}

// FinalDecision is the cycle's verdict for one asset, with the full audit
// trail of the stages that produced it.
type FinalDecision struct {
	Asset      string          `json:"asset"`
	Action     confirm.Action  `json:"action"`
	Confidence float64         `json:"confidence"`
	Reasoning  string          `json:"reasoning"`
	Regime     regime.Analysis `json:"regime"`

	Thresholds regime.Thresholds      `json:"thresholds"`
	Outcome    confirm.Outcome        `json:"outcome"`
	Allocation *risk.AllocationResult `json:"allocation,omitempty"`
	StopPlan   *risk.StopPlan         `json:"stop_plan,omitempty"`
	RiskStatus risk.Status            `json:"risk_status"`
	Events     []position.Event       `json:"events,omitempty"`

	Timestamp time.Time `json:"timestamp"`
}

// Engine is the decision core service object, constructed once at process
// start with every collaborator injected.
type Engine struct {
	config     Config
	thresholds regime.ThresholdConfig
	confirm    *confirm.Engine
	allocator  *risk.Allocator
	limiter    *risk.Limiter
	tracker    *risk.DrawdownTracker
	manager    *position.Manager
	safety     *safety.Switch
	suggester  Suggester
	observer   Observer
	cache      CycleCache

	mu          sync.Mutex
	decisionLog DecisionLog
	inflight    map[string]bool
	lastRegime  map[string]regime.Regime
	lastMarks   map[string]float64
}

// Deps collects the engine's collaborators. Suggester, Observer and Cache
// are optional.
type Deps struct {
	Thresholds regime.ThresholdConfig
	Confirm    *confirm.Engine
	Allocator  *risk.Allocator
	Limiter    *risk.Limiter
	Tracker    *risk.DrawdownTracker
	Manager    *position.Manager
	Safety     *safety.Switch
	Suggester  Suggester
	Observer   Observer
	Cache      CycleCache
}

// New builds the engine.
func New(config Config, deps Deps) *Engine {
	if config.ATRMultiplier <= 0 {
		config = DefaultConfig()
	}
	return &Engine{
		config:     config,
		thresholds: deps.Thresholds,
		confirm:    deps.Confirm,
		allocator:  deps.Allocator,
		limiter:    deps.Limiter,
		tracker:    deps.Tracker,
		manager:    deps.Manager,
		safety:     deps.Safety,
		suggester:  deps.Suggester,
		observer:   deps.Observer,
		cache:      deps.Cache,
		inflight:   make(map[string]bool),
		lastRegime: make(map[string]regime.Regime),
		lastMarks:  make(map[string]float64),
	}
}

// AttachDecisionLog wires the operational decision history. Called once at
// startup before cycles run.
func (e *Engine) AttachDecisionLog(sink DecisionLog) {
	e.mu.Lock()
	e.decisionLog = sink
	e.mu.Unlock()
}

// RunCycle executes one full decision cycle for one asset. At most one
// cycle per asset runs at a time; an overlapping invocation is rejected
// with ErrCycleInFlight. Aside from that and input validation, RunCycle
// always returns a decision: data and upstream failures degrade to Hold.
func (e *Engine) RunCycle(ctx context.Context, in CycleInputs) (*FinalDecision, error) {
	if in.Asset == "" || in.PortfolioValue < 0 {
		e.recordCycleError("invalid_input")
		return nil, fmt.Errorf("%w: asset %q, portfolio value %.2f", ErrInvalidInput, in.Asset, in.PortfolioValue)
	}
	if err := e.acquire(in.Asset); err != nil {
		e.recordCycleError("cycle_in_flight")
		return nil, err
	}
	defer e.release(in.Asset)

	if in.Now.IsZero() {
		in.Now = time.Now().UTC()
	}

	start := time.Now()
	result := "ok"
	defer func() {
		if e.observer != nil {
			e.observer.RecordCycle(in.Asset, result, time.Since(start))
		}
	}()

	// Stage 1: regime and thresholds. A fresh classification replaces the
	// cached one only when the cache has nothing current for the asset.
	analysis, cached := e.cachedRegime(ctx, in.Asset)
	if !cached {
		analysis = regime.Classify(in.Daily)
		e.storeRegime(ctx, in.Asset, analysis)
	}
	thresholds := e.thresholds.Resolve(analysis.Regime)
	e.noteRegime(in.Asset, analysis.Regime)

	// Stage 2: indicators and multi-factor confirmation.
	snap := indicators.Calculate(in.Intraday)
	levels := indicators.Levels(in.Intraday, indicators.LevelLookback)
	e.rememberMark(in.Asset, snap.Price)

	in.Sentiment = e.resolveSentiment(ctx, in.Asset, in.Sentiment)

	outcome := e.confirm.Evaluate(confirm.Inputs{
		Asset:      in.Asset,
		Indicators: snap,
		Levels:     levels,
		Sentiment:  in.Sentiment,
		Vision:     in.Vision,
	})

	// Stage 3: upstream suggestion with local fallback and veto.
	action, confidence, reasoning := e.synthesize(ctx, in, analysis, snap, outcome)

	// Stage 4: portfolio snapshot, drawdown and the safety guard.
	snapshot, err := e.tracker.Update(ctx, in.Now, in.PortfolioValue, len(e.manager.OpenPositions()))
	if err != nil {
		log.Error().Err(err).Msg("failed to persist portfolio snapshot")
	}
	status := e.buildStatus(in, snapshot)

	decision := &FinalDecision{
		Asset:      in.Asset,
		Regime:     analysis,
		Thresholds: thresholds,
		Outcome:    outcome,
		RiskStatus: status,
		Timestamp:  in.Now,
	}

	tripped, guardErr := e.safety.CheckDrawdown(ctx, snapshot.DrawdownPct)
	if tripped {
		result = "safety_breach"
		e.recordCycleError("safety_breach")
		decision.Action = confirm.Hold
		decision.Reasoning = fmt.Sprintf("emergency stop: drawdown %.2f%% breached limit %.2f%%", snapshot.DrawdownPct, e.safety.MaxDrawdown())
		e.observe(decision)
		if guardErr != nil {
			return decision, fmt.Errorf("%w: %v", ErrSafetyBreach, guardErr)
		}
		return decision, ErrSafetyBreach
	}

	// Stage 5: position lifecycle evaluation. Sell decisions feed the
	// council-sell rule; events fire regardless of the entry gates below.
	events, err := e.manager.EvaluateAll(ctx, in.Asset, position.EvalInputs{
		Price:      snap.Price,
		ATR:        snap.ATR.Value,
		SellSignal: action == confirm.Sell,
		Now:        in.Now,
	})
	if err != nil {
		log.Error().Err(err).Str("asset", in.Asset).Msg("position evaluation failed")
	}
	decision.Events = events
	e.observeExits(events)

	// Stage 6: entry gates for buys only.
	if action == confirm.Buy {
		action, confidence, reasoning = e.gateEntry(ctx, in, thresholds, snap, decision, action, confidence, reasoning)
	}

	decision.Action = action
	decision.Confidence = confidence
	decision.Reasoning = reasoning
	e.observe(decision)

	log.Info().
		Str("asset", in.Asset).
		Str("regime", analysis.Regime.String()).
		Str("action", action.String()).
		Float64("confidence", confidence).
		Msg("decision cycle complete")
	return decision, nil
}

// synthesize resolves the final pre-risk action from the local outcome and
// the upstream suggestion.
func (e *Engine) synthesize(ctx context.Context, in CycleInputs, analysis regime.Analysis, snap indicators.Snapshot, outcome confirm.Outcome) (confirm.Action, float64, string) {
	action := outcome.Signal
	confidence := outcome.Confidence
	reasoning := outcome.Reasoning

	if e.suggester == nil {
		return action, confidence, reasoning
	}

	suggestion, err := e.suggester.Suggest(ctx, upstream.Request{
		Asset:         in.Asset,
		Regime:        analysis.Regime.String(),
		Price:         snap.Price,
		RSI:           snap.RSI.Value,
		FearScore:     float64(in.Sentiment.FearScore),
		FactorSummary: outcome.Reasoning,
	})
	if err != nil {
		if errors.Is(err, upstream.ErrUnavailable) {
			if e.observer != nil {
				e.observer.RecordUpstreamFallback()
			}
			return action, confidence, reasoning + "; reasoning service unavailable, using local outcome"
		}
		log.Error().Err(err).Msg("unexpected suggester failure")
		return action, confidence, reasoning
	}

	suggested := confirm.ParseAction(suggestion.Action)
	final, veto := e.confirm.Reconcile(outcome, suggested)
	if veto != "" {
		return final, outcome.Confidence, veto
	}
	return final, suggestion.Confidence, fmt.Sprintf("upstream %s (%.0f%%): %s", suggestion.Action, suggestion.Confidence, suggestion.Rationale)
}

// gateEntry applies the regime thresholds, the safety switch and the risk
// engine to a prospective buy. Any failed gate downgrades to Hold.
func (e *Engine) gateEntry(ctx context.Context, in CycleInputs, thresholds regime.Thresholds, snap indicators.Snapshot, decision *FinalDecision, action confirm.Action, confidence float64, reasoning string) (confirm.Action, float64, string) {
	hold := func(why string) (confirm.Action, float64, string) {
		return confirm.Hold, confidence, why
	}

	if !e.safety.TradingEnabled(ctx) {
		return hold(fmt.Sprintf("buy blocked: trading disabled (safety %s)", e.safety.State()))
	}
	if !thresholds.AllowTrading {
		return hold("buy blocked: regime thresholds disallow trading")
	}
	if in.Sentiment.Valid && in.Sentiment.FearScore > thresholds.FearCeiling {
		return hold(fmt.Sprintf("buy blocked: fear score %d above regime ceiling %d", in.Sentiment.FearScore, thresholds.FearCeiling))
	}
	if in.TechnicalStrength < float64(thresholds.MinTechnicalStrength) {
		return hold(fmt.Sprintf("buy blocked: technical strength %.0f below regime minimum %d", in.TechnicalStrength, thresholds.MinTechnicalStrength))
	}
	if thresholds.VisionRequired && !(in.Vision.Present && in.Vision.IsValid) {
		return hold("buy blocked: regime requires vision validation and none passed")
	}
	if daily := e.tracker.DailyLossPct(); daily >= e.config.MaxDailyLossPct {
		return hold(fmt.Sprintf("buy blocked: daily loss %.2f%% at or above limit %.2f%%", daily, e.config.MaxDailyLossPct))
	}

	plan, err := risk.PlanStop(snap.Price, snap.ATR.Value, e.config.ATRMultiplier, in.AccountBalance, e.config.RiskFraction)
	if err != nil {
		return hold(fmt.Sprintf("buy blocked: %v", err))
	}
	decision.StopPlan = plan

	requested := plan.PositionSize * snap.Price * thresholds.PositionSizeFactor
	tierAllocation := e.tierExposure(in.Asset, in.Exposures)
	allocation := e.allocator.Check(in.Asset, requested, tierAllocation, in.PortfolioValue)
	decision.Allocation = &allocation
	if !allocation.CanAllocate {
		return hold(fmt.Sprintf("buy blocked: %s", allocation.Reason))
	}

	correlation := e.limiter.Check(in.Asset, allocation.MaxAmount, in.PortfolioValue, in.Exposures, in.Histories)
	if !correlation.Allowed {
		return hold(fmt.Sprintf("buy blocked: %s", correlation.Reason))
	}

	parts := []string{reasoning, allocation.Reason, correlation.Reason}
	return action, confidence, strings.Join(parts, "; ")
}

// tierExposure sums current exposure across the asset's allocation tier.
func (e *Engine) tierExposure(asset string, exposures map[string]float64) float64 {
	tier := e.allocator.TierOf(asset)
	total := 0.0
	for other, exposure := range exposures {
		if e.allocator.TierOf(other) == tier {
			total += exposure
		}
	}
	return total
}

func (e *Engine) buildStatus(in CycleInputs, snapshot risk.Snapshot) risk.Status {
	concentration := 0.0
	correlated := 0.0
	if in.PortfolioValue > 0 {
		group := e.limiter.GroupOf(in.Asset)
		for other, exposure := range in.Exposures {
			pct := exposure / in.PortfolioValue * 100.0
			if pct > concentration {
				concentration = pct
			}
			if e.limiter.GroupOf(other) == group {
				correlated += pct
			}
		}
	}

	return risk.BuildStatus(risk.Utilizations{
		DrawdownPct:      snapshot.DrawdownPct,
		MaxDrawdownPct:   e.safety.MaxDrawdown(),
		TradeRiskPct:     e.config.RiskFraction * 100.0,
		MaxTradeRiskPct:  e.config.RiskFraction * 100.0 * 2.0,
		ConcentrationPct: concentration,
		MaxConcentration: e.config.MaxConcentrationPct,
		CorrelatedPct:    correlated,
		MaxCorrelatedPct: 40.0,
		DailyLossPct:     e.tracker.DailyLossPct(),
		MaxDailyLossPct:  e.config.MaxDailyLossPct,
		OpenPositions:    len(e.manager.OpenPositions()),
	})
}

// LiquidateAll closes every open position at the last observed marks. The
// safety switch calls this on an emergency stop.
func (e *Engine) LiquidateAll(ctx context.Context, reason string) error {
	e.mu.Lock()
	marks := make(map[string]float64, len(e.lastMarks))
	for asset, price := range e.lastMarks {
		marks[asset] = price
	}
	e.mu.Unlock()

	log.Warn().Str("reason", reason).Msg("liquidating all open positions")
	events, err := e.manager.CloseAll(ctx, marks, time.Now().UTC())
	e.observeExits(events)
	return err
}

// ObserveMark records a streamed mark price so an emergency liquidation
// can price assets between cycles.
func (e *Engine) ObserveMark(asset string, price float64) {
	e.rememberMark(asset, price)
}

func (e *Engine) acquire(asset string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.inflight[asset] {
		return fmt.Errorf("%w: %s", ErrCycleInFlight, asset)
	}
	e.inflight[asset] = true
	return nil
}

func (e *Engine) release(asset string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.inflight, asset)
}

func (e *Engine) cachedRegime(ctx context.Context, asset string) (regime.Analysis, bool) {
	if e.cache == nil {
		return regime.Analysis{}, false
	}
	analysis, ok, err := e.cache.GetRegime(ctx, asset)
	if err != nil {
		log.Debug().Err(err).Str("asset", asset).Msg("regime cache read failed")
		return regime.Analysis{}, false
	}
	return analysis, ok
}

func (e *Engine) storeRegime(ctx context.Context, asset string, analysis regime.Analysis) {
	if e.cache == nil {
		return
	}
	if err := e.cache.SetRegime(ctx, asset, analysis); err != nil {
		log.Debug().Err(err).Str("asset", asset).Msg("failed to cache regime analysis")
	}
}

// resolveSentiment refreshes the cache with a valid record, or substitutes
// the cached one when this cycle arrived without a usable sentiment read.
func (e *Engine) resolveSentiment(ctx context.Context, asset string, record confirm.SentimentRecord) confirm.SentimentRecord {
	if e.cache == nil {
		return record
	}
	if record.Valid {
		if err := e.cache.SetSentiment(ctx, asset, record); err != nil {
			log.Debug().Err(err).Str("asset", asset).Msg("failed to cache sentiment")
		}
		return record
	}
	cached, ok, err := e.cache.GetSentiment(ctx, asset)
	if err != nil || !ok {
		return record
	}
	return cached
}

func (e *Engine) recordCycleError(class string) {
	if e.observer != nil {
		e.observer.RecordCycleError(class)
	}
}

func (e *Engine) rememberMark(asset string, price float64) {
	if price <= 0 {
		return
	}
	e.mu.Lock()
	e.lastMarks[asset] = price
	e.mu.Unlock()
}

func (e *Engine) noteRegime(asset string, current regime.Regime) {
	e.mu.Lock()
	prev, seen := e.lastRegime[asset]
	e.lastRegime[asset] = current
	e.mu.Unlock()

	if seen && prev != current {
		log.Info().
			Str("asset", asset).
			Str("from", prev.String()).
			Str("to", current.String()).
			Msg("regime switch")
		if e.observer != nil {
			e.observer.RecordRegimeSwitch(prev.String(), current.String(), float64(current))
		}
	}
}

func (e *Engine) observe(decision *FinalDecision) {
	e.mu.Lock()
	sink := e.decisionLog
	e.mu.Unlock()
	if sink != nil {
		sink.RecordDecision(*decision)
	}

	if e.observer == nil {
		return
	}
	e.observer.RecordDecision(decision.Asset, decision.Action.String())
	e.observer.ObserveRisk(e.tracker.Drawdown(), e.tracker.Peak(), len(e.manager.OpenPositions()), decision.RiskStatus.Overall)
}

func (e *Engine) observeExits(events []position.Event) {
	if e.observer == nil {
		return
	}
	for _, event := range events {
		if event.Action == position.ActionExit || event.Action == position.ActionPartialExit {
			e.observer.RecordExit(event.Reason.String())
		}
	}
}
