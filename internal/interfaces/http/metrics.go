package http

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"contraguard/internal/risk"
)

// MetricsRegistry holds the Prometheus metrics for the decision core.
type MetricsRegistry struct {
	registry *prometheus.Registry

	// Decision pipeline metrics
	Decisions     *prometheus.CounterVec
	CycleDuration *prometheus.HistogramVec
	CycleErrors   *prometheus.CounterVec

	// Exit and lifecycle metrics
	Exits *prometheus.CounterVec

	// Risk metrics
	DrawdownPct   prometheus.Gauge
	PeakEquity    prometheus.Gauge
	OpenPositions prometheus.Gauge
	RiskLevel     prometheus.Gauge

	// Upstream metrics
	UpstreamFallbacks prometheus.Counter

	// Regime metrics
	RegimeSwitches *prometheus.CounterVec
	ActiveRegime   prometheus.Gauge

	// Safety metrics
	SafetyState prometheus.Gauge

	// Market data metrics
	MarkPrices *prometheus.GaugeVec
}

// NewMetricsRegistry creates and registers all metrics on a private
// registry.
func NewMetricsRegistry() *MetricsRegistry {
	m := &MetricsRegistry{
		registry: prometheus.NewRegistry(),

		Decisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "contraguard_decisions_total",
				Help: "Final decisions emitted, by asset and action",
			},
			[]string{"asset", "action"},
		),

		CycleDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "contraguard_cycle_duration_seconds",
				Help:    "Duration of full decision cycles in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"asset", "result"},
		),

		CycleErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "contraguard_cycle_errors_total",
				Help: "Cycle failures by error class",
			},
			[]string{"class"},
		),

		Exits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "contraguard_exits_total",
				Help: "Position exits by reason",
			},
			[]string{"reason"},
		),

		DrawdownPct: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "contraguard_drawdown_pct",
				Help: "Current portfolio drawdown from peak, percent",
			},
		),

		PeakEquity: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "contraguard_peak_equity",
				Help: "Monotonic peak portfolio equity",
			},
		),

		OpenPositions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "contraguard_open_positions",
				Help: "Number of currently open positions",
			},
		),

		RiskLevel: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "contraguard_risk_level",
				Help: "Overall risk level (0=low 1=moderate 2=high 3=critical)",
			},
		),

		UpstreamFallbacks: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "contraguard_upstream_fallbacks_total",
				Help: "Cycles that fell back to the local outcome because the reasoning service was unavailable",
			},
		),

		RegimeSwitches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "contraguard_regime_switches_total",
				Help: "Regime transitions by from/to regime",
			},
			[]string{"from", "to"},
		),

		ActiveRegime: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "contraguard_active_regime",
				Help: "Current regime (0=chop 1=bull 2=bear)",
			},
		),

		SafetyState: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "contraguard_safety_state",
				Help: "Safety switch state (0=active 1=paused 2=emergency_stop)",
			},
		),

		MarkPrices: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "contraguard_mark_price",
				Help: "Latest streamed mark price per asset",
			},
			[]string{"asset"},
		),
	}

	m.registry.MustRegister(
		m.Decisions,
		m.CycleDuration,
		m.CycleErrors,
		m.Exits,
		m.DrawdownPct,
		m.PeakEquity,
		m.OpenPositions,
		m.RiskLevel,
		m.UpstreamFallbacks,
		m.RegimeSwitches,
		m.ActiveRegime,
		m.SafetyState,
		m.MarkPrices,
	)
	return m
}

// RecordCycle records one decision cycle's duration with its result label.
func (m *MetricsRegistry) RecordCycle(asset, result string, elapsed time.Duration) {
	m.CycleDuration.WithLabelValues(asset, result).Observe(elapsed.Seconds())

	log.Debug().
		Str("asset", asset).
		Str("result", result).
		Dur("duration", elapsed).
		Msg("decision cycle completed")
}

// RecordCycleError counts a failed cycle by error class.
func (m *MetricsRegistry) RecordCycleError(class string) {
	m.CycleErrors.WithLabelValues(class).Inc()
}

// RecordSafetyState updates the safety switch gauge.
func (m *MetricsRegistry) RecordSafetyState(state float64) {
	m.SafetyState.Set(state)
}

// RecordDecision counts a final decision.
func (m *MetricsRegistry) RecordDecision(asset, action string) {
	m.Decisions.WithLabelValues(asset, action).Inc()
}

// RecordExit counts a position exit by reason.
func (m *MetricsRegistry) RecordExit(reason string) {
	m.Exits.WithLabelValues(reason).Inc()
}

// RecordUpstreamFallback counts a cycle that degraded to the local
// outcome.
func (m *MetricsRegistry) RecordUpstreamFallback() {
	m.UpstreamFallbacks.Inc()
}

// ObserveRisk updates the risk gauges after a cycle.
func (m *MetricsRegistry) ObserveRisk(drawdownPct, peak float64, openPositions int, overall risk.Level) {
	m.DrawdownPct.Set(drawdownPct)
	m.PeakEquity.Set(peak)
	m.OpenPositions.Set(float64(openPositions))
	m.RiskLevel.Set(float64(overall))
}

// RecordMark updates the streamed mark price gauge for one asset.
func (m *MetricsRegistry) RecordMark(asset string, price float64) {
	m.MarkPrices.WithLabelValues(asset).Set(price)
}

// RecordRegimeSwitch counts a regime transition and updates the gauge.
func (m *MetricsRegistry) RecordRegimeSwitch(from, to string, gaugeValue float64) {
	m.RegimeSwitches.WithLabelValues(from, to).Inc()
	m.ActiveRegime.Set(gaugeValue)
}

// Handler serves the registry in Prometheus exposition format.
func (m *MetricsRegistry) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
