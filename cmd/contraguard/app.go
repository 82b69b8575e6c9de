package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"contraguard/internal/cache"
	"contraguard/internal/config"
	"contraguard/internal/confirm"
	"contraguard/internal/engine"
	httpapi "contraguard/internal/interfaces/http"
	"contraguard/internal/persistence"
	"contraguard/internal/persistence/postgres"
	"contraguard/internal/position"
	"contraguard/internal/risk"
	"contraguard/internal/safety"
	"contraguard/internal/upstream"
)

// app holds the wired decision core for one process.
type app struct {
	cfg     config.Config
	cache   *cache.Cache
	pg      *postgres.Manager
	repos   persistence.Repository
	metrics *httpapi.MetricsRegistry
	manager *position.Manager
	tracker *risk.DrawdownTracker
	safety  *safety.Switch
	engine  *engine.Engine
}

// buildApp constructs every component from the configuration. Redis is
// mandatory (safety state lives there); postgres is optional.
func buildApp(ctx context.Context, cfg config.Config) (*app, error) {
	c, err := cache.New(cfg.Cache)
	if err != nil {
		return nil, fmt.Errorf("cache: %w", err)
	}

	a := &app{cfg: cfg, cache: c, metrics: httpapi.NewMetricsRegistry()}

	var trades position.TradeStore
	var snapshots risk.SnapshotStore
	if cfg.Postgres.Enabled {
		pg, err := postgres.NewManager(cfg.Postgres)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("postgres: %w", err)
		}
		a.pg = pg
		a.repos = *pg.Repository()
		trades = a.repos.Trades
		snapshots = a.repos.Snapshots
	} else {
		log.Warn().Msg("postgres disabled: trades and snapshots will not be persisted")
	}

	a.manager = position.NewManager(cfg.Positions, paperExecutor{}, trades)

	a.tracker, err = risk.NewDrawdownTracker(ctx, snapshots)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("drawdown tracker: %w", err)
	}

	// The switch needs a liquidator and the engine needs the switch; the
	// func adapter closes over the engine assigned below.
	a.safety = safety.NewSwitch(ctx, cfg.Safety, c.SafetyStore(),
		safety.LiquidatorFunc(func(ctx context.Context, reason string) error {
			if a.engine == nil {
				return nil
			}
			return a.engine.LiquidateAll(ctx, reason)
		}))

	a.safety.OnTransition(func(state safety.State) {
		a.metrics.RecordSafetyState(float64(state))
	})

	a.engine = engine.New(cfg.Engine, engine.Deps{
		Thresholds: cfg.Thresholds,
		Confirm:    confirm.NewEngine(cfg.Confirm),
		Allocator:  risk.NewAllocator(cfg.Allocation.Build()),
		Limiter:    risk.NewLimiter(cfg.Correlation),
		Tracker:    a.tracker,
		Manager:    a.manager,
		Safety:     a.safety,
		Suggester:  upstream.NewClient(cfg.Upstream),
		Observer:   a.metrics,
		Cache:      a.cache,
	})

	return a, nil
}

// restorePositions loads open positions from postgres into the manager.
func (a *app) restorePositions(ctx context.Context) error {
	if a.repos.Positions == nil {
		return nil
	}
	records, err := a.repos.Positions.ListOpen(ctx)
	if err != nil {
		return fmt.Errorf("list open positions: %w", err)
	}
	for _, record := range records {
		a.manager.Track(position.FromRecord(record))
	}
	if len(records) > 0 {
		log.Info().Int("count", len(records)).Msg("restored open positions")
	}
	return nil
}

// persistPositions writes the manager's book back to postgres, including
// positions closed during this process.
func (a *app) persistPositions(ctx context.Context) {
	if a.repos.Positions == nil {
		return
	}
	for _, p := range a.manager.All() {
		if err := a.repos.Positions.Upsert(ctx, p.ToRecord()); err != nil {
			log.Error().Err(err).Str("position", p.ID).Msg("failed to persist position")
		}
	}
}

// Close releases the storage connections.
func (a *app) Close() {
	if a.pg != nil {
		a.pg.Close()
	}
	if a.cache != nil {
		a.cache.Close()
	}
}

// paperExecutor acknowledges execution requests by logging them. Live
// order routing is an external collaborator.
type paperExecutor struct{}

func (paperExecutor) Execute(ctx context.Context, req position.OrderRequest) error {
	log.Info().
		Str("asset", req.Asset).
		Str("side", req.Side).
		Float64("size", req.Size).
		Float64("price", req.Price).
		Str("reason", req.Reason).
		Msg("execution request")
	return nil
}
