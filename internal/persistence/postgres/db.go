// Package postgres implements the persistence contracts on PostgreSQL via
// sqlx.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver
	"gopkg.in/yaml.v3"

	"contraguard/internal/persistence"
)

// Config holds database connection configuration.
type Config struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"-"`
	QueryTimeout    time.Duration `yaml:"-"`
	Enabled         bool          `yaml:"enabled"`
}

// UnmarshalYAML accepts Go duration strings for the pool timings.
func (c *Config) UnmarshalYAML(value *yaml.Node) error {
	type plain Config
	aux := struct {
		plain           `yaml:",inline"`
		ConnMaxLifetime string `yaml:"conn_max_lifetime"`
		QueryTimeout    string `yaml:"query_timeout"`
	}{plain: plain(*c)}
	if err := value.Decode(&aux); err != nil {
		return err
	}
	*c = Config(aux.plain)

	for _, field := range []struct {
		raw  string
		name string
		dst  *time.Duration
	}{
		{aux.ConnMaxLifetime, "conn_max_lifetime", &c.ConnMaxLifetime},
		{aux.QueryTimeout, "query_timeout", &c.QueryTimeout},
	} {
		if field.raw == "" {
			continue
		}
		d, err := time.ParseDuration(field.raw)
		if err != nil {
			return fmt.Errorf("%s: %w", field.name, err)
		}
		*field.dst = d
	}
	return nil
}

// DefaultConfig returns pool defaults. Persistence is opt-in; without it
// the engine runs with in-memory state only.
func DefaultConfig() Config {
	return Config{
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 30 * time.Minute,
		QueryTimeout:    10 * time.Second,
		Enabled:         false,
	}
}

const schema = `
CREATE TABLE IF NOT EXISTS trades (
    id            TEXT PRIMARY KEY,
    position_id   TEXT NOT NULL,
    asset         TEXT NOT NULL,
    side          TEXT NOT NULL,
    size          DOUBLE PRECISION NOT NULL,
    avg_entry     DOUBLE PRECISION NOT NULL,
    exit_price    DOUBLE PRECISION NOT NULL,
    realized_pnl  DOUBLE PRECISION NOT NULL,
    reason        TEXT NOT NULL,
    closed_at     TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_trades_asset_closed ON trades (asset, closed_at DESC);

CREATE TABLE IF NOT EXISTS portfolio_snapshots (
    ts             TIMESTAMPTZ PRIMARY KEY,
    value          DOUBLE PRECISION NOT NULL,
    peak           DOUBLE PRECISION NOT NULL,
    drawdown_pct   DOUBLE PRECISION NOT NULL,
    open_positions INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS positions (
    id            TEXT PRIMARY KEY,
    asset         TEXT NOT NULL,
    side          TEXT NOT NULL,
    size          DOUBLE PRECISION NOT NULL,
    avg_entry     DOUBLE PRECISION NOT NULL,
    realized_pnl  DOUBLE PRECISION NOT NULL,
    stop_loss     DOUBLE PRECISION NOT NULL,
    take_profit   DOUBLE PRECISION NOT NULL,
    status        TEXT NOT NULL,
    entry_time    TIMESTAMPTZ NOT NULL,
    breakeven_set BOOLEAN NOT NULL DEFAULT FALSE,
    scaled_out    BOOLEAN NOT NULL DEFAULT FALSE,
    scaled_in     BOOLEAN NOT NULL DEFAULT FALSE
);
CREATE INDEX IF NOT EXISTS idx_positions_status ON positions (status);
`

// Manager owns the connection pool and repository instances.
type Manager struct {
	db     *sqlx.DB
	config Config
	repos  *persistence.Repository
}

// NewManager opens the pool, verifies connectivity and applies the schema.
func NewManager(config Config) (*Manager, error) {
	if !config.Enabled {
		return &Manager{config: config}, nil
	}
	if config.DSN == "" {
		return nil, fmt.Errorf("database DSN is required when persistence is enabled")
	}

	db, err := sqlx.Open("postgres", config.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Manager{
		db:     db,
		config: config,
		repos: &persistence.Repository{
			Trades:    NewTradesRepo(db, config.QueryTimeout),
			Snapshots: NewSnapshotsRepo(db, config.QueryTimeout),
			Positions: NewPositionsRepo(db, config.QueryTimeout),
		},
	}, nil
}

// Repository returns the repositories, or nil when persistence is
// disabled.
func (m *Manager) Repository() *persistence.Repository { return m.repos }

// IsEnabled reports whether a live database backs the repositories.
func (m *Manager) IsEnabled() bool { return m.config.Enabled && m.db != nil }

// Ping tests basic connectivity.
func (m *Manager) Ping(ctx context.Context) error {
	if m.db == nil {
		return nil
	}
	pingCtx, cancel := context.WithTimeout(ctx, m.config.QueryTimeout)
	defer cancel()
	return m.db.PingContext(pingCtx)
}

// Close closes the connection pool.
func (m *Manager) Close() error {
	if m.db == nil {
		return nil
	}
	return m.db.Close()
}
