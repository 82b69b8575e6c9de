// Package persistence defines the storage contracts for trades, positions
// and portfolio snapshots. Implementations live in the postgres
// subpackage; unit tests supply in-memory fakes.
package persistence

import (
	"context"
	"time"

	"contraguard/internal/position"
	"contraguard/internal/risk"
)

// TimeRange bounds a query window, inclusive on both ends.
type TimeRange struct {
	From time.Time
	To   time.Time
}

// TradesRepo stores immutable trade records. It satisfies
// position.TradeStore.
type TradesRepo interface {
	Insert(ctx context.Context, trade position.TradeRecord) error
	ListByAsset(ctx context.Context, asset string, tr TimeRange, limit int) ([]position.TradeRecord, error)
	GetLatest(ctx context.Context, limit int) ([]position.TradeRecord, error)
	RealizedPnL(ctx context.Context, tr TimeRange) (float64, error)
}

// SnapshotsRepo stores the append-only portfolio equity log. It satisfies
// risk.SnapshotStore.
type SnapshotsRepo interface {
	Append(ctx context.Context, snapshot risk.Snapshot) error
	Latest(ctx context.Context) (*risk.Snapshot, error)
	List(ctx context.Context, tr TimeRange, limit int) ([]risk.Snapshot, error)
}

// PositionsRepo stores position state so live positions survive a restart.
type PositionsRepo interface {
	Upsert(ctx context.Context, record position.Record) error
	ListOpen(ctx context.Context) ([]position.Record, error)
	Get(ctx context.Context, id string) (*position.Record, error)
}

// Repository is the collection handed to the engine at startup.
type Repository struct {
	Trades    TradesRepo
	Snapshots SnapshotsRepo
	Positions PositionsRepo
}
