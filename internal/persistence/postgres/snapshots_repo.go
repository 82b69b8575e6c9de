package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"contraguard/internal/persistence"
	"contraguard/internal/risk"
)

// snapshotsRepo implements persistence.SnapshotsRepo on PostgreSQL.
type snapshotsRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewSnapshotsRepo creates the PostgreSQL snapshots repository.
func NewSnapshotsRepo(db *sqlx.DB, timeout time.Duration) persistence.SnapshotsRepo {
	return &snapshotsRepo{db: db, timeout: timeout}
}

// Append writes one portfolio snapshot. The log is append-only; the
// timestamp is the primary key.
func (r *snapshotsRepo) Append(ctx context.Context, snapshot risk.Snapshot) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		INSERT INTO portfolio_snapshots (ts, value, peak, drawdown_pct, open_positions)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (ts) DO NOTHING`

	_, err := r.db.ExecContext(ctx, query,
		snapshot.Timestamp, snapshot.Value, snapshot.Peak,
		snapshot.DrawdownPct, snapshot.OpenPositions)
	if err != nil {
		return fmt.Errorf("failed to append snapshot: %w", err)
	}
	return nil
}

// Latest returns the most recent snapshot, or nil when the log is empty.
// The drawdown tracker recovers its peak from this at startup.
func (r *snapshotsRepo) Latest(ctx context.Context) (*risk.Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT ts, value, peak, drawdown_pct, open_positions
		FROM portfolio_snapshots
		ORDER BY ts DESC
		LIMIT 1`

	var snapshot risk.Snapshot
	if err := r.db.GetContext(ctx, &snapshot, query); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query latest snapshot: %w", err)
	}
	return &snapshot, nil
}

// List returns snapshots within a time range, oldest first.
func (r *snapshotsRepo) List(ctx context.Context, tr persistence.TimeRange, limit int) ([]risk.Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT ts, value, peak, drawdown_pct, open_positions
		FROM portfolio_snapshots
		WHERE ts >= $1 AND ts <= $2
		ORDER BY ts ASC
		LIMIT $3`

	var snapshots []risk.Snapshot
	if err := r.db.SelectContext(ctx, &snapshots, query, tr.From, tr.To, limit); err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	return snapshots, nil
}
