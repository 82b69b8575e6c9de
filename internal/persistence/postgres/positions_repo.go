package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"contraguard/internal/persistence"
	"contraguard/internal/position"
)

// positionsRepo implements persistence.PositionsRepo on PostgreSQL.
type positionsRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewPositionsRepo creates the PostgreSQL positions repository.
func NewPositionsRepo(db *sqlx.DB, timeout time.Duration) persistence.PositionsRepo {
	return &positionsRepo{db: db, timeout: timeout}
}

// Upsert writes the current position state, overwriting any previous row.
func (r *positionsRepo) Upsert(ctx context.Context, record position.Record) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		INSERT INTO positions (id, asset, side, size, avg_entry, realized_pnl, stop_loss, take_profit, status, entry_time, breakeven_set, scaled_out, scaled_in)
		VALUES (:id, :asset, :side, :size, :avg_entry, :realized_pnl, :stop_loss, :take_profit, :status, :entry_time, :breakeven_set, :scaled_out, :scaled_in)
		ON CONFLICT (id) DO UPDATE SET
			size = EXCLUDED.size,
			avg_entry = EXCLUDED.avg_entry,
			realized_pnl = EXCLUDED.realized_pnl,
			stop_loss = EXCLUDED.stop_loss,
			take_profit = EXCLUDED.take_profit,
			status = EXCLUDED.status,
			breakeven_set = EXCLUDED.breakeven_set,
			scaled_out = EXCLUDED.scaled_out,
			scaled_in = EXCLUDED.scaled_in`

	if _, err := r.db.NamedExecContext(ctx, query, record); err != nil {
		return fmt.Errorf("failed to upsert position %s: %w", record.ID, err)
	}
	return nil
}

// ListOpen returns every position still marked open, used to rebuild the
// manager's book after a restart.
func (r *positionsRepo) ListOpen(ctx context.Context) ([]position.Record, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT id, asset, side, size, avg_entry, realized_pnl, stop_loss, take_profit, status, entry_time, breakeven_set, scaled_out, scaled_in
		FROM positions
		WHERE status = 'open'
		ORDER BY entry_time ASC`

	var records []position.Record
	if err := r.db.SelectContext(ctx, &records, query); err != nil {
		return nil, fmt.Errorf("failed to query open positions: %w", err)
	}
	return records, nil
}

// Get returns one position by ID, or nil when absent.
func (r *positionsRepo) Get(ctx context.Context, id string) (*position.Record, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT id, asset, side, size, avg_entry, realized_pnl, stop_loss, take_profit, status, entry_time, breakeven_set, scaled_out, scaled_in
		FROM positions
		WHERE id = $1`

	var record position.Record
	if err := r.db.GetContext(ctx, &record, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query position %s: %w", id, err)
	}
	return &record, nil
}
