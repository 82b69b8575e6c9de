package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"contraguard/internal/persistence"
	"contraguard/internal/position"
)

// tradesRepo implements persistence.TradesRepo on PostgreSQL.
type tradesRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewTradesRepo creates the PostgreSQL trades repository.
func NewTradesRepo(db *sqlx.DB, timeout time.Duration) persistence.TradesRepo {
	return &tradesRepo{db: db, timeout: timeout}
}

// tradeRow mirrors the trades table. Reason is stored as its string form.
type tradeRow struct {
	ID          string    `db:"id"`
	PositionID  string    `db:"position_id"`
	Asset       string    `db:"asset"`
	Side        string    `db:"side"`
	Size        float64   `db:"size"`
	AvgEntry    float64   `db:"avg_entry"`
	ExitPrice   float64   `db:"exit_price"`
	RealizedPnL float64   `db:"realized_pnl"`
	Reason      string    `db:"reason"`
	ClosedAt    time.Time `db:"closed_at"`
}

func (r tradeRow) toRecord() position.TradeRecord {
	return position.TradeRecord{
		ID:          r.ID,
		PositionID:  r.PositionID,
		Asset:       r.Asset,
		Side:        r.Side,
		Size:        r.Size,
		AvgEntry:    r.AvgEntry,
		ExitPrice:   r.ExitPrice,
		RealizedPnL: r.RealizedPnL,
		Reason:      position.ParseExitReason(r.Reason),
		ClosedAt:    r.ClosedAt,
	}
}

// Insert writes one immutable trade record.
func (r *tradesRepo) Insert(ctx context.Context, trade position.TradeRecord) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		INSERT INTO trades (id, position_id, asset, side, size, avg_entry, exit_price, realized_pnl, reason, closed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := r.db.ExecContext(ctx, query,
		trade.ID, trade.PositionID, trade.Asset, trade.Side,
		trade.Size, trade.AvgEntry, trade.ExitPrice, trade.RealizedPnL,
		trade.Reason.String(), trade.ClosedAt)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return fmt.Errorf("duplicate trade %s: %w", trade.ID, err)
		}
		return fmt.Errorf("failed to insert trade: %w", err)
	}
	return nil
}

// ListByAsset retrieves trades for one asset within a time range, newest
// first.
func (r *tradesRepo) ListByAsset(ctx context.Context, asset string, tr persistence.TimeRange, limit int) ([]position.TradeRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT id, position_id, asset, side, size, avg_entry, exit_price, realized_pnl, reason, closed_at
		FROM trades
		WHERE asset = $1 AND closed_at >= $2 AND closed_at <= $3
		ORDER BY closed_at DESC
		LIMIT $4`

	var rows []tradeRow
	if err := r.db.SelectContext(ctx, &rows, query, asset, tr.From, tr.To, limit); err != nil {
		return nil, fmt.Errorf("failed to query trades by asset: %w", err)
	}
	return toRecords(rows), nil
}

// GetLatest returns the most recent trades across all assets.
func (r *tradesRepo) GetLatest(ctx context.Context, limit int) ([]position.TradeRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT id, position_id, asset, side, size, avg_entry, exit_price, realized_pnl, reason, closed_at
		FROM trades
		ORDER BY closed_at DESC
		LIMIT $1`

	var rows []tradeRow
	if err := r.db.SelectContext(ctx, &rows, query, limit); err != nil {
		return nil, fmt.Errorf("failed to query latest trades: %w", err)
	}
	return toRecords(rows), nil
}

// RealizedPnL sums realized P&L over a time range.
func (r *tradesRepo) RealizedPnL(ctx context.Context, tr persistence.TimeRange) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT COALESCE(SUM(realized_pnl), 0)
		FROM trades
		WHERE closed_at >= $1 AND closed_at <= $2`

	var total float64
	if err := r.db.QueryRowxContext(ctx, query, tr.From, tr.To).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to sum realized pnl: %w", err)
	}
	return total, nil
}

func toRecords(rows []tradeRow) []position.TradeRecord {
	records := make([]position.TradeRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, row.toRecord())
	}
	return records
}
