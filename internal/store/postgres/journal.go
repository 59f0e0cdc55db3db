package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"valrbot/internal/domain"
)

// Journal implements domain.TradeJournal using PostgreSQL.
type Journal struct {
	pool *pgxpool.Pool
}

// NewJournal creates a Journal backed by the given connection pool.
func NewJournal(pool *pgxpool.Pool) *Journal {
	return &Journal{pool: pool}
}

const journalSelectCols = `position_id, pair, quantity, entry_price,
	exit_price, pnl, reason, opened_at, closed_at`

// Record appends one closed trade. Re-recording the same close (same
// position ID and close time) is silently skipped, so monitor retries never
// double-book PnL in the journal.
func (j *Journal) Record(ctx context.Context, trade domain.ClosedTrade) error {
	const query = `
		INSERT INTO closed_trades (
			position_id, pair, quantity, entry_price,
			exit_price, pnl, reason, opened_at, closed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (position_id, closed_at) DO NOTHING`

	_, err := j.pool.Exec(ctx, query,
		trade.PositionID, trade.Pair, trade.Quantity, trade.EntryPrice,
		trade.ExitPrice, trade.PnL, trade.Reason, trade.OpenedAt, trade.ClosedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: record closed trade: %w", err)
	}
	return nil
}

// ListByPair returns the most recent closed trades for a pair.
func (j *Journal) ListByPair(ctx context.Context, pair string, limit int) ([]domain.ClosedTrade, error) {
	query := `SELECT ` + journalSelectCols + ` FROM closed_trades WHERE pair = $1 ORDER BY closed_at DESC`
	args := []any{pair}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := j.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list closed trades: %w", err)
	}
	defer rows.Close()

	var trades []domain.ClosedTrade
	for rows.Next() {
		var t domain.ClosedTrade
		if err := rows.Scan(
			&t.PositionID, &t.Pair, &t.Quantity, &t.EntryPrice,
			&t.ExitPrice, &t.PnL, &t.Reason, &t.OpenedAt, &t.ClosedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan closed trade: %w", err)
		}
		trades = append(trades, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate closed trades: %w", err)
	}
	return trades, nil
}

// RealizedPnL sums the PnL of all trades closed at or after since.
func (j *Journal) RealizedPnL(ctx context.Context, since time.Time) (decimal.Decimal, error) {
	var pnl decimal.Decimal
	err := j.pool.QueryRow(ctx,
		"SELECT COALESCE(SUM(pnl), 0) FROM closed_trades WHERE closed_at >= $1",
		since,
	).Scan(&pnl)
	if err != nil {
		return decimal.Zero, fmt.Errorf("postgres: realized pnl: %w", err)
	}
	return pnl, nil
}
