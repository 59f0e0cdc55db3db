package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// OrderStore persists the locally tracked order records.
type OrderStore interface {
	Save(ctx context.Context, rec OrderRecord) error
	UpdateStatus(ctx context.Context, id string, status RecordStatus) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]OrderRecord, error)
	// RemoveOlderThan prunes records created before cutoff and returns the
	// number removed.
	RemoveOlderThan(ctx context.Context, cutoff time.Time) (int, error)
}

// PositionStore persists open positions across restarts.
type PositionStore interface {
	Save(ctx context.Context, pos Position) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]Position, error)
}

// TradeJournal is an optional append-only record of completed trades.
type TradeJournal interface {
	Record(ctx context.Context, trade ClosedTrade) error
	ListByPair(ctx context.Context, pair string, limit int) ([]ClosedTrade, error)
	RealizedPnL(ctx context.Context, since time.Time) (decimal.Decimal, error)
}
