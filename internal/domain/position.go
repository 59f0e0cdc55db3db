package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// EntryOrderIDRecovered marks positions reconstructed from open exchange
// orders at startup, where the original entry order is unknown.
const EntryOrderIDRecovered = "recovered"

// PositionStatus tracks whether a position is open or closed.
type PositionStatus string

const (
	PositionStatusOpen   PositionStatus = "open"
	PositionStatusClosed PositionStatus = "closed"
)

// Position is an open long position protected by exit orders. A position
// exists from the moment the entry fill is confirmed until the monitor
// observes an exit and deletes it.
//
// Invariants while open: Quantity > 0, EntryPrice > 0, and
// StopLossPrice < EntryPrice < TakeProfitPrice.
type Position struct {
	ID                string
	Pair              string
	Quantity          decimal.Decimal
	EntryPrice        decimal.Decimal
	EntryOrderID      string
	TakeProfitOrderID string // empty in single-exit mode
	StopLossOrderID   string
	TakeProfitPrice   decimal.Decimal
	StopLossPrice     decimal.Decimal
	Status            PositionStatus
	CreatedAt         time.Time
	EntryFilledAt     time.Time
}

// Validate checks the open-position invariants.
func (p Position) Validate() error {
	if p.Quantity.Sign() <= 0 || p.EntryPrice.Sign() <= 0 {
		return ErrInvalidOrder
	}
	if !p.StopLossPrice.LessThan(p.EntryPrice) {
		return ErrInvalidOrder
	}
	if !p.TakeProfitPrice.IsZero() && !p.EntryPrice.LessThan(p.TakeProfitPrice) {
		return ErrInvalidOrder
	}
	return nil
}

// Recovered reports whether this position was reconstructed at startup
// rather than opened by a live trade setup.
func (p Position) Recovered() bool {
	return p.EntryOrderID == EntryOrderIDRecovered
}

// ClosedTrade is the final record of a completed round trip, written to the
// trade journal and pushed to notification channels.
type ClosedTrade struct {
	PositionID string
	Pair       string
	Quantity   decimal.Decimal
	EntryPrice decimal.Decimal
	ExitPrice  decimal.Decimal
	PnL        decimal.Decimal
	Reason     string
	OpenedAt   time.Time
	ClosedAt   time.Time
}
