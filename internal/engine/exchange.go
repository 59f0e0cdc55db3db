package engine

import (
	"context"

	"github.com/shopspring/decimal"

	"valrbot/internal/domain"
)

// Exchange is the gateway surface the engine depends on. It is implemented
// by the VALR client; tests substitute a fake.
type Exchange interface {
	Balances(ctx context.Context) (map[string]decimal.Decimal, error)
	OrderBook(ctx context.Context, pair string) (domain.OrderBook, error)
	PlaceLimitOrder(ctx context.Context, pair string, side domain.OrderSide, quantity, price decimal.Decimal, postOnly bool) (string, error)
	PlaceMarketOrder(ctx context.Context, pair string, side domain.OrderSide, quantity decimal.Decimal) (string, error)
	CancelOrder(ctx context.Context, pair, orderID string) error
	OrderStatus(ctx context.Context, pair, orderID string) (domain.OrderState, error)
	OpenOrders(ctx context.Context) ([]domain.OpenOrder, error)
	OrderFills(ctx context.Context, pair, orderID string) ([]domain.Fill, error)
}

// Notifier pushes trade lifecycle events to operator channels. Optional.
type Notifier interface {
	TradeOpened(ctx context.Context, pos domain.Position) error
	TradeClosed(ctx context.Context, trade domain.ClosedTrade) error
	Liquidation(ctx context.Context, pair string, quantity decimal.Decimal, sold bool, cause error) error
}
