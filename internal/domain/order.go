package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderSide indicates whether this is a buy or sell.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// OrderStatus is the canonical exchange-side order state. The exchange
// reports many raw status strings; the gateway collapses them onto these
// four values before they reach the engine.
type OrderStatus string

const (
	OrderStatusPending         OrderStatus = "PENDING"
	OrderStatusFilled          OrderStatus = "FILLED"
	OrderStatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	OrderStatusCancelled       OrderStatus = "CANCELLED"
)

// OrderRole identifies which leg of a trade setup an order belongs to.
type OrderRole string

const (
	OrderRoleEntry      OrderRole = "entry"
	OrderRoleTakeProfit OrderRole = "take_profit"
	OrderRoleStopLoss   OrderRole = "stop_loss"
)

// RecordStatus is the locally tracked lifecycle of a persisted order record.
type RecordStatus string

const (
	RecordStatusActive    RecordStatus = "active"
	RecordStatusFilled    RecordStatus = "filled"
	RecordStatusCancelled RecordStatus = "cancelled"
	// RecordStatusPartiallyFilled marks an entry whose remainder was
	// cancelled after a partial execution.
	RecordStatusPartiallyFilled RecordStatus = "partially_filled"
)

// OrderRecord is the locally persisted view of an order we placed.
type OrderRecord struct {
	ID         string
	Pair       string
	Side       OrderSide
	Role       OrderRole
	Price      decimal.Decimal
	Quantity   decimal.Decimal
	Status     RecordStatus
	PositionID string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// OpenOrder is an order currently resting on the exchange, as returned by
// the open-orders listing.
type OpenOrder struct {
	ID        string
	Pair      string
	Side      OrderSide
	Price     decimal.Decimal
	Quantity  decimal.Decimal
	CreatedAt time.Time
}

// OrderState is the normalized result of an order status query.
type OrderState struct {
	ID               string
	Status           OrderStatus
	OriginalQuantity decimal.Decimal
	FilledQuantity   decimal.Decimal
	AveragePrice     decimal.Decimal
}

// Fill is a single execution against one of our orders.
type Fill struct {
	Price    decimal.Decimal
	Quantity decimal.Decimal
	FilledAt time.Time
}
