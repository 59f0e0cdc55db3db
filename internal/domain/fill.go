package domain

import "github.com/shopspring/decimal"

// FillState is the terminal state of a fill-wait on an order.
type FillState string

const (
	FillStateFilled          FillState = "FILLED"
	FillStatePartiallyFilled FillState = "PARTIALLY_FILLED"
	FillStateCancelled       FillState = "CANCELLED"
	FillStateTimeout         FillState = "TIMEOUT"
	FillStateShutdown        FillState = "SHUTDOWN"
)

// FillOutcome reports how a fill-wait ended and what quantity executed.
// FilledQuantity is zero unless State is FILLED or PARTIALLY_FILLED.
type FillOutcome struct {
	State          FillState
	FilledQuantity decimal.Decimal
	AveragePrice   decimal.Decimal
}
