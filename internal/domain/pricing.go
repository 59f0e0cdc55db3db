package domain

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// TakeProfitPrice returns entry * (1 + pct/100).
func TakeProfitPrice(entry, pct decimal.Decimal) decimal.Decimal {
	return entry.Mul(decimal.NewFromInt(1).Add(pct.Div(hundred)))
}

// StopLossPrice returns entry * (1 - pct/100).
func StopLossPrice(entry, pct decimal.Decimal) decimal.Decimal {
	return entry.Mul(decimal.NewFromInt(1).Sub(pct.Div(hundred)))
}

// EntryFromTakeProfit inverts TakeProfitPrice. Recovery uses it to estimate
// the entry price of a position known only by its take-profit order.
func EntryFromTakeProfit(tp, pct decimal.Decimal) decimal.Decimal {
	return tp.Div(decimal.NewFromInt(1).Add(pct.Div(hundred)))
}

// RoundPriceToTick rounds price down to the nearest multiple of tick.
// Prices always round down so a sell is never priced above intent.
func RoundPriceToTick(price, tick decimal.Decimal) decimal.Decimal {
	if tick.IsZero() {
		return price
	}
	return price.Div(tick).Floor().Mul(tick)
}

// RoundQuantity truncates qty to the given number of decimal places.
// Quantities always round down so an order never exceeds available funds.
func RoundQuantity(qty decimal.Decimal, places int32) decimal.Decimal {
	return qty.RoundDown(places)
}

// QuantityForAmount converts a quote-currency amount into a base quantity at
// the given price, truncated to the pair's quantity precision.
func QuantityForAmount(amount, price decimal.Decimal, places int32) decimal.Decimal {
	if price.IsZero() {
		return decimal.Zero
	}
	return RoundQuantity(amount.Div(price), places)
}

// PnL returns (exit - entry) * quantity.
func PnL(entry, exit, qty decimal.Decimal) decimal.Decimal {
	return exit.Sub(entry).Mul(qty)
}
