package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestExitPrices(t *testing.T) {
	entry := dec("100")

	tp := TakeProfitPrice(entry, dec("1.5"))
	sl := StopLossPrice(entry, dec("2.0"))

	assert.True(t, tp.Equal(dec("101.5")), "take profit = %s", tp)
	assert.True(t, sl.Equal(dec("98.0")), "stop loss = %s", sl)
}

func TestExitPricesExactAtSmallScale(t *testing.T) {
	// 0.1 and friends are not representable in binary floats; decimals
	// must keep these exact.
	entry := dec("0.1")

	tp := TakeProfitPrice(entry, dec("10"))
	require.True(t, tp.Equal(dec("0.11")), "take profit = %s", tp)
}

func TestEntryFromTakeProfit(t *testing.T) {
	entry := dec("12345.67")
	pct := dec("1.0")

	tp := TakeProfitPrice(entry, pct)
	back := EntryFromTakeProfit(tp, pct)

	diff := back.Sub(entry).Abs()
	assert.True(t, diff.LessThan(dec("0.0001")), "round trip drift = %s", diff)
}

func TestRoundPriceToTick(t *testing.T) {
	tests := []struct {
		name  string
		price string
		tick  string
		want  string
	}{
		{"exact multiple", "101.50", "0.01", "101.50"},
		{"rounds down", "101.509", "0.01", "101.50"},
		{"whole tick", "1234567.89", "1", "1234567"},
		{"never rounds up", "99.999", "0.5", "99.5"},
		{"zero tick passthrough", "42.42", "0", "42.42"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RoundPriceToTick(dec(tt.price), dec(tt.tick))
			assert.True(t, got.Equal(dec(tt.want)), "got %s want %s", got, tt.want)
		})
	}
}

func TestRoundQuantityTruncates(t *testing.T) {
	got := RoundQuantity(dec("0.123456789"), 8)
	assert.True(t, got.Equal(dec("0.12345678")), "got %s", got)

	// Rounding must truncate, never round half up.
	got = RoundQuantity(dec("0.999999999"), 8)
	assert.True(t, got.Equal(dec("0.99999999")), "got %s", got)
}

func TestQuantityForAmount(t *testing.T) {
	qty := QuantityForAmount(dec("100"), dec("3"), 6)
	assert.True(t, qty.Equal(dec("33.333333")), "got %s", qty)

	// Buying qty at price must never exceed the amount.
	assert.True(t, qty.Mul(dec("3")).LessThanOrEqual(dec("100")))

	assert.True(t, QuantityForAmount(dec("100"), decimal.Zero, 6).IsZero())
}

func TestPnL(t *testing.T) {
	assert.True(t, PnL(dec("100"), dec("101.5"), dec("2")).Equal(dec("3")))
	assert.True(t, PnL(dec("100"), dec("98"), dec("0.5")).Equal(dec("-1")))
}
