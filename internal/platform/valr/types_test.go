package valr

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"valrbot/internal/domain"
)

func TestNormalizeStatus(t *testing.T) {
	tests := []struct {
		raw  string
		want domain.OrderStatus
	}{
		{"Filled", domain.OrderStatusFilled},
		{"filled", domain.OrderStatusFilled},
		{"Partially Filled", domain.OrderStatusPartiallyFilled},
		{"PARTIALLY_FILLED", domain.OrderStatusPartiallyFilled},
		{"Cancelled", domain.OrderStatusCancelled},
		{"Canceled", domain.OrderStatusCancelled},
		{"Failed", domain.OrderStatusCancelled},
		{"Expired", domain.OrderStatusCancelled},
		{"Placed", domain.OrderStatusPending},
		{"Active", domain.OrderStatusPending},
		{"Open", domain.OrderStatusPending},
		{"", domain.OrderStatusPending},
		{"Some Future Status", domain.OrderStatusPending},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, normalizeStatus(tt.raw))
		})
	}
}

func TestOrderStateNormalizeFieldSpellings(t *testing.T) {
	tests := []struct {
		name       string
		resp       orderStatusResponse
		wantStatus domain.OrderStatus
		wantOrig   string
		wantFilled string
	}{
		{
			name: "original quantity with remaining",
			resp: orderStatusResponse{
				OrderStatusType:   "Partially Filled",
				OriginalQuantity:  "1.0",
				RemainingQuantity: "0.4",
			},
			wantStatus: domain.OrderStatusPartiallyFilled,
			wantOrig:   "1.0",
			wantFilled: "0.6",
		},
		{
			name: "quantity spelling, filled implies full quantity",
			resp: orderStatusResponse{
				Status:   "Filled",
				Quantity: "0.005",
			},
			wantStatus: domain.OrderStatusFilled,
			wantOrig:   "0.005",
			wantFilled: "0.005",
		},
		{
			name: "baseAmount spelling, executed takes precedence",
			resp: orderStatusResponse{
				OrderStatusType:  "Partially Filled",
				BaseAmount:       "2.0",
				ExecutedQuantity: "0.75",
			},
			wantStatus: domain.OrderStatusPartiallyFilled,
			wantOrig:   "2.0",
			wantFilled: "0.75",
		},
		{
			name: "pending order has zero filled",
			resp: orderStatusResponse{
				OrderStatusType:  "Placed",
				OriginalQuantity: "1.5",
			},
			wantStatus: domain.OrderStatusPending,
			wantOrig:   "1.5",
			wantFilled: "0",
		},
		{
			name: "negative filled clamps to zero",
			resp: orderStatusResponse{
				OrderStatusType:   "Placed",
				OriginalQuantity:  "1.0",
				RemainingQuantity: "1.2",
			},
			wantStatus: domain.OrderStatusPending,
			wantOrig:   "1.0",
			wantFilled: "0",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.resp.normalize()
			assert.Equal(t, tt.wantStatus, got.Status)
			assert.True(t, got.OriginalQuantity.Equal(decimal.RequireFromString(tt.wantOrig)),
				"original = %s", got.OriginalQuantity)
			assert.True(t, got.FilledQuantity.Equal(decimal.RequireFromString(tt.wantFilled)),
				"filled = %s", got.FilledQuantity)
		})
	}
}

func TestOrderStateNormalizePriceSpellings(t *testing.T) {
	got := orderStatusResponse{AveragePrice: "101.5"}.normalize()
	assert.True(t, got.AveragePrice.Equal(decimal.RequireFromString("101.5")))

	got = orderStatusResponse{AvgPrice: "98.0"}.normalize()
	assert.True(t, got.AveragePrice.Equal(decimal.RequireFromString("98.0")))
}

func TestOpenOrderNormalize(t *testing.T) {
	got := openOrderResponse{
		OrderID:          "abc",
		CurrencyPair:     "BTCZAR",
		Side:             "sell",
		LimitPrice:       "1250000",
		OriginalQuantity: "0.5",
		CreatedAt:        "2026-08-25T10:00:00Z",
	}.normalize()

	assert.Equal(t, "abc", got.ID)
	assert.Equal(t, domain.OrderSideSell, got.Side)
	assert.True(t, got.Price.Equal(decimal.RequireFromString("1250000")))
	assert.True(t, got.Quantity.Equal(decimal.RequireFromString("0.5")))
	assert.False(t, got.CreatedAt.IsZero())
}

func TestParseDecimalLenient(t *testing.T) {
	assert.True(t, parseDecimal("").IsZero())
	assert.True(t, parseDecimal("garbage").IsZero())
	assert.True(t, parseDecimal(" 1.25 ").Equal(decimal.RequireFromString("1.25")))
}
