package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"valrbot/internal/domain"
)

func TestNewEntryPricer(t *testing.T) {
	book := domain.OrderBook{
		Bids: []domain.BookLevel{{Price: dec("99900"), Quantity: dec("1")}},
		Asks: []domain.BookLevel{{Price: dec("100000"), Quantity: dec("1")}},
	}

	cases := []struct {
		strategy string
		name     string
		want     string
	}{
		{PricingAsk, PricingAsk, "100000"},
		{PricingBid, PricingBid, "99900"},
		{PricingBelowAsk, PricingBelowAsk, "99900"}, // 100000 * 0.999
		{"", PricingBelowAsk, "99900"},              // default strategy
		{PricingMarket, PricingMarket, "100000"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p, err := NewEntryPricer(tc.strategy)
			require.NoError(t, err)
			assert.Equal(t, tc.name, p.Name())

			price, ok := p.Price(book)
			require.True(t, ok)
			assert.True(t, price.Equal(dec(tc.want)), "price = %s, want %s", price, tc.want)
		})
	}
}

func TestNewEntryPricerUnknownStrategy(t *testing.T) {
	_, err := NewEntryPricer("vwap")
	assert.Error(t, err)
}

func TestPricersOnEmptyBook(t *testing.T) {
	for _, strategy := range []string{PricingAsk, PricingBid, PricingBelowAsk, PricingMarket} {
		p, err := NewEntryPricer(strategy)
		require.NoError(t, err)
		_, ok := p.Price(domain.OrderBook{})
		assert.False(t, ok, "%s must report no price on an empty book", strategy)
	}
}
