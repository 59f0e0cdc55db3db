package engine

import (
	"fmt"

	"github.com/shopspring/decimal"

	"valrbot/internal/domain"
)

// EntryPricer decides the entry price for a buy from the current book.
// Upstream never settled on one entry policy, so it is pluggable; the
// "market" pricer's value is only a size estimate and the engine places a
// market order instead of a limit order.
type EntryPricer interface {
	Name() string
	Price(book domain.OrderBook) (decimal.Decimal, bool)
}

// Entry pricing strategy names accepted by NewEntryPricer.
const (
	PricingAsk      = "ask"       // cross the spread at the best ask
	PricingBid      = "bid"       // rest at the best bid
	PricingBelowAsk = "below_ask" // rest just under the best ask
	PricingMarket   = "market"    // immediate market order
)

// belowAskFactor shades the ask slightly so the order rests as a maker
// instead of taking liquidity.
var belowAskFactor = decimal.RequireFromString("0.999")

// NewEntryPricer returns the pricer for the named strategy.
func NewEntryPricer(strategy string) (EntryPricer, error) {
	switch strategy {
	case PricingAsk:
		return askPricer{}, nil
	case PricingBid:
		return bidPricer{}, nil
	case PricingBelowAsk, "":
		return belowAskPricer{}, nil
	case PricingMarket:
		return marketPricer{}, nil
	default:
		return nil, fmt.Errorf("engine: unknown entry pricing strategy %q", strategy)
	}
}

type askPricer struct{}

func (askPricer) Name() string { return PricingAsk }

func (askPricer) Price(book domain.OrderBook) (decimal.Decimal, bool) {
	ask, ok := book.BestAsk()
	return ask.Price, ok
}

type bidPricer struct{}

func (bidPricer) Name() string { return PricingBid }

func (bidPricer) Price(book domain.OrderBook) (decimal.Decimal, bool) {
	bid, ok := book.BestBid()
	return bid.Price, ok
}

type belowAskPricer struct{}

func (belowAskPricer) Name() string { return PricingBelowAsk }

func (belowAskPricer) Price(book domain.OrderBook) (decimal.Decimal, bool) {
	ask, ok := book.BestAsk()
	if !ok {
		return decimal.Zero, false
	}
	return ask.Price.Mul(belowAskFactor), true
}

type marketPricer struct{}

func (marketPricer) Name() string { return PricingMarket }

func (marketPricer) Price(book domain.OrderBook) (decimal.Decimal, bool) {
	ask, ok := book.BestAsk()
	return ask.Price, ok
}
