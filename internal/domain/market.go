package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// BookLevel is a single price+quantity entry in an order book.
type BookLevel struct {
	Price    decimal.Decimal
	Quantity decimal.Decimal
}

// OrderBook is a snapshot of resting bids and asks for a pair.
type OrderBook struct {
	Pair string
	Bids []BookLevel // descending by price
	Asks []BookLevel // ascending by price
}

// BestBid returns the highest resting bid, or false if the book is empty.
func (b OrderBook) BestBid() (BookLevel, bool) {
	if len(b.Bids) == 0 {
		return BookLevel{}, false
	}
	return b.Bids[0], true
}

// BestAsk returns the lowest resting ask, or false if the book is empty.
func (b OrderBook) BestAsk() (BookLevel, bool) {
	if len(b.Asks) == 0 {
		return BookLevel{}, false
	}
	return b.Asks[0], true
}

// PairSummary is the market summary for a single pair.
type PairSummary struct {
	Pair            string
	LastTradedPrice decimal.Decimal
	BidPrice        decimal.Decimal
	AskPrice        decimal.Decimal
}

// TradeSignal is a buy signal emitted by a signal source.
type TradeSignal struct {
	Pair      string
	RSI       float64
	LastPrice decimal.Decimal
	At        time.Time
}
