package engine

import (
	"time"

	"github.com/shopspring/decimal"
)

// PairSpec carries the exchange's precision rules for one pair.
type PairSpec struct {
	TickSize       decimal.Decimal
	QuantityPlaces int32
}

// Config holds the engine's trading parameters.
type Config struct {
	QuoteCurrency    string
	TradeAmount      decimal.Decimal // quote currency spent per entry
	TakeProfitPct    decimal.Decimal
	StopLossPct      decimal.Decimal
	FeePct           decimal.Decimal // taker fee estimate for the balance check
	BalanceMarginPct decimal.Decimal // extra headroom on top of size + fee
	MaxDailyTrades   int
	FillWaitTimeout  time.Duration
	PositionTimeout  time.Duration
	ExitOrderTimeout time.Duration
	// SingleExitOrder places only the stop-loss order and monitors the
	// take-profit level manually. Needed on pairs where the exchange
	// refuses two sell orders drawing on the same balance.
	SingleExitOrder bool
	PostOnlyEntry   bool
	Pairs           map[string]PairSpec
}

const defaultQuantityPlaces = 6

func (c Config) pairSpec(pair string) PairSpec {
	if spec, ok := c.Pairs[pair]; ok {
		return spec
	}
	return PairSpec{QuantityPlaces: defaultQuantityPlaces}
}

// requiredBalance is trade size plus estimated fee plus safety margin.
func (c Config) requiredBalance() decimal.Decimal {
	pct := c.FeePct.Add(c.BalanceMarginPct)
	return c.TradeAmount.Mul(decimal.NewFromInt(1).Add(pct.Div(decimal.NewFromInt(100))))
}
