// Package scanner samples last-traded prices and emits oversold buy signals
// based on RSI.
package scanner

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/markcheno/go-talib"
	"github.com/shopspring/decimal"

	"valrbot/internal/domain"
)

// MarketData is the market summary source the scanner samples from.
type MarketData interface {
	PairSummary(ctx context.Context, pair string) (domain.PairSummary, error)
}

// Config holds the scanner's parameters.
type Config struct {
	Pairs        []string
	RSIPeriod    int
	RSIThreshold float64       // emit a signal when RSI is at or below this
	HistorySize  int           // samples retained per pair
	Cooldown     time.Duration // minimum gap between signals on one pair
}

const (
	defaultRSIPeriod    = 14
	defaultRSIThreshold = 30.0
	defaultHistorySize  = 200
	defaultCooldown     = 30 * time.Minute
)

// Scanner keeps a sliding price history per pair and evaluates RSI on every
// scan pass. One Scanner instance is shared between scan cycles; all state
// is guarded by a single mutex.
type Scanner struct {
	cfg    Config
	market MarketData
	logger *slog.Logger

	mu         sync.Mutex
	history    map[string][]float64
	lastSignal map[string]time.Time

	now func() time.Time
}

// New creates a Scanner. Zero config fields fall back to the defaults.
func New(cfg Config, market MarketData, logger *slog.Logger) *Scanner {
	if cfg.RSIPeriod <= 0 {
		cfg.RSIPeriod = defaultRSIPeriod
	}
	if cfg.RSIThreshold <= 0 {
		cfg.RSIThreshold = defaultRSIThreshold
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = defaultHistorySize
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = defaultCooldown
	}
	return &Scanner{
		cfg:        cfg,
		market:     market,
		logger:     logger.With(slog.String("component", "scanner")),
		history:    make(map[string][]float64),
		lastSignal: make(map[string]time.Time),
		now:        time.Now,
	}
}

// SetClock replaces the scanner's time source. This is useful for testing.
func (s *Scanner) SetClock(now func() time.Time) { s.now = now }

// Scan samples every configured pair once and returns the buy signals found
// in this pass. A fetch failure on one pair is logged and skipped; it never
// aborts the pass.
func (s *Scanner) Scan(ctx context.Context) ([]domain.TradeSignal, error) {
	var signals []domain.TradeSignal
	for _, pair := range s.cfg.Pairs {
		if err := ctx.Err(); err != nil {
			return signals, err
		}

		summary, err := s.market.PairSummary(ctx, pair)
		if err != nil {
			s.logger.Warn("pair summary fetch failed",
				slog.String("pair", pair),
				slog.String("error", err.Error()),
			)
			continue
		}
		price := summary.LastTradedPrice.InexactFloat64()
		if price <= 0 {
			continue
		}

		if sig, ok := s.observe(pair, summary.LastTradedPrice, price); ok {
			signals = append(signals, sig)
		}
	}
	return signals, nil
}

// observe appends one sample and evaluates the signal condition for the
// pair.
func (s *Scanner) observe(pair string, last decimal.Decimal, price float64) (domain.TradeSignal, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	closes := append(s.history[pair], price)
	if len(closes) > s.cfg.HistorySize {
		closes = closes[len(closes)-s.cfg.HistorySize:]
	}
	s.history[pair] = closes

	// RSI needs period+1 closes before the first valid value.
	if len(closes) <= s.cfg.RSIPeriod {
		return domain.TradeSignal{}, false
	}

	rsi := talib.Rsi(closes, s.cfg.RSIPeriod)
	value := rsi[len(rsi)-1]
	if math.IsNaN(value) || value > s.cfg.RSIThreshold {
		return domain.TradeSignal{}, false
	}

	now := s.now()
	if prev, ok := s.lastSignal[pair]; ok && now.Sub(prev) < s.cfg.Cooldown {
		s.logger.Debug("signal suppressed by cooldown",
			slog.String("pair", pair),
			slog.Float64("rsi", value),
		)
		return domain.TradeSignal{}, false
	}
	s.lastSignal[pair] = now

	s.logger.Info("oversold signal",
		slog.String("pair", pair),
		slog.Float64("rsi", value),
		slog.String("last_price", last.String()),
	)
	return domain.TradeSignal{
		Pair:      pair,
		RSI:       value,
		LastPrice: last,
		At:        now,
	}, true
}

// Reset drops all price history and cooldown state.
func (s *Scanner) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = make(map[string][]float64)
	s.lastSignal = make(map[string]time.Time)
}
