// Package engine owns the entry, fill-wait, protection, and exit lifecycle
// of every trade, the position monitor, startup recovery, and the daily
// trade counters.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"valrbot/internal/domain"
)

// Close reasons recorded on the journal entry and notification.
const (
	ReasonTakeProfit       = "take_profit"
	ReasonStopLoss         = "stop_loss"
	ReasonManualTakeProfit = "manual_take_profit"
	ReasonPositionTimeout  = "position_timeout"
	ReasonExitTimeout      = "exit_orders_timeout"
	ReasonOrdersMissing    = "orders_missing"
	ReasonBothFilled       = "both_orders_filled"
)

// drainTimeout bounds exchange calls that run after the shutdown signal has
// fired, such as cancelling a still-resting entry order.
const drainTimeout = 15 * time.Second

// DailyCounters track per-UTC-day trading activity. Reset happens lazily at
// the first counter access after midnight UTC.
type DailyCounters struct {
	Date   string // UTC date, YYYY-MM-DD
	Trades int
	Wins   int
	Losses int
	PnL    decimal.Decimal
}

// Engine runs trade setups against the exchange and monitors the resulting
// positions. The open-position map and counters are shared between the
// setup and monitor cycles and are guarded by one mutex.
type Engine struct {
	cfg       Config
	exchange  Exchange
	orders    domain.OrderStore
	positions domain.PositionStore
	journal   domain.TradeJournal
	notifier  Notifier
	pricer    EntryPricer
	logger    *slog.Logger

	mu       sync.Mutex
	open     map[string]domain.Position
	counters DailyCounters

	pollInterval func(elapsed time.Duration) time.Duration
	now          func() time.Time
}

// New creates an Engine. The journal and notifier are optional and set
// separately.
func New(cfg Config, exchange Exchange, orders domain.OrderStore, positions domain.PositionStore, logger *slog.Logger) *Engine {
	return &Engine{
		cfg:          cfg,
		exchange:     exchange,
		orders:       orders,
		positions:    positions,
		pricer:       belowAskPricer{},
		logger:       logger.With(slog.String("component", "engine")),
		open:         make(map[string]domain.Position),
		pollInterval: defaultPollInterval,
		now:          time.Now,
	}
}

// SetJournal enables closed-trade journaling.
func (e *Engine) SetJournal(j domain.TradeJournal) { e.journal = j }

// SetNotifier enables trade lifecycle notifications.
func (e *Engine) SetNotifier(n Notifier) { e.notifier = n }

// SetEntryPricer replaces the entry pricing strategy.
func (e *Engine) SetEntryPricer(p EntryPricer) { e.pricer = p }

// SetFillPollInterval replaces the fill-wait poll schedule. This is useful
// for testing.
func (e *Engine) SetFillPollInterval(f func(elapsed time.Duration) time.Duration) {
	e.pollInterval = f
}

// SetClock replaces the engine's time source. This is useful for testing.
func (e *Engine) SetClock(now func() time.Time) { e.now = now }

// OpenPositions returns a snapshot of the in-memory position map.
func (e *Engine) OpenPositions() []domain.Position {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]domain.Position, 0, len(e.open))
	for _, pos := range e.open {
		out = append(out, pos)
	}
	return out
}

// Counters returns a snapshot of today's counters.
func (e *Engine) Counters() DailyCounters {
	e.mu.Lock()
	defer e.mu.Unlock()
	return *e.countersLocked()
}

// countersLocked returns today's counters, resetting them when the UTC date
// has rolled over. Caller holds e.mu.
func (e *Engine) countersLocked() *DailyCounters {
	today := e.now().UTC().Format(time.DateOnly)
	if e.counters.Date != today {
		if e.counters.Date != "" {
			e.logger.Info("daily counters reset",
				slog.String("previous_date", e.counters.Date),
				slog.Int("trades", e.counters.Trades),
				slog.Int("wins", e.counters.Wins),
				slog.Int("losses", e.counters.Losses),
				slog.String("pnl", e.counters.PnL.String()),
			)
		}
		e.counters = DailyCounters{Date: today, PnL: decimal.Zero}
	}
	return &e.counters
}

// ExecuteTradeSetup runs the full entry-to-protection sequence for one buy
// signal. "No trade" outcomes come back as sentinel errors; none of them
// are fatal to the process.
func (e *Engine) ExecuteTradeSetup(ctx context.Context, sig domain.TradeSignal) (*domain.Position, error) {
	pair := sig.Pair
	log := e.logger.With(slog.String("pair", pair))

	// Daily limit is checked before any gateway call.
	e.mu.Lock()
	if c := e.countersLocked(); c.Trades >= e.cfg.MaxDailyTrades {
		e.mu.Unlock()
		return nil, domain.ErrDailyLimitReached
	}
	e.mu.Unlock()

	balances, err := e.exchange.Balances(ctx)
	if err != nil {
		return nil, fmt.Errorf("engine: get balances: %w", err)
	}
	required := e.cfg.requiredBalance()
	if balances[e.cfg.QuoteCurrency].LessThan(required) {
		log.Info("skipping signal, balance below required",
			slog.String("required", required.String()),
			slog.String("available", balances[e.cfg.QuoteCurrency].String()),
		)
		return nil, domain.ErrInsufficientBalance
	}

	book, err := e.exchange.OrderBook(ctx, pair)
	if err != nil {
		return nil, fmt.Errorf("engine: get orderbook: %w", err)
	}
	rawPrice, ok := e.pricer.Price(book)
	if !ok || rawPrice.Sign() <= 0 {
		return nil, domain.ErrNoMarketData
	}

	spec := e.cfg.pairSpec(pair)
	price := domain.RoundPriceToTick(rawPrice, spec.TickSize)
	quantity := domain.QuantityForAmount(e.cfg.TradeAmount, price, spec.QuantityPlaces)
	if quantity.Sign() <= 0 {
		return nil, fmt.Errorf("engine: trade amount rounds to zero quantity: %w", domain.ErrInvalidOrder)
	}

	var entryID string
	if e.pricer.Name() == PricingMarket {
		entryID, err = e.exchange.PlaceMarketOrder(ctx, pair, domain.OrderSideBuy, quantity)
	} else {
		entryID, err = e.exchange.PlaceLimitOrder(ctx, pair, domain.OrderSideBuy, quantity, price, e.cfg.PostOnlyEntry)
	}
	if err != nil {
		return nil, fmt.Errorf("engine: place entry order: %w", err)
	}
	e.saveOrderRecord(ctx, domain.OrderRecord{
		ID:        entryID,
		Pair:      pair,
		Side:      domain.OrderSideBuy,
		Role:      domain.OrderRoleEntry,
		Price:     price,
		Quantity:  quantity,
		Status:    domain.RecordStatusActive,
		CreatedAt: e.now().UTC(),
		UpdatedAt: e.now().UTC(),
	})

	outcome := e.WaitForFill(ctx, pair, entryID, quantity, e.cfg.FillWaitTimeout)
	log.Info("fill wait completed",
		slog.String("order_id", entryID),
		slog.String("state", string(outcome.State)),
		slog.String("filled_quantity", outcome.FilledQuantity.String()),
	)

	// The shutdown signal's scope ends with the fill wait. Cleanup and
	// protective calls below run detached from it so an entry cancel or a
	// liquidation still reaches the exchange during termination.
	dctx, cancelDrain := context.WithTimeout(context.WithoutCancel(ctx), drainTimeout)
	defer cancelDrain()

	switch outcome.State {
	case domain.FillStateFilled:
		// proceed

	case domain.FillStatePartiallyFilled:
		// Cancel the unfilled remainder; the filled quantity still gets
		// protected below.
		if err := e.exchange.CancelOrder(dctx, pair, entryID); err != nil {
			log.Warn("cancel partial entry remainder failed",
				slog.String("order_id", entryID),
				slog.String("error", err.Error()),
			)
		}

	case domain.FillStateShutdown:
		// The resting buy could fill while the process is down and nothing
		// would reconstruct it, so the cancel must reach the exchange.
		if err := e.exchange.CancelOrder(dctx, pair, entryID); err != nil {
			log.Warn("cancel entry on shutdown failed", slog.String("error", err.Error()))
		}
		e.updateOrderRecord(dctx, entryID, domain.RecordStatusCancelled)
		return nil, ctx.Err()

	case domain.FillStateTimeout:
		if err := e.exchange.CancelOrder(dctx, pair, entryID); err != nil {
			log.Warn("cancel timed-out entry failed", slog.String("error", err.Error()))
		}
		e.updateOrderRecord(dctx, entryID, domain.RecordStatusCancelled)
		return nil, fmt.Errorf("engine: entry timed out: %w", domain.ErrEntryNotFilled)

	default: // CANCELLED
		e.updateOrderRecord(dctx, entryID, domain.RecordStatusCancelled)
		return nil, fmt.Errorf("engine: entry cancelled: %w", domain.ErrEntryNotFilled)
	}

	filledQty := domain.RoundQuantity(outcome.FilledQuantity, spec.QuantityPlaces)
	if filledQty.Sign() <= 0 {
		e.updateOrderRecord(dctx, entryID, domain.RecordStatusCancelled)
		return nil, fmt.Errorf("engine: filled quantity rounds to zero: %w", domain.ErrEntryNotFilled)
	}
	entryPrice := outcome.AveragePrice
	if entryPrice.Sign() <= 0 {
		entryPrice = price
	}
	entryStatus := domain.RecordStatusFilled
	if outcome.State == domain.FillStatePartiallyFilled {
		// The remainder was cancelled; the ledger must not claim a full fill.
		entryStatus = domain.RecordStatusPartiallyFilled
	}
	e.updateOrderRecord(dctx, entryID, entryStatus)
	entryFilledAt := e.now().UTC()

	tpPrice := domain.RoundPriceToTick(domain.TakeProfitPrice(entryPrice, e.cfg.TakeProfitPct), spec.TickSize)
	slPrice := domain.RoundPriceToTick(domain.StopLossPrice(entryPrice, e.cfg.StopLossPct), spec.TickSize)

	slID, err := e.exchange.PlaceLimitOrder(dctx, pair, domain.OrderSideSell, filledQty, slPrice, false)
	if err != nil {
		e.recordFailedTrade(dctx, pair, filledQty, nil, fmt.Errorf("place stop loss: %w", err))
		return nil, fmt.Errorf("engine: place stop loss: %w", err)
	}

	tpID := ""
	if !e.cfg.SingleExitOrder {
		tpID, err = e.exchange.PlaceLimitOrder(dctx, pair, domain.OrderSideSell, filledQty, tpPrice, false)
		if err != nil {
			e.recordFailedTrade(dctx, pair, filledQty, []string{slID}, fmt.Errorf("place take profit: %w", err))
			return nil, fmt.Errorf("engine: place take profit: %w", err)
		}
	}

	pos := domain.Position{
		ID:                uuid.New().String(),
		Pair:              pair,
		Quantity:          filledQty,
		EntryPrice:        entryPrice,
		EntryOrderID:      entryID,
		TakeProfitOrderID: tpID,
		StopLossOrderID:   slID,
		TakeProfitPrice:   tpPrice,
		StopLossPrice:     slPrice,
		Status:            domain.PositionStatusOpen,
		CreatedAt:         entryFilledAt,
		EntryFilledAt:     entryFilledAt,
	}

	e.mu.Lock()
	e.open[pos.ID] = pos
	e.countersLocked().Trades++
	e.mu.Unlock()

	if err := e.positions.Save(dctx, pos); err != nil {
		// Persistence failures never halt live risk management.
		log.Error("persist position failed, continuing in memory",
			slog.String("position_id", pos.ID),
			slog.String("error", err.Error()),
		)
	}
	e.saveOrderRecord(dctx, domain.OrderRecord{
		ID: slID, Pair: pair, Side: domain.OrderSideSell, Role: domain.OrderRoleStopLoss,
		Price: slPrice, Quantity: filledQty, Status: domain.RecordStatusActive,
		PositionID: pos.ID, CreatedAt: entryFilledAt, UpdatedAt: entryFilledAt,
	})
	if tpID != "" {
		e.saveOrderRecord(dctx, domain.OrderRecord{
			ID: tpID, Pair: pair, Side: domain.OrderSideSell, Role: domain.OrderRoleTakeProfit,
			Price: tpPrice, Quantity: filledQty, Status: domain.RecordStatusActive,
			PositionID: pos.ID, CreatedAt: entryFilledAt, UpdatedAt: entryFilledAt,
		})
	}

	log.Info("position opened",
		slog.String("position_id", pos.ID),
		slog.String("quantity", filledQty.String()),
		slog.String("entry_price", entryPrice.String()),
		slog.String("take_profit", tpPrice.String()),
		slog.String("stop_loss", slPrice.String()),
	)
	e.notifyTradeOpened(dctx, pos)

	return &pos, nil
}

// recordFailedTrade runs the emergency liquidation path after a
// protective-order placement failure and books the episode as a failed
// trade. The filled position must never be left unprotected.
func (e *Engine) recordFailedTrade(ctx context.Context, pair string, quantity decimal.Decimal, cancelIDs []string, cause error) {
	e.logger.Error("protective order placement failed, liquidating",
		slog.String("pair", pair),
		slog.String("quantity", quantity.String()),
		slog.String("error", cause.Error()),
	)

	if err := e.liquidate(ctx, pair, quantity, cancelIDs); err != nil {
		// Highest severity: an unprotected position is still held.
		e.logger.Error("EMERGENCY: liquidation failed, unprotected position remains",
			slog.String("pair", pair),
			slog.String("quantity", quantity.String()),
			slog.String("error", err.Error()),
		)
		e.notifyLiquidation(ctx, pair, quantity, false, err)
	} else {
		e.notifyLiquidation(ctx, pair, quantity, true, cause)
	}

	e.mu.Lock()
	c := e.countersLocked()
	c.Trades++
	c.Losses++
	e.mu.Unlock()
}

// liquidate cancels the given orders and sells the quantity, at market
// first, then as an aggressive best-bid limit order if the market sell is
// rejected.
func (e *Engine) liquidate(ctx context.Context, pair string, quantity decimal.Decimal, cancelIDs []string) error {
	for _, id := range cancelIDs {
		if id == "" {
			continue
		}
		if err := e.exchange.CancelOrder(ctx, pair, id); err != nil {
			e.logger.Warn("cancel during liquidation failed",
				slog.String("order_id", id),
				slog.String("error", err.Error()),
			)
		}
	}

	_, marketErr := e.exchange.PlaceMarketOrder(ctx, pair, domain.OrderSideSell, quantity)
	if marketErr == nil {
		return nil
	}
	e.logger.Warn("market liquidation failed, trying best-bid limit",
		slog.String("pair", pair),
		slog.String("error", marketErr.Error()),
	)

	book, err := e.exchange.OrderBook(ctx, pair)
	if err != nil {
		return fmt.Errorf("liquidation orderbook: %w", err)
	}
	bid, ok := book.BestBid()
	if !ok {
		return domain.ErrNoMarketData
	}
	if _, err := e.exchange.PlaceLimitOrder(ctx, pair, domain.OrderSideSell, quantity, bid.Price, false); err != nil {
		return fmt.Errorf("best-bid liquidation: %w", err)
	}
	return nil
}

// saveOrderRecord persists an order record, logging instead of failing.
func (e *Engine) saveOrderRecord(ctx context.Context, rec domain.OrderRecord) {
	if err := e.orders.Save(ctx, rec); err != nil {
		e.logger.Warn("persist order record failed",
			slog.String("order_id", rec.ID),
			slog.String("error", err.Error()),
		)
	}
}

func (e *Engine) updateOrderRecord(ctx context.Context, id string, status domain.RecordStatus) {
	if err := e.orders.UpdateStatus(ctx, id, status); err != nil {
		e.logger.Warn("update order record failed",
			slog.String("order_id", id),
			slog.String("error", err.Error()),
		)
	}
}

// The notifier is optional; delivery failures are logged, never propagated.

func (e *Engine) notifyTradeOpened(ctx context.Context, pos domain.Position) {
	if e.notifier == nil {
		return
	}
	if err := e.notifier.TradeOpened(ctx, pos); err != nil {
		e.logger.Warn("notification delivery failed",
			slog.String("event", "trade_opened"),
			slog.String("error", err.Error()),
		)
	}
}

func (e *Engine) notifyTradeClosed(ctx context.Context, trade domain.ClosedTrade) {
	if e.notifier == nil {
		return
	}
	if err := e.notifier.TradeClosed(ctx, trade); err != nil {
		e.logger.Warn("notification delivery failed",
			slog.String("event", "trade_closed"),
			slog.String("error", err.Error()),
		)
	}
}

func (e *Engine) notifyLiquidation(ctx context.Context, pair string, quantity decimal.Decimal, sold bool, cause error) {
	if e.notifier == nil {
		return
	}
	if err := e.notifier.Liquidation(ctx, pair, quantity, sold, cause); err != nil {
		e.logger.Warn("notification delivery failed",
			slog.String("event", "emergency_liquidation"),
			slog.String("error", err.Error()),
		)
	}
}
