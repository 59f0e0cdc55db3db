package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"valrbot/internal/domain"
	"valrbot/internal/store/file"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type placedOrder struct {
	pair     string
	side     domain.OrderSide
	quantity decimal.Decimal
	price    decimal.Decimal
	postOnly bool
}

// fakeExchange implements Exchange with scriptable responses.
type fakeExchange struct {
	mu sync.Mutex

	balances      map[string]decimal.Decimal
	balancesErr   error
	book          domain.OrderBook
	bookErr       error
	statuses      map[string]domain.OrderState
	fills         map[string][]domain.Fill
	openOrders    []domain.OpenOrder
	openOrdersErr error

	limitErrs []error // consumed FIFO by PlaceLimitOrder; nil entry = success
	marketErr error

	statusHook func() // invoked on every OrderStatus call

	placedLimit  []placedOrder
	placedMarket []placedOrder
	cancelled    []string
	calls        []string
	nextID       int
}

func newFakeExchange() *fakeExchange {
	return &fakeExchange{
		balances: map[string]decimal.Decimal{"ZAR": dec("100000")},
		book: domain.OrderBook{
			Bids: []domain.BookLevel{{Price: dec("99900"), Quantity: dec("1")}},
			Asks: []domain.BookLevel{{Price: dec("100000"), Quantity: dec("1")}},
		},
		statuses: make(map[string]domain.OrderState),
		fills:    make(map[string][]domain.Fill),
	}
}

func (f *fakeExchange) record(call string) {
	f.calls = append(f.calls, call)
}

func (f *fakeExchange) Balances(ctx context.Context) (map[string]decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("balances")
	return f.balances, f.balancesErr
}

func (f *fakeExchange) OrderBook(ctx context.Context, pair string) (domain.OrderBook, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("orderbook")
	return f.book, f.bookErr
}

func (f *fakeExchange) PlaceLimitOrder(ctx context.Context, pair string, side domain.OrderSide, quantity, price decimal.Decimal, postOnly bool) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("place_limit")
	if len(f.limitErrs) > 0 {
		err := f.limitErrs[0]
		f.limitErrs = f.limitErrs[1:]
		if err != nil {
			return "", err
		}
	}
	f.nextID++
	id := fmt.Sprintf("order-%d", f.nextID)
	f.placedLimit = append(f.placedLimit, placedOrder{pair, side, quantity, price, postOnly})
	return id, nil
}

func (f *fakeExchange) PlaceMarketOrder(ctx context.Context, pair string, side domain.OrderSide, quantity decimal.Decimal) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("place_market")
	if f.marketErr != nil {
		return "", f.marketErr
	}
	f.nextID++
	f.placedMarket = append(f.placedMarket, placedOrder{pair: pair, side: side, quantity: quantity})
	return fmt.Sprintf("order-%d", f.nextID), nil
}

func (f *fakeExchange) CancelOrder(ctx context.Context, pair, orderID string) error {
	// The real client builds its HTTP request from ctx, so a dead context
	// means the cancel never reaches the exchange.
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("cancel")
	f.cancelled = append(f.cancelled, orderID)
	return nil
}

func (f *fakeExchange) OrderStatus(ctx context.Context, pair, orderID string) (domain.OrderState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("order_status")
	if f.statusHook != nil {
		f.statusHook()
	}
	if state, ok := f.statuses[orderID]; ok {
		return state, nil
	}
	return domain.OrderState{ID: orderID, Status: domain.OrderStatusPending}, nil
}

func (f *fakeExchange) OpenOrders(ctx context.Context) ([]domain.OpenOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("open_orders")
	return f.openOrders, f.openOrdersErr
}

func (f *fakeExchange) OrderFills(ctx context.Context, pair, orderID string) ([]domain.Fill, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("order_fills")
	return f.fills[orderID], nil
}

func (f *fakeExchange) marketSells() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.placedMarket)
}

func testConfig() Config {
	return Config{
		QuoteCurrency:    "ZAR",
		TradeAmount:      dec("1000"),
		TakeProfitPct:    dec("1.5"),
		StopLossPct:      dec("2.0"),
		FeePct:           dec("0.1"),
		BalanceMarginPct: dec("1"),
		MaxDailyTrades:   5,
		FillWaitTimeout:  40 * time.Millisecond,
		PositionTimeout:  24 * time.Hour,
		ExitOrderTimeout: 12 * time.Hour,
		Pairs: map[string]PairSpec{
			"BTCZAR": {TickSize: dec("1"), QuantityPlaces: 6},
		},
	}
}

func newTestEngine(t *testing.T, fx *fakeExchange, cfg Config) *Engine {
	t.Helper()
	dir := t.TempDir()
	orders := file.NewOrderStore(filepath.Join(dir, "orders.json"), testLogger())
	positions := file.NewPositionStore(filepath.Join(dir, "positions.json"), testLogger())

	eng := New(cfg, fx, orders, positions, testLogger())
	eng.SetFillPollInterval(func(time.Duration) time.Duration { return time.Millisecond })
	return eng
}

func signal(pair string) domain.TradeSignal {
	return domain.TradeSignal{Pair: pair, RSI: 30, LastPrice: dec("100000"), At: time.Now()}
}

func TestTradeSetupHappyPath(t *testing.T) {
	fx := newFakeExchange()
	// Entry is the first order placed, so it gets id order-1.
	fx.statuses["order-1"] = domain.OrderState{
		Status:         domain.OrderStatusFilled,
		FilledQuantity: dec("0.010010"),
		AveragePrice:   dec("99900"),
	}
	eng := newTestEngine(t, fx, testConfig())

	pos, err := eng.ExecuteTradeSetup(context.Background(), signal("BTCZAR"))
	require.NoError(t, err)
	require.NotNil(t, pos)

	// below_ask entry: 100000 * 0.999 = 99900; qty = 1000/99900 truncated.
	require.Len(t, fx.placedLimit, 3)
	entry := fx.placedLimit[0]
	assert.Equal(t, domain.OrderSideBuy, entry.side)
	assert.True(t, entry.price.Equal(dec("99900")), "entry price = %s", entry.price)
	assert.True(t, entry.quantity.Equal(dec("0.010010")), "entry qty = %s", entry.quantity)

	sl := fx.placedLimit[1]
	tp := fx.placedLimit[2]
	assert.Equal(t, domain.OrderSideSell, sl.side)
	assert.True(t, sl.price.Equal(dec("97902")), "sl price = %s", sl.price)
	assert.Equal(t, domain.OrderSideSell, tp.side)
	assert.True(t, tp.price.Equal(dec("101398")), "tp price = %s", tp.price)

	assert.True(t, pos.EntryPrice.Equal(dec("99900")))
	assert.True(t, pos.TakeProfitPrice.Equal(dec("101398")))
	assert.True(t, pos.StopLossPrice.Equal(dec("97902")))
	assert.Equal(t, "order-1", pos.EntryOrderID)
	assert.NoError(t, pos.Validate())

	c := eng.Counters()
	assert.Equal(t, 1, c.Trades)
	assert.Len(t, eng.OpenPositions(), 1)
}

func TestTradeSetupTimeoutCancelsEntry(t *testing.T) {
	// Scenario: every status poll reports pending with nothing filled.
	fx := newFakeExchange()
	eng := newTestEngine(t, fx, testConfig())

	pos, err := eng.ExecuteTradeSetup(context.Background(), signal("BTCZAR"))
	assert.Nil(t, pos)
	require.ErrorIs(t, err, domain.ErrEntryNotFilled)

	assert.Contains(t, fx.cancelled, "order-1", "timed-out entry must be cancelled")
	assert.Len(t, fx.placedLimit, 1, "no protective orders after a dead entry")
	assert.Empty(t, eng.OpenPositions())
	assert.Equal(t, 0, eng.Counters().Trades)
}

func TestTradeSetupDailyLimitBlocksBeforeGatewayCalls(t *testing.T) {
	fx := newFakeExchange()
	cfg := testConfig()
	cfg.MaxDailyTrades = 2
	eng := newTestEngine(t, fx, cfg)

	eng.mu.Lock()
	eng.counters = DailyCounters{Date: time.Now().UTC().Format(time.DateOnly), Trades: 2}
	eng.mu.Unlock()

	pos, err := eng.ExecuteTradeSetup(context.Background(), signal("BTCZAR"))
	assert.Nil(t, pos)
	require.ErrorIs(t, err, domain.ErrDailyLimitReached)
	assert.Empty(t, fx.calls, "no gateway call may happen once the daily limit is hit")
}

func TestTradeSetupInsufficientBalance(t *testing.T) {
	fx := newFakeExchange()
	fx.balances = map[string]decimal.Decimal{"ZAR": dec("1000")} // required is 1000 * 1.011
	eng := newTestEngine(t, fx, testConfig())

	_, err := eng.ExecuteTradeSetup(context.Background(), signal("BTCZAR"))
	require.ErrorIs(t, err, domain.ErrInsufficientBalance)
	assert.Empty(t, fx.placedLimit)
}

func TestTradeSetupNoMarketData(t *testing.T) {
	fx := newFakeExchange()
	fx.book = domain.OrderBook{}
	eng := newTestEngine(t, fx, testConfig())

	_, err := eng.ExecuteTradeSetup(context.Background(), signal("BTCZAR"))
	require.ErrorIs(t, err, domain.ErrNoMarketData)
}

func TestProtectionFailureTriggersLiquidation(t *testing.T) {
	fx := newFakeExchange()
	fx.statuses["order-1"] = domain.OrderState{
		Status:         domain.OrderStatusFilled,
		FilledQuantity: dec("0.01"),
		AveragePrice:   dec("99900"),
	}
	fx.limitErrs = []error{nil, errors.New("exchange rejected order")} // entry ok, stop loss fails
	eng := newTestEngine(t, fx, testConfig())

	pos, err := eng.ExecuteTradeSetup(context.Background(), signal("BTCZAR"))
	assert.Nil(t, pos)
	require.Error(t, err)

	require.Equal(t, 1, fx.marketSells(), "filled quantity must be liquidated")
	sell := fx.placedMarket[0]
	assert.Equal(t, domain.OrderSideSell, sell.side)
	assert.True(t, sell.quantity.Equal(dec("0.01")))

	c := eng.Counters()
	assert.Equal(t, 1, c.Trades, "failed trade still counts")
	assert.Equal(t, 1, c.Losses)
	assert.Empty(t, eng.OpenPositions())
}

func TestProtectionFailureFallsBackToBestBidLimit(t *testing.T) {
	fx := newFakeExchange()
	fx.statuses["order-1"] = domain.OrderState{
		Status:         domain.OrderStatusFilled,
		FilledQuantity: dec("0.01"),
		AveragePrice:   dec("99900"),
	}
	// Entry and stop loss succeed, take profit fails, market sell fails.
	fx.limitErrs = []error{nil, nil, errors.New("rejected")}
	fx.marketErr = errors.New("market orders disabled")
	eng := newTestEngine(t, fx, testConfig())

	_, err := eng.ExecuteTradeSetup(context.Background(), signal("BTCZAR"))
	require.Error(t, err)

	// Stop loss (order-2) was cancelled before liquidation.
	assert.Contains(t, fx.cancelled, "order-2")

	// The final limit order is the aggressive best-bid sell.
	last := fx.placedLimit[len(fx.placedLimit)-1]
	assert.Equal(t, domain.OrderSideSell, last.side)
	assert.True(t, last.price.Equal(dec("99900")), "fallback must sell at best bid, got %s", last.price)
	assert.True(t, last.quantity.Equal(dec("0.01")))
}

func TestPartialFillAtTimeoutIsProtected(t *testing.T) {
	fx := newFakeExchange()
	fx.statuses["order-1"] = domain.OrderState{
		Status:         domain.OrderStatusPartiallyFilled,
		FilledQuantity: dec("0.004"),
		AveragePrice:   dec("99900"),
	}
	eng := newTestEngine(t, fx, testConfig())

	pos, err := eng.ExecuteTradeSetup(context.Background(), signal("BTCZAR"))
	require.NoError(t, err)
	require.NotNil(t, pos)

	assert.Contains(t, fx.cancelled, "order-1", "unfilled remainder must be cancelled")
	assert.True(t, pos.Quantity.Equal(dec("0.004")), "position qty = %s", pos.Quantity)
	// Protective orders sized to the filled quantity, not the submitted one.
	for _, o := range fx.placedLimit[1:] {
		assert.True(t, o.quantity.Equal(dec("0.004")))
	}

	// The ledger reflects the partial execution, not a full fill.
	recs, err := eng.orders.List(context.Background())
	require.NoError(t, err)
	var entryStatus domain.RecordStatus
	for _, r := range recs {
		if r.ID == "order-1" {
			entryStatus = r.Status
		}
	}
	assert.Equal(t, domain.RecordStatusPartiallyFilled, entryStatus)
}

func TestShutdownDuringFillWaitStillCancelsEntry(t *testing.T) {
	fx := newFakeExchange()
	eng := newTestEngine(t, fx, testConfig())

	// Termination arrives while the entry is still resting on the book.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	fx.statusHook = cancel

	pos, err := eng.ExecuteTradeSetup(ctx, signal("BTCZAR"))
	assert.Nil(t, pos)
	require.ErrorIs(t, err, context.Canceled)

	// The cancel must reach the exchange even though the caller's context
	// is gone, or the buy could fill while the process is down.
	assert.Equal(t, []string{"order-1"}, fx.cancelled)
	assert.Empty(t, eng.OpenPositions())

	recs, lerr := eng.orders.List(context.Background())
	require.NoError(t, lerr)
	require.Len(t, recs, 1)
	assert.Equal(t, domain.RecordStatusCancelled, recs[0].Status)
}

func TestSingleExitModePlacesOnlyStopLoss(t *testing.T) {
	fx := newFakeExchange()
	fx.statuses["order-1"] = domain.OrderState{
		Status:         domain.OrderStatusFilled,
		FilledQuantity: dec("0.01"),
		AveragePrice:   dec("99900"),
	}
	cfg := testConfig()
	cfg.SingleExitOrder = true
	eng := newTestEngine(t, fx, cfg)

	pos, err := eng.ExecuteTradeSetup(context.Background(), signal("BTCZAR"))
	require.NoError(t, err)

	require.Len(t, fx.placedLimit, 2, "entry + stop loss only")
	assert.Empty(t, pos.TakeProfitOrderID)
	assert.NotEmpty(t, pos.StopLossOrderID)
	assert.False(t, pos.TakeProfitPrice.IsZero(), "take profit level still tracked for manual exit")
}

func TestDailyCountersResetAtUTCDateRollover(t *testing.T) {
	fx := newFakeExchange()
	eng := newTestEngine(t, fx, testConfig())

	current := time.Date(2026, 8, 25, 23, 59, 0, 0, time.UTC)
	eng.SetClock(func() time.Time { return current })

	eng.mu.Lock()
	c := eng.countersLocked()
	c.Trades = 3
	c.Wins = 2
	eng.mu.Unlock()

	current = current.Add(2 * time.Minute) // crosses midnight UTC

	got := eng.Counters()
	assert.Equal(t, "2026-08-26", got.Date)
	assert.Equal(t, 0, got.Trades)
	assert.Equal(t, 0, got.Wins)
	assert.True(t, got.PnL.IsZero())
}
