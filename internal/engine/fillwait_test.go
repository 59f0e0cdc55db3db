package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"valrbot/internal/domain"
)

func TestWaitForFillShutdownBeforeFirstPoll(t *testing.T) {
	fx := newFakeExchange()
	eng := newTestEngine(t, fx, testConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := eng.WaitForFill(ctx, "BTCZAR", "order-1", dec("0.01"), time.Minute)
	assert.Equal(t, domain.FillStateShutdown, out.State)
	assert.Empty(t, fx.calls, "a cancelled context must short-circuit before any status poll")
}

func TestWaitForFillZeroQuantityFallsBackToFills(t *testing.T) {
	fx := newFakeExchange()
	fx.statuses["order-1"] = domain.OrderState{Status: domain.OrderStatusFilled}
	fx.fills["order-1"] = []domain.Fill{
		{Price: dec("99900"), Quantity: dec("0.003")},
		{Price: dec("99901"), Quantity: dec("0.002")},
	}
	eng := newTestEngine(t, fx, testConfig())

	out := eng.WaitForFill(context.Background(), "BTCZAR", "order-1", dec("0.01"), time.Minute)
	assert.Equal(t, domain.FillStateFilled, out.State)
	assert.True(t, out.FilledQuantity.Equal(dec("0.005")), "filled qty = %s", out.FilledQuantity)
}

func TestWaitForFillZeroQuantityFallsBackToSubmitted(t *testing.T) {
	fx := newFakeExchange()
	fx.statuses["order-1"] = domain.OrderState{Status: domain.OrderStatusFilled}
	eng := newTestEngine(t, fx, testConfig())

	out := eng.WaitForFill(context.Background(), "BTCZAR", "order-1", dec("0.01"), time.Minute)
	assert.Equal(t, domain.FillStateFilled, out.State)
	assert.True(t, out.FilledQuantity.Equal(dec("0.01")), "a filled order never reports zero quantity")
}

func TestWaitForFillCancelledClean(t *testing.T) {
	fx := newFakeExchange()
	fx.statuses["order-1"] = domain.OrderState{Status: domain.OrderStatusCancelled}
	eng := newTestEngine(t, fx, testConfig())

	out := eng.WaitForFill(context.Background(), "BTCZAR", "order-1", dec("0.01"), time.Minute)
	assert.Equal(t, domain.FillStateCancelled, out.State)
}

func TestWaitForFillCancelledWithPartialExecution(t *testing.T) {
	fx := newFakeExchange()
	fx.statuses["order-1"] = domain.OrderState{
		Status:         domain.OrderStatusCancelled,
		FilledQuantity: dec("0.002"),
		AveragePrice:   dec("99900"),
	}
	eng := newTestEngine(t, fx, testConfig())

	out := eng.WaitForFill(context.Background(), "BTCZAR", "order-1", dec("0.01"), time.Minute)
	assert.Equal(t, domain.FillStatePartiallyFilled, out.State)
	assert.True(t, out.FilledQuantity.Equal(dec("0.002")))
}

func TestWaitForFillTimeoutWithNothingExecuted(t *testing.T) {
	fx := newFakeExchange()
	eng := newTestEngine(t, fx, testConfig())

	out := eng.WaitForFill(context.Background(), "BTCZAR", "order-1", dec("0.01"), 20*time.Millisecond)
	assert.Equal(t, domain.FillStateTimeout, out.State)
	assert.True(t, out.FilledQuantity.IsZero())
}

func TestWaitForFillSurvivesStatusErrors(t *testing.T) {
	// An unknown order id yields a default pending state; a short timeout
	// still produces TIMEOUT rather than an error.
	fx := newFakeExchange()
	eng := newTestEngine(t, fx, testConfig())

	out := eng.WaitForFill(context.Background(), "BTCZAR", "never-seen", dec("0.01"), 15*time.Millisecond)
	assert.Equal(t, domain.FillStateTimeout, out.State)
}
