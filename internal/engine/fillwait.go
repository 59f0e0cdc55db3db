package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"valrbot/internal/domain"
)

// defaultPollInterval is the increasing fill-wait schedule: fast at first
// while a fill is likely, then backing off.
func defaultPollInterval(elapsed time.Duration) time.Duration {
	switch {
	case elapsed < 10*time.Second:
		return 500 * time.Millisecond
	case elapsed < 30*time.Second:
		return time.Second
	default:
		return 2 * time.Second
	}
}

// WaitForFill polls the order's status until it reaches a terminal state or
// the timeout expires. Context cancellation is checked before every poll
// and yields a SHUTDOWN outcome so termination never blocks here.
//
// A FILLED report with no extractable quantity falls back to summing the
// order's fills, then to the submitted quantity; the outcome of a filled
// order never carries zero quantity. A partial fill surviving to the
// timeout comes back as PARTIALLY_FILLED so the caller can protect what
// executed.
func (e *Engine) WaitForFill(ctx context.Context, pair, orderID string, submitted decimal.Decimal, timeout time.Duration) domain.FillOutcome {
	start := e.now()
	var last domain.OrderState

	for {
		select {
		case <-ctx.Done():
			return domain.FillOutcome{State: domain.FillStateShutdown}
		default:
		}

		elapsed := e.now().Sub(start)
		if elapsed >= timeout {
			if last.FilledQuantity.Sign() > 0 {
				return domain.FillOutcome{
					State:          domain.FillStatePartiallyFilled,
					FilledQuantity: last.FilledQuantity,
					AveragePrice:   last.AveragePrice,
				}
			}
			return domain.FillOutcome{State: domain.FillStateTimeout}
		}

		state, err := e.exchange.OrderStatus(ctx, pair, orderID)
		if err != nil {
			// Transient status failures just wait for the next poll.
			e.logger.Debug("fill wait status poll failed",
				slog.String("order_id", orderID),
				slog.String("error", err.Error()),
			)
		} else {
			last = state
			switch state.Status {
			case domain.OrderStatusFilled:
				qty := state.FilledQuantity
				if qty.Sign() <= 0 {
					qty = e.sumFills(ctx, pair, orderID)
				}
				if qty.Sign() <= 0 {
					qty = submitted
				}
				return domain.FillOutcome{
					State:          domain.FillStateFilled,
					FilledQuantity: qty,
					AveragePrice:   state.AveragePrice,
				}

			case domain.OrderStatusCancelled:
				if state.FilledQuantity.Sign() > 0 {
					return domain.FillOutcome{
						State:          domain.FillStatePartiallyFilled,
						FilledQuantity: state.FilledQuantity,
						AveragePrice:   state.AveragePrice,
					}
				}
				return domain.FillOutcome{State: domain.FillStateCancelled}
			}
		}

		timer := time.NewTimer(e.pollInterval(elapsed))
		select {
		case <-ctx.Done():
			timer.Stop()
			return domain.FillOutcome{State: domain.FillStateShutdown}
		case <-timer.C:
		}
	}
}

func (e *Engine) sumFills(ctx context.Context, pair, orderID string) decimal.Decimal {
	fills, err := e.exchange.OrderFills(ctx, pair, orderID)
	if err != nil {
		e.logger.Warn("sum fills failed",
			slog.String("order_id", orderID),
			slog.String("error", err.Error()),
		)
		return decimal.Zero
	}
	total := decimal.Zero
	for _, f := range fills {
		total = total.Add(f.Quantity)
	}
	return total
}
