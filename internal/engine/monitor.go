package engine

import (
	"context"
	"log/slog"

	"github.com/shopspring/decimal"

	"valrbot/internal/domain"
)

// MonitorPositions runs one monitoring pass over every open position. Per
// position the checks run in a fixed order: hard timeouts, open-order
// existence, dual-status fetch, then the normal single-fill case. Errors on
// one position never stop the pass for the others.
func (e *Engine) MonitorPositions(ctx context.Context) {
	for _, pos := range e.OpenPositions() {
		if ctx.Err() != nil {
			return
		}
		e.checkPosition(ctx, pos)
	}
}

func (e *Engine) checkPosition(ctx context.Context, pos domain.Position) {
	log := e.logger.With(
		slog.String("position_id", pos.ID),
		slog.String("pair", pos.Pair),
	)
	now := e.now()

	// 1. Hard timeouts.
	if e.cfg.PositionTimeout > 0 && now.After(pos.EntryFilledAt.Add(e.cfg.PositionTimeout)) {
		log.Warn("position exceeded max age, force closing")
		e.forceClose(ctx, pos, ReasonPositionTimeout)
		return
	}
	if e.cfg.ExitOrderTimeout > 0 && now.After(pos.EntryFilledAt.Add(e.cfg.ExitOrderTimeout)) {
		log.Warn("exit orders unfilled past deadline, force closing")
		e.forceClose(ctx, pos, ReasonExitTimeout)
		return
	}

	// Manual take-profit check for single-exit positions.
	if pos.TakeProfitOrderID == "" {
		if e.checkManualTakeProfit(ctx, pos, log) {
			return
		}
	}

	// 2. Existence check against the exchange's open orders.
	openOrders, err := e.exchange.OpenOrders(ctx)
	if err != nil {
		log.Warn("open orders fetch failed, skipping cycle", slog.String("error", err.Error()))
		return
	}
	onBook := make(map[string]bool, len(openOrders))
	for _, o := range openOrders {
		onBook[o.ID] = true
	}

	if pos.TakeProfitOrderID == "" {
		e.checkSingleExit(ctx, pos, onBook[pos.StopLossOrderID], log)
		return
	}

	tpOpen := onBook[pos.TakeProfitOrderID]
	slOpen := onBook[pos.StopLossOrderID]

	switch {
	case !tpOpen && !slOpen:
		// The position changed state out-of-band. Residual quantity is
		// unknown, so sell rather than assume zero.
		log.Warn("both exit orders missing from book, force closing")
		e.forceClose(ctx, pos, ReasonOrdersMissing)
		return

	case !tpOpen:
		e.closePosition(ctx, pos, pos.StopLossOrderID, pos.TakeProfitPrice, ReasonTakeProfit)
		return

	case !slOpen:
		e.closePosition(ctx, pos, pos.TakeProfitOrderID, pos.StopLossPrice, ReasonStopLoss)
		return
	}

	// 3. Both ids still on the book: fetch both statuses before acting on
	// either, so two fills inside one poll window cannot be attributed
	// twice.
	tpState, tpErr := e.exchange.OrderStatus(ctx, pos.Pair, pos.TakeProfitOrderID)
	slState, slErr := e.exchange.OrderStatus(ctx, pos.Pair, pos.StopLossOrderID)
	if tpErr != nil || slErr != nil {
		log.Warn("exit order status fetch failed, skipping cycle",
			slog.Any("tp_error", tpErr),
			slog.Any("sl_error", slErr),
		)
		return
	}

	tpFilled := tpState.Status == domain.OrderStatusFilled
	slFilled := slState.Status == domain.OrderStatusFilled

	switch {
	case tpFilled && slFilled:
		log.Error("both exit orders report filled, force closing without PnL attribution")
		e.forceClose(ctx, pos, ReasonBothFilled)

	// 4. Normal case: exactly one filled.
	case tpFilled:
		exit := tpState.AveragePrice
		if exit.Sign() <= 0 {
			exit = pos.TakeProfitPrice
		}
		e.closePosition(ctx, pos, pos.StopLossOrderID, exit, ReasonTakeProfit)

	case slFilled:
		exit := slState.AveragePrice
		if exit.Sign() <= 0 {
			exit = pos.StopLossPrice
		}
		e.closePosition(ctx, pos, pos.TakeProfitOrderID, exit, ReasonStopLoss)
	}
}

// checkManualTakeProfit sells at market when the best bid reaches the
// take-profit level of a position with no resting take-profit order.
// Reports whether the position was closed.
func (e *Engine) checkManualTakeProfit(ctx context.Context, pos domain.Position, log *slog.Logger) bool {
	book, err := e.exchange.OrderBook(ctx, pos.Pair)
	if err != nil {
		log.Warn("orderbook fetch for manual take profit failed", slog.String("error", err.Error()))
		return false
	}
	bid, ok := book.BestBid()
	if !ok || bid.Price.LessThan(pos.TakeProfitPrice) {
		return false
	}

	log.Info("take profit level reached, selling at market",
		slog.String("best_bid", bid.Price.String()),
		slog.String("take_profit", pos.TakeProfitPrice.String()),
	)
	if _, err := e.exchange.PlaceMarketOrder(ctx, pos.Pair, domain.OrderSideSell, pos.Quantity); err != nil {
		log.Warn("manual take profit sell failed", slog.String("error", err.Error()))
		return false
	}
	e.closePosition(ctx, pos, pos.StopLossOrderID, bid.Price, ReasonManualTakeProfit)
	return true
}

// checkSingleExit resolves the stop-loss-only variant of the existence
// check.
func (e *Engine) checkSingleExit(ctx context.Context, pos domain.Position, slOpen bool, log *slog.Logger) {
	if slOpen {
		return
	}
	state, err := e.exchange.OrderStatus(ctx, pos.Pair, pos.StopLossOrderID)
	if err != nil {
		log.Warn("stop loss status fetch failed, skipping cycle", slog.String("error", err.Error()))
		return
	}
	if state.Status == domain.OrderStatusFilled {
		exit := state.AveragePrice
		if exit.Sign() <= 0 {
			exit = pos.StopLossPrice
		}
		e.closePosition(ctx, pos, "", exit, ReasonStopLoss)
		return
	}
	log.Warn("stop loss missing from book without fill, force closing")
	e.forceClose(ctx, pos, ReasonOrdersMissing)
}

// closePosition finalizes a normal exit: cancels the surviving protective
// order, books PnL and win/loss counters, removes the position, and records
// the trade. Closing a position that is no longer in the active map is a
// no-op.
func (e *Engine) closePosition(ctx context.Context, pos domain.Position, cancelOrderID string, exitPrice decimal.Decimal, reason string) {
	if !e.removeFromActive(pos.ID) {
		return
	}

	if cancelOrderID != "" {
		if err := e.exchange.CancelOrder(ctx, pos.Pair, cancelOrderID); err != nil {
			e.logger.Warn("cancel surviving exit order failed",
				slog.String("order_id", cancelOrderID),
				slog.String("error", err.Error()),
			)
		}
	}

	pnl := domain.PnL(pos.EntryPrice, exitPrice, pos.Quantity)

	e.mu.Lock()
	c := e.countersLocked()
	if pnl.Sign() > 0 {
		c.Wins++
	} else {
		c.Losses++
	}
	c.PnL = c.PnL.Add(pnl)
	e.mu.Unlock()

	e.finishClose(ctx, pos, exitPrice, pnl, reason)
}

// forceClose is the shared path for every anomalous exit: cancel whatever
// protective orders remain, sell the full quantity, and only then drop the
// position record. No win/loss attribution happens here. Force-closing a
// position that is already gone is a no-op.
func (e *Engine) forceClose(ctx context.Context, pos domain.Position, reason string) {
	if !e.removeFromActive(pos.ID) {
		return
	}

	if err := e.liquidate(ctx, pos.Pair, pos.Quantity, []string{pos.TakeProfitOrderID, pos.StopLossOrderID}); err != nil {
		e.logger.Error("force close liquidation failed",
			slog.String("position_id", pos.ID),
			slog.String("pair", pos.Pair),
			slog.String("reason", reason),
			slog.String("error", err.Error()),
		)
		e.notifyLiquidation(ctx, pos.Pair, pos.Quantity, false, err)
	}

	// Exit price is unknown on a forced sell; journal the close with zero
	// PnL rather than guessing.
	e.finishClose(ctx, pos, decimal.Zero, decimal.Zero, reason)
}

// removeFromActive reports whether the position was still active and
// removes it. This is the idempotence gate for all close paths.
func (e *Engine) removeFromActive(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.open[id]; !ok {
		return false
	}
	delete(e.open, id)
	return true
}

func (e *Engine) finishClose(ctx context.Context, pos domain.Position, exitPrice, pnl decimal.Decimal, reason string) {
	if err := e.positions.Delete(ctx, pos.ID); err != nil {
		e.logger.Warn("delete position record failed",
			slog.String("position_id", pos.ID),
			slog.String("error", err.Error()),
		)
		// Mark the record closed so a restart will not resurrect it.
		pos.Status = domain.PositionStatusClosed
		if err := e.positions.Save(ctx, pos); err != nil {
			e.logger.Warn("mark position record closed failed",
				slog.String("position_id", pos.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	exitIDs := []string{pos.TakeProfitOrderID, pos.StopLossOrderID}
	if !pos.Recovered() {
		exitIDs = append(exitIDs, pos.EntryOrderID)
	}
	for _, id := range exitIDs {
		if id == "" {
			continue
		}
		if err := e.orders.Delete(ctx, id); err != nil {
			e.logger.Warn("delete order record failed",
				slog.String("order_id", id),
				slog.String("error", err.Error()),
			)
		}
	}

	closedAt := e.now().UTC()
	e.logger.Info("position closed",
		slog.String("position_id", pos.ID),
		slog.String("pair", pos.Pair),
		slog.String("reason", reason),
		slog.String("exit_price", exitPrice.String()),
		slog.String("pnl", pnl.String()),
		slog.Bool("recovered_entry", pos.Recovered()),
	)

	trade := domain.ClosedTrade{
		PositionID: pos.ID,
		Pair:       pos.Pair,
		Quantity:   pos.Quantity,
		EntryPrice: pos.EntryPrice,
		ExitPrice:  exitPrice,
		PnL:        pnl,
		Reason:     reason,
		OpenedAt:   pos.EntryFilledAt,
		ClosedAt:   closedAt,
	}
	if e.journal != nil {
		if err := e.journal.Record(ctx, trade); err != nil {
			e.logger.Warn("journal closed trade failed", slog.String("error", err.Error()))
		}
	}
	e.notifyTradeClosed(ctx, trade)
}
