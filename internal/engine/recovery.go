package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"valrbot/internal/domain"
)

// quantityMatchTolerance is the maximum quantity difference under which two
// sell orders are considered legs of the same position.
var quantityMatchTolerance = decimal.RequireFromString("0.00001")

// RecoverPositions rebuilds the engine's position state at startup. Stored
// positions win; only when the store is empty does recovery reconstruct
// positions from the exchange's open sell orders. Reconstruction is
// best-effort and never fabricates a position from a single unmatched
// order.
func (e *Engine) RecoverPositions(ctx context.Context) ([]domain.Position, error) {
	stored, err := e.positions.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("engine: load positions: %w", err)
	}
	open := stored[:0]
	for _, pos := range stored {
		// A record marked closed was journaled already; re-monitoring it
		// would sell quantity the bot no longer holds.
		if pos.Status == domain.PositionStatusClosed {
			e.logger.Warn("skipping closed position record left in store",
				slog.String("position_id", pos.ID),
				slog.String("pair", pos.Pair),
			)
			continue
		}
		open = append(open, pos)
	}
	if len(open) > 0 {
		e.mu.Lock()
		for _, pos := range open {
			e.open[pos.ID] = pos
		}
		e.mu.Unlock()
		e.logger.Info("positions loaded from store", slog.Int("count", len(open)))
		return open, nil
	}

	openOrders, err := e.exchange.OpenOrders(ctx)
	if err != nil {
		return nil, fmt.Errorf("engine: list open orders for recovery: %w", err)
	}

	sellsByPair := make(map[string][]domain.OpenOrder)
	for _, o := range openOrders {
		if o.Side == domain.OrderSideSell {
			sellsByPair[o.Pair] = append(sellsByPair[o.Pair], o)
		}
	}

	var recovered []domain.Position
	for pair, sells := range sellsByPair {
		for _, pos := range e.matchSellPairs(pair, sells) {
			e.mu.Lock()
			e.open[pos.ID] = pos
			e.mu.Unlock()
			if err := e.positions.Save(ctx, pos); err != nil {
				e.logger.Warn("persist recovered position failed",
					slog.String("position_id", pos.ID),
					slog.String("error", err.Error()),
				)
			}
			recovered = append(recovered, pos)
		}
	}

	e.logger.Info("startup recovery completed",
		slog.Int("open_orders", len(openOrders)),
		slog.Int("recovered_positions", len(recovered)),
	)
	return recovered, nil
}

// matchSellPairs pairs same-quantity sell orders on one pair: the higher
// priced leg is the take-profit, the lower the stop-loss. The entry price
// is inferred algebraically from the take-profit price and the configured
// take-profit percentage.
func (e *Engine) matchSellPairs(pair string, sells []domain.OpenOrder) []domain.Position {
	sort.Slice(sells, func(i, j int) bool {
		return sells[i].Price.GreaterThan(sells[j].Price)
	})

	used := make([]bool, len(sells))
	var positions []domain.Position

	for i := range sells {
		if used[i] {
			continue
		}
		for j := i + 1; j < len(sells); j++ {
			if used[j] {
				continue
			}
			if sells[i].Quantity.Sub(sells[j].Quantity).Abs().GreaterThan(quantityMatchTolerance) {
				continue
			}

			tp, sl := sells[i], sells[j] // sorted descending: i is the higher price
			entry := domain.EntryFromTakeProfit(tp.Price, e.cfg.TakeProfitPct)
			filledAt := tp.CreatedAt
			if filledAt.IsZero() {
				filledAt = e.now().UTC()
			}

			pos := domain.Position{
				ID:                uuid.New().String(),
				Pair:              pair,
				Quantity:          tp.Quantity,
				EntryPrice:        entry,
				EntryOrderID:      domain.EntryOrderIDRecovered,
				TakeProfitOrderID: tp.ID,
				StopLossOrderID:   sl.ID,
				TakeProfitPrice:   tp.Price,
				StopLossPrice:     sl.Price,
				Status:            domain.PositionStatusOpen,
				CreatedAt:         filledAt,
				EntryFilledAt:     filledAt,
			}
			used[i], used[j] = true, true
			positions = append(positions, pos)

			e.logger.Info("position reconstructed from open orders",
				slog.String("position_id", pos.ID),
				slog.String("pair", pair),
				slog.String("quantity", pos.Quantity.String()),
				slog.String("take_profit", tp.Price.String()),
				slog.String("stop_loss", sl.Price.String()),
				slog.String("inferred_entry", entry.String()),
			)
			break
		}
	}

	for i, o := range sells {
		if !used[i] {
			e.logger.Warn("unmatched sell order left alone during recovery",
				slog.String("pair", pair),
				slog.String("order_id", o.ID),
				slog.String("price", o.Price.String()),
				slog.String("quantity", o.Quantity.String()),
			)
		}
	}
	return positions
}
