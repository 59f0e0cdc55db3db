package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"valrbot/internal/domain"
)

// TradeMode runs the full loop: startup recovery, the scan-and-trade cycle,
// position monitoring, and order-record pruning.
func (a *App) TradeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting trade mode")

	if err := a.startup(ctx, deps); err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)

	if a.cfg.Scanner.Enabled {
		g.Go(func() error {
			return a.scanLoop(ctx, deps, true)
		})
	} else {
		a.logger.InfoContext(ctx, "scanner disabled, only monitoring existing positions")
	}
	g.Go(func() error {
		return a.monitorLoop(ctx, deps)
	})
	g.Go(func() error {
		return a.pruneLoop(ctx, deps)
	})

	return g.Wait()
}

// MonitorMode only watches existing positions; no new trades are opened.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting monitor mode")

	if err := a.startup(ctx, deps); err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.monitorLoop(ctx, deps)
	})
	return g.Wait()
}

// ScanMode runs the scanner and logs signals without trading. Useful for
// tuning the RSI parameters against live data.
func (a *App) ScanMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting scan mode (signals are logged, not traded)")
	return a.scanLoop(ctx, deps, false)
}

// startup verifies exchange connectivity and recovers position state.
func (a *App) startup(ctx context.Context, deps *Dependencies) error {
	serverTime, err := deps.Exchange.ServerTime(ctx)
	if err != nil {
		return fmt.Errorf("app: exchange connectivity check: %w", err)
	}
	skew := time.Since(serverTime)
	if skew < 0 {
		skew = -skew
	}
	a.logger.InfoContext(ctx, "exchange reachable",
		slog.Time("server_time", serverTime),
		slog.Duration("clock_skew", skew),
	)

	recovered, err := deps.Engine.RecoverPositions(ctx)
	if err != nil {
		return fmt.Errorf("app: recover positions: %w", err)
	}
	if len(recovered) > 0 {
		_ = deps.Notifier.Startup(ctx, len(recovered))
	}

	if deps.Journal != nil {
		a.logJournalSummary(ctx, deps)
	}
	return nil
}

// logJournalSummary gives the operator a performance snapshot at startup:
// realized PnL for the current UTC day and the last recorded close per
// configured pair.
func (a *App) logJournalSummary(ctx context.Context, deps *Dependencies) {
	midnight := time.Now().UTC().Truncate(24 * time.Hour)
	pnl, err := deps.Journal.RealizedPnL(ctx, midnight)
	if err != nil {
		a.logger.WarnContext(ctx, "journal pnl query failed", slog.String("error", err.Error()))
	} else {
		a.logger.InfoContext(ctx, "realized pnl today", slog.String("pnl", pnl.String()))
	}

	for pair := range a.cfg.Trading.Pairs {
		trades, err := deps.Journal.ListByPair(ctx, pair, 1)
		if err != nil {
			a.logger.WarnContext(ctx, "journal trade query failed",
				slog.String("pair", pair),
				slog.String("error", err.Error()),
			)
			continue
		}
		if len(trades) == 0 {
			continue
		}
		last := trades[0]
		a.logger.InfoContext(ctx, "last closed trade",
			slog.String("pair", pair),
			slog.String("pnl", last.PnL.String()),
			slog.String("reason", last.Reason),
			slog.Time("closed_at", last.ClosedAt),
		)
	}
}

// scanLoop periodically scans for oversold pairs. When execute is true, each
// signal is handed to the engine.
func (a *App) scanLoop(ctx context.Context, deps *Dependencies, execute bool) error {
	ticker := time.NewTicker(a.cfg.Scanner.Interval.Duration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		signals, err := deps.Scanner.Scan(ctx)
		if err != nil {
			return err
		}
		for _, sig := range signals {
			if !execute {
				a.logger.InfoContext(ctx, "signal (scan only)",
					slog.String("pair", sig.Pair),
					slog.Float64("rsi", sig.RSI),
					slog.String("last_price", sig.LastPrice.String()),
				)
				continue
			}
			a.executeSignal(ctx, deps, sig)
		}
	}
}

// executeSignal runs one trade setup and classifies the outcome. Sentinel
// "no trade" errors are normal operation; anything else is a warning.
func (a *App) executeSignal(ctx context.Context, deps *Dependencies, sig domain.TradeSignal) {
	_, err := deps.Engine.ExecuteTradeSetup(ctx, sig)
	switch {
	case err == nil:

	case errors.Is(err, domain.ErrDailyLimitReached),
		errors.Is(err, domain.ErrInsufficientBalance),
		errors.Is(err, domain.ErrEntryNotFilled),
		errors.Is(err, domain.ErrNoMarketData):
		a.logger.InfoContext(ctx, "signal skipped",
			slog.String("pair", sig.Pair),
			slog.String("reason", err.Error()),
		)

	case errors.Is(err, context.Canceled):

	default:
		a.logger.WarnContext(ctx, "trade setup failed",
			slog.String("pair", sig.Pair),
			slog.String("error", err.Error()),
		)
	}
}

// monitorLoop drives the engine's position monitor on a fixed interval.
func (a *App) monitorLoop(ctx context.Context, deps *Dependencies) error {
	ticker := time.NewTicker(a.cfg.Trading.MonitorInterval.Duration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			deps.Engine.MonitorPositions(ctx)
		}
	}
}

// pruneLoop removes stale order records once a day.
func (a *App) pruneLoop(ctx context.Context, deps *Dependencies) error {
	retention := a.cfg.Storage.OrderRetention.Duration
	if retention <= 0 {
		<-ctx.Done()
		return ctx.Err()
	}

	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			removed, err := deps.Orders.RemoveOlderThan(ctx, time.Now().Add(-retention))
			if err != nil {
				a.logger.WarnContext(ctx, "order record pruning failed",
					slog.String("error", err.Error()),
				)
				continue
			}
			if removed > 0 {
				a.logger.InfoContext(ctx, "pruned stale order records",
					slog.Int("removed", removed),
				)
			}
		}
	}
}
