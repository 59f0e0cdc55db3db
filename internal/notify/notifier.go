// Package notify pushes trade lifecycle alerts to operator channels
// (Telegram, Discord). Every alert carries an event class so operators can
// configure which ones reach them; an operator who only wants to hear about
// emergencies filters everything else out.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"valrbot/internal/domain"
)

// Event classifies an alert for filtering.
type Event string

const (
	EventTradeOpened Event = "trade_opened"
	EventTradeClosed Event = "trade_closed"
	EventLiquidation Event = "emergency_liquidation"
)

// Notifier formats trade lifecycle payloads into messages and fans them out
// to every configured channel.
type Notifier struct {
	senders []Sender
	allowed map[Event]bool
	logger  *slog.Logger
}

// NewNotifier creates a Notifier delivering to the given senders. Only
// alerts whose event appears in events are forwarded; an empty list allows
// everything.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[Event]bool, len(events))
	for _, e := range events {
		allowed[Event(strings.TrimSpace(e))] = true
	}
	return &Notifier{
		senders: senders,
		allowed: allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// TradeOpened announces a freshly protected position.
func (n *Notifier) TradeOpened(ctx context.Context, pos domain.Position) error {
	tp := pos.TakeProfitPrice.String()
	if pos.TakeProfitOrderID == "" {
		tp += " (manual)"
	}
	return n.send(ctx, EventTradeOpened, "Trade opened",
		fmt.Sprintf("%s %s @ %s\ntake profit %s / stop loss %s",
			pos.Pair, pos.Quantity, pos.EntryPrice, tp, pos.StopLossPrice))
}

// TradeClosed reports a completed round trip and its PnL.
func (n *Notifier) TradeClosed(ctx context.Context, trade domain.ClosedTrade) error {
	verdict := "profit"
	switch {
	case trade.PnL.Sign() < 0:
		verdict = "loss"
	case trade.PnL.IsZero():
		verdict = "flat"
	}
	return n.send(ctx, EventTradeClosed, "Trade closed",
		fmt.Sprintf("%s %s: entry %s, exit %s, %s %s (%s)",
			trade.Pair, trade.Quantity, trade.EntryPrice, trade.ExitPrice,
			verdict, trade.PnL, trade.Reason))
}

// Liquidation reports an emergency sell after a protection failure. When
// sold is false the bot could not exit and the operator has to intervene.
func (n *Notifier) Liquidation(ctx context.Context, pair string, quantity decimal.Decimal, sold bool, cause error) error {
	if sold {
		return n.send(ctx, EventLiquidation, "Emergency liquidation",
			fmt.Sprintf("%s %s sold after: %v", pair, quantity, cause))
	}
	return n.send(ctx, EventLiquidation, "MANUAL INTERVENTION REQUIRED",
		fmt.Sprintf("%s %s is unprotected and could not be sold: %v", pair, quantity, cause))
}

// Startup announces a restart and how many positions were recovered. It
// bypasses the event filter; a restart is always worth knowing about.
func (n *Notifier) Startup(ctx context.Context, recovered int) error {
	return n.dispatch(ctx, "Bot started",
		fmt.Sprintf("resumed with %d open position(s)", recovered))
}

func (n *Notifier) send(ctx context.Context, event Event, title, message string) error {
	if len(n.allowed) > 0 && !n.allowed[event] {
		n.logger.DebugContext(ctx, "event filtered out", slog.String("event", string(event)))
		return nil
	}
	return n.dispatch(ctx, title, message)
}

// dispatch fans one alert out to every sender. A failing channel never
// blocks the others; failures are collected into one combined error.
func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	var failed []string
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			failed = append(failed, fmt.Sprintf("%s: %v", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notification sent",
			slog.String("sender", s.Name()),
			slog.String("title", title),
		)
	}
	if len(failed) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(failed), strings.Join(failed, "; "))
	}
	return nil
}
