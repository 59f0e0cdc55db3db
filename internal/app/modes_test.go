package app

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"valrbot/internal/config"
	"valrbot/internal/domain"
)

type stubJournal struct {
	pnl    decimal.Decimal
	trades map[string][]domain.ClosedTrade
}

func (j *stubJournal) Record(ctx context.Context, trade domain.ClosedTrade) error { return nil }

func (j *stubJournal) ListByPair(ctx context.Context, pair string, limit int) ([]domain.ClosedTrade, error) {
	return j.trades[pair], nil
}

func (j *stubJournal) RealizedPnL(ctx context.Context, since time.Time) (decimal.Decimal, error) {
	return j.pnl, nil
}

func TestStartupJournalSummary(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	cfg := config.Defaults()
	a := New(&cfg, logger)

	j := &stubJournal{
		pnl: decimal.RequireFromString("42.5"),
		trades: map[string][]domain.ClosedTrade{
			"BTCZAR": {{
				Pair:     "BTCZAR",
				PnL:      decimal.RequireFromString("-20"),
				Reason:   "stop_loss",
				ClosedAt: time.Now(),
			}},
		},
	}
	a.logJournalSummary(context.Background(), &Dependencies{Journal: j})

	out := buf.String()
	assert.Contains(t, out, "realized pnl today")
	assert.Contains(t, out, "42.5")
	assert.Contains(t, out, "last closed trade")
	assert.Contains(t, out, "stop_loss")
}

func TestStartupJournalSummarySkipsPairsWithoutHistory(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	cfg := config.Defaults()
	a := New(&cfg, logger)

	j := &stubJournal{pnl: decimal.Zero}
	a.logJournalSummary(context.Background(), &Dependencies{Journal: j})

	out := buf.String()
	assert.Contains(t, out, "realized pnl today")
	assert.NotContains(t, out, "last closed trade")
}
