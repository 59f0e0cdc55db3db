package app

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"valrbot/internal/config"
	"valrbot/internal/domain"
	"valrbot/internal/engine"
	"valrbot/internal/notify"
	"valrbot/internal/platform/valr"
	"valrbot/internal/scanner"
	"valrbot/internal/store/file"
	"valrbot/internal/store/postgres"
)

// Dependencies bundles everything the application modes need to operate. It
// is constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	Exchange  *valr.Client
	Orders    domain.OrderStore
	Positions domain.PositionStore
	Journal   domain.TradeJournal // nil when postgres is disabled
	Notifier  *notify.Notifier
	Engine    *engine.Engine
	Scanner   *scanner.Scanner
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that
// should be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- Exchange gateway ---
	deps.Exchange = valr.New(valr.Config{
		BaseURL:           cfg.VALR.BaseURL,
		APIVersion:        cfg.VALR.ApiVersion,
		Key:               cfg.VALR.ApiKey,
		Secret:            cfg.VALR.ApiSecret,
		Timeout:           cfg.VALR.Timeout.Duration,
		MaxRetries:        cfg.VALR.MaxRetries,
		BackoffBase:       cfg.VALR.BackoffBase.Duration,
		RequestsPerMinute: cfg.VALR.RequestsPerMinute,
	}, logger)

	// --- File stores ---
	deps.Orders = file.NewOrderStore(filepath.Join(cfg.Storage.DataDir, "orders.json"), logger)
	deps.Positions = file.NewPositionStore(filepath.Join(cfg.Storage.DataDir, "positions.json"), logger)

	// --- Optional trade journal ---
	if cfg.Postgres.Enabled {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}
		deps.Journal = postgres.NewJournal(pgClient.Pool())
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	// --- Engine ---
	pricer, err := engine.NewEntryPricer(cfg.Trading.EntryPricing)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: %w", err)
	}
	deps.Engine = engine.New(engineConfig(cfg), deps.Exchange, deps.Orders, deps.Positions, logger)
	deps.Engine.SetEntryPricer(pricer)
	deps.Engine.SetNotifier(deps.Notifier)
	if deps.Journal != nil {
		deps.Engine.SetJournal(deps.Journal)
	}

	// --- Scanner ---
	deps.Scanner = scanner.New(scanner.Config{
		Pairs:        cfg.Scanner.Pairs,
		RSIPeriod:    cfg.Scanner.RSIPeriod,
		RSIThreshold: cfg.Scanner.RSIThreshold,
		HistorySize:  cfg.Scanner.HistorySize,
		Cooldown:     cfg.Scanner.Cooldown.Duration,
	}, deps.Exchange, logger)

	return deps, cleanup, nil
}

// engineConfig maps the TOML trading section onto the engine's config.
func engineConfig(cfg *config.Config) engine.Config {
	pairs := make(map[string]engine.PairSpec, len(cfg.Trading.Pairs))
	for pair, rule := range cfg.Trading.Pairs {
		pairs[pair] = engine.PairSpec{
			TickSize:       rule.TickSize,
			QuantityPlaces: rule.QuantityPlaces,
		}
	}
	return engine.Config{
		QuoteCurrency:    cfg.Trading.QuoteCurrency,
		TradeAmount:      cfg.Trading.TradeAmount,
		TakeProfitPct:    cfg.Trading.TakeProfitPct,
		StopLossPct:      cfg.Trading.StopLossPct,
		FeePct:           cfg.Trading.FeePct,
		BalanceMarginPct: cfg.Trading.BalanceMarginPct,
		MaxDailyTrades:   cfg.Trading.MaxDailyTrades,
		FillWaitTimeout:  cfg.Trading.FillWaitTimeout.Duration,
		PositionTimeout:  cfg.Trading.PositionTimeout.Duration,
		ExitOrderTimeout: cfg.Trading.ExitOrderTimeout.Duration,
		SingleExitOrder:  cfg.Trading.SingleExitOrder,
		PostOnlyEntry:    cfg.Trading.PostOnlyEntry,
		Pairs:            pairs,
	}
}
