// Command valrbot runs the VALR scalp-trading bot.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"valrbot/internal/app"
	"valrbot/internal/config"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.toml", "path to the TOML configuration file")
	flag.Parse()

	logger := newLogger("info")

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("config load failed",
			slog.String("path", *configPath),
			slog.String("error", err.Error()),
		)
		return 1
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("config invalid", slog.String("error", err.Error()))
		return 1
	}

	// Rebuild at the configured level once the config is trusted.
	logger = newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	logger.Info("valrbot starting",
		slog.String("mode", cfg.Mode),
		slog.String("config", *configPath),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application := app.New(cfg, logger)
	defer application.Close()

	// context.Canceled is the normal outcome of SIGINT/SIGTERM.
	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("run failed", slog.String("error", err.Error()))
		return 1
	}

	logger.Info("valrbot stopped")
	return 0
}

func newLogger(level string) *slog.Logger {
	var l slog.Level
	switch level {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: l}))
}
