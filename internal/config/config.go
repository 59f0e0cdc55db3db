// Package config defines the top-level configuration for the trading bot
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by VALRBOT_* environment
// variables.
type Config struct {
	VALR     VALRConfig     `toml:"valr"`
	Trading  TradingConfig  `toml:"trading"`
	Scanner  ScannerConfig  `toml:"scanner"`
	Storage  StorageConfig  `toml:"storage"`
	Postgres PostgresConfig `toml:"postgres"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// VALRConfig holds the exchange API endpoint and credentials.
type VALRConfig struct {
	ApiKey            string   `toml:"api_key"`
	ApiSecret         string   `toml:"api_secret"`
	BaseURL           string   `toml:"base_url"`
	ApiVersion        string   `toml:"api_version"`
	Timeout           duration `toml:"timeout"`
	MaxRetries        int      `toml:"max_retries"`
	BackoffBase       duration `toml:"backoff_base"`
	RequestsPerMinute int      `toml:"requests_per_minute"`
}

// TradingConfig holds the engine's trading parameters. Monetary and
// percentage values are decimal strings in the TOML file (e.g. "1.5") so no
// precision is lost in transit.
type TradingConfig struct {
	QuoteCurrency    string              `toml:"quote_currency"`
	TradeAmount      decimal.Decimal     `toml:"trade_amount"`
	TakeProfitPct    decimal.Decimal     `toml:"take_profit_pct"`
	StopLossPct      decimal.Decimal     `toml:"stop_loss_pct"`
	FeePct           decimal.Decimal     `toml:"fee_pct"`
	BalanceMarginPct decimal.Decimal     `toml:"balance_margin_pct"`
	MaxDailyTrades   int                 `toml:"max_daily_trades"`
	FillWaitTimeout  duration            `toml:"fill_wait_timeout"`
	PositionTimeout  duration            `toml:"position_timeout"`
	ExitOrderTimeout duration            `toml:"exit_order_timeout"`
	SingleExitOrder  bool                `toml:"single_exit_order"`
	PostOnlyEntry    bool                `toml:"post_only_entry"`
	EntryPricing     string              `toml:"entry_pricing"`
	MonitorInterval  duration            `toml:"monitor_interval"`
	Pairs            map[string]PairRule `toml:"pairs"`
}

// PairRule carries the exchange precision rules for one pair.
type PairRule struct {
	TickSize       decimal.Decimal `toml:"tick_size"`
	QuantityPlaces int32           `toml:"quantity_places"`
}

// ScannerConfig holds the RSI scanner parameters.
type ScannerConfig struct {
	Enabled      bool     `toml:"enabled"`
	Pairs        []string `toml:"pairs"`
	RSIPeriod    int      `toml:"rsi_period"`
	RSIThreshold float64  `toml:"rsi_threshold"`
	HistorySize  int      `toml:"history_size"`
	Cooldown     duration `toml:"cooldown"`
	Interval     duration `toml:"interval"`
}

// StorageConfig holds file-store parameters.
type StorageConfig struct {
	DataDir        string   `toml:"data_dir"`
	OrderRetention duration `toml:"order_retention"`
}

// PostgresConfig holds the optional trade-journal database parameters.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		VALR: VALRConfig{
			BaseURL:           "https://api.valr.com",
			ApiVersion:        "/v1",
			Timeout:           duration{30 * time.Second},
			MaxRetries:        3,
			BackoffBase:       duration{time.Second},
			RequestsPerMinute: 600,
		},
		Trading: TradingConfig{
			QuoteCurrency:    "ZAR",
			TradeAmount:      decimal.NewFromInt(1000),
			TakeProfitPct:    decimal.RequireFromString("1.5"),
			StopLossPct:      decimal.RequireFromString("2.0"),
			FeePct:           decimal.RequireFromString("0.1"),
			BalanceMarginPct: decimal.RequireFromString("1.0"),
			MaxDailyTrades:   5,
			FillWaitTimeout:  duration{time.Minute},
			PositionTimeout:  duration{24 * time.Hour},
			ExitOrderTimeout: duration{12 * time.Hour},
			EntryPricing:     "below_ask",
			MonitorInterval:  duration{15 * time.Second},
			Pairs: map[string]PairRule{
				"BTCZAR": {TickSize: decimal.NewFromInt(1), QuantityPlaces: 8},
			},
		},
		Scanner: ScannerConfig{
			Enabled:      true,
			Pairs:        []string{"BTCZAR"},
			RSIPeriod:    14,
			RSIThreshold: 30,
			HistorySize:  200,
			Cooldown:     duration{30 * time.Minute},
			Interval:     duration{time.Minute},
		},
		Storage: StorageConfig{
			DataDir:        "data",
			OrderRetention: duration{30 * 24 * time.Hour},
		},
		Postgres: PostgresConfig{
			Enabled:       false,
			Host:          "localhost",
			Port:          5432,
			Database:      "valrbot",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  5,
			RunMigrations: true,
		},
		Notify: NotifyConfig{
			Events: []string{"trade_opened", "trade_closed", "emergency_liquidation"},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"trade":   true,
	"monitor": true,
	"scan":    true,
	"full":    true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// validEntryPricing enumerates the accepted entry pricing strategies.
var validEntryPricing = map[string]bool{
	"":          true, // falls back to below_ask
	"ask":       true,
	"bid":       true,
	"below_ask": true,
	"market":    true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: trade, monitor, scan, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// API credentials are mandatory for anything that talks to the private
	// endpoints, which is every mode.
	if c.VALR.ApiKey == "" {
		errs = append(errs, "valr: api_key must not be empty")
	}
	if c.VALR.ApiSecret == "" {
		errs = append(errs, "valr: api_secret must not be empty")
	}
	if c.VALR.BaseURL == "" {
		errs = append(errs, "valr: base_url must not be empty")
	}
	if c.VALR.MaxRetries < 1 {
		errs = append(errs, "valr: max_retries must be >= 1")
	}
	if c.VALR.RequestsPerMinute < 1 {
		errs = append(errs, "valr: requests_per_minute must be >= 1")
	}

	tradesHere := c.Mode == "trade" || c.Mode == "full"
	if tradesHere {
		if c.Trading.QuoteCurrency == "" {
			errs = append(errs, "trading: quote_currency must not be empty")
		}
		if c.Trading.TradeAmount.Sign() <= 0 {
			errs = append(errs, "trading: trade_amount must be > 0")
		}
		if c.Trading.TakeProfitPct.Sign() <= 0 {
			errs = append(errs, "trading: take_profit_pct must be > 0")
		}
		hundred := decimal.NewFromInt(100)
		if c.Trading.StopLossPct.Sign() <= 0 || c.Trading.StopLossPct.GreaterThanOrEqual(hundred) {
			errs = append(errs, "trading: stop_loss_pct must be in (0, 100)")
		}
		if c.Trading.MaxDailyTrades < 1 {
			errs = append(errs, "trading: max_daily_trades must be >= 1")
		}
		if c.Trading.FillWaitTimeout.Duration <= 0 {
			errs = append(errs, "trading: fill_wait_timeout must be > 0")
		}
		if c.Trading.MonitorInterval.Duration <= 0 {
			errs = append(errs, "trading: monitor_interval must be > 0")
		}
		if !validEntryPricing[c.Trading.EntryPricing] {
			errs = append(errs, fmt.Sprintf("trading: unknown entry_pricing %q (valid: ask, bid, below_ask, market)", c.Trading.EntryPricing))
		}
		for pair, rule := range c.Trading.Pairs {
			if rule.TickSize.Sign() < 0 {
				errs = append(errs, fmt.Sprintf("trading: pair %s tick_size must be >= 0", pair))
			}
			if rule.QuantityPlaces < 0 {
				errs = append(errs, fmt.Sprintf("trading: pair %s quantity_places must be >= 0", pair))
			}
		}
	}

	scansHere := c.Scanner.Enabled && (c.Mode == "scan" || c.Mode == "trade" || c.Mode == "full")
	if scansHere {
		if len(c.Scanner.Pairs) == 0 {
			errs = append(errs, "scanner: pairs must not be empty when enabled")
		}
		if c.Scanner.RSIPeriod < 2 {
			errs = append(errs, "scanner: rsi_period must be >= 2")
		}
		if c.Scanner.RSIThreshold <= 0 || c.Scanner.RSIThreshold >= 100 {
			errs = append(errs, "scanner: rsi_threshold must be in (0, 100)")
		}
		if c.Scanner.Interval.Duration <= 0 {
			errs = append(errs, "scanner: interval must be > 0")
		}
	}

	if c.Storage.DataDir == "" {
		errs = append(errs, "storage: data_dir must not be empty")
	}

	if c.Postgres.Enabled {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
	}

	// Telegram credentials come in pairs.
	tt := c.Notify.TelegramToken != ""
	tc := c.Notify.TelegramChatID != ""
	if tt != tc {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
