package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies VALRBOT_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known VALRBOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e.
// not empty). This lets operators inject secrets at deploy time without
// touching the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── VALR ──
	setStr(&cfg.VALR.ApiKey, "VALRBOT_VALR_API_KEY")
	setStr(&cfg.VALR.ApiSecret, "VALRBOT_VALR_API_SECRET")
	setStr(&cfg.VALR.BaseURL, "VALRBOT_VALR_BASE_URL")
	setStr(&cfg.VALR.ApiVersion, "VALRBOT_VALR_API_VERSION")
	setDuration(&cfg.VALR.Timeout, "VALRBOT_VALR_TIMEOUT")
	setInt(&cfg.VALR.MaxRetries, "VALRBOT_VALR_MAX_RETRIES")
	setDuration(&cfg.VALR.BackoffBase, "VALRBOT_VALR_BACKOFF_BASE")
	setInt(&cfg.VALR.RequestsPerMinute, "VALRBOT_VALR_REQUESTS_PER_MINUTE")

	// ── Trading ──
	setStr(&cfg.Trading.QuoteCurrency, "VALRBOT_TRADING_QUOTE_CURRENCY")
	setDecimal(&cfg.Trading.TradeAmount, "VALRBOT_TRADING_TRADE_AMOUNT")
	setDecimal(&cfg.Trading.TakeProfitPct, "VALRBOT_TRADING_TAKE_PROFIT_PCT")
	setDecimal(&cfg.Trading.StopLossPct, "VALRBOT_TRADING_STOP_LOSS_PCT")
	setDecimal(&cfg.Trading.FeePct, "VALRBOT_TRADING_FEE_PCT")
	setDecimal(&cfg.Trading.BalanceMarginPct, "VALRBOT_TRADING_BALANCE_MARGIN_PCT")
	setInt(&cfg.Trading.MaxDailyTrades, "VALRBOT_TRADING_MAX_DAILY_TRADES")
	setDuration(&cfg.Trading.FillWaitTimeout, "VALRBOT_TRADING_FILL_WAIT_TIMEOUT")
	setDuration(&cfg.Trading.PositionTimeout, "VALRBOT_TRADING_POSITION_TIMEOUT")
	setDuration(&cfg.Trading.ExitOrderTimeout, "VALRBOT_TRADING_EXIT_ORDER_TIMEOUT")
	setBool(&cfg.Trading.SingleExitOrder, "VALRBOT_TRADING_SINGLE_EXIT_ORDER")
	setBool(&cfg.Trading.PostOnlyEntry, "VALRBOT_TRADING_POST_ONLY_ENTRY")
	setStr(&cfg.Trading.EntryPricing, "VALRBOT_TRADING_ENTRY_PRICING")
	setDuration(&cfg.Trading.MonitorInterval, "VALRBOT_TRADING_MONITOR_INTERVAL")

	// ── Scanner ──
	setBool(&cfg.Scanner.Enabled, "VALRBOT_SCANNER_ENABLED")
	setStringSlice(&cfg.Scanner.Pairs, "VALRBOT_SCANNER_PAIRS")
	setInt(&cfg.Scanner.RSIPeriod, "VALRBOT_SCANNER_RSI_PERIOD")
	setFloat64(&cfg.Scanner.RSIThreshold, "VALRBOT_SCANNER_RSI_THRESHOLD")
	setInt(&cfg.Scanner.HistorySize, "VALRBOT_SCANNER_HISTORY_SIZE")
	setDuration(&cfg.Scanner.Cooldown, "VALRBOT_SCANNER_COOLDOWN")
	setDuration(&cfg.Scanner.Interval, "VALRBOT_SCANNER_INTERVAL")

	// ── Storage ──
	setStr(&cfg.Storage.DataDir, "VALRBOT_STORAGE_DATA_DIR")
	setDuration(&cfg.Storage.OrderRetention, "VALRBOT_STORAGE_ORDER_RETENTION")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "VALRBOT_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "VALRBOT_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "VALRBOT_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "VALRBOT_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "VALRBOT_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "VALRBOT_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "VALRBOT_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "VALRBOT_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "VALRBOT_POSTGRES_POOL_MAX_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "VALRBOT_POSTGRES_RUN_MIGRATIONS")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "VALRBOT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "VALRBOT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "VALRBOT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "VALRBOT_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "VALRBOT_MODE")
	setStr(&cfg.LogLevel, "VALRBOT_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDecimal(dst *decimal.Decimal, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := decimal.NewFromString(v); err == nil {
			*dst = d
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
