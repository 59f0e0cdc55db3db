package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func validConfig() Config {
	cfg := Defaults()
	cfg.VALR.ApiKey = "key"
	cfg.VALR.ApiSecret = "secret"
	return cfg
}

func writeConfigFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaultsValidateWithCredentials(t *testing.T) {
	cfg := validConfig()
	assert.NoError(t, cfg.Validate())
}

func TestValidateRequiresCredentials(t *testing.T) {
	cfg := Defaults()
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api_key")
	assert.Contains(t, err.Error(), "api_secret")
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"unknown mode", func(c *Config) { c.Mode = "yolo" }, "unknown mode"},
		{"unknown log level", func(c *Config) { c.LogLevel = "verbose" }, "log_level"},
		{"zero trade amount", func(c *Config) { c.Trading.TradeAmount = dec("0") }, "trade_amount"},
		{"negative take profit", func(c *Config) { c.Trading.TakeProfitPct = dec("-1") }, "take_profit_pct"},
		{"stop loss over 100", func(c *Config) { c.Trading.StopLossPct = dec("150") }, "stop_loss_pct"},
		{"zero daily trades", func(c *Config) { c.Trading.MaxDailyTrades = 0 }, "max_daily_trades"},
		{"unknown pricing", func(c *Config) { c.Trading.EntryPricing = "vwap" }, "entry_pricing"},
		{"scanner without pairs", func(c *Config) { c.Scanner.Pairs = nil }, "scanner: pairs"},
		{"rsi threshold out of range", func(c *Config) { c.Scanner.RSIThreshold = 100 }, "rsi_threshold"},
		{"postgres without host", func(c *Config) {
			c.Postgres.Enabled = true
			c.Postgres.Host = ""
		}, "postgres: host"},
		{"telegram token without chat id", func(c *Config) { c.Notify.TelegramToken = "t" }, "telegram_chat_id"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestValidateMonitorModeSkipsTradingChecks(t *testing.T) {
	cfg := validConfig()
	cfg.Mode = "monitor"
	cfg.Trading.TradeAmount = dec("0")
	assert.NoError(t, cfg.Validate(), "trading parameters are not required outside trading modes")
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	path := writeConfigFile(t, `
mode = "trade"
log_level = "debug"

[valr]
api_key = "file-key"
api_secret = "file-secret"

[trading]
trade_amount = "2500.50"
take_profit_pct = "0.8"
fill_wait_timeout = "90s"

[trading.pairs.ETHZAR]
tick_size = "0.01"
quantity_places = 4

[scanner]
pairs = ["ETHZAR", "BTCZAR"]
cooldown = "45m"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "trade", cfg.Mode)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "file-key", cfg.VALR.ApiKey)
	assert.True(t, cfg.Trading.TradeAmount.Equal(dec("2500.50")))
	assert.True(t, cfg.Trading.TakeProfitPct.Equal(dec("0.8")))
	assert.Equal(t, 90*time.Second, cfg.Trading.FillWaitTimeout.Duration)
	assert.Equal(t, []string{"ETHZAR", "BTCZAR"}, cfg.Scanner.Pairs)
	assert.Equal(t, 45*time.Minute, cfg.Scanner.Cooldown.Duration)

	rule, ok := cfg.Trading.Pairs["ETHZAR"]
	require.True(t, ok)
	assert.True(t, rule.TickSize.Equal(dec("0.01")))
	assert.Equal(t, int32(4), rule.QuantityPlaces)

	// Untouched fields keep their defaults.
	assert.True(t, cfg.Trading.StopLossPct.Equal(dec("2.0")))
	assert.Equal(t, "https://api.valr.com", cfg.VALR.BaseURL)

	require.NoError(t, cfg.Validate())
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	path := writeConfigFile(t, `
[valr]
api_key = "file-key"
api_secret = "file-secret"
`)

	t.Setenv("VALRBOT_VALR_API_SECRET", "env-secret")
	t.Setenv("VALRBOT_TRADING_TRADE_AMOUNT", "500")
	t.Setenv("VALRBOT_TRADING_FILL_WAIT_TIMEOUT", "45s")
	t.Setenv("VALRBOT_SCANNER_PAIRS", "SOLZAR, XRPZAR")
	t.Setenv("VALRBOT_MODE", "monitor")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "file-key", cfg.VALR.ApiKey, "file value survives when no env var is set")
	assert.Equal(t, "env-secret", cfg.VALR.ApiSecret)
	assert.True(t, cfg.Trading.TradeAmount.Equal(dec("500")))
	assert.Equal(t, 45*time.Second, cfg.Trading.FillWaitTimeout.Duration)
	assert.Equal(t, []string{"SOLZAR", "XRPZAR"}, cfg.Scanner.Pairs)
	assert.Equal(t, "monitor", cfg.Mode)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestRedactedConfigHidesSecrets(t *testing.T) {
	cfg := validConfig()
	cfg.Postgres.Password = "hunter2"
	cfg.Notify.TelegramToken = "bot-token"
	cfg.Notify.TelegramChatID = "42"

	red := RedactedConfig(&cfg)

	assert.Equal(t, "***", red.VALR.ApiKey)
	assert.Equal(t, "***", red.VALR.ApiSecret)
	assert.Equal(t, "***", red.Postgres.Password)
	assert.Equal(t, "***", red.Notify.TelegramToken)
	assert.Equal(t, "42", red.Notify.TelegramChatID, "chat id is not a secret")

	// The original config is untouched.
	assert.Equal(t, "key", cfg.VALR.ApiKey)
	assert.Equal(t, "hunter2", cfg.Postgres.Password)
}
