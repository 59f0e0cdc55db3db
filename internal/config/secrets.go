package config

// RedactedConfig returns a shallow copy of cfg with sensitive fields replaced
// by the redaction placeholder "***". Use this when logging or printing the
// active configuration so secrets are never accidentally exposed.
func RedactedConfig(cfg *Config) Config {
	out := *cfg // shallow copy of the top-level struct

	// VALR
	out.VALR = cfg.VALR
	redact(&out.VALR.ApiKey)
	redact(&out.VALR.ApiSecret)

	// Postgres
	out.Postgres = cfg.Postgres
	redact(&out.Postgres.DSN)
	redact(&out.Postgres.Password)

	// Notify
	out.Notify = cfg.Notify
	redact(&out.Notify.TelegramToken)
	redact(&out.Notify.DiscordWebhookURL)

	// Copy slices and maps so callers cannot mutate the original through the
	// redacted copy.
	if cfg.Notify.Events != nil {
		out.Notify.Events = make([]string, len(cfg.Notify.Events))
		copy(out.Notify.Events, cfg.Notify.Events)
	}
	if cfg.Scanner.Pairs != nil {
		out.Scanner.Pairs = make([]string, len(cfg.Scanner.Pairs))
		copy(out.Scanner.Pairs, cfg.Scanner.Pairs)
	}
	if cfg.Trading.Pairs != nil {
		out.Trading.Pairs = make(map[string]PairRule, len(cfg.Trading.Pairs))
		for k, v := range cfg.Trading.Pairs {
			out.Trading.Pairs[k] = v
		}
	}

	return out
}

const redacted = "***"

// redact replaces a non-empty string with the redacted placeholder.
func redact(s *string) {
	if *s != "" {
		*s = redacted
	}
}
