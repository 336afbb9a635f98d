package main

import (
	"log/slog"
	"os"
)

// Config holds the CLI's runtime configuration: spec §6's minimal,
// core-facing flag set plus the few things that only make sense as
// environment defaults (config path, log level, listen host before flags
// override them). The listen port defaults to 8080 and is set only by
// --port.
type Config struct {
	ConfigFile        string     // --config <path>
	Host              string     // --host <h>
	Port              int        // --port <n>
	LogLevel          slog.Level // MCPLEXER_LOG_LEVEL
	InboundAuthTokens []string   // --inbound-auth-token <t>, repeatable
}

func loadConfig() (*Config, error) {
	return &Config{
		ConfigFile: envOr("MCPLEXER_CONFIG", "mcplexer.json"),
		Host:       envOr("MCPLEXER_HOST", "127.0.0.1"),
		Port:       8080,
		LogLevel:   parseLogLevel(envOr("MCPLEXER_LOG_LEVEL", "info")),
	}, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseLogLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
