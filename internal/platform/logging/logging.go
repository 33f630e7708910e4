package logging

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/animus-labs/labkit/internal/platform/env"
)

const (
	FormatJSON = "json"
	FormatText = "text"
)

type Config struct {
	Level  slog.Level
	Format string
}

func ConfigFromEnv() (Config, error) {
	level, err := ParseLevel(env.String("LOG_LEVEL", "info"))
	if err != nil {
		return Config{}, err
	}
	cfg := Config{
		Level:  level,
		Format: strings.ToLower(env.String("LOG_FORMAT", FormatText)),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.Format {
	case FormatJSON, FormatText:
		return nil
	default:
		return fmt.Errorf("%s must be %q or %q, got %q", env.Key("LOG_FORMAT"), FormatJSON, FormatText, c.Format)
	}
}

// New builds a logger writing to w.
func New(w io.Writer, cfg Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.Level}
	if cfg.Format == FormatJSON {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

// OrDiscard lets packages accept a nil logger.
func OrDiscard(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return Discard()
	}
	return logger
}

func ParseLevel(raw string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", raw)
	}
}
