package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/animus-labs/labkit/internal/platform/env"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// Config for the optional run-record database. An empty URL disables it.
type Config struct {
	URL          string
	PingTimeout  time.Duration
	MaxOpenConns int
	MaxIdleConns int
}

func ConfigFromEnv() (Config, error) {
	pingTimeout, err := env.Duration("DATABASE_PING_TIMEOUT", 2*time.Second)
	if err != nil {
		return Config{}, err
	}
	maxOpenConns, err := env.Int("DATABASE_MAX_OPEN_CONNS", 2)
	if err != nil {
		return Config{}, err
	}
	maxIdleConns, err := env.Int("DATABASE_MAX_IDLE_CONNS", 1)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		URL:          env.String("DATABASE_URL", ""),
		PingTimeout:  pingTimeout,
		MaxOpenConns: maxOpenConns,
		MaxIdleConns: maxIdleConns,
	}
	if !cfg.Enabled() {
		return cfg, nil
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Enabled() bool {
	return c.URL != ""
}

func (c Config) Validate() error {
	if c.URL == "" {
		return errors.New("LABKIT_DATABASE_URL is required")
	}
	if c.PingTimeout <= 0 {
		return errors.New("LABKIT_DATABASE_PING_TIMEOUT must be positive")
	}
	if c.MaxOpenConns < 1 {
		return errors.New("LABKIT_DATABASE_MAX_OPEN_CONNS must be >= 1")
	}
	if c.MaxIdleConns < 0 {
		return errors.New("LABKIT_DATABASE_MAX_IDLE_CONNS must be >= 0")
	}
	if c.MaxIdleConns > c.MaxOpenConns {
		return errors.New("LABKIT_DATABASE_MAX_IDLE_CONNS must be <= LABKIT_DATABASE_MAX_OPEN_CONNS")
	}
	return nil
}

func Open(ctx context.Context, cfg Config) (*sql.DB, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	db, err := sql.Open("pgx", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.PingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return db, nil
}
