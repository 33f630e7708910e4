package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/animus-labs/labkit/internal/archive"
	"github.com/animus-labs/labkit/internal/instrument"
	"github.com/animus-labs/labkit/internal/platform/env"
	"github.com/animus-labs/labkit/internal/platform/logging"
	"github.com/animus-labs/labkit/internal/platform/objectstore"
	"github.com/animus-labs/labkit/internal/platform/postgres"
	pgrepo "github.com/animus-labs/labkit/internal/repo/postgres"
	"github.com/animus-labs/labkit/internal/sweep"
)

// app carries the environment-derived settings and optional mirrors shared
// by every command.
type app struct {
	logger      *slog.Logger
	dataDir     string
	delay       time.Duration
	binaryIndex bool
	instrument  instrument.Config

	archive  *archive.Archive
	trials   *pgrepo.TrialStore
	lineage  *pgrepo.LineageStore
	closeFns []func() error
}

func loadApp(ctx context.Context, stderr io.Writer) (*app, error) {
	logCfg, err := logging.ConfigFromEnv()
	if err != nil {
		return nil, fmt.Errorf("invalid logging config: %w", err)
	}
	a := &app{logger: logging.New(stderr, logCfg)}

	a.dataDir = env.String("DATA_DIR", ".")
	if a.delay, err = env.Duration("SWEEP_DELAY", sweep.DefaultDelay); err != nil {
		return nil, err
	}
	if a.binaryIndex, err = env.Bool("INDEX_BINARY", true); err != nil {
		return nil, err
	}
	if a.instrument, err = instrument.ConfigFromEnv(); err != nil {
		return nil, fmt.Errorf("invalid instrument config: %w", err)
	}
	return a, nil
}

// openMirrors connects the object store and database when they are
// configured. Only commands that record or derive data call it.
func (a *app) openMirrors(ctx context.Context) error {
	storeCfg, err := objectstore.ConfigFromEnv()
	if err != nil {
		return fmt.Errorf("invalid object store config: %w", err)
	}
	if storeCfg.Enabled {
		if err := a.openArchive(ctx, storeCfg); err != nil {
			return err
		}
	}

	dbCfg, err := postgres.ConfigFromEnv()
	if err != nil {
		return fmt.Errorf("invalid database config: %w", err)
	}
	if dbCfg.Enabled() {
		if err := a.openDatabase(ctx, dbCfg); err != nil {
			return err
		}
	}
	return nil
}

func (a *app) openArchive(ctx context.Context, cfg objectstore.Config) error {
	client, err := objectstore.NewMinIOClient(cfg)
	if err != nil {
		return fmt.Errorf("object store client init failed: %w", err)
	}
	startupCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := objectstore.EnsureBucket(startupCtx, client, cfg); err != nil {
		return fmt.Errorf("object store unavailable: %w", err)
	}
	store, err := objectstore.NewMinioStore(client)
	if err != nil {
		return err
	}
	a.archive, err = archive.New(store, cfg.Bucket, a.logger)
	return err
}

func (a *app) openDatabase(ctx context.Context, cfg postgres.Config) error {
	db, err := postgres.Open(ctx, cfg)
	if err != nil {
		return fmt.Errorf("database unavailable: %w", err)
	}
	a.closeFns = append(a.closeFns, db.Close)
	if err := pgrepo.EnsureSchema(ctx, db); err != nil {
		return err
	}
	a.trials = pgrepo.NewTrialStore(db)
	a.lineage = pgrepo.NewLineageStore(db, "labkit")
	return nil
}

func (a *app) Close() error {
	var first error
	for _, fn := range a.closeFns {
		if err := fn(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
