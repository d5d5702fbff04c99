package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/dshills/docstore-mcp/internal/config"
	"github.com/dshills/docstore-mcp/internal/docset"
	"github.com/dshills/docstore-mcp/internal/logger"
	"github.com/dshills/docstore-mcp/internal/metrics"
	"github.com/dshills/docstore-mcp/internal/storage"
)

// app holds the process-level dependencies shared by commands
type app struct {
	cfg      config.Config
	logger   *zap.Logger
	store    *storage.SQLiteStorage
	registry *docset.Registry
	gatherer *prometheus.Registry
}

// newApp loads configuration, opens the database and restores every
// catalogued collection
func newApp(ctx context.Context, opts *cliOptions) (*app, error) {
	if err := config.LoadDotEnv(opts.envFiles...); err != nil {
		return nil, err
	}
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	if opts.dbPath != "" {
		cfg.Database.Path = opts.dbPath
	}

	log, err := logger.New(cfg.Logging.Env, cfg.Logging.Level)
	if err != nil {
		return nil, err
	}

	if err := storage.ConfigurePatternCache(cfg.Documents.PatternCacheSize); err != nil {
		return nil, err
	}

	if cfg.Database.Path != ":memory:" {
		if dir := filepath.Dir(cfg.Database.Path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	}
	store, err := storage.NewSQLiteStorageWithOptions(cfg.Database.Path, cfg.StorageOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	gatherer := prometheus.NewRegistry()
	gatherer.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector, err := metrics.New(gatherer)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	registry, err := docset.NewRegistry(store, docset.RegistryOptions{
		Defaults: docset.Options{
			NotFoundMessage:  cfg.Documents.NotFoundMessage,
			OperationTimeout: cfg.OperationTimeout(),
			StatsKinds:       cfg.Documents.StatsKinds,
			Metrics:          collector,
			Logger:           log,
		},
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	a := &app{cfg: cfg, logger: log, store: store, registry: registry, gatherer: gatherer}
	if err := a.restore(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}

	log.Debug("docstore ready",
		zap.String("db", cfg.Database.Path),
		zap.String("driver", storage.DriverName),
		zap.String("build_mode", storage.BuildMode))
	return a, nil
}

// restore reopens catalogued collections, then the configured ones
func (a *app) restore(ctx context.Context) error {
	if err := a.registry.Restore(ctx); err != nil {
		return fmt.Errorf("failed to restore collections: %w", err)
	}
	for _, c := range a.cfg.Collections {
		if _, err := a.registry.Open(ctx, c.Name, c.NotFoundMessage); err != nil {
			return fmt.Errorf("failed to open configured collection %s: %w", c.Name, err)
		}
	}
	return nil
}

// collection returns an opened collection by name
func (a *app) collection(name string) (*docset.DocumentSet, error) {
	set, err := a.registry.Get(name)
	if errors.Is(err, docset.ErrUnknownCollection) {
		return nil, fmt.Errorf("collection %q does not exist (create it first)", name)
	}
	return set, err
}

// Close releases the database and flushes logs
func (a *app) Close() error {
	_ = a.logger.Sync()
	return a.store.Close()
}

// withApp runs fn with a bootstrapped app and closes it afterwards
func withApp(ctx context.Context, opts *cliOptions, fn func(*app) error) error {
	a, err := newApp(ctx, opts)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()
	return fn(a)
}
