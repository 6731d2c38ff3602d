package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ctxgraph/internal/config"
	"github.com/fyrsmithlabs/ctxgraph/internal/logging"
	"github.com/fyrsmithlabs/ctxgraph/internal/services"
	"github.com/fyrsmithlabs/ctxgraph/internal/telemetry"
)

// app holds everything a command needs. Close releases it in reverse order.
type app struct {
	cfg       *config.Config
	logger    *zap.Logger
	telemetry *telemetry.Telemetry
	services  services.Registry
}

// bootstrap loads configuration and builds the service stack.
//
// This function:
//  1. Loads and validates configuration
//  2. Initializes the logger (always stderr; stdout carries command output)
//  3. Initializes telemetry and, when log export is on, tees the logger
//     into it
//  4. Builds the store, embeddings, search and injection services
func bootstrap(ctx context.Context, opts *rootOptions) (*app, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	if opts.logLevel != "" {
		cfg.Logging.Level = opts.logLevel
	}
	cfg.Logging.Output = "stderr"

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	telCfg := cfg.Telemetry
	if telCfg.ServiceVersion == "" || telCfg.ServiceVersion == "dev" {
		telCfg.ServiceVersion = version
	}
	tel, err := telemetry.New(ctx, &telCfg, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	if provider := tel.LoggerProvider(); provider != nil {
		teed, err := logging.New(cfg.Logging, logging.WithLoggerProvider(provider))
		if err != nil {
			shutdownTelemetry(tel, cfg)
			_ = logger.Sync()
			return nil, fmt.Errorf("failed to initialize logger: %w", err)
		}
		_ = logger.Sync()
		logger = teed
	}

	reg, err := services.Build(ctx, cfg, logger)
	if err != nil {
		shutdownTelemetry(tel, cfg)
		_ = logger.Sync()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	return &app{cfg: cfg, logger: logger, telemetry: tel, services: reg}, nil
}

// Close flushes the store, telemetry and logger.
func (a *app) Close() error {
	err := a.services.Close()
	shutdownTelemetry(a.telemetry, a.cfg)
	_ = a.logger.Sync() // Best-effort sync on shutdown
	return err
}

func shutdownTelemetry(tel *telemetry.Telemetry, cfg *config.Config) {
	timeout := cfg.Telemetry.Shutdown.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	_ = tel.Shutdown(ctx)
}

// withApp runs fn with a bootstrapped app and closes it afterwards.
func withApp(ctx context.Context, opts *rootOptions, fn func(*app) error) (err error) {
	a, err := bootstrap(ctx, opts)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, a.Close())
	}()
	return fn(a)
}
