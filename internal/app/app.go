// Package app wires the report pipeline from configuration. Both binaries
// build the same graph; only what they run differs.
package app

import (
	"context"
	"errors"
	"fmt"

	"ledgerreports/internal/amqp"
	"ledgerreports/internal/artifact"
	"ledgerreports/internal/config"
	"ledgerreports/internal/log"
	"ledgerreports/internal/services"
	"ledgerreports/internal/storage"
	"ledgerreports/internal/worker"
)

type App struct {
	Config    *config.Config
	Logger    *log.Logger
	Repo      *storage.SQLiteRepository
	Reports   *services.ReportService
	Processor *services.ReportProcessor
	Scheduler *worker.Scheduler
	AMQP      *amqp.Client

	closers []func() error
}

// NewLogger builds the process logger from configuration and installs it as
// the slog default.
func NewLogger(cfg *config.Config) *log.Logger {
	logger := log.New(log.Config{
		Level:     log.ParseLevel(cfg.LogLevel),
		Format:    cfg.LogFormat,
		Component: log.ComponentApp,
	})
	log.SetDefault(logger)
	return logger
}

// New opens the store and every optional integration the configuration asks
// for. On error everything opened so far is closed.
func New(ctx context.Context, cfg *config.Config, logger *log.Logger) (_ *App, err error) {
	a := &App{Config: cfg, Logger: logger}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	a.Repo, err = storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("open report store: %w", err)
	}
	a.closers = append(a.closers, a.Repo.Close)
	a.Reports = services.NewReportService(a.Repo)

	artifacts, err := a.artifactStore(ctx)
	if err != nil {
		return nil, err
	}

	var notifier services.Notifier
	if cfg.AMQPURL != "" {
		a.AMQP, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			return nil, fmt.Errorf("connect AMQP: %w", err)
		}
		a.closers = append(a.closers, a.AMQP.Close)
		notifier = a.AMQP
		logger.WithComponent(log.ComponentAMQP).Info("Report notifications enabled",
			"exchange", cfg.AMQPExchange,
			"queue", cfg.AMQPQueue)
	}

	lock, err := a.cycleLock(ctx)
	if err != nil {
		return nil, err
	}

	a.Processor = services.NewReportProcessor(a.Repo, services.LedgerAggregator{Dir: cfg.LedgerDir}, artifacts, notifier, logger)
	a.Scheduler = worker.NewScheduler(a.Repo, a.Processor, lock, worker.Config{
		Interval:  cfg.PollInterval,
		BatchSize: cfg.PollBatchSize,
	}, logger)

	return a, nil
}

func (a *App) artifactStore(ctx context.Context) (artifact.Store, error) {
	logger := a.Logger.WithComponent(log.ComponentArtifact)
	if !a.Config.UsesGCS() {
		logger.Info("Writing reports to local directory", "dir", a.Config.OutputDir)
		return artifact.NewFileStore(a.Config.OutputDir), nil
	}

	gcs, err := artifact.NewGCSStore(ctx, a.Config.OutputBucket, a.Config.OutputPrefix, a.Config.GCSCredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("open output bucket: %w", err)
	}
	a.closers = append(a.closers, gcs.Close)
	logger.Info("Writing reports to Cloud Storage",
		"bucket", a.Config.OutputBucket,
		"prefix", a.Config.OutputPrefix)
	return gcs, nil
}

func (a *App) cycleLock(ctx context.Context) (worker.CycleLock, error) {
	if a.Config.RedisAddress == "" {
		return worker.NewLocalLock(), nil
	}
	rl, err := worker.NewRedisLock(ctx, a.Config.RedisAddress, a.Config.LockKey, a.Config.LockTTL, a.Logger)
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	a.closers = append(a.closers, rl.Close)
	a.Logger.WithComponent(log.ComponentLock).Info("Using Redis cycle lock",
		"address", a.Config.RedisAddress,
		"key", a.Config.LockKey,
		"ttl", a.Config.LockTTL)
	return rl, nil
}

// Close releases everything New opened, in reverse order.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
