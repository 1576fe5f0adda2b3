package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"ledgerreports/internal/app"
	"ledgerreports/internal/config"
	apphttp "ledgerreports/internal/http"
	"ledgerreports/internal/log"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	cfg := config.Load()
	logger := app.NewLogger(cfg)

	logger.Info("Starting reportd", "port", cfg.Port, "poll_enabled", cfg.PollEnabled)

	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", log.FieldError, err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize", log.FieldError, err)
		os.Exit(1)
	}
	defer a.Close()

	srv := apphttp.NewServer(":"+cfg.Port, a.Reports, logger)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.WithComponent(log.ComponentHTTP).Info("HTTP server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if cfg.PollEnabled {
		if err := a.Scheduler.Start(gctx); err != nil {
			logger.Error("Failed to start scheduler", log.FieldError, err)
			os.Exit(1)
		}
	} else {
		logger.Info("Polling disabled, requests will wait for reportctl run-once")
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down", log.FieldOperation, log.OpShutdown)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		var errs []error
		if err := srv.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, err)
		}
		if err := a.Scheduler.Stop(shutdownCtx); err != nil {
			errs = append(errs, err)
		}
		return errors.Join(errs...)
	})

	if err := g.Wait(); err != nil {
		logger.Error("reportd exited with error", log.FieldError, err)
		a.Close()
		os.Exit(1)
	}
	logger.Info("reportd stopped")
}
