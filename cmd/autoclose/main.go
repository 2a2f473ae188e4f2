// Command autoclose runs one stale-ticket sweep and exits. It is meant for
// cron-style scheduling when the API process runs with the sweeper off.
package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/bootstrap"
	"github.com/spec-kit/helpdesk/internal/config"
	"github.com/spec-kit/helpdesk/internal/observability"
	"github.com/spec-kit/helpdesk/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	thresholdDays := pflag.Int("threshold-days", cfg.AutoClose.ThresholdDays, "close awaiting_user tickets older than this many days")
	batchSize := pflag.Int("batch-size", cfg.AutoClose.BatchSize, "tickets fetched per page")
	timeout := pflag.Duration("timeout", 5*time.Minute, "abort the sweep after this long")
	pflag.Parse()

	if *thresholdDays <= 0 {
		log.Fatalf("--threshold-days must be positive, got %d", *thresholdDays)
	}
	cfg.AutoClose.ThresholdDays = *thresholdDays
	// The sweep never assigns tickets.
	cfg.Assignment.Enabled = false

	logger, err := observability.NewLogger(cfg.Logger,
		zap.String("service", cfg.App.Name),
		zap.String("version", cfg.App.Version))
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	container, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to bootstrap", zap.Error(err))
	}
	defer container.Close()

	sweeper := worker.NewAutoCloseWorker(container.Tickets, cfg.AutoClose.Threshold(), 0, *batchSize, logger.Named("autoclose"))
	closed := sweeper.SweepOnce(ctx)
	container.Tickets.Wait()
	logger.Info("auto-close sweep finished", zap.Int("closed", closed))
}
