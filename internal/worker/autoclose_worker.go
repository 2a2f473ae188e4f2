package worker

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// StaleCloser is the ticket operation the sweeper drives.
type StaleCloser interface {
	AutoCloseStale(ctx context.Context, threshold time.Duration, batchSize int) (int, error)
}

// AutoCloseWorker periodically closes tickets stuck in awaiting_user.
type AutoCloseWorker struct {
	closer    StaleCloser
	threshold time.Duration
	interval  time.Duration
	batchSize int
	logger    *zap.Logger
}

// NewAutoCloseWorker creates the sweeper.
func NewAutoCloseWorker(closer StaleCloser, threshold, interval time.Duration, batchSize int, logger *zap.Logger) *AutoCloseWorker {
	return &AutoCloseWorker{
		closer:    closer,
		threshold: threshold,
		interval:  interval,
		batchSize: batchSize,
		logger:    logger,
	}
}

// Run sweeps once immediately and then on every tick until ctx is done.
// Sweep failures are logged; the next tick retries.
func (w *AutoCloseWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("auto-close worker started",
		zap.Duration("threshold", w.threshold),
		zap.Duration("interval", w.interval))

	for {
		w.SweepOnce(ctx)
		select {
		case <-ctx.Done():
			w.logger.Info("auto-close worker stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// SweepOnce runs a single sweep and returns how many tickets it closed.
func (w *AutoCloseWorker) SweepOnce(ctx context.Context) int {
	closed, err := w.closer.AutoCloseStale(ctx, w.threshold, w.batchSize)
	if err != nil && ctx.Err() == nil {
		w.logger.Error("auto-close sweep failed", zap.Error(err))
	}
	return closed
}
