package jobs

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// StaleSweeper fails documents stuck in Processing.
type StaleSweeper interface {
	FailStale(ctx context.Context) (int, error)
}

// Worker periodically runs the stale-document sweep.
type Worker struct {
	sweeper      StaleSweeper
	pollInterval time.Duration
	logger       *zap.Logger
	stopChan     chan struct{}
	doneChan     chan struct{}
}

// NewWorker creates a new Worker instance
func NewWorker(sweeper StaleSweeper, pollInterval time.Duration, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		sweeper:      sweeper,
		pollInterval: pollInterval,
		logger:       logger.Named("sweeper"),
		stopChan:     make(chan struct{}),
		doneChan:     make(chan struct{}),
	}
}

// Start runs the sweep loop until ctx is cancelled or Stop is called.
func (w *Worker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()
	defer close(w.doneChan)

	w.logger.Info("sweeper started", zap.Duration("interval", w.pollInterval))

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("sweeper stopped: context cancelled")
			return
		case <-w.stopChan:
			w.logger.Info("sweeper stopped: stop signal received")
			return
		case <-ticker.C:
			n, err := w.sweeper.FailStale(ctx)
			if err != nil {
				w.logger.Error("stale sweep failed", zap.Error(err))
				continue
			}
			if n > 0 {
				w.logger.Info("stale documents failed", zap.Int("count", n))
			}
		}
	}
}

// Stop gracefully stops the worker
func (w *Worker) Stop() {
	close(w.stopChan)
	<-w.doneChan
}
