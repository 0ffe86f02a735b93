package worker

import (
	"context"
	"time"

	"checkout-engine/internal/broker"
	"checkout-engine/internal/callback"
	"checkout-engine/internal/idempotency"
	"checkout-engine/internal/util"

	"go.uber.org/zap"
)

// CallbackWorker consumes queued payment callbacks and runs them through the
// pipeline's claim/apply/complete step
type CallbackWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	maxRetries   int
	retryDelay   time.Duration
	logger       *zap.Logger
}

// NewCallbackWorker creates a new callback worker
func NewCallbackWorker(consumer *broker.Consumer, pipeline *callback.Pipeline) *CallbackWorker {
	eventHandler := broker.NewEventHandler()
	eventHandler.OnPaymentCallback(pipeline.Process)

	return &CallbackWorker{
		consumer:     consumer,
		eventHandler: eventHandler,
		maxRetries:   5,
		retryDelay:   2 * time.Second,
		logger:       util.GetLogger(),
	}
}

// Start starts the worker
func (w *CallbackWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting callback worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage, w.maxRetries, w.retryDelay)
}

// Stop stops the worker
func (w *CallbackWorker) Stop() error {
	w.logger.Info("Stopping callback worker")
	return w.consumer.Close()
}

// SweepWorker periodically evicts processed-callback records past retention
type SweepWorker struct {
	claims   idempotency.Store
	interval time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

// NewSweepWorker creates a sweep worker
func NewSweepWorker(claims idempotency.Store, interval time.Duration) *SweepWorker {
	if interval <= 0 {
		interval = time.Hour
	}
	return &SweepWorker{
		claims:   claims,
		interval: interval,
		logger:   util.GetLogger(),
		now:      time.Now,
	}
}

// Start sweeps on every tick until ctx is cancelled
func (w *SweepWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting sweep worker", zap.Duration("interval", w.interval))

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Stopping sweep worker")
			return ctx.Err()
		case <-ticker.C:
			w.Sweep(ctx)
		}
	}
}

// Sweep runs one eviction pass and returns the number of records removed
func (w *SweepWorker) Sweep(ctx context.Context) int {
	n, err := w.claims.CleanupExpired(ctx, w.now())
	if err != nil {
		w.logger.Error("Failed to evict processed callbacks", zap.Error(err))
		return 0
	}
	if n > 0 {
		util.ProcessedCallbacksEvicted.Add(float64(n))
		w.logger.Info("Evicted processed callbacks", zap.Int("count", n))
	}
	return n
}
