package callback

import (
	"context"
	"fmt"
	"sync"
	"time"

	"checkout-engine/internal/apperr"
	"checkout-engine/internal/models"
	"checkout-engine/internal/util"

	"go.uber.org/zap"
)

// Queue hands authenticated callbacks to asynchronous processing
type Queue interface {
	Enqueue(ctx context.Context, event *models.PaymentCallbackEvent) error
}

// Handler processes one queued callback
type Handler func(ctx context.Context, event *models.PaymentCallbackEvent) error

const (
	defaultRedeliveryBackoff = 500 * time.Millisecond
	maxRedeliveryBackoff     = 30 * time.Second
)

type queuedCallback struct {
	event   *models.PaymentCallbackEvent
	attempt int
}

// LocalQueue is a bounded in-process queue drained by a fixed set of
// workers. A callback whose handler fails is redelivered with a capped
// exponential backoff until it succeeds or the queue is stopped; whatever
// is left at stop time is handed to Drain.
type LocalQueue struct {
	events  chan queuedCallback
	workers int
	backoff time.Duration
	handle  Handler
	wg      sync.WaitGroup
	logger  *zap.Logger

	mu       sync.Mutex
	overflow []queuedCallback
}

// NewLocalQueue creates a queue holding up to size callbacks. backoff is the
// first redelivery delay; it doubles per failed attempt.
func NewLocalQueue(size, workers int, backoff time.Duration) *LocalQueue {
	if size <= 0 {
		size = 256
	}
	if workers <= 0 {
		workers = 4
	}
	if backoff <= 0 {
		backoff = defaultRedeliveryBackoff
	}
	return &LocalQueue{
		events:  make(chan queuedCallback, size),
		workers: workers,
		backoff: backoff,
		logger:  util.GetLogger(),
	}
}

// Enqueue waits for room in the queue until ctx is done
func (q *LocalQueue) Enqueue(ctx context.Context, event *models.PaymentCallbackEvent) error {
	select {
	case q.events <- queuedCallback{event: event}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: callback queue full: %v", apperr.ErrRetryable, ctx.Err())
	}
}

// Start runs the workers until ctx is cancelled
func (q *LocalQueue) Start(ctx context.Context, handle Handler) {
	q.logger.Info("Starting callback workers", zap.Int("workers", q.workers))
	q.handle = handle

	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go func() {
			defer q.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case item := <-q.events:
					q.process(ctx, item)
				}
			}
		}()
	}
}

func (q *LocalQueue) process(ctx context.Context, item queuedCallback) {
	err := q.handle(ctx, item.event)
	if err == nil {
		return
	}

	item.attempt++
	delay := q.delay(item.attempt)
	q.logger.Warn("Callback processing failed, redelivering",
		zap.String("provider_request_id", item.event.Outcome.ProviderRequestID),
		zap.Int("attempt", item.attempt),
		zap.Duration("delay", delay),
		zap.Error(err))

	q.wg.Add(1)
	go q.redeliver(ctx, item, delay)
}

func (q *LocalQueue) redeliver(ctx context.Context, item queuedCallback, delay time.Duration) {
	defer q.wg.Done()

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		select {
		case q.events <- item:
			return
		case <-ctx.Done():
		}
	case <-ctx.Done():
	}

	q.mu.Lock()
	q.overflow = append(q.overflow, item)
	q.mu.Unlock()
}

func (q *LocalQueue) delay(attempt int) time.Duration {
	d := q.backoff
	for i := 1; i < attempt && d < maxRedeliveryBackoff; i++ {
		d *= 2
	}
	if d > maxRedeliveryBackoff {
		d = maxRedeliveryBackoff
	}
	return d
}

// Wait blocks until every worker and pending redelivery has stopped
func (q *LocalQueue) Wait() {
	q.wg.Wait()
}

// Drain processes the callbacks still queued after Wait returns, retrying
// failures with backoff until ctx is done. It returns the number of
// callbacks that could not be applied.
func (q *LocalQueue) Drain(ctx context.Context) int {
	q.mu.Lock()
	pending := q.overflow
	q.overflow = nil
	q.mu.Unlock()

collect:
	for {
		select {
		case item := <-q.events:
			pending = append(pending, item)
		default:
			break collect
		}
	}

	if len(pending) > 0 && q.handle != nil {
		q.logger.Info("Draining callback queue", zap.Int("pending", len(pending)))
	}

	dropped := 0
	for _, item := range pending {
		if q.handle == nil || !q.drainOne(ctx, item) {
			dropped++
			q.logger.Error("Callback dropped at shutdown",
				zap.String("provider_request_id", item.event.Outcome.ProviderRequestID),
				zap.String("event_id", item.event.EventID))
		}
	}
	return dropped
}

func (q *LocalQueue) drainOne(ctx context.Context, item queuedCallback) bool {
	for {
		if ctx.Err() != nil {
			return false
		}
		if err := q.handle(ctx, item.event); err == nil {
			return true
		}
		item.attempt++
		select {
		case <-ctx.Done():
			return false
		case <-time.After(q.delay(item.attempt)):
		}
	}
}

// Pending reports the number of queued callbacks
func (q *LocalQueue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events) + len(q.overflow)
}
