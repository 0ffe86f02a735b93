package callback

import (
	"context"
	"errors"
	"fmt"
	"time"

	"checkout-engine/internal/apperr"
	"checkout-engine/internal/idempotency"
	"checkout-engine/internal/models"
	"checkout-engine/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Kind distinguishes the provider's result and timeout deliveries
type Kind string

// Callback kinds
const (
	KindResult  Kind = "result"
	KindTimeout Kind = "timeout"
)

// OutcomeApplier drives the payment intent and its order from an outcome
type OutcomeApplier interface {
	ApplyPaymentOutcome(ctx context.Context, outcome models.PaymentOutcome) error
}

// Options tunes claim lifetimes and retries
type Options struct {
	InFlightTTL  time.Duration
	Retention    time.Duration
	MaxAttempts  int
	RetryBackoff time.Duration
}

// Pipeline authenticates provider callbacks, queues them, and processes
// each provider request id at most once
type Pipeline struct {
	origins  *OriginPolicy
	verifier *Verifier
	claims   idempotency.Store
	applier  OutcomeApplier
	queue    Queue
	opts     Options
	logger   *zap.Logger
	now      func() time.Time
}

// NewPipeline wires the pipeline
func NewPipeline(
	origins *OriginPolicy,
	verifier *Verifier,
	claims idempotency.Store,
	applier OutcomeApplier,
	queue Queue,
	opts Options,
) *Pipeline {
	if opts.InFlightTTL <= 0 {
		opts.InFlightTTL = idempotency.DefaultInFlightTTL
	}
	if opts.Retention <= 0 {
		opts.Retention = idempotency.DefaultRetention
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = 100 * time.Millisecond
	}
	return &Pipeline{
		origins:  origins,
		verifier: verifier,
		claims:   claims,
		applier:  applier,
		queue:    queue,
		opts:     opts,
		logger:   util.GetLogger(),
		now:      time.Now,
	}
}

// Accept runs the synchronous checks on a delivery and queues it. body must
// be the exact bytes received. Rejections are logged as security events;
// the caller answers the provider generically either way.
func (p *Pipeline) Accept(ctx context.Context, kind Kind, remoteAddr string, body []byte, signature string) error {
	ctx, span := util.StartSpan(ctx, "callback.Pipeline.Accept")
	defer span.End()

	if !p.origins.Allowed(remoteAddr) {
		p.reject(kind, "origin_not_allowed", remoteAddr, "", nil)
		return fmt.Errorf("%w: origin %s not allowed", apperr.ErrUnauthorized, remoteAddr)
	}

	if err := p.verifier.Verify(body, signature); err != nil {
		p.reject(kind, "bad_signature", remoteAddr, "", err)
		return err
	}

	var (
		outcome models.PaymentOutcome
		err     error
	)
	if kind == KindTimeout {
		outcome, err = ParseTimeout(body)
	} else {
		outcome, err = ParseResult(body)
	}
	if err != nil {
		util.CallbacksReceivedTotal.WithLabelValues(string(kind), "malformed").Inc()
		p.logger.Warn("Malformed payment callback",
			zap.String("kind", string(kind)),
			zap.String("remote_addr", remoteAddr),
			zap.String("provider_request_id", outcome.ProviderRequestID),
			zap.Error(err))
		return err
	}
	outcome.RemoteAddr = remoteAddr

	event := &models.PaymentCallbackEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypePaymentCallback,
			Timestamp: p.now(),
		},
		Outcome: outcome,
	}
	if err := p.queue.Enqueue(ctx, event); err != nil {
		util.CallbacksReceivedTotal.WithLabelValues(string(kind), "enqueue_failed").Inc()
		p.logger.Error("Failed to enqueue payment callback",
			zap.String("provider_request_id", outcome.ProviderRequestID),
			zap.Error(err))
		if errors.Is(err, apperr.ErrRetryable) {
			return err
		}
		return fmt.Errorf("%w: %v", apperr.ErrRetryable, err)
	}

	util.CallbacksReceivedTotal.WithLabelValues(string(kind), "accepted").Inc()
	p.logger.Info("Payment callback accepted",
		zap.String("kind", string(kind)),
		zap.String("provider_request_id", outcome.ProviderRequestID),
		zap.Bool("success", outcome.Success))
	return nil
}

func (p *Pipeline) reject(kind Kind, reason, remoteAddr, requestID string, err error) {
	util.CallbacksReceivedTotal.WithLabelValues(string(kind), "rejected").Inc()
	util.CallbacksRejectedTotal.WithLabelValues(reason).Inc()

	fields := []zap.Field{
		zap.String("security_event", reason),
		zap.String("kind", string(kind)),
		zap.String("remote_addr", remoteAddr),
	}
	if requestID != "" {
		fields = append(fields, zap.String("provider_request_id", requestID))
	}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	p.logger.Warn("Payment callback rejected", fields...)
}

// Process applies a queued callback once per provider request id. Duplicate
// and concurrent deliveries of the same id return nil without effect. A
// failure that may succeed later releases the claim and is returned so the
// delivery can be retried.
func (p *Pipeline) Process(ctx context.Context, event *models.PaymentCallbackEvent) error {
	ctx, span := util.StartSpan(ctx, "callback.Pipeline.Process")
	defer span.End()

	start := time.Now()
	defer func() {
		util.CallbackProcessingLatency.Observe(time.Since(start).Seconds())
	}()

	outcome := event.Outcome
	key := outcome.ProviderRequestID
	log := p.logger.With(zap.String("provider_request_id", key), zap.String("event_id", event.EventID))

	state, err := p.claims.Claim(ctx, key, p.now(), p.opts.InFlightTTL)
	if err != nil {
		err = fmt.Errorf("%w: claim callback: %v", apperr.ErrRetryable, err)
		util.RecordError(span, err)
		return err
	}
	if state != idempotency.ClaimAcquired {
		util.DuplicateCallbacksTotal.Inc()
		log.Info("Duplicate payment callback skipped", zap.String("claim", state.String()))
		return nil
	}

	err = p.applyWithRetry(ctx, outcome)

	switch {
	case err == nil:
		log.Info("Payment callback applied", zap.Bool("success", outcome.Success))
	case errors.Is(err, apperr.ErrAlreadyProcessed):
		util.DuplicateCallbacksTotal.Inc()
		log.Info("Payment already resolved, callback dropped")
	case errors.Is(err, apperr.ErrNotFound):
		log.Warn("No payment matches callback, dropped", zap.Error(err))
	case errors.Is(err, apperr.ErrAmountMismatch):
		p.reject(KindResult, "amount_mismatch", outcome.RemoteAddr, key, err)
		log.Error("Payment callback amount mismatch",
			zap.String("security_event", "amount_mismatch"),
			zap.Int64("reported_amount", outcome.Amount),
			zap.String("receipt_number", outcome.ReceiptNumber),
			zap.String("phone_number", outcome.PhoneNumber))
	case isFinal(err):
		util.RecordError(span, err)
		log.Error("Payment callback could not be applied", zap.Error(err))
	default:
		if abandonErr := p.claims.Abandon(ctx, key); abandonErr != nil {
			log.Error("Failed to release callback claim", zap.Error(abandonErr))
		}
		util.RecordError(span, err)
		return err
	}

	if err := p.claims.Complete(ctx, key, p.now(), p.opts.Retention); err != nil {
		log.Error("Failed to record processed callback", zap.Error(err))
	}
	return nil
}

func (p *Pipeline) applyWithRetry(ctx context.Context, outcome models.PaymentOutcome) error {
	var err error
	for attempt := 1; attempt <= p.opts.MaxAttempts; attempt++ {
		err = p.applier.ApplyPaymentOutcome(ctx, outcome)
		if !errors.Is(err, apperr.ErrRetryable) {
			return err
		}
		if attempt == p.opts.MaxAttempts {
			break
		}

		p.logger.Warn("Retrying payment callback",
			zap.String("provider_request_id", outcome.ProviderRequestID),
			zap.Int("attempt", attempt),
			zap.Error(err))
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", apperr.ErrRetryable, ctx.Err())
		case <-time.After(time.Duration(attempt) * p.opts.RetryBackoff):
		}
	}
	return err
}

// isFinal reports whether retrying err cannot change the result
func isFinal(err error) bool {
	return errors.Is(err, apperr.ErrInvalidArgument) ||
		errors.Is(err, apperr.ErrConflict) ||
		errors.Is(err, apperr.ErrInsufficientStock)
}
