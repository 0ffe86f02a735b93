package service

import (
	"context"
	"errors"
	"fmt"

	"checkout-engine/internal/apperr"
	"checkout-engine/internal/models"
	"checkout-engine/internal/store"
	"checkout-engine/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const pendingRequestPrefix = "pending-"

// PaymentTracker keeps the payment intent of each order. At most one intent
// per order is PENDING or PROCESSING at a time, and a terminal intent is
// never reopened.
type PaymentTracker struct {
	logger *zap.Logger
}

// NewPaymentTracker creates a new payment tracker
func NewPaymentTracker() *PaymentTracker {
	return &PaymentTracker{logger: util.GetLogger()}
}

// Initiate opens a payment intent for a pending order. The intent carries a
// placeholder request id until the provider assigns one.
func (p *PaymentTracker) Initiate(ctx context.Context, tx store.Tx, order *models.Order, amount int64, phone string) (*models.PaymentIntent, error) {
	if order.Status != models.OrderStatusPending {
		return nil, fmt.Errorf("%w: order %d is %s, payment needs a pending order",
			apperr.ErrConflict, order.ID, order.Status)
	}
	if amount != order.TotalAmount {
		return nil, fmt.Errorf("%w: payment amount %d does not equal order total %d",
			apperr.ErrConflict, amount, order.TotalAmount)
	}

	active, err := tx.GetActivePaymentIntent(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	if active != nil {
		return nil, fmt.Errorf("%w: order %d already has payment %d in %s",
			apperr.ErrConflict, order.ID, active.ID, active.Status)
	}

	intent := &models.PaymentIntent{
		OrderID:           order.ID,
		ProviderRequestID: pendingRequestPrefix + uuid.New().String(),
		Status:            models.PaymentStatusPending,
		Amount:            amount,
		PhoneNumber:       phone,
	}
	if err := tx.CreatePaymentIntent(ctx, intent); err != nil {
		return nil, fmt.Errorf("failed to create payment intent: %w", err)
	}

	return intent, nil
}

// RecordProviderRequest stores the provider's request id on a pending
// intent and moves it to PROCESSING
func (p *PaymentTracker) RecordProviderRequest(ctx context.Context, tx store.Tx, intentID int64, init *models.PaymentInitiation) (*models.PaymentIntent, error) {
	if init == nil || init.ProviderRequestID == "" {
		return nil, fmt.Errorf("%w: provider returned no request id", apperr.ErrInvalidArgument)
	}

	intent, err := tx.GetPaymentIntentForUpdate(ctx, intentID)
	if err != nil {
		return nil, err
	}
	if intent.Status != models.PaymentStatusPending {
		return nil, fmt.Errorf("%w: payment %d is %s", apperr.ErrConflict, intent.ID, intent.Status)
	}

	intent.ProviderRequestID = init.ProviderRequestID
	intent.MerchantRequestID = init.MerchantRequestID
	intent.Status = models.PaymentStatusProcessing
	if err := tx.UpdatePaymentIntent(ctx, intent); err != nil {
		return nil, err
	}
	return intent, nil
}

// Fail marks an active intent FAILED
func (p *PaymentTracker) Fail(ctx context.Context, tx store.Tx, intentID int64, reason string) (*models.PaymentIntent, error) {
	intent, err := tx.GetPaymentIntentForUpdate(ctx, intentID)
	if err != nil {
		return nil, err
	}
	if intent.Status.IsTerminal() {
		return intent, fmt.Errorf("%w: payment %d is %s", apperr.ErrAlreadyProcessed, intent.ID, intent.Status)
	}

	intent.Status = models.PaymentStatusFailed
	intent.FailureReason = reason
	if err := tx.UpdatePaymentIntent(ctx, intent); err != nil {
		return nil, err
	}
	return intent, nil
}

// Resolve records the provider's outcome on the intent it names. A success
// whose amount differs from the intent is rejected with ErrAmountMismatch
// and leaves the intent untouched.
func (p *PaymentTracker) Resolve(ctx context.Context, tx store.Tx, outcome models.PaymentOutcome) (*models.PaymentIntent, error) {
	intent, err := tx.GetPaymentIntentByRequestIDForUpdate(ctx, outcome.ProviderRequestID)
	if err != nil {
		return nil, err
	}
	if intent.Status.IsTerminal() {
		return intent, fmt.Errorf("%w: payment %d is %s", apperr.ErrAlreadyProcessed, intent.ID, intent.Status)
	}

	if outcome.Success {
		if outcome.Amount != intent.Amount {
			return intent, fmt.Errorf("%w: provider reported %d, payment %d expects %d",
				apperr.ErrAmountMismatch, outcome.Amount, intent.ID, intent.Amount)
		}
		intent.Status = models.PaymentStatusSuccessful
		intent.ReceiptNumber = outcome.ReceiptNumber
		intent.FailureReason = ""
	} else {
		intent.Status = models.PaymentStatusFailed
		intent.FailureReason = outcome.ResultDesc
	}

	if err := tx.UpdatePaymentIntent(ctx, intent); err != nil {
		return nil, err
	}
	return intent, nil
}

// Refund moves the order's successful payment to REFUNDED. Orders without a
// successful payment are left alone.
func (p *PaymentTracker) Refund(ctx context.Context, tx store.Tx, orderID int64) (*models.PaymentIntent, error) {
	intent, err := tx.GetLatestPaymentIntentForUpdate(ctx, orderID)
	if errors.Is(err, apperr.ErrNotFound) {
		p.logger.Warn("Refund of an order without payment", zap.Int64("order_id", orderID))
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if intent.Status != models.PaymentStatusSuccessful {
		p.logger.Warn("Refund without a successful payment",
			zap.Int64("order_id", orderID),
			zap.String("payment_status", string(intent.Status)))
		return intent, nil
	}

	intent.Status = models.PaymentStatusRefunded
	if err := tx.UpdatePaymentIntent(ctx, intent); err != nil {
		return nil, err
	}
	return intent, nil
}
