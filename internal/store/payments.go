package store

import (
	"context"
	"database/sql"
	"fmt"

	"checkout-engine/internal/apperr"
	"checkout-engine/internal/models"
)

// CreatePaymentIntent inserts a new payment attempt
func (t *pgTx) CreatePaymentIntent(ctx context.Context, intent *models.PaymentIntent) error {
	query := `
		INSERT INTO payment_intents (order_id, provider_request_id, status, amount, phone_number)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at`

	return t.tx.QueryRowxContext(ctx, query,
		intent.OrderID, intent.ProviderRequestID, intent.Status, intent.Amount, intent.PhoneNumber).
		Scan(&intent.ID, &intent.CreatedAt, &intent.UpdatedAt)
}

// GetActivePaymentIntent returns the PENDING/PROCESSING intent of the order, or nil
func (t *pgTx) GetActivePaymentIntent(ctx context.Context, orderID int64) (*models.PaymentIntent, error) {
	var intent models.PaymentIntent
	err := t.tx.GetContext(ctx, &intent, `
		SELECT * FROM payment_intents
		WHERE order_id = $1 AND status IN ($2, $3)
		FOR UPDATE`,
		orderID, models.PaymentStatusPending, models.PaymentStatusProcessing)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &intent, nil
}

// GetPaymentIntentForUpdate locks a payment intent by id
func (t *pgTx) GetPaymentIntentForUpdate(ctx context.Context, intentID int64) (*models.PaymentIntent, error) {
	return t.lockIntent(ctx, "SELECT * FROM payment_intents WHERE id = $1 FOR UPDATE", intentID)
}

// GetPaymentIntentByRequestIDForUpdate locks the intent correlated with a provider request id
func (t *pgTx) GetPaymentIntentByRequestIDForUpdate(ctx context.Context, providerRequestID string) (*models.PaymentIntent, error) {
	return t.lockIntent(ctx,
		"SELECT * FROM payment_intents WHERE provider_request_id = $1 FOR UPDATE", providerRequestID)
}

// GetLatestPaymentIntentForUpdate locks the newest intent of an order
func (t *pgTx) GetLatestPaymentIntentForUpdate(ctx context.Context, orderID int64) (*models.PaymentIntent, error) {
	return t.lockIntent(ctx, `
		SELECT * FROM payment_intents WHERE order_id = $1
		ORDER BY created_at DESC, id DESC LIMIT 1
		FOR UPDATE`, orderID)
}

func (t *pgTx) lockIntent(ctx context.Context, query string, arg interface{}) (*models.PaymentIntent, error) {
	var intent models.PaymentIntent
	err := t.tx.GetContext(ctx, &intent, query, arg)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: payment intent %v", apperr.ErrNotFound, arg)
	}
	if err != nil {
		return nil, err
	}
	return &intent, nil
}

// UpdatePaymentIntent persists status and provider fields
func (t *pgTx) UpdatePaymentIntent(ctx context.Context, intent *models.PaymentIntent) error {
	err := t.tx.QueryRowxContext(ctx, `
		UPDATE payment_intents
		SET provider_request_id = $1, merchant_request_id = $2, receipt_number = $3,
		    status = $4, failure_reason = $5, updated_at = NOW()
		WHERE id = $6
		RETURNING updated_at`,
		intent.ProviderRequestID, intent.MerchantRequestID, intent.ReceiptNumber,
		intent.Status, intent.FailureReason, intent.ID).Scan(&intent.UpdatedAt)
	if err == sql.ErrNoRows {
		return fmt.Errorf("%w: payment intent %d", apperr.ErrNotFound, intent.ID)
	}
	return err
}

// GetPaymentIntentByOrderID retrieves the newest payment intent for an order
func (s *Store) GetPaymentIntentByOrderID(ctx context.Context, orderID int64) (*models.PaymentIntent, error) {
	var intent models.PaymentIntent
	err := s.db.GetContext(ctx, &intent,
		"SELECT * FROM payment_intents WHERE order_id = $1 ORDER BY created_at DESC, id DESC LIMIT 1", orderID)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: payment for order %d", apperr.ErrNotFound, orderID)
	}
	if err != nil {
		return nil, err
	}
	return &intent, nil
}
