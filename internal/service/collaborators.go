package service

import (
	"context"

	"checkout-engine/internal/models"
)

// Catalog exposes the current price, name and active flag of products
type Catalog interface {
	GetProductsByIDs(ctx context.Context, ids []int64) ([]models.Product, error)
}

// PaymentProvider starts a payment on the payer's handset. The outcome
// arrives later through the callback pipeline.
type PaymentProvider interface {
	RequestPayment(ctx context.Context, req models.PaymentRequest) (*models.PaymentInitiation, error)
}

// EventPublisher carries order lifecycle and fulfilment events downstream
type EventPublisher interface {
	PublishOrderEvent(ctx context.Context, event *models.OrderEventMessage) error
	PublishFulfilmentReady(ctx context.Context, event *models.FulfilmentReadyEvent) error
}

// Notifier accepts fire-and-forget user notifications. Implementations must
// not block the caller on delivery.
type Notifier interface {
	Notify(ctx context.Context, n models.NotificationEvent)
}
