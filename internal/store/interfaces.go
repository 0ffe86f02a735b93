package store

import (
	"context"

	"checkout-engine/internal/models"
)

// Tx is the unit of work the engine mutates state through. Every row read
// with a ForUpdate/Lock method stays exclusively locked until the transaction
// ends.
type Tx interface {
	LockInventory(ctx context.Context, productID int64) (*models.InventoryRecord, error)
	UpdateInventory(ctx context.Context, rec *models.InventoryRecord) error

	CreateOrder(ctx context.Context, order *models.Order) error
	GetOrderForUpdate(ctx context.Context, orderID int64) (*models.Order, error)
	UpdateOrderStatus(ctx context.Context, order *models.Order) error
	DeleteOrder(ctx context.Context, orderID int64) error

	CreatePaymentIntent(ctx context.Context, intent *models.PaymentIntent) error
	GetActivePaymentIntent(ctx context.Context, orderID int64) (*models.PaymentIntent, error)
	GetPaymentIntentForUpdate(ctx context.Context, intentID int64) (*models.PaymentIntent, error)
	GetPaymentIntentByRequestIDForUpdate(ctx context.Context, providerRequestID string) (*models.PaymentIntent, error)
	GetLatestPaymentIntentForUpdate(ctx context.Context, orderID int64) (*models.PaymentIntent, error)
	UpdatePaymentIntent(ctx context.Context, intent *models.PaymentIntent) error
}

// Repository is the relational store behind the engine
type Repository interface {
	InTx(ctx context.Context, fn func(tx Tx) error) error

	GetOrder(ctx context.Context, orderID int64) (*models.Order, error)
	GetOrderByIdempotencyKey(ctx context.Context, key string) (*models.Order, error)
	GetOrdersByUserID(ctx context.Context, userID int64) ([]models.Order, error)
	GetPaymentIntentByOrderID(ctx context.Context, orderID int64) (*models.PaymentIntent, error)

	GetInventory(ctx context.Context, productID int64) (*models.InventoryRecord, error)
	CreateInventory(ctx context.Context, rec *models.InventoryRecord) error

	GetProductsByIDs(ctx context.Context, ids []int64) ([]models.Product, error)
}
