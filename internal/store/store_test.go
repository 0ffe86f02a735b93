package store

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"checkout-engine/internal/apperr"
	"checkout-engine/internal/idempotency"
	"checkout-engine/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("Integration test - requires TEST_DATABASE_URL")
	}

	s, err := NewStore(url)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func seedProduct(t *testing.T, s *Store, total int) int64 {
	t.Helper()

	var id int64
	err := s.db.Get(&id,
		"INSERT INTO products (sku, name, price, active) VALUES ($1, 'Test', 100, TRUE) RETURNING id",
		"SKU-"+uuid.NewString())
	require.NoError(t, err)

	require.NoError(t, s.CreateInventory(context.Background(),
		&models.InventoryRecord{ProductID: id, TotalQuantity: total, LowStockThreshold: 1}))
	return id
}

func TestCreateOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	productID := seedProduct(t, s, 10)

	order := &models.Order{
		OrderNumber: "ORD-" + uuid.NewString(),
		UserID:      123,
		TotalAmount: 200,
		Status:      models.OrderStatusPending,
		StockState:  models.StockReserved,
		Items: []models.OrderItem{
			{LineNo: 1, ProductID: productID, ProductName: "Test", Quantity: 2, UnitPrice: 100},
		},
	}

	err := s.InTx(ctx, func(tx Tx) error { return tx.CreateOrder(ctx, order) })
	require.NoError(t, err)
	assert.NotZero(t, order.ID)

	retrieved, err := s.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.UserID, retrieved.UserID)
	assert.Equal(t, order.TotalAmount, retrieved.TotalAmount)
	require.Len(t, retrieved.Items, 1)
	assert.Equal(t, 2, retrieved.Items[0].Quantity)
}

func TestIdempotency(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	key := "idempotent-key-" + uuid.NewString()
	newOrder := func() *models.Order {
		return &models.Order{
			OrderNumber:    "ORD-" + uuid.NewString(),
			UserID:         123,
			TotalAmount:    1000,
			Status:         models.OrderStatusPending,
			StockState:     models.StockReserved,
			IdempotencyKey: &key,
		}
	}

	err := s.InTx(ctx, func(tx Tx) error { return tx.CreateOrder(ctx, newOrder()) })
	require.NoError(t, err)

	err = s.InTx(ctx, func(tx Tx) error { return tx.CreateOrder(ctx, newOrder()) })
	assert.ErrorIs(t, err, apperr.ErrConflict)
}

func TestInventoryVersionCheck(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	productID := seedProduct(t, s, 5)

	err := s.InTx(ctx, func(tx Tx) error {
		rec, err := tx.LockInventory(ctx, productID)
		if err != nil {
			return err
		}
		if err := rec.Reserve(2); err != nil {
			return err
		}
		return tx.UpdateInventory(ctx, rec)
	})
	require.NoError(t, err)

	rec, err := s.GetInventory(ctx, productID)
	require.NoError(t, err)
	assert.Equal(t, 2, rec.ReservedQuantity)
	assert.Equal(t, int64(2), rec.Version)

	stale := *rec
	stale.Version = 1
	err = s.InTx(ctx, func(tx Tx) error { return tx.UpdateInventory(ctx, &stale) })
	assert.ErrorIs(t, err, apperr.ErrRetryable)
}

func TestCallbackStoreClaim(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	cs := NewCallbackStore(s)
	key := "ws_CO_" + uuid.NewString()
	now := time.Now().UTC()

	state, err := cs.Claim(ctx, key, now, idempotency.DefaultInFlightTTL)
	require.NoError(t, err)
	assert.Equal(t, idempotency.ClaimAcquired, state)

	state, err = cs.Claim(ctx, key, now, idempotency.DefaultInFlightTTL)
	require.NoError(t, err)
	assert.Equal(t, idempotency.ClaimInFlight, state)

	require.NoError(t, cs.Complete(ctx, key, now, idempotency.DefaultRetention))

	state, err = cs.Claim(ctx, key, now, idempotency.DefaultInFlightTTL)
	require.NoError(t, err)
	assert.Equal(t, idempotency.ClaimCompleted, state)
}

func TestMapError_PassesThroughNonDriverErrors(t *testing.T) {
	err := errors.New("plain")
	assert.Equal(t, err, mapError(err))
	assert.NoError(t, mapError(nil))
}
