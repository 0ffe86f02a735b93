package store

import (
	"context"
	"database/sql"
	"fmt"

	"checkout-engine/internal/apperr"
	"checkout-engine/internal/models"

	"github.com/jmoiron/sqlx"
)

// pgTx implements Tx on top of a sqlx transaction
type pgTx struct {
	tx *sqlx.Tx
}

// LockInventory reads the inventory row with an exclusive row lock
func (t *pgTx) LockInventory(ctx context.Context, productID int64) (*models.InventoryRecord, error) {
	var inv models.InventoryRecord
	err := t.tx.GetContext(ctx, &inv,
		"SELECT * FROM inventory WHERE product_id = $1 FOR UPDATE", productID)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: inventory for product %d", apperr.ErrNotFound, productID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock inventory: %w", err)
	}
	return &inv, nil
}

// UpdateInventory writes the counters back, compare-and-swapping on version
func (t *pgTx) UpdateInventory(ctx context.Context, rec *models.InventoryRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}

	var version int64
	err := t.tx.QueryRowxContext(ctx, `
		UPDATE inventory
		SET total_quantity = $1, reserved_quantity = $2, version = version + 1, updated_at = NOW()
		WHERE product_id = $3 AND version = $4
		RETURNING version`,
		rec.TotalQuantity, rec.ReservedQuantity, rec.ProductID, rec.Version).Scan(&version)
	if err == sql.ErrNoRows {
		return fmt.Errorf("%w: inventory version moved for product %d", apperr.ErrRetryable, rec.ProductID)
	}
	if err != nil {
		return fmt.Errorf("failed to update inventory: %w", err)
	}

	rec.Version = version
	return nil
}

// CreateOrder inserts the order and its lines
func (t *pgTx) CreateOrder(ctx context.Context, order *models.Order) error {
	query := `
		INSERT INTO orders (order_number, user_id, total_amount, status, stock_state, phone_number, idempotency_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at`

	err := t.tx.QueryRowxContext(ctx, query,
		order.OrderNumber, order.UserID, order.TotalAmount, order.Status, order.StockState,
		order.PhoneNumber, order.IdempotencyKey).
		Scan(&order.ID, &order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}

	for i := range order.Items {
		item := &order.Items[i]
		item.OrderID = order.ID
		err := t.tx.GetContext(ctx, &item.ID, `
			INSERT INTO order_items (order_id, line_no, product_id, product_name, quantity, unit_price)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id`,
			item.OrderID, item.LineNo, item.ProductID, item.ProductName, item.Quantity, item.UnitPrice)
		if err != nil {
			return fmt.Errorf("failed to create order item: %w", err)
		}
	}
	return nil
}

// GetOrderForUpdate loads the order with its lines and locks the order row
func (t *pgTx) GetOrderForUpdate(ctx context.Context, orderID int64) (*models.Order, error) {
	return getOrder(ctx, t.tx, "SELECT * FROM orders WHERE id = $1 FOR UPDATE", orderID)
}

// UpdateOrderStatus persists status, stock state and reason
func (t *pgTx) UpdateOrderStatus(ctx context.Context, order *models.Order) error {
	err := t.tx.QueryRowxContext(ctx, `
		UPDATE orders SET status = $1, stock_state = $2, status_reason = $3, updated_at = NOW()
		WHERE id = $4
		RETURNING updated_at`,
		order.Status, order.StockState, order.StatusReason, order.ID).Scan(&order.UpdatedAt)
	if err == sql.ErrNoRows {
		return fmt.Errorf("%w: order %d", apperr.ErrNotFound, order.ID)
	}
	return err
}

// DeleteOrder removes the order; lines and payment intents cascade
func (t *pgTx) DeleteOrder(ctx context.Context, orderID int64) error {
	res, err := t.tx.ExecContext(ctx, "DELETE FROM orders WHERE id = $1", orderID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: order %d", apperr.ErrNotFound, orderID)
	}
	return nil
}

// GetOrder retrieves an order with its lines
func (s *Store) GetOrder(ctx context.Context, orderID int64) (*models.Order, error) {
	return getOrder(ctx, s.db, "SELECT * FROM orders WHERE id = $1", orderID)
}

// GetOrderByIdempotencyKey retrieves an order by checkout idempotency key
func (s *Store) GetOrderByIdempotencyKey(ctx context.Context, key string) (*models.Order, error) {
	return getOrder(ctx, s.db, "SELECT * FROM orders WHERE idempotency_key = $1", key)
}

// GetOrdersByUserID retrieves orders for a user, newest first, without lines
func (s *Store) GetOrdersByUserID(ctx context.Context, userID int64) ([]models.Order, error) {
	var orders []models.Order
	err := s.db.SelectContext(ctx, &orders,
		"SELECT * FROM orders WHERE user_id = $1 ORDER BY created_at DESC", userID)
	return orders, err
}

func getOrder(ctx context.Context, q sqlx.QueryerContext, query string, args ...interface{}) (*models.Order, error) {
	var order models.Order
	err := sqlx.GetContext(ctx, q, &order, query, args...)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: order", apperr.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	var items []models.OrderItem
	err = sqlx.SelectContext(ctx, q, &items,
		"SELECT * FROM order_items WHERE order_id = $1 ORDER BY line_no", order.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load order items: %w", err)
	}
	order.Items = items
	return &order, nil
}
