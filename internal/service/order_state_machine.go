package service

import (
	"context"

	"checkout-engine/internal/models"
	"checkout-engine/internal/store"
	"checkout-engine/internal/util"

	"go.uber.org/zap"
)

// Transition describes an applied order status change
type Transition struct {
	From     models.OrderStatus
	To       models.OrderStatus
	Action   models.StockAction
	LowStock []models.InventoryRecord
}

// OrderStateMachine moves orders between statuses and runs the inventory
// operation each move requires in the same transaction
type OrderStateMachine struct {
	ledger *InventoryLedger
	logger *zap.Logger
}

// NewOrderStateMachine creates a new order state machine
func NewOrderStateMachine(ledger *InventoryLedger) *OrderStateMachine {
	return &OrderStateMachine{
		ledger: ledger,
		logger: util.GetLogger(),
	}
}

// Apply fires event on order. The order must have been loaded for update
// through tx. On error nothing has been written and the caller must roll
// the transaction back.
func (m *OrderStateMachine) Apply(ctx context.Context, tx store.Tx, order *models.Order, event models.OrderEvent, reason string) (*Transition, error) {
	ctx, span := util.StartSpan(ctx, "OrderStateMachine.Apply")
	defer span.End()

	to, err := models.NextStatus(order.Status, event)
	if err != nil {
		return nil, err
	}

	action, stockState := models.StockActionFor(to, order.StockState)
	low, err := m.ledger.Apply(ctx, tx, action, order.Items)
	if err != nil {
		return nil, err
	}

	t := &Transition{From: order.Status, To: to, Action: action, LowStock: low}

	order.Status = to
	order.StockState = stockState
	order.StatusReason = reason
	if err := tx.UpdateOrderStatus(ctx, order); err != nil {
		return nil, err
	}

	m.logger.Info("Order status changed",
		zap.Int64("order_id", order.ID),
		zap.String("from", string(t.From)),
		zap.String("to", string(t.To)),
		zap.String("stock_action", string(action)),
		zap.String("reason", reason))

	return t, nil
}
