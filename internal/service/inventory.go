package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"checkout-engine/internal/apperr"
	"checkout-engine/internal/models"
	"checkout-engine/internal/store"
	"checkout-engine/internal/util"

	"go.uber.org/zap"
)

// InventoryLedger applies reserve/release/commit/restock to inventory
// records. Every mutation goes through a row locked by the surrounding
// transaction, so the read-check-write on a product is atomic.
type InventoryLedger struct {
	repo   store.Repository
	logger *zap.Logger
}

// NewInventoryLedger creates a new inventory ledger
func NewInventoryLedger(repo store.Repository) *InventoryLedger {
	return &InventoryLedger{
		repo:   repo,
		logger: util.GetLogger(),
	}
}

// Reserve holds qty units of a product
func (l *InventoryLedger) Reserve(ctx context.Context, tx store.Tx, productID int64, qty int) (*models.InventoryRecord, error) {
	rec, err := tx.LockInventory(ctx, productID)
	if err != nil {
		return nil, err
	}
	if err := rec.Reserve(qty); err != nil {
		return nil, err
	}
	if err := tx.UpdateInventory(ctx, rec); err != nil {
		return nil, err
	}

	util.InventoryOperationsTotal.WithLabelValues("reserve").Inc()
	return rec, nil
}

// Release drops up to qty units of reservation. Releasing more than is
// reserved is not an error.
func (l *InventoryLedger) Release(ctx context.Context, tx store.Tx, productID int64, qty int) (*models.InventoryRecord, error) {
	rec, err := tx.LockInventory(ctx, productID)
	if err != nil {
		return nil, err
	}
	released, err := rec.Release(qty)
	if err != nil {
		return nil, err
	}
	if released < qty {
		l.logger.Warn("Released less than requested",
			zap.Int64("product_id", productID),
			zap.Int("requested", qty),
			zap.Int("released", released))
	}
	if released == 0 {
		return rec, nil
	}
	if err := tx.UpdateInventory(ctx, rec); err != nil {
		return nil, err
	}

	util.InventoryOperationsTotal.WithLabelValues("release").Inc()
	return rec, nil
}

// Commit spends a reservation after payment succeeded
func (l *InventoryLedger) Commit(ctx context.Context, tx store.Tx, productID int64, qty int) (*models.InventoryRecord, error) {
	rec, err := tx.LockInventory(ctx, productID)
	if err != nil {
		return nil, err
	}
	clamped, err := rec.Commit(qty)
	if err != nil {
		return nil, err
	}
	if clamped {
		util.InventoryInconsistenciesTotal.Inc()
		l.logger.Error("Inventory inconsistency: committed more than reserved",
			zap.Int64("product_id", productID),
			zap.Int("quantity", qty))
	}
	if err := tx.UpdateInventory(ctx, rec); err != nil {
		return nil, err
	}

	util.InventoryOperationsTotal.WithLabelValues("commit").Inc()
	return rec, nil
}

// Restock adds qty units to total stock
func (l *InventoryLedger) Restock(ctx context.Context, tx store.Tx, productID int64, qty int) (*models.InventoryRecord, error) {
	rec, err := tx.LockInventory(ctx, productID)
	if err != nil {
		return nil, err
	}
	if err := rec.Restock(qty); err != nil {
		return nil, err
	}
	if err := tx.UpdateInventory(ctx, rec); err != nil {
		return nil, err
	}

	util.InventoryOperationsTotal.WithLabelValues("restock").Inc()
	return rec, nil
}

// ReserveLines reserves every line in ascending product order. If a line
// fails, the lines already reserved are released before the error is
// returned. The records left at or below their low-stock threshold are
// returned on success.
func (l *InventoryLedger) ReserveLines(ctx context.Context, tx store.Tx, items []models.OrderItem) ([]models.InventoryRecord, error) {
	start := time.Now()
	defer func() {
		util.InventoryReserveLatency.Observe(time.Since(start).Seconds())
	}()

	lines := sortedLines(items)
	var low []models.InventoryRecord

	for i, item := range lines {
		rec, err := l.Reserve(ctx, tx, item.ProductID, item.Quantity)
		if err != nil {
			util.InventoryReservationsFailed.WithLabelValues(apperr.Code(err)).Inc()
			l.compensate(ctx, tx, lines[:i])
			return nil, fmt.Errorf("failed to reserve product %d: %w", item.ProductID, err)
		}
		if rec.IsLowStock() {
			low = append(low, *rec)
		}
	}

	return low, nil
}

func (l *InventoryLedger) compensate(ctx context.Context, tx store.Tx, reserved []models.OrderItem) {
	for _, item := range reserved {
		if _, err := l.Release(ctx, tx, item.ProductID, item.Quantity); err != nil {
			l.logger.Error("Failed to compensate reservation",
				zap.Int64("product_id", item.ProductID),
				zap.Error(err))
		}
	}
}

// Apply runs action against every line and returns the records that end at
// or below their threshold
func (l *InventoryLedger) Apply(ctx context.Context, tx store.Tx, action models.StockAction, items []models.OrderItem) ([]models.InventoryRecord, error) {
	var op func(context.Context, store.Tx, int64, int) (*models.InventoryRecord, error)
	switch action {
	case models.StockActionNone:
		return nil, nil
	case models.StockActionCommit:
		op = l.Commit
	case models.StockActionRelease:
		op = l.Release
	case models.StockActionRestock:
		op = l.Restock
	default:
		return nil, fmt.Errorf("%w: unknown stock action %q", apperr.ErrInvalidArgument, action)
	}

	var low []models.InventoryRecord
	for _, item := range sortedLines(items) {
		rec, err := op(ctx, tx, item.ProductID, item.Quantity)
		if err != nil {
			return nil, fmt.Errorf("failed to %s product %d: %w", action, item.ProductID, err)
		}
		if action == models.StockActionCommit && rec.IsLowStock() {
			low = append(low, *rec)
		}
	}
	return low, nil
}

// RestockProduct adds supplier stock to a product in its own transaction
func (l *InventoryLedger) RestockProduct(ctx context.Context, productID int64, qty int) (*models.InventoryRecord, error) {
	ctx, span := util.StartSpan(ctx, "InventoryLedger.RestockProduct")
	defer span.End()

	var rec *models.InventoryRecord
	err := l.repo.InTx(ctx, func(tx store.Tx) error {
		var err error
		rec, err = l.Restock(ctx, tx, productID, qty)
		return err
	})
	if err != nil {
		return nil, err
	}

	l.logger.Info("Product restocked",
		zap.Int64("product_id", productID),
		zap.Int("quantity", qty),
		zap.Int("total", rec.TotalQuantity))
	return rec, nil
}

// StockProduct creates the inventory record of a product stocked for the first time
func (l *InventoryLedger) StockProduct(ctx context.Context, productID int64, total, lowStockThreshold int) (*models.InventoryRecord, error) {
	ctx, span := util.StartSpan(ctx, "InventoryLedger.StockProduct")
	defer span.End()

	if lowStockThreshold < 0 {
		return nil, fmt.Errorf("%w: low stock threshold must not be negative", apperr.ErrInvalidArgument)
	}

	rec := &models.InventoryRecord{
		ProductID:         productID,
		TotalQuantity:     total,
		LowStockThreshold: lowStockThreshold,
	}
	if err := l.repo.CreateInventory(ctx, rec); err != nil {
		return nil, err
	}

	l.logger.Info("Product stocked",
		zap.Int64("product_id", productID),
		zap.Int("total", total))
	return rec, nil
}

// GetInventory retrieves inventory for a product
func (l *InventoryLedger) GetInventory(ctx context.Context, productID int64) (*models.InventoryRecord, error) {
	return l.repo.GetInventory(ctx, productID)
}

func sortedLines(items []models.OrderItem) []models.OrderItem {
	lines := make([]models.OrderItem, len(items))
	copy(lines, items)
	sort.SliceStable(lines, func(i, j int) bool { return lines[i].ProductID < lines[j].ProductID })
	return lines
}
