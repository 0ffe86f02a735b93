package models

import (
	"fmt"
	"time"

	"checkout-engine/internal/apperr"
)

// InventoryRecord holds the stock counters of one product
type InventoryRecord struct {
	ProductID         int64     `db:"product_id" json:"product_id"`
	TotalQuantity     int       `db:"total_quantity" json:"total_quantity"`
	ReservedQuantity  int       `db:"reserved_quantity" json:"reserved_quantity"`
	LowStockThreshold int       `db:"low_stock_threshold" json:"low_stock_threshold"`
	Version           int64     `db:"version" json:"version"`
	UpdatedAt         time.Time `db:"updated_at" json:"updated_at"`
}

// AvailableStock is the quantity that can still be reserved
func (r *InventoryRecord) AvailableStock() int {
	return r.TotalQuantity - r.ReservedQuantity
}

// IsLowStock reports whether available stock is at or below the threshold
func (r *InventoryRecord) IsLowStock() bool {
	return r.AvailableStock() <= r.LowStockThreshold
}

func checkQuantity(qty int) error {
	if qty <= 0 {
		return fmt.Errorf("%w: quantity must be positive, got %d", apperr.ErrInvalidArgument, qty)
	}
	return nil
}

// Reserve holds qty units against available stock. The record is left
// untouched when it fails.
func (r *InventoryRecord) Reserve(qty int) error {
	if err := checkQuantity(qty); err != nil {
		return err
	}
	if r.AvailableStock() < qty {
		return fmt.Errorf("%w: product %d available=%d requested=%d",
			apperr.ErrInsufficientStock, r.ProductID, r.AvailableStock(), qty)
	}
	r.ReservedQuantity += qty
	return nil
}

// Release drops up to qty units of reservation, flooring at zero. It returns
// the quantity actually released.
func (r *InventoryRecord) Release(qty int) (int, error) {
	if err := checkQuantity(qty); err != nil {
		return 0, err
	}
	released := qty
	if released > r.ReservedQuantity {
		released = r.ReservedQuantity
	}
	r.ReservedQuantity -= released
	return released, nil
}

// Commit spends a reservation: both total and reserved drop by qty. clamped
// is true when fewer than qty units were reserved; reserved is then set to zero.
func (r *InventoryRecord) Commit(qty int) (clamped bool, err error) {
	if err := checkQuantity(qty); err != nil {
		return false, err
	}
	if r.TotalQuantity < qty {
		return false, fmt.Errorf("%w: product %d total=%d commit=%d",
			apperr.ErrInsufficientStock, r.ProductID, r.TotalQuantity, qty)
	}
	r.TotalQuantity -= qty
	if r.ReservedQuantity < qty {
		r.ReservedQuantity = 0
		clamped = true
	} else {
		r.ReservedQuantity -= qty
	}
	return clamped, nil
}

// Restock adds qty units to total stock
func (r *InventoryRecord) Restock(qty int) error {
	if err := checkQuantity(qty); err != nil {
		return err
	}
	r.TotalQuantity += qty
	return nil
}

// Validate checks 0 <= reserved <= total
func (r *InventoryRecord) Validate() error {
	if r.TotalQuantity < 0 || r.ReservedQuantity < 0 || r.ReservedQuantity > r.TotalQuantity {
		return fmt.Errorf("%w: product %d total=%d reserved=%d",
			apperr.ErrInvalidArgument, r.ProductID, r.TotalQuantity, r.ReservedQuantity)
	}
	return nil
}
