package models

import (
	"fmt"

	"checkout-engine/internal/apperr"
)

// OrderStatus is the lifecycle state of an order
type OrderStatus string

// Order statuses
const (
	OrderStatusPending        OrderStatus = "PENDING"
	OrderStatusConfirmed      OrderStatus = "CONFIRMED"
	OrderStatusProcessing     OrderStatus = "PROCESSING"
	OrderStatusShipped        OrderStatus = "SHIPPED"
	OrderStatusOutForDelivery OrderStatus = "OUT_FOR_DELIVERY"
	OrderStatusDelivered      OrderStatus = "DELIVERED"
	OrderStatusCancelled      OrderStatus = "CANCELLED"
	OrderStatusReturned       OrderStatus = "RETURNED"
	OrderStatusRefunded       OrderStatus = "REFUNDED"
	OrderStatusFailed         OrderStatus = "FAILED"
)

// IsTerminal reports whether no further transition is expected. DELIVERED
// is terminal but still accepts a return or a refund.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderStatusCancelled, OrderStatusDelivered, OrderStatusReturned,
		OrderStatusRefunded, OrderStatusFailed:
		return true
	}
	return false
}

func (s OrderStatus) String() string {
	return string(s)
}

// StockState records what has happened to the stock an order reserved
type StockState string

// Stock states
const (
	StockReserved  StockState = "RESERVED"
	StockCommitted StockState = "COMMITTED"
	StockReleased  StockState = "RELEASED"
	StockRestocked StockState = "RESTOCKED"
)

// IsResolved reports whether the reservation has reached its final disposition
func (s StockState) IsResolved() bool {
	return s == StockCommitted || s == StockReleased || s == StockRestocked
}

// OrderEvent is a trigger for an order status transition
type OrderEvent string

// Order events
const (
	EventPaymentSucceeded OrderEvent = "payment_succeeded"
	EventPaymentFailed    OrderEvent = "payment_failed"
	EventCheckoutAborted  OrderEvent = "checkout_aborted"
	EventCustomerCancel   OrderEvent = "customer_cancel"
	EventAdminCancel      OrderEvent = "admin_cancel"
	EventStartProcessing  OrderEvent = "start_processing"
	EventShip             OrderEvent = "ship"
	EventOutForDelivery   OrderEvent = "out_for_delivery"
	EventDeliver          OrderEvent = "deliver"
	EventReturn           OrderEvent = "return"
	EventRefund           OrderEvent = "refund"
)

// StockAction is the inventory ledger operation paired with a transition
type StockAction string

// Stock actions
const (
	StockActionNone    StockAction = "none"
	StockActionCommit  StockAction = "commit"
	StockActionRelease StockAction = "release"
	StockActionRestock StockAction = "restock"
)

type transition struct {
	from []OrderStatus
	to   OrderStatus
}

// transitions lists, per event, the statuses it may fire from
var transitions = map[OrderEvent]transition{
	EventPaymentSucceeded: {from: []OrderStatus{OrderStatusPending}, to: OrderStatusConfirmed},
	EventPaymentFailed:    {from: []OrderStatus{OrderStatusPending}, to: OrderStatusFailed},
	EventCheckoutAborted:  {from: []OrderStatus{OrderStatusPending}, to: OrderStatusCancelled},
	EventCustomerCancel:   {from: []OrderStatus{OrderStatusPending, OrderStatusConfirmed}, to: OrderStatusCancelled},
	EventAdminCancel: {
		from: []OrderStatus{OrderStatusPending, OrderStatusConfirmed, OrderStatusProcessing},
		to:   OrderStatusCancelled,
	},
	EventStartProcessing: {from: []OrderStatus{OrderStatusConfirmed}, to: OrderStatusProcessing},
	EventShip:            {from: []OrderStatus{OrderStatusProcessing}, to: OrderStatusShipped},
	EventOutForDelivery:  {from: []OrderStatus{OrderStatusShipped}, to: OrderStatusOutForDelivery},
	EventDeliver:         {from: []OrderStatus{OrderStatusOutForDelivery}, to: OrderStatusDelivered},
	EventReturn:          {from: []OrderStatus{OrderStatusDelivered}, to: OrderStatusReturned},
	EventRefund: {
		from: []OrderStatus{
			OrderStatusConfirmed, OrderStatusProcessing, OrderStatusShipped,
			OrderStatusOutForDelivery, OrderStatusDelivered, OrderStatusReturned,
		},
		to: OrderStatusRefunded,
	},
}

// NextStatus resolves the target status of event fired from current
func NextStatus(current OrderStatus, event OrderEvent) (OrderStatus, error) {
	t, ok := transitions[event]
	if !ok {
		return "", fmt.Errorf("%w: unknown order event %q", apperr.ErrInvalidArgument, event)
	}
	for _, s := range t.from {
		if s == current {
			return t.to, nil
		}
	}
	return "", fmt.Errorf("%w: cannot apply %s to %s order", apperr.ErrInvalidTransition, event, current)
}

// StockActionFor decides which ledger operation must accompany moving an
// order with stock state ss to target. The choice depends only on whether
// the reservation was already spent, never on the source status.
func StockActionFor(target OrderStatus, ss StockState) (StockAction, StockState) {
	switch target {
	case OrderStatusConfirmed:
		if ss == StockReserved {
			return StockActionCommit, StockCommitted
		}
	case OrderStatusFailed, OrderStatusCancelled, OrderStatusReturned, OrderStatusRefunded:
		switch ss {
		case StockReserved:
			return StockActionRelease, StockReleased
		case StockCommitted:
			return StockActionRestock, StockRestocked
		}
	}
	return StockActionNone, ss
}
