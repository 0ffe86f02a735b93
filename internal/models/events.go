package models

import "time"

// Event types
const (
	EventTypeOrderPlaced       = "ORDER_PLACED"
	EventTypeOrderConfirmed    = "ORDER_CONFIRMED"
	EventTypeOrderFailed       = "ORDER_FAILED"
	EventTypeOrderCancelled    = "ORDER_CANCELLED"
	EventTypeOrderStatusChange = "ORDER_STATUS_CHANGED"
	EventTypeFulfilmentReady   = "FULFILMENT_READY"
	EventTypePaymentCallback   = "PAYMENT_CALLBACK"
	EventTypeNotification      = "NOTIFICATION"
)

// Notification types
const (
	NotificationPaymentRequested = "PAYMENT_REQUESTED"
	NotificationPaymentSucceeded = "PAYMENT_SUCCEEDED"
	NotificationPaymentFailed    = "PAYMENT_FAILED"
	NotificationOrderCancelled   = "ORDER_CANCELLED"
	NotificationLowStock         = "LOW_STOCK"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderEventMessage is published whenever an order changes status
type OrderEventMessage struct {
	BaseEvent
	OrderID     int64           `json:"order_id"`
	OrderNumber string          `json:"order_number"`
	UserID      int64           `json:"user_id"`
	FromStatus  OrderStatus     `json:"from_status,omitempty"`
	Status      OrderStatus     `json:"status"`
	StockAction StockAction     `json:"stock_action,omitempty"`
	TotalAmount int64           `json:"total_amount"`
	Reason      string          `json:"reason,omitempty"`
	Items       []OrderItemData `json:"items,omitempty"`
}

// FulfilmentReadyEvent asks the shipping side to open a shipment record
type FulfilmentReadyEvent struct {
	BaseEvent
	OrderID       int64           `json:"order_id"`
	OrderNumber   string          `json:"order_number"`
	UserID        int64           `json:"user_id"`
	ReceiptNumber string          `json:"receipt_number"`
	Items         []OrderItemData `json:"items"`
}

// PaymentCallbackEvent carries an authenticated provider outcome to the callback worker
type PaymentCallbackEvent struct {
	BaseEvent
	Outcome PaymentOutcome `json:"outcome"`
}

// NotificationEvent is the fire-and-forget tuple handed to the notifier
type NotificationEvent struct {
	BaseEvent
	UserID    int64  `json:"user_id"`
	Type      string `json:"type"`
	Title     string `json:"title"`
	Message   string `json:"message"`
	Reference string `json:"reference"`
}

// OrderItemData represents item data in events
type OrderItemData struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
	UnitPrice int64 `json:"unit_price"`
}

// ItemData converts order lines to their event form
func ItemData(items []OrderItem) []OrderItemData {
	out := make([]OrderItemData, 0, len(items))
	for _, item := range items {
		out = append(out, OrderItemData{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
	}
	return out
}
