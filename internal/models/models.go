package models

import "time"

// Product is the catalog view the engine needs at checkout time
type Product struct {
	ID        int64     `db:"id" json:"id"`
	SKU       string    `db:"sku" json:"sku"`
	Name      string    `db:"name" json:"name"`
	Price     int64     `db:"price" json:"price"`
	Active    bool      `db:"active" json:"active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Order represents a customer order
type Order struct {
	ID             int64       `db:"id" json:"id"`
	OrderNumber    string      `db:"order_number" json:"order_number"`
	UserID         int64       `db:"user_id" json:"user_id"`
	TotalAmount    int64       `db:"total_amount" json:"total_amount"`
	Status         OrderStatus `db:"status" json:"status"`
	StockState     StockState  `db:"stock_state" json:"stock_state"`
	PhoneNumber    string      `db:"phone_number" json:"phone_number"`
	IdempotencyKey *string     `db:"idempotency_key" json:"idempotency_key,omitempty"`
	StatusReason   string      `db:"status_reason" json:"status_reason,omitempty"`
	CreatedAt      time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time   `db:"updated_at" json:"updated_at"`

	Items []OrderItem `db:"-" json:"items"`
}

// OrderItem is one line of an order with the price and name captured at checkout
type OrderItem struct {
	ID          int64  `db:"id" json:"id"`
	OrderID     int64  `db:"order_id" json:"order_id"`
	LineNo      int    `db:"line_no" json:"line_no"`
	ProductID   int64  `db:"product_id" json:"product_id"`
	ProductName string `db:"product_name" json:"product_name"`
	Quantity    int    `db:"quantity" json:"quantity"`
	UnitPrice   int64  `db:"unit_price" json:"unit_price"`
}

// LineTotal returns quantity * unit price
func (i OrderItem) LineTotal() int64 {
	return int64(i.Quantity) * i.UnitPrice
}

// PaymentIntent is one payment attempt for an order
type PaymentIntent struct {
	ID                int64         `db:"id" json:"id"`
	OrderID           int64         `db:"order_id" json:"order_id"`
	ProviderRequestID string        `db:"provider_request_id" json:"provider_request_id"`
	MerchantRequestID string        `db:"merchant_request_id" json:"merchant_request_id,omitempty"`
	ReceiptNumber     string        `db:"receipt_number" json:"receipt_number,omitempty"`
	Status            PaymentStatus `db:"status" json:"status"`
	Amount            int64         `db:"amount" json:"amount"`
	PhoneNumber       string        `db:"phone_number" json:"phone_number"`
	FailureReason     string        `db:"failure_reason" json:"failure_reason,omitempty"`
	CreatedAt         time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time     `db:"updated_at" json:"updated_at"`
}

// PaymentStatus is the lifecycle state of a payment intent
type PaymentStatus string

// Payment statuses
const (
	PaymentStatusPending    PaymentStatus = "PENDING"
	PaymentStatusProcessing PaymentStatus = "PROCESSING"
	PaymentStatusSuccessful PaymentStatus = "SUCCESSFUL"
	PaymentStatusFailed     PaymentStatus = "FAILED"
	PaymentStatusRefunded   PaymentStatus = "REFUNDED"
)

// IsActive reports whether the intent is still waiting for an outcome
func (s PaymentStatus) IsActive() bool {
	return s == PaymentStatusPending || s == PaymentStatusProcessing
}

// IsTerminal reports whether the outcome has been recorded
func (s PaymentStatus) IsTerminal() bool {
	return !s.IsActive()
}

// PaymentOutcome is the provider's verdict on a payment attempt
type PaymentOutcome struct {
	ProviderRequestID string `json:"provider_request_id"`
	MerchantRequestID string `json:"merchant_request_id,omitempty"`
	Success           bool   `json:"success"`
	Timeout           bool   `json:"timeout"`
	ResultCode        int    `json:"result_code"`
	ResultDesc        string `json:"result_desc"`
	Amount            int64  `json:"amount,omitempty"`
	ReceiptNumber     string `json:"receipt_number,omitempty"`
	PhoneNumber       string `json:"phone_number,omitempty"`
	RemoteAddr        string `json:"remote_addr,omitempty"`
}

// ProcessedCallback records a provider request id that has been acted upon
type ProcessedCallback struct {
	RequestID string    `db:"request_id"`
	State     string    `db:"state"`
	ClaimedAt time.Time `db:"claimed_at"`
	ExpiresAt time.Time `db:"expires_at"`
}

// PaymentRequest is what the engine asks the provider to collect
type PaymentRequest struct {
	Reference   string `json:"reference"`
	Description string `json:"description"`
	Amount      int64  `json:"amount"`
	PhoneNumber string `json:"phone_number"`
}

// PaymentInitiation is the provider's acknowledgement of a payment request
type PaymentInitiation struct {
	ProviderRequestID string `json:"provider_request_id"`
	MerchantRequestID string `json:"merchant_request_id"`
	ResponseCode      string `json:"response_code"`
	CustomerMessage   string `json:"customer_message"`
}
