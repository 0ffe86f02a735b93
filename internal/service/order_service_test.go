package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"checkout-engine/internal/apperr"
	"checkout-engine/internal/models"
	"checkout-engine/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	mu       sync.Mutex
	err      error
	requests []models.PaymentRequest
}

func (p *fakeProvider) RequestPayment(_ context.Context, req models.PaymentRequest) (*models.PaymentInitiation, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.requests = append(p.requests, req)
	if p.err != nil {
		return nil, p.err
	}
	return &models.PaymentInitiation{
		ProviderRequestID: fmt.Sprintf("ws_CO_%d", len(p.requests)),
		MerchantRequestID: fmt.Sprintf("mr-%d", len(p.requests)),
		ResponseCode:      "0",
		CustomerMessage:   "Success. Request accepted for processing",
	}, nil
}

type fakePublisher struct {
	mu         sync.Mutex
	orders     []*models.OrderEventMessage
	fulfilment []*models.FulfilmentReadyEvent
}

func (p *fakePublisher) PublishOrderEvent(_ context.Context, event *models.OrderEventMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.orders = append(p.orders, event)
	return nil
}

func (p *fakePublisher) PublishFulfilmentReady(_ context.Context, event *models.FulfilmentReadyEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fulfilment = append(p.fulfilment, event)
	return nil
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []models.NotificationEvent
}

func (n *fakeNotifier) Notify(_ context.Context, event models.NotificationEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, event)
}

func (n *fakeNotifier) types() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.sent))
	for _, e := range n.sent {
		out = append(out, e.Type)
	}
	return out
}

type fixture struct {
	repo      *store.MemoryRepository
	provider  *fakeProvider
	publisher *fakePublisher
	notifier  *fakeNotifier
	svc       *OrderService
}

const (
	widget = int64(1)
	gadget = int64(2)
)

func newFixture(t *testing.T) *fixture {
	t.Helper()

	repo := store.NewMemoryRepository()
	repo.AddProduct(models.Product{ID: widget, SKU: "W-1", Name: "Widget", Price: 500, Active: true}, 5, 1)
	repo.AddProduct(models.Product{ID: gadget, SKU: "G-1", Name: "Gadget", Price: 1200, Active: true}, 3, 0)
	repo.AddProduct(models.Product{ID: 3, SKU: "X-1", Name: "Retired", Price: 100, Active: false}, 10, 0)

	f := &fixture{
		repo:      repo,
		provider:  &fakeProvider{},
		publisher: &fakePublisher{},
		notifier:  &fakeNotifier{},
	}
	f.svc = NewOrderService(repo, repo, NewInventoryLedger(repo), f.provider, f.publisher, f.notifier)
	return f
}

func (f *fixture) checkout(t *testing.T, userID int64, items ...OrderItemRequest) *CheckoutResponse {
	t.Helper()
	resp, err := f.svc.Checkout(context.Background(), &CheckoutRequest{
		UserID:      userID,
		Items:       items,
		PhoneNumber: "254712345678",
	})
	require.NoError(t, err)
	return resp
}

func (f *fixture) stock(t *testing.T, productID int64) *models.InventoryRecord {
	t.Helper()
	rec, err := f.repo.GetInventory(context.Background(), productID)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, rec.ReservedQuantity, 0)
	assert.LessOrEqual(t, rec.ReservedQuantity, rec.TotalQuantity)
	return rec
}

func (f *fixture) order(t *testing.T, orderID int64) *models.Order {
	t.Helper()
	o, err := f.repo.GetOrder(context.Background(), orderID)
	require.NoError(t, err)
	return o
}

func (f *fixture) pay(t *testing.T, resp *CheckoutResponse) {
	t.Helper()
	require.NoError(t, f.svc.ApplyPaymentOutcome(context.Background(), models.PaymentOutcome{
		ProviderRequestID: resp.ProviderRequestID,
		Success:           true,
		Amount:            resp.TotalAmount,
		ReceiptNumber:     "RCP123",
	}))
}

func TestCheckout_ReservesAndRequestsPayment(t *testing.T) {
	f := newFixture(t)

	resp := f.checkout(t, 10,
		OrderItemRequest{ProductID: gadget, Quantity: 1},
		OrderItemRequest{ProductID: widget, Quantity: 2},
		OrderItemRequest{ProductID: widget, Quantity: 1},
	)

	assert.Equal(t, models.OrderStatusPending, resp.Status)
	assert.Equal(t, int64(3*500+1200), resp.TotalAmount)
	assert.Equal(t, "ws_CO_1", resp.ProviderRequestID)

	assert.Equal(t, 3, f.stock(t, widget).ReservedQuantity)
	assert.Equal(t, 1, f.stock(t, gadget).ReservedQuantity)

	order := f.order(t, resp.OrderID)
	assert.Equal(t, models.StockReserved, order.StockState)
	require.Len(t, order.Items, 2)
	assert.Equal(t, widget, order.Items[0].ProductID)
	assert.Equal(t, "Widget", order.Items[0].ProductName)

	intent, err := f.svc.GetPayment(context.Background(), resp.OrderID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusProcessing, intent.Status)
	assert.Equal(t, resp.TotalAmount, intent.Amount)

	require.Len(t, f.provider.requests, 1)
	assert.Equal(t, order.OrderNumber, f.provider.requests[0].Reference)
	assert.Contains(t, f.notifier.types(), models.NotificationPaymentRequested)
}

func TestCheckout_Validation(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name string
		req  *CheckoutRequest
	}{
		{"no user", &CheckoutRequest{Items: []OrderItemRequest{{ProductID: widget, Quantity: 1}}, PhoneNumber: "254712345678"}},
		{"no items", &CheckoutRequest{UserID: 1, PhoneNumber: "254712345678"}},
		{"zero quantity", &CheckoutRequest{UserID: 1, Items: []OrderItemRequest{{ProductID: widget}}, PhoneNumber: "254712345678"}},
		{"bad phone", &CheckoutRequest{UserID: 1, Items: []OrderItemRequest{{ProductID: widget, Quantity: 1}}, PhoneNumber: "call me"}},
		{"unknown product", &CheckoutRequest{UserID: 1, Items: []OrderItemRequest{{ProductID: 99, Quantity: 1}}, PhoneNumber: "254712345678"}},
		{"inactive product", &CheckoutRequest{UserID: 1, Items: []OrderItemRequest{{ProductID: 3, Quantity: 1}}, PhoneNumber: "254712345678"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Checkout(context.Background(), tt.req)
			assert.ErrorIs(t, err, apperr.ErrInvalidArgument)
		})
	}

	assert.Equal(t, 0, f.stock(t, widget).ReservedQuantity)
	assert.Empty(t, f.provider.requests)
}

func TestCheckout_InsufficientStockLeavesNoPartialReservation(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Checkout(context.Background(), &CheckoutRequest{
		UserID:      10,
		Items:       []OrderItemRequest{{ProductID: widget, Quantity: 2}, {ProductID: gadget, Quantity: 4}},
		PhoneNumber: "254712345678",
	})
	require.ErrorIs(t, err, apperr.ErrInsufficientStock)

	assert.Equal(t, 0, f.stock(t, widget).ReservedQuantity)
	assert.Equal(t, 0, f.stock(t, gadget).ReservedQuantity)
	assert.Empty(t, f.provider.requests)

	orders, err := f.svc.ListOrders(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestCheckout_LastUnitRace(t *testing.T) {
	f := newFixture(t)

	f.checkout(t, 10, OrderItemRequest{ProductID: widget, Quantity: 5})
	assert.Equal(t, 0, f.stock(t, widget).AvailableStock())

	_, err := f.svc.Checkout(context.Background(), &CheckoutRequest{
		UserID:      11,
		Items:       []OrderItemRequest{{ProductID: widget, Quantity: 1}},
		PhoneNumber: "254712345678",
	})
	assert.ErrorIs(t, err, apperr.ErrInsufficientStock)
	assert.Equal(t, 5, f.stock(t, widget).ReservedQuantity)
}

func TestCheckout_ConcurrentBuyersNeverOversell(t *testing.T) {
	f := newFixture(t)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		rejected  int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(user int64) {
			defer wg.Done()
			_, err := f.svc.Checkout(context.Background(), &CheckoutRequest{
				UserID:      user,
				Items:       []OrderItemRequest{{ProductID: widget, Quantity: 1}},
				PhoneNumber: "254712345678",
			})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				succeeded++
			} else if errors.Is(err, apperr.ErrInsufficientStock) {
				rejected++
			}
		}(int64(i + 1))
	}
	wg.Wait()

	assert.Equal(t, 5, succeeded)
	assert.Equal(t, 15, rejected)
	assert.Equal(t, 5, f.stock(t, widget).ReservedQuantity)
}

func TestCheckout_IdempotencyKeyReturnsExistingOrder(t *testing.T) {
	f := newFixture(t)
	req := func() *CheckoutRequest {
		return &CheckoutRequest{
			UserID:         10,
			Items:          []OrderItemRequest{{ProductID: widget, Quantity: 1}},
			PhoneNumber:    "254712345678",
			IdempotencyKey: "cart-42",
		}
	}

	first, err := f.svc.Checkout(context.Background(), req())
	require.NoError(t, err)

	second, err := f.svc.Checkout(context.Background(), req())
	require.NoError(t, err)

	assert.True(t, second.Duplicate)
	assert.Equal(t, first.OrderID, second.OrderID)
	assert.Equal(t, first.ProviderRequestID, second.ProviderRequestID)
	assert.Equal(t, 1, f.stock(t, widget).ReservedQuantity)
	assert.Len(t, f.provider.requests, 1)
}

func TestCheckout_ProviderFailureCancelsAndReleases(t *testing.T) {
	f := newFixture(t)
	f.provider.err = errors.New("connection refused")

	_, err := f.svc.Checkout(context.Background(), &CheckoutRequest{
		UserID:      10,
		Items:       []OrderItemRequest{{ProductID: widget, Quantity: 2}},
		PhoneNumber: "254712345678",
	})
	require.ErrorIs(t, err, apperr.ErrProviderUnavailable)

	assert.Equal(t, 0, f.stock(t, widget).ReservedQuantity)
	assert.Equal(t, 5, f.stock(t, widget).TotalQuantity)

	orders, err := f.svc.ListOrders(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, models.OrderStatusCancelled, orders[0].Status)
	assert.Equal(t, models.StockReleased, orders[0].StockState)

	intent, err := f.svc.GetPayment(context.Background(), orders[0].ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusFailed, intent.Status)
}

// flakyRepo fails the InTx calls whose 1-based sequence number is listed
type flakyRepo struct {
	*store.MemoryRepository

	mu      sync.Mutex
	calls   int
	failing map[int]bool
}

func (r *flakyRepo) InTx(ctx context.Context, fn func(tx store.Tx) error) error {
	r.mu.Lock()
	r.calls++
	n := r.calls
	r.mu.Unlock()

	if r.failing[n] {
		return fmt.Errorf("%w: connection reset by peer", apperr.ErrRetryable)
	}
	return r.MemoryRepository.InTx(ctx, fn)
}

func newFlakyFixture(t *testing.T, failing ...int) *fixture {
	t.Helper()

	backoff := recordProviderRequestBackoff
	recordProviderRequestBackoff = time.Millisecond
	t.Cleanup(func() { recordProviderRequestBackoff = backoff })

	f := newFixture(t)
	repo := &flakyRepo{MemoryRepository: f.repo, failing: map[int]bool{}}
	for _, n := range failing {
		repo.failing[n] = true
	}
	f.svc = NewOrderService(repo, f.repo, NewInventoryLedger(f.repo), f.provider, f.publisher, f.notifier)
	return f
}

func TestCheckout_UnrecordedProviderRequestCancelsAndReleases(t *testing.T) {
	// the reservation commits, every write of the provider request id fails
	f := newFlakyFixture(t, 2, 3, 4)

	_, err := f.svc.Checkout(context.Background(), &CheckoutRequest{
		UserID:      11,
		Items:       []OrderItemRequest{{ProductID: widget, Quantity: 2}},
		PhoneNumber: "254712345678",
	})
	require.ErrorIs(t, err, apperr.ErrRetryable)
	assert.Len(t, f.provider.requests, 1)

	assert.Equal(t, 0, f.stock(t, widget).ReservedQuantity)
	assert.Equal(t, 5, f.stock(t, widget).TotalQuantity)

	orders, err := f.svc.ListOrders(context.Background(), 11)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, models.OrderStatusCancelled, orders[0].Status)
	assert.Equal(t, models.StockReleased, orders[0].StockState)

	intent, err := f.svc.GetPayment(context.Background(), orders[0].ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusFailed, intent.Status)
}

func TestCheckout_ProviderRequestWriteRetried(t *testing.T) {
	f := newFlakyFixture(t, 2)

	resp := f.checkout(t, 12, OrderItemRequest{ProductID: widget, Quantity: 2})
	assert.Equal(t, "ws_CO_1", resp.ProviderRequestID)
	assert.Equal(t, models.OrderStatusPending, f.order(t, resp.OrderID).Status)
	assert.Equal(t, 2, f.stock(t, widget).ReservedQuantity)
}

func TestCheckout_ZeroTotalRejected(t *testing.T) {
	f := newFixture(t)
	f.repo.AddProduct(models.Product{ID: 4, SKU: "F-1", Name: "Freebie", Price: 0, Active: true}, 5, 0)

	_, err := f.svc.Checkout(context.Background(), &CheckoutRequest{
		UserID:      13,
		Items:       []OrderItemRequest{{ProductID: 4, Quantity: 1}},
		PhoneNumber: "254712345678",
	})
	require.ErrorIs(t, err, apperr.ErrInvalidArgument)
	assert.Empty(t, f.provider.requests)
	assert.Equal(t, 0, f.stock(t, 4).ReservedQuantity)

	orders, err := f.svc.ListOrders(context.Background(), 13)
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestApplyPaymentOutcome_SuccessCommitsStock(t *testing.T) {
	f := newFixture(t)
	resp := f.checkout(t, 10, OrderItemRequest{ProductID: widget, Quantity: 2})

	f.pay(t, resp)

	rec := f.stock(t, widget)
	assert.Equal(t, 3, rec.TotalQuantity)
	assert.Equal(t, 0, rec.ReservedQuantity)

	order := f.order(t, resp.OrderID)
	assert.Equal(t, models.OrderStatusConfirmed, order.Status)
	assert.Equal(t, models.StockCommitted, order.StockState)

	intent, err := f.svc.GetPayment(context.Background(), resp.OrderID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusSuccessful, intent.Status)
	assert.Equal(t, "RCP123", intent.ReceiptNumber)

	require.Len(t, f.publisher.fulfilment, 1)
	assert.Equal(t, "RCP123", f.publisher.fulfilment[0].ReceiptNumber)
	assert.Contains(t, f.notifier.types(), models.NotificationPaymentSucceeded)
}

func TestApplyPaymentOutcome_FailureReleasesStock(t *testing.T) {
	f := newFixture(t)
	resp := f.checkout(t, 10, OrderItemRequest{ProductID: widget, Quantity: 3})

	err := f.svc.ApplyPaymentOutcome(context.Background(), models.PaymentOutcome{
		ProviderRequestID: resp.ProviderRequestID,
		ResultCode:        1032,
		ResultDesc:        "Request cancelled by user",
	})
	require.NoError(t, err)

	rec := f.stock(t, widget)
	assert.Equal(t, 5, rec.TotalQuantity)
	assert.Equal(t, 0, rec.ReservedQuantity)

	order := f.order(t, resp.OrderID)
	assert.Equal(t, models.OrderStatusFailed, order.Status)
	assert.Equal(t, models.StockReleased, order.StockState)
	assert.Contains(t, f.notifier.types(), models.NotificationPaymentFailed)
	assert.Empty(t, f.publisher.fulfilment)
}

func TestApplyPaymentOutcome_DuplicateIsNoOp(t *testing.T) {
	f := newFixture(t)
	resp := f.checkout(t, 10, OrderItemRequest{ProductID: widget, Quantity: 2})
	f.pay(t, resp)

	err := f.svc.ApplyPaymentOutcome(context.Background(), models.PaymentOutcome{
		ProviderRequestID: resp.ProviderRequestID,
		Success:           true,
		Amount:            resp.TotalAmount,
	})
	assert.ErrorIs(t, err, apperr.ErrAlreadyProcessed)

	timeout := f.svc.ApplyPaymentOutcome(context.Background(), models.PaymentOutcome{
		ProviderRequestID: resp.ProviderRequestID,
		Timeout:           true,
	})
	assert.ErrorIs(t, timeout, apperr.ErrAlreadyProcessed)

	rec := f.stock(t, widget)
	assert.Equal(t, 3, rec.TotalQuantity)
	assert.Equal(t, 0, rec.ReservedQuantity)
	assert.Equal(t, models.OrderStatusConfirmed, f.order(t, resp.OrderID).Status)
}

func TestApplyPaymentOutcome_AmountMismatchRejected(t *testing.T) {
	f := newFixture(t)
	resp := f.checkout(t, 10, OrderItemRequest{ProductID: widget, Quantity: 2})

	err := f.svc.ApplyPaymentOutcome(context.Background(), models.PaymentOutcome{
		ProviderRequestID: resp.ProviderRequestID,
		Success:           true,
		Amount:            1,
	})
	require.ErrorIs(t, err, apperr.ErrAmountMismatch)

	order := f.order(t, resp.OrderID)
	assert.Equal(t, models.OrderStatusPending, order.Status)
	assert.Equal(t, 2, f.stock(t, widget).ReservedQuantity)

	intent, err := f.svc.GetPayment(context.Background(), resp.OrderID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusProcessing, intent.Status)
}

func TestApplyPaymentOutcome_UnknownRequest(t *testing.T) {
	f := newFixture(t)
	err := f.svc.ApplyPaymentOutcome(context.Background(), models.PaymentOutcome{ProviderRequestID: "nope"})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestApplyPaymentOutcome_AfterCancelKeepsOrderCancelled(t *testing.T) {
	f := newFixture(t)
	resp := f.checkout(t, 10, OrderItemRequest{ProductID: widget, Quantity: 2})

	_, err := f.svc.CustomerCancel(context.Background(), 10, resp.OrderID, "")
	require.NoError(t, err)

	f.pay(t, resp)

	order := f.order(t, resp.OrderID)
	assert.Equal(t, models.OrderStatusCancelled, order.Status)
	rec := f.stock(t, widget)
	assert.Equal(t, 5, rec.TotalQuantity)
	assert.Equal(t, 0, rec.ReservedQuantity)
}

func TestAdminCancel_ConfirmedOrderRestocks(t *testing.T) {
	f := newFixture(t)
	resp := f.checkout(t, 10, OrderItemRequest{ProductID: widget, Quantity: 2})
	f.pay(t, resp)
	require.Equal(t, 3, f.stock(t, widget).TotalQuantity)

	order, err := f.svc.AdminCancel(context.Background(), resp.OrderID, "fraud check")
	require.NoError(t, err)

	assert.Equal(t, models.OrderStatusCancelled, order.Status)
	assert.Equal(t, models.StockRestocked, order.StockState)
	rec := f.stock(t, widget)
	assert.Equal(t, 5, rec.TotalQuantity)
	assert.Equal(t, 0, rec.ReservedQuantity)
}

func TestAdminCancel_ProcessingOrderRestocks(t *testing.T) {
	f := newFixture(t)
	resp := f.checkout(t, 10, OrderItemRequest{ProductID: gadget, Quantity: 1})
	f.pay(t, resp)

	_, err := f.svc.Advance(context.Background(), resp.OrderID, models.OrderStatusProcessing)
	require.NoError(t, err)

	_, err = f.svc.AdminCancel(context.Background(), resp.OrderID, "")
	require.NoError(t, err)
	assert.Equal(t, 3, f.stock(t, gadget).TotalQuantity)
}

func TestCustomerCancel(t *testing.T) {
	f := newFixture(t)
	resp := f.checkout(t, 10, OrderItemRequest{ProductID: widget, Quantity: 2})

	_, err := f.svc.CustomerCancel(context.Background(), 99, resp.OrderID, "")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	order, err := f.svc.CustomerCancel(context.Background(), 10, resp.OrderID, "changed my mind")
	require.NoError(t, err)
	assert.Equal(t, models.StockReleased, order.StockState)
	assert.Equal(t, 0, f.stock(t, widget).ReservedQuantity)

	_, err = f.svc.CustomerCancel(context.Background(), 10, resp.OrderID, "")
	assert.ErrorIs(t, err, apperr.ErrInvalidTransition)
	assert.Equal(t, 0, f.stock(t, widget).ReservedQuantity)
}

func TestCancelShippedOrderRejected(t *testing.T) {
	f := newFixture(t)
	resp := f.checkout(t, 10, OrderItemRequest{ProductID: widget, Quantity: 1})
	f.pay(t, resp)

	for _, status := range []models.OrderStatus{models.OrderStatusProcessing, models.OrderStatusShipped} {
		_, err := f.svc.Advance(context.Background(), resp.OrderID, status)
		require.NoError(t, err)
	}

	_, err := f.svc.AdminCancel(context.Background(), resp.OrderID, "")
	assert.ErrorIs(t, err, apperr.ErrInvalidTransition)
	_, err = f.svc.CustomerCancel(context.Background(), 10, resp.OrderID, "")
	assert.ErrorIs(t, err, apperr.ErrConflict)
	assert.Equal(t, 4, f.stock(t, widget).TotalQuantity)
}

func TestAdvance_InvalidTarget(t *testing.T) {
	f := newFixture(t)
	resp := f.checkout(t, 10, OrderItemRequest{ProductID: widget, Quantity: 1})

	_, err := f.svc.Advance(context.Background(), resp.OrderID, models.OrderStatusCancelled)
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument)

	_, err = f.svc.Advance(context.Background(), resp.OrderID, models.OrderStatusShipped)
	assert.ErrorIs(t, err, apperr.ErrInvalidTransition)
}

func TestReturnThenRefundRestocksOnce(t *testing.T) {
	f := newFixture(t)
	resp := f.checkout(t, 10, OrderItemRequest{ProductID: widget, Quantity: 2})
	f.pay(t, resp)

	for _, status := range []models.OrderStatus{
		models.OrderStatusProcessing, models.OrderStatusShipped,
		models.OrderStatusOutForDelivery, models.OrderStatusDelivered,
	} {
		_, err := f.svc.Advance(context.Background(), resp.OrderID, status)
		require.NoError(t, err)
	}
	require.Equal(t, 3, f.stock(t, widget).TotalQuantity)

	order, err := f.svc.AcceptReturn(context.Background(), resp.OrderID, "")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusReturned, order.Status)
	assert.Equal(t, 5, f.stock(t, widget).TotalQuantity)

	order, err = f.svc.Refund(context.Background(), resp.OrderID, "")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusRefunded, order.Status)
	assert.Equal(t, 5, f.stock(t, widget).TotalQuantity)

	intent, err := f.svc.GetPayment(context.Background(), resp.OrderID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusRefunded, intent.Status)
}

func TestDeleteOrder(t *testing.T) {
	f := newFixture(t)
	resp := f.checkout(t, 10, OrderItemRequest{ProductID: widget, Quantity: 1})

	err := f.svc.DeleteOrder(context.Background(), resp.OrderID)
	assert.ErrorIs(t, err, apperr.ErrConflict)

	_, err = f.svc.AdminCancel(context.Background(), resp.OrderID, "")
	require.NoError(t, err)

	require.NoError(t, f.svc.DeleteOrder(context.Background(), resp.OrderID))
	_, err = f.svc.GetOrder(context.Background(), resp.OrderID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = f.svc.GetPayment(context.Background(), resp.OrderID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestLowStockNotification(t *testing.T) {
	f := newFixture(t)

	f.checkout(t, 10, OrderItemRequest{ProductID: widget, Quantity: 4})

	assert.Contains(t, f.notifier.types(), models.NotificationLowStock)
}

func TestGetOrderForUser(t *testing.T) {
	f := newFixture(t)
	resp := f.checkout(t, 10, OrderItemRequest{ProductID: widget, Quantity: 1})

	order, err := f.svc.GetOrderForUser(context.Background(), 10, resp.OrderID)
	require.NoError(t, err)
	assert.Equal(t, resp.OrderNumber, order.OrderNumber)

	_, err = f.svc.GetOrderForUser(context.Background(), 11, resp.OrderID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}
