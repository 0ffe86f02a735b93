package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"checkout-engine/internal/apperr"
	"checkout-engine/internal/models"
	"checkout-engine/internal/store"
	"checkout-engine/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var phonePattern = regexp.MustCompile(`^\+?[0-9]{9,15}$`)

// OrderService handles order business logic
type OrderService struct {
	repo      store.Repository
	catalog   Catalog
	ledger    *InventoryLedger
	machine   *OrderStateMachine
	payments  *PaymentTracker
	provider  PaymentProvider
	publisher EventPublisher
	notifier  Notifier
	logger    *zap.Logger
}

// NewOrderService creates a new order service
func NewOrderService(
	repo store.Repository,
	catalog Catalog,
	ledger *InventoryLedger,
	provider PaymentProvider,
	publisher EventPublisher,
	notifier Notifier,
) *OrderService {
	return &OrderService{
		repo:      repo,
		catalog:   catalog,
		ledger:    ledger,
		machine:   NewOrderStateMachine(ledger),
		payments:  NewPaymentTracker(),
		provider:  provider,
		publisher: publisher,
		notifier:  notifier,
		logger:    util.GetLogger(),
	}
}

// CheckoutRequest represents a request to place an order and pay for it
type CheckoutRequest struct {
	UserID         int64              `json:"-"`
	Items          []OrderItemRequest `json:"items" binding:"required,min=1,dive"`
	PhoneNumber    string             `json:"phone_number" binding:"required"`
	IdempotencyKey string             `json:"-"`
}

// OrderItemRequest represents an item in an order
type OrderItemRequest struct {
	ProductID int64 `json:"product_id" binding:"required"`
	Quantity  int   `json:"quantity" binding:"required,min=1"`
}

// CheckoutResponse represents the response after placing an order
type CheckoutResponse struct {
	OrderID           int64              `json:"order_id"`
	OrderNumber       string             `json:"order_number"`
	Status            models.OrderStatus `json:"status"`
	TotalAmount       int64              `json:"total_amount"`
	ProviderRequestID string             `json:"provider_request_id,omitempty"`
	CustomerMessage   string             `json:"customer_message,omitempty"`
	Duplicate         bool               `json:"duplicate,omitempty"`
}

// Checkout reserves stock, creates a PENDING order with its payment intent
// in one transaction, then asks the provider to collect the payment.
func (s *OrderService) Checkout(ctx context.Context, req *CheckoutRequest) (*CheckoutResponse, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.Checkout")
	defer span.End()

	if err := validateCheckout(req); err != nil {
		util.CheckoutsTotal.WithLabelValues("rejected").Inc()
		util.OrdersFailedTotal.WithLabelValues(apperr.Code(err)).Inc()
		return nil, err
	}

	if req.IdempotencyKey != "" {
		existing, err := s.repo.GetOrderByIdempotencyKey(ctx, req.IdempotencyKey)
		if err == nil {
			return s.duplicateCheckout(ctx, req.IdempotencyKey, existing), nil
		}
		if !errors.Is(err, apperr.ErrNotFound) {
			return nil, fmt.Errorf("failed to check idempotency: %w", err)
		}
	}

	items, total, err := s.snapshotItems(ctx, req.Items)
	if err != nil {
		util.CheckoutsTotal.WithLabelValues("rejected").Inc()
		util.OrdersFailedTotal.WithLabelValues(apperr.Code(err)).Inc()
		return nil, err
	}

	order := &models.Order{
		OrderNumber: newOrderNumber(),
		UserID:      req.UserID,
		TotalAmount: total,
		Status:      models.OrderStatusPending,
		StockState:  models.StockReserved,
		PhoneNumber: req.PhoneNumber,
		Items:       items,
	}
	if req.IdempotencyKey != "" {
		key := req.IdempotencyKey
		order.IdempotencyKey = &key
	}

	var (
		intent *models.PaymentIntent
		fx     *effects
	)
	err = s.repo.InTx(ctx, func(tx store.Tx) error {
		fx = &effects{}

		low, err := s.ledger.ReserveLines(ctx, tx, order.Items)
		if err != nil {
			return err
		}
		if err := tx.CreateOrder(ctx, order); err != nil {
			return fmt.Errorf("failed to create order: %w", err)
		}
		intent, err = s.payments.Initiate(ctx, tx, order, order.TotalAmount, order.PhoneNumber)
		if err != nil {
			return err
		}

		fx.lowStock(low)
		fx.orderEvents = append(fx.orderEvents,
			orderEvent(models.EventTypeOrderPlaced, order, "", models.StockActionNone))
		return nil
	})
	if err != nil {
		if req.IdempotencyKey != "" && errors.Is(err, apperr.ErrConflict) {
			if existing, lookupErr := s.repo.GetOrderByIdempotencyKey(ctx, req.IdempotencyKey); lookupErr == nil {
				return s.duplicateCheckout(ctx, req.IdempotencyKey, existing), nil
			}
		}
		util.CheckoutsTotal.WithLabelValues("rejected").Inc()
		util.OrdersFailedTotal.WithLabelValues(apperr.Code(err)).Inc()
		return nil, err
	}

	util.OrdersCreatedTotal.Inc()
	s.logger.Info("Order placed",
		zap.Int64("order_id", order.ID),
		zap.String("order_number", order.OrderNumber),
		zap.Int64("total_amount", order.TotalAmount))
	s.flush(ctx, fx)

	init, err := s.requestPayment(ctx, order)
	if err != nil {
		s.logger.Error("Payment provider request failed, cancelling order",
			zap.Int64("order_id", order.ID),
			zap.Error(err))
		s.abortCheckout(ctx, order.ID, intent.ID, "payment provider unavailable", err)
		util.CheckoutsTotal.WithLabelValues("provider_error").Inc()
		return nil, fmt.Errorf("%w: %v", apperr.ErrProviderUnavailable, err)
	}

	recorded, err := s.recordProviderRequest(ctx, intent.ID, init)
	if err != nil {
		// callbacks for this request id can no longer be matched
		s.logger.Error("Failed to record provider request id, cancelling order",
			zap.Int64("order_id", order.ID),
			zap.String("provider_request_id", init.ProviderRequestID),
			zap.Error(err))
		s.abortCheckout(ctx, order.ID, intent.ID, "payment request could not be recorded", err)
		util.CheckoutsTotal.WithLabelValues("record_failed").Inc()
		return nil, fmt.Errorf("%w: failed to record payment request: %v", apperr.ErrRetryable, err)
	}
	intent = recorded

	s.notifier.Notify(ctx, notification(order.UserID, models.NotificationPaymentRequested,
		"Payment requested",
		fmt.Sprintf("Enter your PIN to pay %d for order %s", order.TotalAmount, order.OrderNumber),
		order.OrderNumber))
	util.CheckoutsTotal.WithLabelValues("accepted").Inc()

	return &CheckoutResponse{
		OrderID:           order.ID,
		OrderNumber:       order.OrderNumber,
		Status:            order.Status,
		TotalAmount:       order.TotalAmount,
		ProviderRequestID: intent.ProviderRequestID,
		CustomerMessage:   init.CustomerMessage,
	}, nil
}

func validateCheckout(req *CheckoutRequest) error {
	if req.UserID <= 0 {
		return fmt.Errorf("%w: user is required", apperr.ErrInvalidArgument)
	}
	if len(req.Items) == 0 {
		return fmt.Errorf("%w: order has no items", apperr.ErrInvalidArgument)
	}
	for _, item := range req.Items {
		if item.ProductID <= 0 {
			return fmt.Errorf("%w: invalid product id %d", apperr.ErrInvalidArgument, item.ProductID)
		}
		if item.Quantity <= 0 {
			return fmt.Errorf("%w: quantity must be positive for product %d", apperr.ErrInvalidArgument, item.ProductID)
		}
	}
	req.PhoneNumber = strings.ReplaceAll(strings.TrimSpace(req.PhoneNumber), " ", "")
	if !phonePattern.MatchString(req.PhoneNumber) {
		return fmt.Errorf("%w: invalid phone number", apperr.ErrInvalidArgument)
	}
	return nil
}

func (s *OrderService) duplicateCheckout(ctx context.Context, key string, order *models.Order) *CheckoutResponse {
	s.logger.Info("Duplicate checkout request detected",
		zap.String("idempotency_key", key),
		zap.Int64("order_id", order.ID))
	util.CheckoutsTotal.WithLabelValues("duplicate").Inc()

	resp := &CheckoutResponse{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		Status:      order.Status,
		TotalAmount: order.TotalAmount,
		Duplicate:   true,
	}
	if intent, err := s.repo.GetPaymentIntentByOrderID(ctx, order.ID); err == nil {
		resp.ProviderRequestID = intent.ProviderRequestID
	}
	return resp
}

// snapshotItems merges lines of the same product, checks them against the
// catalog and captures name and unit price
func (s *OrderService) snapshotItems(ctx context.Context, reqItems []OrderItemRequest) ([]models.OrderItem, int64, error) {
	quantities := make(map[int64]int, len(reqItems))
	productIDs := make([]int64, 0, len(reqItems))
	for _, item := range reqItems {
		if _, ok := quantities[item.ProductID]; !ok {
			productIDs = append(productIDs, item.ProductID)
		}
		quantities[item.ProductID] += item.Quantity
	}
	sort.Slice(productIDs, func(i, j int) bool { return productIDs[i] < productIDs[j] })

	products, err := s.catalog.GetProductsByIDs(ctx, productIDs)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to load products: %w", err)
	}

	productMap := make(map[int64]models.Product, len(products))
	for _, p := range products {
		productMap[p.ID] = p
	}

	items := make([]models.OrderItem, 0, len(productIDs))
	var total int64
	for i, id := range productIDs {
		p, ok := productMap[id]
		if !ok {
			return nil, 0, fmt.Errorf("%w: product %d not found", apperr.ErrInvalidArgument, id)
		}
		if !p.Active {
			return nil, 0, fmt.Errorf("%w: product %d is not available", apperr.ErrInvalidArgument, id)
		}
		item := models.OrderItem{
			LineNo:      i + 1,
			ProductID:   id,
			ProductName: p.Name,
			Quantity:    quantities[id],
			UnitPrice:   p.Price,
		}
		total += item.LineTotal()
		items = append(items, item)
	}
	if total <= 0 {
		return nil, 0, fmt.Errorf("%w: order total must be positive", apperr.ErrInvalidArgument)
	}

	return items, total, nil
}

func (s *OrderService) requestPayment(ctx context.Context, order *models.Order) (*models.PaymentInitiation, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.requestPayment")
	defer span.End()

	util.PaymentAttemptsTotal.Inc()
	start := time.Now()
	defer func() {
		util.PaymentProviderLatency.Observe(time.Since(start).Seconds())
	}()

	init, err := s.provider.RequestPayment(ctx, models.PaymentRequest{
		Reference:   order.OrderNumber,
		Description: "Payment for order " + order.OrderNumber,
		Amount:      order.TotalAmount,
		PhoneNumber: order.PhoneNumber,
	})
	if err != nil {
		return nil, err
	}
	if init.ProviderRequestID == "" {
		return nil, errors.New("provider response has no request id")
	}
	return init, nil
}

// recordProviderRequestAttempts bounds the retries of recordProviderRequest
const recordProviderRequestAttempts = 3

var recordProviderRequestBackoff = 50 * time.Millisecond

// recordProviderRequest stores the provider's request id on the intent,
// retrying since the provider has already prompted the customer
func (s *OrderService) recordProviderRequest(ctx context.Context, intentID int64, init *models.PaymentInitiation) (*models.PaymentIntent, error) {
	var (
		intent *models.PaymentIntent
		err    error
	)
	for attempt := 1; attempt <= recordProviderRequestAttempts; attempt++ {
		err = s.repo.InTx(ctx, func(tx store.Tx) error {
			var err error
			intent, err = s.payments.RecordProviderRequest(ctx, tx, intentID, init)
			return err
		})
		if err == nil || errors.Is(err, apperr.ErrInvalidArgument) || attempt == recordProviderRequestAttempts {
			break
		}

		s.logger.Warn("Retrying provider request id write",
			zap.Int64("payment_intent_id", intentID),
			zap.Int("attempt", attempt),
			zap.Error(err))
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(attempt) * recordProviderRequestBackoff):
		}
	}
	return intent, err
}

// abortCheckout cancels an order whose payment could not be requested or
// recorded, releasing its reservation and failing its intent
func (s *OrderService) abortCheckout(ctx context.Context, orderID, intentID int64, reason string, cause error) {
	var fx *effects
	err := s.repo.InTx(ctx, func(tx store.Tx) error {
		fx = &effects{}

		order, err := tx.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		t, err := s.machine.Apply(ctx, tx, order, models.EventCheckoutAborted, reason)
		if err != nil {
			return err
		}
		if _, err := s.payments.Fail(ctx, tx, intentID, cause.Error()); err != nil && !errors.Is(err, apperr.ErrAlreadyProcessed) {
			return err
		}

		fx.transition(order, t)
		return nil
	})
	if err != nil {
		s.logger.Error("Failed to cancel order after provider error",
			zap.Int64("order_id", orderID),
			zap.Error(err))
		return
	}

	util.PaymentFailedTotal.WithLabelValues("provider_unavailable").Inc()
	s.flush(ctx, fx)
}

// ApplyPaymentOutcome resolves the payment intent named by the outcome and
// drives its order to CONFIRMED or FAILED, committing or releasing stock in
// the same transaction. It returns ErrNotFound for an unknown request id,
// ErrAlreadyProcessed when the intent is already terminal, and
// ErrAmountMismatch when a success reports the wrong amount.
func (s *OrderService) ApplyPaymentOutcome(ctx context.Context, outcome models.PaymentOutcome) error {
	ctx, span := util.StartSpan(ctx, "OrderService.ApplyPaymentOutcome")
	defer span.End()

	var fx *effects
	err := s.repo.InTx(ctx, func(tx store.Tx) error {
		fx = &effects{}

		intent, err := s.payments.Resolve(ctx, tx, outcome)
		if err != nil {
			return err
		}

		order, err := tx.GetOrderForUpdate(ctx, intent.OrderID)
		if err != nil {
			return err
		}
		if order.Status != models.OrderStatusPending {
			s.logger.Warn("Payment outcome for an order that is no longer pending",
				zap.Int64("order_id", order.ID),
				zap.String("status", string(order.Status)),
				zap.String("payment_status", string(intent.Status)),
				zap.String("provider_request_id", outcome.ProviderRequestID))
			return nil
		}

		event, reason := models.EventPaymentFailed, outcome.ResultDesc
		if outcome.Success {
			event, reason = models.EventPaymentSucceeded, ""
		}
		t, err := s.machine.Apply(ctx, tx, order, event, reason)
		if err != nil {
			return err
		}
		fx.transition(order, t)

		if outcome.Success {
			fx.fulfilment = append(fx.fulfilment, &models.FulfilmentReadyEvent{
				BaseEvent:     newBaseEvent(models.EventTypeFulfilmentReady),
				OrderID:       order.ID,
				OrderNumber:   order.OrderNumber,
				UserID:        order.UserID,
				ReceiptNumber: intent.ReceiptNumber,
				Items:         models.ItemData(order.Items),
			})
			fx.notifications = append(fx.notifications, notification(order.UserID,
				models.NotificationPaymentSucceeded,
				"Payment received",
				fmt.Sprintf("Payment of %d for order %s received, receipt %s",
					intent.Amount, order.OrderNumber, intent.ReceiptNumber),
				order.OrderNumber))
		}
		return nil
	})
	if err != nil {
		return err
	}

	if outcome.Success {
		util.PaymentSuccessTotal.Inc()
	} else if outcome.Timeout {
		util.PaymentFailedTotal.WithLabelValues("timeout").Inc()
	} else {
		util.PaymentFailedTotal.WithLabelValues("declined").Inc()
	}

	s.flush(ctx, fx)
	return nil
}

// GetOrder retrieves an order by ID
func (s *OrderService) GetOrder(ctx context.Context, orderID int64) (*models.Order, error) {
	return s.repo.GetOrder(ctx, orderID)
}

// GetOrderForUser retrieves an order owned by userID. Orders of other users
// are reported as not found.
func (s *OrderService) GetOrderForUser(ctx context.Context, userID, orderID int64) (*models.Order, error) {
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, fmt.Errorf("%w: order %d", apperr.ErrNotFound, orderID)
	}
	return order, nil
}

// ListOrders returns the orders of a user, newest first
func (s *OrderService) ListOrders(ctx context.Context, userID int64) ([]models.Order, error) {
	return s.repo.GetOrdersByUserID(ctx, userID)
}

// GetPayment returns the latest payment intent of an order
func (s *OrderService) GetPayment(ctx context.Context, orderID int64) (*models.PaymentIntent, error) {
	return s.repo.GetPaymentIntentByOrderID(ctx, orderID)
}

// CustomerCancel cancels a PENDING or CONFIRMED order on behalf of its owner
func (s *OrderService) CustomerCancel(ctx context.Context, userID, orderID int64, reason string) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.CustomerCancel")
	defer span.End()

	owner := func(o *models.Order) error {
		if o.UserID != userID {
			return fmt.Errorf("%w: order %d", apperr.ErrNotFound, orderID)
		}
		return nil
	}
	return s.transition(ctx, orderID, models.EventCustomerCancel, orDefault(reason, "cancelled by customer"), owner, nil)
}

// AdminCancel cancels any order that has not shipped
func (s *OrderService) AdminCancel(ctx context.Context, orderID int64, reason string) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.AdminCancel")
	defer span.End()

	return s.transition(ctx, orderID, models.EventAdminCancel, orDefault(reason, "cancelled by admin"), nil, nil)
}

var fulfilmentEvents = map[models.OrderStatus]models.OrderEvent{
	models.OrderStatusProcessing:     models.EventStartProcessing,
	models.OrderStatusShipped:        models.EventShip,
	models.OrderStatusOutForDelivery: models.EventOutForDelivery,
	models.OrderStatusDelivered:      models.EventDeliver,
}

// Advance moves a confirmed order one step along fulfilment
func (s *OrderService) Advance(ctx context.Context, orderID int64, target models.OrderStatus) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.Advance")
	defer span.End()

	event, ok := fulfilmentEvents[target]
	if !ok {
		return nil, fmt.Errorf("%w: %q is not a fulfilment status", apperr.ErrInvalidArgument, target)
	}
	return s.transition(ctx, orderID, event, "", nil, nil)
}

// AcceptReturn marks a delivered order returned and restocks its lines
func (s *OrderService) AcceptReturn(ctx context.Context, orderID int64, reason string) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.AcceptReturn")
	defer span.End()

	return s.transition(ctx, orderID, models.EventReturn, orDefault(reason, "return accepted"), nil, nil)
}

// Refund refunds a paid order. Stock still committed to it is restocked and
// the successful payment is marked REFUNDED.
func (s *OrderService) Refund(ctx context.Context, orderID int64, reason string) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.Refund")
	defer span.End()

	refundPayment := func(ctx context.Context, tx store.Tx, order *models.Order) error {
		_, err := s.payments.Refund(ctx, tx, order.ID)
		return err
	}
	return s.transition(ctx, orderID, models.EventRefund, orDefault(reason, "refunded"), nil, refundPayment)
}

// DeleteOrder removes a terminal order whose stock has been resolved,
// together with its items and payment intents
func (s *OrderService) DeleteOrder(ctx context.Context, orderID int64) error {
	ctx, span := util.StartSpan(ctx, "OrderService.DeleteOrder")
	defer span.End()

	err := s.repo.InTx(ctx, func(tx store.Tx) error {
		order, err := tx.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if !order.Status.IsTerminal() || !order.StockState.IsResolved() {
			return fmt.Errorf("%w: order %d is %s with stock %s",
				apperr.ErrConflict, orderID, order.Status, order.StockState)
		}
		return tx.DeleteOrder(ctx, orderID)
	})
	if err != nil {
		return err
	}

	s.logger.Info("Order deleted", zap.Int64("order_id", orderID))
	return nil
}

func (s *OrderService) transition(
	ctx context.Context,
	orderID int64,
	event models.OrderEvent,
	reason string,
	check func(*models.Order) error,
	also func(context.Context, store.Tx, *models.Order) error,
) (*models.Order, error) {
	var (
		order *models.Order
		fx    *effects
	)
	err := s.repo.InTx(ctx, func(tx store.Tx) error {
		fx = &effects{}

		var err error
		order, err = tx.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if check != nil {
			if err := check(order); err != nil {
				return err
			}
		}

		t, err := s.machine.Apply(ctx, tx, order, event, reason)
		if err != nil {
			return err
		}
		if also != nil {
			if err := also(ctx, tx, order); err != nil {
				return err
			}
		}

		fx.transition(order, t)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.flush(ctx, fx)
	return order, nil
}

// effects are the events and notifications of a transaction, emitted only
// after it commits
type effects struct {
	orderEvents   []*models.OrderEventMessage
	fulfilment    []*models.FulfilmentReadyEvent
	notifications []models.NotificationEvent
}

func (fx *effects) transition(order *models.Order, t *Transition) {
	eventType := models.EventTypeOrderStatusChange
	switch t.To {
	case models.OrderStatusConfirmed:
		eventType = models.EventTypeOrderConfirmed
	case models.OrderStatusFailed:
		eventType = models.EventTypeOrderFailed
		fx.notifications = append(fx.notifications, notification(order.UserID,
			models.NotificationPaymentFailed,
			"Payment failed",
			fmt.Sprintf("Payment for order %s was not completed: %s", order.OrderNumber, order.StatusReason),
			order.OrderNumber))
	case models.OrderStatusCancelled:
		eventType = models.EventTypeOrderCancelled
		fx.notifications = append(fx.notifications, notification(order.UserID,
			models.NotificationOrderCancelled,
			"Order cancelled",
			fmt.Sprintf("Order %s was cancelled: %s", order.OrderNumber, order.StatusReason),
			order.OrderNumber))
	}

	msg := orderEvent(eventType, order, t.From, t.Action)
	fx.orderEvents = append(fx.orderEvents, msg)
	fx.lowStock(t.LowStock)
}

func (fx *effects) lowStock(records []models.InventoryRecord) {
	for _, rec := range records {
		fx.notifications = append(fx.notifications, notification(0,
			models.NotificationLowStock,
			"Low stock",
			fmt.Sprintf("Product %d has %d units available (threshold %d)",
				rec.ProductID, rec.AvailableStock(), rec.LowStockThreshold),
			fmt.Sprintf("product:%d", rec.ProductID)))
	}
}

// flush hands the collected effects to the publisher and notifier. Failures
// are logged and never undo the committed transaction.
func (s *OrderService) flush(ctx context.Context, fx *effects) {
	if fx == nil {
		return
	}

	for _, event := range fx.orderEvents {
		if event.FromStatus != "" {
			util.OrderTransitionsTotal.WithLabelValues(string(event.FromStatus), string(event.Status)).Inc()
		}
		if err := s.publisher.PublishOrderEvent(ctx, event); err != nil {
			s.logger.Error("Failed to publish order event",
				zap.String("event_type", event.EventType),
				zap.Int64("order_id", event.OrderID),
				zap.Error(err))
		}
	}

	for _, event := range fx.fulfilment {
		if err := s.publisher.PublishFulfilmentReady(ctx, event); err != nil {
			s.logger.Error("Failed to publish FulfilmentReady event",
				zap.Int64("order_id", event.OrderID),
				zap.Error(err))
		}
	}

	for _, n := range fx.notifications {
		if n.Type == models.NotificationLowStock {
			util.LowStockAlertsTotal.Inc()
		}
		s.notifier.Notify(ctx, n)
	}
}

func newBaseEvent(eventType string) models.BaseEvent {
	return models.BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now(),
	}
}

func orderEvent(eventType string, order *models.Order, from models.OrderStatus, action models.StockAction) *models.OrderEventMessage {
	return &models.OrderEventMessage{
		BaseEvent:   newBaseEvent(eventType),
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		UserID:      order.UserID,
		FromStatus:  from,
		Status:      order.Status,
		StockAction: action,
		TotalAmount: order.TotalAmount,
		Reason:      order.StatusReason,
		Items:       models.ItemData(order.Items),
	}
}

func notification(userID int64, kind, title, message, reference string) models.NotificationEvent {
	return models.NotificationEvent{
		BaseEvent: newBaseEvent(models.EventTypeNotification),
		UserID:    userID,
		Type:      kind,
		Title:     title,
		Message:   message,
		Reference: reference,
	}
}

func newOrderNumber() string {
	return fmt.Sprintf("ORD-%s-%s",
		time.Now().UTC().Format("20060102"),
		strings.ToUpper(uuid.New().String()[:8]))
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
