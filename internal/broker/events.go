package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"checkout-engine/internal/models"
	"checkout-engine/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EventPublisher handles publishing domain events
type EventPublisher struct {
	orders     Publisher
	fulfilment Publisher
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(orders, fulfilment Publisher) *EventPublisher {
	return &EventPublisher{orders: orders, fulfilment: fulfilment}
}

func orderKey(orderID int64) string {
	return fmt.Sprintf("order-%d", orderID)
}

// PublishOrderEvent publishes an order lifecycle event
func (ep *EventPublisher) PublishOrderEvent(ctx context.Context, event *models.OrderEventMessage) error {
	return ep.orders.PublishEvent(ctx, orderKey(event.OrderID), event)
}

// PublishFulfilmentReady publishes FulfilmentReady event
func (ep *EventPublisher) PublishFulfilmentReady(ctx context.Context, event *models.FulfilmentReadyEvent) error {
	return ep.fulfilment.PublishEvent(ctx, orderKey(event.OrderID), event)
}

// Notifier publishes user notifications without blocking the caller
type Notifier struct {
	publisher Publisher
	timeout   time.Duration
	logger    *zap.Logger
}

// NewNotifier creates a notifier over the notifications topic
func NewNotifier(publisher Publisher) *Notifier {
	return &Notifier{
		publisher: publisher,
		timeout:   5 * time.Second,
		logger:    util.GetLogger(),
	}
}

// Notify hands n to a background publish. Delivery failures are logged.
func (n *Notifier) Notify(_ context.Context, event models.NotificationEvent) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
		defer cancel()

		key := fmt.Sprintf("user-%d", event.UserID)
		if err := n.publisher.PublishEvent(ctx, key, event); err != nil {
			n.logger.Error("Failed to publish notification",
				zap.String("type", event.Type),
				zap.Int64("user_id", event.UserID),
				zap.String("reference", event.Reference),
				zap.Error(err))
		}
	}()
}

// LogNotifier writes notifications to the log, used when Kafka is disabled
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a log-only notifier
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{logger: util.GetLogger()}
}

// Notify logs the notification
func (n *LogNotifier) Notify(_ context.Context, event models.NotificationEvent) {
	n.logger.Info("Notification",
		zap.String("type", event.Type),
		zap.Int64("user_id", event.UserID),
		zap.String("title", event.Title),
		zap.String("message", event.Message),
		zap.String("reference", event.Reference))
}

// LogPublisher writes events to the log, used when Kafka is disabled
type LogPublisher struct {
	logger *zap.Logger
}

// NewLogPublisher creates a log-only publisher
func NewLogPublisher() *LogPublisher {
	return &LogPublisher{logger: util.GetLogger()}
}

// PublishEvent logs the event
func (p *LogPublisher) PublishEvent(_ context.Context, key string, event interface{}) error {
	p.logger.Info("Event", zap.String("key", key), zap.Any("event", event))
	return nil
}

// CallbackQueue queues authenticated payment callbacks on a topic, keyed by
// provider request id so redeliveries of one callback stay in order
type CallbackQueue struct {
	publisher Publisher
}

// NewCallbackQueue creates a Kafka backed callback queue
func NewCallbackQueue(publisher Publisher) *CallbackQueue {
	return &CallbackQueue{publisher: publisher}
}

// Enqueue publishes the callback event
func (q *CallbackQueue) Enqueue(ctx context.Context, event *models.PaymentCallbackEvent) error {
	return q.publisher.PublishEvent(ctx, event.Outcome.ProviderRequestID, event)
}

// EventHandler handles incoming events
type EventHandler struct {
	onPaymentCallback func(context.Context, *models.PaymentCallbackEvent) error
	logger            *zap.Logger
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{logger: util.GetLogger()}
}

// OnPaymentCallback registers a handler for PaymentCallback events
func (eh *EventHandler) OnPaymentCallback(handler func(context.Context, *models.PaymentCallbackEvent) error) {
	eh.onPaymentCallback = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		eh.logger.Error("Dropping undecodable message", zap.ByteString("key", msg.Key), zap.Error(err))
		return nil
	}

	switch baseEvent.EventType {
	case models.EventTypePaymentCallback:
		if eh.onPaymentCallback != nil {
			var event models.PaymentCallbackEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				eh.logger.Error("Dropping undecodable PaymentCallback event",
					zap.String("event_id", baseEvent.EventID),
					zap.Error(err))
				return nil
			}
			return eh.onPaymentCallback(ctx, &event)
		}

	default:
		eh.logger.Warn("Unhandled event type",
			zap.String("event_type", baseEvent.EventType),
			zap.String("event_id", baseEvent.EventID))
	}

	return nil
}
