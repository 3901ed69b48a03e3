// Package consumer turns broker deliveries into stored notifications.
package consumer

import (
	"context"
	"log/slog"
	"time"

	"github.com/jnst/order-notification-outbox/internal/broker"
	"github.com/jnst/order-notification-outbox/internal/logger"
	"github.com/jnst/order-notification-outbox/internal/metrics"
	"github.com/jnst/order-notification-outbox/internal/model"
	"github.com/jnst/order-notification-outbox/internal/service"
)

// MessageHandler settles one delivery at a time.
type MessageHandler struct {
	notifications service.NotificationService
	metrics       *metrics.Metrics
	retryDelay    time.Duration
	sleep         func(context.Context, time.Duration) error
}

// NewMessageHandler creates a new message handler instance. retryDelay is
// waited before a failed message is handed back to the broker.
func NewMessageHandler(
	notifications service.NotificationService,
	m *metrics.Metrics,
	retryDelay time.Duration,
) *MessageHandler {
	return &MessageHandler{
		notifications: notifications,
		metrics:       m,
		retryDelay:    retryDelay,
		sleep:         broker.Sleep,
	}
}

// Handle processes d and acknowledges it only once its notification is
// stored or known to exist. Malformed payloads are dropped; other failures
// are requeued.
func (h *MessageHandler) Handle(ctx context.Context, d broker.Delivery) {
	log := logger.FromContext(ctx).With(
		slog.String("message_id", d.MessageID),
		slog.Bool("redelivered", d.Redelivered),
	)

	event, err := model.DecodeOrderCreatedEvent(d.Body)
	if err != nil {
		log.Error("dropping malformed message",
			slog.String("error", err.Error()),
			slog.String("body", string(d.Body)),
		)
		h.metrics.MessageConsumed(metrics.OutcomeMalformed)
		settle(log, d.Nack(false))

		return
	}

	log = log.With(
		slog.String("event_id", event.EventID.String()),
		slog.String("order_id", event.OrderID.String()),
	)
	ctx = logger.NewContext(ctx, log)

	outcome, err := h.HandleOrderCreatedEvent(ctx, event)
	if err != nil {
		log.Error("failed to process message, requeueing",
			slog.Duration("retry_in", h.retryDelay),
			slog.String("error", err.Error()),
		)
		h.metrics.MessageConsumed(metrics.OutcomeFailed)

		_ = h.sleep(ctx, h.retryDelay)
		settle(log, d.Nack(true))

		return
	}

	h.metrics.MessageConsumed(outcome.String())
	settle(log, d.Ack())
}

// HandleOrderCreatedEvent records the notification for an order creation event.
func (h *MessageHandler) HandleOrderCreatedEvent(
	ctx context.Context,
	event *model.OrderCreatedEvent,
) (service.RecordOutcome, error) {
	logger.FromContext(ctx).Info("processing order event",
		slog.String("event_type", string(model.EventTypeOrderCreated)),
		slog.String("product_code", event.ProductCode),
		slog.Int("quantity", event.Quantity),
	)

	return h.notifications.RecordOrderCreated(ctx, event)
}

func settle(log *slog.Logger, err error) {
	if err != nil {
		log.Warn("failed to settle message", slog.String("error", err.Error()))
	}
}

// Consumer subscribes to the broker and feeds deliveries to a MessageHandler,
// reconnecting whenever the subscription is lost.
type Consumer struct {
	connector *broker.Connector
	handler   *MessageHandler
}

// New creates a Consumer.
func New(connector *broker.Connector, handler *MessageHandler) *Consumer {
	return &Consumer{connector: connector, handler: handler}
}

// Run consumes until ctx is done. It returns nil on cancellation, including
// cancellation before the first connection succeeds. Sessions that end
// before delivering anything back off like failed dials.
func (c *Consumer) Run(ctx context.Context) error {
	log := logger.FromContext(ctx)

	failures := 0
	for {
		conn, err := c.connector.Connect(ctx)
		if err != nil {
			log.Info("consumer stopped")
			return nil
		}

		delivered, err := c.consume(ctx, conn)

		if closeErr := conn.Close(); closeErr != nil {
			log.Warn("failed to close broker connection", slog.String("error", closeErr.Error()))
		}

		if ctx.Err() != nil {
			log.Info("consumer stopped")
			return nil
		}

		c.connector.Disconnected()
		log.Warn("subscription lost, reconnecting", slog.String("error", err.Error()))

		if delivered > 0 {
			failures = 0
			continue
		}

		failures++
		if err := c.connector.Backoff(ctx, failures); err != nil {
			log.Info("consumer stopped")
			return nil
		}
	}
}

func (c *Consumer) consume(ctx context.Context, conn broker.Broker) (int, error) {
	deliveries, err := conn.Consume(ctx)
	if err != nil {
		return 0, err
	}

	logger.FromContext(ctx).Info("waiting for messages")

	delivered := 0
	for d := range deliveries {
		delivered++
		c.handler.Handle(ctx, d)
	}

	return delivered, broker.ErrClosed
}
