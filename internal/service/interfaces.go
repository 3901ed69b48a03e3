// Package service provides business logic layer implementations.
package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/jnst/order-notification-outbox/internal/broker"
	"github.com/jnst/order-notification-outbox/internal/model"
	"github.com/jnst/order-notification-outbox/internal/repository"
)

const (
	// DefaultListLimit is used when a list request does not specify a limit.
	DefaultListLimit = 100
	// MaxListLimit caps the number of rows returned by list operations.
	MaxListLimit = 1000
)

// OrderService defines business logic methods for order management.
type OrderService interface {
	CreateOrder(ctx context.Context, params *model.CreateOrderParams) (*model.Order, error)
	GetOrder(ctx context.Context, id uuid.UUID) (*model.Order, error)
	ListOrders(ctx context.Context, limit int) ([]*model.Order, error)
}

// OutboxService defines business logic methods for outbox event processing.
type OutboxService interface {
	// FetchUnpublishedEvents returns up to limit unpublished events, oldest first,
	// repairing a missing schema once if needed.
	FetchUnpublishedEvents(ctx context.Context, session repository.OutboxSession, limit int) ([]*model.OutboxEvent, error)
	// PublishEvents publishes each event and marks it published. Failures are
	// isolated per event and leave the event unpublished.
	PublishEvents(
		ctx context.Context,
		repo repository.OutboxRepository,
		b broker.Broker,
		events []*model.OutboxEvent,
	) BatchResult
}

// NotificationService defines business logic methods for customer notifications.
type NotificationService interface {
	// RecordOrderCreated notifies the customer of a created order at most once per event id.
	RecordOrderCreated(ctx context.Context, event *model.OrderCreatedEvent) (RecordOutcome, error)
	GetNotification(ctx context.Context, id uuid.UUID) (*model.Notification, error)
	// ListNotifications lists notifications, restricted to orderID unless it is uuid.Nil.
	ListNotifications(ctx context.Context, orderID uuid.UUID, limit int) ([]*model.Notification, error)
}

// Sender delivers a notification to the customer.
type Sender interface {
	Send(ctx context.Context, notification *model.Notification) error
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultListLimit
	case limit > MaxListLimit:
		return MaxListLimit
	default:
		return limit
	}
}
