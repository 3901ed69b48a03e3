// Package repository provides data access interfaces and implementations.
package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jnst/order-notification-outbox/internal/model"
)

// OrderRepository defines methods for order data access.
type OrderRepository interface {
	Create(ctx context.Context, order *model.Order) (*model.Order, error)
	GetByID(ctx context.Context, id uuid.UUID) (*model.Order, error)
	List(ctx context.Context, limit int) ([]*model.Order, error)
}

// OutboxRepository defines methods for outbox event data access.
type OutboxRepository interface {
	CreateEvent(ctx context.Context, params *model.CreateOutboxEventParams) (*model.OutboxEvent, error)
	GetUnpublishedEvents(ctx context.Context, limit int) ([]*model.OutboxEvent, error)
	MarkAsPublished(ctx context.Context, id uuid.UUID, publishedAt time.Time) error
}

// NotificationRepository defines methods for notification data access.
type NotificationRepository interface {
	Create(ctx context.Context, notification *model.Notification) (*model.Notification, error)
	GetByID(ctx context.Context, id uuid.UUID) (*model.Notification, error)
	GetByEventID(ctx context.Context, eventID uuid.UUID) (*model.Notification, error)
	List(ctx context.Context, limit int) ([]*model.Notification, error)
	ListByOrderID(ctx context.Context, orderID uuid.UUID, limit int) ([]*model.Notification, error)
}

// TransactionManager defines methods for database transaction management.
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// OutboxSession is a short-lived handle on the order store. Release must be
// called exactly when the unit of work ends.
type OutboxSession interface {
	OutboxRepository
	Ping(ctx context.Context) error
	EnsureSchema(ctx context.Context) error
	Release()
}

// OutboxStore hands out outbox sessions.
type OutboxStore interface {
	Acquire(ctx context.Context) (OutboxSession, error)
}

// NotificationSession is a short-lived handle on the notification store.
type NotificationSession interface {
	NotificationRepository
	Release()
}

// NotificationStore hands out notification sessions.
type NotificationStore interface {
	Acquire(ctx context.Context) (NotificationSession, error)
}
