package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/jnst/order-notification-outbox/internal/db"
	"github.com/jnst/order-notification-outbox/internal/model"
)

// NotificationRepositoryImpl implements NotificationRepository using PostgreSQL.
type NotificationRepositoryImpl struct {
	db *db.Queries
}

// NewNotificationRepositoryImpl creates a new NotificationRepository implementation.
func NewNotificationRepositoryImpl(conn db.DBTX) NotificationRepository {
	return &NotificationRepositoryImpl{
		db: db.New(conn),
	}
}

// Create inserts a notification. A second row for the same event id fails
// with model.ErrDuplicateEvent.
func (r *NotificationRepositoryImpl) Create(
	ctx context.Context, notification *model.Notification,
) (*model.Notification, error) {
	var errorMessage pgtype.Text
	if notification.ErrorMessage != nil {
		errorMessage = pgtype.Text{String: *notification.ErrorMessage, Valid: true}
	}

	dbNotification, err := queries(ctx, r.db).CreateNotification(ctx, &db.CreateNotificationParams{
		ID:           notification.ID,
		OrderID:      notification.OrderID,
		Email:        notification.Email,
		Type:         string(notification.Type),
		Delivered:    notification.Delivered,
		ErrorMessage: errorMessage,
		CreatedAt:    pgtype.Timestamptz{Time: notification.CreatedAt, Valid: true},
		EventID:      notification.EventID,
	})
	if err != nil {
		return nil, translateError(err)
	}

	return toNotification(&dbNotification), nil
}

// GetByID retrieves a notification by ID.
func (r *NotificationRepositoryImpl) GetByID(ctx context.Context, id uuid.UUID) (*model.Notification, error) {
	dbNotification, err := queries(ctx, r.db).GetNotification(ctx, id)
	if err != nil {
		return nil, notFound(err)
	}

	return toNotification(&dbNotification), nil
}

// GetByEventID retrieves the notification recorded for an event.
func (r *NotificationRepositoryImpl) GetByEventID(ctx context.Context, eventID uuid.UUID) (*model.Notification, error) {
	dbNotification, err := queries(ctx, r.db).GetNotificationByEventID(ctx, eventID)
	if err != nil {
		return nil, notFound(err)
	}

	return toNotification(&dbNotification), nil
}

// List retrieves the most recent notifications.
func (r *NotificationRepositoryImpl) List(ctx context.Context, limit int) ([]*model.Notification, error) {
	dbNotifications, err := queries(ctx, r.db).ListNotifications(ctx, int32(limit)) //nolint:gosec // bounded by caller
	if err != nil {
		return nil, translateError(err)
	}

	return toNotifications(dbNotifications), nil
}

// ListByOrderID retrieves the notifications sent for an order.
func (r *NotificationRepositoryImpl) ListByOrderID(
	ctx context.Context, orderID uuid.UUID, limit int,
) ([]*model.Notification, error) {
	dbNotifications, err := queries(ctx, r.db).ListNotificationsByOrder(ctx, &db.ListNotificationsByOrderParams{
		OrderID: orderID,
		Limit:   int32(limit), //nolint:gosec // bounded by caller
	})
	if err != nil {
		return nil, translateError(err)
	}

	return toNotifications(dbNotifications), nil
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return model.ErrNotificationNotFound
	}

	return translateError(err)
}

func toNotifications(rows []db.Notification) []*model.Notification {
	notifications := make([]*model.Notification, len(rows))
	for i := range rows {
		notifications[i] = toNotification(&rows[i])
	}

	return notifications
}

func toNotification(n *db.Notification) *model.Notification {
	var errorMessage *string
	if n.ErrorMessage.Valid {
		errorMessage = &n.ErrorMessage.String
	}

	return &model.Notification{
		ID:           n.ID,
		OrderID:      n.OrderID,
		Email:        n.Email,
		Type:         model.NotificationType(n.Type),
		Delivered:    n.Delivered,
		ErrorMessage: errorMessage,
		CreatedAt:    n.CreatedAt.Time,
		EventID:      n.EventID,
	}
}
