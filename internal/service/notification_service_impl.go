package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/jnst/order-notification-outbox/internal/logger"
	"github.com/jnst/order-notification-outbox/internal/model"
	"github.com/jnst/order-notification-outbox/internal/repository"
)

// RecordOutcome tells what RecordOrderCreated did with an event.
type RecordOutcome int

const (
	// RecordCreated means a new notification was stored.
	RecordCreated RecordOutcome = iota + 1
	// RecordDuplicate means the event had already been processed.
	RecordDuplicate
)

func (o RecordOutcome) String() string {
	switch o {
	case RecordCreated:
		return "created"
	case RecordDuplicate:
		return "duplicate"
	default:
		return "unknown"
	}
}

// NotificationServiceImpl implements NotificationService.
type NotificationServiceImpl struct {
	store  repository.NotificationStore
	reader repository.NotificationRepository
	sender Sender
	now    func() time.Time
}

// NewNotificationServiceImpl creates a new NotificationService implementation.
// store backs message processing, reader backs the query methods.
func NewNotificationServiceImpl(
	store repository.NotificationStore,
	reader repository.NotificationRepository,
	sender Sender,
) NotificationService {
	return &NotificationServiceImpl{
		store:  store,
		reader: reader,
		sender: sender,
		now:    time.Now,
	}
}

// RecordOrderCreated sends and stores the notification for event unless a
// notification with the same event id already exists.
func (s *NotificationServiceImpl) RecordOrderCreated(
	ctx context.Context,
	event *model.OrderCreatedEvent,
) (RecordOutcome, error) {
	log := logger.FromContext(ctx)

	session, err := s.store.Acquire(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to open notification session: %w", err)
	}
	defer session.Release()

	_, err = session.GetByEventID(ctx, event.EventID)
	switch {
	case err == nil:
		log.Info("event already processed, skipping")
		return RecordDuplicate, nil
	case !errors.Is(err, model.ErrNotificationNotFound):
		return 0, fmt.Errorf("failed to look up notification: %w", err)
	}

	notification := &model.Notification{
		ID:        uuid.New(),
		OrderID:   event.OrderID,
		Email:     event.CustomerEmail,
		Type:      model.NotificationTypeOrderCreated,
		CreatedAt: s.now().UTC(),
		EventID:   event.EventID,
	}

	message := model.DeliverySucceededMessage
	if err := s.sender.Send(ctx, notification); err != nil {
		log.Warn("notification delivery failed", slog.String("error", err.Error()))
		message = err.Error()
	} else {
		notification.Delivered = true
	}
	notification.ErrorMessage = &message

	if _, err := session.Create(ctx, notification); err != nil {
		if errors.Is(err, model.ErrDuplicateEvent) {
			log.Info("event processed concurrently, skipping")
			return RecordDuplicate, nil
		}

		return 0, fmt.Errorf("failed to save notification: %w", err)
	}

	log.Info("notification recorded",
		slog.String("notification_id", notification.ID.String()),
		slog.Bool("delivered", notification.Delivered),
	)

	return RecordCreated, nil
}

// GetNotification retrieves a notification by ID.
func (s *NotificationServiceImpl) GetNotification(ctx context.Context, id uuid.UUID) (*model.Notification, error) {
	return s.reader.GetByID(ctx, id)
}

// ListNotifications returns the most recent notifications, optionally for one order.
func (s *NotificationServiceImpl) ListNotifications(
	ctx context.Context,
	orderID uuid.UUID,
	limit int,
) ([]*model.Notification, error) {
	if orderID != uuid.Nil {
		return s.reader.ListByOrderID(ctx, orderID, clampLimit(limit))
	}

	return s.reader.List(ctx, clampLimit(limit))
}
