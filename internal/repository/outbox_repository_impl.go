package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/jnst/order-notification-outbox/internal/db"
	"github.com/jnst/order-notification-outbox/internal/model"
)

// OutboxRepositoryImpl implements OutboxRepository using PostgreSQL.
type OutboxRepositoryImpl struct {
	db *db.Queries
}

// NewOutboxRepositoryImpl creates a new OutboxRepository implementation.
func NewOutboxRepositoryImpl(conn db.DBTX) OutboxRepository {
	return &OutboxRepositoryImpl{
		db: db.New(conn),
	}
}

// CreateEvent creates a new outbox event.
func (r *OutboxRepositoryImpl) CreateEvent(
	ctx context.Context, params *model.CreateOutboxEventParams,
) (*model.OutboxEvent, error) {
	dbEvent, err := queries(ctx, r.db).CreateOutboxEvent(ctx, &db.CreateOutboxEventParams{
		ID:         params.ID,
		EventID:    params.EventID,
		OccurredAt: pgtype.Timestamptz{Time: params.OccurredAt, Valid: true},
		EventType:  string(params.EventType),
		Payload:    string(params.Payload),
	})
	if err != nil {
		return nil, translateError(err)
	}

	return toOutboxEvent(&dbEvent), nil
}

// GetUnpublishedEvents retrieves unpublished outbox events, oldest first.
func (r *OutboxRepositoryImpl) GetUnpublishedEvents(ctx context.Context, limit int) ([]*model.OutboxEvent, error) {
	dbEvents, err := queries(ctx, r.db).GetUnpublishedEvents(ctx, int32(limit)) //nolint:gosec // bounded by config
	if err != nil {
		return nil, translateError(err)
	}

	events := make([]*model.OutboxEvent, len(dbEvents))
	for i := range dbEvents {
		events[i] = toOutboxEvent(&dbEvents[i])
	}

	return events, nil
}

// MarkAsPublished marks an outbox event as published. Marking an already
// published event is a no-op.
func (r *OutboxRepositoryImpl) MarkAsPublished(ctx context.Context, id uuid.UUID, publishedAt time.Time) error {
	_, err := queries(ctx, r.db).MarkEventAsPublished(ctx, &db.MarkEventAsPublishedParams{
		ID:          id,
		PublishedAt: pgtype.Timestamptz{Time: publishedAt, Valid: true},
	})

	return translateError(err)
}

func toOutboxEvent(e *db.OutboxEvent) *model.OutboxEvent {
	var publishedAt *time.Time
	if e.PublishedAt.Valid {
		publishedAt = &e.PublishedAt.Time
	}

	return &model.OutboxEvent{
		ID:          e.ID,
		EventID:     e.EventID,
		OccurredAt:  e.OccurredAt.Time,
		EventType:   model.EventType(e.EventType),
		Payload:     []byte(e.Payload),
		Published:   e.Published,
		PublishedAt: publishedAt,
	}
}
