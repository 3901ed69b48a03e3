package db

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const createOutboxEvent = `
INSERT INTO outbox_events (id, event_id, occurred_at, event_type, payload, published)
VALUES ($1, $2, $3, $4, $5, FALSE)
RETURNING id, event_id, occurred_at, event_type, payload, published, published_at
`

type CreateOutboxEventParams struct {
	ID         uuid.UUID
	EventID    uuid.UUID
	OccurredAt pgtype.Timestamptz
	EventType  string
	Payload    string
}

func (q *Queries) CreateOutboxEvent(ctx context.Context, arg *CreateOutboxEventParams) (OutboxEvent, error) {
	row := q.db.QueryRow(ctx, createOutboxEvent,
		arg.ID,
		arg.EventID,
		arg.OccurredAt,
		arg.EventType,
		arg.Payload,
	)
	var i OutboxEvent
	err := row.Scan(
		&i.ID,
		&i.EventID,
		&i.OccurredAt,
		&i.EventType,
		&i.Payload,
		&i.Published,
		&i.PublishedAt,
	)
	return i, err
}

const getUnpublishedEvents = `
SELECT id, event_id, occurred_at, event_type, payload, published, published_at
FROM outbox_events
WHERE published = FALSE
ORDER BY occurred_at ASC
LIMIT $1
`

func (q *Queries) GetUnpublishedEvents(ctx context.Context, limit int32) ([]OutboxEvent, error) {
	rows, err := q.db.Query(ctx, getUnpublishedEvents, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []OutboxEvent
	for rows.Next() {
		var i OutboxEvent
		if err := rows.Scan(
			&i.ID,
			&i.EventID,
			&i.OccurredAt,
			&i.EventType,
			&i.Payload,
			&i.Published,
			&i.PublishedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const markEventAsPublished = `
UPDATE outbox_events
SET published = TRUE, published_at = $2
WHERE id = $1 AND published = FALSE
`

type MarkEventAsPublishedParams struct {
	ID          uuid.UUID
	PublishedAt pgtype.Timestamptz
}

func (q *Queries) MarkEventAsPublished(ctx context.Context, arg *MarkEventAsPublishedParams) (int64, error) {
	result, err := q.db.Exec(ctx, markEventAsPublished, arg.ID, arg.PublishedAt)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}
