package db

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const createNotification = `
INSERT INTO notifications (id, order_id, email, type, delivered, error_message, created_at, event_id)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING id, order_id, email, type, delivered, error_message, created_at, event_id
`

type CreateNotificationParams struct {
	ID           uuid.UUID
	OrderID      uuid.UUID
	Email        string
	Type         string
	Delivered    bool
	ErrorMessage pgtype.Text
	CreatedAt    pgtype.Timestamptz
	EventID      uuid.UUID
}

func (q *Queries) CreateNotification(ctx context.Context, arg *CreateNotificationParams) (Notification, error) {
	row := q.db.QueryRow(ctx, createNotification,
		arg.ID,
		arg.OrderID,
		arg.Email,
		arg.Type,
		arg.Delivered,
		arg.ErrorMessage,
		arg.CreatedAt,
		arg.EventID,
	)
	var i Notification
	err := scanNotification(row, &i)
	return i, err
}

const getNotification = `
SELECT id, order_id, email, type, delivered, error_message, created_at, event_id
FROM notifications
WHERE id = $1
`

func (q *Queries) GetNotification(ctx context.Context, id uuid.UUID) (Notification, error) {
	row := q.db.QueryRow(ctx, getNotification, id)
	var i Notification
	err := scanNotification(row, &i)
	return i, err
}

const getNotificationByEventID = `
SELECT id, order_id, email, type, delivered, error_message, created_at, event_id
FROM notifications
WHERE event_id = $1
`

func (q *Queries) GetNotificationByEventID(ctx context.Context, eventID uuid.UUID) (Notification, error) {
	row := q.db.QueryRow(ctx, getNotificationByEventID, eventID)
	var i Notification
	err := scanNotification(row, &i)
	return i, err
}

const listNotifications = `
SELECT id, order_id, email, type, delivered, error_message, created_at, event_id
FROM notifications
ORDER BY created_at DESC
LIMIT $1
`

func (q *Queries) ListNotifications(ctx context.Context, limit int32) ([]Notification, error) {
	rows, err := q.db.Query(ctx, listNotifications, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Notification
	for rows.Next() {
		var i Notification
		if err := scanNotification(rows, &i); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const listNotificationsByOrder = `
SELECT id, order_id, email, type, delivered, error_message, created_at, event_id
FROM notifications
WHERE order_id = $1
ORDER BY created_at DESC
LIMIT $2
`

type ListNotificationsByOrderParams struct {
	OrderID uuid.UUID
	Limit   int32
}

func (q *Queries) ListNotificationsByOrder(ctx context.Context, arg *ListNotificationsByOrderParams) ([]Notification, error) {
	rows, err := q.db.Query(ctx, listNotificationsByOrder, arg.OrderID, arg.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Notification
	for rows.Next() {
		var i Notification
		if err := scanNotification(rows, &i); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func scanNotification(row interface{ Scan(dest ...any) error }, i *Notification) error {
	return row.Scan(
		&i.ID,
		&i.OrderID,
		&i.Email,
		&i.Type,
		&i.Delivered,
		&i.ErrorMessage,
		&i.CreatedAt,
		&i.EventID,
	)
}
