package db

import (
	"context"
	_ "embed"
)

//go:embed schema/orders.sql
var orderSchema string

//go:embed schema/notifications.sql
var notificationSchema string

// EnsureOrderSchema creates the orders and outbox_events tables if missing.
func (q *Queries) EnsureOrderSchema(ctx context.Context) error {
	_, err := q.db.Exec(ctx, orderSchema)
	return err
}

// EnsureNotificationSchema creates the notifications table if missing.
func (q *Queries) EnsureNotificationSchema(ctx context.Context) error {
	_, err := q.db.Exec(ctx, notificationSchema)
	return err
}

const ping = `SELECT 1`

// Ping runs a trivial query to verify connectivity.
func (q *Queries) Ping(ctx context.Context) error {
	var one int32
	return q.db.QueryRow(ctx, ping).Scan(&one)
}
