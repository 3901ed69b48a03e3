package repository

import (
	"context"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jnst/order-notification-outbox/internal/db"
	"github.com/jnst/order-notification-outbox/internal/model"
)

// OutboxStoreImpl implements OutboxStore on top of a pgx pool.
type OutboxStoreImpl struct {
	pool *pgxpool.Pool
}

// NewOutboxStoreImpl creates a new OutboxStore implementation.
func NewOutboxStoreImpl(pool *pgxpool.Pool) OutboxStore {
	return &OutboxStoreImpl{pool: pool}
}

// Acquire checks a connection out of the pool for one unit of work.
func (s *OutboxStoreImpl) Acquire(ctx context.Context) (OutboxSession, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrStoreUnavailable, err)
	}

	return &outboxSession{
		OutboxRepository: NewOutboxRepositoryImpl(conn),
		conn:             conn,
		queries:          db.New(conn),
	}, nil
}

type outboxSession struct {
	OutboxRepository

	conn    *pgxpool.Conn
	queries *db.Queries
	once    sync.Once
}

func (s *outboxSession) Ping(ctx context.Context) error {
	if err := s.conn.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %v", model.ErrStoreUnavailable, err)
	}

	return nil
}

func (s *outboxSession) EnsureSchema(ctx context.Context) error {
	return translateError(s.queries.EnsureOrderSchema(ctx))
}

func (s *outboxSession) Release() {
	s.once.Do(s.conn.Release)
}

// NotificationStoreImpl implements NotificationStore on top of a pgx pool.
type NotificationStoreImpl struct {
	pool *pgxpool.Pool
}

// NewNotificationStoreImpl creates a new NotificationStore implementation.
func NewNotificationStoreImpl(pool *pgxpool.Pool) NotificationStore {
	return &NotificationStoreImpl{pool: pool}
}

// Acquire checks a connection out of the pool for one message.
func (s *NotificationStoreImpl) Acquire(ctx context.Context) (NotificationSession, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrStoreUnavailable, err)
	}

	return &notificationSession{
		NotificationRepository: NewNotificationRepositoryImpl(conn),
		conn:                   conn,
	}, nil
}

type notificationSession struct {
	NotificationRepository

	conn *pgxpool.Conn
	once sync.Once
}

func (s *notificationSession) Release() {
	s.once.Do(s.conn.Release)
}

// EnsureOrderSchema creates the order store tables if they are missing.
func EnsureOrderSchema(ctx context.Context, conn db.DBTX) error {
	return translateError(db.New(conn).EnsureOrderSchema(ctx))
}

// EnsureNotificationSchema creates the notification store table if it is missing.
func EnsureNotificationSchema(ctx context.Context, conn db.DBTX) error {
	return translateError(db.New(conn).EnsureNotificationSchema(ctx))
}
