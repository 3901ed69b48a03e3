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

// OrderRepositoryImpl implements OrderRepository using PostgreSQL.
type OrderRepositoryImpl struct {
	db *db.Queries
}

// NewOrderRepositoryImpl creates a new OrderRepository implementation.
func NewOrderRepositoryImpl(conn db.DBTX) OrderRepository {
	return &OrderRepositoryImpl{
		db: db.New(conn),
	}
}

// Create inserts a new order.
func (r *OrderRepositoryImpl) Create(ctx context.Context, order *model.Order) (*model.Order, error) {
	dbOrder, err := queries(ctx, r.db).CreateOrder(ctx, &db.CreateOrderParams{
		ID:            order.ID,
		CustomerEmail: order.CustomerEmail,
		ProductCode:   order.ProductCode,
		Quantity:      int32(order.Quantity), //nolint:gosec // validated to be positive
		Status:        string(order.Status),
		CreatedAt:     pgtype.Timestamptz{Time: order.CreatedAt, Valid: true},
	})
	if err != nil {
		return nil, translateError(err)
	}

	return toOrder(&dbOrder), nil
}

// GetByID retrieves an order by ID.
func (r *OrderRepositoryImpl) GetByID(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	dbOrder, err := queries(ctx, r.db).GetOrder(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrOrderNotFound
		}

		return nil, translateError(err)
	}

	return toOrder(&dbOrder), nil
}

// List retrieves the most recent orders.
func (r *OrderRepositoryImpl) List(ctx context.Context, limit int) ([]*model.Order, error) {
	dbOrders, err := queries(ctx, r.db).ListOrders(ctx, int32(limit)) //nolint:gosec // bounded by caller
	if err != nil {
		return nil, translateError(err)
	}

	orders := make([]*model.Order, len(dbOrders))
	for i := range dbOrders {
		orders[i] = toOrder(&dbOrders[i])
	}

	return orders, nil
}

func toOrder(o *db.Order) *model.Order {
	return &model.Order{
		ID:            o.ID,
		CustomerEmail: o.CustomerEmail,
		ProductCode:   o.ProductCode,
		Quantity:      int(o.Quantity),
		Status:        model.OrderStatus(o.Status),
		CreatedAt:     o.CreatedAt.Time,
		UpdatedAt:     o.UpdatedAt.Time,
	}
}
