package db

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const createOrder = `
INSERT INTO orders (id, customer_email, product_code, quantity, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $6)
RETURNING id, customer_email, product_code, quantity, status, created_at, updated_at
`

type CreateOrderParams struct {
	ID            uuid.UUID
	CustomerEmail string
	ProductCode   string
	Quantity      int32
	Status        string
	CreatedAt     pgtype.Timestamptz
}

func (q *Queries) CreateOrder(ctx context.Context, arg *CreateOrderParams) (Order, error) {
	row := q.db.QueryRow(ctx, createOrder,
		arg.ID,
		arg.CustomerEmail,
		arg.ProductCode,
		arg.Quantity,
		arg.Status,
		arg.CreatedAt,
	)
	var i Order
	err := row.Scan(
		&i.ID,
		&i.CustomerEmail,
		&i.ProductCode,
		&i.Quantity,
		&i.Status,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const getOrder = `
SELECT id, customer_email, product_code, quantity, status, created_at, updated_at
FROM orders
WHERE id = $1
`

func (q *Queries) GetOrder(ctx context.Context, id uuid.UUID) (Order, error) {
	row := q.db.QueryRow(ctx, getOrder, id)
	var i Order
	err := row.Scan(
		&i.ID,
		&i.CustomerEmail,
		&i.ProductCode,
		&i.Quantity,
		&i.Status,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const listOrders = `
SELECT id, customer_email, product_code, quantity, status, created_at, updated_at
FROM orders
ORDER BY created_at DESC
LIMIT $1
`

func (q *Queries) ListOrders(ctx context.Context, limit int32) ([]Order, error) {
	rows, err := q.db.Query(ctx, listOrders, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Order
	for rows.Next() {
		var i Order
		if err := rows.Scan(
			&i.ID,
			&i.CustomerEmail,
			&i.ProductCode,
			&i.Quantity,
			&i.Status,
			&i.CreatedAt,
			&i.UpdatedAt,
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
