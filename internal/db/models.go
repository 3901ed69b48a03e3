package db

import (
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

type Order struct {
	ID            uuid.UUID
	CustomerEmail string
	ProductCode   string
	Quantity      int32
	Status        string
	CreatedAt     pgtype.Timestamptz
	UpdatedAt     pgtype.Timestamptz
}

type OutboxEvent struct {
	ID          uuid.UUID
	EventID     uuid.UUID
	OccurredAt  pgtype.Timestamptz
	EventType   string
	Payload     string
	Published   bool
	PublishedAt pgtype.Timestamptz
}

type Notification struct {
	ID           uuid.UUID
	OrderID      uuid.UUID
	Email        string
	Type         string
	Delivered    bool
	ErrorMessage pgtype.Text
	CreatedAt    pgtype.Timestamptz
	EventID      uuid.UUID
}
