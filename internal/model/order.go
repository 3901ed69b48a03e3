// Package model defines domain models and data structures.
package model

import (
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
)

// OrderStatus represents the lifecycle state of an order.
type OrderStatus string

const (
	// OrderStatusCreated is the status of a freshly created order.
	OrderStatusCreated OrderStatus = "CREATED"
)

// Order represents an order entity.
type Order struct {
	ID            uuid.UUID   `json:"id"`
	CustomerEmail string      `json:"customerEmail"`
	ProductCode   string      `json:"productCode"`
	Quantity      int         `json:"quantity"`
	Status        OrderStatus `json:"status"`
	CreatedAt     time.Time   `json:"createdAt"`
	UpdatedAt     time.Time   `json:"updatedAt"`
}

// CreateOrderParams represents parameters for creating a new order.
type CreateOrderParams struct {
	CustomerEmail string `json:"customerEmail"`
	ProductCode   string `json:"productCode"`
	Quantity      int    `json:"quantity"`
}

// Validate validates the create order parameters.
func (p *CreateOrderParams) Validate() error {
	email := strings.TrimSpace(p.CustomerEmail)
	if email == "" {
		return ErrInvalidEmail
	}

	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return ErrInvalidEmail
	}

	if strings.TrimSpace(p.ProductCode) == "" {
		return ErrInvalidProductCode
	}

	if p.Quantity < 1 {
		return ErrInvalidQuantity
	}

	return nil
}
