package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// EventType represents the type tag of an outbox event.
type EventType string

const (
	// EventTypeOrderCreated represents the order creation event.
	EventTypeOrderCreated EventType = "ORDER_CREATED"
)

// RoutingKey returns the broker routing key for events of this type.
func (t EventType) RoutingKey() string {
	return strings.ToLower(string(t))
}

// OutboxEvent represents an outbox event for reliable message delivery.
type OutboxEvent struct {
	ID          uuid.UUID  `json:"id"`
	EventID     uuid.UUID  `json:"eventId"`
	OccurredAt  time.Time  `json:"occurredAt"`
	EventType   EventType  `json:"eventType"`
	Payload     []byte     `json:"payload"`
	Published   bool       `json:"published"`
	PublishedAt *time.Time `json:"publishedAt"`
}

// CreateOutboxEventParams represents parameters for creating a new outbox event.
type CreateOutboxEventParams struct {
	ID         uuid.UUID
	EventID    uuid.UUID
	OccurredAt time.Time
	EventType  EventType
	Payload    []byte
}

// OrderCreatedEvent represents the payload for order creation events.
type OrderCreatedEvent struct {
	EventID       uuid.UUID `json:"eventId"`
	OccurredAt    time.Time `json:"occurredAt"`
	OrderID       uuid.UUID `json:"orderId"`
	CustomerEmail string    `json:"customerEmail"`
	ProductCode   string    `json:"productCode"`
	Quantity      int       `json:"quantity"`
}

// NewOrderCreatedEvent builds the event describing the creation of order.
func NewOrderCreatedEvent(order *Order, eventID uuid.UUID, occurredAt time.Time) *OrderCreatedEvent {
	return &OrderCreatedEvent{
		EventID:       eventID,
		OccurredAt:    occurredAt,
		OrderID:       order.ID,
		CustomerEmail: order.CustomerEmail,
		ProductCode:   order.ProductCode,
		Quantity:      order.Quantity,
	}
}

// DecodeOrderCreatedEvent parses a wire payload. Unknown fields are ignored;
// eventId, orderId and customerEmail are required.
func DecodeOrderCreatedEvent(body []byte) (*OrderCreatedEvent, error) {
	var event OrderCreatedEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	switch {
	case event.EventID == uuid.Nil:
		return nil, fmt.Errorf("%w: missing eventId", ErrMalformedEvent)
	case event.OrderID == uuid.Nil:
		return nil, fmt.Errorf("%w: missing orderId", ErrMalformedEvent)
	case strings.TrimSpace(event.CustomerEmail) == "":
		return nil, fmt.Errorf("%w: missing customerEmail", ErrMalformedEvent)
	}

	return &event, nil
}
