package model

import (
	"time"

	"github.com/google/uuid"
)

// NotificationType represents the kind of notification sent to a customer.
type NotificationType string

const (
	// NotificationTypeOrderCreated is sent when an order has been created.
	NotificationTypeOrderCreated NotificationType = "ORDER_CREATED"
)

// DeliverySucceededMessage is recorded on notifications delivered without error.
const DeliverySucceededMessage = "Email sent"

// Notification represents a notification record. EventID is unique across all rows.
type Notification struct {
	ID           uuid.UUID        `json:"id"`
	OrderID      uuid.UUID        `json:"orderId"`
	Email        string           `json:"email"`
	Type         NotificationType `json:"type"`
	Delivered    bool             `json:"delivered"`
	ErrorMessage *string          `json:"errorMessage"`
	CreatedAt    time.Time        `json:"createdAt"`
	EventID      uuid.UUID        `json:"eventId"`
}
