package model

import "errors"

var (
	// ErrInvalidEmail is returned when customer email is empty or invalid.
	ErrInvalidEmail = errors.New("a valid customer email is required")
	// ErrInvalidProductCode is returned when product code is empty.
	ErrInvalidProductCode = errors.New("product code is required")
	// ErrInvalidQuantity is returned when quantity is lower than one.
	ErrInvalidQuantity = errors.New("quantity must be at least 1")
	// ErrOrderNotFound is returned when order is not found in database.
	ErrOrderNotFound = errors.New("order not found")
	// ErrNotificationNotFound is returned when notification is not found in database.
	ErrNotificationNotFound = errors.New("notification not found")

	// ErrMalformedEvent is returned when a broker payload cannot be decoded.
	ErrMalformedEvent = errors.New("malformed event payload")
	// ErrDuplicateEvent is returned when a notification for the event id already exists.
	ErrDuplicateEvent = errors.New("event already processed")
	// ErrSchemaMissing is returned when an expected table does not exist.
	ErrSchemaMissing = errors.New("database schema missing")
	// ErrStoreUnavailable is returned when the database cannot be reached.
	ErrStoreUnavailable = errors.New("store unavailable")
)
