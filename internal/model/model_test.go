package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateOrderParamsValidate(t *testing.T) {
	tests := []struct {
		name    string
		params  CreateOrderParams
		wantErr error
	}{
		{name: "valid", params: CreateOrderParams{CustomerEmail: "a@b.com", ProductCode: "SKU1", Quantity: 2}},
		{name: "empty email", params: CreateOrderParams{ProductCode: "SKU1", Quantity: 1}, wantErr: ErrInvalidEmail},
		{name: "invalid email", params: CreateOrderParams{CustomerEmail: "not-an-email", ProductCode: "SKU1", Quantity: 1}, wantErr: ErrInvalidEmail},
		{name: "display name", params: CreateOrderParams{CustomerEmail: "Bob <a@b.com>", ProductCode: "SKU1", Quantity: 1}, wantErr: ErrInvalidEmail},
		{name: "empty product", params: CreateOrderParams{CustomerEmail: "a@b.com", ProductCode: " ", Quantity: 1}, wantErr: ErrInvalidProductCode},
		{name: "zero quantity", params: CreateOrderParams{CustomerEmail: "a@b.com", ProductCode: "SKU1"}, wantErr: ErrInvalidQuantity},
		{name: "negative quantity", params: CreateOrderParams{CustomerEmail: "a@b.com", ProductCode: "SKU1", Quantity: -3}, wantErr: ErrInvalidQuantity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.params.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}

			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestEventTypeRoutingKey(t *testing.T) {
	assert.Equal(t, "order_created", EventTypeOrderCreated.RoutingKey())
}

func TestOrderCreatedEventWireFormat(t *testing.T) {
	order := &Order{ID: uuid.New(), CustomerEmail: "a@b.com", ProductCode: "SKU1", Quantity: 2}
	eventID := uuid.New()
	occurredAt := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	body, err := json.Marshal(NewOrderCreatedEvent(order, eventID, occurredAt))
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(body, &fields))

	assert.Equal(t, eventID.String(), fields["eventId"])
	assert.Equal(t, order.ID.String(), fields["orderId"])
	assert.Equal(t, "a@b.com", fields["customerEmail"])
	assert.Equal(t, "SKU1", fields["productCode"])
	assert.EqualValues(t, 2, fields["quantity"])
	assert.Equal(t, "2026-01-02T03:04:05Z", fields["occurredAt"])
}

func TestDecodeOrderCreatedEvent(t *testing.T) {
	eventID := uuid.New()
	orderID := uuid.New()

	t.Run("tolerates unknown and optional fields", func(t *testing.T) {
		body := []byte(`{"eventId":"` + eventID.String() + `","orderId":"` + orderID.String() +
			`","customerEmail":"a@b.com","somethingNew":{"nested":true}}`)

		event, err := DecodeOrderCreatedEvent(body)
		require.NoError(t, err)

		assert.Equal(t, eventID, event.EventID)
		assert.Equal(t, orderID, event.OrderID)
		assert.Equal(t, "a@b.com", event.CustomerEmail)
		assert.Empty(t, event.ProductCode)
		assert.Zero(t, event.Quantity)
	})

	malformed := map[string]string{
		"not json":         `{{{`,
		"missing event id": `{"orderId":"` + orderID.String() + `","customerEmail":"a@b.com"}`,
		"missing order id": `{"eventId":"` + eventID.String() + `","customerEmail":"a@b.com"}`,
		"missing email":    `{"eventId":"` + eventID.String() + `","orderId":"` + orderID.String() + `"}`,
		"bad uuid":         `{"eventId":"nope","orderId":"` + orderID.String() + `","customerEmail":"a@b.com"}`,
	}

	for name, body := range malformed {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeOrderCreatedEvent([]byte(body))
			assert.ErrorIs(t, err, ErrMalformedEvent)
		})
	}
}
