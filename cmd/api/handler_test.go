package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jnst/order-notification-outbox/internal/model"
	"github.com/jnst/order-notification-outbox/internal/repository/repositorytest"
	"github.com/jnst/order-notification-outbox/internal/service"
)

type brokenOrderService struct {
	service.OrderService
}

func (brokenOrderService) ListOrders(context.Context, int) ([]*model.Order, error) {
	return nil, errors.New("connection refused")
}

func (brokenOrderService) GetOrder(context.Context, uuid.UUID) (*model.Order, error) {
	return nil, errors.New("connection refused")
}

func newTestMux(svc service.OrderService) *http.ServeMux {
	mux := http.NewServeMux()
	NewAPIServer(svc).Routes(mux)

	return mux
}

func do(mux http.Handler, method, target, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(method, target, strings.NewReader(body)))

	return rec
}

func TestCreateAndGetOrder(t *testing.T) {
	store := repositorytest.NewOrderStore()
	mux := newTestMux(service.NewOrderServiceImpl(store, store, store))

	rec := do(mux, http.MethodPost, "/api/orders", `{"customerEmail":"a@b.com","productCode":"SKU1","quantity":2}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var created model.Order
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "a@b.com", created.CustomerEmail)
	assert.Equal(t, "SKU1", created.ProductCode)
	assert.Equal(t, 2, created.Quantity)
	assert.Equal(t, model.OrderStatusCreated, created.Status)
	assert.Equal(t, "/api/orders/"+created.ID.String(), rec.Header().Get("Location"))
	assert.Len(t, store.Events(), 1)

	rec = do(mux, http.MethodGet, "/api/orders/"+created.ID.String(), "")
	require.Equal(t, http.StatusOK, rec.Code)

	var fetched model.Order
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &fetched))
	assert.Equal(t, created.ID, fetched.ID)
	assert.WithinDuration(t, created.CreatedAt, fetched.CreatedAt, time.Millisecond)

	rec = do(mux, http.MethodGet, "/api/orders", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var listed []model.Order
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	assert.Len(t, listed, 1)
}

func TestCreateOrderRejectsInvalidInput(t *testing.T) {
	store := repositorytest.NewOrderStore()
	mux := newTestMux(service.NewOrderServiceImpl(store, store, store))

	tests := []struct {
		name string
		body string
	}{
		{name: "invalid json", body: `{`},
		{name: "invalid email", body: `{"customerEmail":"nope","productCode":"SKU1","quantity":1}`},
		{name: "missing product", body: `{"customerEmail":"a@b.com","quantity":1}`},
		{name: "zero quantity", body: `{"customerEmail":"a@b.com","productCode":"SKU1","quantity":0}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(mux, http.MethodPost, "/api/orders", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}

	assert.Empty(t, store.Orders())
	assert.Empty(t, store.Events())
}

func TestGetOrderErrors(t *testing.T) {
	store := repositorytest.NewOrderStore()
	mux := newTestMux(service.NewOrderServiceImpl(store, store, store))

	assert.Equal(t, http.StatusBadRequest, do(mux, http.MethodGet, "/api/orders/not-a-uuid", "").Code)
	assert.Equal(t, http.StatusNotFound, do(mux, http.MethodGet, "/api/orders/"+uuid.NewString(), "").Code)

	broken := newTestMux(brokenOrderService{})
	assert.Equal(t, http.StatusInternalServerError, do(broken, http.MethodGet, "/api/orders/"+uuid.NewString(), "").Code)
}

func TestListOrdersErrors(t *testing.T) {
	store := repositorytest.NewOrderStore()
	mux := newTestMux(service.NewOrderServiceImpl(store, store, store))

	rec := do(mux, http.MethodGet, "/api/orders", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	assert.Equal(t, http.StatusBadRequest, do(mux, http.MethodGet, "/api/orders?limit=abc", "").Code)
	assert.Equal(t, http.StatusInternalServerError, do(newTestMux(brokenOrderService{}), http.MethodGet, "/api/orders", "").Code)
}

func TestMethodNotAllowed(t *testing.T) {
	store := repositorytest.NewOrderStore()
	mux := newTestMux(service.NewOrderServiceImpl(store, store, store))

	assert.Equal(t, http.StatusMethodNotAllowed, do(mux, http.MethodDelete, "/api/orders", "").Code)
}
