package main

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/jnst/order-notification-outbox/internal/logger"
	"github.com/jnst/order-notification-outbox/internal/model"
	"github.com/jnst/order-notification-outbox/internal/server"
	"github.com/jnst/order-notification-outbox/internal/service"
)

// APIServer handles HTTP requests for order management.
type APIServer struct {
	orderService service.OrderService
}

// NewAPIServer creates a new API server instance.
func NewAPIServer(orderService service.OrderService) *APIServer {
	return &APIServer{
		orderService: orderService,
	}
}

// Routes registers the order endpoints on mux.
func (s *APIServer) Routes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/orders", s.CreateOrder)
	mux.HandleFunc("GET /api/orders", s.ListOrders)
	mux.HandleFunc("GET /api/orders/{id}", s.GetOrder)
	mux.HandleFunc("GET /health", server.HealthCheck)
}

// CreateOrder handles POST /api/orders.
func (s *APIServer) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var params model.CreateOrderParams
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	order, err := s.orderService.CreateOrder(r.Context(), &params)
	if err != nil {
		if isValidationError(err) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		logger.FromContext(r.Context()).Error("failed to create order", slog.String("error", err.Error()))
		http.Error(w, "failed to create order", http.StatusInternalServerError)

		return
	}

	w.Header().Set("Location", "/api/orders/"+order.ID.String())
	server.WriteJSON(w, http.StatusCreated, order)
}

// GetOrder handles GET /api/orders/{id}.
func (s *APIServer) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "Invalid ID parameter", http.StatusBadRequest)
		return
	}

	order, err := s.orderService.GetOrder(r.Context(), id)
	if err != nil {
		if errors.Is(err, model.ErrOrderNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}

		logger.FromContext(r.Context()).Error("failed to get order", slog.String("error", err.Error()))
		http.Error(w, "failed to get order", http.StatusInternalServerError)

		return
	}

	server.WriteJSON(w, http.StatusOK, order)
}

// ListOrders handles GET /api/orders.
func (s *APIServer) ListOrders(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			http.Error(w, "Invalid limit parameter", http.StatusBadRequest)
			return
		}
		limit = n
	}

	orders, err := s.orderService.ListOrders(r.Context(), limit)
	if err != nil {
		logger.FromContext(r.Context()).Error("failed to list orders", slog.String("error", err.Error()))
		http.Error(w, "failed to list orders", http.StatusInternalServerError)

		return
	}

	if orders == nil {
		orders = []*model.Order{}
	}

	server.WriteJSON(w, http.StatusOK, orders)
}

func isValidationError(err error) bool {
	return errors.Is(err, model.ErrInvalidEmail) ||
		errors.Is(err, model.ErrInvalidProductCode) ||
		errors.Is(err, model.ErrInvalidQuantity)
}
