package main

import (
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

// NotificationServer handles HTTP requests for notification queries.
type NotificationServer struct {
	notificationService service.NotificationService
}

// NewNotificationServer creates a new notification server instance.
func NewNotificationServer(notificationService service.NotificationService) *NotificationServer {
	return &NotificationServer{
		notificationService: notificationService,
	}
}

// Routes registers the notification endpoints on mux.
func (s *NotificationServer) Routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/notifications", s.ListNotifications)
	mux.HandleFunc("GET /api/notifications/{id}", s.GetNotification)
	mux.HandleFunc("GET /health", server.HealthCheck)
}

// ListNotifications handles GET /api/notifications[?orderId=].
func (s *NotificationServer) ListNotifications(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	orderID := uuid.Nil
	if raw := query.Get("orderId"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			http.Error(w, "Invalid orderId parameter", http.StatusBadRequest)
			return
		}
		orderID = id
	}

	limit := 0
	if raw := query.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			http.Error(w, "Invalid limit parameter", http.StatusBadRequest)
			return
		}
		limit = n
	}

	notifications, err := s.notificationService.ListNotifications(r.Context(), orderID, limit)
	if err != nil {
		logger.FromContext(r.Context()).Error("failed to list notifications", slog.String("error", err.Error()))
		http.Error(w, "notification store unavailable", http.StatusServiceUnavailable)

		return
	}

	if notifications == nil {
		notifications = []*model.Notification{}
	}

	server.WriteJSON(w, http.StatusOK, notifications)
}

// GetNotification handles GET /api/notifications/{id}.
func (s *NotificationServer) GetNotification(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "Invalid ID parameter", http.StatusBadRequest)
		return
	}

	notification, err := s.notificationService.GetNotification(r.Context(), id)
	if err != nil {
		if errors.Is(err, model.ErrNotificationNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}

		logger.FromContext(r.Context()).Error("failed to get notification", slog.String("error", err.Error()))
		http.Error(w, "failed to get notification", http.StatusInternalServerError)

		return
	}

	server.WriteJSON(w, http.StatusOK, notification)
}
