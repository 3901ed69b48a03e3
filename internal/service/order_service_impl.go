package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jnst/order-notification-outbox/internal/logger"
	"github.com/jnst/order-notification-outbox/internal/model"
	"github.com/jnst/order-notification-outbox/internal/repository"
)

// OrderServiceImpl implements OrderService for order management business logic.
type OrderServiceImpl struct {
	orderRepo      repository.OrderRepository
	outboxRepo     repository.OutboxRepository
	transactionMgr repository.TransactionManager
	now            func() time.Time
}

// NewOrderServiceImpl creates a new OrderService implementation.
func NewOrderServiceImpl(
	orderRepo repository.OrderRepository,
	outboxRepo repository.OutboxRepository,
	transactionMgr repository.TransactionManager,
) OrderService {
	return &OrderServiceImpl{
		orderRepo:      orderRepo,
		outboxRepo:     outboxRepo,
		transactionMgr: transactionMgr,
		now:            time.Now,
	}
}

// CreateOrder creates a new order and its ORDER_CREATED outbox event in one transaction.
func (s *OrderServiceImpl) CreateOrder(ctx context.Context, params *model.CreateOrderParams) (*model.Order, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	order := &model.Order{
		ID:            uuid.New(),
		CustomerEmail: strings.TrimSpace(params.CustomerEmail),
		ProductCode:   strings.TrimSpace(params.ProductCode),
		Quantity:      params.Quantity,
		Status:        model.OrderStatusCreated,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	var createdOrder *model.Order

	err := s.transactionMgr.WithTransaction(ctx, func(ctx context.Context) error {
		created, err := s.orderRepo.Create(ctx, order)
		if err != nil {
			return fmt.Errorf("failed to create order: %w", err)
		}

		createdOrder = created

		return s.createOutboxEvent(ctx, created, now)
	})
	if err != nil {
		return nil, err
	}

	logger.FromContext(ctx).Info("order created",
		slog.String("order_id", createdOrder.ID.String()),
		slog.String("product_code", createdOrder.ProductCode),
		slog.Int("quantity", createdOrder.Quantity),
	)

	return createdOrder, nil
}

// GetOrder retrieves an order by ID.
func (s *OrderServiceImpl) GetOrder(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	return s.orderRepo.GetByID(ctx, id)
}

// ListOrders returns the most recent orders.
func (s *OrderServiceImpl) ListOrders(ctx context.Context, limit int) ([]*model.Order, error) {
	return s.orderRepo.List(ctx, clampLimit(limit))
}

func (s *OrderServiceImpl) createOutboxEvent(ctx context.Context, order *model.Order, occurredAt time.Time) error {
	eventID := uuid.New()

	payload, err := json.Marshal(model.NewOrderCreatedEvent(order, eventID, occurredAt))
	if err != nil {
		return fmt.Errorf("failed to marshal event payload: %w", err)
	}

	_, err = s.outboxRepo.CreateEvent(ctx, &model.CreateOutboxEventParams{
		ID:         uuid.New(),
		EventID:    eventID,
		OccurredAt: occurredAt,
		EventType:  model.EventTypeOrderCreated,
		Payload:    payload,
	})
	if err != nil {
		return fmt.Errorf("failed to create outbox event: %w", err)
	}

	return nil
}
