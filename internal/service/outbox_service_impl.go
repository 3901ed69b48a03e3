package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/jnst/order-notification-outbox/internal/broker"
	"github.com/jnst/order-notification-outbox/internal/logger"
	"github.com/jnst/order-notification-outbox/internal/metrics"
	"github.com/jnst/order-notification-outbox/internal/model"
	"github.com/jnst/order-notification-outbox/internal/repository"
)

// BatchResult summarizes one PublishEvents call.
type BatchResult struct {
	Published int
	Failed    int
	// ConnectionLost is set when the broker connection closed during the batch.
	// Events after the failing one were not attempted.
	ConnectionLost bool
}

// OutboxServiceImpl implements OutboxService for processing outbox events.
type OutboxServiceImpl struct {
	metrics        *metrics.Metrics
	publishTimeout time.Duration
	now            func() time.Time

	// schema is ensured until it first succeeds and again after a query
	// reports it missing
	schemaReady atomic.Bool
}

// NewOutboxServiceImpl creates a new OutboxService implementation.
// A publishTimeout of zero leaves publishes bounded only by ctx.
func NewOutboxServiceImpl(m *metrics.Metrics, publishTimeout time.Duration) OutboxService {
	return &OutboxServiceImpl{
		metrics:        m,
		publishTimeout: publishTimeout,
		now:            time.Now,
	}
}

// FetchUnpublishedEvents selects up to limit unpublished events ordered by occurrence.
func (s *OutboxServiceImpl) FetchUnpublishedEvents(
	ctx context.Context,
	session repository.OutboxSession,
	limit int,
) ([]*model.OutboxEvent, error) {
	if !s.schemaReady.Load() {
		if err := s.ensureSchema(ctx, session); err != nil {
			return nil, err
		}
	}

	events, err := session.GetUnpublishedEvents(ctx, limit)
	if errors.Is(err, model.ErrSchemaMissing) {
		logger.FromContext(ctx).Warn("outbox table missing, recreating schema")

		s.schemaReady.Store(false)
		if err := s.ensureSchema(ctx, session); err != nil {
			return nil, err
		}

		events, err = session.GetUnpublishedEvents(ctx, limit)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to select unpublished events: %w", err)
	}

	s.metrics.ObserveBatch(len(events))

	return events, nil
}

func (s *OutboxServiceImpl) ensureSchema(ctx context.Context, session repository.OutboxSession) error {
	if err := session.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("failed to ensure outbox schema: %w", err)
	}

	s.schemaReady.Store(true)

	return nil
}

// PublishEvents publishes events in order. Each event is published and then
// marked in its own statement, so a crash in between republishes it later.
func (s *OutboxServiceImpl) PublishEvents(
	ctx context.Context,
	repo repository.OutboxRepository,
	b broker.Broker,
	events []*model.OutboxEvent,
) BatchResult {
	var result BatchResult

	for _, event := range events {
		if ctx.Err() != nil {
			break
		}

		eventCtx := logger.With(ctx,
			slog.String("event_id", event.EventID.String()),
			slog.String("event_type", string(event.EventType)),
		)

		if err := s.publish(eventCtx, b, event); err != nil {
			result.Failed++
			s.metrics.PublishFailed(metrics.ReasonPublish)
			logger.FromContext(eventCtx).Warn("failed to publish event", slog.String("error", err.Error()))

			if errors.Is(err, broker.ErrClosed) || b.IsClosed() {
				result.ConnectionLost = true
				break
			}

			continue
		}

		if err := repo.MarkAsPublished(eventCtx, event.ID, s.now().UTC()); err != nil {
			result.Failed++
			s.metrics.PublishFailed(metrics.ReasonMark)
			logger.FromContext(eventCtx).Error("failed to mark event as published", slog.String("error", err.Error()))

			continue
		}

		result.Published++
		s.metrics.EventPublished(string(event.EventType))
		logger.FromContext(eventCtx).Info("published event", slog.String("routing_key", event.EventType.RoutingKey()))
	}

	return result
}

func (s *OutboxServiceImpl) publish(ctx context.Context, b broker.Broker, event *model.OutboxEvent) error {
	if s.publishTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.publishTimeout)
		defer cancel()
	}

	return b.Publish(ctx, broker.Message{
		ID:         event.EventID.String(),
		Type:       string(event.EventType),
		RoutingKey: event.EventType.RoutingKey(),
		Body:       event.Payload,
		Timestamp:  event.OccurredAt,
	})
}
