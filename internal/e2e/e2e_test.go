package e2e

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jnst/order-notification-outbox/internal/broker"
	"github.com/jnst/order-notification-outbox/internal/broker/brokertest"
	"github.com/jnst/order-notification-outbox/internal/consumer"
	"github.com/jnst/order-notification-outbox/internal/metrics"
	"github.com/jnst/order-notification-outbox/internal/model"
	"github.com/jnst/order-notification-outbox/internal/relay"
	"github.com/jnst/order-notification-outbox/internal/repository/repositorytest"
	"github.com/jnst/order-notification-outbox/internal/service"
	"github.com/jnst/order-notification-outbox/internal/worker"
)

func fastSleep(ctx context.Context, _ time.Duration) error {
	return broker.Sleep(ctx, time.Millisecond)
}

type system struct {
	orders        *repositorytest.OrderStore
	notifications *repositorytest.NotificationStore
	queue         *brokertest.Queue

	orderService        service.OrderService
	notificationService service.NotificationService

	relay    *worker.Runner
	consumer *worker.Runner
}

func newSystem() *system {
	s := &system{
		orders:        repositorytest.NewOrderStore(),
		notifications: repositorytest.NewNotificationStore(),
		queue:         brokertest.NewQueue(),
	}

	s.orderService = service.NewOrderServiceImpl(s.orders, s.orders, s.orders)
	s.notificationService = service.NewNotificationServiceImpl(s.notifications, s.notifications, service.NewLogSender(0))

	publisherMetrics := metrics.New("publisher")
	outboxRelay := relay.New(
		s.orders,
		service.NewOutboxServiceImpl(publisherMetrics, time.Second),
		broker.NewConnector(s.queue.Dial, broker.WithSleep(fastSleep), broker.WithAttemptHook(publisherMetrics.ConnectAttempt)),
		relay.Config{BatchSize: 10, IdleInterval: 2 * time.Second, StoreRetryInterval: 5 * time.Second},
		relay.WithSleep(fastSleep),
	)

	consumerMetrics := metrics.New("consumer")
	inbox := consumer.New(
		broker.NewConnector(s.queue.Dial, broker.WithSleep(fastSleep)),
		consumer.NewMessageHandler(s.notificationService, consumerMetrics, 0),
	)

	s.relay = worker.New("outbox-relay", outboxRelay.Run)
	s.consumer = worker.New("inbox-consumer", inbox.Run)

	return s
}

func (s *system) start(t *testing.T) {
	t.Helper()

	s.relay.Start(context.Background())
	s.consumer.Start(context.Background())

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		assert.NoError(t, s.relay.Stop(ctx))
		assert.NoError(t, s.consumer.Stop(ctx))
		assert.Zero(t, s.queue.OpenConnections())
	})
}

func (s *system) notificationsFor(t *testing.T, order *model.Order) []*model.Notification {
	t.Helper()

	notifications, err := s.notificationService.ListNotifications(context.Background(), order.ID, 0)
	require.NoError(t, err)

	return notifications
}

func TestOrderToNotification(t *testing.T) {
	s := newSystem()
	s.start(t)

	order, err := s.orderService.CreateOrder(context.Background(), &model.CreateOrderParams{
		CustomerEmail: "a@b.com",
		ProductCode:   "SKU1",
		Quantity:      2,
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(s.notificationsFor(t, order)) == 1
	}, 5*time.Second, 5*time.Millisecond)

	notification := s.notificationsFor(t, order)[0]
	assert.Equal(t, "a@b.com", notification.Email)
	assert.Equal(t, model.NotificationTypeOrderCreated, notification.Type)
	assert.True(t, notification.Delivered)

	events := s.orders.Events()
	require.Len(t, events, 1)
	require.Eventually(t, func() bool {
		e, _ := s.orders.Event(events[0].ID)
		return e.Published
	}, 5*time.Second, 5*time.Millisecond)
	assert.Equal(t, events[0].EventID, notification.EventID)

	published := s.queue.Published()
	require.NotEmpty(t, published)

	// broker redelivers the same message
	s.queue.Enqueue(published[0].ID, published[0].Body)

	require.Eventually(t, func() bool {
		ready, unacked, acked, _ := s.queue.Stats()
		return ready == 0 && unacked == 0 && acked == len(published)+1
	}, 5*time.Second, 5*time.Millisecond)

	assert.Len(t, s.notificationsFor(t, order), 1)
	assert.Equal(t, 1, s.notifications.CountByEventID(notification.EventID))
}

func TestManyOrdersSurviveBrokerFailures(t *testing.T) {
	s := newSystem()
	s.queue.FailDials(2)
	s.queue.FailPublishes(3)
	s.start(t)

	var orders []*model.Order
	for i := range 5 {
		order, err := s.orderService.CreateOrder(context.Background(), &model.CreateOrderParams{
			CustomerEmail: "a@b.com",
			ProductCode:   "SKU1",
			Quantity:      i + 1,
		})
		require.NoError(t, err)
		orders = append(orders, order)
	}

	require.Eventually(t, func() bool {
		return s.notifications.Count() == len(orders)
	}, 5*time.Second, 5*time.Millisecond)

	s.queue.Sever()

	late, err := s.orderService.CreateOrder(context.Background(), &model.CreateOrderParams{
		CustomerEmail: "late@b.com",
		ProductCode:   "SKU2",
		Quantity:      1,
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(s.notificationsFor(t, late)) == 1
	}, 5*time.Second, 5*time.Millisecond)

	for _, order := range orders {
		assert.Len(t, s.notificationsFor(t, order), 1)
	}
}
