package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jnst/order-notification-outbox/internal/broker/brokertest"
	"github.com/jnst/order-notification-outbox/internal/metrics"
	"github.com/jnst/order-notification-outbox/internal/model"
	"github.com/jnst/order-notification-outbox/internal/repository/repositorytest"
)

func seedEvents(t *testing.T, store *repositorytest.OrderStore, n int) []*model.OutboxEvent {
	t.Helper()

	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	events := make([]*model.OutboxEvent, 0, n)

	for i := range n {
		e := &model.OutboxEvent{
			ID:         uuid.New(),
			EventID:    uuid.New(),
			OccurredAt: base.Add(time.Duration(i) * time.Second),
			EventType:  model.EventTypeOrderCreated,
			Payload:    []byte(fmt.Sprintf(`{"n":%d}`, i)),
		}
		store.InsertEvent(e)
		events = append(events, e)
	}

	return events
}

func newOutboxService() *OutboxServiceImpl {
	return NewOutboxServiceImpl(metrics.New("test"), time.Second).(*OutboxServiceImpl)
}

func TestFetchUnpublishedEventsOldestFirst(t *testing.T) {
	store := repositorytest.NewOrderStore()
	seeded := seedEvents(t, store, 3)
	svc := newOutboxService()
	ctx := context.Background()

	session, err := store.Acquire(ctx)
	require.NoError(t, err)
	defer session.Release()

	events, err := svc.FetchUnpublishedEvents(ctx, session, 2)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, seeded[0].ID, events[0].ID)
	assert.Equal(t, seeded[1].ID, events[1].ID)
	assert.True(t, svc.schemaReady.Load())
}

func TestFetchUnpublishedEventsRepairsMissingSchema(t *testing.T) {
	store := repositorytest.NewOrderStore()
	seedEvents(t, store, 1)
	svc := newOutboxService()
	svc.schemaReady.Store(true)
	store.DropSchema()
	ctx := context.Background()

	session, err := store.Acquire(ctx)
	require.NoError(t, err)
	defer session.Release()

	events, err := svc.FetchUnpublishedEvents(ctx, session, 10)
	require.NoError(t, err)
	assert.Len(t, events, 1)
	assert.True(t, svc.schemaReady.Load())
}

func TestPublishEventsIsolatesFailures(t *testing.T) {
	store := repositorytest.NewOrderStore()
	seeded := seedEvents(t, store, 3)
	queue := brokertest.NewQueue()
	queue.FailPublishes(1)
	ctx := context.Background()

	conn, err := queue.Dial(ctx)
	require.NoError(t, err)

	now := time.Date(2026, 5, 2, 0, 0, 0, 0, time.UTC)
	svc := newOutboxService()
	svc.now = func() time.Time { return now }

	result := svc.PublishEvents(ctx, store, conn, seeded)

	assert.Equal(t, BatchResult{Published: 2, Failed: 1}, result)

	first, _ := store.Event(seeded[0].ID)
	assert.False(t, first.Published)

	for _, e := range seeded[1:] {
		got, _ := store.Event(e.ID)
		assert.True(t, got.Published)
		require.NotNil(t, got.PublishedAt)
		assert.Equal(t, now, *got.PublishedAt)
	}

	published := queue.Published()
	require.Len(t, published, 2)
	assert.Equal(t, seeded[1].EventID.String(), published[0].ID)
	assert.Equal(t, "order_created", published[0].RoutingKey)
	assert.Equal(t, seeded[1].Payload, published[0].Body)
}

func TestPublishEventsMarkFailureLeavesEventUnpublished(t *testing.T) {
	store := repositorytest.NewOrderStore()
	seeded := seedEvents(t, store, 1)
	store.FailMark(seeded[0].ID, errors.New("connection reset"))
	queue := brokertest.NewQueue()
	ctx := context.Background()

	conn, err := queue.Dial(ctx)
	require.NoError(t, err)

	result := newOutboxService().PublishEvents(ctx, store, conn, seeded)

	assert.Equal(t, BatchResult{Failed: 1}, result)
	assert.Len(t, queue.Published(), 1)

	got, _ := store.Event(seeded[0].ID)
	assert.False(t, got.Published)
}

func TestPublishEventsStopsWhenConnectionIsLost(t *testing.T) {
	store := repositorytest.NewOrderStore()
	seeded := seedEvents(t, store, 3)
	queue := brokertest.NewQueue()
	ctx := context.Background()

	conn, err := queue.Dial(ctx)
	require.NoError(t, err)
	require.NoError(t, conn.Close())

	result := newOutboxService().PublishEvents(ctx, store, conn, seeded)

	assert.Equal(t, BatchResult{Failed: 1, ConnectionLost: true}, result)
	assert.Empty(t, queue.Published())
}

func TestPublishEventsStopsOnCancellation(t *testing.T) {
	store := repositorytest.NewOrderStore()
	seeded := seedEvents(t, store, 2)
	queue := brokertest.NewQueue()

	conn, err := queue.Dial(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := newOutboxService().PublishEvents(ctx, store, conn, seeded)

	assert.Equal(t, BatchResult{}, result)
	assert.Empty(t, queue.Published())
}
