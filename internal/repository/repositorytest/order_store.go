// Package repositorytest provides in-memory repository implementations for tests.
package repositorytest

import (
	"context"
	"errors"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jnst/order-notification-outbox/internal/model"
	"github.com/jnst/order-notification-outbox/internal/repository"
)

var errOutboxEventExists = errors.New("outbox event id already exists")

// OrderStore is an in-memory order store holding orders and outbox events.
// The exported knobs inject faults; set them before the store is in use or
// through the setter methods while it is.
type OrderStore struct {
	mu     sync.Mutex
	txMu   sync.Mutex
	orders map[uuid.UUID]*model.Order
	events map[uuid.UUID]*model.OutboxEvent

	pingFailures  int
	schemaMissing bool
	createErr     error
	markErr       map[uuid.UUID]error

	acquired int
	released int
}

var (
	_ repository.OrderRepository    = (*OrderStore)(nil)
	_ repository.OutboxRepository   = (*OrderStore)(nil)
	_ repository.TransactionManager = (*OrderStore)(nil)
	_ repository.OutboxStore        = (*OrderStore)(nil)
)

// NewOrderStore returns an empty OrderStore.
func NewOrderStore() *OrderStore {
	return &OrderStore{
		orders:  make(map[uuid.UUID]*model.Order),
		events:  make(map[uuid.UUID]*model.OutboxEvent),
		markErr: make(map[uuid.UUID]error),
	}
}

// FailPings makes the next n pings fail.
func (s *OrderStore) FailPings(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pingFailures = n
}

// DropSchema makes outbox queries report a missing table until EnsureSchema runs.
func (s *OrderStore) DropSchema() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.schemaMissing = true
}

// FailCreateEvent makes CreateEvent return err.
func (s *OrderStore) FailCreateEvent(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.createErr = err
}

// FailMark makes MarkAsPublished fail for the outbox row id.
func (s *OrderStore) FailMark(id uuid.UUID, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.markErr, id)
		return
	}
	s.markErr[id] = err
}

// Sessions returns how many sessions were acquired and released.
func (s *OrderStore) Sessions() (acquired, released int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.acquired, s.released
}

// Orders returns a copy of all stored orders.
func (s *OrderStore) Orders() []*model.Order {
	s.mu.Lock()
	defer s.mu.Unlock()

	orders := make([]*model.Order, 0, len(s.orders))
	for _, o := range s.orders {
		cp := *o
		orders = append(orders, &cp)
	}

	return orders
}

// Events returns a copy of all outbox events ordered by occurrence time.
func (s *OrderStore) Events() []*model.OutboxEvent {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.sortedEvents(func(*model.OutboxEvent) bool { return true })
}

// Event returns a copy of the outbox event with row id.
func (s *OrderStore) Event(id uuid.UUID) (*model.OutboxEvent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.events[id]
	if !ok {
		return nil, false
	}
	cp := *e
	return &cp, true
}

// InsertEvent stores an outbox event directly, bypassing the order path.
func (s *OrderStore) InsertEvent(e *model.OutboxEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *e
	s.events[e.ID] = &cp
}

// WithTransaction runs fn and discards every write it made if it fails.
func (s *OrderStore) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	orders := maps.Clone(s.orders)
	events := maps.Clone(s.events)
	s.mu.Unlock()

	if err := fn(ctx); err != nil {
		s.mu.Lock()
		s.orders = orders
		s.events = events
		s.mu.Unlock()

		return err
	}

	return nil
}

func (s *OrderStore) Create(_ context.Context, order *model.Order) (*model.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *order
	if cp.UpdatedAt.IsZero() {
		cp.UpdatedAt = cp.CreatedAt
	}
	s.orders[order.ID] = &cp
	out := cp
	return &out, nil
}

func (s *OrderStore) GetByID(_ context.Context, id uuid.UUID) (*model.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[id]
	if !ok {
		return nil, model.ErrOrderNotFound
	}
	cp := *o
	return &cp, nil
}

func (s *OrderStore) List(_ context.Context, limit int) ([]*model.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	orders := make([]*model.Order, 0, len(s.orders))
	for _, o := range s.orders {
		cp := *o
		orders = append(orders, &cp)
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i].CreatedAt.After(orders[j].CreatedAt) })
	if len(orders) > limit {
		orders = orders[:limit]
	}

	return orders, nil
}

func (s *OrderStore) CreateEvent(_ context.Context, params *model.CreateOutboxEventParams) (*model.OutboxEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.createErr != nil {
		return nil, s.createErr
	}

	for _, e := range s.events {
		if e.EventID == params.EventID {
			return nil, errOutboxEventExists
		}
	}

	e := &model.OutboxEvent{
		ID:         params.ID,
		EventID:    params.EventID,
		OccurredAt: params.OccurredAt,
		EventType:  params.EventType,
		Payload:    append([]byte(nil), params.Payload...),
	}
	s.events[e.ID] = e
	cp := *e
	return &cp, nil
}

func (s *OrderStore) GetUnpublishedEvents(_ context.Context, limit int) ([]*model.OutboxEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.schemaMissing {
		return nil, model.ErrSchemaMissing
	}

	events := s.sortedEvents(func(e *model.OutboxEvent) bool { return !e.Published })
	if len(events) > limit {
		events = events[:limit]
	}

	return events, nil
}

func (s *OrderStore) MarkAsPublished(_ context.Context, id uuid.UUID, publishedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.markErr[id]; err != nil {
		return err
	}

	e, ok := s.events[id]
	if !ok || e.Published {
		return nil
	}
	e.Published = true
	at := publishedAt
	e.PublishedAt = &at

	return nil
}

// Acquire opens a session on the store.
func (s *OrderStore) Acquire(_ context.Context) (repository.OutboxSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.acquired++
	return &outboxSession{OrderStore: s}, nil
}

func (s *OrderStore) sortedEvents(keep func(*model.OutboxEvent) bool) []*model.OutboxEvent {
	events := make([]*model.OutboxEvent, 0, len(s.events))
	for _, e := range s.events {
		if keep(e) {
			cp := *e
			events = append(events, &cp)
		}
	}
	sort.SliceStable(events, func(i, j int) bool { return events[i].OccurredAt.Before(events[j].OccurredAt) })

	return events
}

type outboxSession struct {
	*OrderStore
	once sync.Once
}

func (s *outboxSession) Ping(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pingFailures > 0 {
		s.pingFailures--
		return model.ErrStoreUnavailable
	}

	return nil
}

func (s *outboxSession) EnsureSchema(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.schemaMissing = false
	return nil
}

func (s *outboxSession) Release() {
	s.once.Do(func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.released++
	})
}
