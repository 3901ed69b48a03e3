package repositorytest

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/jnst/order-notification-outbox/internal/model"
	"github.com/jnst/order-notification-outbox/internal/repository"
)

// NotificationStore is an in-memory notification store enforcing the
// uniqueness of event ids the way the database index does.
type NotificationStore struct {
	mu            sync.Mutex
	notifications map[uuid.UUID]*model.Notification
	byEvent       map[uuid.UUID]uuid.UUID

	acquireErr     error
	createFailures int
	createErr      error
	staleReads     int

	acquired int
	released int
}

var (
	_ repository.NotificationRepository = (*NotificationStore)(nil)
	_ repository.NotificationStore      = (*NotificationStore)(nil)
)

// NewNotificationStore returns an empty NotificationStore.
func NewNotificationStore() *NotificationStore {
	return &NotificationStore{
		notifications: make(map[uuid.UUID]*model.Notification),
		byEvent:       make(map[uuid.UUID]uuid.UUID),
	}
}

// FailAcquire makes Acquire return err until called again with nil.
func (s *NotificationStore) FailAcquire(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.acquireErr = err
}

// FailCreates makes the next n inserts fail with err.
func (s *NotificationStore) FailCreates(n int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.createFailures = n
	s.createErr = err
}

// StaleReads makes the next n event id lookups miss, as a concurrent
// consumer that has not yet seen a committed row would.
func (s *NotificationStore) StaleReads(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.staleReads = n
}

// Sessions returns how many sessions were acquired and released.
func (s *NotificationStore) Sessions() (acquired, released int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.acquired, s.released
}

// Count returns the number of stored notifications.
func (s *NotificationStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.notifications)
}

// CountByEventID returns the number of notifications recorded for eventID.
func (s *NotificationStore) CountByEventID(eventID uuid.UUID) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, notification := range s.notifications {
		if notification.EventID == eventID {
			n++
		}
	}

	return n
}

func (s *NotificationStore) Create(_ context.Context, notification *model.Notification) (*model.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.createFailures > 0 {
		s.createFailures--
		return nil, s.createErr
	}

	if _, ok := s.byEvent[notification.EventID]; ok {
		return nil, fmt.Errorf("%w: notifications_event_id_key", model.ErrDuplicateEvent)
	}

	cp := *notification
	s.notifications[cp.ID] = &cp
	s.byEvent[cp.EventID] = cp.ID

	out := cp
	return &out, nil
}

func (s *NotificationStore) GetByID(_ context.Context, id uuid.UUID) (*model.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.notifications[id]
	if !ok {
		return nil, model.ErrNotificationNotFound
	}
	cp := *n
	return &cp, nil
}

func (s *NotificationStore) GetByEventID(_ context.Context, eventID uuid.UUID) (*model.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.staleReads > 0 {
		s.staleReads--
		return nil, model.ErrNotificationNotFound
	}

	id, ok := s.byEvent[eventID]
	if !ok {
		return nil, model.ErrNotificationNotFound
	}
	cp := *s.notifications[id]
	return &cp, nil
}

func (s *NotificationStore) List(_ context.Context, limit int) ([]*model.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := s.filter(func(*model.Notification) bool { return true })
	if len(out) > limit {
		out = out[:limit]
	}

	return out, nil
}

func (s *NotificationStore) ListByOrderID(_ context.Context, orderID uuid.UUID, limit int) ([]*model.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := s.filter(func(n *model.Notification) bool { return n.OrderID == orderID })
	if len(out) > limit {
		out = out[:limit]
	}

	return out, nil
}

// Acquire opens a session on the store.
func (s *NotificationStore) Acquire(_ context.Context) (repository.NotificationSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.acquireErr != nil {
		return nil, s.acquireErr
	}

	s.acquired++
	return &notificationSession{NotificationStore: s}, nil
}

func (s *NotificationStore) filter(keep func(*model.Notification) bool) []*model.Notification {
	out := make([]*model.Notification, 0, len(s.notifications))
	for _, n := range s.notifications {
		if keep(n) {
			cp := *n
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })

	return out
}

type notificationSession struct {
	*NotificationStore
	once sync.Once
}

func (s *notificationSession) Release() {
	s.once.Do(func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.released++
	})
}
