// Package relay moves outbox events from the order store to the broker.
package relay

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/jnst/order-notification-outbox/internal/broker"
	"github.com/jnst/order-notification-outbox/internal/logger"
	"github.com/jnst/order-notification-outbox/internal/model"
	"github.com/jnst/order-notification-outbox/internal/repository"
	"github.com/jnst/order-notification-outbox/internal/service"
)

// State is a step of the relay loop.
type State int32

const (
	StatePolling State = iota
	StateIdle
	StateConnecting
	StatePublishing
)

func (s State) String() string {
	switch s {
	case StatePolling:
		return "polling"
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StatePublishing:
		return "publishing"
	default:
		return "unknown"
	}
}

// Config holds the relay loop settings.
type Config struct {
	BatchSize          int
	IdleInterval       time.Duration
	StoreRetryInterval time.Duration
}

// Relay polls unpublished outbox events and publishes them. It owns its
// broker connection, dialing lazily when a batch is pending.
type Relay struct {
	store     repository.OutboxStore
	outbox    service.OutboxService
	connector *broker.Connector
	cfg       Config
	sleep     func(context.Context, time.Duration) error

	conn  broker.Broker
	state atomic.Int32
}

// Option configures a Relay.
type Option func(*Relay)

// WithSleep replaces the function used for idle and retry waits.
func WithSleep(sleep func(context.Context, time.Duration) error) Option {
	return func(r *Relay) {
		r.sleep = sleep
	}
}

// New creates a Relay.
func New(
	store repository.OutboxStore,
	outbox service.OutboxService,
	connector *broker.Connector,
	cfg Config,
	opts ...Option,
) *Relay {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}

	r := &Relay{
		store:     store,
		outbox:    outbox,
		connector: connector,
		cfg:       cfg,
		sleep:     broker.Sleep,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// State returns the step the relay is currently in.
func (r *Relay) State() State {
	return State(r.state.Load())
}

// Run drives the relay until ctx is done. It returns nil on cancellation and
// closes the broker connection on exit.
func (r *Relay) Run(ctx context.Context) error {
	log := logger.FromContext(ctx)
	log.Info("starting outbox relay",
		slog.Int("batch_size", r.cfg.BatchSize),
		slog.Duration("idle_interval", r.cfg.IdleInterval),
	)

	defer r.disconnect(log)

	var (
		batch []*model.OutboxEvent
		wait  time.Duration
	)

	state := StatePolling

	for {
		if ctx.Err() != nil {
			log.Info("outbox relay stopped")
			return nil
		}

		r.state.Store(int32(state))

		switch state {
		case StatePolling:
			events, err := r.poll(ctx)
			switch {
			case err != nil:
				if ctx.Err() == nil {
					log.Warn("order store not ready, will retry",
						slog.Duration("retry_in", r.cfg.StoreRetryInterval),
						slog.String("error", err.Error()),
					)
				}
				wait, state = r.cfg.StoreRetryInterval, StateIdle
			case len(events) == 0:
				wait, state = r.cfg.IdleInterval, StateIdle
			case r.conn == nil || r.conn.IsClosed():
				batch, state = events, StateConnecting
			default:
				batch, state = events, StatePublishing
			}

		case StateIdle:
			if err := r.sleep(ctx, wait); err != nil {
				continue
			}
			state = StatePolling

		case StateConnecting:
			r.disconnect(log)

			conn, err := r.connector.Connect(ctx)
			if err != nil {
				wait, state = r.cfg.StoreRetryInterval, StateIdle
				continue
			}
			r.conn, state = conn, StatePublishing

		case StatePublishing:
			result := r.publish(ctx, batch)
			batch = nil

			state = StatePolling
			if result.Published == 0 && result.Failed > 0 {
				wait, state = r.cfg.IdleInterval, StateIdle
			}
		}
	}
}

// poll selects the next batch with a session released before returning.
func (r *Relay) poll(ctx context.Context) ([]*model.OutboxEvent, error) {
	session, err := r.store.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer session.Release()

	if err := session.Ping(ctx); err != nil {
		return nil, err
	}

	return r.outbox.FetchUnpublishedEvents(ctx, session, r.cfg.BatchSize)
}

func (r *Relay) publish(ctx context.Context, batch []*model.OutboxEvent) service.BatchResult {
	log := logger.FromContext(ctx)

	session, err := r.store.Acquire(ctx)
	if err != nil {
		log.Warn("order store not ready, batch deferred", slog.String("error", err.Error()))
		return service.BatchResult{Failed: len(batch)}
	}
	defer session.Release()

	result := r.outbox.PublishEvents(ctx, session, r.conn, batch)

	if result.ConnectionLost {
		log.Warn("broker connection lost, will reconnect")
		r.disconnect(log)
		r.connector.Disconnected()
	}

	log.Debug("batch processed",
		slog.Int("published", result.Published),
		slog.Int("failed", result.Failed),
	)

	return result
}

func (r *Relay) disconnect(log *slog.Logger) {
	if r.conn == nil {
		return
	}

	if err := r.conn.Close(); err != nil {
		log.Warn("failed to close broker connection", slog.String("error", err.Error()))
	}
	r.conn = nil
}
