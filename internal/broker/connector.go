package broker

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// State is the connection state of a Connector.
type State int

const (
	// StateDisconnected means no connection exists and none is being attempted.
	StateDisconnected State = iota
	// StateConnecting means a dial attempt is running or waiting for its retry delay.
	StateConnecting
	// StateConnected means the last dial succeeded.
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// Connector dials a broker until it succeeds or its context is cancelled,
// waiting DelayFunc(attempt) between failed attempts.
type Connector struct {
	dial      Dialer
	delay     DelayFunc
	sleep     func(context.Context, time.Duration) error
	logger    *slog.Logger
	onAttempt func(attempt int, err error)

	mu      sync.Mutex
	state   State
	attempt int
}

// ConnectorOption configures a Connector.
type ConnectorOption func(*Connector)

// WithDelay sets the retry delay policy. Default is LinearBackoff(5s, 30s).
func WithDelay(delay DelayFunc) ConnectorOption {
	return func(c *Connector) {
		c.delay = delay
	}
}

// WithLogger sets the logger used to report attempts.
func WithLogger(logger *slog.Logger) ConnectorOption {
	return func(c *Connector) {
		c.logger = logger
	}
}

// WithAttemptHook registers fn to be called after every dial attempt.
func WithAttemptHook(fn func(attempt int, err error)) ConnectorOption {
	return func(c *Connector) {
		c.onAttempt = fn
	}
}

// WithSleep replaces the function used to wait between attempts.
func WithSleep(sleep func(context.Context, time.Duration) error) ConnectorOption {
	return func(c *Connector) {
		c.sleep = sleep
	}
}

// NewConnector creates a Connector for dial.
func NewConnector(dial Dialer, opts ...ConnectorOption) *Connector {
	c := &Connector{
		dial:      dial,
		delay:     LinearBackoff(5*time.Second, 30*time.Second),
		sleep:     Sleep,
		logger:    slog.Default(),
		onAttempt: func(int, error) {},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// State returns the current state and, while connecting, the attempt number.
func (c *Connector) State() (State, int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.state, c.attempt
}

// Disconnected records that a previously established connection was lost.
func (c *Connector) Disconnected() {
	c.transition(StateDisconnected, 0)
}

// Connect dials until a connection is established. It retries forever and
// only fails with ctx.Err() once ctx is done.
func (c *Connector) Connect(ctx context.Context) (Broker, error) {
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			c.transition(StateDisconnected, 0)
			return nil, err
		}

		c.transition(StateConnecting, attempt)
		c.logger.Info("connecting to broker", slog.Int("attempt", attempt))

		b, err := c.dial(ctx)
		c.onAttempt(attempt, err)

		if err == nil {
			c.transition(StateConnected, 0)
			c.logger.Info("connected to broker", slog.Int("attempt", attempt))

			return b, nil
		}

		delay := c.delay(attempt)
		c.logger.Warn("broker not ready yet, will retry",
			slog.Int("attempt", attempt),
			slog.Duration("retry_in", delay),
			slog.String("error", err.Error()),
		)

		if sleepErr := c.sleep(ctx, delay); sleepErr != nil {
			c.transition(StateDisconnected, 0)
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}

			return nil, sleepErr
		}
	}
}

// Backoff waits the retry delay for the given number of consecutive failures
// of an established connection, such as a subscription refused right after
// dialing.
func (c *Connector) Backoff(ctx context.Context, failures int) error {
	delay := c.delay(failures)
	c.logger.Warn("broker session failed, backing off",
		slog.Int("failures", failures),
		slog.Duration("retry_in", delay),
	)

	return c.sleep(ctx, delay)
}

func (c *Connector) transition(state State, attempt int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.state = state
	c.attempt = attempt
}
