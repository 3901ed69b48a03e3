package broker_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jnst/order-notification-outbox/internal/broker"
	"github.com/jnst/order-notification-outbox/internal/broker/brokertest"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestConnectorRetriesWithLinearBackoff(t *testing.T) {
	queue := brokertest.NewQueue()
	queue.FailDials(7)

	var delays []time.Duration
	var attempts []int

	connector := broker.NewConnector(queue.Dial,
		broker.WithLogger(discard),
		broker.WithSleep(func(_ context.Context, d time.Duration) error {
			delays = append(delays, d)
			return nil
		}),
		broker.WithAttemptHook(func(attempt int, _ error) {
			attempts = append(attempts, attempt)
		}),
	)

	b, err := connector.Connect(context.Background())
	require.NoError(t, err)
	require.NotNil(t, b)

	assert.Equal(t, []time.Duration{
		5 * time.Second,
		10 * time.Second,
		15 * time.Second,
		20 * time.Second,
		25 * time.Second,
		30 * time.Second,
		30 * time.Second,
	}, delays)
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6, 7, 8}, attempts)
	assert.Equal(t, 8, queue.DialAttempts())

	state, _ := connector.State()
	assert.Equal(t, broker.StateConnected, state)
}

func TestConnectorCancelledDuringRetryDelay(t *testing.T) {
	queue := brokertest.NewQueue()
	queue.FailDials(1_000)

	ctx, cancel := context.WithCancel(context.Background())

	connector := broker.NewConnector(queue.Dial,
		broker.WithLogger(discard),
		broker.WithDelay(func(int) time.Duration { return time.Hour }),
	)

	done := make(chan error, 1)
	go func() {
		_, err := connector.Connect(ctx)
		done <- err
	}()

	require.Eventually(t, func() bool {
		state, attempt := connector.State()
		return state == broker.StateConnecting && attempt == 1 && queue.DialAttempts() == 1
	}, time.Second, time.Millisecond)

	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Connect did not observe cancellation")
	}

	state, _ := connector.State()
	assert.Equal(t, broker.StateDisconnected, state)
}

func TestConnectorAlreadyCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	dialed := false
	connector := broker.NewConnector(func(context.Context) (broker.Broker, error) {
		dialed = true
		return nil, errors.New("unreachable")
	}, broker.WithLogger(discard))

	_, err := connector.Connect(ctx)

	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, dialed)
}

func TestConnectorDisconnected(t *testing.T) {
	queue := brokertest.NewQueue()
	connector := broker.NewConnector(queue.Dial, broker.WithLogger(discard))

	_, err := connector.Connect(context.Background())
	require.NoError(t, err)

	connector.Disconnected()

	state, _ := connector.State()
	assert.Equal(t, broker.StateDisconnected, state)
	assert.Equal(t, "disconnected", state.String())
}

func TestConnectorBackoff(t *testing.T) {
	var delays []time.Duration
	connector := broker.NewConnector(brokertest.NewQueue().Dial,
		broker.WithLogger(discard),
		broker.WithSleep(func(_ context.Context, d time.Duration) error {
			delays = append(delays, d)
			return nil
		}),
	)

	for failures := 1; failures <= 7; failures++ {
		require.NoError(t, connector.Backoff(context.Background(), failures))
	}

	assert.Equal(t, []time.Duration{
		5 * time.Second,
		10 * time.Second,
		15 * time.Second,
		20 * time.Second,
		25 * time.Second,
		30 * time.Second,
		30 * time.Second,
	}, delays)
}

func TestDeliveryWithoutAcknowledger(t *testing.T) {
	d := broker.Delivery{Body: []byte("x")}

	assert.NoError(t, d.Ack())
	assert.NoError(t, d.Nack(true))
}
