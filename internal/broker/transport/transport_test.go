package transport

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jnst/order-notification-outbox/internal/config"
)

func TestNewDialer(t *testing.T) {
	tests := []struct {
		broker  string
		wantErr bool
	}{
		{broker: config.BrokerRabbitMQ},
		{broker: config.BrokerRedis},
		{broker: "kafka", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.broker, func(t *testing.T) {
			dial, err := NewDialer(&config.Config{Broker: tt.broker, QueueName: "order_created"}, "test")
			if tt.wantErr {
				assert.Error(t, err)
				assert.Nil(t, dial)
				return
			}

			require.NoError(t, err)
			assert.NotNil(t, dial)
		})
	}
}

func TestNewConnectorStartsDisconnected(t *testing.T) {
	cfg := &config.Config{BrokerRetryStep: time.Second, BrokerRetryMax: 3 * time.Second}
	dial, err := NewDialer(&config.Config{Broker: config.BrokerRabbitMQ}, "test")
	require.NoError(t, err)

	c := NewConnector(cfg, dial)
	state, attempt := c.State()

	assert.Equal(t, "disconnected", state.String())
	assert.Zero(t, attempt)
}
