// Package transport selects the broker implementation named by the configuration.
package transport

import (
	"fmt"

	"github.com/jnst/order-notification-outbox/internal/broker"
	"github.com/jnst/order-notification-outbox/internal/broker/rabbitmq"
	"github.com/jnst/order-notification-outbox/internal/broker/redisstream"
	"github.com/jnst/order-notification-outbox/internal/config"
)

// NewDialer returns the dialer for cfg.Broker. name identifies the calling
// process to the broker (connection name or consumer name).
func NewDialer(cfg *config.Config, name string) (broker.Dialer, error) {
	switch cfg.Broker {
	case config.BrokerRabbitMQ:
		return rabbitmq.Dialer(rabbitmq.Config{
			URL:            cfg.RabbitMQ.URL(),
			Queue:          cfg.QueueName,
			Prefetch:       cfg.RabbitMQ.Prefetch,
			ConsumerTag:    name,
			ConnectionName: name,
		}), nil
	case config.BrokerRedis:
		return redisstream.Dialer(redisstream.Config{
			Addr:     cfg.RedisAddr,
			Stream:   cfg.QueueName,
			Group:    cfg.QueueName,
			Consumer: name,
		}), nil
	default:
		return nil, fmt.Errorf("unknown broker %q", cfg.Broker)
	}
}

// NewConnector returns a broker.Connector for cfg using the configured retry policy.
func NewConnector(cfg *config.Config, dial broker.Dialer, opts ...broker.ConnectorOption) *broker.Connector {
	opts = append([]broker.ConnectorOption{
		broker.WithDelay(broker.LinearBackoff(cfg.BrokerRetryStep, cfg.BrokerRetryMax)),
	}, opts...)

	return broker.NewConnector(dial, opts...)
}
