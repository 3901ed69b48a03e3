// Package rabbitmq implements broker.Broker on RabbitMQ.
package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/jnst/order-notification-outbox/internal/broker"
)

const (
	defaultDialTimeout = 10 * time.Second
	contentTypeJSON    = "application/json"
)

var errPublishNacked = errors.New("publish not confirmed by broker")

// Config holds the settings of a RabbitMQ connection.
type Config struct {
	URL            string
	Queue          string
	Prefetch       int
	ConsumerTag    string
	ConnectionName string
	DialTimeout    time.Duration
}

// Connection is a RabbitMQ connection with one confirm-mode channel bound to Config.Queue.
type Connection struct {
	cfg  Config
	conn *amqp.Connection
	ch   *amqp.Channel

	// publishes on one channel must be serialized to match confirms
	mu sync.Mutex
}

var _ broker.Broker = (*Connection)(nil)

// Dialer returns a broker.Dialer opening RabbitMQ connections.
func Dialer(cfg Config) broker.Dialer {
	return func(ctx context.Context) (broker.Broker, error) {
		return Dial(ctx, cfg)
	}
}

// Dial connects, opens a channel in confirm mode and declares the queue.
func Dial(ctx context.Context, cfg Config) (*Connection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	timeout := cfg.DialTimeout
	if timeout <= 0 {
		timeout = defaultDialTimeout
	}

	props := amqp.NewConnectionProperties()
	if cfg.ConnectionName != "" {
		props.SetClientConnectionName(cfg.ConnectionName)
	}

	conn, err := amqp.DialConfig(cfg.URL, amqp.Config{
		Dial:       amqp.DefaultDial(timeout),
		Properties: props,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}

	if err := ch.Confirm(false); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to enable publisher confirms: %w", err)
	}

	if _, err := declareQueue(ch, cfg.Queue); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to declare queue %s: %w", cfg.Queue, err)
	}

	return &Connection{cfg: cfg, conn: conn, ch: ch}, nil
}

func declareQueue(ch *amqp.Channel, name string) (amqp.Queue, error) {
	return ch.QueueDeclare(
		name,  // name
		false, // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
}

// Publish sends msg on the default exchange and waits for the broker confirm.
func (c *Connection) Publish(ctx context.Context, msg broker.Message) error {
	key, publishing := c.publishing(msg)

	c.mu.Lock()
	confirm, err := c.ch.PublishWithDeferredConfirmWithContext(
		ctx,
		"",    // exchange
		key,   // routing key
		false, // mandatory
		false, // immediate
		publishing,
	)
	c.mu.Unlock()

	if err != nil {
		return translateError(err)
	}

	acked, err := confirm.WaitContext(ctx)
	if err != nil {
		return translateError(err)
	}

	if !acked {
		return errPublishNacked
	}

	return nil
}

func (c *Connection) publishing(msg broker.Message) (string, amqp.Publishing) {
	key := msg.RoutingKey
	if key == "" {
		key = c.cfg.Queue
	}

	return key, amqp.Publishing{
		ContentType:  contentTypeJSON,
		MessageId:    msg.ID,
		Type:         msg.Type,
		Timestamp:    msg.Timestamp,
		DeliveryMode: amqp.Transient,
		Body:         msg.Body,
	}
}

// Consume subscribes to the queue with manual acknowledgements.
func (c *Connection) Consume(ctx context.Context) (<-chan broker.Delivery, error) {
	if c.cfg.Prefetch > 0 {
		if err := c.ch.Qos(c.cfg.Prefetch, 0, false); err != nil {
			return nil, translateError(err)
		}
	}

	msgs, err := c.ch.Consume(
		c.cfg.Queue,
		c.cfg.ConsumerTag,
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		return nil, translateError(err)
	}

	out := make(chan broker.Delivery)

	go func() {
		defer close(out)

		for {
			select {
			case <-ctx.Done():
				_ = c.ch.Cancel(c.cfg.ConsumerTag, false)
				return
			case d, ok := <-msgs:
				if !ok {
					return
				}

				select {
				case out <- toDelivery(d):
				case <-ctx.Done():
					_ = d.Nack(false, true)
					_ = c.ch.Cancel(c.cfg.ConsumerTag, false)
					return
				}
			}
		}
	}()

	return out, nil
}

// IsClosed reports whether the connection or its channel has been closed.
func (c *Connection) IsClosed() bool {
	return c.conn.IsClosed() || c.ch.IsClosed()
}

// Close closes the channel and the connection.
func (c *Connection) Close() error {
	var errs []error

	if err := c.ch.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
		errs = append(errs, err)
	}

	if err := c.conn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

func toDelivery(d amqp.Delivery) broker.Delivery {
	return broker.Delivery{
		MessageID:    d.MessageId,
		Body:         d.Body,
		Redelivered:  d.Redelivered,
		Acknowledger: deliveryAcknowledger{delivery: d},
	}
}

type deliveryAcknowledger struct {
	delivery amqp.Delivery
}

func (a deliveryAcknowledger) Ack() error {
	return a.delivery.Ack(false)
}

func (a deliveryAcknowledger) Nack(requeue bool) error {
	return a.delivery.Nack(false, requeue)
}

func translateError(err error) error {
	if errors.Is(err, amqp.ErrClosed) {
		return fmt.Errorf("%w: %v", broker.ErrClosed, err)
	}

	var amqpErr *amqp.Error
	if errors.As(err, &amqpErr) && !amqpErr.Recover {
		return fmt.Errorf("%w: %v", broker.ErrClosed, err)
	}

	return err
}
