// Package broker defines the message broker abstraction shared by the outbox
// relay and the inbox consumer, and the connection-retry state machine both use.
package broker

import (
	"context"
	"errors"
	"time"
)

// ErrClosed is returned by operations on a closed broker connection.
var ErrClosed = errors.New("broker connection closed")

// Message is a single event handed to the broker.
type Message struct {
	// ID is the event id; transports carry it as the message id.
	ID         string
	Type       string
	RoutingKey string
	Body       []byte
	Timestamp  time.Time
}

// Acknowledger settles a delivery with the broker.
type Acknowledger interface {
	Ack() error
	Nack(requeue bool) error
}

// Delivery is a message received from the broker. It must be settled with
// Ack or Nack exactly once.
type Delivery struct {
	MessageID   string
	Body        []byte
	Redelivered bool

	Acknowledger Acknowledger
}

// Ack removes the delivery from the broker.
func (d Delivery) Ack() error {
	if d.Acknowledger == nil {
		return nil
	}

	return d.Acknowledger.Ack()
}

// Nack rejects the delivery. With requeue the broker delivers it again,
// otherwise it is dropped.
func (d Delivery) Nack(requeue bool) error {
	if d.Acknowledger == nil {
		return nil
	}

	return d.Acknowledger.Nack(requeue)
}

// Broker is a live connection to a message broker bound to one queue.
type Broker interface {
	// Publish sends msg and returns once the broker has accepted it.
	// It can be invoked more than once for the same message.
	Publish(ctx context.Context, msg Message) error
	// Consume starts delivering messages from the queue. The returned channel
	// is closed when ctx is done or the connection is lost.
	Consume(ctx context.Context) (<-chan Delivery, error)
	IsClosed() bool
	Close() error
}

// Dialer opens a new broker connection.
type Dialer func(ctx context.Context) (Broker, error)
