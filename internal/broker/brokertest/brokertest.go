// Package brokertest provides an in-memory at-least-once broker for tests.
package brokertest

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jnst/order-notification-outbox/internal/broker"
)

// pollInterval bounds the wait of a consumer that missed a wakeup shared
// with other connections.
const pollInterval = 10 * time.Millisecond

// ErrInjected is returned by injected dial and publish failures.
var ErrInjected = errors.New("injected broker failure")

type entry struct {
	id          string
	body        []byte
	redelivered bool
}

// Queue simulates a broker queue shared by every connection dialed from it.
// Unacknowledged deliveries are requeued when their connection closes.
type Queue struct {
	mu      sync.Mutex
	ready   []*entry
	unacked map[uint64]*unackedEntry
	nextTag uint64
	signal  chan struct{}

	published []broker.Message
	dropped   int
	acked     int

	dialFailures    int
	publishFailures int
	dialAttempts    int
	conns           []*Conn
}

type unackedEntry struct {
	entry *entry
	conn  *Conn
}

// NewQueue returns an empty queue.
func NewQueue() *Queue {
	return &Queue{
		unacked: make(map[uint64]*unackedEntry),
		signal:  make(chan struct{}, 1),
	}
}

// FailDials makes the next n dials fail.
func (q *Queue) FailDials(n int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.dialFailures = n
}

// FailPublishes makes the next n publishes fail.
func (q *Queue) FailPublishes(n int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.publishFailures = n
}

// Dial opens a new connection to the queue.
func (q *Queue) Dial(context.Context) (broker.Broker, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.dialAttempts++
	if q.dialFailures > 0 {
		q.dialFailures--
		return nil, ErrInjected
	}

	c := &Conn{queue: q, done: make(chan struct{})}
	q.conns = append(q.conns, c)

	return c, nil
}

// Enqueue puts a raw message on the queue, bypassing Publish.
func (q *Queue) Enqueue(id string, body []byte) {
	q.mu.Lock()
	q.ready = append(q.ready, &entry{id: id, body: append([]byte(nil), body...)})
	q.mu.Unlock()

	q.notify()
}

// Published returns every message accepted through Publish, duplicates included.
func (q *Queue) Published() []broker.Message {
	q.mu.Lock()
	defer q.mu.Unlock()

	return append([]broker.Message(nil), q.published...)
}

// Stats reports queue counters.
func (q *Queue) Stats() (ready, unacked, acked, dropped int) {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.ready), len(q.unacked), q.acked, q.dropped
}

// DialAttempts returns how many times Dial was called.
func (q *Queue) DialAttempts() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.dialAttempts
}

// OpenConnections returns the number of connections not yet closed.
func (q *Queue) OpenConnections() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := 0
	for _, c := range q.conns {
		if !c.closed {
			n++
		}
	}

	return n
}

// Sever closes every open connection, as a broker restart would.
func (q *Queue) Sever() {
	q.mu.Lock()
	conns := append([]*Conn(nil), q.conns...)
	q.mu.Unlock()

	for _, c := range conns {
		_ = c.Close()
	}
}

func (q *Queue) notify() {
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// pop moves the head of the queue to the unacked set.
func (q *Queue) pop(c *Conn) (broker.Delivery, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.ready) == 0 || c.closed {
		return broker.Delivery{}, false
	}

	e := q.ready[0]
	q.ready = q.ready[1:]
	q.nextTag++
	tag := q.nextTag
	q.unacked[tag] = &unackedEntry{entry: e, conn: c}

	return broker.Delivery{
		MessageID:    e.id,
		Body:         e.body,
		Redelivered:  e.redelivered,
		Acknowledger: &acknowledger{queue: q, tag: tag},
	}, true
}

func (q *Queue) settle(tag uint64, ack, requeue bool) error {
	q.mu.Lock()

	u, ok := q.unacked[tag]
	if !ok {
		q.mu.Unlock()
		return errors.New("unknown delivery tag")
	}
	delete(q.unacked, tag)

	switch {
	case ack:
		q.acked++
	case requeue:
		u.entry.redelivered = true
		q.ready = append(q.ready, u.entry)
	default:
		q.dropped++
	}
	q.mu.Unlock()

	if !ack && requeue {
		q.notify()
	}

	return nil
}

type acknowledger struct {
	queue *Queue
	tag   uint64
}

func (a *acknowledger) Ack() error              { return a.queue.settle(a.tag, true, false) }
func (a *acknowledger) Nack(requeue bool) error { return a.queue.settle(a.tag, false, requeue) }

// Conn is a connection to a Queue.
type Conn struct {
	queue  *Queue
	closed bool
	done   chan struct{}
}

func (c *Conn) Publish(_ context.Context, msg broker.Message) error {
	q := c.queue
	q.mu.Lock()

	if c.closed {
		q.mu.Unlock()
		return broker.ErrClosed
	}

	if q.publishFailures > 0 {
		q.publishFailures--
		q.mu.Unlock()
		return ErrInjected
	}

	msg.Body = append([]byte(nil), msg.Body...)
	q.published = append(q.published, msg)
	q.ready = append(q.ready, &entry{id: msg.ID, body: msg.Body})
	q.mu.Unlock()

	q.notify()

	return nil
}

func (c *Conn) Consume(ctx context.Context) (<-chan broker.Delivery, error) {
	if c.IsClosed() {
		return nil, broker.ErrClosed
	}

	out := make(chan broker.Delivery)

	go func() {
		defer close(out)

		for {
			d, ok := c.queue.pop(c)
			if !ok {
				select {
				case <-c.queue.signal:
					continue
				case <-time.After(pollInterval):
					continue
				case <-ctx.Done():
					return
				case <-c.done:
					return
				}
			}

			select {
			case out <- d:
			case <-ctx.Done():
				_ = d.Nack(true)
				return
			case <-c.done:
				return
			}
		}
	}()

	return out, nil
}

func (c *Conn) IsClosed() bool {
	c.queue.mu.Lock()
	defer c.queue.mu.Unlock()

	return c.closed
}

// Close closes the connection and requeues its unacknowledged deliveries.
func (c *Conn) Close() error {
	q := c.queue
	q.mu.Lock()

	if c.closed {
		q.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.done)

	for tag, u := range q.unacked {
		if u.conn == c {
			delete(q.unacked, tag)
			u.entry.redelivered = true
			q.ready = append(q.ready, u.entry)
		}
	}
	q.mu.Unlock()

	q.notify()

	return nil
}
