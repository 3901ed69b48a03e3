// Package redisstream implements broker.Broker on Redis Streams with a consumer group.
package redisstream

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/redis/rueidis"

	"github.com/jnst/order-notification-outbox/internal/broker"
)

const (
	fieldEventID   = "event_id"
	fieldEventType = "event_type"
	fieldPayload   = "payload"
	// set on copies appended by a requeueing Nack
	fieldRedelivered = "redelivered"

	// cursorNew asks XREADGROUP for entries never delivered to the group.
	// Any other id reads this consumer's pending entries after that id.
	cursorNew     = ">"
	cursorPending = "0"
	claimStart    = "0-0"

	defaultBlockTimeout = time.Second
	defaultReadCount    = 10
	defaultClaimMinIdle = time.Minute
	settleTimeout       = 5 * time.Second
)

var errMissingPayload = errors.New("missing payload in stream entry")

// Config holds the settings of a Redis Streams connection.
type Config struct {
	Addr     string
	Stream   string
	Group    string
	Consumer string
	// BlockTimeout bounds each XREADGROUP call.
	BlockTimeout time.Duration
	ReadCount    int64
	// ClaimMinIdle is how long an entry must sit unacknowledged with another
	// consumer before this one takes it over.
	ClaimMinIdle time.Duration
}

// Connection publishes to and consumes from one stream.
type Connection struct {
	cfg    Config
	client rueidis.Client
	closed atomic.Bool
}

var _ broker.Broker = (*Connection)(nil)

// Dialer returns a broker.Dialer opening Redis Streams connections.
func Dialer(cfg Config) broker.Dialer {
	return func(ctx context.Context) (broker.Broker, error) {
		return Dial(ctx, cfg)
	}
}

// Dial connects to Redis and creates the consumer group if needed.
func Dial(ctx context.Context, cfg Config) (*Connection, error) {
	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress: []string{cfg.Addr},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	c := &Connection{cfg: cfg, client: client}

	if err := c.createGroup(ctx); err != nil {
		client.Close()
		return nil, err
	}

	return c, nil
}

func (c *Connection) createGroup(ctx context.Context) error {
	cmd := c.client.B().XgroupCreate().Key(c.cfg.Stream).Group(c.cfg.Group).Id("0").Mkstream().Build()

	err := c.client.Do(ctx, cmd).Error()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group %s: %w", c.cfg.Group, err)
	}

	return nil
}

// Publish appends msg to the stream.
func (c *Connection) Publish(ctx context.Context, msg broker.Message) error {
	if c.IsClosed() {
		return broker.ErrClosed
	}

	return c.do(ctx, c.xadd(msg.ID, msg.Type, string(msg.Body)))
}

func (c *Connection) xadd(eventID, eventType, payload string) rueidis.Completed {
	return c.client.B().Xadd().Key(c.cfg.Stream).Id("*").
		FieldValue().
		FieldValue(fieldEventType, eventType).
		FieldValue(fieldEventID, eventID).
		FieldValue(fieldPayload, payload).
		Build()
}

func (c *Connection) requeue(fields map[string]string) rueidis.Completed {
	return c.client.B().Xadd().Key(c.cfg.Stream).Id("*").
		FieldValue().
		FieldValue(fieldEventType, fields[fieldEventType]).
		FieldValue(fieldEventID, fields[fieldEventID]).
		FieldValue(fieldPayload, fields[fieldPayload]).
		FieldValue(fieldRedelivered, "1").
		Build()
}

// Consume first takes over entries left unacknowledged by stale consumers and
// replays this consumer's own pending entries, then reads new entries for the
// group until ctx is done or a read fails.
func (c *Connection) Consume(ctx context.Context) (<-chan broker.Delivery, error) {
	if c.IsClosed() {
		return nil, broker.ErrClosed
	}

	if err := c.claimStale(ctx); err != nil {
		return nil, err
	}

	out := make(chan broker.Delivery)

	go func() {
		defer close(out)

		cursor := cursorPending

		for ctx.Err() == nil && !c.IsClosed() {
			entries, err := c.read(ctx, cursor)
			if err != nil {
				if ctx.Err() == nil {
					c.closed.Store(true)
				}
				return
			}

			for _, entry := range entries {
				d := c.toDelivery(entry, cursor != cursorNew)

				select {
				case out <- d:
				case <-ctx.Done():
					// still pending, replayed by the next Consume
					return
				}
			}

			cursor = nextCursor(cursor, entries)
		}
	}()

	return out, nil
}

// nextCursor advances through the pending list until it is exhausted and
// then switches to new entries.
func nextCursor(cursor string, entries []rueidis.XRangeEntry) string {
	if cursor == cursorNew {
		return cursorNew
	}

	if len(entries) == 0 {
		return cursorNew
	}

	return entries[len(entries)-1].ID
}

// claimStale moves entries idle for longer than ClaimMinIdle from any
// consumer of the group into this consumer's pending list.
func (c *Connection) claimStale(ctx context.Context) error {
	minIdle := c.cfg.ClaimMinIdle
	if minIdle <= 0 {
		minIdle = defaultClaimMinIdle
	}

	start := claimStart
	for {
		cmd := c.client.B().Xautoclaim().Key(c.cfg.Stream).Group(c.cfg.Group).Consumer(c.cfg.Consumer).
			MinIdleTime(strconv.FormatInt(minIdle.Milliseconds(), 10)).
			Start(start).
			Count(c.readCount()).
			Justid().
			Build()

		reply, err := c.client.Do(ctx, cmd).ToArray()
		if err != nil {
			return fmt.Errorf("failed to claim pending entries: %w", err)
		}

		if len(reply) == 0 {
			return nil
		}

		next, err := reply[0].ToString()
		if err != nil {
			return fmt.Errorf("failed to claim pending entries: %w", err)
		}

		if next == claimStart || next == start {
			return nil
		}

		start = next
	}
}

func (c *Connection) readCount() int64 {
	if c.cfg.ReadCount <= 0 {
		return defaultReadCount
	}

	return c.cfg.ReadCount
}

func (c *Connection) read(ctx context.Context, cursor string) ([]rueidis.XRangeEntry, error) {
	block := c.cfg.BlockTimeout
	if block <= 0 {
		block = defaultBlockTimeout
	}

	cmd := c.client.B().Xreadgroup().Group(c.cfg.Group, c.cfg.Consumer).
		Count(c.readCount()).
		Block(block.Milliseconds()).
		Streams().
		Key(c.cfg.Stream).
		Id(cursor).
		Build()

	streams, err := c.client.Do(ctx, cmd).AsXRead()
	if err != nil {
		if rueidis.IsRedisNil(err) {
			return nil, nil
		}

		return nil, err
	}

	return streams[c.cfg.Stream], nil
}

func (c *Connection) toDelivery(entry rueidis.XRangeEntry, pending bool) broker.Delivery {
	messageID, body := decodeEntry(entry)

	return broker.Delivery{
		MessageID:    messageID,
		Body:         body,
		Redelivered:  pending || entry.FieldValues[fieldRedelivered] != "",
		Acknowledger: &entryAcknowledger{conn: c, entry: entry},
	}
}

// decodeEntry returns the event id and payload carried by entry. An entry
// without a payload yields a nil body, which consumers treat as malformed.
func decodeEntry(entry rueidis.XRangeEntry) (string, []byte) {
	messageID := entry.FieldValues[fieldEventID]
	if messageID == "" {
		messageID = entry.ID
	}

	payload, ok := entry.FieldValues[fieldPayload]
	if !ok {
		return messageID, nil
	}

	return messageID, []byte(payload)
}

type entryAcknowledger struct {
	conn  *Connection
	entry rueidis.XRangeEntry
}

func (a *entryAcknowledger) Ack() error {
	return a.conn.ack(a.entry.ID)
}

// Nack with requeue appends a copy of the entry, marked as redelivered, to
// the stream before acknowledging the original, so the group sees it again.
// If the append fails the original stays pending and is replayed by the
// next Consume.
func (a *entryAcknowledger) Nack(requeue bool) error {
	if requeue {
		ctx, cancel := context.WithTimeout(context.Background(), settleTimeout)
		defer cancel()

		fields := a.entry.FieldValues
		if _, ok := fields[fieldPayload]; !ok {
			return errMissingPayload
		}

		if err := a.conn.do(ctx, a.conn.requeue(fields)); err != nil {
			return err
		}
	}

	return a.conn.ack(a.entry.ID)
}

func (c *Connection) ack(entryID string) error {
	ctx, cancel := context.WithTimeout(context.Background(), settleTimeout)
	defer cancel()

	return c.do(ctx, c.client.B().Xack().Key(c.cfg.Stream).Group(c.cfg.Group).Id(entryID).Build())
}

func (c *Connection) do(ctx context.Context, cmd rueidis.Completed) error {
	err := c.client.Do(ctx, cmd).Error()
	if err == nil {
		return nil
	}

	if errors.Is(err, rueidis.ErrClosing) {
		c.closed.Store(true)
		return fmt.Errorf("%w: %v", broker.ErrClosed, err)
	}

	return err
}

// IsClosed reports whether Close was called or the client has failed.
func (c *Connection) IsClosed() bool {
	return c.closed.Load()
}

// Close closes the underlying client.
func (c *Connection) Close() error {
	if c.closed.Swap(true) {
		return nil
	}

	c.client.Close()

	return nil
}
