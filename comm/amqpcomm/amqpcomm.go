// Package amqpcomm implements comm.Comm over RabbitMQ so ranks can run as
// separate processes.
//
// Every rank owns one queue named "<prefix>.<rank>.<size>". Sends publish to
// the default exchange with the destination's queue as routing key and the
// source rank and tag in the message headers. A single consumer per rank
// demultiplexes deliveries into a comm.Mailbox, which provides the
// (source, tag) matching and per-pair FIFO order that comm requires.
package amqpcomm

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/mrjoshuak/go-sortlast/comm"
)

const (
	headerSrc = "sortlast-src"
	headerTag = "sortlast-tag"
)

// ErrBadHeaders is reported for a delivery that lacks valid source and tag
// headers. Such deliveries are rejected and dropped.
var ErrBadHeaders = errors.New("amqpcomm: delivery without valid source/tag headers")

// Config holds the connection settings and this process's place in the group.
type Config struct {
	URL      string
	Username string
	Password string
	Host     string
	Port     int
	VHost    string

	// QueuePrefix namespaces the queues of one compositing group. Groups
	// running at the same time need distinct prefixes.
	//
	// Queues are declared auto-delete, so a rank's queue and anything left
	// in it disappear once its consumer goes away, including after a
	// crash. A queue that never gets a consumer (its rank never dialed)
	// expires after QueueExpiry. Either way a later run reusing the prefix
	// starts with empty queues.
	QueuePrefix string

	// QueueExpiry is how long an unused queue survives; 0 means 10 minutes.
	QueueExpiry time.Duration

	Rank int
	Size int

	// Prefetch bounds unacknowledged deliveries per consumer; 0 means 64.
	Prefetch int
}

// DefaultConfig returns settings for a local broker with guest credentials.
func DefaultConfig(rank, size int) *Config {
	return &Config{
		Username:    "guest",
		Password:    "guest",
		Host:        "localhost",
		Port:        5672,
		VHost:       "/",
		QueuePrefix: "sortlast",
		Rank:        rank,
		Size:        size,
		Prefetch:    64,
		QueueExpiry: defaultQueueExpiry,
	}
}

const defaultQueueExpiry = 10 * time.Minute

// queueArgs returns the declaration arguments shared by every rank. All
// declarations of a queue must use identical arguments.
func (c *Config) queueArgs() amqp.Table {
	expiry := c.QueueExpiry
	if expiry <= 0 {
		expiry = defaultQueueExpiry
	}
	return amqp.Table{"x-expires": int32(expiry / time.Millisecond)}
}

// BuildURL returns URL if set, otherwise one assembled from the parts.
func (c *Config) BuildURL() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf("amqp://%s:%s@%s:%d%s", c.Username, c.Password, c.Host, c.Port, c.VHost)
}

// QueueName returns the queue owned by rank.
func (c *Config) QueueName(rank int) string {
	return fmt.Sprintf("%s.%d.%d", c.QueuePrefix, rank, c.Size)
}

func (c *Config) validate() error {
	if c.Size <= 0 {
		return fmt.Errorf("amqpcomm: size %d must be positive", c.Size)
	}
	if c.Rank < 0 || c.Rank >= c.Size {
		return fmt.Errorf("%w: %d not in [0, %d)", comm.ErrInvalidRank, c.Rank, c.Size)
	}
	if c.QueuePrefix == "" {
		return errors.New("amqpcomm: empty queue prefix")
	}
	if c.QueueExpiry/time.Millisecond > math.MaxInt32 {
		return fmt.Errorf("amqpcomm: queue expiry %v too long", c.QueueExpiry)
	}
	return nil
}

// Comm is one rank's RabbitMQ endpoint.
type Comm struct {
	cfg  Config
	conn *amqp.Connection
	ch   *amqp.Channel
	box  *comm.Mailbox

	pubMu sync.Mutex
	done  chan struct{}

	closeOnce sync.Once
	closeErr  error
}

var _ comm.Comm = (*Comm)(nil)

// Dial connects to the broker, declares the queues of every rank in the
// group, and starts consuming this rank's queue.
func Dial(cfg *Config) (*Comm, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	prefetch := cfg.Prefetch
	if prefetch <= 0 {
		prefetch = 64
	}

	conn, err := amqp.Dial(cfg.BuildURL())
	if err != nil {
		return nil, fmt.Errorf("amqpcomm: failed to connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("amqpcomm: failed to open channel: %w", err)
	}
	if err := ch.Qos(prefetch, 0, false); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("amqpcomm: failed to set QoS: %w", err)
	}

	// Declare every peer's queue so a send never races the peer's Dial.
	args := cfg.queueArgs()
	for r := 0; r < cfg.Size; r++ {
		if _, err := ch.QueueDeclare(cfg.QueueName(r), false, true, false, false, args); err != nil {
			ch.Close()
			conn.Close()
			return nil, fmt.Errorf("amqpcomm: failed to declare queue %q: %w", cfg.QueueName(r), err)
		}
	}

	deliveries, err := ch.Consume(cfg.QueueName(cfg.Rank), "", false, true, false, false, nil)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("amqpcomm: failed to start consuming: %w", err)
	}

	c := &Comm{
		cfg:  *cfg,
		conn: conn,
		ch:   ch,
		box:  comm.NewMailbox(),
		done: make(chan struct{}),
	}
	go c.consume(deliveries)
	return c, nil
}

func (c *Comm) consume(deliveries <-chan amqp.Delivery) {
	defer close(c.done)
	for d := range deliveries {
		src, tag, err := parseHeaders(d.Headers, c.cfg.Size)
		if err != nil {
			_ = d.Reject(false)
			continue
		}
		c.box.Deliver(src, tag, d.Body)
		_ = d.Ack(false)
	}
	c.box.Close(comm.ErrClosed)
}

func parseHeaders(h amqp.Table, size int) (src int, tag comm.Tag, err error) {
	s, ok := toInt64(h[headerSrc])
	if !ok || s < 0 || s >= int64(size) {
		return 0, 0, ErrBadHeaders
	}
	t, ok := toInt64(h[headerTag])
	if !ok || t < 0 || t > 0xffffffff {
		return 0, 0, ErrBadHeaders
	}
	return int(s), comm.Tag(t), nil
}

// toInt64 accepts the integer widths the AMQP table codec may produce.
func toInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int32:
		return int64(n), true
	case int16:
		return int64(n), true
	case int8:
		return int64(n), true
	case int:
		return int64(n), true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	}
	return 0, false
}

// Rank implements comm.Comm.
func (c *Comm) Rank() int { return c.cfg.Rank }

// Size implements comm.Comm.
func (c *Comm) Size() int { return c.cfg.Size }

// Send implements comm.Comm. The message is handed to the broker; the call
// does not wait for the destination to receive it.
func (c *Comm) Send(ctx context.Context, dest int, tag comm.Tag, payload []byte) error {
	if dest < 0 || dest >= c.cfg.Size {
		return fmt.Errorf("%w: %d not in [0, %d)", comm.ErrInvalidRank, dest, c.cfg.Size)
	}
	msg := amqp.Publishing{
		ContentType: "application/octet-stream",
		Headers: amqp.Table{
			headerSrc: int64(c.cfg.Rank),
			headerTag: int64(tag),
		},
		Body: payload,
	}

	// One publisher at a time keeps per-destination order on the channel.
	c.pubMu.Lock()
	defer c.pubMu.Unlock()
	if err := c.ch.PublishWithContext(ctx, "", c.cfg.QueueName(dest), false, false, msg); err != nil {
		return fmt.Errorf("amqpcomm: publish to rank %d: %w", dest, err)
	}
	return nil
}

// Recv implements comm.Comm.
func (c *Comm) Recv(ctx context.Context, src int, tag comm.Tag) ([]byte, error) {
	if src < 0 || src >= c.cfg.Size {
		return nil, fmt.Errorf("%w: %d not in [0, %d)", comm.ErrInvalidRank, src, c.cfg.Size)
	}
	return c.box.Take(ctx, src, tag)
}

// Pending returns the number of delivered but unreceived messages.
func (c *Comm) Pending() int {
	return c.box.Pending()
}

// Close deletes this rank's queue and shuts the connection down. Pending
// receives fail with comm.ErrClosed.
func (c *Comm) Close() error {
	c.closeOnce.Do(func() {
		var errs []error
		if _, err := c.ch.QueueDelete(c.cfg.QueueName(c.cfg.Rank), false, false, false); err != nil {
			errs = append(errs, fmt.Errorf("amqpcomm: delete queue: %w", err))
		}
		if err := c.ch.Close(); err != nil {
			errs = append(errs, fmt.Errorf("amqpcomm: close channel: %w", err))
		}
		if err := c.conn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			errs = append(errs, fmt.Errorf("amqpcomm: close connection: %w", err))
		}
		<-c.done
		c.box.Close(comm.ErrClosed)
		c.closeErr = errors.Join(errs...)
	})
	return c.closeErr
}
