package rabbitmq

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/nimeshabuddhika/resilient-order-saga/pkg/broker"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

var reconnectsTotal = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "order_saga",
	Subsystem: "rabbitmq",
	Name:      "reconnects_total",
	Help:      "Number of times the RabbitMQ connection was re-established after a drop",
})

// Dialer opens an AMQP connection. amqp.Dial satisfies it.
type Dialer func(url string) (*amqp.Connection, error)

// ReconnectHook runs against every freshly established connection, including the first.
type ReconnectHook func(conn *amqp.Connection) error

// Connection is a process-wide supervised AMQP connection. It is established lazily and at
// most once under concurrent first use, and re-established with exponential backoff when the
// broker drops it. Registered hooks run after every reconnect.
type Connection struct {
	url        string
	logger     *zap.Logger
	dial       Dialer
	maxBackoff time.Duration

	mu         sync.Mutex
	conn       *amqp.Connection
	connecting chan struct{} // non-nil while a dial is in flight, closed when it finishes
	hooks      map[string]ReconnectHook
	closed     bool
	shutdown   chan struct{}
}

// NewConnection prepares a supervised connection; nothing is dialled until first use.
func NewConnection(url string, logger *zap.Logger) *Connection {
	return &Connection{
		url:        url,
		logger:     logger,
		dial:       amqp.Dial,
		maxBackoff: 30 * time.Second,
		hooks:      make(map[string]ReconnectHook),
		shutdown:   make(chan struct{}),
	}
}

// Get returns the live connection. Concurrent callers share a single in-flight dial.
func (c *Connection) Get(ctx context.Context) (*amqp.Connection, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return nil, broker.ErrClosed
		}
		if c.conn != nil && !c.conn.IsClosed() {
			conn := c.conn
			c.mu.Unlock()
			return conn, nil
		}
		if wait := c.connecting; wait != nil {
			c.mu.Unlock()
			select {
			case <-wait:
				continue
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		wait := make(chan struct{})
		c.connecting = wait
		c.mu.Unlock()

		conn, err := c.dialWithBackoff(ctx)

		c.mu.Lock()
		c.connecting = nil
		close(wait)
		if err == nil {
			if c.closed {
				_ = conn.Close()
				c.mu.Unlock()
				return nil, broker.ErrClosed
			}
			c.install(conn)
		}
		c.mu.Unlock()
		if err != nil {
			return nil, err
		}
		return conn, nil
	}
}

// Channel opens a new AMQP channel on the live connection.
func (c *Connection) Channel(ctx context.Context) (*amqp.Channel, error) {
	conn, err := c.Get(ctx)
	if err != nil {
		return nil, err
	}
	return conn.Channel()
}

// Register adds a hook under name, replacing any previous hook with the same name, and runs
// it once against the current connection.
func (c *Connection) Register(ctx context.Context, name string, hook ReconnectHook) error {
	conn, err := c.Get(ctx)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.hooks[name] = hook
	c.mu.Unlock()
	return hook(conn)
}

// Unregister removes a hook; it will not run on later reconnects.
func (c *Connection) Unregister(name string) {
	c.mu.Lock()
	delete(c.hooks, name)
	c.mu.Unlock()
}

// Close stops supervision and closes the connection.
func (c *Connection) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.shutdown)
	if c.conn != nil && !c.conn.IsClosed() {
		if err := c.conn.Close(); err != nil {
			c.logger.Warn("rabbitmq_connection_close_failed", zap.Error(err))
		}
	}
	c.logger.Info("rabbitmq_connection_closed")
}

// install must be called with c.mu held.
func (c *Connection) install(conn *amqp.Connection) {
	c.conn = conn
	notify := conn.NotifyClose(make(chan *amqp.Error, 1))
	go c.supervise(notify)
	c.logger.Info("rabbitmq_connection_established")
}

func (c *Connection) supervise(notify <-chan *amqp.Error) {
	var amqpErr *amqp.Error
	select {
	case <-c.shutdown:
		return
	case amqpErr = <-notify:
	}
	if amqpErr == nil {
		// closed locally
		return
	}
	c.logger.Warn("rabbitmq_connection_lost", zap.String("reason", amqpErr.Reason), zap.Int("code", amqpErr.Code))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-c.shutdown:
			cancel()
		case <-ctx.Done():
		}
	}()

	conn, err := c.Get(ctx)
	if err != nil {
		c.logger.Error("rabbitmq_reconnect_abandoned", zap.Error(err))
		return
	}
	reconnectsTotal.Inc()

	c.mu.Lock()
	hooks := make(map[string]ReconnectHook, len(c.hooks))
	for name, hook := range c.hooks {
		hooks[name] = hook
	}
	c.mu.Unlock()

	for name, hook := range hooks {
		if err := hook(conn); err != nil {
			c.logger.Error("rabbitmq_reconnect_hook_failed", zap.String("hook", name), zap.Error(err))
		}
	}
}

// dialWithBackoff retries until ctx is done; maxBackoff caps a single wait, not the total.
func (c *Connection) dialWithBackoff(ctx context.Context) (*amqp.Connection, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 250 * time.Millisecond
	b.MaxInterval = c.maxBackoff
	b.MaxElapsedTime = 0

	attempt := 0
	var conn *amqp.Connection
	operation := func() error {
		attempt++
		var err error
		conn, err = c.dial(c.url)
		if err != nil {
			c.logger.Warn("rabbitmq_dial_failed", zap.Int("attempt", attempt), zap.Error(err))
			return err
		}
		return nil
	}
	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return nil, fmt.Errorf("could not connect to rabbitmq: %w", err)
	}
	return conn, nil
}

// declareQueue declares the durable queue both publishers and consumers rely on.
func declareQueue(ch *amqp.Channel, queue string) error {
	_, err := ch.QueueDeclare(
		queue, // name
		true,  // durable
		false, // auto-deleted
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return fmt.Errorf("could not declare queue %s: %w", queue, err)
	}
	return nil
}
