package rabbitmq

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/nimeshabuddhika/resilient-order-saga/pkg/broker"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// ConsumerConfig configures a competing consumer on one durable queue.
type ConsumerConfig struct {
	Logger     *zap.Logger
	Connection *Connection
	Queue      string
	// MaxInFlight is used as both the channel prefetch and the local concurrency bound.
	MaxInFlight int
}

// ConsumerImpl consumes with manual acknowledgement. Its subscription is registered as a
// reconnect hook so it is re-established after the connection drops.
type ConsumerImpl struct {
	logger      *zap.Logger
	conn        *Connection
	queue       string
	maxInFlight int
	tag         string

	mu      sync.Mutex
	ch      *amqp.Channel
	stopped bool
	sem     chan struct{}
	wg      sync.WaitGroup
}

func NewConsumer(cfg ConsumerConfig) broker.Consumer {
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = 1
	}
	return &ConsumerImpl{
		logger:      cfg.Logger,
		conn:        cfg.Connection,
		queue:       cfg.Queue,
		maxInFlight: cfg.MaxInFlight,
		tag:         "consumer-" + cfg.Queue + "-" + uuid.NewString(),
		sem:         make(chan struct{}, cfg.MaxInFlight),
	}
}

// Start subscribes handler to the queue without waiting for the broker: the first
// subscription is made as soon as the connection comes up. Deliveries run on their own
// goroutine, at most MaxInFlight at a time. The returned func stops consumption and waits
// for in-flight deliveries to finish.
func (c *ConsumerImpl) Start(ctx context.Context, handler broker.Handler) (func(), error) {
	loopCtx, cancel := context.WithCancel(ctx)

	hook := func(conn *amqp.Connection) error {
		return c.subscribe(loopCtx, conn, handler)
	}
	registered := make(chan struct{})
	go func() {
		defer close(registered)
		if err := c.conn.Register(loopCtx, c.tag, hook); err != nil {
			c.logger.Error("rabbitmq_consumer_register_failed", zap.String("queue", c.queue), zap.Error(err))
			return
		}
		c.logger.Info("rabbitmq_consumer_started", zap.String("queue", c.queue), zap.Int("max_in_flight", c.maxInFlight))
	}()

	return func() {
		c.mu.Lock()
		c.stopped = true
		if c.ch != nil {
			if err := c.ch.Cancel(c.tag, false); err != nil {
				c.logger.Warn("rabbitmq_consumer_cancel_failed", zap.Error(err))
			}
		}
		c.mu.Unlock()
		cancel()
		<-registered
		c.conn.Unregister(c.tag)
		c.wg.Wait()

		c.mu.Lock()
		if c.ch != nil {
			_ = c.ch.Close()
			c.ch = nil
		}
		c.mu.Unlock()
		c.logger.Info("rabbitmq_consumer_stopped", zap.String("queue", c.queue))
	}, nil
}

func (c *ConsumerImpl) subscribe(ctx context.Context, conn *amqp.Connection, handler broker.Handler) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return nil
	}

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("could not open channel: %w", err)
	}
	if err := declareQueue(ch, c.queue); err != nil {
		_ = ch.Close()
		return err
	}
	if err := ch.Qos(c.maxInFlight, 0, false); err != nil {
		_ = ch.Close()
		return fmt.Errorf("could not set prefetch: %w", err)
	}
	msgs, err := ch.Consume(
		c.queue, // queue
		c.tag,   // consumer tag
		false,   // auto-ack
		false,   // exclusive
		false,   // no-local
		false,   // no-wait
		nil,     // args
	)
	if err != nil {
		_ = ch.Close()
		return fmt.Errorf("could not start consume: %w", err)
	}
	c.ch = ch

	c.wg.Add(1)
	go c.loop(ctx, conn, msgs, handler)
	return nil
}

func (c *ConsumerImpl) loop(ctx context.Context, conn *amqp.Connection, msgs <-chan amqp.Delivery, handler broker.Handler) {
	defer c.wg.Done()
	// in-flight work outlives a cancelled Start context so its ack decision still lands
	workCtx := context.WithoutCancel(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-msgs:
			if !ok {
				c.resubscribe(ctx, conn, handler)
				return
			}
			select {
			case c.sem <- struct{}{}:
			case <-ctx.Done():
				// not handed to the handler; the broker redelivers it once the channel closes
				return
			}
			c.wg.Add(1)
			go func(d amqp.Delivery) {
				defer func() {
					<-c.sem
					c.wg.Done()
				}()
				handler(workCtx, NewDelivery(d))
			}(d)
		}
	}
}

// resubscribe reopens the subscription when only the channel died. A dropped connection is
// handled by the reconnect hook instead.
func (c *ConsumerImpl) resubscribe(ctx context.Context, conn *amqp.Connection, handler broker.Handler) {
	if ctx.Err() != nil || conn.IsClosed() {
		return
	}
	c.logger.Warn("rabbitmq_consumer_channel_closed", zap.String("queue", c.queue))
	if err := c.subscribe(ctx, conn, handler); err != nil {
		c.logger.Error("rabbitmq_consumer_resubscribe_failed", zap.String("queue", c.queue), zap.Error(err))
	}
}

// Delivery adapts an amqp.Delivery to broker.Delivery.
type Delivery struct {
	d amqp.Delivery
}

func NewDelivery(d amqp.Delivery) *Delivery {
	return &Delivery{d: d}
}

func (d *Delivery) Body() []byte {
	return d.d.Body
}

func (d *Delivery) Ack() error {
	return d.d.Ack(false)
}

// Reject nacks without requeue so a failing message is not redelivered in a loop.
func (d *Delivery) Reject() error {
	return d.d.Nack(false, false)
}
