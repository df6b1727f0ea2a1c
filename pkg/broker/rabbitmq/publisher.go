package rabbitmq

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nimeshabuddhika/resilient-order-saga/pkg/broker"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// PublisherConfig configures a confirming publisher bound to one durable queue.
type PublisherConfig struct {
	Logger     *zap.Logger
	Connection *Connection
	Queue      string
}

// PublisherImpl publishes persistent messages to the default exchange with publisher
// confirms. The channel is opened on first use and reopened after any channel error.
type PublisherImpl struct {
	logger *zap.Logger
	conn   *Connection
	queue  string

	mu sync.Mutex
	ch *amqp.Channel
}

// NewPublisher returns a Publisher for cfg.Queue. No I/O happens until the first Publish.
func NewPublisher(cfg PublisherConfig) broker.Publisher {
	return &PublisherImpl{
		logger: cfg.Logger,
		conn:   cfg.Connection,
		queue:  cfg.Queue,
	}
}

// channel must be called with p.mu held.
func (p *PublisherImpl) channel(ctx context.Context) (*amqp.Channel, error) {
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}
	ch, err := p.conn.Channel(ctx)
	if err != nil {
		return nil, err
	}
	if err := declareQueue(ch, p.queue); err != nil {
		_ = ch.Close()
		return nil, err
	}
	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("could not enable publisher confirms: %w", err)
	}
	p.ch = ch
	p.logger.Info("rabbitmq_publisher_channel_opened", zap.String("queue", p.queue))
	return ch, nil
}

// Publish sends body as a persistent JSON message and waits for the broker confirm.
// The key is carried as the message id.
func (p *PublisherImpl) Publish(ctx context.Context, key string, body []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	ch, err := p.channel(ctx)
	if err != nil {
		return err
	}

	confirm, err := ch.PublishWithDeferredConfirmWithContext(ctx,
		"",      // default exchange
		p.queue, // routing key
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    key,
			Timestamp:    time.Now().UTC(),
			Body:         body,
		})
	if err != nil {
		p.reset()
		return fmt.Errorf("publish to %s failed: %w", p.queue, err)
	}

	acked, err := confirm.WaitContext(ctx)
	if err != nil {
		p.reset()
		return fmt.Errorf("waiting for confirm on %s failed: %w", p.queue, err)
	}
	if !acked {
		return broker.ErrPublishNotAcked
	}
	return nil
}

// reset drops the current channel so the next Publish opens a fresh one. Must be called
// with p.mu held.
func (p *PublisherImpl) reset() {
	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
}

func (p *PublisherImpl) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reset()
	p.logger.Info("rabbitmq_publisher_closed", zap.String("queue", p.queue))
}
