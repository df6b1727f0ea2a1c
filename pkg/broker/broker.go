// Package broker abstracts the durable transaction event channel so the consumer logic does
// not depend on a specific transport.
package broker

import (
	"context"
	"errors"
	"time"
)

var (
	ErrClosed          = errors.New("broker closed")
	ErrPublishNotAcked = errors.New("publish not confirmed by broker")
	ErrUnknownDriver   = errors.New("unknown broker driver")
)

// Delivery is one message handed to a consumer. Every delivery ends with exactly one
// call to Ack or Reject; both remove the message from the channel.
type Delivery interface {
	Body() []byte
	// Ack confirms successful processing.
	Ack() error
	// Reject negatively acknowledges the message without requeue.
	Reject() error
}

// Handler processes a single delivery. It owns the Ack/Reject decision.
type Handler func(ctx context.Context, d Delivery)

// Publisher sends durable messages to one queue or topic.
type Publisher interface {
	// Publish blocks until the broker has accepted the message or ctx is done.
	Publish(ctx context.Context, key string, body []byte) error
	Close()
}

// Consumer delivers messages from one queue or topic to a Handler. Instances sharing a
// queue compete: each message reaches exactly one live consumer.
type Consumer interface {
	// Start registers handler and returns a cleanup func that stops consumption.
	Start(ctx context.Context, handler Handler) (func(), error)
}

// Config selects and configures the transport.
type Config struct {
	Driver        string
	RabbitMQURL   string
	KafkaBrokers  string
	ConsumerGroup string
	// MaxInFlight bounds concurrently processed deliveries per consumer.
	MaxInFlight    int
	PublishTimeout time.Duration
}

// WithDefaults fills zero values.
func (c Config) WithDefaults() Config {
	if c.MaxInFlight <= 0 {
		c.MaxInFlight = 8
	}
	if c.PublishTimeout <= 0 {
		c.PublishTimeout = 5 * time.Second
	}
	return c
}
