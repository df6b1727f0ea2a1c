// Package transport builds publishers and consumers for the configured broker driver.
package transport

import (
	"context"
	"fmt"

	"github.com/nimeshabuddhika/resilient-order-saga/pkg"
	"github.com/nimeshabuddhika/resilient-order-saga/pkg/broker"
	kafkautils "github.com/nimeshabuddhika/resilient-order-saga/pkg/broker/kafka"
	"github.com/nimeshabuddhika/resilient-order-saga/pkg/broker/rabbitmq"
	"go.uber.org/zap"
)

// Transport owns the per-process broker connection shared by all publishers and consumers.
type Transport struct {
	logger *zap.Logger
	cfg    broker.Config
	rabbit *rabbitmq.Connection
}

// New validates cfg and prepares the shared connection. The returned closer must run after
// every publisher and consumer created from the transport is closed.
func New(logger *zap.Logger, cfg broker.Config) (*Transport, func(), error) {
	cfg = cfg.WithDefaults()
	t := &Transport{logger: logger, cfg: cfg}

	switch cfg.Driver {
	case pkg.BrokerDriverRabbitMQ:
		if cfg.RabbitMQURL == "" {
			return nil, nil, fmt.Errorf("rabbitmq driver requires a broker url")
		}
		t.rabbit = rabbitmq.NewConnection(cfg.RabbitMQURL, logger)
		return t, t.rabbit.Close, nil
	case pkg.BrokerDriverKafka:
		if cfg.KafkaBrokers == "" {
			return nil, nil, fmt.Errorf("kafka driver requires bootstrap brokers")
		}
		return t, func() {}, nil
	default:
		return nil, nil, fmt.Errorf("%w: %q", broker.ErrUnknownDriver, cfg.Driver)
	}
}

// Config returns the effective configuration with defaults applied.
func (t *Transport) Config() broker.Config {
	return t.cfg
}

// Publisher returns a publisher bound to queue (a topic under Kafka).
func (t *Transport) Publisher(ctx context.Context, queue string) (broker.Publisher, error) {
	if t.rabbit != nil {
		return rabbitmq.NewPublisher(rabbitmq.PublisherConfig{
			Logger:     t.logger,
			Connection: t.rabbit,
			Queue:      queue,
		}), nil
	}
	if err := t.ensureTopic(ctx, queue); err != nil {
		return nil, err
	}
	return kafkautils.NewPublisher(kafkautils.PublisherConfig{
		Logger:  t.logger,
		Brokers: t.cfg.KafkaBrokers,
		Topic:   queue,
	})
}

// Consumer returns a competing consumer on queue.
func (t *Transport) Consumer(ctx context.Context, queue string) (broker.Consumer, error) {
	if t.rabbit != nil {
		return rabbitmq.NewConsumer(rabbitmq.ConsumerConfig{
			Logger:      t.logger,
			Connection:  t.rabbit,
			Queue:       queue,
			MaxInFlight: t.cfg.MaxInFlight,
		}), nil
	}
	if err := t.ensureTopic(ctx, queue); err != nil {
		return nil, err
	}
	return kafkautils.NewConsumer(kafkautils.ConsumerConfig{
		Logger:      t.logger,
		Brokers:     t.cfg.KafkaBrokers,
		Group:       t.cfg.ConsumerGroup,
		Topic:       queue,
		MaxInFlight: t.cfg.MaxInFlight,
	})
}

func (t *Transport) ensureTopic(ctx context.Context, topic string) error {
	return kafkautils.InitKafkaTopics(ctx, t.logger, kafkautils.KafkaConfig{
		BootstrapServers: t.cfg.KafkaBrokers,
		Topics:           []kafkautils.TopicConfig{kafkautils.DefaultTopic(topic)},
	})
}
