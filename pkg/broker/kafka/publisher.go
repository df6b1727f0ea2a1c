package kafkautils

import (
	"context"
	"fmt"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/nimeshabuddhika/resilient-order-saga/pkg/broker"
	"go.uber.org/zap"
)

type PublisherConfig struct {
	Logger  *zap.Logger
	Brokers string
	Topic   string
}

// PublisherImpl produces to one topic and waits for each delivery report, so Publish only
// returns nil once the message is durably written.
type PublisherImpl struct {
	logger   *zap.Logger
	producer *kafka.Producer
	topic    string
}

func NewPublisher(cfg PublisherConfig) (broker.Publisher, error) {
	p, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers":  cfg.Brokers,
		"acks":               "all",  // wait for all in-sync replicas
		"enable.idempotence": "true", // no duplicates from producer retries
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}
	go drainEvents(cfg.Logger, p)
	cfg.Logger.Info("kafka_producer_created", zap.String("brokers", cfg.Brokers), zap.String("topic", cfg.Topic))
	return &PublisherImpl{logger: cfg.Logger, producer: p, topic: cfg.Topic}, nil
}

// Publish keys the message so all events for one order land on the same partition.
func (k *PublisherImpl) Publish(ctx context.Context, key string, body []byte) error {
	delivered := make(chan kafka.Event, 1)
	err := k.producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &k.topic, Partition: kafka.PartitionAny},
		Key:            []byte(key),
		Value:          body,
	}, delivered)
	if err != nil {
		return fmt.Errorf("produce to %s failed: %w", k.topic, err)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case e := <-delivered:
		m, ok := e.(*kafka.Message)
		if !ok {
			return fmt.Errorf("unexpected delivery event %v", e)
		}
		if m.TopicPartition.Error != nil {
			return fmt.Errorf("delivery to %s failed: %w", k.topic, m.TopicPartition.Error)
		}
		return nil
	}
}

func (k *PublisherImpl) Close() {
	k.producer.Flush(5000)
	k.producer.Close()
	k.logger.Info("kafka_producer_closed", zap.String("topic", k.topic))
}

// drainEvents logs client-level events; per-message reports go to their own channel.
func drainEvents(logger *zap.Logger, p *kafka.Producer) {
	for e := range p.Events() {
		if ev, ok := e.(kafka.Error); ok {
			logger.Warn("kafka_producer_error", zap.Error(ev))
		}
	}
}
