// Package kafkautils implements the transaction channel on Kafka: a topic per queue, consumer
// groups as competing consumers, and ordered offset commits.
package kafkautils

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"go.uber.org/zap"
)

type KafkaConfig struct {
	BootstrapServers string
	Topics           []TopicConfig
}

type TopicConfig struct {
	Topic             string
	NumPartitions     int
	ReplicationFactor int
	Config            map[string]string
}

// DefaultTopic is a single-replica topic whose messages outlive a broker restart once flushed.
func DefaultTopic(name string) TopicConfig {
	return TopicConfig{
		Topic:             name,
		NumPartitions:     3,
		ReplicationFactor: 1,
		Config:            map[string]string{"cleanup.policy": "delete", "min.insync.replicas": "1"},
	}
}

func (t TopicConfig) specification() kafka.TopicSpecification {
	return kafka.TopicSpecification{
		Topic:             t.Topic,
		NumPartitions:     t.NumPartitions,
		ReplicationFactor: t.ReplicationFactor,
		Config:            t.Config,
	}
}

// topicReady reports whether a create result leaves the topic usable.
func topicReady(res kafka.TopicResult) bool {
	code := res.Error.Code()
	return code == kafka.ErrNoError || code == kafka.ErrTopicAlreadyExists
}

// InitKafkaTopics makes sure every topic in cnf exists. Brokers that are still starting are
// retried for up to two minutes or until ctx is done.
func InitKafkaTopics(ctx context.Context, logger *zap.Logger, cnf KafkaConfig) error {
	admin, err := kafka.NewAdminClient(&kafka.ConfigMap{"bootstrap.servers": cnf.BootstrapServers})
	if err != nil {
		return fmt.Errorf("failed to create admin client: %w", err)
	}
	defer admin.Close()

	specs := make([]kafka.TopicSpecification, 0, len(cnf.Topics))
	for _, topic := range cnf.Topics {
		specs = append(specs, topic.specification())
	}

	attempt := 0
	ensure := func() error {
		attempt++
		results, err := admin.CreateTopics(ctx, specs, kafka.SetAdminOperationTimeout(30*time.Second))
		if err != nil {
			logger.Warn("kafka_topic_create_retry", zap.Int("attempt", attempt), zap.Error(err))
			return err
		}
		for _, res := range results {
			if !topicReady(res) {
				return fmt.Errorf("topic %s: %v", res.Topic, res.Error)
			}
			logger.Info("kafka_topic_ready", zap.String("topic", res.Topic))
		}
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 2 * time.Minute
	return backoff.Retry(ensure, backoff.WithContext(b, ctx))
}
