package kafkautils

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/nimeshabuddhika/resilient-order-saga/pkg/broker"
	"go.uber.org/zap"
)

type ConsumerConfig struct {
	Logger      *zap.Logger
	Brokers     string
	Group       string
	Topic       string
	MaxInFlight int
}

// ConsumerImpl reads one topic as part of a consumer group. Offsets are committed manually
// through a CommitManager once deliveries settle.
type ConsumerImpl struct {
	logger   *zap.Logger
	consumer *kafka.Consumer
	commits  *CommitManager
	topic    string
	group    string
	sem      chan struct{}
	wg       sync.WaitGroup
}

func NewConsumer(cfg ConsumerConfig) (broker.Consumer, error) {
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = 1
	}
	c, err := kafka.NewConsumer(&kafka.ConfigMap{
		"bootstrap.servers":  cfg.Brokers,
		"group.id":           cfg.Group,
		"auto.offset.reset":  "earliest",
		"enable.auto.commit": false,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka consumer: %w", err)
	}
	return &ConsumerImpl{
		logger:   cfg.Logger,
		consumer: c,
		commits:  NewCommitManager(c, cfg.Logger),
		topic:    cfg.Topic,
		group:    cfg.Group,
		sem:      make(chan struct{}, cfg.MaxInFlight),
	}, nil
}

func (k *ConsumerImpl) Start(ctx context.Context, handler broker.Handler) (func(), error) {
	rebalance := func(_ *kafka.Consumer, ev kafka.Event) error {
		if revoked, ok := ev.(kafka.RevokedPartitions); ok {
			k.commits.Forget(revoked.Partitions)
		}
		return nil
	}
	if err := k.consumer.SubscribeTopics([]string{k.topic}, rebalance); err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", k.topic, err)
	}
	k.logger.Info("kafka_consumer_started", zap.String("topic", k.topic), zap.String("group", k.group))

	loopCtx, cancel := context.WithCancel(ctx)
	workCtx := context.WithoutCancel(ctx)
	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		for loopCtx.Err() == nil {
			msg, err := k.consumer.ReadMessage(200 * time.Millisecond)
			if err != nil {
				var kerr kafka.Error
				if errors.As(err, &kerr) && kerr.Code() == kafka.ErrTimedOut {
					continue
				}
				k.logger.Error("kafka_read_failed", zap.Error(err))
				continue
			}
			k.commits.Track(msg)
			select {
			case k.sem <- struct{}{}:
			case <-loopCtx.Done():
				return
			}
			k.wg.Add(1)
			go func(m *kafka.Message) {
				defer func() {
					<-k.sem
					k.wg.Done()
				}()
				handler(workCtx, &delivery{msg: m, commits: k.commits})
			}(msg)
		}
	}()

	return func() {
		cancel()
		<-loopDone
		k.wg.Wait()
		if err := k.consumer.Close(); err != nil {
			k.logger.Error("kafka_consumer_close_failed", zap.Error(err))
			return
		}
		k.logger.Info("kafka_consumer_closed", zap.String("topic", k.topic))
	}, nil
}

// delivery settles a message exactly once. Kafka has no per-message negative ack, so Reject
// commits the offset as Ack does.
type delivery struct {
	msg     *kafka.Message
	commits *CommitManager
	settled atomic.Bool
}

func (d *delivery) Body() []byte {
	return d.msg.Value
}

func (d *delivery) Ack() error {
	return d.settle()
}

func (d *delivery) Reject() error {
	return d.settle()
}

func (d *delivery) settle() error {
	if !d.settled.CompareAndSwap(false, true) {
		return nil
	}
	return d.commits.Done(d.msg)
}
