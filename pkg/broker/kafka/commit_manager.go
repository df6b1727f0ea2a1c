package kafkautils

import (
	"sync"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"go.uber.org/zap"
)

type tp struct {
	topic     string
	partition int32
}

// committer is the subset of *kafka.Consumer the CommitManager needs.
type committer interface {
	CommitOffsets(offsets []kafka.TopicPartition) ([]kafka.TopicPartition, error)
}

// CommitManager commits offsets for out-of-order completions. Offsets are tracked in read
// order per partition; only the prefix whose messages are all settled is committed, so a
// crash never skips a message that was still in flight.
type CommitManager struct {
	mu       sync.Mutex
	inflight map[tp][]int64            // read but not yet committed, in read order
	done     map[tp]map[int64]struct{} // settled offsets waiting on an earlier one
	consumer committer
	log      *zap.Logger
}

func NewCommitManager(c committer, l *zap.Logger) *CommitManager {
	return &CommitManager{
		inflight: make(map[tp][]int64),
		done:     make(map[tp]map[int64]struct{}),
		consumer: c,
		log:      l,
	}
}

func keyOf(msg *kafka.Message) tp {
	topic := ""
	if msg.TopicPartition.Topic != nil {
		topic = *msg.TopicPartition.Topic
	}
	return tp{topic: topic, partition: msg.TopicPartition.Partition}
}

// Track records a message as read. It must be called in the order messages are read.
func (m *CommitManager) Track(msg *kafka.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := keyOf(msg)
	m.inflight[key] = append(m.inflight[key], int64(msg.TopicPartition.Offset))
}

// Done marks a tracked message settled and commits the longest settled prefix of its
// partition. A failed commit leaves the prefix in place for the next call to retry.
func (m *CommitManager) Done(msg *kafka.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := keyOf(msg)
	off := int64(msg.TopicPartition.Offset)
	if m.done[key] == nil {
		m.done[key] = map[int64]struct{}{}
	}
	m.done[key][off] = struct{}{}

	queue := m.inflight[key]
	n := 0
	for n < len(queue) {
		if _, ok := m.done[key][queue[n]]; !ok {
			break
		}
		n++
	}
	if n == 0 {
		return nil
	}

	last := queue[n-1]
	toCommit := kafka.TopicPartition{Topic: &key.topic, Partition: key.partition, Offset: kafka.Offset(last + 1)}
	if _, err := m.consumer.CommitOffsets([]kafka.TopicPartition{toCommit}); err != nil {
		m.log.Error("offset_commit_failed",
			zap.String("topic", key.topic),
			zap.Int32("partition", key.partition),
			zap.Int64("attempted_offset", last+1),
			zap.Error(err))
		return err
	}

	for _, o := range queue[:n] {
		delete(m.done[key], o)
	}
	m.inflight[key] = queue[n:]
	m.log.Debug("offset_committed",
		zap.String("topic", key.topic),
		zap.Int32("partition", key.partition),
		zap.Int64("offset", last+1))
	return nil
}

// Forget drops state for partitions this consumer no longer owns.
func (m *CommitManager) Forget(partitions []kafka.TopicPartition) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range partitions {
		topic := ""
		if p.Topic != nil {
			topic = *p.Topic
		}
		key := tp{topic: topic, partition: p.Partition}
		delete(m.inflight, key)
		delete(m.done, key)
	}
}
