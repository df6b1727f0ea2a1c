package kafkautils

import (
	"errors"
	"testing"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeCommitter struct {
	commits []kafka.TopicPartition
	err     error
}

func (f *fakeCommitter) CommitOffsets(offsets []kafka.TopicPartition) ([]kafka.TopicPartition, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.commits = append(f.commits, offsets...)
	return offsets, nil
}

func (f *fakeCommitter) lastOffset() kafka.Offset {
	return f.commits[len(f.commits)-1].Offset
}

func msgAt(topic string, partition int32, offset int64) *kafka.Message {
	return &kafka.Message{TopicPartition: kafka.TopicPartition{Topic: &topic, Partition: partition, Offset: kafka.Offset(offset)}}
}

func TestCommitManager_CommitsFirstOffset(t *testing.T) {
	fc := &fakeCommitter{}
	m := NewCommitManager(fc, zap.NewNop())

	msg := msgAt("payment_transactions", 0, 0)
	m.Track(msg)
	require.NoError(t, m.Done(msg))

	require.Len(t, fc.commits, 1)
	assert.Equal(t, kafka.Offset(1), fc.lastOffset())
}

func TestCommitManager_WaitsForEarlierOffsets(t *testing.T) {
	fc := &fakeCommitter{}
	m := NewCommitManager(fc, zap.NewNop())

	m0, m1, m2 := msgAt("t", 0, 10), msgAt("t", 0, 11), msgAt("t", 0, 12)
	m.Track(m0)
	m.Track(m1)
	m.Track(m2)

	require.NoError(t, m.Done(m2))
	require.NoError(t, m.Done(m1))
	assert.Empty(t, fc.commits)

	require.NoError(t, m.Done(m0))
	require.Len(t, fc.commits, 1)
	assert.Equal(t, kafka.Offset(13), fc.lastOffset())
}

func TestCommitManager_HandlesOffsetGaps(t *testing.T) {
	fc := &fakeCommitter{}
	m := NewCommitManager(fc, zap.NewNop())

	m0, m1 := msgAt("t", 0, 4), msgAt("t", 0, 9)
	m.Track(m0)
	m.Track(m1)
	require.NoError(t, m.Done(m0))
	require.NoError(t, m.Done(m1))

	require.Len(t, fc.commits, 2)
	assert.Equal(t, kafka.Offset(10), fc.lastOffset())
}

func TestCommitManager_PartitionsAreIndependent(t *testing.T) {
	fc := &fakeCommitter{}
	m := NewCommitManager(fc, zap.NewNop())

	p0, p1 := msgAt("t", 0, 0), msgAt("t", 1, 0)
	m.Track(p0)
	m.Track(p1)
	require.NoError(t, m.Done(p1))

	require.Len(t, fc.commits, 1)
	assert.Equal(t, int32(1), fc.commits[0].Partition)
}

func TestCommitManager_RetriesAfterFailedCommit(t *testing.T) {
	fc := &fakeCommitter{err: errors.New("broker down")}
	m := NewCommitManager(fc, zap.NewNop())

	m0, m1 := msgAt("t", 0, 0), msgAt("t", 0, 1)
	m.Track(m0)
	m.Track(m1)
	assert.Error(t, m.Done(m0))

	fc.err = nil
	require.NoError(t, m.Done(m1))
	require.Len(t, fc.commits, 1)
	assert.Equal(t, kafka.Offset(2), fc.lastOffset())
}

func TestCommitManager_ForgetDropsRevokedPartition(t *testing.T) {
	fc := &fakeCommitter{}
	m := NewCommitManager(fc, zap.NewNop())

	topic := "t"
	m0, m1 := msgAt(topic, 0, 0), msgAt(topic, 0, 1)
	m.Track(m0)
	m.Track(m1)
	m.Forget([]kafka.TopicPartition{{Topic: &topic, Partition: 0}})

	require.NoError(t, m.Done(m1))
	assert.Empty(t, fc.commits)
}

func TestDelivery_SettlesOnce(t *testing.T) {
	fc := &fakeCommitter{}
	m := NewCommitManager(fc, zap.NewNop())
	msg := msgAt("t", 0, 0)
	m.Track(msg)

	d := &delivery{msg: msg, commits: m}
	require.NoError(t, d.Ack())
	require.NoError(t, d.Reject())
	assert.Len(t, fc.commits, 1)
}
