package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nimeshabuddhika/resilient-order-saga/pkg"
	"github.com/nimeshabuddhika/resilient-order-saga/pkg/views"
	"github.com/nimeshabuddhika/resilient-order-saga/services/payment-api/internal/observability"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingPublisher struct {
	mu       sync.Mutex
	keys     []string
	bodies   [][]byte
	err      error
	deadline bool
}

func (p *recordingPublisher) Publish(ctx context.Context, key string, body []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, p.deadline = ctx.Deadline()
	if p.err != nil {
		return p.err
	}
	p.keys = append(p.keys, key)
	p.bodies = append(p.bodies, body)
	return nil
}

func (p *recordingPublisher) Close() {}

func paymentRequest(amount float64) views.PaymentRequest {
	return views.PaymentRequest{CustomerID: "c1", OrderID: "o1", ProductID: "p1", Amount: &amount}
}

func newTestService(pub *recordingPublisher, maxApproved float64, queue string) *PaymentServiceImpl {
	svc := NewPaymentService(PaymentServiceConfig{
		Logger:    zap.NewNop(),
		Decider:   AmountCeilingDecider{MaxApproved: maxApproved},
		Publisher: pub,
		Queue:     queue,
	}).(*PaymentServiceImpl)
	svc.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.FixedZone("X", 3600)) }
	return svc
}

func TestAmountCeilingDecider(t *testing.T) {
	ctx := context.Background()
	assert.True(t, AmountCeilingDecider{}.Decide(ctx, paymentRequest(1e9)))
	assert.True(t, AmountCeilingDecider{MaxApproved: 100}.Decide(ctx, paymentRequest(100)))
	assert.False(t, AmountCeilingDecider{MaxApproved: 100}.Decide(ctx, paymentRequest(100.01)))
}

func TestProcess_PublishesEvent(t *testing.T) {
	pub := &recordingPublisher{}
	svc := newTestService(pub, 0, "q_publish_ok")

	approved, err := svc.Process(context.Background(), "trace-1", paymentRequest(42))
	require.NoError(t, err)
	assert.True(t, approved)

	require.Len(t, pub.bodies, 1)
	assert.Equal(t, "o1", pub.keys[0])
	assert.True(t, pub.deadline)

	var event views.TransactionEvent
	require.NoError(t, json.Unmarshal(pub.bodies[0], &event))
	assert.Equal(t, "o1", event.OrderID)
	assert.Equal(t, "c1", event.CustomerID)
	assert.Equal(t, "p1", event.ProductID)
	assert.Equal(t, 42.0, event.Amount)
	assert.Equal(t, pkg.TransactionStatusSuccess, event.Status)
	assert.Equal(t, time.UTC, event.Timestamp.Location())
	assert.True(t, event.Timestamp.Equal(time.Date(2026, 1, 2, 2, 4, 5, 0, time.UTC)))
}

func TestProcess_DeclinedIsPublishedAsFailed(t *testing.T) {
	pub := &recordingPublisher{}
	svc := newTestService(pub, 10, "q_declined")

	approved, err := svc.Process(context.Background(), "trace-1", paymentRequest(11))
	require.NoError(t, err)
	assert.False(t, approved)

	var event views.TransactionEvent
	require.NoError(t, json.Unmarshal(pub.bodies[0], &event))
	assert.Equal(t, pkg.TransactionStatusFailed, event.Status)
}

func TestProcess_PublishFailureKeepsDecision(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("channel closed")}
	svc := newTestService(pub, 0, "q_publish_failed")

	approved, err := svc.Process(context.Background(), "trace-1", paymentRequest(1))
	assert.True(t, approved)

	var stageErr *pkg.StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, pkg.StagePublishTransaction, stageErr.Stage)
	assert.Equal(t, "o1", stageErr.OrderID)
	assert.Equal(t, 1.0, testutil.ToFloat64(observability.TransactionPublishFailed.WithLabelValues("q_publish_failed")))
}

func TestProcess_PublishSurvivesCallerCancellation(t *testing.T) {
	pub := &recordingPublisher{}
	svc := newTestService(pub, 0, "q_cancelled")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := svc.Process(ctx, "trace-1", paymentRequest(1))
	require.NoError(t, err)
	assert.Len(t, pub.bodies, 1)
}
