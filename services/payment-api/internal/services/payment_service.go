package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nimeshabuddhika/resilient-order-saga/pkg"
	"github.com/nimeshabuddhika/resilient-order-saga/pkg/broker"
	"github.com/nimeshabuddhika/resilient-order-saga/pkg/views"
	"github.com/nimeshabuddhika/resilient-order-saga/services/payment-api/internal/observability"
	"go.uber.org/zap"
)

// Decider makes the payment decision for one request.
type Decider interface {
	Decide(ctx context.Context, req views.PaymentRequest) bool
}

// AmountCeilingDecider approves every payment at or below MaxApproved. Zero approves everything.
type AmountCeilingDecider struct {
	MaxApproved float64
}

func (d AmountCeilingDecider) Decide(_ context.Context, req views.PaymentRequest) bool {
	if d.MaxApproved <= 0 || req.Amount == nil {
		return true
	}
	return *req.Amount <= d.MaxApproved
}

type PaymentService interface {
	// Process decides the payment and publishes the transaction event. The decision is
	// returned even when the publish fails; the error is then a *pkg.StageError tagged
	// publish_transaction.
	Process(ctx context.Context, traceID string, req views.PaymentRequest) (bool, error)
}

type PaymentServiceConfig struct {
	Logger    *zap.Logger
	Decider   Decider
	Publisher broker.Publisher
	Queue     string
	// PublishTimeout bounds the wait for the channel to accept the event.
	PublishTimeout time.Duration
}

type PaymentServiceImpl struct {
	PaymentServiceConfig
	now func() time.Time
}

func NewPaymentService(cfg PaymentServiceConfig) PaymentService {
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 5 * time.Second
	}
	return &PaymentServiceImpl{PaymentServiceConfig: cfg, now: time.Now}
}

func (p *PaymentServiceImpl) Process(ctx context.Context, traceID string, req views.PaymentRequest) (bool, error) {
	approved := p.Decider.Decide(ctx, req)
	status := pkg.TransactionStatusOf(approved)
	observability.PaymentsDecided.WithLabelValues(string(status)).Inc()

	event := views.TransactionEvent{
		OrderID:    req.OrderID,
		CustomerID: req.CustomerID,
		ProductID:  req.ProductID,
		Status:     status,
		Timestamp:  p.now().UTC(),
	}
	if req.Amount != nil {
		event.Amount = *req.Amount
	}
	logger := p.Logger.With(
		zap.String(pkg.TraceId, traceID),
		zap.String(pkg.OrderId, req.OrderID),
		zap.String("payment_status", string(status)))

	body, err := json.Marshal(event)
	if err != nil {
		return approved, pkg.NewStageError(pkg.StagePublishTransaction, pkg.TransportFailure, req.OrderID,
			"Could not encode transaction event", err)
	}

	// publish outlives a caller that hung up: the decision is already made
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.PublishTimeout)
	defer cancel()
	start := time.Now()
	err = p.Publisher.Publish(pubCtx, req.OrderID, body)
	observability.PublishLatency.WithLabelValues(p.Queue).Observe(time.Since(start).Seconds())
	if err != nil {
		observability.TransactionPublishFailed.WithLabelValues(p.Queue).Inc()
		logger.Error("transaction_event_publish_failed", zap.String("queue", p.Queue), zap.Error(err))
		return approved, pkg.NewStageError(pkg.StagePublishTransaction, pkg.TransportFailure, req.OrderID,
			"Payment decided but transaction event was not published", err)
	}

	logger.Info("payment_decided", zap.String("queue", p.Queue))
	return approved, nil
}
