// Package transactions holds the Transaction Consumer logic shared by the embedded consumer
// in order-api and the standalone transaction-worker.
package transactions

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/nimeshabuddhika/resilient-order-saga/pkg"
	"github.com/nimeshabuddhika/resilient-order-saga/pkg/broker"
	"github.com/nimeshabuddhika/resilient-order-saga/pkg/models"
	"github.com/nimeshabuddhika/resilient-order-saga/pkg/observability"
	"github.com/nimeshabuddhika/resilient-order-saga/pkg/views"
	"go.uber.org/zap"
)

var errNoDeadLetterSink = errors.New("no dead-letter sink configured")

// HandlerConfig holds the dependencies of the consumer.
type HandlerConfig struct {
	Logger *zap.Logger
	Store  Store
	// DeadLetter receives events that cannot be persisted. Optional; without it such events
	// are counted as lost.
	DeadLetter broker.Publisher
	// Queue labels metrics and logs.
	Queue string
	// Timeout bounds the store write of one message and, separately, its dead-letter publish.
	Timeout time.Duration
}

// Handler applies the per-message protocol: decode, validate, upsert, settle.
// Every path ends in exactly one Ack or Reject.
type Handler struct {
	HandlerConfig
	validate *validator.Validate
	now      func() time.Time
}

func NewHandler(cfg HandlerConfig) *Handler {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Handler{
		HandlerConfig: cfg,
		validate:      validator.New(),
		now:           time.Now,
	}
}

// Handle is a broker.Handler.
func (h *Handler) Handle(ctx context.Context, d broker.Delivery) {
	start := time.Now()
	observability.MessagesReceived.WithLabelValues(h.Queue).Inc()
	observability.InflightMessages.Inc()
	defer func() {
		observability.InflightMessages.Dec()
		observability.ProcessLatency.WithLabelValues(h.Queue).Observe(time.Since(start).Seconds())
	}()

	ctx, cancel := context.WithTimeout(ctx, h.Timeout)
	defer cancel()

	var event views.TransactionEvent
	if err := json.Unmarshal(d.Body(), &event); err != nil {
		h.Logger.Warn("transaction_event_malformed", zap.String("queue", h.Queue), zap.Error(err))
		h.deadLetter(ctx, views.DeadLetter{Raw: string(d.Body())}, observability.OutcomeMalformed, err)
		h.settle(d.Ack, observability.OutcomeMalformed, "")
		return
	}

	if err := h.validate.Struct(&event); err != nil {
		h.Logger.Warn("transaction_event_invalid",
			zap.String("queue", h.Queue),
			zap.String(pkg.OrderId, event.OrderID),
			zap.Error(err))
		h.deadLetter(ctx, views.DeadLetter{Event: &event}, observability.OutcomeInvalid, err)
		h.settle(d.Ack, observability.OutcomeInvalid, event.OrderID)
		return
	}

	inserted, err := h.Store.Record(ctx, models.TransactionFromEvent(event))
	if err != nil {
		h.Logger.Error("transaction_persist_failed",
			zap.String("queue", h.Queue),
			zap.String(pkg.OrderId, event.OrderID),
			zap.Error(err))
		h.deadLetter(ctx, views.DeadLetter{Event: &event}, observability.OutcomePersistFailed, err)
		h.settle(d.Reject, observability.OutcomePersistFailed, event.OrderID)
		return
	}

	if !inserted {
		h.Logger.Info("transaction_duplicate_ignored",
			zap.String("queue", h.Queue),
			zap.String(pkg.OrderId, event.OrderID))
		h.settle(d.Ack, observability.OutcomeDuplicate, event.OrderID)
		return
	}

	h.Logger.Info("transaction_persisted",
		zap.String("queue", h.Queue),
		zap.String(pkg.OrderId, event.OrderID),
		zap.String("status", string(event.Status)))
	h.settle(d.Ack, observability.OutcomePersisted, event.OrderID)
}

func (h *Handler) settle(fn func() error, outcome, orderID string) {
	observability.MessagesHandled.WithLabelValues(h.Queue, outcome).Inc()
	if err := fn(); err != nil {
		h.Logger.Error("transaction_event_settle_failed",
			zap.String("queue", h.Queue),
			zap.String(pkg.OrderId, orderID),
			zap.String("outcome", outcome),
			zap.Error(err))
	}
}

// deadLetter publishes the failed event with its reason. A message that cannot be
// dead-lettered is counted as lost.
func (h *Handler) deadLetter(ctx context.Context, dl views.DeadLetter, reason string, cause error) {
	dl.FailureReason = reason
	dl.Error = cause.Error()
	dl.FailedAt = h.now().UTC().Format(time.RFC3339Nano)

	key := ""
	if dl.Event != nil {
		key = dl.Event.OrderID
	}

	err := errNoDeadLetterSink
	if h.DeadLetter != nil {
		var body []byte
		body, err = json.Marshal(dl)
		if err == nil {
			// the store write may have used up ctx; the publish gets a fresh bound
			pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), h.Timeout)
			err = h.DeadLetter.Publish(pubCtx, key, body)
			cancel()
		}
	}
	if err != nil {
		observability.MessagesLost.WithLabelValues(h.Queue, reason).Inc()
		h.Logger.Error("transaction_event_lost",
			zap.String("queue", h.Queue),
			zap.String(pkg.OrderId, key),
			zap.String("reason", reason),
			zap.Error(err))
		return
	}
	observability.DLQPublished.WithLabelValues(h.Queue, reason).Inc()
	h.Logger.Info("transaction_event_dead_lettered",
		zap.String("queue", h.Queue),
		zap.String(pkg.OrderId, key),
		zap.String("reason", reason))
}
