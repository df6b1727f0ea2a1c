package services

import (
	"context"

	"github.com/nimeshabuddhika/resilient-order-saga/pkg"
	"github.com/nimeshabuddhika/resilient-order-saga/pkg/models"
	"github.com/nimeshabuddhika/resilient-order-saga/pkg/utils"
	"go.uber.org/zap"
)

// FollowUp runs after the order's payment status is durable. Failures are reported to the
// caller but never undo the committed status.
type FollowUp interface {
	OnPaid(ctx context.Context, order models.Order) error
	OnPaymentDeclined(ctx context.Context, order models.Order) error
}

// LoggingFollowUp records the follow-up; notification and inventory hooks plug in here.
type LoggingFollowUp struct {
	logger *zap.Logger
}

func NewLoggingFollowUp(logger *zap.Logger) FollowUp {
	return &LoggingFollowUp{logger: logger}
}

func (f *LoggingFollowUp) OnPaid(ctx context.Context, order models.Order) error {
	f.logger.Info("post_payment_follow_up_done",
		zap.String(pkg.TraceId, utils.TraceIDFromContext(ctx)),
		zap.String(pkg.OrderId, order.ID.String()),
		zap.String("customer_id", order.CustomerID))
	return nil
}

func (f *LoggingFollowUp) OnPaymentDeclined(ctx context.Context, order models.Order) error {
	f.logger.Info("payment_declined_follow_up_done",
		zap.String(pkg.TraceId, utils.TraceIDFromContext(ctx)),
		zap.String(pkg.OrderId, order.ID.String()),
		zap.String("customer_id", order.CustomerID))
	return nil
}
