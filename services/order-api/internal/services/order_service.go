package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/nimeshabuddhika/resilient-order-saga/pkg"
	"github.com/nimeshabuddhika/resilient-order-saga/pkg/models"
	"github.com/nimeshabuddhika/resilient-order-saga/pkg/views"
	"github.com/nimeshabuddhika/resilient-order-saga/services/order-api/internal/observability"
	"go.uber.org/zap"
)

// OrderService runs the order placement saga and serves order lookups.
type OrderService interface {
	// PlaceOrder returns a *pkg.StageError for every failure.
	PlaceOrder(ctx context.Context, traceID string, req views.OrderRequest) (views.OrderPlacedResponse, error)
	GetOrder(ctx context.Context, traceID string, orderID string) (views.OrderView, error)
	GetTransaction(ctx context.Context, traceID string, orderID string) (views.TransactionView, error)
}

// OrderServiceConfig holds the saga's collaborators.
type OrderServiceConfig struct {
	Logger       *zap.Logger
	Orders       OrderStore
	Transactions TransactionReader
	Customers    EntityValidator
	Products     EntityValidator
	Payments     PaymentClient
	FollowUp     FollowUp
	// CallTimeout bounds each downstream call and store write.
	CallTimeout time.Duration
}

type OrderServiceImpl struct {
	OrderServiceConfig
}

func NewOrderService(cfg OrderServiceConfig) OrderService {
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 5 * time.Second
	}
	return &OrderServiceImpl{OrderServiceConfig: cfg}
}

type sagaState string

const (
	stateReceived         sagaState = "received"
	stateValidated        sagaState = "validated"
	stateOrderCreated     sagaState = "order_created"
	statePaymentDecided   sagaState = "payment_decided"
	statePaymentFailed    sagaState = "payment_initiation_failed"
	stateStatusRecorded   sagaState = "status_recorded"
	stateCompleted        sagaState = "completed"
	stateCompletedWarning sagaState = "completed_with_warning"
	stateAborted          sagaState = "aborted"
)

// saga tracks one PlaceOrder run and logs each state change.
type saga struct {
	logger  *zap.Logger
	traceID string
	orderID string
	state   sagaState
	started time.Time
}

func (s *saga) transition(to sagaState, fields ...zap.Field) {
	fields = append(fields,
		zap.String(pkg.TraceId, s.traceID),
		zap.String("from", string(s.state)),
		zap.String("to", string(to)))
	if s.orderID != "" {
		fields = append(fields, zap.String(pkg.OrderId, s.orderID))
	}
	s.logger.Info("saga_state_transition", fields...)
	s.state = to
	observability.SagaTransitions.WithLabelValues(string(to)).Inc()
}

// fail moves the saga to its terminal failure state and returns err for the caller.
func (s *saga) fail(err *pkg.StageError) error {
	to := stateAborted
	if err.Kind == pkg.FollowUpFailure {
		to = stateCompletedWarning
	}
	s.transition(to,
		zap.String(pkg.Stage, string(err.Stage)),
		zap.String("kind", string(err.Kind)),
		zap.Error(err.Cause))
	observability.SagaOutcomes.WithLabelValues(string(err.Stage), string(err.Kind)).Inc()
	observability.SagaDuration.Observe(time.Since(s.started).Seconds())
	return err
}

func (o *OrderServiceImpl) PlaceOrder(ctx context.Context, traceID string, req views.OrderRequest) (views.OrderPlacedResponse, error) {
	run := &saga{logger: o.Logger, traceID: traceID, state: stateReceived, started: time.Now()}
	o.Logger.Info("saga_started",
		zap.String(pkg.TraceId, traceID),
		zap.String("customer_id", req.CustomerID),
		zap.String("product_id", req.ProductID))

	// Nothing is written until both entities are known to exist.
	if err := o.validate(ctx, o.Customers, req.CustomerID, "Customer"); err != nil {
		return views.OrderPlacedResponse{}, run.fail(err)
	}
	if err := o.validate(ctx, o.Products, req.ProductID, "Product"); err != nil {
		return views.OrderPlacedResponse{}, run.fail(err)
	}
	run.transition(stateValidated)

	amount := 0.0
	if req.Amount != nil {
		amount = *req.Amount
	}
	order := models.NewPendingOrder(req.CustomerID, req.ProductID, amount)

	// From here on the order exists, so status writes must land even if the caller goes away.
	durable := context.WithoutCancel(ctx)

	createCtx, cancel := context.WithTimeout(durable, o.CallTimeout)
	err := o.Orders.Create(createCtx, order)
	cancel()
	if err != nil {
		return views.OrderPlacedResponse{}, run.fail(pkg.NewStageError(pkg.StageCreateOrder, pkg.PersistenceFailure, "",
			"Error creating order", err))
	}
	run.orderID = order.ID.String()
	run.transition(stateOrderCreated)

	payCtx, cancel := context.WithTimeout(ctx, o.CallTimeout)
	decision, err := o.Payments.Initiate(payCtx, views.PaymentRequest{
		CustomerID: order.CustomerID,
		OrderID:    run.orderID,
		ProductID:  order.ProductID,
		Amount:     &order.Amount,
	})
	cancel()
	if err != nil {
		run.transition(statePaymentFailed, zap.Error(err))
		o.markPaymentFailed(durable, run, order)
		return views.OrderPlacedResponse{}, run.fail(pkg.NewStageError(pkg.StageInitiatePayment, pkg.TransportFailure, run.orderID,
			"Payment service error: "+err.Error(), err))
	}

	next := pkg.OrderStatusFailed
	if decision.Approved {
		next = pkg.OrderStatusPaid
	}
	run.transition(statePaymentDecided, zap.Bool("approved", decision.Approved))

	updateCtx, cancel := context.WithTimeout(durable, o.CallTimeout)
	err = o.Orders.UpdateStatus(updateCtx, order.ID, pkg.OrderStatusPending, next)
	cancel()
	if err != nil {
		return views.OrderPlacedResponse{}, run.fail(pkg.NewStageError(pkg.StagePayment, pkg.PersistenceFailure, run.orderID,
			"Could not update order status after payment", err))
	}
	order.Status = next
	run.transition(stateStatusRecorded, zap.String("order_status", string(next)))

	followCtx, cancel := context.WithTimeout(ctx, o.CallTimeout)
	if decision.Approved {
		err = o.FollowUp.OnPaid(followCtx, order)
	} else {
		err = o.FollowUp.OnPaymentDeclined(followCtx, order)
	}
	cancel()
	if err != nil {
		return views.OrderPlacedResponse{}, run.fail(pkg.NewStageError(pkg.StagePostPayment, pkg.FollowUpFailure, run.orderID,
			"Follow-up tasks failed", err))
	}

	run.transition(stateCompleted)
	observability.SagaOutcomes.WithLabelValues("completed", "success").Inc()
	observability.SagaDuration.Observe(time.Since(run.started).Seconds())
	return views.OrderPlacedResponse{
		Status:      pkg.ResponseStatusSuccess,
		OrderID:     run.orderID,
		CustomerID:  order.CustomerID,
		ProductID:   order.ProductID,
		OrderStatus: order.Status,
	}, nil
}

func (o *OrderServiceImpl) validate(ctx context.Context, v EntityValidator, id, entity string) *pkg.StageError {
	callCtx, cancel := context.WithTimeout(ctx, o.CallTimeout)
	defer cancel()
	err := v.Exists(callCtx, id)
	if err == nil {
		return nil
	}
	msg := entity + " validation failed"
	if errors.Is(err, pkg.ErrEntityNotFound) {
		msg = entity + " not found"
	}
	return pkg.NewStageError(pkg.StageValidation, pkg.ValidationFailure, "", msg, err)
}

// markPaymentFailed is best effort; the caller already reports the payment failure.
func (o *OrderServiceImpl) markPaymentFailed(ctx context.Context, run *saga, order models.Order) {
	updateCtx, cancel := context.WithTimeout(ctx, o.CallTimeout)
	defer cancel()
	if err := o.Orders.UpdateStatus(updateCtx, order.ID, pkg.OrderStatusPending, pkg.OrderStatusPaymentFailed); err != nil {
		o.Logger.Error("order_payment_failed_status_not_saved",
			zap.String(pkg.TraceId, run.traceID),
			zap.String(pkg.OrderId, run.orderID),
			zap.Error(err))
	}
}

func (o *OrderServiceImpl) GetOrder(ctx context.Context, traceID string, orderID string) (views.OrderView, error) {
	id, err := uuid.Parse(orderID)
	if err != nil {
		return views.OrderView{}, pkg.NewAppError(pkg.ErrInvalidInputCode, "invalid order id", err)
	}
	ctx, cancel := context.WithTimeout(ctx, o.CallTimeout)
	defer cancel()
	order, err := o.Orders.Get(ctx, id)
	if err != nil {
		return views.OrderView{}, pkg.HandleSQLError(traceID, o.Logger, err)
	}
	return order.ToView(), nil
}

func (o *OrderServiceImpl) GetTransaction(ctx context.Context, traceID string, orderID string) (views.TransactionView, error) {
	ctx, cancel := context.WithTimeout(ctx, o.CallTimeout)
	defer cancel()
	txn, err := o.Transactions.GetByOrderID(ctx, orderID)
	if err != nil {
		return views.TransactionView{}, pkg.HandleSQLError(traceID, o.Logger, err)
	}
	return txn.ToView(), nil
}
