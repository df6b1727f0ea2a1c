package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/nimeshabuddhika/resilient-order-saga/pkg"
	"github.com/nimeshabuddhika/resilient-order-saga/pkg/models"
	"github.com/nimeshabuddhika/resilient-order-saga/pkg/views"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// memoryOrders mirrors the SQL status guard of the real repository.
type memoryOrders struct {
	mu        sync.Mutex
	orders    map[uuid.UUID]models.Order
	createErr error
	updateErr map[pkg.OrderStatus]error
}

func newMemoryOrders() *memoryOrders {
	return &memoryOrders{orders: map[uuid.UUID]models.Order{}, updateErr: map[pkg.OrderStatus]error{}}
}

func (m *memoryOrders) Create(_ context.Context, order models.Order) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[order.ID] = order
	return nil
}

func (m *memoryOrders) UpdateStatus(_ context.Context, id uuid.UUID, from, to pkg.OrderStatus) error {
	if err := m.updateErr[to]; err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.orders[id]
	if !ok || order.Status != from {
		return pkg.ErrStatusTransition
	}
	order.Status = to
	m.orders[id] = order
	return nil
}

func (m *memoryOrders) Get(_ context.Context, id uuid.UUID) (models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.orders[id]
	if !ok {
		return models.Order{}, pgx.ErrNoRows
	}
	return order, nil
}

func (m *memoryOrders) only(t *testing.T) models.Order {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.Len(t, m.orders, 1)
	for _, o := range m.orders {
		return o
	}
	return models.Order{}
}

type stubValidator struct {
	err   error
	delay time.Duration
	calls int
}

func (s *stubValidator) Exists(ctx context.Context, _ string) error {
	s.calls++
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return s.err
}

type stubPayments struct {
	decision PaymentDecision
	err      error
	delay    time.Duration
	got      views.PaymentRequest
}

func (s *stubPayments) Initiate(ctx context.Context, req views.PaymentRequest) (PaymentDecision, error) {
	s.got = req
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return PaymentDecision{}, fmt.Errorf("payment call: %w", ctx.Err())
		}
	}
	return s.decision, s.err
}

type stubFollowUp struct {
	paid, declined int
	err            error
}

func (s *stubFollowUp) OnPaid(context.Context, models.Order) error {
	s.paid++
	return s.err
}

func (s *stubFollowUp) OnPaymentDeclined(context.Context, models.Order) error {
	s.declined++
	return s.err
}

type stubTransactions struct {
	txn models.Transaction
	err error
}

func (s stubTransactions) GetByOrderID(context.Context, string) (models.Transaction, error) {
	return s.txn, s.err
}

type fixture struct {
	orders    *memoryOrders
	customers *stubValidator
	products  *stubValidator
	payments  *stubPayments
	followUp  *stubFollowUp
	svc       OrderService
}

func newFixture() *fixture {
	f := &fixture{
		orders:    newMemoryOrders(),
		customers: &stubValidator{},
		products:  &stubValidator{},
		payments:  &stubPayments{decision: PaymentDecision{Approved: true}},
		followUp:  &stubFollowUp{},
	}
	f.svc = NewOrderService(OrderServiceConfig{
		Logger:       zap.NewNop(),
		Orders:       f.orders,
		Transactions: stubTransactions{err: pgx.ErrNoRows},
		Customers:    f.customers,
		Products:     f.products,
		Payments:     f.payments,
		FollowUp:     f.followUp,
		CallTimeout:  200 * time.Millisecond,
	})
	return f
}

func orderRequest() views.OrderRequest {
	amount := 999.0
	return views.OrderRequest{CustomerID: "c1", ProductID: "p1", Amount: &amount}
}

func stageErr(t *testing.T, err error) *pkg.StageError {
	t.Helper()
	var se *pkg.StageError
	require.ErrorAs(t, err, &se)
	return se
}

func TestPlaceOrder_PaymentApproved(t *testing.T) {
	f := newFixture()

	resp, err := f.svc.PlaceOrder(context.Background(), "trace-1", orderRequest())
	require.NoError(t, err)

	assert.Equal(t, pkg.ResponseStatusSuccess, resp.Status)
	assert.Equal(t, pkg.OrderStatusPaid, resp.OrderStatus)
	assert.Equal(t, "c1", resp.CustomerID)
	assert.Equal(t, "p1", resp.ProductID)

	stored := f.orders.only(t)
	assert.Equal(t, resp.OrderID, stored.ID.String())
	assert.Equal(t, pkg.OrderStatusPaid, stored.Status)
	assert.Equal(t, 999.0, stored.Amount)

	assert.Equal(t, resp.OrderID, f.payments.got.OrderID)
	require.NotNil(t, f.payments.got.Amount)
	assert.Equal(t, 999.0, *f.payments.got.Amount)
	assert.Equal(t, 1, f.followUp.paid)
	assert.Equal(t, 0, f.followUp.declined)
}

func TestPlaceOrder_PaymentDeclinedIsNotAnError(t *testing.T) {
	f := newFixture()
	f.payments.decision = PaymentDecision{Approved: false}

	resp, err := f.svc.PlaceOrder(context.Background(), "trace-1", orderRequest())
	require.NoError(t, err)

	assert.Equal(t, pkg.OrderStatusFailed, resp.OrderStatus)
	assert.Equal(t, pkg.OrderStatusFailed, f.orders.only(t).Status)
	assert.Equal(t, 1, f.followUp.declined)
}

func TestPlaceOrder_CustomerNotFoundCreatesNothing(t *testing.T) {
	f := newFixture()
	f.customers.err = fmt.Errorf("customers c1: %w", pkg.ErrEntityNotFound)

	_, err := f.svc.PlaceOrder(context.Background(), "trace-1", orderRequest())

	se := stageErr(t, err)
	assert.Equal(t, pkg.StageValidation, se.Stage)
	assert.Equal(t, pkg.ValidationFailure, se.Kind)
	assert.Equal(t, "Customer not found", se.Message)
	assert.Empty(t, se.OrderID)
	assert.Equal(t, 400, se.HTTPStatus())
	assert.Empty(t, f.orders.orders)
	assert.Equal(t, 0, f.products.calls)
}

func TestPlaceOrder_ProductLookupFailureCreatesNothing(t *testing.T) {
	f := newFixture()
	f.products.err = errors.New("connection refused")

	_, err := f.svc.PlaceOrder(context.Background(), "trace-1", orderRequest())

	se := stageErr(t, err)
	assert.Equal(t, pkg.StageValidation, se.Stage)
	assert.Equal(t, "Product validation failed", se.Message)
	assert.Empty(t, f.orders.orders)
	assert.Equal(t, 1, f.customers.calls)
}

func TestPlaceOrder_ValidatorTimeoutIsDeadlineExceeded(t *testing.T) {
	f := newFixture()
	f.customers.delay = time.Second

	_, err := f.svc.PlaceOrder(context.Background(), "trace-1", orderRequest())

	se := stageErr(t, err)
	assert.Equal(t, pkg.StageValidation, se.Stage)
	assert.Equal(t, pkg.DeadlineExceeded, se.Kind)
	assert.Empty(t, f.orders.orders)
}

func TestPlaceOrder_CreateFailure(t *testing.T) {
	f := newFixture()
	f.orders.createErr = errors.New("db down")

	_, err := f.svc.PlaceOrder(context.Background(), "trace-1", orderRequest())

	se := stageErr(t, err)
	assert.Equal(t, pkg.StageCreateOrder, se.Stage)
	assert.Equal(t, pkg.PersistenceFailure, se.Kind)
	assert.Empty(t, se.OrderID)
	assert.Equal(t, 500, se.HTTPStatus())
	assert.Zero(t, f.payments.got.OrderID)
}

func TestPlaceOrder_PaymentTransportFailureMarksOrder(t *testing.T) {
	f := newFixture()
	f.payments.err = errors.New("connection reset by peer")

	_, err := f.svc.PlaceOrder(context.Background(), "trace-1", orderRequest())

	se := stageErr(t, err)
	stored := f.orders.only(t)
	assert.Equal(t, pkg.StageInitiatePayment, se.Stage)
	assert.Equal(t, pkg.TransportFailure, se.Kind)
	assert.Equal(t, stored.ID.String(), se.OrderID)
	assert.Equal(t, 502, se.HTTPStatus())
	assert.Contains(t, se.Message, "Payment service error")
	assert.Equal(t, pkg.OrderStatusPaymentFailed, stored.Status)
	assert.Equal(t, 0, f.followUp.paid+f.followUp.declined)
}

func TestPlaceOrder_PaymentTimeoutIsDeadlineExceeded(t *testing.T) {
	f := newFixture()
	f.payments.delay = time.Second

	_, err := f.svc.PlaceOrder(context.Background(), "trace-1", orderRequest())

	se := stageErr(t, err)
	assert.Equal(t, pkg.StageInitiatePayment, se.Stage)
	assert.Equal(t, pkg.DeadlineExceeded, se.Kind)
	assert.Equal(t, 502, se.HTTPStatus())
	assert.Equal(t, pkg.OrderStatusPaymentFailed, f.orders.only(t).Status)
}

func TestPlaceOrder_PaymentFailedStatusWriteIsBestEffort(t *testing.T) {
	f := newFixture()
	f.payments.err = errors.New("connection reset by peer")
	f.orders.updateErr[pkg.OrderStatusPaymentFailed] = errors.New("db down")

	_, err := f.svc.PlaceOrder(context.Background(), "trace-1", orderRequest())

	se := stageErr(t, err)
	assert.Equal(t, pkg.StageInitiatePayment, se.Stage)
	assert.NotEmpty(t, se.OrderID)
	assert.Equal(t, pkg.OrderStatusPending, f.orders.only(t).Status)
}

func TestPlaceOrder_StatusWriteFailure(t *testing.T) {
	f := newFixture()
	f.orders.updateErr[pkg.OrderStatusPaid] = errors.New("db down")

	_, err := f.svc.PlaceOrder(context.Background(), "trace-1", orderRequest())

	se := stageErr(t, err)
	assert.Equal(t, pkg.StagePayment, se.Stage)
	assert.Equal(t, pkg.PersistenceFailure, se.Kind)
	assert.Equal(t, f.orders.only(t).ID.String(), se.OrderID)
	assert.Equal(t, "Could not update order status after payment", se.Message)
	assert.Equal(t, 0, f.followUp.paid)
}

func TestPlaceOrder_FollowUpFailureKeepsStatus(t *testing.T) {
	f := newFixture()
	f.followUp.err = errors.New("notification service down")

	_, err := f.svc.PlaceOrder(context.Background(), "trace-1", orderRequest())

	se := stageErr(t, err)
	assert.Equal(t, pkg.StagePostPayment, se.Stage)
	assert.Equal(t, pkg.FollowUpFailure, se.Kind)
	assert.Equal(t, 500, se.HTTPStatus())
	assert.Equal(t, pkg.OrderStatusPaid, f.orders.only(t).Status)
}

func TestGetOrder(t *testing.T) {
	f := newFixture()
	resp, err := f.svc.PlaceOrder(context.Background(), "trace-1", orderRequest())
	require.NoError(t, err)

	view, err := f.svc.GetOrder(context.Background(), "trace-1", resp.OrderID)
	require.NoError(t, err)
	assert.Equal(t, resp.OrderID, view.ID)
	assert.Equal(t, pkg.OrderStatusPaid, view.Status)
}

func TestGetOrder_Errors(t *testing.T) {
	f := newFixture()

	_, err := f.svc.GetOrder(context.Background(), "trace-1", "not-a-uuid")
	var appErr pkg.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, pkg.ErrInvalidInputCode, appErr.Code)

	_, err = f.svc.GetOrder(context.Background(), "trace-1", uuid.NewString())
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, pkg.ErrRecordNotFoundCode, appErr.Code)
}

func TestGetTransaction_NotFound(t *testing.T) {
	f := newFixture()
	_, err := f.svc.GetTransaction(context.Background(), "trace-1", "o1")
	var appErr pkg.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, pkg.ErrRecordNotFoundCode, appErr.Code)
}
