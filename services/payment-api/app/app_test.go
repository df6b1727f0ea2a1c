package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/nimeshabuddhika/resilient-order-saga/pkg"
	"github.com/nimeshabuddhika/resilient-order-saga/pkg/views"
	"github.com/nimeshabuddhika/resilient-order-saga/services/payment-api/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubPublisher struct {
	err       error
	published int
}

func (s *stubPublisher) Publish(context.Context, string, []byte) error {
	if s.err != nil {
		return s.err
	}
	s.published++
	return nil
}

func (s *stubPublisher) Close() {}

func newTestRouter(pub *stubPublisher, maxApproved float64) *gin.Engine {
	gin.SetMode(gin.TestMode)
	svc := services.NewPaymentService(services.PaymentServiceConfig{
		Logger:    zap.NewNop(),
		Decider:   services.AmountCeilingDecider{MaxApproved: maxApproved},
		Publisher: pub,
		Queue:     "payment_transactions_test",
	})
	return NewRouter(zap.NewNop(), svc)
}

func postPayment(t *testing.T, r http.Handler, path string, body map[string]any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func validBody(amount float64) map[string]any {
	return map[string]any{"customerId": "c1", "orderId": "o1", "productId": "p1", "amount": amount}
}

func TestInitiatePayment_Approved(t *testing.T) {
	pub := &stubPublisher{}
	r := newTestRouter(pub, 0)

	for _, path := range []string{"/api/v1/payments", "/payments"} {
		w := postPayment(t, r, path, validBody(10))
		require.Equal(t, http.StatusOK, w.Code, path)

		var out views.PaymentResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
		assert.Equal(t, pkg.ResponseStatusSuccess, out.Status)
		assert.True(t, out.PaymentStatus)
	}
	assert.Equal(t, 2, pub.published)
}

func TestInitiatePayment_Declined(t *testing.T) {
	r := newTestRouter(&stubPublisher{}, 5)

	w := postPayment(t, r, "/payments", validBody(10))
	require.Equal(t, http.StatusOK, w.Code)

	var out views.PaymentResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.False(t, out.PaymentStatus)
}

func TestInitiatePayment_MissingFields(t *testing.T) {
	cases := map[string]map[string]any{
		"no amount":   {"customerId": "c1", "orderId": "o1", "productId": "p1"},
		"no order id": {"customerId": "c1", "productId": "p1", "amount": 1},
		"empty":       {},
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			pub := &stubPublisher{}
			w := postPayment(t, newTestRouter(pub, 0), "/payments", body)
			require.Equal(t, http.StatusBadRequest, w.Code)

			var out views.StageResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
			assert.Equal(t, pkg.ResponseStatusError, out.Status)
			assert.Equal(t, string(pkg.StageValidation), out.Stage)
			assert.Equal(t, "Missing required fields", out.Message)
			assert.Zero(t, pub.published)
		})
	}
}

func TestInitiatePayment_ZeroAmountIsAccepted(t *testing.T) {
	w := postPayment(t, newTestRouter(&stubPublisher{}, 0), "/payments", validBody(0))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestInitiatePayment_PublishFailure(t *testing.T) {
	r := newTestRouter(&stubPublisher{err: errors.New("broker down")}, 5)

	w := postPayment(t, r, "/payments", validBody(10))
	require.Equal(t, http.StatusInternalServerError, w.Code)

	var out views.StageResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.Equal(t, pkg.ResponseStatusError, out.Status)
	assert.Equal(t, string(pkg.StagePublishTransaction), out.Stage)
	assert.Equal(t, string(pkg.TransactionStatusFailed), out.PaymentStatus)
	assert.NotEmpty(t, out.Message)
}

func TestHealth(t *testing.T) {
	r := newTestRouter(&stubPublisher{}, 0)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
