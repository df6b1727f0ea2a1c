package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nimeshabuddhika/resilient-order-saga/pkg"
	"github.com/nimeshabuddhika/resilient-order-saga/pkg/utils"
	"github.com/nimeshabuddhika/resilient-order-saga/pkg/views"
	"github.com/nimeshabuddhika/resilient-order-saga/services/payment-api/internal/services"
	"go.uber.org/zap"
)

type PaymentHandler struct {
	logger  *zap.Logger
	service services.PaymentService
}

func NewPaymentHandler(logger *zap.Logger, svc services.PaymentService) *PaymentHandler {
	return &PaymentHandler{logger: logger, service: svc}
}

func (h *PaymentHandler) RegisterRoutes(r gin.IRoutes) {
	r.POST("/payments", h.InitiatePayment)
}

func (h *PaymentHandler) InitiatePayment(c *gin.Context) {
	traceID, err := utils.GetTraceID(c)
	if err != nil {
		c.JSON(http.StatusInternalServerError, pkg.ToErrorResponse(h.logger, "", err))
		return
	}

	var req views.PaymentRequest
	if err = c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("initiate_payment_invalid_body", zap.String(pkg.TraceId, traceID), zap.Error(err))
		c.JSON(http.StatusBadRequest, views.StageResponse{
			Status:  pkg.ResponseStatusError,
			Stage:   string(pkg.StageValidation),
			Message: "Missing required fields",
		})
		return
	}

	approved, err := h.service.Process(c.Request.Context(), traceID, req)
	if err != nil {
		var stageErr *pkg.StageError
		if !errors.As(err, &stageErr) {
			resp := pkg.ToErrorResponse(h.logger, traceID, err)
			c.JSON(resp.Status, resp)
			return
		}
		// the caller still learns the decision that was made
		c.JSON(http.StatusInternalServerError, views.StageResponse{
			Status:        pkg.ResponseStatusError,
			Stage:         string(stageErr.Stage),
			Message:       stageErr.Message,
			PaymentStatus: string(pkg.TransactionStatusOf(approved)),
		})
		return
	}
	c.JSON(http.StatusOK, views.PaymentResponse{Status: pkg.ResponseStatusSuccess, PaymentStatus: approved})
}
