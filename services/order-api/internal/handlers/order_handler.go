package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nimeshabuddhika/resilient-order-saga/pkg"
	"github.com/nimeshabuddhika/resilient-order-saga/pkg/utils"
	"github.com/nimeshabuddhika/resilient-order-saga/pkg/views"
	"github.com/nimeshabuddhika/resilient-order-saga/services/order-api/internal/services"
	"go.uber.org/zap"
)

type OrderHandler struct {
	logger  *zap.Logger
	service services.OrderService
}

func NewOrderHandler(logger *zap.Logger, svc services.OrderService) *OrderHandler {
	return &OrderHandler{logger: logger, service: svc}
}

// RegisterRoutes registers order routes. placeGuards run before PlaceOrder only.
func (h *OrderHandler) RegisterRoutes(r gin.IRoutes, placeGuards ...gin.HandlerFunc) {
	r.POST("/orders", append(placeGuards, h.PlaceOrder)...)
	r.GET("/orders/:id", h.GetOrder)
	r.GET("/transactions/:orderId", h.GetTransaction)
}

func (h *OrderHandler) PlaceOrder(c *gin.Context) {
	traceID, err := utils.GetTraceID(c)
	if err != nil {
		c.JSON(http.StatusInternalServerError, pkg.ToErrorResponse(h.logger, "", err))
		return
	}

	var req views.OrderRequest
	if err = c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("place_order_invalid_body", zap.String(pkg.TraceId, traceID), zap.Error(err))
		c.JSON(http.StatusBadRequest, views.StageResponse{
			Status:  pkg.ResponseStatusError,
			Stage:   string(pkg.StageValidation),
			Message: "invalid request body",
		})
		return
	}

	resp, err := h.service.PlaceOrder(c.Request.Context(), traceID, req)
	if err != nil {
		h.writeStageError(c, traceID, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

func (h *OrderHandler) writeStageError(c *gin.Context, traceID string, err error) {
	var stageErr *pkg.StageError
	if !errors.As(err, &stageErr) {
		resp := pkg.ToErrorResponse(h.logger, traceID, err)
		c.JSON(resp.Status, resp)
		return
	}

	body := views.StageResponse{
		Status:  pkg.ResponseStatusError,
		Stage:   string(stageErr.Stage),
		Message: stageErr.Message,
		OrderID: stageErr.OrderID,
	}
	if stageErr.Kind == pkg.FollowUpFailure {
		body.Status = pkg.ResponseStatusWarning
	}
	if stageErr.Kind == pkg.DeadlineExceeded {
		body.Reason = string(pkg.DeadlineExceeded)
	}
	c.JSON(stageErr.HTTPStatus(), body)
}

func (h *OrderHandler) GetOrder(c *gin.Context) {
	traceID, err := utils.GetTraceID(c)
	if err != nil {
		c.JSON(http.StatusInternalServerError, pkg.ToErrorResponse(h.logger, "", err))
		return
	}
	order, err := h.service.GetOrder(c.Request.Context(), traceID, c.Param("id"))
	if err != nil {
		resp := pkg.ToErrorResponse(h.logger, traceID, err)
		c.JSON(resp.Status, resp)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *OrderHandler) GetTransaction(c *gin.Context) {
	traceID, err := utils.GetTraceID(c)
	if err != nil {
		c.JSON(http.StatusInternalServerError, pkg.ToErrorResponse(h.logger, "", err))
		return
	}
	txn, err := h.service.GetTransaction(c.Request.Context(), traceID, c.Param("orderId"))
	if err != nil {
		resp := pkg.ToErrorResponse(h.logger, traceID, err)
		c.JSON(resp.Status, resp)
		return
	}
	c.JSON(http.StatusOK, txn)
}
