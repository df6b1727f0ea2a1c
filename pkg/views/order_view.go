package views

import (
	"time"

	"github.com/nimeshabuddhika/resilient-order-saga/pkg"
)

type OrderView struct {
	ID         string          `json:"orderId"`
	CustomerID string          `json:"customerId"`
	ProductID  string          `json:"productId"`
	Amount     float64         `json:"amount"`
	Status     pkg.OrderStatus `json:"orderStatus"`
	CreatedAt  time.Time       `json:"createdAt"`
	UpdatedAt  time.Time       `json:"updatedAt"`
}

// OrderRequest is the place-order body. Amount is a pointer so a missing amount is rejected
// while zero is accepted.
type OrderRequest struct {
	CustomerID string   `json:"customerId" binding:"required"`
	ProductID  string   `json:"productId" binding:"required"`
	Amount     *float64 `json:"amount" binding:"required"`
}

// OrderPlacedResponse is returned when the saga completes.
type OrderPlacedResponse struct {
	Status      string          `json:"status"`
	OrderID     string          `json:"orderId"`
	CustomerID  string          `json:"customerId"`
	ProductID   string          `json:"productId"`
	OrderStatus pkg.OrderStatus `json:"orderStatus"`
}
