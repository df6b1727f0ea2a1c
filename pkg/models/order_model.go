package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/nimeshabuddhika/resilient-order-saga/pkg"
	"github.com/nimeshabuddhika/resilient-order-saga/pkg/views"
)

// Order maps to table `orders`
type Order struct {
	ID         uuid.UUID
	CustomerID string
	ProductID  string
	Amount     float64
	Status     pkg.OrderStatus
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// NewPendingOrder assigns a fresh id and the initial pending status.
func NewPendingOrder(customerID, productID string, amount float64) Order {
	now := time.Now().UTC()
	return Order{
		ID:         uuid.New(),
		CustomerID: customerID,
		ProductID:  productID,
		Amount:     amount,
		Status:     pkg.OrderStatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func (o Order) ToView() views.OrderView {
	return views.OrderView{
		ID:         o.ID.String(),
		CustomerID: o.CustomerID,
		ProductID:  o.ProductID,
		Amount:     o.Amount,
		Status:     o.Status,
		CreatedAt:  o.CreatedAt,
		UpdatedAt:  o.UpdatedAt,
	}
}
