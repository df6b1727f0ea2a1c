package views

import (
	"time"

	"github.com/nimeshabuddhika/resilient-order-saga/pkg"
)

// TransactionEvent is the message body carried on the transaction queue.
type TransactionEvent struct {
	OrderID    string                `json:"orderId" validate:"required"`
	CustomerID string                `json:"customerId" validate:"required"`
	ProductID  string                `json:"productId" validate:"required"`
	Amount     float64               `json:"amount"`
	Status     pkg.TransactionStatus `json:"status" validate:"required,oneof=success failed"`
	Timestamp  time.Time             `json:"timestamp" validate:"required"`
}
