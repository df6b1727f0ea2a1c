package views

import (
	"time"

	"github.com/nimeshabuddhika/resilient-order-saga/pkg"
)

type TransactionView struct {
	OrderID    string                `json:"orderId"`
	CustomerID string                `json:"customerId"`
	ProductID  string                `json:"productId"`
	Amount     float64               `json:"amount"`
	Status     pkg.TransactionStatus `json:"status"`
	Timestamp  time.Time             `json:"timestamp"`
	RecordedAt time.Time             `json:"recordedAt"`
}
