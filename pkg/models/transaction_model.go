package models

import (
	"time"

	"github.com/nimeshabuddhika/resilient-order-saga/pkg"
	"github.com/nimeshabuddhika/resilient-order-saga/pkg/views"
)

// Transaction maps to table `transactions`. At most one row exists per OrderID.
type Transaction struct {
	ID         int64
	OrderID    string
	CustomerID string
	ProductID  string
	Amount     float64
	Status     pkg.TransactionStatus
	Timestamp  time.Time
	RecordedAt time.Time
}

func TransactionFromEvent(ev views.TransactionEvent) Transaction {
	return Transaction{
		OrderID:    ev.OrderID,
		CustomerID: ev.CustomerID,
		ProductID:  ev.ProductID,
		Amount:     ev.Amount,
		Status:     ev.Status,
		Timestamp:  ev.Timestamp,
	}
}

func (t Transaction) ToView() views.TransactionView {
	return views.TransactionView{
		OrderID:    t.OrderID,
		CustomerID: t.CustomerID,
		ProductID:  t.ProductID,
		Amount:     t.Amount,
		Status:     t.Status,
		Timestamp:  t.Timestamp,
		RecordedAt: t.RecordedAt,
	}
}
