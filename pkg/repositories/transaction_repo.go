package repositories

import (
	"context"
	"errors"

	"github.com/nimeshabuddhika/resilient-order-saga/pkg/models"
)

// TransactionRepository persists payment outcomes, one row per order.
type TransactionRepository interface {
	// Upsert inserts the record unless one already exists for its order id.
	// inserted is false when the row was already present.
	Upsert(ctx context.Context, q DBTX, txn models.Transaction) (inserted bool, err error)
	// FindByOrderId finds the transaction recorded for an order.
	FindByOrderId(ctx context.Context, q DBTX, orderID string) (models.Transaction, error)
}

type TransactionRepositoryImpl struct {
}

func NewTransactionRepository() TransactionRepository {
	return &TransactionRepositoryImpl{}
}

func (t TransactionRepositoryImpl) Upsert(ctx context.Context, q DBTX, txn models.Transaction) (bool, error) {
	if txn.OrderID == "" {
		return false, errors.New("transaction order id cannot be empty")
	}
	tag, err := q.Exec(ctx, `
						INSERT INTO transactions (order_id, customer_id, product_id, amount, status, timestamp)
						VALUES ($1, $2, $3, $4, $5, $6)
						ON CONFLICT (order_id) DO NOTHING`,
		txn.OrderID,
		txn.CustomerID,
		txn.ProductID,
		txn.Amount,
		txn.Status,
		txn.Timestamp,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (t TransactionRepositoryImpl) FindByOrderId(ctx context.Context, q DBTX, orderID string) (models.Transaction, error) {
	var txn models.Transaction
	err := q.QueryRow(ctx, `SELECT id, order_id, customer_id, product_id, amount, status, timestamp, recorded_at
		FROM transactions WHERE order_id = $1`, orderID).Scan(
		&txn.ID, &txn.OrderID, &txn.CustomerID, &txn.ProductID, &txn.Amount, &txn.Status, &txn.Timestamp, &txn.RecordedAt)
	return txn, err
}
