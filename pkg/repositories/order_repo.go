package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/nimeshabuddhika/resilient-order-saga/pkg"
	"github.com/nimeshabuddhika/resilient-order-saga/pkg/models"
)

type OrderRepository interface {
	// Create inserts a new order row.
	Create(ctx context.Context, q DBTX, order models.Order) (pgconn.CommandTag, error)
	// UpdateStatus moves an order from one status to another. It returns pkg.ErrStatusTransition
	// when the row is not currently in the expected status.
	UpdateStatus(ctx context.Context, q DBTX, orderID uuid.UUID, from, to pkg.OrderStatus) error
	// FindById finds an order by ID.
	FindById(ctx context.Context, q DBTX, orderID uuid.UUID) (models.Order, error)
}

type OrderRepositoryImpl struct {
}

func NewOrderRepository() OrderRepository {
	return &OrderRepositoryImpl{}
}

func (o OrderRepositoryImpl) Create(ctx context.Context, q DBTX, order models.Order) (pgconn.CommandTag, error) {
	if order.ID == uuid.Nil {
		return pgconn.CommandTag{}, errors.New("order id cannot be nil")
	}
	return q.Exec(ctx, `
						INSERT INTO orders (id, customer_id, product_id, amount, status, created_at, updated_at)
						VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		order.ID,
		order.CustomerID,
		order.ProductID,
		order.Amount,
		order.Status,
		order.CreatedAt,
		order.UpdatedAt,
	)
}

func (o OrderRepositoryImpl) UpdateStatus(ctx context.Context, q DBTX, orderID uuid.UUID, from, to pkg.OrderStatus) error {
	tag, err := q.Exec(ctx, `UPDATE orders SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4`,
		to, time.Now().UTC(), orderID, from)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pkg.ErrStatusTransition
	}
	return nil
}

func (o OrderRepositoryImpl) FindById(ctx context.Context, q DBTX, orderID uuid.UUID) (models.Order, error) {
	var order models.Order
	err := q.QueryRow(ctx, `SELECT id, customer_id, product_id, amount, status, created_at, updated_at FROM orders WHERE id = $1`, orderID).Scan(
		&order.ID, &order.CustomerID, &order.ProductID, &order.Amount, &order.Status, &order.CreatedAt, &order.UpdatedAt)
	return order, err
}
