package services

import (
	"context"

	"github.com/google/uuid"
	"github.com/nimeshabuddhika/resilient-order-saga/pkg"
	"github.com/nimeshabuddhika/resilient-order-saga/pkg/models"
	"github.com/nimeshabuddhika/resilient-order-saga/pkg/repositories"
)

// OrderStore is the Order Store as seen by the saga.
type OrderStore interface {
	Create(ctx context.Context, order models.Order) error
	// UpdateStatus returns pkg.ErrStatusTransition when the order is no longer in from.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to pkg.OrderStatus) error
	Get(ctx context.Context, id uuid.UUID) (models.Order, error)
}

// TransactionReader looks up recorded payment outcomes.
type TransactionReader interface {
	GetByOrderID(ctx context.Context, orderID string) (models.Transaction, error)
}

type OrderStoreImpl struct {
	db   repositories.DBTX
	repo repositories.OrderRepository
}

func NewOrderStore(db repositories.DBTX, repo repositories.OrderRepository) OrderStore {
	return &OrderStoreImpl{db: db, repo: repo}
}

func (s *OrderStoreImpl) Create(ctx context.Context, order models.Order) error {
	_, err := s.repo.Create(ctx, s.db, order)
	return err
}

func (s *OrderStoreImpl) UpdateStatus(ctx context.Context, id uuid.UUID, from, to pkg.OrderStatus) error {
	return s.repo.UpdateStatus(ctx, s.db, id, from, to)
}

func (s *OrderStoreImpl) Get(ctx context.Context, id uuid.UUID) (models.Order, error) {
	return s.repo.FindById(ctx, s.db, id)
}

type TransactionReaderImpl struct {
	db   repositories.DBTX
	repo repositories.TransactionRepository
}

func NewTransactionReader(db repositories.DBTX, repo repositories.TransactionRepository) TransactionReader {
	return &TransactionReaderImpl{db: db, repo: repo}
}

func (r *TransactionReaderImpl) GetByOrderID(ctx context.Context, orderID string) (models.Transaction, error) {
	return r.repo.FindByOrderId(ctx, r.db, orderID)
}
