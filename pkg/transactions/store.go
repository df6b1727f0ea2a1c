package transactions

import (
	"context"

	"github.com/nimeshabuddhika/resilient-order-saga/pkg/models"
	"github.com/nimeshabuddhika/resilient-order-saga/pkg/repositories"
)

// Store is the Transaction Store as seen by the consumer.
type Store interface {
	// Record persists txn unless a record for its order already exists.
	Record(ctx context.Context, txn models.Transaction) (inserted bool, err error)
}

type StoreImpl struct {
	db   repositories.DBTX
	repo repositories.TransactionRepository
}

func NewStore(db repositories.DBTX, repo repositories.TransactionRepository) Store {
	return &StoreImpl{db: db, repo: repo}
}

func (s *StoreImpl) Record(ctx context.Context, txn models.Transaction) (bool, error) {
	return s.repo.Upsert(ctx, s.db, txn)
}
