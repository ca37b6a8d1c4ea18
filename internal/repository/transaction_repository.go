package repository

import (
	"context"
	"time"

	"github.com/commercekit/stripe-service/internal/domain"
)

// TransactionRepository persists payment transactions
type TransactionRepository interface {
	// Create inserts a new transaction and populates its ID and version.
	Create(ctx context.Context, tx *domain.PaymentTransaction) error

	// GetByID retrieves a transaction by its ID
	GetByID(ctx context.Context, id int64) (*domain.PaymentTransaction, error)

	// GetByIDs retrieves the transactions for the given ids, skipping
	// ids that no longer exist.
	GetByIDs(ctx context.Context, ids []int64) ([]*domain.PaymentTransaction, error)

	// GetByPaymentIntentID retrieves the transaction that owns the given
	// processor payment intent id.
	GetByPaymentIntentID(ctx context.Context, paymentIntentID string) (*domain.PaymentTransaction, error)

	// Update persists the transaction's mutable fields. It fails with
	// domain.ErrTransactionConflict when another writer updated the row
	// since it was read.
	Update(ctx context.Context, tx *domain.PaymentTransaction) error

	// HasSuccessfulSibling reports whether any successful transaction
	// with the given action references sourceID as its source.
	HasSuccessfulSibling(ctx context.Context, sourceID int64, action domain.TransactionAction) (bool, error)

	// IterateExpiringAuthorizationIDs streams ids of active, successful
	// authorization transactions using one of the given payment methods,
	// created inside [from, to], in batches of batchSize, calling fn for
	// each batch. An empty method set yields nothing. Iteration stops on
	// the first fn error.
	IterateExpiringAuthorizationIDs(ctx context.Context, methods []string, from, to time.Time, batchSize int, fn func(ids []int64) error) error
}
