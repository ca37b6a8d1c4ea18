package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/commercekit/stripe-service/internal/domain"
)

// MemoryTransactionRepository implements TransactionRepository in memory for
// tests and local development.
type MemoryTransactionRepository struct {
	mu     sync.RWMutex
	nextID int64
	byID   map[int64]*domain.PaymentTransaction
}

// NewMemoryTransactionRepository creates an empty in-memory repository
func NewMemoryTransactionRepository() *MemoryTransactionRepository {
	return &MemoryTransactionRepository{
		nextID: 1,
		byID:   make(map[int64]*domain.PaymentTransaction),
	}
}

func (r *MemoryTransactionRepository) Create(ctx context.Context, tx *domain.PaymentTransaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx.ID = r.nextID
	r.nextID++
	tx.Version = 1

	r.byID[tx.ID] = cloneTransaction(tx)
	return nil
}

func (r *MemoryTransactionRepository) GetByID(ctx context.Context, id int64) (*domain.PaymentTransaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tx, ok := r.byID[id]
	if !ok {
		return nil, domain.ErrTransactionNotFound
	}
	return cloneTransaction(tx), nil
}

func (r *MemoryTransactionRepository) GetByIDs(ctx context.Context, ids []int64) ([]*domain.PaymentTransaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*domain.PaymentTransaction
	for _, id := range ids {
		if tx, ok := r.byID[id]; ok {
			out = append(out, cloneTransaction(tx))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *MemoryTransactionRepository) GetByPaymentIntentID(ctx context.Context, paymentIntentID string) (*domain.PaymentTransaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var found *domain.PaymentTransaction
	for _, tx := range r.byID {
		if tx.PaymentIntentID != paymentIntentID {
			continue
		}
		if found == nil || tx.ID > found.ID {
			found = tx
		}
	}
	if found == nil {
		return nil, domain.ErrTransactionNotFound
	}
	return cloneTransaction(found), nil
}

func (r *MemoryTransactionRepository) Update(ctx context.Context, tx *domain.PaymentTransaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.byID[tx.ID]
	if !ok {
		return domain.ErrTransactionNotFound
	}
	if stored.Version != tx.Version {
		return domain.ErrTransactionConflict
	}

	tx.Version++
	r.byID[tx.ID] = cloneTransaction(tx)
	return nil
}

func (r *MemoryTransactionRepository) HasSuccessfulSibling(ctx context.Context, sourceID int64, action domain.TransactionAction) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, tx := range r.byID {
		if tx.SourceTransactionID != nil && *tx.SourceTransactionID == sourceID &&
			tx.Action == action && tx.Successful {
			return true, nil
		}
	}
	return false, nil
}

func (r *MemoryTransactionRepository) IterateExpiringAuthorizationIDs(ctx context.Context, methods []string, from, to time.Time, batchSize int, fn func(ids []int64) error) error {
	if len(methods) == 0 {
		return nil
	}
	allowed := make(map[string]struct{}, len(methods))
	for _, m := range methods {
		allowed[m] = struct{}{}
	}

	r.mu.RLock()
	var candidates []int64
	for _, tx := range r.byID {
		if tx.Action != domain.ActionAuthorize {
			continue
		}
		if _, ok := allowed[tx.PaymentMethod]; !ok {
			continue
		}
		if !tx.Active || !tx.Successful {
			continue
		}
		if tx.CreatedAt.Before(from) || tx.CreatedAt.After(to) {
			continue
		}
		candidates = append(candidates, tx.ID)
	}
	r.mu.RUnlock()

	sort.Slice(candidates, func(i, j int) bool { return candidates[i] < candidates[j] })

	for start := 0; start < len(candidates); start += batchSize {
		end := start + batchSize
		if end > len(candidates) {
			end = len(candidates)
		}
		if err := fn(candidates[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func cloneTransaction(tx *domain.PaymentTransaction) *domain.PaymentTransaction {
	out := *tx
	if tx.SourceTransactionID != nil {
		id := *tx.SourceTransactionID
		out.SourceTransactionID = &id
	}
	out.Options = make(map[string]any, len(tx.Options))
	for k, v := range tx.Options {
		out.Options[k] = v
	}
	out.Response = make(map[string]any, len(tx.Response))
	for k, v := range tx.Response {
		out.Response[k] = v
	}
	return &out
}
