package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/commercekit/stripe-service/internal/domain"
)

func newAuthorization(t *testing.T, repo TransactionRepository, createdAt time.Time) *domain.PaymentTransaction {
	t.Helper()

	tx, err := domain.NewTransaction(domain.ActionAuthorize, "stripe", 19.99, "USD", "Order", 100)
	require.NoError(t, err)
	tx.Successful = true
	tx.CreatedAt = createdAt
	require.NoError(t, repo.Create(context.Background(), tx))
	return tx
}

func TestMemoryRepository_CreateAndGet(t *testing.T) {
	repo := NewMemoryTransactionRepository()

	tx := newAuthorization(t, repo, time.Now().UTC())
	assert.NotZero(t, tx.ID)
	assert.Equal(t, int64(1), tx.Version)

	got, err := repo.GetByID(context.Background(), tx.ID)
	require.NoError(t, err)
	assert.Equal(t, tx.ID, got.ID)
	assert.Equal(t, domain.ActionAuthorize, got.Action)
	assert.Equal(t, 19.99, got.Amount)
}

func TestMemoryRepository_GetByID_NotFound(t *testing.T) {
	repo := NewMemoryTransactionRepository()

	_, err := repo.GetByID(context.Background(), 999)
	assert.ErrorIs(t, err, domain.ErrTransactionNotFound)
}

func TestMemoryRepository_Update_OptimisticLocking(t *testing.T) {
	repo := NewMemoryTransactionRepository()
	tx := newAuthorization(t, repo, time.Now().UTC())

	first, err := repo.GetByID(context.Background(), tx.ID)
	require.NoError(t, err)
	second, err := repo.GetByID(context.Background(), tx.ID)
	require.NoError(t, err)

	first.Deactivate()
	require.NoError(t, repo.Update(context.Background(), first))
	assert.Equal(t, int64(2), first.Version)

	second.MarkSuccessful()
	err = repo.Update(context.Background(), second)
	assert.ErrorIs(t, err, domain.ErrTransactionConflict)
}

func TestMemoryRepository_GetByPaymentIntentID(t *testing.T) {
	repo := NewMemoryTransactionRepository()

	tx := newAuthorization(t, repo, time.Now().UTC())
	tx.PaymentIntentID = "pi_abc123"
	require.NoError(t, repo.Update(context.Background(), tx))

	got, err := repo.GetByPaymentIntentID(context.Background(), "pi_abc123")
	require.NoError(t, err)
	assert.Equal(t, tx.ID, got.ID)

	_, err = repo.GetByPaymentIntentID(context.Background(), "pi_missing")
	assert.ErrorIs(t, err, domain.ErrTransactionNotFound)
}

func TestMemoryRepository_HasSuccessfulSibling(t *testing.T) {
	repo := NewMemoryTransactionRepository()
	ctx := context.Background()

	parent := newAuthorization(t, repo, time.Now().UTC())

	cancel := parent.CreateDerived(domain.ActionCancel)
	require.NoError(t, repo.Create(ctx, cancel))

	// unsuccessful siblings do not count
	has, err := repo.HasSuccessfulSibling(ctx, parent.ID, domain.ActionCancel)
	require.NoError(t, err)
	assert.False(t, has)

	cancel.MarkSuccessful()
	require.NoError(t, repo.Update(ctx, cancel))

	has, err = repo.HasSuccessfulSibling(ctx, parent.ID, domain.ActionCancel)
	require.NoError(t, err)
	assert.True(t, has)

	has, err = repo.HasSuccessfulSibling(ctx, parent.ID, domain.ActionCapture)
	require.NoError(t, err)
	assert.False(t, has)
}

func TestMemoryRepository_IterateExpiringAuthorizationIDs(t *testing.T) {
	repo := NewMemoryTransactionRepository()
	ctx := context.Background()
	now := time.Now().UTC()

	inWindow1 := newAuthorization(t, repo, now.Add(-167*time.Hour))
	inWindow2 := newAuthorization(t, repo, now.Add(-165*time.Hour))
	newAuthorization(t, repo, now.Add(-1*time.Hour))   // too recent
	newAuthorization(t, repo, now.Add(-200*time.Hour)) // too old

	inactive := newAuthorization(t, repo, now.Add(-166*time.Hour))
	inactive.Deactivate()
	require.NoError(t, repo.Update(ctx, inactive))

	from := now.Add(-168 * time.Hour)
	to := now.Add(-164 * time.Hour)

	var seen []int64
	err := repo.IterateExpiringAuthorizationIDs(ctx, []string{"stripe"}, from, to, 1, func(ids []int64) error {
		assert.Len(t, ids, 1)
		seen = append(seen, ids...)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{inWindow1.ID, inWindow2.ID}, seen)
}

func TestMemoryRepository_GetByIDs_SkipsMissing(t *testing.T) {
	repo := NewMemoryTransactionRepository()

	tx := newAuthorization(t, repo, time.Now().UTC())

	got, err := repo.GetByIDs(context.Background(), []int64{tx.ID, 999})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, tx.ID, got[0].ID)
}
