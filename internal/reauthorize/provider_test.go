package reauthorize

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/commercekit/stripe-service/internal/domain"
	"github.com/commercekit/stripe-service/internal/repository"
)

func seedAuthorization(t *testing.T, repo repository.TransactionRepository, age time.Duration, now time.Time) *domain.PaymentTransaction {
	t.Helper()

	tx, err := domain.NewTransaction(domain.ActionAuthorize, "stripe", 19.99, "USD", "Order", 7)
	require.NoError(t, err)
	tx.Successful = true
	tx.CreatedAt = now.Add(-age)
	tx.SetOption(domain.OptionReAuthorizationEnabled, true)
	require.NoError(t, repo.Create(context.Background(), tx))
	return tx
}

func collectIDs(t *testing.T, p Provider) []int64 {
	t.Helper()
	var ids []int64
	require.NoError(t, p.EachBatch(context.Background(), func(batch []int64) error {
		ids = append(ids, batch...)
		return nil
	}))
	return ids
}

func TestExpiringAuthorizationProvider_Window(t *testing.T) {
	repo := repository.NewMemoryTransactionRepository()
	now := time.Now().UTC()

	tests := []struct {
		name     string
		age      time.Duration
		expected bool
	}{
		{"one hour old", time.Hour, false},
		{"six days twenty hours", 164 * time.Hour, true},
		{"six days twenty-two hours", 6*24*time.Hour + 22*time.Hour, true},
		{"exactly seven days", 168 * time.Hour, true},
		{"eight days", 8 * 24 * time.Hour, false},
	}

	byName := make(map[string]int64)
	for _, tt := range tests {
		byName[tt.name] = seedAuthorization(t, repo, tt.age, now).ID
	}

	provider, err := NewExpiringAuthorizationProvider(repo, []string{"stripe"}, 168*time.Hour, 164*time.Hour, 200)
	require.NoError(t, err)
	provider.now = func() time.Time { return now }

	ids := collectIDs(t, provider)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, containsID(ids, byName[tt.name]))
		})
	}
}

func TestExpiringAuthorizationProvider_BatchSize(t *testing.T) {
	repo := repository.NewMemoryTransactionRepository()
	now := time.Now().UTC()

	for i := 0; i < 5; i++ {
		seedAuthorization(t, repo, 166*time.Hour, now)
	}

	provider, err := NewExpiringAuthorizationProvider(repo, []string{"stripe"}, 168*time.Hour, 164*time.Hour, 2)
	require.NoError(t, err)
	provider.now = func() time.Time { return now }

	var batches [][]int64
	require.NoError(t, provider.EachBatch(context.Background(), func(ids []int64) error {
		batch := make([]int64, len(ids))
		copy(batch, ids)
		batches = append(batches, batch)
		return nil
	}))

	require.Len(t, batches, 3)
	assert.Len(t, batches[0], 2)
	assert.Len(t, batches[1], 2)
	assert.Len(t, batches[2], 1)
}

func TestNewExpiringAuthorizationProvider_InvalidWindow(t *testing.T) {
	repo := repository.NewMemoryTransactionRepository()

	_, err := NewExpiringAuthorizationProvider(repo, []string{"stripe"}, 164*time.Hour, 168*time.Hour, 200)
	assert.Error(t, err)
}

func TestCompositeProvider_DrainsInOrder(t *testing.T) {
	repo := repository.NewMemoryTransactionRepository()
	now := time.Now().UTC()

	early := seedAuthorization(t, repo, 167*time.Hour, now)
	late := seedAuthorization(t, repo, 165*time.Hour, now)

	first, err := NewExpiringAuthorizationProvider(repo, []string{"stripe"}, 168*time.Hour, 166*time.Hour, 200)
	require.NoError(t, err)
	first.now = func() time.Time { return now }

	second, err := NewExpiringAuthorizationProvider(repo, []string{"stripe"}, 166*time.Hour, 164*time.Hour, 200)
	require.NoError(t, err)
	second.now = func() time.Time { return now }

	ids := collectIDs(t, NewCompositeProvider(first, second))
	assert.Equal(t, []int64{early.ID, late.ID}, ids)
}

func containsID(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func TestExpiringAuthorizationProvider_EmptyMethodSetYieldsNothing(t *testing.T) {
	repo := repository.NewMemoryTransactionRepository()
	now := time.Now().UTC()
	seedAuthorization(t, repo, 166*time.Hour, now)

	provider, err := NewExpiringAuthorizationProvider(repo, nil, 168*time.Hour, 164*time.Hour, 200)
	require.NoError(t, err)
	provider.now = func() time.Time { return now }

	assert.Empty(t, collectIDs(t, provider))
}

func TestExpiringAuthorizationProvider_FiltersByMethod(t *testing.T) {
	repo := repository.NewMemoryTransactionRepository()
	now := time.Now().UTC()

	stripeTx := seedAuthorization(t, repo, 166*time.Hour, now)

	other, err := domain.NewTransaction(domain.ActionAuthorize, "legacy_card", 19.99, "USD", "Order", 8)
	require.NoError(t, err)
	other.Successful = true
	other.CreatedAt = now.Add(-166 * time.Hour)
	require.NoError(t, repo.Create(context.Background(), other))

	provider, err := NewExpiringAuthorizationProvider(repo, []string{"stripe"}, 168*time.Hour, 164*time.Hour, 200)
	require.NoError(t, err)
	provider.now = func() time.Time { return now }

	ids := collectIDs(t, provider)
	assert.True(t, containsID(ids, stripeTx.ID))
	assert.False(t, containsID(ids, other.ID))
}
