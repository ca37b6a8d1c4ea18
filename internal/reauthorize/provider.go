package reauthorize

import (
	"context"
	"fmt"
	"time"

	"github.com/commercekit/stripe-service/internal/repository"
)

// Provider yields ids of transactions that may need their hold renewed.
// Batches arrive in ascending id order.
type Provider interface {
	EachBatch(ctx context.Context, fn func(ids []int64) error) error
}

// ExpiringAuthorizationProvider finds authorizations whose card hold is
// about to lapse. Card networks release uncaptured authorizations after
// about seven days; the window selects transactions old enough to renew
// soon but not yet expired.
type ExpiringAuthorizationProvider struct {
	repo repository.TransactionRepository
	// methods limits the scan to transactions using these payment methods.
	methods []string
	// CreatedLaterThan is the age of the oldest candidate (window start).
	createdLaterThan time.Duration
	// CreatedEarlierThan is the age of the newest candidate (window end).
	createdEarlierThan time.Duration
	batchSize          int
	now                func() time.Time
}

// NewExpiringAuthorizationProvider creates a provider over the given age
// window, limited to the given payment method identifiers. An empty method
// set yields no candidates.
func NewExpiringAuthorizationProvider(repo repository.TransactionRepository, methods []string, createdLaterThan, createdEarlierThan time.Duration, batchSize int) (*ExpiringAuthorizationProvider, error) {
	if createdLaterThan <= createdEarlierThan {
		return nil, fmt.Errorf("invalid candidate window: later-than %s must exceed earlier-than %s", createdLaterThan, createdEarlierThan)
	}
	if batchSize <= 0 {
		batchSize = 200
	}
	return &ExpiringAuthorizationProvider{
		repo:               repo,
		methods:            methods,
		createdLaterThan:   createdLaterThan,
		createdEarlierThan: createdEarlierThan,
		batchSize:          batchSize,
		now:                time.Now,
	}, nil
}

// EachBatch streams candidate ids in batches
func (p *ExpiringAuthorizationProvider) EachBatch(ctx context.Context, fn func(ids []int64) error) error {
	if len(p.methods) == 0 {
		return nil
	}
	now := p.now().UTC()
	from := now.Add(-p.createdLaterThan)
	to := now.Add(-p.createdEarlierThan)
	return p.repo.IterateExpiringAuthorizationIDs(ctx, p.methods, from, to, p.batchSize, fn)
}

// CompositeProvider chains providers, draining each in registration order
type CompositeProvider struct {
	providers []Provider
}

// NewCompositeProvider creates a provider over the given sources
func NewCompositeProvider(providers ...Provider) *CompositeProvider {
	return &CompositeProvider{providers: providers}
}

// EachBatch streams candidate ids from every source in order
func (p *CompositeProvider) EachBatch(ctx context.Context, fn func(ids []int64) error) error {
	for _, provider := range p.providers {
		if err := provider.EachBatch(ctx, fn); err != nil {
			return err
		}
	}
	return nil
}
