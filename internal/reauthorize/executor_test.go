package reauthorize

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/commercekit/stripe-service/internal/domain"
	"github.com/commercekit/stripe-service/internal/gateway"
	"github.com/commercekit/stripe-service/internal/method"
	"github.com/commercekit/stripe-service/internal/repository"
	"github.com/commercekit/stripe-service/pkg/logger"
)

type recordingNotifier struct {
	mu       sync.Mutex
	failures []string
}

func (n *recordingNotifier) ReAuthorizationFailed(ctx context.Context, tx *domain.PaymentTransaction, reason string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failures = append(n.failures, reason)
}

type executorFixture struct {
	repo     *repository.MemoryTransactionRepository
	gateway  *gateway.MockGateway
	notifier *recordingNotifier
	executor *Executor
}

func newExecutorFixture(t *testing.T) *executorFixture {
	t.Helper()

	repo := repository.NewMemoryTransactionRepository()
	gw := gateway.NewMockGateway()
	registry := method.NewRegistry()
	registry.Register(method.NewStripeMethod("stripe", gw, logger.Get()))
	notifier := &recordingNotifier{}

	return &executorFixture{
		repo:     repo,
		gateway:  gw,
		notifier: notifier,
		executor: NewExecutor(repo, registry, notifier, logger.Get()),
	}
}

func (f *executorFixture) seedRenewable(t *testing.T) *domain.PaymentTransaction {
	t.Helper()

	tx, err := domain.NewTransaction(domain.ActionAuthorize, "stripe", 19.99, "USD", "Order", 7)
	require.NoError(t, err)
	tx.Successful = true
	tx.PaymentIntentID = "pi_old"
	tx.SetOption(domain.OptionReAuthorizationEnabled, true)
	tx.SetOption(method.OptionCustomerID, "cus_123")
	tx.SetOption(method.OptionPaymentMethodID, "pm_123")
	require.NoError(t, f.repo.Create(context.Background(), tx))
	return tx
}

func TestExecutor_IsApplicable(t *testing.T) {
	f := newExecutorFixture(t)
	ctx := context.Background()

	tests := []struct {
		name       string
		mutate     func(tx *domain.PaymentTransaction)
		applicable bool
		reason     string
	}{
		{"renewable authorization", func(tx *domain.PaymentTransaction) {}, true, ""},
		{"wrong action", func(tx *domain.PaymentTransaction) { tx.Action = domain.ActionCapture }, false, ReasonNotAuthorization},
		{"derived renewal", func(tx *domain.PaymentTransaction) { tx.Action = domain.ActionReAuthorize }, false, ReasonNotAuthorization},
		{"inactive", func(tx *domain.PaymentTransaction) { tx.Active = false }, false, ReasonInactive},
		{"not successful", func(tx *domain.PaymentTransaction) { tx.Successful = false }, false, ReasonNotSuccessful},
		{"renewal disabled", func(tx *domain.PaymentTransaction) {
			delete(tx.Options, domain.OptionReAuthorizationEnabled)
		}, false, ReasonRenewalDisabled},
		{"unknown method", func(tx *domain.PaymentTransaction) { tx.PaymentMethod = "paypal" }, false, ReasonMethodUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := f.seedRenewable(t)
			tt.mutate(tx)

			applicable, reason, err := f.executor.IsApplicable(ctx, tx)
			require.NoError(t, err)
			assert.Equal(t, tt.applicable, applicable)
			assert.Equal(t, tt.reason, reason)
		})
	}
}

func TestExecutor_IsApplicable_CanceledAuthorization(t *testing.T) {
	f := newExecutorFixture(t)
	ctx := context.Background()

	tx := f.seedRenewable(t)

	cancel := tx.CreateDerived(domain.ActionCancel)
	cancel.Successful = true
	require.NoError(t, f.repo.Create(ctx, cancel))

	applicable, reason, err := f.executor.IsApplicable(ctx, tx)
	require.NoError(t, err)
	assert.False(t, applicable)
	assert.Equal(t, ReasonAlreadyCanceled, reason)
}

func TestExecutor_IsApplicable_AlreadyRenewed(t *testing.T) {
	f := newExecutorFixture(t)
	ctx := context.Background()

	tx := f.seedRenewable(t)

	renewal := tx.CreateDerived(domain.ActionReAuthorize)
	renewal.Successful = true
	require.NoError(t, f.repo.Create(ctx, renewal))

	applicable, reason, err := f.executor.IsApplicable(ctx, tx)
	require.NoError(t, err)
	assert.False(t, applicable)
	assert.Equal(t, ReasonAlreadyRenewed, reason)
}

func TestExecutor_ReAuthorize_Success(t *testing.T) {
	f := newExecutorFixture(t)
	ctx := context.Background()

	tx := f.seedRenewable(t)
	require.NoError(t, f.executor.ReAuthorize(ctx, tx))

	// original authorization retires from further scans, carrying the
	// extended expiry of the replacement hold
	original, err := f.repo.GetByID(ctx, tx.ID)
	require.NoError(t, err)
	assert.False(t, original.Active)
	assert.NotEmpty(t, original.Options[domain.OptionAuthorizationExpiresAt])

	renewals, err := f.repo.GetByIDs(ctx, []int64{tx.ID + 1})
	require.NoError(t, err)
	require.Len(t, renewals, 1)

	renewal := renewals[0]
	assert.Equal(t, domain.ActionReAuthorize, renewal.Action)
	assert.True(t, renewal.Successful)
	assert.True(t, renewal.Active)
	assert.Equal(t, tx.ID, *renewal.SourceTransactionID)
	assert.NotEmpty(t, renewal.PaymentIntentID)
	assert.NotEqual(t, "pi_old", renewal.PaymentIntentID)
	assert.Equal(t, 19.99, renewal.Amount)

	// old hold was released after the new one succeeded
	assert.Equal(t, 1, f.gateway.CallCount("cancel_authorization"))
	assert.Empty(t, f.notifier.failures)
}

func TestExecutor_ReAuthorize_Decline(t *testing.T) {
	f := newExecutorFixture(t)
	ctx := context.Background()

	tx := f.seedRenewable(t)
	f.gateway.Script("purchase", gateway.FailureResult(&gateway.GatewayError{
		Message:     "Your card was declined.",
		Code:        "card_declined",
		DeclineCode: "insufficient_funds",
	}))

	require.NoError(t, f.executor.ReAuthorize(ctx, tx))

	// original stays active so a later run can retry
	original, err := f.repo.GetByID(ctx, tx.ID)
	require.NoError(t, err)
	assert.True(t, original.Active)

	renewals, err := f.repo.GetByIDs(ctx, []int64{tx.ID + 1})
	require.NoError(t, err)
	require.Len(t, renewals, 1)
	assert.False(t, renewals[0].Successful)
	assert.False(t, renewals[0].Active)
	assert.Equal(t, "insufficient_funds", renewals[0].Response["decline_code"])

	require.Len(t, f.notifier.failures, 1)
	assert.Equal(t, "Your card was declined.", f.notifier.failures[0])
}

func TestExecutor_ReAuthorize_SkipsInapplicable(t *testing.T) {
	f := newExecutorFixture(t)
	ctx := context.Background()

	tx := f.seedRenewable(t)
	tx.Active = false

	require.NoError(t, f.executor.ReAuthorize(ctx, tx))
	assert.Zero(t, f.gateway.CallCount("purchase"))
}

func TestExecutor_ReAuthorize_RetiresOriginalAfterConflict(t *testing.T) {
	f := newExecutorFixture(t)
	ctx := context.Background()

	tx := f.seedRenewable(t)

	stale, err := f.repo.GetByID(ctx, tx.ID)
	require.NoError(t, err)

	// a concurrent writer bumps the version before the renewal retires it
	tx.SetOption(domain.OptionCustomerEmail, "buyer@example.com")
	require.NoError(t, f.repo.Update(ctx, tx))

	require.NoError(t, f.executor.ReAuthorize(ctx, stale))

	original, err := f.repo.GetByID(ctx, tx.ID)
	require.NoError(t, err)
	assert.False(t, original.Active)

	// the redelivered queue entry must not place a second hold
	require.NoError(t, f.executor.ReAuthorize(ctx, original))
	assert.Equal(t, 1, f.gateway.CallCount("purchase"))
}

func TestExecutor_ReAuthorize_Idempotent(t *testing.T) {
	f := newExecutorFixture(t)
	ctx := context.Background()

	tx := f.seedRenewable(t)
	require.NoError(t, f.executor.ReAuthorize(ctx, tx))

	// a redelivered queue entry sees the retired original and does nothing
	retired, err := f.repo.GetByID(ctx, tx.ID)
	require.NoError(t, err)
	require.NoError(t, f.executor.ReAuthorize(ctx, retired))

	assert.Equal(t, 1, f.gateway.CallCount("purchase"))
}
