package reauthorize

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/commercekit/stripe-service/internal/domain"
	"github.com/commercekit/stripe-service/internal/method"
	"github.com/commercekit/stripe-service/internal/repository"
	"github.com/commercekit/stripe-service/pkg/logger"
)

// Skip reasons reported by IsApplicable
const (
	ReasonNotAuthorization  = "not_an_authorization"
	ReasonInactive          = "inactive"
	ReasonNotSuccessful     = "not_successful"
	ReasonRenewalDisabled   = "renewal_not_enabled"
	ReasonAlreadyCanceled   = "authorization_canceled"
	ReasonAlreadyRenewed    = "authorization_already_renewed"
	ReasonMethodUnknown     = "payment_method_not_registered"
	ReasonMethodUnsupported = "payment_method_cannot_renew"
)

// authorizationValidity is roughly how long card networks keep an
// uncaptured hold before releasing it.
const authorizationValidity = 7 * 24 * time.Hour

// retireAttempts bounds the optimistic-lock retries when retiring a
// renewed original.
const retireAttempts = 3

// Notifier alerts operators about renewal outcomes. Delivery is best
// effort; implementations must not block the renewal path on failures.
type Notifier interface {
	ReAuthorizationFailed(ctx context.Context, tx *domain.PaymentTransaction, reason string)
}

// Executor renews expiring card holds. Candidates come from a Provider;
// each one is re-checked against the live transaction state before any
// money moves, so stale queue entries are harmless.
type Executor struct {
	repo     repository.TransactionRepository
	registry *method.Registry
	notifier Notifier
	log      *logger.Logger
}

// NewExecutor creates a renewal executor
func NewExecutor(repo repository.TransactionRepository, registry *method.Registry, notifier Notifier, log *logger.Logger) *Executor {
	return &Executor{
		repo:     repo,
		registry: registry,
		notifier: notifier,
		log:      log,
	}
}

// IsApplicable decides whether the transaction still needs renewal. Checks
// short-circuit from cheapest to most expensive; only the sibling checks
// touch the database.
func (e *Executor) IsApplicable(ctx context.Context, tx *domain.PaymentTransaction) (bool, string, error) {
	if tx.Action != domain.ActionAuthorize {
		return false, ReasonNotAuthorization, nil
	}
	if !tx.Active {
		return false, ReasonInactive, nil
	}
	if !tx.Successful {
		return false, ReasonNotSuccessful, nil
	}
	if !tx.ReAuthorizationEnabled() {
		return false, ReasonRenewalDisabled, nil
	}

	canceled, err := e.repo.HasSuccessfulSibling(ctx, tx.ID, domain.ActionCancel)
	if err != nil {
		return false, "", fmt.Errorf("failed to check cancellations: %w", err)
	}
	if canceled {
		return false, ReasonAlreadyCanceled, nil
	}

	// A redelivered chunk must not place a second hold for the same
	// authorization, so an existing successful renewal disqualifies it
	// even if the original was never retired.
	renewed, err := e.repo.HasSuccessfulSibling(ctx, tx.ID, domain.ActionReAuthorize)
	if err != nil {
		return false, "", fmt.Errorf("failed to check prior renewals: %w", err)
	}
	if renewed {
		return false, ReasonAlreadyRenewed, nil
	}

	pm, err := e.registry.Get(tx.PaymentMethod)
	if err != nil {
		if errors.Is(err, domain.ErrMethodNotRegistered) {
			return false, ReasonMethodUnknown, nil
		}
		return false, "", err
	}
	if !pm.Supports(domain.ActionReAuthorize) {
		return false, ReasonMethodUnsupported, nil
	}

	return true, "", nil
}

// ReAuthorize renews the hold behind the given transaction. The renewal is
// recorded as a derived transaction so the original keeps its history; on
// success the original is retired from further renewal scans.
func (e *Executor) ReAuthorize(ctx context.Context, tx *domain.PaymentTransaction) error {
	applicable, reason, err := e.IsApplicable(ctx, tx)
	if err != nil {
		return err
	}
	if !applicable {
		e.log.Debug(fmt.Sprintf("Skipping renewal for transaction %d: %s", tx.ID, reason))
		return nil
	}

	pm, err := e.registry.Get(tx.PaymentMethod)
	if err != nil {
		return err
	}

	renewal := tx.CreateDerived(domain.ActionReAuthorize)
	renewal.PaymentIntentID = tx.PaymentIntentID
	if err := e.repo.Create(ctx, renewal); err != nil {
		return fmt.Errorf("failed to record renewal attempt: %w", err)
	}

	result, err := pm.Execute(ctx, domain.ActionReAuthorize, renewal)
	if err != nil {
		renewal.MarkFailed(err.Error(), "", "")
		if updateErr := e.repo.Update(ctx, renewal); updateErr != nil {
			e.log.Error(fmt.Sprintf("Failed to persist renewal error for transaction %d: %v", renewal.ID, updateErr))
		}
		return fmt.Errorf("renewal of transaction %d failed: %w", tx.ID, err)
	}

	renewal.Response = result.ToMap()
	if !result.Successful {
		renewal.MarkFailed(result.Err.Message, result.Err.Code, result.Err.DeclineCode)
		if err := e.repo.Update(ctx, renewal); err != nil {
			return fmt.Errorf("failed to persist declined renewal: %w", err)
		}
		e.log.Warn(fmt.Sprintf("Renewal declined for transaction %d: %s", tx.ID, result.Err.Error()))
		if e.notifier != nil {
			e.notifier.ReAuthorizationFailed(ctx, tx, result.Err.Message)
		}
		return nil
	}

	renewal.PaymentIntentID = result.PaymentIntentID()
	renewal.ChargeID = result.ChargeID()
	renewal.MarkSuccessful()
	if err := e.repo.Update(ctx, renewal); err != nil {
		return fmt.Errorf("failed to persist renewal: %w", err)
	}

	renewedUntil := renewal.CreatedAt.Add(authorizationValidity)
	if err := e.retire(ctx, tx, renewedUntil); err != nil {
		return fmt.Errorf("failed to retire renewed transaction %d: %w", tx.ID, err)
	}

	e.log.Info(fmt.Sprintf("Renewed hold for transaction %d as transaction %d", tx.ID, renewal.ID))
	return nil
}

// retire records the extended expiry on the original and deactivates it so
// renewal scans stop yielding it. Concurrent writers (a webhook applying
// the same authorization's settlement) can bump the version mid-flight, so
// conflicts re-read and re-apply instead of leaving the original active.
func (e *Executor) retire(ctx context.Context, tx *domain.PaymentTransaction, renewedUntil time.Time) error {
	tx.SetOption(domain.OptionAuthorizationExpiresAt, renewedUntil.Format(time.RFC3339))
	tx.Deactivate()
	err := e.repo.Update(ctx, tx)

	for attempt := 0; errors.Is(err, domain.ErrTransactionConflict) && attempt < retireAttempts; attempt++ {
		current, loadErr := e.repo.GetByID(ctx, tx.ID)
		if loadErr != nil {
			return fmt.Errorf("failed to reload transaction after conflict: %w", loadErr)
		}
		if !current.Active {
			return nil
		}
		e.log.Warn(fmt.Sprintf("Transaction %d changed during renewal, retrying retire", tx.ID))
		current.SetOption(domain.OptionAuthorizationExpiresAt, renewedUntil.Format(time.RFC3339))
		current.Deactivate()
		err = e.repo.Update(ctx, current)
	}
	return err
}
