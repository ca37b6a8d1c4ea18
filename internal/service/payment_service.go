package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/commercekit/stripe-service/internal/currency"
	"github.com/commercekit/stripe-service/internal/domain"
	"github.com/commercekit/stripe-service/internal/gateway"
	"github.com/commercekit/stripe-service/internal/method"
	"github.com/commercekit/stripe-service/internal/repository"
	"github.com/commercekit/stripe-service/pkg/logger"
)

// ErrInvalidTransactionState means the requested action does not apply to
// the transaction's current state.
var ErrInvalidTransactionState = errors.New("transaction is not in a state for this action")

// PurchaseRequest describes a charge or authorization attempt
type PurchaseRequest struct {
	EntityClass     string  `json:"entity_class" binding:"required"`
	EntityID        int64   `json:"entity_id" binding:"required"`
	Amount          float64 `json:"amount" binding:"required,gt=0"`
	Currency        string  `json:"currency" binding:"required"`
	PaymentMethod   string  `json:"payment_method"`
	PaymentMethodID string  `json:"payment_method_id"`
	Email           string  `json:"email"`
	Description     string  `json:"description"`
	// Capture settles immediately; false places a hold for later capture
	Capture bool `json:"capture"`
	// EnableReAuthorization opts the hold into background renewal
	EnableReAuthorization bool `json:"enable_re_authorization"`
}

// PaymentService executes payment operations and records them as
// transactions.
type PaymentService interface {
	Purchase(ctx context.Context, req *PurchaseRequest) (*domain.PaymentTransaction, error)
	Confirm(ctx context.Context, transactionID int64) (*domain.PaymentTransaction, error)
	Capture(ctx context.Context, transactionID int64, amount float64) (*domain.PaymentTransaction, error)
	Refund(ctx context.Context, transactionID int64, amount float64) (*domain.PaymentTransaction, error)
	Cancel(ctx context.Context, transactionID int64) (*domain.PaymentTransaction, error)
	GetTransaction(ctx context.Context, transactionID int64) (*domain.PaymentTransaction, error)
}

type paymentService struct {
	repo          repository.TransactionRepository
	registry      *method.Registry
	gateway       gateway.PaymentGateway
	defaultMethod string
	limits        *currency.Limits
	log           *logger.Logger
}

// NewPaymentService creates a payment service. defaultMethod names the
// registered method used when requests omit one; limits may be nil for no
// amount bounds.
func NewPaymentService(repo repository.TransactionRepository, registry *method.Registry, gw gateway.PaymentGateway, defaultMethod string, limits *currency.Limits, log *logger.Logger) PaymentService {
	return &paymentService{
		repo:          repo,
		registry:      registry,
		gateway:       gw,
		defaultMethod: defaultMethod,
		limits:        limits,
		log:           log,
	}
}

// Purchase charges or authorizes a new payment. When the request carries an
// email, the customer is resolved on the processor first so the saved card
// can be reused for renewals and repeat orders.
func (s *paymentService) Purchase(ctx context.Context, req *PurchaseRequest) (*domain.PaymentTransaction, error) {
	methodName := req.PaymentMethod
	if methodName == "" {
		methodName = s.defaultMethod
	}
	pm, err := s.registry.Get(methodName)
	if err != nil {
		return nil, err
	}

	if !s.limits.IsAboveMinimum(req.Amount, req.Currency) {
		return nil, fmt.Errorf("%w: below minimum for %s", domain.ErrInvalidAmount, req.Currency)
	}
	if !s.limits.IsBelowMaximum(req.Amount, req.Currency) {
		return nil, fmt.Errorf("%w: above maximum for %s", domain.ErrInvalidAmount, req.Currency)
	}

	action := domain.ActionAuthorize
	if req.Capture {
		action = domain.ActionPurchase
	}

	tx, err := domain.NewTransaction(action, methodName, req.Amount, req.Currency, req.EntityClass, req.EntityID)
	if err != nil {
		return nil, err
	}
	if req.PaymentMethodID != "" {
		tx.SetOption(method.OptionPaymentMethodID, req.PaymentMethodID)
	}
	if req.Email != "" {
		tx.SetOption(domain.OptionCustomerEmail, req.Email)
	}
	if req.Description != "" {
		tx.SetOption(method.OptionDescription, req.Description)
	}
	if req.EnableReAuthorization {
		tx.SetOption(domain.OptionReAuthorizationEnabled, true)
	}

	if req.Email != "" {
		result, err := s.gateway.FindOrCreateCustomer(ctx, req.Email, "")
		if err != nil {
			return nil, fmt.Errorf("failed to resolve customer: %w", err)
		}
		if result.Successful {
			if customerID, ok := result.Object["customer_id"].(string); ok {
				tx.SetOption(method.OptionCustomerID, customerID)
			}
		} else {
			s.log.Warn(fmt.Sprintf("Customer lookup for %s failed, charging without customer: %s", req.Email, result.Err.Error()))
		}
	}

	if err := s.repo.Create(ctx, tx); err != nil {
		return nil, err
	}

	result, err := pm.Execute(ctx, action, tx)
	if err != nil {
		tx.MarkFailed(err.Error(), "", "")
		if updateErr := s.repo.Update(ctx, tx); updateErr != nil {
			s.log.Error(fmt.Sprintf("Failed to persist gateway error for transaction %d: %v", tx.ID, updateErr))
		}
		return nil, err
	}

	return tx, s.applyResult(ctx, tx, result)
}

// Confirm completes a payment intent after client-side authentication
func (s *paymentService) Confirm(ctx context.Context, transactionID int64) (*domain.PaymentTransaction, error) {
	tx, err := s.repo.GetByID(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if tx.PaymentIntentID == "" {
		return nil, fmt.Errorf("%w: transaction %d has no payment intent", ErrInvalidTransactionState, tx.ID)
	}

	result, err := s.gateway.Confirm(ctx, tx.PaymentIntentID)
	if err != nil {
		return nil, err
	}

	return tx, s.applyResult(ctx, tx, result)
}

// Capture settles a held authorization. The settlement is recorded as a
// derived transaction; the authorization retires on success.
func (s *paymentService) Capture(ctx context.Context, transactionID int64, amount float64) (*domain.PaymentTransaction, error) {
	return s.derived(ctx, transactionID, domain.ActionCapture, amount, true)
}

// Refund returns funds against a settled payment
func (s *paymentService) Refund(ctx context.Context, transactionID int64, amount float64) (*domain.PaymentTransaction, error) {
	return s.derived(ctx, transactionID, domain.ActionRefund, amount, false)
}

// Cancel releases a held authorization without charging
func (s *paymentService) Cancel(ctx context.Context, transactionID int64) (*domain.PaymentTransaction, error) {
	return s.derived(ctx, transactionID, domain.ActionCancel, 0, true)
}

// GetTransaction retrieves a transaction by id
func (s *paymentService) GetTransaction(ctx context.Context, transactionID int64) (*domain.PaymentTransaction, error) {
	return s.repo.GetByID(ctx, transactionID)
}

// derived runs a follow-up action against an existing transaction.
// retireSource deactivates the source on success, for actions that consume
// it.
func (s *paymentService) derived(ctx context.Context, sourceID int64, action domain.TransactionAction, amount float64, retireSource bool) (*domain.PaymentTransaction, error) {
	source, err := s.repo.GetByID(ctx, sourceID)
	if err != nil {
		return nil, err
	}
	if !source.Successful {
		return nil, fmt.Errorf("%w: transaction %d was not successful", ErrInvalidTransactionState, source.ID)
	}
	if source.PaymentIntentID == "" {
		return nil, fmt.Errorf("%w: transaction %d has no payment intent", ErrInvalidTransactionState, source.ID)
	}

	pm, err := s.registry.Get(source.PaymentMethod)
	if err != nil {
		return nil, err
	}
	if !pm.Supports(action) {
		return nil, fmt.Errorf("%w: %s on %s", domain.ErrActionNotSupported, action, source.PaymentMethod)
	}

	tx := source.CreateDerived(action)
	tx.PaymentIntentID = source.PaymentIntentID
	if amount > 0 {
		tx.Amount = amount
	}
	if err := s.repo.Create(ctx, tx); err != nil {
		return nil, err
	}

	result, err := pm.Execute(ctx, action, tx)
	if err != nil {
		tx.MarkFailed(err.Error(), "", "")
		if updateErr := s.repo.Update(ctx, tx); updateErr != nil {
			s.log.Error(fmt.Sprintf("Failed to persist gateway error for transaction %d: %v", tx.ID, updateErr))
		}
		return nil, err
	}

	if err := s.applyResult(ctx, tx, result); err != nil {
		return nil, err
	}

	if tx.Successful && retireSource {
		source.Deactivate()
		if err := s.repo.Update(ctx, source); err != nil && !errors.Is(err, domain.ErrTransactionConflict) {
			s.log.Error(fmt.Sprintf("Failed to retire transaction %d after %s: %v", source.ID, action, err))
		}
	}

	return tx, nil
}

// applyResult persists the gateway outcome on the transaction
func (s *paymentService) applyResult(ctx context.Context, tx *domain.PaymentTransaction, result *gateway.ActionResult) error {
	tx.Response = result.ToMap()
	if result.Successful {
		if id := result.PaymentIntentID(); id != "" {
			tx.PaymentIntentID = id
		}
		if id := result.ChargeID(); id != "" {
			tx.ChargeID = id
		}
		tx.MarkSuccessful()
	} else {
		tx.MarkFailed(result.Err.Message, result.Err.Code, result.Err.DeclineCode)
	}

	if err := s.repo.Update(ctx, tx); err != nil {
		return fmt.Errorf("failed to persist transaction %d: %w", tx.ID, err)
	}
	return nil
}
