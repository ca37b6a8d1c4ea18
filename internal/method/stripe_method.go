package method

import (
	"context"
	"fmt"

	"github.com/commercekit/stripe-service/internal/domain"
	"github.com/commercekit/stripe-service/internal/gateway"
	"github.com/commercekit/stripe-service/pkg/logger"
)

// Option keys the Stripe method reads from a transaction
const (
	OptionPaymentMethodID = "payment_method_id"
	OptionCustomerID      = "customer_id"
	OptionDescription     = "description"
)

// StripeMethod executes transaction actions through the Stripe gateway
type StripeMethod struct {
	identifier string
	gateway    gateway.PaymentGateway
	log        *logger.Logger
}

// NewStripeMethod creates a Stripe payment method. The identifier is
// configurable so several Stripe accounts can coexist under distinct names.
func NewStripeMethod(identifier string, gw gateway.PaymentGateway, log *logger.Logger) *StripeMethod {
	if identifier == "" {
		identifier = "stripe"
	}
	return &StripeMethod{
		identifier: identifier,
		gateway:    gw,
		log:        log,
	}
}

// Identifier returns the name transactions store in payment_method
func (m *StripeMethod) Identifier() string {
	return m.identifier
}

// Supports reports whether the method can execute the given action
func (m *StripeMethod) Supports(action domain.TransactionAction) bool {
	switch action {
	case domain.ActionAuthorize,
		domain.ActionPurchase,
		domain.ActionCapture,
		domain.ActionRefund,
		domain.ActionCancel,
		domain.ActionReAuthorize:
		return true
	default:
		return false
	}
}

// Execute runs the action for the transaction
func (m *StripeMethod) Execute(ctx context.Context, action domain.TransactionAction, tx *domain.PaymentTransaction) (*gateway.ActionResult, error) {
	if !m.Supports(action) {
		return nil, fmt.Errorf("%w: %s on %s", domain.ErrActionNotSupported, action, m.identifier)
	}

	switch action {
	case domain.ActionPurchase:
		return m.charge(ctx, tx, false)
	case domain.ActionAuthorize:
		return m.charge(ctx, tx, true)
	case domain.ActionCapture:
		return m.gateway.Capture(ctx, tx.PaymentIntentID, tx.Amount, tx.Currency)
	case domain.ActionRefund:
		return m.gateway.Refund(ctx, tx.PaymentIntentID, tx.Amount, tx.Currency)
	case domain.ActionCancel:
		return m.gateway.CancelAuthorization(ctx, tx.PaymentIntentID)
	case domain.ActionReAuthorize:
		return m.reAuthorize(ctx, tx)
	default:
		return nil, fmt.Errorf("%w: %s", domain.ErrActionNotSupported, action)
	}
}

func (m *StripeMethod) charge(ctx context.Context, tx *domain.PaymentTransaction, manualCapture bool) (*gateway.ActionResult, error) {
	req := &gateway.PurchaseRequest{
		Amount:        tx.Amount,
		Currency:      tx.Currency,
		ManualCapture: manualCapture,
		Metadata: map[string]string{
			"entity_class": tx.EntityClass,
			"entity_id":    fmt.Sprintf("%d", tx.EntityID),
		},
	}
	if v, ok := tx.Options[OptionPaymentMethodID].(string); ok {
		req.PaymentMethodID = v
	}
	if v, ok := tx.Options[OptionCustomerID].(string); ok {
		req.CustomerID = v
	}
	if v, ok := tx.Options[domain.OptionCustomerEmail].(string); ok {
		req.Email = v
	}
	if v, ok := tx.Options[OptionDescription].(string); ok {
		req.Description = v
	}

	return m.gateway.Purchase(ctx, req)
}

// reAuthorize renews an expiring hold by placing a fresh off-session
// authorization for the same amount and then releasing the old one. The
// cancel only runs after the new hold succeeds, so the order is covered at
// every point. A failed cancel leaves a short double hold that expires on
// its own, which beats losing the order's only hold.
func (m *StripeMethod) reAuthorize(ctx context.Context, tx *domain.PaymentTransaction) (*gateway.ActionResult, error) {
	customerID, _ := tx.Options[OptionCustomerID].(string)
	paymentMethodID, _ := tx.Options[OptionPaymentMethodID].(string)
	if customerID == "" || paymentMethodID == "" {
		return gateway.FailureResult(&gateway.GatewayError{
			Message: "transaction has no saved customer or payment method for off-session renewal",
			Code:    "missing_payment_credentials",
		}), nil
	}

	req := &gateway.PurchaseRequest{
		Amount:          tx.Amount,
		Currency:        tx.Currency,
		CustomerID:      customerID,
		PaymentMethodID: paymentMethodID,
		ManualCapture:   true,
		OffSession:      true,
		Metadata: map[string]string{
			"entity_class": tx.EntityClass,
			"entity_id":    fmt.Sprintf("%d", tx.EntityID),
			"renewal_of":   tx.PaymentIntentID,
		},
	}

	result, err := m.gateway.Purchase(ctx, req)
	if err != nil {
		return nil, err
	}
	if !result.Successful {
		return result, nil
	}

	if tx.PaymentIntentID != "" {
		cancelResult, cancelErr := m.gateway.CancelAuthorization(ctx, tx.PaymentIntentID)
		if cancelErr != nil {
			m.log.Error(fmt.Sprintf("Failed to release previous hold %s: %v", tx.PaymentIntentID, cancelErr))
		} else if !cancelResult.Successful {
			m.log.Error(fmt.Sprintf("Previous hold %s not released: %s", tx.PaymentIntentID, cancelResult.Err.Error()))
		}
	}

	return result, nil
}
