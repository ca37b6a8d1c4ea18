package domain

import (
	"time"
)

// TransactionAction identifies the kind of attempt a transaction records
// against its order.
type TransactionAction string

const (
	ActionAuthorize   TransactionAction = "authorize"
	ActionCapture     TransactionAction = "capture"
	ActionRefund      TransactionAction = "refund"
	ActionCancel      TransactionAction = "cancel"
	ActionReAuthorize TransactionAction = "re_authorize"
	ActionPurchase    TransactionAction = "purchase"
)

// Transaction option keys. Options travel with the transaction from checkout
// through the background workers.
const (
	OptionReAuthorizationEnabled = "re_authorization_enabled"
	OptionCustomerEmail          = "customer_email"
	OptionAuthorizationExpiresAt = "authorization_expires_at"
)

// Response map keys populated from gateway results.
const (
	ResponsePaymentIntentID = "payment_intent_id"
	ResponseChargeID        = "charge_id"
	ResponseCustomerID      = "customer_id"
	ResponseError           = "error"
	ResponseErrorCode       = "error_code"
	ResponseDeclineCode     = "decline_code"
)

// PaymentTransaction records one attempt or action against an order.
// Derived actions (capture of an authorize, re-authorize of an authorize)
// reference their origin through SourceTransactionID, forming one chain per
// original authorization.
type PaymentTransaction struct {
	ID                  int64             `json:"id"`
	Action              TransactionAction `json:"action"`
	Amount              float64           `json:"amount"`
	Currency            string            `json:"currency"`
	PaymentMethod       string            `json:"payment_method"`
	Active              bool              `json:"active"`
	Successful          bool              `json:"successful"`
	EntityClass         string            `json:"entity_class"`
	EntityID            int64             `json:"entity_id"`
	PaymentIntentID     string            `json:"payment_intent_id,omitempty"`
	ChargeID            string            `json:"charge_id,omitempty"`
	Options             map[string]any    `json:"options,omitempty"`
	Response            map[string]any    `json:"response,omitempty"`
	SourceTransactionID *int64            `json:"source_transaction_id,omitempty"`
	RefundedAmount      float64           `json:"refunded_amount"`
	Version             int64             `json:"version"`
	CreatedAt           time.Time         `json:"created_at"`
	UpdatedAt           time.Time         `json:"updated_at"`
}

// NewTransaction creates a transaction for the given order reference
func NewTransaction(action TransactionAction, method string, amount float64, currency string, entityClass string, entityID int64) (*PaymentTransaction, error) {
	if method == "" {
		return nil, ErrPaymentMethodRequired
	}
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if currency == "" {
		return nil, ErrCurrencyRequired
	}

	now := time.Now().UTC()
	return &PaymentTransaction{
		Action:        action,
		Amount:        amount,
		Currency:      currency,
		PaymentMethod: method,
		Active:        true,
		EntityClass:   entityClass,
		EntityID:      entityID,
		Options:       make(map[string]any),
		Response:      make(map[string]any),
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// CreateDerived creates a follow-up transaction referencing this one as its
// source, copying amount, currency and order linkage.
func (t *PaymentTransaction) CreateDerived(action TransactionAction) *PaymentTransaction {
	now := time.Now().UTC()
	id := t.ID
	derived := &PaymentTransaction{
		Action:        action,
		Amount:        t.Amount,
		Currency:      t.Currency,
		PaymentMethod: t.PaymentMethod,
		Active:        true,
		EntityClass:   t.EntityClass,
		EntityID:      t.EntityID,
		Options:       make(map[string]any, len(t.Options)),
		Response:      make(map[string]any),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if t.ID != 0 {
		derived.SourceTransactionID = &id
	}
	for k, v := range t.Options {
		derived.Options[k] = v
	}
	return derived
}

// ChainRootID returns the id of the original transaction this one derives
// from, or its own id if it is the chain root.
func (t *PaymentTransaction) ChainRootID() int64 {
	if t.SourceTransactionID != nil {
		return *t.SourceTransactionID
	}
	return t.ID
}

// ReAuthorizationEnabled reports whether the checkout flagged this
// transaction for background hold renewal.
func (t *PaymentTransaction) ReAuthorizationEnabled() bool {
	v, ok := t.Options[OptionReAuthorizationEnabled]
	if !ok {
		return false
	}
	switch b := v.(type) {
	case bool:
		return b
	case string:
		return b == "true" || b == "1"
	case float64:
		return b != 0
	case int:
		return b != 0
	default:
		return false
	}
}

// MarkSuccessful applies a successful gateway outcome
func (t *PaymentTransaction) MarkSuccessful() {
	t.Successful = true
	t.UpdatedAt = time.Now().UTC()
}

// MarkFailed records a failed gateway outcome and retires the record so
// redelivered events and renewal scans skip it.
func (t *PaymentTransaction) MarkFailed(errMessage, errCode, declineCode string) {
	t.Successful = false
	t.Active = false
	if t.Response == nil {
		t.Response = make(map[string]any)
	}
	t.Response[ResponseError] = errMessage
	if errCode != "" {
		t.Response[ResponseErrorCode] = errCode
	}
	if declineCode != "" {
		t.Response[ResponseDeclineCode] = declineCode
	}
	t.UpdatedAt = time.Now().UTC()
}

// Deactivate retires the transaction from further processing
func (t *PaymentTransaction) Deactivate() {
	t.Active = false
	t.UpdatedAt = time.Now().UTC()
}

// AppendRefund accumulates a refunded amount reported by the processor.
// Applying the same total twice is a no-op, which keeps webhook redelivery
// safe.
func (t *PaymentTransaction) AppendRefund(totalRefunded float64) bool {
	if totalRefunded <= t.RefundedAmount {
		return false
	}
	t.RefundedAmount = totalRefunded
	t.UpdatedAt = time.Now().UTC()
	return true
}

// SetOption sets a transaction option
func (t *PaymentTransaction) SetOption(key string, value any) {
	if t.Options == nil {
		t.Options = make(map[string]any)
	}
	t.Options[key] = value
	t.UpdatedAt = time.Now().UTC()
}
