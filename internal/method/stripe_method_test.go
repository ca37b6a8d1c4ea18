package method

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/commercekit/stripe-service/internal/domain"
	"github.com/commercekit/stripe-service/internal/gateway"
	"github.com/commercekit/stripe-service/pkg/logger"
)

func newTestMethod(t *testing.T) (*StripeMethod, *gateway.MockGateway) {
	t.Helper()
	gw := gateway.NewMockGateway()
	return NewStripeMethod("stripe", gw, logger.Get()), gw
}

func newAuthorizedTx(t *testing.T) *domain.PaymentTransaction {
	t.Helper()
	tx, err := domain.NewTransaction(domain.ActionAuthorize, "stripe", 19.99, "USD", "Order", 42)
	require.NoError(t, err)
	tx.ID = 1
	tx.Successful = true
	tx.PaymentIntentID = "pi_old"
	tx.SetOption(OptionCustomerID, "cus_123")
	tx.SetOption(OptionPaymentMethodID, "pm_123")
	return tx
}

func TestStripeMethod_Supports(t *testing.T) {
	m, _ := newTestMethod(t)

	for _, action := range []domain.TransactionAction{
		domain.ActionAuthorize, domain.ActionPurchase, domain.ActionCapture,
		domain.ActionRefund, domain.ActionCancel, domain.ActionReAuthorize,
	} {
		assert.True(t, m.Supports(action), string(action))
	}
	assert.False(t, m.Supports(domain.TransactionAction("payout")))
}

func TestStripeMethod_Execute_UnsupportedAction(t *testing.T) {
	m, _ := newTestMethod(t)

	_, err := m.Execute(context.Background(), domain.TransactionAction("payout"), newAuthorizedTx(t))
	assert.ErrorIs(t, err, domain.ErrActionNotSupported)
}

func TestStripeMethod_ReAuthorize_PlacesNewHoldThenReleasesOld(t *testing.T) {
	m, gw := newTestMethod(t)
	tx := newAuthorizedTx(t)

	result, err := m.Execute(context.Background(), domain.ActionReAuthorize, tx)
	require.NoError(t, err)
	assert.True(t, result.Successful)
	assert.NotEmpty(t, result.PaymentIntentID())
	assert.NotEqual(t, "pi_old", result.PaymentIntentID())

	require.Len(t, gw.Calls(), 2)
	assert.Equal(t, "purchase", gw.Calls()[0].Operation)
	assert.Equal(t, true, gw.Calls()[0].Args["manual_capture"])
	assert.Equal(t, true, gw.Calls()[0].Args["off_session"])
	assert.Equal(t, "cancel_authorization", gw.Calls()[1].Operation)
	assert.Equal(t, "pi_old", gw.Calls()[1].Args["payment_intent_id"])
}

func TestStripeMethod_ReAuthorize_DeclineSkipsCancel(t *testing.T) {
	m, gw := newTestMethod(t)
	tx := newAuthorizedTx(t)

	gw.Script("purchase", gateway.FailureResult(&gateway.GatewayError{
		Message:     "Your card was declined.",
		Code:        "card_declined",
		DeclineCode: "insufficient_funds",
	}))

	result, err := m.Execute(context.Background(), domain.ActionReAuthorize, tx)
	require.NoError(t, err)
	assert.False(t, result.Successful)
	assert.Equal(t, "insufficient_funds", result.Err.DeclineCode)

	// the old hold must stay in place when the renewal is declined
	assert.Zero(t, gw.CallCount("cancel_authorization"))
}

func TestStripeMethod_ReAuthorize_MissingCredentials(t *testing.T) {
	m, gw := newTestMethod(t)
	tx := newAuthorizedTx(t)
	delete(tx.Options, OptionPaymentMethodID)

	result, err := m.Execute(context.Background(), domain.ActionReAuthorize, tx)
	require.NoError(t, err)
	assert.False(t, result.Successful)
	assert.Equal(t, "missing_payment_credentials", result.Err.Code)
	assert.Zero(t, gw.CallCount("purchase"))
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	m, _ := newTestMethod(t)

	_, err := reg.Get("stripe")
	assert.ErrorIs(t, err, domain.ErrMethodNotRegistered)

	reg.Register(m)
	got, err := reg.Get("stripe")
	require.NoError(t, err)
	assert.Equal(t, "stripe", got.Identifier())
	assert.True(t, reg.Has("stripe"))
	assert.False(t, reg.Has("paypal"))
}
