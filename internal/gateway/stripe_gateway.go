package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"

	"github.com/commercekit/stripe-service/internal/currency"
)

// StripeGateway implements PaymentGateway against the Stripe API. Each
// gateway carries its own API client, so integrations with different
// credentials can coexist in one process.
type StripeGateway struct {
	config *StripeGatewayConfig
	client *client.API
}

// StripeGatewayConfig holds configuration for the Stripe gateway
type StripeGatewayConfig struct {
	SecretKey string
	Locale    string
	// EnableMonitoring tags outbound requests so processor-side dashboards
	// can separate this integration's traffic.
	EnableMonitoring bool
}

// NewStripeGateway creates a new Stripe gateway. Construction fails fast
// when the secret key is missing so a misconfigured service never reaches
// its first charge.
func NewStripeGateway(config *StripeGatewayConfig) (*StripeGateway, error) {
	if config == nil {
		return nil, fmt.Errorf("stripe config is required")
	}
	if config.SecretKey == "" {
		return nil, fmt.Errorf("stripe secret key is required")
	}

	sc := &client.API{}
	sc.Init(config.SecretKey, nil)

	return &StripeGateway{config: config, client: sc}, nil
}

// Name returns the gateway name
func (g *StripeGateway) Name() string {
	return "stripe"
}

// Purchase authorizes (and optionally captures) a charge through Stripe
func (g *StripeGateway) Purchase(ctx context.Context, req *PurchaseRequest) (*ActionResult, error) {
	if req == nil {
		return nil, fmt.Errorf("purchase request is required")
	}

	minor, err := currency.ToMinorUnits(req.Amount, req.Currency)
	if err != nil {
		return nil, err
	}

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(minor),
		Currency: stripe.String(req.Currency),
		Metadata: make(map[string]string),
	}
	params.Context = ctx

	if req.PaymentMethodID != "" {
		params.PaymentMethod = stripe.String(req.PaymentMethodID)
		params.Confirm = stripe.Bool(true)
	}
	if req.CustomerID != "" {
		params.Customer = stripe.String(req.CustomerID)
	}
	if req.Description != "" {
		params.Description = stripe.String(req.Description)
	}
	if req.ManualCapture {
		params.CaptureMethod = stripe.String(string(stripe.PaymentIntentCaptureMethodManual))
	}
	if req.OffSession {
		params.OffSession = stripe.Bool(true)
	}
	for k, v := range req.Metadata {
		params.Metadata[k] = v
	}
	if g.config.EnableMonitoring {
		params.Metadata["monitoring"] = "true"
	}

	pi, err := g.client.PaymentIntents.New(params)
	if err != nil {
		return normalizeError(err)
	}

	return intentResult(pi), nil
}

// Confirm confirms a payment intent after client-side completion
func (g *StripeGateway) Confirm(ctx context.Context, paymentIntentID string) (*ActionResult, error) {
	if paymentIntentID == "" {
		return nil, fmt.Errorf("payment intent ID is required")
	}

	params := &stripe.PaymentIntentConfirmParams{}
	params.Context = ctx

	pi, err := g.client.PaymentIntents.Confirm(paymentIntentID, params)
	if err != nil {
		return normalizeError(err)
	}

	return intentResult(pi), nil
}

// Capture settles a previously authorized payment intent
func (g *StripeGateway) Capture(ctx context.Context, paymentIntentID string, amount float64, currencyCode string) (*ActionResult, error) {
	if paymentIntentID == "" {
		return nil, fmt.Errorf("payment intent ID is required")
	}

	params := &stripe.PaymentIntentCaptureParams{}
	params.Context = ctx

	if amount > 0 {
		minor, err := currency.ToMinorUnits(amount, currencyCode)
		if err != nil {
			return nil, err
		}
		params.AmountToCapture = stripe.Int64(minor)
	}

	pi, err := g.client.PaymentIntents.Capture(paymentIntentID, params)
	if err != nil {
		return normalizeError(err)
	}

	return intentResult(pi), nil
}

// Refund returns funds against a captured payment intent
func (g *StripeGateway) Refund(ctx context.Context, paymentIntentID string, amount float64, currencyCode string) (*ActionResult, error) {
	if paymentIntentID == "" {
		return nil, fmt.Errorf("payment intent ID is required")
	}

	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(paymentIntentID),
	}
	params.Context = ctx

	if amount > 0 {
		minor, err := currency.ToMinorUnits(amount, currencyCode)
		if err != nil {
			return nil, err
		}
		params.Amount = stripe.Int64(minor)
	}

	ref, err := g.client.Refunds.New(params)
	if err != nil {
		return normalizeError(err)
	}

	object := map[string]any{
		"refund_id": ref.ID,
		"status":    string(ref.Status),
	}
	if ref.Charge != nil {
		object["charge_id"] = ref.Charge.ID
	}
	return SuccessResult(object), nil
}

// CancelAuthorization releases an uncaptured hold
func (g *StripeGateway) CancelAuthorization(ctx context.Context, paymentIntentID string) (*ActionResult, error) {
	if paymentIntentID == "" {
		return nil, fmt.Errorf("payment intent ID is required")
	}

	params := &stripe.PaymentIntentCancelParams{}
	params.Context = ctx

	pi, err := g.client.PaymentIntents.Cancel(paymentIntentID, params)
	if err != nil {
		return normalizeError(err)
	}

	return intentResult(pi), nil
}

// FindOrCreateCustomer looks a customer up by email, creating one when no
// match exists.
func (g *StripeGateway) FindOrCreateCustomer(ctx context.Context, email, name string) (*ActionResult, error) {
	if email == "" {
		return nil, fmt.Errorf("email is required")
	}

	listParams := &stripe.CustomerListParams{
		Email: stripe.String(email),
	}
	listParams.Context = ctx
	listParams.Limit = stripe.Int64(1)

	iter := g.client.Customers.List(listParams)
	for iter.Next() {
		cust := iter.Customer()
		return SuccessResult(map[string]any{
			"customer_id": cust.ID,
			"email":       cust.Email,
			"created":     false,
		}), nil
	}
	if err := iter.Err(); err != nil {
		return normalizeError(err)
	}

	createParams := &stripe.CustomerParams{
		Email: stripe.String(email),
	}
	createParams.Context = ctx
	if name != "" {
		createParams.Name = stripe.String(name)
	}

	cust, err := g.client.Customers.New(createParams)
	if err != nil {
		return normalizeError(err)
	}

	return SuccessResult(map[string]any{
		"customer_id": cust.ID,
		"email":       cust.Email,
		"created":     true,
	}), nil
}

// CreateOrUpdateWebhookEndpoint registers the notification URL with Stripe,
// reusing an existing endpoint with the same URL. The signing secret is only
// present when the endpoint is newly created; Stripe never returns it again.
func (g *StripeGateway) CreateOrUpdateWebhookEndpoint(ctx context.Context, url string, enabledEvents []string) (*ActionResult, error) {
	if url == "" {
		return nil, fmt.Errorf("endpoint URL is required")
	}

	listParams := &stripe.WebhookEndpointListParams{}
	listParams.Context = ctx

	iter := g.client.WebhookEndpoints.List(listParams)
	for iter.Next() {
		ep := iter.WebhookEndpoint()
		if ep.URL != url {
			continue
		}

		updateParams := &stripe.WebhookEndpointParams{
			EnabledEvents: stripe.StringSlice(enabledEvents),
		}
		updateParams.Context = ctx

		updated, err := g.client.WebhookEndpoints.Update(ep.ID, updateParams)
		if err != nil {
			return normalizeError(err)
		}
		return SuccessResult(map[string]any{
			"endpoint_id": updated.ID,
			"created":     false,
		}), nil
	}
	if err := iter.Err(); err != nil {
		return normalizeError(err)
	}

	createParams := &stripe.WebhookEndpointParams{
		URL:           stripe.String(url),
		EnabledEvents: stripe.StringSlice(enabledEvents),
	}
	createParams.Context = ctx

	ep, err := g.client.WebhookEndpoints.New(createParams)
	if err != nil {
		return normalizeError(err)
	}

	return SuccessResult(map[string]any{
		"endpoint_id": ep.ID,
		"secret":      ep.Secret,
		"created":     true,
	}), nil
}

// DeleteWebhookEndpoint removes a registered endpoint
func (g *StripeGateway) DeleteWebhookEndpoint(ctx context.Context, endpointID string) (*ActionResult, error) {
	if endpointID == "" {
		return nil, fmt.Errorf("endpoint ID is required")
	}

	params := &stripe.WebhookEndpointParams{}
	params.Context = ctx

	if _, err := g.client.WebhookEndpoints.Del(endpointID, params); err != nil {
		return normalizeError(err)
	}

	return SuccessResult(map[string]any{"endpoint_id": endpointID}), nil
}

// intentResult maps a payment intent to the uniform result shape. Statuses
// that still need customer action are not successful outcomes for
// server-initiated operations.
func intentResult(pi *stripe.PaymentIntent) *ActionResult {
	object := map[string]any{
		"payment_intent_id": pi.ID,
		"status":            string(pi.Status),
	}
	if pi.ClientSecret != "" {
		object["client_secret"] = pi.ClientSecret
	}
	if pi.LatestCharge != nil {
		object["charge_id"] = pi.LatestCharge.ID
	}

	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded,
		stripe.PaymentIntentStatusRequiresCapture,
		stripe.PaymentIntentStatusCanceled,
		stripe.PaymentIntentStatusProcessing:
		return SuccessResult(object)
	default:
		result := FailureResult(&GatewayError{
			Message: fmt.Sprintf("payment intent requires further action: %s", pi.Status),
			Code:    string(pi.Status),
		})
		result.Object = object
		return result
	}
}

// normalizeError converts Stripe API errors into failed results so callers
// persist declines like any other outcome. Non-Stripe errors (transport,
// context cancellation) stay errors.
func normalizeError(err error) (*ActionResult, error) {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		return FailureResult(&GatewayError{
			Message:     stripeErr.Msg,
			Code:        string(stripeErr.Code),
			DeclineCode: string(stripeErr.DeclineCode),
		}), nil
	}
	return nil, err
}
