package gateway

import (
	"context"
	"fmt"
)

// PaymentGateway abstracts the card processor. All money-moving operations
// return an ActionResult instead of an error so callers can persist declines
// the same way they persist approvals; only transport-level failures surface
// as Go errors.
type PaymentGateway interface {
	// Purchase authorizes (and optionally captures) a charge.
	Purchase(ctx context.Context, req *PurchaseRequest) (*ActionResult, error)

	// Confirm confirms a previously created payment intent after the
	// customer completed any required client-side action.
	Confirm(ctx context.Context, paymentIntentID string) (*ActionResult, error)

	// Capture settles a previously authorized payment intent.
	Capture(ctx context.Context, paymentIntentID string, amount float64, currency string) (*ActionResult, error)

	// Refund returns funds against a captured payment intent. A zero
	// amount refunds the full charge.
	Refund(ctx context.Context, paymentIntentID string, amount float64, currency string) (*ActionResult, error)

	// CancelAuthorization releases an uncaptured hold.
	CancelAuthorization(ctx context.Context, paymentIntentID string) (*ActionResult, error)

	// FindOrCreateCustomer looks a customer up by email and creates one
	// when no match exists.
	FindOrCreateCustomer(ctx context.Context, email, name string) (*ActionResult, error)

	// CreateOrUpdateWebhookEndpoint registers the notification URL with
	// the processor, reusing an existing endpoint with the same URL.
	// Returns the endpoint's signing secret in the result object.
	CreateOrUpdateWebhookEndpoint(ctx context.Context, url string, enabledEvents []string) (*ActionResult, error)

	// DeleteWebhookEndpoint removes a previously registered endpoint.
	DeleteWebhookEndpoint(ctx context.Context, endpointID string) (*ActionResult, error)

	// Name returns the gateway identifier
	Name() string
}

// PurchaseRequest describes a charge attempt.
type PurchaseRequest struct {
	Amount          float64
	Currency        string
	PaymentMethodID string
	CustomerID      string
	Email           string
	Description     string
	// ManualCapture places a hold instead of settling immediately.
	ManualCapture bool
	// OffSession marks the charge as merchant-initiated, required when
	// renewing holds without the customer present.
	OffSession bool
	Metadata   map[string]string
}

// GatewayError carries the processor's decline details.
type GatewayError struct {
	Message     string
	Code        string
	DeclineCode string
}

func (e *GatewayError) Error() string {
	if e.DeclineCode != "" {
		return fmt.Sprintf("%s (code=%s, decline_code=%s)", e.Message, e.Code, e.DeclineCode)
	}
	if e.Code != "" {
		return fmt.Sprintf("%s (code=%s)", e.Message, e.Code)
	}
	return e.Message
}

// ActionResult is the uniform outcome of a gateway operation.
type ActionResult struct {
	Successful bool
	// Object holds the processor response fields worth persisting, keyed
	// the way the transaction response map expects them.
	Object map[string]any
	Err    *GatewayError
}

// SuccessResult builds a successful result around the given object fields.
func SuccessResult(object map[string]any) *ActionResult {
	if object == nil {
		object = make(map[string]any)
	}
	return &ActionResult{Successful: true, Object: object}
}

// FailureResult builds a failed result from a gateway error.
func FailureResult(err *GatewayError) *ActionResult {
	return &ActionResult{
		Successful: false,
		Object:     make(map[string]any),
		Err:        err,
	}
}

// ToMap flattens the result for persistence on a transaction's response map.
func (r *ActionResult) ToMap() map[string]any {
	out := make(map[string]any, len(r.Object)+3)
	for k, v := range r.Object {
		out[k] = v
	}
	out["successful"] = r.Successful
	if r.Err != nil {
		out["error"] = r.Err.Message
		if r.Err.Code != "" {
			out["error_code"] = r.Err.Code
		}
		if r.Err.DeclineCode != "" {
			out["decline_code"] = r.Err.DeclineCode
		}
	}
	return out
}

// PaymentIntentID extracts the processor intent id from the result, if any.
func (r *ActionResult) PaymentIntentID() string {
	if v, ok := r.Object["payment_intent_id"].(string); ok {
		return v
	}
	return ""
}

// ChargeID extracts the processor charge id from the result, if any.
func (r *ActionResult) ChargeID() string {
	if v, ok := r.Object["charge_id"].(string); ok {
		return v
	}
	return ""
}
