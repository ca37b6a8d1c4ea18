package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrEndpointNotFound means no endpoint config matches the access id
	ErrEndpointNotFound = errors.New("webhook endpoint not found")

	// ErrSignatureInvalid covers every signature verification failure.
	// Callers must not leak which check failed.
	ErrSignatureInvalid = errors.New("webhook signature verification failed")

	// ErrEventNotSupported is returned by handlers for event types they
	// do not process. The pipeline acknowledges such events so the
	// processor stops redelivering them.
	ErrEventNotSupported = errors.New("event type not supported")
)

// HandleError marks a processing failure the sender should retry. The
// pipeline maps it to a client-error response, which Stripe treats as a
// redeliverable failure.
type HandleError struct {
	EventID string
	Reason  string
	Cause   error
}

func (e *HandleError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("failed to handle event %s: %s: %v", e.EventID, e.Reason, e.Cause)
	}
	return fmt.Sprintf("failed to handle event %s: %s", e.EventID, e.Reason)
}

func (e *HandleError) Unwrap() error {
	return e.Cause
}

// Event is a verified processor notification
type Event struct {
	ID     string
	Type   string
	Object json.RawMessage
}

// paymentIntentPayload carries the fields handlers read from
// payment_intent.* events.
type paymentIntentPayload struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	LatestCharge struct {
		ID string `json:"id"`
	} `json:"latest_charge"`
	LastPaymentError struct {
		Message     string `json:"message"`
		Code        string `json:"code"`
		DeclineCode string `json:"decline_code"`
	} `json:"last_payment_error"`
}

// chargePayload carries the fields handlers read from charge.* events
type chargePayload struct {
	ID             string `json:"id"`
	AmountRefunded int64  `json:"amount_refunded"`
	Currency       string `json:"currency"`
	PaymentIntent  string `json:"payment_intent"`
}

// Handler processes one family of event types
type Handler interface {
	// Handles reports whether the handler processes the event type
	Handles(eventType string) bool

	// Handle applies the event to local state. Returning
	// ErrEventNotSupported acknowledges the event without processing.
	Handle(ctx context.Context, event *Event) error
}
