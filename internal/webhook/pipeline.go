package webhook

import (
	"context"
	"errors"
	"fmt"
	"time"

	stripewebhook "github.com/stripe/stripe-go/v82/webhook"

	"github.com/commercekit/stripe-service/internal/metrics"
	"github.com/commercekit/stripe-service/pkg/logger"
)

// DefaultTolerance bounds how old a signed payload may be
const DefaultTolerance = 5 * time.Minute

// Pipeline verifies and dispatches inbound processor events.
//
// Resolution order matters: the access id gates the request before any
// signature work, and signature verification gates it before any state is
// touched. Both rejections surface as ErrEndpointNotFound or
// ErrSignatureInvalid without detail, so probing the endpoint reveals
// nothing.
type Pipeline struct {
	endpoints EndpointRepository
	dedup     Deduplicator
	handlers  []Handler
	tolerance time.Duration
	metrics   *metrics.Metrics
	log       *logger.Logger
}

// NewPipeline creates a webhook pipeline. Handlers run in registration
// order.
func NewPipeline(endpoints EndpointRepository, dedup Deduplicator, m *metrics.Metrics, log *logger.Logger, handlers ...Handler) *Pipeline {
	return &Pipeline{
		endpoints: endpoints,
		dedup:     dedup,
		handlers:  handlers,
		tolerance: DefaultTolerance,
		metrics:   m,
		log:       log,
	}
}

// Process verifies the payload against the endpoint identified by accessID
// and dispatches the event.
//
// Returned errors map to responses as follows: ErrEndpointNotFound and
// ErrSignatureInvalid reject the request, a *HandleError asks the sender to
// redeliver, anything else is an internal fault. A nil return acknowledges
// the event, including events no handler wants.
func (p *Pipeline) Process(ctx context.Context, accessID string, payload []byte, signatureHeader string) error {
	endpoint, err := p.endpoints.GetByAccessID(ctx, accessID)
	if err != nil {
		if errors.Is(err, ErrEndpointNotFound) {
			p.log.Warn(fmt.Sprintf("Webhook request for unknown access id %s", accessID))
			return ErrEndpointNotFound
		}
		return fmt.Errorf("failed to resolve webhook endpoint: %w", err)
	}

	// Accounts stay pinned to their own Stripe API version, so a version
	// mismatch on a correctly signed payload is not a forgery.
	stripeEvent, err := stripewebhook.ConstructEventWithOptions(payload, signatureHeader, endpoint.SigningSecret, stripewebhook.ConstructEventOptions{
		Tolerance:                p.tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		// log the real reason, never return it
		p.log.Warn(fmt.Sprintf("Rejected webhook for access id %s: %v", accessID, err))
		return ErrSignatureInvalid
	}

	if p.metrics != nil {
		p.metrics.RecordWebhook(ctx, string(stripeEvent.Type))
	}

	if !p.dedup.MarkProcessed(ctx, stripeEvent.ID) {
		p.log.Info(fmt.Sprintf("Skipping duplicate event %s (%s)", stripeEvent.ID, stripeEvent.Type))
		return nil
	}

	event := &Event{
		ID:     stripeEvent.ID,
		Type:   string(stripeEvent.Type),
		Object: stripeEvent.Data.Raw,
	}

	handled := false
	for _, handler := range p.handlers {
		if !handler.Handles(event.Type) {
			continue
		}
		if err := handler.Handle(ctx, event); err != nil {
			if errors.Is(err, ErrEventNotSupported) {
				continue
			}
			// Release the dedup claim so the sender's redelivery is
			// processed instead of short-circuiting as a duplicate.
			p.dedup.Forget(ctx, event.ID)
			return err
		}
		handled = true
	}

	if !handled {
		p.log.Info(fmt.Sprintf("No handler for event %s (%s), acknowledging", event.ID, event.Type))
	}

	return nil
}
