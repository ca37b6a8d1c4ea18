package webhook

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	stripewebhook "github.com/stripe/stripe-go/v82/webhook"

	"github.com/commercekit/stripe-service/pkg/logger"
)

const testSigningSecret = "whsec_test_secret"

// signPayload builds a valid Stripe-Signature header for the payload
func signPayload(payload []byte, secret string, at time.Time) string {
	signature := stripewebhook.ComputeSignature(at, payload, secret)
	return fmt.Sprintf("t=%d,v1=%x", at.Unix(), signature)
}

type countingHandler struct {
	eventType string
	calls     int
	err       error
}

func (h *countingHandler) Handles(eventType string) bool {
	return eventType == h.eventType
}

func (h *countingHandler) Handle(ctx context.Context, event *Event) error {
	h.calls++
	return h.err
}

func newTestEndpoint(t *testing.T, repo EndpointRepository) *EndpointConfig {
	t.Helper()
	now := time.Now().UTC()
	config := &EndpointConfig{
		AccessID:      "acc-7f3a",
		URL:           "https://example.com/webhooks/stripe/acc-7f3a",
		EndpointID:    "we_test",
		SigningSecret: testSigningSecret,
		EnabledEvents: []string{"payment_intent.succeeded"},
		Active:        true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	require.NoError(t, repo.Create(context.Background(), config))
	return config
}

func eventPayload(id, eventType string) []byte {
	return []byte(fmt.Sprintf(`{
		"id": %q,
		"object": "event",
		"type": %q,
		"data": {"object": {"id": "pi_123", "status": "succeeded"}}
	}`, id, eventType))
}

func TestPipeline_DispatchesVerifiedEvent(t *testing.T) {
	endpoints := NewMemoryEndpointRepository()
	newTestEndpoint(t, endpoints)
	handler := &countingHandler{eventType: "payment_intent.succeeded"}
	pipeline := NewPipeline(endpoints, NewMemoryDeduplicator(), nil, logger.Get(), handler)

	payload := eventPayload("evt_1", "payment_intent.succeeded")
	header := signPayload(payload, testSigningSecret, time.Now())

	err := pipeline.Process(context.Background(), "acc-7f3a", payload, header)
	require.NoError(t, err)
	assert.Equal(t, 1, handler.calls)
}

func TestPipeline_UnknownAccessID(t *testing.T) {
	endpoints := NewMemoryEndpointRepository()
	handler := &countingHandler{eventType: "payment_intent.succeeded"}
	pipeline := NewPipeline(endpoints, NewMemoryDeduplicator(), nil, logger.Get(), handler)

	payload := eventPayload("evt_1", "payment_intent.succeeded")
	header := signPayload(payload, testSigningSecret, time.Now())

	err := pipeline.Process(context.Background(), "acc-missing", payload, header)
	assert.ErrorIs(t, err, ErrEndpointNotFound)
	assert.Zero(t, handler.calls)
}

func TestPipeline_InvalidSignature(t *testing.T) {
	endpoints := NewMemoryEndpointRepository()
	newTestEndpoint(t, endpoints)
	handler := &countingHandler{eventType: "payment_intent.succeeded"}
	pipeline := NewPipeline(endpoints, NewMemoryDeduplicator(), nil, logger.Get(), handler)

	payload := eventPayload("evt_1", "payment_intent.succeeded")

	tests := []struct {
		name   string
		header string
	}{
		{"wrong secret", signPayload(payload, "whsec_other", time.Now())},
		{"stale timestamp", signPayload(payload, testSigningSecret, time.Now().Add(-time.Hour))},
		{"garbage header", "t=abc,v1=nope"},
		{"empty header", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := pipeline.Process(context.Background(), "acc-7f3a", payload, tt.header)
			assert.ErrorIs(t, err, ErrSignatureInvalid)
		})
	}

	// rejected payloads never reach a handler
	assert.Zero(t, handler.calls)
}

func TestPipeline_TamperedPayload(t *testing.T) {
	endpoints := NewMemoryEndpointRepository()
	newTestEndpoint(t, endpoints)
	handler := &countingHandler{eventType: "payment_intent.succeeded"}
	pipeline := NewPipeline(endpoints, NewMemoryDeduplicator(), nil, logger.Get(), handler)

	payload := eventPayload("evt_1", "payment_intent.succeeded")
	header := signPayload(payload, testSigningSecret, time.Now())
	tampered := eventPayload("evt_2", "payment_intent.succeeded")

	err := pipeline.Process(context.Background(), "acc-7f3a", tampered, header)
	assert.ErrorIs(t, err, ErrSignatureInvalid)
	assert.Zero(t, handler.calls)
}

func TestPipeline_AcknowledgesUnhandledEvents(t *testing.T) {
	endpoints := NewMemoryEndpointRepository()
	newTestEndpoint(t, endpoints)
	handler := &countingHandler{eventType: "payment_intent.succeeded"}
	pipeline := NewPipeline(endpoints, NewMemoryDeduplicator(), nil, logger.Get(), handler)

	payload := eventPayload("evt_1", "customer.created")
	header := signPayload(payload, testSigningSecret, time.Now())

	err := pipeline.Process(context.Background(), "acc-7f3a", payload, header)
	require.NoError(t, err)
	assert.Zero(t, handler.calls)
}

func TestPipeline_HandlerNotSupportedIsAcknowledged(t *testing.T) {
	endpoints := NewMemoryEndpointRepository()
	newTestEndpoint(t, endpoints)
	handler := &countingHandler{eventType: "payment_intent.succeeded", err: ErrEventNotSupported}
	pipeline := NewPipeline(endpoints, NewMemoryDeduplicator(), nil, logger.Get(), handler)

	payload := eventPayload("evt_1", "payment_intent.succeeded")
	header := signPayload(payload, testSigningSecret, time.Now())

	err := pipeline.Process(context.Background(), "acc-7f3a", payload, header)
	require.NoError(t, err)
	assert.Equal(t, 1, handler.calls)
}

func TestPipeline_HandlerFailurePropagates(t *testing.T) {
	endpoints := NewMemoryEndpointRepository()
	newTestEndpoint(t, endpoints)
	handlerErr := &HandleError{EventID: "evt_1", Reason: "storage unavailable"}
	handler := &countingHandler{eventType: "payment_intent.succeeded", err: handlerErr}
	pipeline := NewPipeline(endpoints, NewMemoryDeduplicator(), nil, logger.Get(), handler)

	payload := eventPayload("evt_1", "payment_intent.succeeded")
	header := signPayload(payload, testSigningSecret, time.Now())

	err := pipeline.Process(context.Background(), "acc-7f3a", payload, header)
	var handleErr *HandleError
	require.ErrorAs(t, err, &handleErr)
	assert.Equal(t, "evt_1", handleErr.EventID)
}

func TestPipeline_HandlerFailureReleasesDedupClaim(t *testing.T) {
	endpoints := NewMemoryEndpointRepository()
	newTestEndpoint(t, endpoints)
	handler := &countingHandler{
		eventType: "payment_intent.succeeded",
		err:       &HandleError{EventID: "evt_1", Reason: "storage unavailable"},
	}
	pipeline := NewPipeline(endpoints, NewMemoryDeduplicator(), nil, logger.Get(), handler)

	payload := eventPayload("evt_1", "payment_intent.succeeded")
	header := signPayload(payload, testSigningSecret, time.Now())

	require.Error(t, pipeline.Process(context.Background(), "acc-7f3a", payload, header))

	// once the handler recovers, the redelivery must be applied rather
	// than dropped as a duplicate
	handler.err = nil
	require.NoError(t, pipeline.Process(context.Background(), "acc-7f3a", payload, header))
	assert.Equal(t, 2, handler.calls)
}

func TestPipeline_AcceptsPinnedAPIVersion(t *testing.T) {
	endpoints := NewMemoryEndpointRepository()
	newTestEndpoint(t, endpoints)
	handler := &countingHandler{eventType: "payment_intent.succeeded"}
	pipeline := NewPipeline(endpoints, NewMemoryDeduplicator(), nil, logger.Get(), handler)

	// accounts pinned to an older Stripe API version still sign correctly
	payload := []byte(`{
		"id": "evt_1",
		"object": "event",
		"api_version": "2024-06-20",
		"type": "payment_intent.succeeded",
		"data": {"object": {"id": "pi_123", "status": "succeeded"}}
	}`)
	header := signPayload(payload, testSigningSecret, time.Now())

	require.NoError(t, pipeline.Process(context.Background(), "acc-7f3a", payload, header))
	assert.Equal(t, 1, handler.calls)
}

func TestPipeline_DeduplicatesRedeliveries(t *testing.T) {
	endpoints := NewMemoryEndpointRepository()
	newTestEndpoint(t, endpoints)
	handler := &countingHandler{eventType: "payment_intent.succeeded"}
	pipeline := NewPipeline(endpoints, NewMemoryDeduplicator(), nil, logger.Get(), handler)

	payload := eventPayload("evt_1", "payment_intent.succeeded")
	header := signPayload(payload, testSigningSecret, time.Now())

	require.NoError(t, pipeline.Process(context.Background(), "acc-7f3a", payload, header))
	require.NoError(t, pipeline.Process(context.Background(), "acc-7f3a", payload, header))
	assert.Equal(t, 1, handler.calls)
}
