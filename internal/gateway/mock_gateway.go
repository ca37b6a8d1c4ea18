package gateway

import (
	"context"
	"fmt"
	"math/rand"
	"sync"

	"github.com/google/uuid"
)

// alphanumericChars for generating Stripe-compatible IDs
const alphanumericChars = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

func randomAlphanumeric(length int) string {
	b := make([]byte, length)
	for i := range b {
		b[i] = alphanumericChars[rand.Intn(len(alphanumericChars))]
	}
	return string(b)
}

// MockGateway implements PaymentGateway in memory for tests. Outcomes can be
// scripted per operation; unscripted operations succeed with generated ids.
type MockGateway struct {
	mu      sync.Mutex
	scripts map[string][]*ActionResult
	calls   []MockCall
	intents map[string]*mockIntent
}

// MockCall records one gateway invocation for assertions.
type MockCall struct {
	Operation string
	Args      map[string]any
}

type mockIntent struct {
	amount   float64
	currency string
	status   string
}

// NewMockGateway creates a new mock gateway
func NewMockGateway() *MockGateway {
	return &MockGateway{
		scripts: make(map[string][]*ActionResult),
		intents: make(map[string]*mockIntent),
	}
}

// Script queues a canned result for the named operation. Results are
// consumed in FIFO order.
func (g *MockGateway) Script(operation string, result *ActionResult) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.scripts[operation] = append(g.scripts[operation], result)
}

// Calls returns the recorded invocations
func (g *MockGateway) Calls() []MockCall {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]MockCall, len(g.calls))
	copy(out, g.calls)
	return out
}

// CallCount returns how many times the named operation ran
func (g *MockGateway) CallCount(operation string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, c := range g.calls {
		if c.Operation == operation {
			n++
		}
	}
	return n
}

func (g *MockGateway) record(operation string, args map[string]any) *ActionResult {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, MockCall{Operation: operation, Args: args})
	if queue := g.scripts[operation]; len(queue) > 0 {
		result := queue[0]
		g.scripts[operation] = queue[1:]
		return result
	}
	return nil
}

// Name returns the gateway name
func (g *MockGateway) Name() string {
	return "mock"
}

func (g *MockGateway) Purchase(ctx context.Context, req *PurchaseRequest) (*ActionResult, error) {
	if req == nil {
		return nil, fmt.Errorf("purchase request is required")
	}
	if scripted := g.record("purchase", map[string]any{
		"amount":         req.Amount,
		"currency":       req.Currency,
		"manual_capture": req.ManualCapture,
		"off_session":    req.OffSession,
		"customer_id":    req.CustomerID,
	}); scripted != nil {
		return scripted, nil
	}

	intentID := fmt.Sprintf("pi_%s", randomAlphanumeric(24))
	status := "succeeded"
	if req.ManualCapture {
		status = "requires_capture"
	}

	g.mu.Lock()
	g.intents[intentID] = &mockIntent{amount: req.Amount, currency: req.Currency, status: status}
	g.mu.Unlock()

	return SuccessResult(map[string]any{
		"payment_intent_id": intentID,
		"charge_id":         fmt.Sprintf("ch_%s", randomAlphanumeric(24)),
		"status":            status,
	}), nil
}

func (g *MockGateway) Confirm(ctx context.Context, paymentIntentID string) (*ActionResult, error) {
	if scripted := g.record("confirm", map[string]any{"payment_intent_id": paymentIntentID}); scripted != nil {
		return scripted, nil
	}
	return g.transition(paymentIntentID, "succeeded")
}

func (g *MockGateway) Capture(ctx context.Context, paymentIntentID string, amount float64, currency string) (*ActionResult, error) {
	if scripted := g.record("capture", map[string]any{
		"payment_intent_id": paymentIntentID,
		"amount":            amount,
	}); scripted != nil {
		return scripted, nil
	}
	return g.transition(paymentIntentID, "succeeded")
}

func (g *MockGateway) Refund(ctx context.Context, paymentIntentID string, amount float64, currency string) (*ActionResult, error) {
	if scripted := g.record("refund", map[string]any{
		"payment_intent_id": paymentIntentID,
		"amount":            amount,
	}); scripted != nil {
		return scripted, nil
	}
	return SuccessResult(map[string]any{
		"refund_id": fmt.Sprintf("re_%s", randomAlphanumeric(24)),
		"status":    "succeeded",
	}), nil
}

func (g *MockGateway) CancelAuthorization(ctx context.Context, paymentIntentID string) (*ActionResult, error) {
	if scripted := g.record("cancel_authorization", map[string]any{"payment_intent_id": paymentIntentID}); scripted != nil {
		return scripted, nil
	}
	return g.transition(paymentIntentID, "canceled")
}

func (g *MockGateway) FindOrCreateCustomer(ctx context.Context, email, name string) (*ActionResult, error) {
	if scripted := g.record("find_or_create_customer", map[string]any{"email": email}); scripted != nil {
		return scripted, nil
	}
	return SuccessResult(map[string]any{
		"customer_id": fmt.Sprintf("cus_%s", uuid.New().String()[:12]),
		"email":       email,
		"created":     true,
	}), nil
}

func (g *MockGateway) CreateOrUpdateWebhookEndpoint(ctx context.Context, url string, enabledEvents []string) (*ActionResult, error) {
	if scripted := g.record("create_or_update_webhook_endpoint", map[string]any{
		"url":            url,
		"enabled_events": enabledEvents,
	}); scripted != nil {
		return scripted, nil
	}
	return SuccessResult(map[string]any{
		"endpoint_id": fmt.Sprintf("we_%s", randomAlphanumeric(24)),
		"secret":      fmt.Sprintf("whsec_%s", randomAlphanumeric(32)),
		"created":     true,
	}), nil
}

func (g *MockGateway) DeleteWebhookEndpoint(ctx context.Context, endpointID string) (*ActionResult, error) {
	if scripted := g.record("delete_webhook_endpoint", map[string]any{"endpoint_id": endpointID}); scripted != nil {
		return scripted, nil
	}
	return SuccessResult(map[string]any{"endpoint_id": endpointID}), nil
}

func (g *MockGateway) transition(paymentIntentID, status string) (*ActionResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if intent, ok := g.intents[paymentIntentID]; ok {
		intent.status = status
	}
	return SuccessResult(map[string]any{
		"payment_intent_id": paymentIntentID,
		"status":            status,
	}), nil
}
