package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	stripewebhook "github.com/stripe/stripe-go/v82/webhook"

	"github.com/commercekit/stripe-service/internal/domain"
	"github.com/commercekit/stripe-service/internal/gateway"
	"github.com/commercekit/stripe-service/internal/method"
	"github.com/commercekit/stripe-service/internal/repository"
	"github.com/commercekit/stripe-service/internal/service"
	"github.com/commercekit/stripe-service/internal/webhook"
	"github.com/commercekit/stripe-service/pkg/logger"
)

const testSigningSecret = "whsec_test_secret"

type apiFixture struct {
	router    *gin.Engine
	repo      *repository.MemoryTransactionRepository
	endpoints *webhook.MemoryEndpointRepository
	gateway   *gateway.MockGateway
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	log := logger.Get()
	repo := repository.NewMemoryTransactionRepository()
	endpoints := webhook.NewMemoryEndpointRepository()
	gw := gateway.NewMockGateway()

	registry := method.NewRegistry()
	registry.Register(method.NewStripeMethod("stripe", gw, log))

	payments := service.NewPaymentService(repo, registry, gw, "stripe", nil, log)

	pipeline := webhook.NewPipeline(endpoints, webhook.NewMemoryDeduplicator(), nil, log,
		webhook.NewPaymentSucceededHandler(repo, log),
		webhook.NewPaymentFailedHandler(repo, nil, log),
		webhook.NewChargeRefundedHandler(repo, log),
	)

	router := gin.New()
	NewPaymentHandler(payments, nil, log).RegisterRoutes(router)
	NewWebhookHandler(pipeline, nil, log).RegisterRoutes(router)
	NewHealthHandler(nil, nil).RegisterRoutes(router)

	return &apiFixture{
		router:    router,
		repo:      repo,
		endpoints: endpoints,
		gateway:   gw,
	}
}

func (f *apiFixture) seedEndpoint(t *testing.T) *webhook.EndpointConfig {
	t.Helper()
	now := time.Now().UTC()
	config := &webhook.EndpointConfig{
		AccessID:      "acc-7f3a",
		URL:           "https://pay.example.com/webhooks/stripe/acc-7f3a",
		EndpointID:    "we_test",
		SigningSecret: testSigningSecret,
		EnabledEvents: service.DefaultEnabledEvents,
		Active:        true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	require.NoError(t, f.endpoints.Create(context.Background(), config))
	return config
}

func (f *apiFixture) do(method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func signedHeader(payload []byte) string {
	at := time.Now()
	signature := stripewebhook.ComputeSignature(at, payload, testSigningSecret)
	return fmt.Sprintf("t=%d,v1=%x", at.Unix(), signature)
}

func TestPaymentAPI_Purchase(t *testing.T) {
	f := newAPIFixture(t)

	w := f.do(http.MethodPost, "/api/v1/payments", map[string]any{
		"entity_class":      "Order",
		"entity_id":         42,
		"amount":            19.99,
		"currency":          "USD",
		"payment_method_id": "pm_123",
		"capture":           true,
	}, nil)

	require.Equal(t, http.StatusCreated, w.Code)

	var resp struct {
		Success bool                       `json:"success"`
		Data    *domain.PaymentTransaction `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.True(t, resp.Data.Successful)
	assert.NotEmpty(t, resp.Data.PaymentIntentID)
}

func TestPaymentAPI_Purchase_InvalidBody(t *testing.T) {
	f := newAPIFixture(t)

	w := f.do(http.MethodPost, "/api/v1/payments", map[string]any{
		"entity_class": "Order",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPaymentAPI_GetTransaction(t *testing.T) {
	f := newAPIFixture(t)

	w := f.do(http.MethodGet, "/api/v1/payments/999", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(http.MethodGet, "/api/v1/payments/abc", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPaymentAPI_CaptureFlow(t *testing.T) {
	f := newAPIFixture(t)

	w := f.do(http.MethodPost, "/api/v1/payments", map[string]any{
		"entity_class":      "Order",
		"entity_id":         42,
		"amount":            50.00,
		"currency":          "USD",
		"payment_method_id": "pm_123",
		"capture":           false,
	}, nil)
	require.Equal(t, http.StatusCreated, w.Code)

	var created struct {
		Data *domain.PaymentTransaction `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))

	w = f.do(http.MethodPost, fmt.Sprintf("/api/v1/payments/%d/capture", created.Data.ID), nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var captured struct {
		Data *domain.PaymentTransaction `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &captured))
	assert.Equal(t, domain.ActionCapture, captured.Data.Action)
	assert.True(t, captured.Data.Successful)
}

func TestWebhookAPI_EndToEndSettlement(t *testing.T) {
	f := newAPIFixture(t)
	f.seedEndpoint(t)
	ctx := context.Background()

	// purchase 19.99 USD, still awaiting the processor's confirmation
	tx, err := domain.NewTransaction(domain.ActionPurchase, "stripe", 19.99, "USD", "Order", 42)
	require.NoError(t, err)
	tx.PaymentIntentID = "pi_e2e"
	require.NoError(t, f.repo.Create(ctx, tx))

	payload := []byte(`{
		"id": "evt_e2e",
		"object": "event",
		"type": "payment_intent.succeeded",
		"data": {"object": {"id": "pi_e2e", "status": "succeeded", "latest_charge": {"id": "ch_e2e"}}}
	}`)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe/acc-7f3a", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", signedHeader(payload))
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	settled, err := f.repo.GetByID(ctx, tx.ID)
	require.NoError(t, err)
	assert.True(t, settled.Successful)
	assert.Equal(t, "ch_e2e", settled.ChargeID)
	assert.Equal(t, 19.99, settled.Amount)
}

func TestWebhookAPI_UnknownAccessID(t *testing.T) {
	f := newAPIFixture(t)

	payload := []byte(`{"id": "evt_1", "type": "payment_intent.succeeded", "data": {"object": {}}}`)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe/nope", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", signedHeader(payload))
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestWebhookAPI_EmptyBody(t *testing.T) {
	f := newAPIFixture(t)
	f.seedEndpoint(t)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe/acc-7f3a", bytes.NewReader(nil))
	req.Header.Set("Stripe-Signature", signedHeader([]byte{}))
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWebhookAPI_InvalidSignature(t *testing.T) {
	f := newAPIFixture(t)
	f.seedEndpoint(t)

	payload := []byte(`{"id": "evt_1", "type": "payment_intent.succeeded", "data": {"object": {}}}`)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe/acc-7f3a", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", "t=1,v1=deadbeef")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestHealthAPI(t *testing.T) {
	f := newAPIFixture(t)

	w := f.do(http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = f.do(http.MethodGet, "/health/ready", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}
