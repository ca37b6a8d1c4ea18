package handler

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/commercekit/stripe-service/internal/metrics"
	"github.com/commercekit/stripe-service/internal/webhook"
	"github.com/commercekit/stripe-service/pkg/logger"
)

// WebhookHandler receives processor callbacks
type WebhookHandler struct {
	pipeline *webhook.Pipeline
	metrics  *metrics.Metrics
	log      *logger.Logger
}

// NewWebhookHandler creates a webhook handler
func NewWebhookHandler(pipeline *webhook.Pipeline, m *metrics.Metrics, log *logger.Logger) *WebhookHandler {
	return &WebhookHandler{
		pipeline: pipeline,
		metrics:  m,
		log:      log,
	}
}

// RegisterRoutes registers webhook routes
func (h *WebhookHandler) RegisterRoutes(router *gin.Engine) {
	router.POST("/webhooks/stripe/:accessId", h.HandleStripeEvent)
}

// HandleStripeEvent verifies and processes one event delivery.
//
// Response codes drive Stripe's redelivery: 2xx acknowledges, 4xx and 5xx
// get redelivered. Unknown access ids and bad signatures answer 404 with no
// body so the route reveals nothing to probing.
func (h *WebhookHandler) HandleStripeEvent(c *gin.Context) {
	accessID := c.Param("accessId")

	payload, err := c.GetRawData()
	if err != nil {
		h.log.Warn(fmt.Sprintf("Failed to read webhook body for access id %s: %v", accessID, err))
		c.Status(http.StatusBadRequest)
		return
	}
	if len(payload) == 0 {
		h.log.Warn(fmt.Sprintf("Empty webhook body for access id %s", accessID))
		if h.metrics != nil {
			h.metrics.RecordWebhookRejection(c.Request.Context(), "empty_body")
		}
		c.Status(http.StatusBadRequest)
		return
	}

	signature := c.GetHeader("Stripe-Signature")

	err = h.pipeline.Process(c.Request.Context(), accessID, payload, signature)
	if err == nil {
		c.Status(http.StatusOK)
		return
	}

	switch {
	case errors.Is(err, webhook.ErrEndpointNotFound):
		if h.metrics != nil {
			h.metrics.RecordWebhookRejection(c.Request.Context(), "unknown_endpoint")
		}
		c.Status(http.StatusNotFound)
	case errors.Is(err, webhook.ErrSignatureInvalid):
		if h.metrics != nil {
			h.metrics.RecordWebhookRejection(c.Request.Context(), "invalid_signature")
		}
		c.Status(http.StatusNotFound)
	default:
		var handleErr *webhook.HandleError
		if errors.As(err, &handleErr) {
			h.log.Error(fmt.Sprintf("Webhook processing failed: %v", handleErr))
			c.Status(http.StatusBadRequest)
			return
		}
		h.log.Critical(fmt.Sprintf("Webhook pipeline fault for access id %s: %v", accessID, err))
		c.Status(http.StatusInternalServerError)
	}
}
