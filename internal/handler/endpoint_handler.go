package handler

import (
	"errors"
	"fmt"

	"github.com/gin-gonic/gin"

	"github.com/commercekit/stripe-service/internal/service"
	"github.com/commercekit/stripe-service/internal/webhook"
	"github.com/commercekit/stripe-service/pkg/logger"
	"github.com/commercekit/stripe-service/pkg/response"
)

// EndpointHandler manages webhook endpoint registrations
type EndpointHandler struct {
	endpoints service.EndpointService
	log       *logger.Logger
}

// NewEndpointHandler creates an endpoint handler
func NewEndpointHandler(endpoints service.EndpointService, log *logger.Logger) *EndpointHandler {
	return &EndpointHandler{endpoints: endpoints, log: log}
}

// RegisterRoutes registers endpoint management routes
func (h *EndpointHandler) RegisterRoutes(router *gin.Engine, writeMiddleware ...gin.HandlerFunc) {
	api := router.Group("/api/v1", writeMiddleware...)
	{
		api.POST("/webhook-endpoints", h.Register)
		api.PUT("/webhook-endpoints/:accessId", h.UpdateEvents)
		api.DELETE("/webhook-endpoints/:accessId", h.Deregister)
	}
}

type endpointRequest struct {
	EnabledEvents []string `json:"enabled_events"`
}

// Register creates a new inbound webhook endpoint
func (h *EndpointHandler) Register(c *gin.Context) {
	var req endpointRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, fmt.Sprintf("invalid request: %v", err))
			return
		}
	}

	config, err := h.endpoints.Register(c.Request.Context(), req.EnabledEvents)
	if err != nil {
		h.respondError(c, err)
		return
	}

	response.Created(c, config)
}

// UpdateEvents changes an endpoint's event subscription
func (h *EndpointHandler) UpdateEvents(c *gin.Context) {
	var req endpointRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, fmt.Sprintf("invalid request: %v", err))
		return
	}
	if len(req.EnabledEvents) == 0 {
		response.BadRequest(c, "enabled_events is required")
		return
	}

	config, err := h.endpoints.UpdateEvents(c.Request.Context(), c.Param("accessId"), req.EnabledEvents)
	if err != nil {
		h.respondError(c, err)
		return
	}

	response.Success(c, config)
}

// Deregister removes an endpoint
func (h *EndpointHandler) Deregister(c *gin.Context) {
	if err := h.endpoints.Deregister(c.Request.Context(), c.Param("accessId")); err != nil {
		h.respondError(c, err)
		return
	}

	response.Success(c, gin.H{"deleted": true})
}

func (h *EndpointHandler) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, webhook.ErrEndpointNotFound):
		response.NotFound(c, "webhook endpoint not found")
	case errors.Is(err, webhook.ErrEndpointConflict):
		response.Conflict(c, "webhook endpoint already exists")
	default:
		h.log.Error(fmt.Sprintf("Endpoint operation failed: %v", err))
		response.InternalError(c, err)
	}
}
