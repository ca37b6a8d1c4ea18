package handler

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/commercekit/stripe-service/internal/domain"
	"github.com/commercekit/stripe-service/internal/metrics"
	"github.com/commercekit/stripe-service/internal/service"
	"github.com/commercekit/stripe-service/pkg/logger"
	"github.com/commercekit/stripe-service/pkg/response"
)

// PaymentHandler exposes the payment operations API
type PaymentHandler struct {
	payments service.PaymentService
	metrics  *metrics.Metrics
	log      *logger.Logger
}

// NewPaymentHandler creates a payment handler
func NewPaymentHandler(payments service.PaymentService, m *metrics.Metrics, log *logger.Logger) *PaymentHandler {
	return &PaymentHandler{
		payments: payments,
		metrics:  m,
		log:      log,
	}
}

// RegisterRoutes registers payment routes. Write middleware, such as
// idempotency, applies to mutating routes only.
func (h *PaymentHandler) RegisterRoutes(router *gin.Engine, writeMiddleware ...gin.HandlerFunc) {
	api := router.Group("/api/v1")
	api.GET("/payments/:id", h.GetTransaction)

	writes := api.Group("", writeMiddleware...)
	{
		writes.POST("/payments", h.Purchase)
		writes.POST("/payments/:id/confirm", h.Confirm)
		writes.POST("/payments/:id/capture", h.Capture)
		writes.POST("/payments/:id/refund", h.Refund)
		writes.POST("/payments/:id/cancel", h.Cancel)
	}
}

// amountRequest carries an optional override amount for capture and refund
type amountRequest struct {
	Amount float64 `json:"amount" binding:"omitempty,gt=0"`
}

// Purchase charges or authorizes a new payment
func (h *PaymentHandler) Purchase(c *gin.Context) {
	var req service.PurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, fmt.Sprintf("invalid request: %v", err))
		return
	}

	start := time.Now()
	tx, err := h.payments.Purchase(c.Request.Context(), &req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if h.metrics != nil {
		h.metrics.RecordPayment(c.Request.Context(), string(tx.Action), tx.Successful, time.Since(start))
	}

	response.Created(c, tx)
}

// GetTransaction returns one transaction
func (h *PaymentHandler) GetTransaction(c *gin.Context) {
	id, ok := h.transactionID(c)
	if !ok {
		return
	}

	tx, err := h.payments.GetTransaction(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}

	response.Success(c, tx)
}

// Confirm completes a payment after client-side authentication
func (h *PaymentHandler) Confirm(c *gin.Context) {
	id, ok := h.transactionID(c)
	if !ok {
		return
	}

	tx, err := h.payments.Confirm(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}

	response.Success(c, tx)
}

// Capture settles a held authorization
func (h *PaymentHandler) Capture(c *gin.Context) {
	h.derived(c, "capture", func(id int64, amount float64) (*domain.PaymentTransaction, error) {
		return h.payments.Capture(c.Request.Context(), id, amount)
	})
}

// Refund returns funds against a settled payment
func (h *PaymentHandler) Refund(c *gin.Context) {
	h.derived(c, "refund", func(id int64, amount float64) (*domain.PaymentTransaction, error) {
		return h.payments.Refund(c.Request.Context(), id, amount)
	})
}

// Cancel releases a held authorization
func (h *PaymentHandler) Cancel(c *gin.Context) {
	h.derived(c, "cancel", func(id int64, _ float64) (*domain.PaymentTransaction, error) {
		return h.payments.Cancel(c.Request.Context(), id)
	})
}

func (h *PaymentHandler) derived(c *gin.Context, action string, run func(id int64, amount float64) (*domain.PaymentTransaction, error)) {
	id, ok := h.transactionID(c)
	if !ok {
		return
	}

	var req amountRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, fmt.Sprintf("invalid request: %v", err))
			return
		}
	}

	start := time.Now()
	tx, err := run(id, req.Amount)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if h.metrics != nil {
		h.metrics.RecordPayment(c.Request.Context(), action, tx.Successful, time.Since(start))
	}

	response.Success(c, tx)
}

func (h *PaymentHandler) transactionID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		response.BadRequest(c, "invalid transaction id")
		return 0, false
	}
	return id, true
}

func (h *PaymentHandler) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrTransactionNotFound):
		response.NotFound(c, "transaction not found")
	case errors.Is(err, domain.ErrTransactionConflict):
		response.Conflict(c, "transaction was modified concurrently, retry")
	case errors.Is(err, domain.ErrMethodNotRegistered),
		errors.Is(err, domain.ErrActionNotSupported),
		errors.Is(err, service.ErrInvalidTransactionState),
		errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrCurrencyRequired),
		errors.Is(err, domain.ErrPaymentMethodRequired):
		response.BadRequest(c, err.Error())
	default:
		h.log.Error(fmt.Sprintf("Payment operation failed: %v", err))
		response.BadGateway(c, "payment processor unavailable")
	}
}
