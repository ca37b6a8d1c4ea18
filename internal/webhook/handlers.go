package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/commercekit/stripe-service/internal/currency"
	"github.com/commercekit/stripe-service/internal/domain"
	"github.com/commercekit/stripe-service/internal/repository"
	"github.com/commercekit/stripe-service/pkg/logger"
)

// Notifier alerts customers about payment outcomes. Delivery is best
// effort.
type Notifier interface {
	PaymentFailed(ctx context.Context, tx *domain.PaymentTransaction, reason string)
}

// transactionResolver finds the local transaction an event refers to. A
// missing transaction is not an error: events for objects created outside
// this system are acknowledged and logged.
type transactionResolver struct {
	repo repository.TransactionRepository
	log  *logger.Logger
}

func (r *transactionResolver) resolve(ctx context.Context, event *Event, paymentIntentID string) (*domain.PaymentTransaction, error) {
	if paymentIntentID == "" {
		r.log.Info(fmt.Sprintf("Event %s (%s) carries no payment intent, acknowledging", event.ID, event.Type))
		return nil, nil
	}

	tx, err := r.repo.GetByPaymentIntentID(ctx, paymentIntentID)
	if err != nil {
		if errors.Is(err, domain.ErrTransactionNotFound) {
			r.log.Info(fmt.Sprintf("No transaction for payment intent %s from event %s, acknowledging", paymentIntentID, event.ID))
			return nil, nil
		}
		return nil, &HandleError{EventID: event.ID, Reason: "transaction lookup failed", Cause: err}
	}
	return tx, nil
}

// PaymentSucceededHandler applies payment_intent.succeeded events
type PaymentSucceededHandler struct {
	resolver transactionResolver
	repo     repository.TransactionRepository
	log      *logger.Logger
}

// NewPaymentSucceededHandler creates the handler
func NewPaymentSucceededHandler(repo repository.TransactionRepository, log *logger.Logger) *PaymentSucceededHandler {
	return &PaymentSucceededHandler{
		resolver: transactionResolver{repo: repo, log: log},
		repo:     repo,
		log:      log,
	}
}

func (h *PaymentSucceededHandler) Handles(eventType string) bool {
	return eventType == "payment_intent.succeeded"
}

func (h *PaymentSucceededHandler) Handle(ctx context.Context, event *Event) error {
	var payload paymentIntentPayload
	if err := json.Unmarshal(event.Object, &payload); err != nil {
		return &HandleError{EventID: event.ID, Reason: "malformed payment intent payload", Cause: err}
	}

	tx, err := h.resolver.resolve(ctx, event, payload.ID)
	if err != nil || tx == nil {
		return err
	}

	// redeliveries of an already-applied event change nothing
	if tx.Successful && tx.ChargeID != "" {
		return nil
	}

	tx.MarkSuccessful()
	if payload.LatestCharge.ID != "" {
		tx.ChargeID = payload.LatestCharge.ID
	}
	if err := h.repo.Update(ctx, tx); err != nil {
		return &HandleError{EventID: event.ID, Reason: "failed to persist settlement", Cause: err}
	}

	h.log.Info(fmt.Sprintf("Transaction %d settled via event %s", tx.ID, event.ID))
	return nil
}

// PaymentFailedHandler applies payment_intent.payment_failed events
type PaymentFailedHandler struct {
	resolver transactionResolver
	repo     repository.TransactionRepository
	notifier Notifier
	log      *logger.Logger
}

// NewPaymentFailedHandler creates the handler
func NewPaymentFailedHandler(repo repository.TransactionRepository, notifier Notifier, log *logger.Logger) *PaymentFailedHandler {
	return &PaymentFailedHandler{
		resolver: transactionResolver{repo: repo, log: log},
		repo:     repo,
		notifier: notifier,
		log:      log,
	}
}

func (h *PaymentFailedHandler) Handles(eventType string) bool {
	return eventType == "payment_intent.payment_failed"
}

func (h *PaymentFailedHandler) Handle(ctx context.Context, event *Event) error {
	var payload paymentIntentPayload
	if err := json.Unmarshal(event.Object, &payload); err != nil {
		return &HandleError{EventID: event.ID, Reason: "malformed payment intent payload", Cause: err}
	}

	tx, err := h.resolver.resolve(ctx, event, payload.ID)
	if err != nil || tx == nil {
		return err
	}

	if !tx.Active && !tx.Successful {
		return nil
	}

	reason := payload.LastPaymentError.Message
	if reason == "" {
		reason = "payment failed"
	}
	tx.MarkFailed(reason, payload.LastPaymentError.Code, payload.LastPaymentError.DeclineCode)
	if err := h.repo.Update(ctx, tx); err != nil {
		return &HandleError{EventID: event.ID, Reason: "failed to persist failure", Cause: err}
	}

	h.log.Warn(fmt.Sprintf("Transaction %d failed via event %s: %s", tx.ID, event.ID, reason))
	if h.notifier != nil {
		h.notifier.PaymentFailed(ctx, tx, reason)
	}
	return nil
}

// ChargeRefundedHandler applies charge.refunded events. Stripe reports the
// cumulative refunded amount, so applying the same event twice is a no-op.
type ChargeRefundedHandler struct {
	resolver transactionResolver
	repo     repository.TransactionRepository
	log      *logger.Logger
}

// NewChargeRefundedHandler creates the handler
func NewChargeRefundedHandler(repo repository.TransactionRepository, log *logger.Logger) *ChargeRefundedHandler {
	return &ChargeRefundedHandler{
		resolver: transactionResolver{repo: repo, log: log},
		repo:     repo,
		log:      log,
	}
}

func (h *ChargeRefundedHandler) Handles(eventType string) bool {
	return eventType == "charge.refunded"
}

func (h *ChargeRefundedHandler) Handle(ctx context.Context, event *Event) error {
	var payload chargePayload
	if err := json.Unmarshal(event.Object, &payload); err != nil {
		return &HandleError{EventID: event.ID, Reason: "malformed charge payload", Cause: err}
	}

	tx, err := h.resolver.resolve(ctx, event, payload.PaymentIntent)
	if err != nil || tx == nil {
		return err
	}

	refunded := currency.FromMinorUnits(payload.AmountRefunded, tx.Currency)
	if !tx.AppendRefund(refunded) {
		return nil
	}

	if err := h.repo.Update(ctx, tx); err != nil {
		return &HandleError{EventID: event.ID, Reason: "failed to persist refund", Cause: err}
	}

	h.log.Info(fmt.Sprintf("Transaction %d refunded %s %s via event %s", tx.ID, currency.Format(refunded, tx.Currency), tx.Currency, event.ID))
	return nil
}
