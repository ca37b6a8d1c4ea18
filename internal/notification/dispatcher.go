package notification

import (
	"context"
	"fmt"
	"strings"

	"github.com/commercekit/stripe-service/internal/currency"
	"github.com/commercekit/stripe-service/internal/domain"
	"github.com/commercekit/stripe-service/pkg/kafka"
	"github.com/commercekit/stripe-service/pkg/logger"
)

// EmailMessage is the payload published to the email topic
type EmailMessage struct {
	To      []string `json:"to"`
	From    string   `json:"from"`
	Subject string   `json:"subject"`
	Body    string   `json:"body"`
}

// Config holds dispatcher settings
type Config struct {
	Topic      string
	FromEmail  string
	Recipients []string
}

// producer is the slice of kafka.Producer the dispatcher needs
type producer interface {
	ProduceJSON(ctx context.Context, topic, key string, value any, headers map[string]string) error
}

var _ producer = (*kafka.Producer)(nil)

// Dispatcher publishes notification emails to Kafka. Delivery is best
// effort: a failed publish is logged and swallowed so notification outages
// never block payment processing.
type Dispatcher struct {
	producer producer
	config   Config
	log      *logger.Logger
}

// NewDispatcher creates a notification dispatcher
func NewDispatcher(producer producer, config Config, log *logger.Logger) *Dispatcher {
	if config.Topic == "" {
		config.Topic = "notification.email"
	}
	return &Dispatcher{
		producer: producer,
		config:   config,
		log:      log,
	}
}

// Send publishes an arbitrary email. Best effort: transport errors are
// logged, never returned.
func (d *Dispatcher) Send(ctx context.Context, recipients []string, subject, body string) {
	if len(recipients) == 0 {
		d.log.Debug("No recipients, skipping notification")
		return
	}
	d.publish(ctx, subject, &EmailMessage{
		To:      recipients,
		From:    d.config.FromEmail,
		Subject: subject,
		Body:    body,
	})
}

// ReAuthorizationFailed alerts operators that a hold renewal was declined
func (d *Dispatcher) ReAuthorizationFailed(ctx context.Context, tx *domain.PaymentTransaction, reason string) {
	if len(d.config.Recipients) == 0 {
		d.log.Debug("No renewal alert recipients configured, skipping notification")
		return
	}

	msg := &EmailMessage{
		To:      d.config.Recipients,
		From:    d.config.FromEmail,
		Subject: fmt.Sprintf("Authorization renewal failed for %s #%d", tx.EntityClass, tx.EntityID),
		Body: fmt.Sprintf(
			"The %s hold on %s #%d could not be renewed.\n\nReason: %s\n\nThe existing hold will lapse unless the payment is captured or retried.",
			formatAmount(tx), tx.EntityClass, tx.EntityID, reason,
		),
	}
	d.publish(ctx, fmt.Sprintf("%d", tx.ID), msg)
}

// PaymentFailed tells the customer their payment was declined
func (d *Dispatcher) PaymentFailed(ctx context.Context, tx *domain.PaymentTransaction, reason string) {
	email, _ := tx.Options[domain.OptionCustomerEmail].(string)
	if email == "" {
		d.log.Debug(fmt.Sprintf("Transaction %d has no customer email, skipping failure notification", tx.ID))
		return
	}

	msg := &EmailMessage{
		To:      []string{email},
		From:    d.config.FromEmail,
		Subject: fmt.Sprintf("Payment issue with your order #%d", tx.EntityID),
		Body: fmt.Sprintf(
			"Your payment of %s for order #%d did not go through.\n\n%s\n\nPlease update your payment details and try again.",
			formatAmount(tx), tx.EntityID, reason,
		),
	}
	d.publish(ctx, fmt.Sprintf("%d", tx.ID), msg)
}

func (d *Dispatcher) publish(ctx context.Context, key string, msg *EmailMessage) {
	if err := d.producer.ProduceJSON(ctx, d.config.Topic, key, msg, nil); err != nil {
		d.log.Error(fmt.Sprintf("Failed to publish notification to %s: %v", d.config.Topic, err))
	}
}

var currencySymbols = map[string]string{
	"USD": "$",
	"EUR": "€",
	"GBP": "£",
	"JPY": "¥",
}

// formatAmount renders "$19.99" or "15.120 KWD" for symbol-less currencies
func formatAmount(tx *domain.PaymentTransaction) string {
	code := strings.ToUpper(tx.Currency)
	formatted := currency.Format(tx.Amount, code)
	if symbol, ok := currencySymbols[code]; ok {
		return symbol + formatted
	}
	return formatted + " " + code
}
