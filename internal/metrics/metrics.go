package metrics

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/commercekit/stripe-service/pkg/telemetry"
)

// Metrics holds the service's instruments
type Metrics struct {
	PaymentsTotal    *telemetry.Counter
	PaymentDuration  *telemetry.Histogram
	WebhooksTotal    *telemetry.Counter
	WebhooksRejected *telemetry.Counter
	RenewalsTotal    *telemetry.Counter
	RenewalChunkSize *telemetry.Histogram
}

// New creates the service metrics
func New() (*Metrics, error) {
	paymentsTotal, err := telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "payments_total",
		Description: "Payment operations by action and outcome",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create payments counter: %w", err)
	}

	paymentDuration, err := telemetry.NewHistogram(telemetry.MetricOpts{
		Name:        "payment_duration_seconds",
		Description: "Payment operation latency",
		Unit:        "s",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create payment duration histogram: %w", err)
	}

	webhooksTotal, err := telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "webhook_events_total",
		Description: "Verified webhook events by type",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create webhook counter: %w", err)
	}

	webhooksRejected, err := telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "webhook_rejected_total",
		Description: "Webhook requests rejected before processing",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create webhook rejection counter: %w", err)
	}

	renewalsTotal, err := telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "authorization_renewals_total",
		Description: "Hold renewal attempts by outcome",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create renewals counter: %w", err)
	}

	renewalChunkSize, err := telemetry.NewHistogram(telemetry.MetricOpts{
		Name:        "renewal_chunk_size",
		Description: "Candidates per renewal chunk",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create renewal chunk histogram: %w", err)
	}

	return &Metrics{
		PaymentsTotal:    paymentsTotal,
		PaymentDuration:  paymentDuration,
		WebhooksTotal:    webhooksTotal,
		WebhooksRejected: webhooksRejected,
		RenewalsTotal:    renewalsTotal,
		RenewalChunkSize: renewalChunkSize,
	}, nil
}

// RecordPayment records one payment operation
func (m *Metrics) RecordPayment(ctx context.Context, action string, successful bool, elapsed time.Duration) {
	outcome := "failed"
	if successful {
		outcome = "successful"
	}
	attrs := []attribute.KeyValue{
		attribute.String("action", action),
		attribute.String("outcome", outcome),
	}
	m.PaymentsTotal.Inc(ctx, attrs...)
	m.PaymentDuration.Record(ctx, elapsed.Seconds(), attribute.String("action", action))
}

// RecordWebhook records one verified webhook event
func (m *Metrics) RecordWebhook(ctx context.Context, eventType string) {
	m.WebhooksTotal.Inc(ctx, attribute.String("type", eventType))
}

// RecordWebhookRejection records a rejected webhook request
func (m *Metrics) RecordWebhookRejection(ctx context.Context, reason string) {
	m.WebhooksRejected.Inc(ctx, attribute.String("reason", reason))
}

// RecordRenewal records one renewal attempt
func (m *Metrics) RecordRenewal(ctx context.Context, outcome string) {
	m.RenewalsTotal.Inc(ctx, attribute.String("outcome", outcome))
}
