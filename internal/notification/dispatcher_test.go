package notification

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/commercekit/stripe-service/internal/domain"
	"github.com/commercekit/stripe-service/pkg/logger"
)

type fakeProducer struct {
	mu       sync.Mutex
	messages []*EmailMessage
	topics   []string
	err      error
}

func (p *fakeProducer) ProduceJSON(ctx context.Context, topic, key string, value any, headers map[string]string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.messages = append(p.messages, value.(*EmailMessage))
	p.topics = append(p.topics, topic)
	return nil
}

func newTransaction(t *testing.T) *domain.PaymentTransaction {
	t.Helper()
	tx, err := domain.NewTransaction(domain.ActionAuthorize, "stripe", 19.99, "USD", "Order", 42)
	require.NoError(t, err)
	tx.ID = 7
	return tx
}

func TestDispatcher_ReAuthorizationFailed(t *testing.T) {
	prod := &fakeProducer{}
	d := NewDispatcher(prod, Config{
		Topic:      "notification.email",
		FromEmail:  "payments@example.com",
		Recipients: []string{"ops@example.com"},
	}, logger.Get())

	d.ReAuthorizationFailed(context.Background(), newTransaction(t), "Your card was declined.")

	require.Len(t, prod.messages, 1)
	msg := prod.messages[0]
	assert.Equal(t, []string{"ops@example.com"}, msg.To)
	assert.Equal(t, "payments@example.com", msg.From)
	assert.Contains(t, msg.Subject, "Order #42")
	assert.Contains(t, msg.Body, "$19.99")
	assert.Contains(t, msg.Body, "Your card was declined.")
	assert.Equal(t, "notification.email", prod.topics[0])
}

func TestDispatcher_ReAuthorizationFailed_NoRecipients(t *testing.T) {
	prod := &fakeProducer{}
	d := NewDispatcher(prod, Config{FromEmail: "payments@example.com"}, logger.Get())

	d.ReAuthorizationFailed(context.Background(), newTransaction(t), "declined")
	assert.Empty(t, prod.messages)
}

func TestDispatcher_PaymentFailed(t *testing.T) {
	prod := &fakeProducer{}
	d := NewDispatcher(prod, Config{FromEmail: "payments@example.com"}, logger.Get())

	tx := newTransaction(t)
	tx.SetOption(domain.OptionCustomerEmail, "buyer@example.com")

	d.PaymentFailed(context.Background(), tx, "Your card has insufficient funds.")

	require.Len(t, prod.messages, 1)
	msg := prod.messages[0]
	assert.Equal(t, []string{"buyer@example.com"}, msg.To)
	assert.Contains(t, msg.Body, "$19.99")
	assert.Contains(t, msg.Body, "order #42")
}

func TestDispatcher_PaymentFailed_NoEmailIsSkipped(t *testing.T) {
	prod := &fakeProducer{}
	d := NewDispatcher(prod, Config{FromEmail: "payments@example.com"}, logger.Get())

	d.PaymentFailed(context.Background(), newTransaction(t), "declined")
	assert.Empty(t, prod.messages)
}

func TestDispatcher_PublishFailureIsSwallowed(t *testing.T) {
	prod := &fakeProducer{err: errors.New("brokers unreachable")}
	d := NewDispatcher(prod, Config{
		FromEmail:  "payments@example.com",
		Recipients: []string{"ops@example.com"},
	}, logger.Get())

	// must not panic or propagate
	d.ReAuthorizationFailed(context.Background(), newTransaction(t), "declined")
}

func TestFormatAmount(t *testing.T) {
	tx := newTransaction(t)
	assert.Equal(t, "$19.99", formatAmount(tx))

	tx.Currency = "THB"
	assert.Equal(t, "19.99 THB", formatAmount(tx))

	tx.Currency = "JPY"
	tx.Amount = 1500
	assert.Equal(t, "¥1500", formatAmount(tx))
}

func TestDispatcher_Send(t *testing.T) {
	producer := &fakeProducer{}
	d := NewDispatcher(producer, Config{FromEmail: "ops@example.com"}, logger.Get())

	d.Send(context.Background(), []string{"a@example.com", "b@example.com"}, "Weekly digest", "All holds renewed.")

	require.Len(t, producer.messages, 1)
	msg := producer.messages[0]
	assert.Equal(t, []string{"a@example.com", "b@example.com"}, msg.To)
	assert.Equal(t, "ops@example.com", msg.From)
	assert.Equal(t, "Weekly digest", msg.Subject)
	assert.Equal(t, "All holds renewed.", msg.Body)
}

func TestDispatcher_Send_NoRecipients(t *testing.T) {
	producer := &fakeProducer{}
	d := NewDispatcher(producer, Config{}, logger.Get())

	d.Send(context.Background(), nil, "subject", "body")

	assert.Empty(t, producer.messages)
}
