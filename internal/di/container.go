package di

import (
	"github.com/commercekit/stripe-service/internal/currency"
	"github.com/commercekit/stripe-service/internal/gateway"
	"github.com/commercekit/stripe-service/internal/handler"
	"github.com/commercekit/stripe-service/internal/metrics"
	"github.com/commercekit/stripe-service/internal/method"
	"github.com/commercekit/stripe-service/internal/notification"
	"github.com/commercekit/stripe-service/internal/reauthorize"
	"github.com/commercekit/stripe-service/internal/repository"
	"github.com/commercekit/stripe-service/internal/service"
	"github.com/commercekit/stripe-service/internal/webhook"
	"github.com/commercekit/stripe-service/pkg/config"
	"github.com/commercekit/stripe-service/pkg/database"
	"github.com/commercekit/stripe-service/pkg/kafka"
	"github.com/commercekit/stripe-service/pkg/logger"
	"github.com/commercekit/stripe-service/pkg/redis"
)

// Container holds all dependencies for the service
type Container struct {
	// Infrastructure
	DB       *database.PostgresDB
	Redis    *redis.Client
	Producer *kafka.Producer

	// Domain
	Gateway         gateway.PaymentGateway
	Registry        *method.Registry
	TransactionRepo repository.TransactionRepository
	EndpointRepo    webhook.EndpointRepository
	Notifier        *notification.Dispatcher
	Metrics         *metrics.Metrics

	// Services
	PaymentService  service.PaymentService
	EndpointService service.EndpointService
	Pipeline        *webhook.Pipeline
	Executor        *reauthorize.Executor
	Provider        reauthorize.Provider

	// Handlers
	HealthHandler   *handler.HealthHandler
	PaymentHandler  *handler.PaymentHandler
	WebhookHandler  *handler.WebhookHandler
	EndpointHandler *handler.EndpointHandler
}

// ContainerConfig contains configuration for building the container
type ContainerConfig struct {
	Config   *config.Config
	DB       *database.PostgresDB
	Redis    *redis.Client
	Producer *kafka.Producer
	Gateway  gateway.PaymentGateway
	Metrics  *metrics.Metrics
}

// NewContainer wires the service graph. Infrastructure handles may be nil;
// the container falls back to in-memory implementations so the service can
// boot degraded in development.
func NewContainer(cfg *ContainerConfig) (*Container, error) {
	log := logger.Get()

	c := &Container{
		DB:       cfg.DB,
		Redis:    cfg.Redis,
		Producer: cfg.Producer,
		Gateway:  cfg.Gateway,
		Metrics:  cfg.Metrics,
	}

	if c.DB != nil {
		c.TransactionRepo = repository.NewPostgresTransactionRepository(c.DB)
		c.EndpointRepo = webhook.NewPostgresEndpointRepository(c.DB)
	} else {
		c.TransactionRepo = repository.NewMemoryTransactionRepository()
		c.EndpointRepo = webhook.NewMemoryEndpointRepository()
	}

	if c.Producer != nil {
		c.Notifier = notification.NewDispatcher(c.Producer, notification.Config{
			Topic:      cfg.Config.Notification.Topic,
			FromEmail:  cfg.Config.Notification.FromEmail,
			Recipients: cfg.Config.ReAuthorization.Recipients,
		}, log)
	}

	c.Registry = method.NewRegistry()
	c.Registry.Register(method.NewStripeMethod(cfg.Config.Stripe.PaymentMethodName, c.Gateway, log))

	var limits *currency.Limits
	if cfg.Config.Payment.MinAmount > 0 || cfg.Config.Payment.MaxAmount > 0 {
		limits = &currency.Limits{}
		if cfg.Config.Payment.MinAmount > 0 {
			limits.Min = map[string]float64{"*": cfg.Config.Payment.MinAmount}
		}
		if cfg.Config.Payment.MaxAmount > 0 {
			limits.Max = map[string]float64{"*": cfg.Config.Payment.MaxAmount}
		}
	}

	c.PaymentService = service.NewPaymentService(c.TransactionRepo, c.Registry, c.Gateway, cfg.Config.Stripe.PaymentMethodName, limits, log)
	c.EndpointService = service.NewEndpointService(c.EndpointRepo, c.Gateway, cfg.Config.Server.PublicURL, log)

	var dedup webhook.Deduplicator
	if c.Redis != nil {
		dedup = webhook.NewRedisDeduplicator(c.Redis, log)
	} else {
		dedup = webhook.NewMemoryDeduplicator()
	}

	var failureNotifier webhook.Notifier
	if c.Notifier != nil {
		failureNotifier = c.Notifier
	}
	c.Pipeline = webhook.NewPipeline(c.EndpointRepo, dedup, c.Metrics, log,
		webhook.NewPaymentSucceededHandler(c.TransactionRepo, log),
		webhook.NewPaymentFailedHandler(c.TransactionRepo, failureNotifier, log),
		webhook.NewChargeRefundedHandler(c.TransactionRepo, log),
	)

	var renewalNotifier reauthorize.Notifier
	if c.Notifier != nil {
		renewalNotifier = c.Notifier
	}
	c.Executor = reauthorize.NewExecutor(c.TransactionRepo, c.Registry, renewalNotifier, log)

	provider, err := reauthorize.NewExpiringAuthorizationProvider(
		c.TransactionRepo,
		c.Registry.Identifiers(),
		cfg.Config.ReAuthorization.CreatedLaterThan,
		cfg.Config.ReAuthorization.CreatedEarlierThan,
		cfg.Config.ReAuthorization.BufferSize,
	)
	if err != nil {
		return nil, err
	}
	c.Provider = reauthorize.NewCompositeProvider(provider)

	c.HealthHandler = handler.NewHealthHandler(c.DB, c.Redis)
	c.PaymentHandler = handler.NewPaymentHandler(c.PaymentService, c.Metrics, log)
	c.WebhookHandler = handler.NewWebhookHandler(c.Pipeline, c.Metrics, log)
	c.EndpointHandler = handler.NewEndpointHandler(c.EndpointService, log)

	return c, nil
}
