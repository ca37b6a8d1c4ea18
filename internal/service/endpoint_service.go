package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/commercekit/stripe-service/internal/gateway"
	"github.com/commercekit/stripe-service/internal/webhook"
	"github.com/commercekit/stripe-service/pkg/logger"
)

// DefaultEnabledEvents are the processor events the service subscribes to
var DefaultEnabledEvents = []string{
	"payment_intent.succeeded",
	"payment_intent.payment_failed",
	"charge.refunded",
}

// EndpointService manages the lifecycle of inbound webhook endpoints: it
// registers the URL with the processor, stores the signing secret, and keeps
// both sides in sync.
type EndpointService interface {
	// Register creates a new endpoint under a fresh access id
	Register(ctx context.Context, enabledEvents []string) (*webhook.EndpointConfig, error)

	// UpdateEvents changes the event subscription of an endpoint
	UpdateEvents(ctx context.Context, accessID string, enabledEvents []string) (*webhook.EndpointConfig, error)

	// Deregister removes the endpoint locally and on the processor
	Deregister(ctx context.Context, accessID string) error
}

type endpointService struct {
	repo    webhook.EndpointRepository
	gateway gateway.PaymentGateway
	baseURL string
	log     *logger.Logger
}

// NewEndpointService creates an endpoint service. baseURL is the public
// root under which webhook routes are mounted.
func NewEndpointService(repo webhook.EndpointRepository, gw gateway.PaymentGateway, baseURL string, log *logger.Logger) EndpointService {
	return &endpointService{
		repo:    repo,
		gateway: gw,
		baseURL: strings.TrimRight(baseURL, "/"),
		log:     log,
	}
}

func (s *endpointService) Register(ctx context.Context, enabledEvents []string) (*webhook.EndpointConfig, error) {
	if len(enabledEvents) == 0 {
		enabledEvents = DefaultEnabledEvents
	}

	accessID := uuid.New().String()
	url := fmt.Sprintf("%s/webhooks/stripe/%s", s.baseURL, accessID)

	result, err := s.gateway.CreateOrUpdateWebhookEndpoint(ctx, url, enabledEvents)
	if err != nil {
		return nil, fmt.Errorf("failed to register endpoint with processor: %w", err)
	}
	if !result.Successful {
		return nil, fmt.Errorf("processor rejected endpoint registration: %s", result.Err.Error())
	}

	endpointID, _ := result.Object["endpoint_id"].(string)
	secret, _ := result.Object["secret"].(string)
	if secret == "" {
		return nil, fmt.Errorf("processor returned no signing secret for endpoint %s", endpointID)
	}

	now := time.Now().UTC()
	config := &webhook.EndpointConfig{
		AccessID:      accessID,
		URL:           url,
		EndpointID:    endpointID,
		SigningSecret: secret,
		EnabledEvents: enabledEvents,
		Active:        true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.repo.Create(ctx, config); err != nil {
		// roll back the processor side so no endpoint points at a URL
		// we cannot serve
		if _, delErr := s.gateway.DeleteWebhookEndpoint(ctx, endpointID); delErr != nil {
			s.log.Error(fmt.Sprintf("Failed to roll back processor endpoint %s: %v", endpointID, delErr))
		}
		return nil, err
	}

	s.log.Info(fmt.Sprintf("Registered webhook endpoint %s as %s", endpointID, accessID))
	return config, nil
}

func (s *endpointService) UpdateEvents(ctx context.Context, accessID string, enabledEvents []string) (*webhook.EndpointConfig, error) {
	config, err := s.repo.GetByAccessID(ctx, accessID)
	if err != nil {
		return nil, err
	}

	result, err := s.gateway.CreateOrUpdateWebhookEndpoint(ctx, config.URL, enabledEvents)
	if err != nil {
		return nil, fmt.Errorf("failed to update endpoint on processor: %w", err)
	}
	if !result.Successful {
		return nil, fmt.Errorf("processor rejected endpoint update: %s", result.Err.Error())
	}

	config.EnabledEvents = enabledEvents
	config.UpdatedAt = time.Now().UTC()
	if err := s.repo.Update(ctx, config); err != nil {
		return nil, err
	}

	return config, nil
}

func (s *endpointService) Deregister(ctx context.Context, accessID string) error {
	config, err := s.repo.GetByAccessID(ctx, accessID)
	if err != nil {
		return err
	}

	result, err := s.gateway.DeleteWebhookEndpoint(ctx, config.EndpointID)
	if err != nil {
		return fmt.Errorf("failed to delete endpoint on processor: %w", err)
	}
	if !result.Successful {
		return fmt.Errorf("processor rejected endpoint deletion: %s", result.Err.Error())
	}

	if err := s.repo.Delete(ctx, accessID); err != nil {
		return err
	}

	s.log.Info(fmt.Sprintf("Deregistered webhook endpoint %s", accessID))
	return nil
}
