package webhook

import (
	"context"
	"errors"
	"time"
)

// ErrEndpointConflict means an endpoint with the same access id exists
var ErrEndpointConflict = errors.New("webhook endpoint already exists")

// EndpointConfig is one registered inbound webhook endpoint. The access id
// is an unguessable path segment; requests against unknown access ids are
// rejected before any signature work happens.
type EndpointConfig struct {
	ID            int64     `json:"id"`
	AccessID      string    `json:"access_id"`
	URL           string    `json:"url"`
	EndpointID    string    `json:"endpoint_id"`
	SigningSecret string    `json:"-"`
	EnabledEvents []string  `json:"enabled_events"`
	Active        bool      `json:"active"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// EndpointRepository persists webhook endpoint configs
type EndpointRepository interface {
	// GetByAccessID resolves the endpoint serving the given access id
	GetByAccessID(ctx context.Context, accessID string) (*EndpointConfig, error)

	// Create inserts a new endpoint config and populates its ID
	Create(ctx context.Context, config *EndpointConfig) error

	// Update persists the endpoint's mutable fields
	Update(ctx context.Context, config *EndpointConfig) error

	// Delete removes the endpoint config
	Delete(ctx context.Context, accessID string) error
}
