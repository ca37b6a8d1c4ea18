package webhook

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/commercekit/stripe-service/pkg/database"
)

// PostgreSQL error code for unique violation
const pgUniqueViolationCode = "23505"

// PostgresEndpointRepository implements EndpointRepository using PostgreSQL
type PostgresEndpointRepository struct {
	db *database.PostgresDB
}

// NewPostgresEndpointRepository creates a new PostgreSQL endpoint repository
func NewPostgresEndpointRepository(db *database.PostgresDB) *PostgresEndpointRepository {
	return &PostgresEndpointRepository{db: db}
}

const endpointColumns = `
	id, access_id, url, endpoint_id, signing_secret, enabled_events,
	active, created_at, updated_at
`

// GetByAccessID resolves the endpoint serving the given access id
func (r *PostgresEndpointRepository) GetByAccessID(ctx context.Context, accessID string) (*EndpointConfig, error) {
	query := `SELECT ` + endpointColumns + ` FROM webhook_endpoints WHERE access_id = $1 AND active = true`

	var config EndpointConfig
	err := r.db.Pool().QueryRow(ctx, query, accessID).Scan(
		&config.ID,
		&config.AccessID,
		&config.URL,
		&config.EndpointID,
		&config.SigningSecret,
		&config.EnabledEvents,
		&config.Active,
		&config.CreatedAt,
		&config.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrEndpointNotFound
		}
		return nil, fmt.Errorf("failed to get webhook endpoint: %w", err)
	}

	return &config, nil
}

// Create inserts a new endpoint config and populates its ID
func (r *PostgresEndpointRepository) Create(ctx context.Context, config *EndpointConfig) error {
	query := `
		INSERT INTO webhook_endpoints (
			access_id, url, endpoint_id, signing_secret, enabled_events,
			active, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`

	err := r.db.Pool().QueryRow(ctx, query,
		config.AccessID,
		config.URL,
		config.EndpointID,
		config.SigningSecret,
		config.EnabledEvents,
		config.Active,
		config.CreatedAt,
		config.UpdatedAt,
	).Scan(&config.ID)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolationCode {
			return ErrEndpointConflict
		}
		return fmt.Errorf("failed to create webhook endpoint: %w", err)
	}

	return nil
}

// Update persists the endpoint's mutable fields
func (r *PostgresEndpointRepository) Update(ctx context.Context, config *EndpointConfig) error {
	query := `
		UPDATE webhook_endpoints SET
			url = $1,
			endpoint_id = $2,
			signing_secret = $3,
			enabled_events = $4,
			active = $5,
			updated_at = $6
		WHERE access_id = $7`

	tag, err := r.db.Pool().Exec(ctx, query,
		config.URL,
		config.EndpointID,
		config.SigningSecret,
		config.EnabledEvents,
		config.Active,
		config.UpdatedAt,
		config.AccessID,
	)
	if err != nil {
		return fmt.Errorf("failed to update webhook endpoint: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrEndpointNotFound
	}

	return nil
}

// Delete removes the endpoint config
func (r *PostgresEndpointRepository) Delete(ctx context.Context, accessID string) error {
	tag, err := r.db.Pool().Exec(ctx, `DELETE FROM webhook_endpoints WHERE access_id = $1`, accessID)
	if err != nil {
		return fmt.Errorf("failed to delete webhook endpoint: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrEndpointNotFound
	}

	return nil
}
