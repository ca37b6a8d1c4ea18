package webhook

import (
	"context"
	"sync"
)

// MemoryEndpointRepository implements EndpointRepository in memory for tests
type MemoryEndpointRepository struct {
	mu         sync.RWMutex
	nextID     int64
	byAccessID map[string]*EndpointConfig
}

// NewMemoryEndpointRepository creates an empty in-memory repository
func NewMemoryEndpointRepository() *MemoryEndpointRepository {
	return &MemoryEndpointRepository{
		nextID:     1,
		byAccessID: make(map[string]*EndpointConfig),
	}
}

func (r *MemoryEndpointRepository) GetByAccessID(ctx context.Context, accessID string) (*EndpointConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	config, ok := r.byAccessID[accessID]
	if !ok || !config.Active {
		return nil, ErrEndpointNotFound
	}
	out := *config
	return &out, nil
}

func (r *MemoryEndpointRepository) Create(ctx context.Context, config *EndpointConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byAccessID[config.AccessID]; ok {
		return ErrEndpointConflict
	}

	config.ID = r.nextID
	r.nextID++

	stored := *config
	r.byAccessID[config.AccessID] = &stored
	return nil
}

func (r *MemoryEndpointRepository) Update(ctx context.Context, config *EndpointConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byAccessID[config.AccessID]; !ok {
		return ErrEndpointNotFound
	}

	stored := *config
	r.byAccessID[config.AccessID] = &stored
	return nil
}

func (r *MemoryEndpointRepository) Delete(ctx context.Context, accessID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byAccessID[accessID]; !ok {
		return ErrEndpointNotFound
	}
	delete(r.byAccessID, accessID)
	return nil
}
