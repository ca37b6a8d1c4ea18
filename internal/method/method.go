package method

import (
	"context"
	"sort"

	"github.com/commercekit/stripe-service/internal/domain"
	"github.com/commercekit/stripe-service/internal/gateway"
)

// PaymentMethod executes transaction actions against a specific processor.
// Implementations receive the transaction with its processor references
// (payment intent, customer) already resolved by the caller.
type PaymentMethod interface {
	// Identifier returns the name transactions store in payment_method
	Identifier() string

	// Supports reports whether the method can execute the given action
	Supports(action domain.TransactionAction) bool

	// Execute runs the action for the transaction and returns the
	// processor outcome. Unsupported actions fail with
	// domain.ErrActionNotSupported.
	Execute(ctx context.Context, action domain.TransactionAction, tx *domain.PaymentTransaction) (*gateway.ActionResult, error)
}

// Registry resolves payment methods by identifier. Registration happens at
// startup; lookups are read-only afterwards, so no locking is needed.
type Registry struct {
	methods map[string]PaymentMethod
}

// NewRegistry creates an empty method registry
func NewRegistry() *Registry {
	return &Registry{methods: make(map[string]PaymentMethod)}
}

// Register adds a method under its identifier, replacing any previous one
func (r *Registry) Register(m PaymentMethod) {
	r.methods[m.Identifier()] = m
}

// Get resolves a method by identifier
func (r *Registry) Get(identifier string) (PaymentMethod, error) {
	m, ok := r.methods[identifier]
	if !ok {
		return nil, domain.ErrMethodNotRegistered
	}
	return m, nil
}

// Has reports whether a method is registered under the identifier
func (r *Registry) Has(identifier string) bool {
	_, ok := r.methods[identifier]
	return ok
}

// Identifiers returns the identifiers of all registered methods, sorted
func (r *Registry) Identifiers() []string {
	ids := make([]string, 0, len(r.methods))
	for id := range r.methods {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
