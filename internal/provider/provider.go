// Package provider defines the uniform contract around the four
// external providers and the resilience pipeline every call flows
// through.
package provider

import (
	"context"
	"sync"
	"time"

	"github.com/taste-trails/localguide/internal/model"
)

// Request is the normalized input to any provider call.
type Request struct {
	Query   model.Query
	Profile *model.UserProfile

	// Prompt carries the polishing input for language generation;
	// empty for the data providers.
	Prompt string
}

// Payload is the normalized output of one provider call. Data
// providers fill Candidates; language generation fills Text.
type Payload struct {
	Candidates []model.Candidate
	Text       string
}

// Provider translates one external API to the uniform contract. Fetch
// returns the raw translated payload; the adapter owns retries,
// circuit breaking, caching, and fallback.
type Provider interface {
	// Name returns the provider identifier.
	Name() model.ProviderID
	// Fetch performs one network call.
	Fetch(ctx context.Context, req Request) (*Payload, error)
	// TTL is how long results stay cacheable. Non-positive means the
	// provider's results are never cached.
	TTL() time.Duration
	// CacheKey returns the deterministic key for a request.
	CacheKey(req Request) string
}

// Registry manages the configured adapters by provider id.
type Registry struct {
	mu       sync.RWMutex
	adapters map[model.ProviderID]*Adapter
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[model.ProviderID]*Adapter)}
}

// Register adds an adapter to the registry.
func (r *Registry) Register(a *Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.Name()] = a
}

// Get returns the adapter for id, or nil if not configured.
func (r *Registry) Get(id model.ProviderID) *Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.adapters[id]
}

// List returns all registered provider ids.
func (r *Registry) List() []model.ProviderID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]model.ProviderID, 0, len(r.adapters))
	for id := range r.adapters {
		ids = append(ids, id)
	}
	return ids
}
