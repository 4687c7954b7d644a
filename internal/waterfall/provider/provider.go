// Package provider defines opening-date sources and their registry.
package provider

import (
	"context"
	"sort"
	"sync"

	"github.com/sells-group/opendate-cli/internal/model"
)

// Provider produces at most one candidate date for an entity.
type Provider interface {
	// Name returns the source identifier used in priority orders.
	Name() string
	// Produce returns nil, nil when the source has no usable date. An error
	// means the source itself failed (network, exhausted retries); callers
	// treat it as no candidate for this entity only.
	Produce(ctx context.Context, e model.Entity) (*model.CandidateDate, error)
}

// Func adapts a function to a Provider.
type Func struct {
	Source string
	Fn     func(ctx context.Context, e model.Entity) (*model.CandidateDate, error)
}

// Name implements Provider.
func (f Func) Name() string { return f.Source }

// Produce implements Provider.
func (f Func) Produce(ctx context.Context, e model.Entity) (*model.CandidateDate, error) {
	return f.Fn(ctx, e)
}

// Registry holds the providers available to a run.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

// NewRegistry creates a registry holding ps.
func NewRegistry(ps ...Provider) *Registry {
	r := &Registry{providers: make(map[string]Provider)}
	for _, p := range ps {
		r.Register(p)
	}
	return r
}

// Register adds or replaces a provider.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Name()] = p
}

// Get returns a provider by name, or nil if not found.
func (r *Registry) Get(name string) Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.providers[name]
}

// List returns all registered provider names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
