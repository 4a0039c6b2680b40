package resources

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/flydevtools/flyserve/internal/protocol"
)

// Registry dispatches resource requests to the strategy whose URI
// prefix matches, defaulting to the workspace strategy. Strategies are
// checked in registration order; dispatch is an explicit prefix scan,
// not reflection.
type Registry struct {
	mu         sync.RWMutex
	strategies []Strategy
	fallback   Strategy
}

// NewRegistry creates an empty resource registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a strategy. The first registered strategy with the
// workspace prefix becomes the fallback for unprefixed URIs.
func (r *Registry) Register(strategy Strategy) error {
	if strategy == nil {
		return fmt.Errorf("strategy is required")
	}
	if strategy.Prefix() == "" {
		return fmt.Errorf("strategy requires a URI prefix")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.strategies = append(r.strategies, strategy)
	if r.fallback == nil && strategy.Prefix() == WorkspacePrefix {
		r.fallback = strategy
	}
	return nil
}

// Strategies returns the registered strategies in registration order.
func (r *Registry) Strategies() []Strategy {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Strategy, len(r.strategies))
	copy(out, r.strategies)
	return out
}

// dispatch returns the strategy claiming the URI's prefix, or the
// workspace fallback for bare paths.
func (r *Registry) dispatch(uri string) (Strategy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, strategy := range r.strategies {
		if strings.HasPrefix(uri, strategy.Prefix()) {
			return strategy, nil
		}
	}
	if r.fallback != nil {
		return r.fallback, nil
	}
	return nil, fmt.Errorf("%w: no strategy for %q", ErrNotFound, uri)
}

// List dispatches a list request by URI prefix.
func (r *Registry) List(ctx context.Context, params protocol.ListResourcesParams) (*protocol.ListResourcesResult, error) {
	strategy, err := r.dispatch(params.URI)
	if err != nil {
		return nil, err
	}
	return strategy.List(ctx, params)
}

// Read dispatches a read request by URI prefix.
func (r *Registry) Read(ctx context.Context, params protocol.ReadResourceParams) (*protocol.ReadResourceResult, error) {
	strategy, err := r.dispatch(params.URI)
	if err != nil {
		return nil, err
	}
	return strategy.Read(ctx, params)
}
