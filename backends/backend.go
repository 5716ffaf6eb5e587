// Package backends implements the downstream operation handlers the
// dispatcher routes instructions to, one per operation type.
package backends

import (
	"context"
	"fmt"
	"sync"

	"github.com/jtaylorcomplize/wombat-track-scaffold-sub008/domain"
)

// Result is the backend-specific outcome of one operation.
type Result struct {
	Output    map[string]any
	Artifacts []string
}

// Handler executes the actions of one operation type. Implementations hold
// no orchestration state and must respect ctx cancellation.
type Handler interface {
	Execute(ctx context.Context, action string, params domain.OperationParams) (*Result, error)
}

// Registry stores backend handlers keyed by operation type.
type Registry struct {
	mu       sync.RWMutex
	handlers map[domain.OperationType]Handler
}

// NewRegistry creates an empty backend registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[domain.OperationType]Handler),
	}
}

// Register adds a handler for an operation type.
func (r *Registry) Register(t domain.OperationType, h Handler) error {
	if t == "" {
		return fmt.Errorf("operation type is required")
	}
	if h == nil {
		return fmt.Errorf("handler is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[t]; exists {
		return fmt.Errorf("handler already registered for %s", t)
	}
	r.handlers[t] = h
	return nil
}

// MustRegister adds a handler or panics.
func (r *Registry) MustRegister(t domain.OperationType, h Handler) {
	if err := r.Register(t, h); err != nil {
		panic(err)
	}
}

// Execute routes to the handler for the operation type.
func (r *Registry) Execute(ctx context.Context, t domain.OperationType, action string, params domain.OperationParams) (*Result, error) {
	r.mu.RLock()
	h := r.handlers[t]
	r.mu.RUnlock()
	if h == nil {
		return nil, fmt.Errorf("%w: no handler for %q", domain.ErrUnknownOperationType, t)
	}
	return h.Execute(ctx, action, params)
}
