package jobs

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/promptctl/promptctl/logger"
)

// Reporter receives progress updates from a running handler.
// Values outside [0,100] are clamped; updates for a job that no longer
// exists are dropped silently.
type Reporter interface {
	Report(progress float64, message string)
}

// Handler defines the interface for executing a specific job type.
// Domain packages implement this interface to handle their job types,
// keeping the queue infrastructure decoupled from domain logic.
//
// Handlers decode their own payload types from the params they are given
// and return an opaque result payload on success.
type Handler interface {
	// Execute runs the job body. Handlers should check ctx.Done()
	// periodically during long operations and report progress through
	// the reporter as work proceeds.
	Execute(ctx context.Context, params json.RawMessage, reporter Reporter) (json.RawMessage, error)

	// Name returns the job type this handler serves (e.g. "optimize").
	Name() string
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc struct {
	TypeName string
	Fn       func(ctx context.Context, params json.RawMessage, reporter Reporter) (json.RawMessage, error)
}

func (h HandlerFunc) Execute(ctx context.Context, params json.RawMessage, reporter Reporter) (json.RawMessage, error) {
	return h.Fn(ctx, params, reporter)
}

func (h HandlerFunc) Name() string { return h.TypeName }

// HandlerRegistry manages job handlers by type name.
// Thread-safe for concurrent registration and lookup.
type HandlerRegistry struct {
	handlers map[string]Handler
	mu       sync.RWMutex
}

// NewHandlerRegistry creates an empty handler registry.
func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{
		handlers: make(map[string]Handler),
	}
}

// Register adds a handler under its type name. Registering the same
// type twice replaces the prior handler; callers must not rely on
// ordering across registrations.
func (r *HandlerRegistry) Register(handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := handler.Name()
	if _, exists := r.handlers[name]; exists {
		logger.Warnw("Replacing registered job handler", "job_type", name)
	}
	r.handlers[name] = handler
}

// Get retrieves the handler for a job type.
// Returns nil if no handler is registered.
func (r *HandlerRegistry) Get(jobType string) Handler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.handlers[jobType]
}

// Has checks if a handler is registered for a job type.
func (r *HandlerRegistry) Has(jobType string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.handlers[jobType]
	return exists
}

// Names returns all registered job type names.
func (r *HandlerRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	return names
}
