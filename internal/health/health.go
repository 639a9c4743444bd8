// Package health runs named readiness checks for server subsystems.
package health

import (
	"context"
	"sync"
	"time"
)

// DefaultTimeout bounds a single check; a hung subsystem must not hang
// the readiness probe.
const DefaultTimeout = 2 * time.Second

// Status is the outcome of one subsystem check.
type Status struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
	Detail  string `json:"detail,omitempty"`
}

// Check probes one subsystem. A nil error means healthy.
type Check func(ctx context.Context) error

// Registry holds named checks and runs them on demand.
type Registry struct {
	mu     sync.RWMutex
	names  []string
	checks map[string]Check
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{checks: make(map[string]Check)}
}

// Register adds a named check. Registering the same name twice replaces
// the earlier check.
func (r *Registry) Register(name string, check Check) {
	r.mu.Lock()
	if _, exists := r.checks[name]; !exists {
		r.names = append(r.names, name)
	}
	r.checks[name] = check
	r.mu.Unlock()
}

// RunAll executes every check with a per-check timeout and returns the
// aggregate verdict plus individual results in registration order.
func (r *Registry) RunAll(ctx context.Context) (bool, []Status) {
	r.mu.RLock()
	names := make([]string, len(r.names))
	copy(names, r.names)
	checks := make(map[string]Check, len(r.checks))
	for name, check := range r.checks {
		checks[name] = check
	}
	r.mu.RUnlock()

	healthy := true
	statuses := make([]Status, 0, len(names))
	for _, name := range names {
		checkCtx, cancel := context.WithTimeout(ctx, DefaultTimeout)
		err := checks[name](checkCtx)
		cancel()

		s := Status{Name: name, Healthy: err == nil}
		if err != nil {
			s.Detail = err.Error()
			healthy = false
		}
		statuses = append(statuses, s)
	}
	return healthy, statuses
}
