// Package registry tracks live agent executions so they can be cancelled.
package registry

import (
	"sync"

	"go.uber.org/zap"

	"github.com/agentboard/agentboard/internal/common/logger"
)

// CancelFunc requests termination of a running execution. It signals the
// subprocess and returns immediately; it does not wait for the process to
// die.
type CancelFunc func()

// Registry is a shared map of live execution handles keyed by ticket ID.
// Registration and deregistration are safe under concurrent access from
// simultaneous runs; the same ID is never registered twice because at most
// one run per ticket is active at a time.
type Registry struct {
	mu     sync.Mutex
	active map[string]CancelFunc
	logger *logger.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(log *logger.Logger) *Registry {
	return &Registry{
		active: make(map[string]CancelFunc),
		logger: log.WithFields(zap.String("component", "run-registry")),
	}
}

// Register records a live execution. The supervisor calls this at spawn and
// must pair it with Deregister on every exit path.
func (r *Registry) Register(ticketID string, cancel CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active[ticketID] = cancel
}

// Deregister removes an execution without cancelling it. No-op when the ID
// is not registered (e.g. it was already removed by Cancel).
func (r *Registry) Deregister(ticketID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.active, ticketID)
}

// Cancel requests termination of a live execution and removes its
// registration, returning true. Returns false when no execution is
// registered under the ID. Cancel does not rewrite progress state; the
// terminating run's own failure path does that.
func (r *Registry) Cancel(ticketID string) bool {
	r.mu.Lock()
	cancel, ok := r.active[ticketID]
	if ok {
		delete(r.active, ticketID)
	}
	r.mu.Unlock()

	if !ok {
		return false
	}

	r.logger.Info("cancelling execution", zap.String("ticket_id", ticketID))
	cancel()
	return true
}

// IsActive reports whether an execution is registered under the ID.
func (r *Registry) IsActive(ticketID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.active[ticketID]
	return ok
}
