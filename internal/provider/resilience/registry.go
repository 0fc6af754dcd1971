package resilience

import (
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
)

// ProviderHealth is a point-in-time view of one provider's health, exposed
// through the ops status endpoint.
type ProviderHealth struct {
	Name             string    `json:"name"`
	CircuitState     string    `json:"circuitState"`
	ConsecutiveFails uint32    `json:"consecutiveFailures"`
	TotalRequests    uint32    `json:"totalRequests"`
	TotalFailures    uint32    `json:"totalFailures"`
	LastError        string    `json:"lastError,omitempty"`
	LastSuccessAt    time.Time `json:"lastSuccessAt,omitzero"`
	LastFailureAt    time.Time `json:"lastFailureAt,omitzero"`
}

// IsHealthy reports whether the circuit is closed and the provider has no
// recent run of failures.
func (h ProviderHealth) IsHealthy() bool {
	return h.CircuitState == gobreaker.StateClosed.String() && h.ConsecutiveFails == 0
}

// IsDegraded reports whether the provider is failing intermittently but
// the circuit has not opened.
func (h ProviderHealth) IsDegraded() bool {
	return h.CircuitState == gobreaker.StateClosed.String() && h.ConsecutiveFails > 0
}

// IsUnhealthy reports whether the circuit is open or half-open.
func (h ProviderHealth) IsUnhealthy() bool {
	return h.CircuitState != gobreaker.StateClosed.String()
}

type providerRecord struct {
	client        *Client
	lastError     string
	lastSuccessAt time.Time
	lastFailureAt time.Time
	consecFails   uint32
}

// Registry tracks the health of registered provider clients.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]*providerRecord
	now       func() time.Time
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]*providerRecord),
		now:       time.Now,
	}
}

// Register adds a provider client to the registry. Re-registering a name
// replaces the previous client.
func (r *Registry) Register(name string, client *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[name] = &providerRecord{client: client}
}

// RecordSuccess notes a successful call for the named provider.
func (r *Registry) RecordSuccess(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.providers[name]
	if !ok {
		return
	}
	rec.lastSuccessAt = r.now()
	rec.consecFails = 0
	rec.lastError = ""
}

// RecordFailure notes a failed call for the named provider.
func (r *Registry) RecordFailure(name string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.providers[name]
	if !ok {
		return
	}
	rec.lastFailureAt = r.now()
	rec.consecFails++
	if err != nil {
		rec.lastError = err.Error()
	}
}

// GetHealth returns the health of one provider.
func (r *Registry) GetHealth(name string) (ProviderHealth, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.providers[name]
	if !ok {
		return ProviderHealth{}, false
	}
	return r.healthLocked(name, rec), true
}

// GetAllHealth returns the health of every registered provider.
func (r *Registry) GetAllHealth() []ProviderHealth {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ProviderHealth, 0, len(r.providers))
	for name, rec := range r.providers {
		out = append(out, r.healthLocked(name, rec))
	}
	return out
}

func (r *Registry) healthLocked(name string, rec *providerRecord) ProviderHealth {
	counts := rec.client.Counts()
	return ProviderHealth{
		Name:             name,
		CircuitState:     rec.client.State().String(),
		ConsecutiveFails: rec.consecFails,
		TotalRequests:    counts.Requests,
		TotalFailures:    counts.TotalFailures,
		LastError:        rec.lastError,
		LastSuccessAt:    rec.lastSuccessAt,
		LastFailureAt:    rec.lastFailureAt,
	}
}
