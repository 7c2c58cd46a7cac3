package breaker

import "sync"

// Registry is the process-scope set of breakers keyed by class name.
// Modelled as explicit state with init/shutdown lifecycle rather than a
// lazy singleton.
type Registry struct {
	mu       sync.RWMutex
	breakers map[string]*Breaker
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{breakers: make(map[string]*Breaker)}
}

// Get returns the breaker for a class, creating it from the class preset
// on first use.
func (r *Registry) Get(class Class) *Breaker {
	r.mu.RLock()
	if b, ok := r.breakers[string(class)]; ok {
		r.mu.RUnlock()
		return b
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.breakers[string(class)]; ok {
		return b
	}
	b := New(Settings(class))
	r.breakers[string(class)] = b
	return b
}

// Stats returns metric snapshots for every registered breaker.
func (r *Registry) Stats() map[string]Metrics {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]Metrics, len(r.breakers))
	for name, b := range r.breakers {
		out[name] = b.MetricsSnapshot()
	}
	return out
}

// ResetAll resets every breaker to CLOSED.
func (r *Registry) ResetAll() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, b := range r.breakers {
		b.Reset()
	}
}

// CompactAll trims rolling windows and fallback caches; driven by the
// background maintenance task.
func (r *Registry) CompactAll() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, b := range r.breakers {
		b.Compact()
	}
}
