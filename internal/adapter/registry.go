package adapter

import "fmt"

// Registry maps chain keys to adapter instances. Built exactly once at
// process start and read-only thereafter, so lookups need no locking.
type Registry struct {
	adapters map[string]Adapter
	sealed   bool
}

// NewRegistry builds a registry from the given adapters, keyed by
// Identify(). Duplicate keys are a fatal startup error.
func NewRegistry(adapters ...Adapter) (*Registry, error) {
	r := &Registry{adapters: make(map[string]Adapter, len(adapters))}
	for _, a := range adapters {
		key := a.Identify()
		if key == "" {
			return nil, fmt.Errorf("adapter %T returned an empty chain key", a)
		}
		if _, exists := r.adapters[key]; exists {
			return nil, fmt.Errorf("duplicate adapter registration for chain %q", key)
		}
		r.adapters[key] = a
	}
	r.sealed = true
	return r, nil
}

// Get returns the adapter for a chain key. There is no default adapter;
// an unregistered key is a NotFound error the caller must handle.
func (r *Registry) Get(key string) (Adapter, error) {
	a, ok := r.adapters[key]
	if !ok {
		return nil, NotFoundf("registry.Get", "no adapter registered for chain %q", key)
	}
	return a, nil
}

// Keys returns all registered chain keys.
func (r *Registry) Keys() []string {
	keys := make([]string, 0, len(r.adapters))
	for k := range r.adapters {
		keys = append(keys, k)
	}
	return keys
}

// Len returns the number of registered adapters.
func (r *Registry) Len() int {
	return len(r.adapters)
}
