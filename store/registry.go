package store

import "sync"

// Registry holds the descriptors of all registered entity types for lookup
// by the cascade engine.
type Registry struct {
	mu    sync.RWMutex
	descs map[string]Descriptor
}

// NewRegistry creates a new empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		descs: make(map[string]Descriptor),
	}
}

// put records a descriptor, replacing any previous registration of the
// same store name.
func (r *Registry) put(d Descriptor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.descs[d.Store] = d
}

// Descriptor returns the descriptor registered for a store name.
func (r *Registry) Descriptor(store string) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.descs[store]
	return d, ok
}

// SiblingsOf returns the sibling links declared by a store.
func (r *Registry) SiblingsOf(store string) []Link {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.descs[store].Siblings
}

// ChildrenOf returns the child links declared by a store.
func (r *Registry) ChildrenOf(store string) []Link {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.descs[store].Children
}

// Stores returns the names of all registered stores.
func (r *Registry) Stores() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.descs))
	for name := range r.descs {
		names = append(names, name)
	}
	return names
}
