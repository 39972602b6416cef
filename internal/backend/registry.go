package backend

import "sync"

// Registry is the process-wide name->Backend lookup table admin and proxy
// code consult to pick a backend, ported in shape from the teacher's
// go/core/backend_registry.go (a mutex-guarded map plus Register/
// Unregister/List), generalized to this module's richer Backend record.
type Registry struct {
	mu       sync.Mutex
	backends map[string]*Backend
}

func NewRegistry() *Registry {
	return &Registry{backends: make(map[string]*Backend)}
}

func (r *Registry) Register(b *Backend) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backends[b.Name()] = b
}

func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.backends, name)
}

func (r *Registry) Get(name string) (*Backend, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.backends[name]
	return b, ok
}

func (r *Registry) List() []*Backend {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Backend, 0, len(r.backends))
	for _, b := range r.backends {
		out = append(out, b)
	}
	return out
}

// Healthy returns only the backends currently accepting traffic.
func (r *Registry) Healthy() []*Backend {
	all := r.List()
	out := make([]*Backend, 0, len(all))
	for _, b := range all {
		if b.Healthy() {
			out = append(out, b)
		}
	}
	return out
}
