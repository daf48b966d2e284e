package effect

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrNotRegistered is returned by [Registry.New] for unknown effect IDs.
var ErrNotRegistered = errors.New("effect: not registered")

// Registry maps effect IDs to constructors. A registry is owned by the
// session that loads projects; there is no package-level instance. It is
// safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]func() Effect
}

// NewRegistry returns a registry holding the built-in effects.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]func() Effect)}
	r.Register(VolumeFadeID, func() Effect { return &VolumeFade{} })
	r.Register(GainID, func() Effect { return &Gain{Gain: 1} })
	return r
}

// Register stores factory under id, replacing any previous entry.
func (r *Registry) Register(id string, factory func() Effect) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[id] = factory
}

// New returns a default-configured effect for id.
func (r *Registry) New(id string) (Effect, error) {
	r.mu.RLock()
	factory, ok := r.factories[id]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotRegistered, id)
	}
	return factory(), nil
}

// IDs returns the registered IDs in sorted order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.factories))
	for id := range r.factories {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
