package config

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/MrWong99/keyline/pkg/audio"
	"github.com/MrWong99/keyline/pkg/playback"
)

// ErrSinkNotRegistered is returned by [Registry.Create] when no factory has
// been registered under the requested output kind.
var ErrSinkNotRegistered = errors.New("config: output sink not registered")

// Sink drains a [playback.Queue] to an output until its context ends.
type Sink interface {
	Run(ctx context.Context) error
	Healthy() bool
}

// SinkFactory constructs a sink draining q, which carries audio in format.
type SinkFactory func(cfg OutputConfig, q *playback.Queue, format audio.Format) (Sink, error)

// Registry maps output kinds to sink constructors. It is safe for
// concurrent use.
type Registry struct {
	mu    sync.RWMutex
	sinks map[OutputKind]SinkFactory
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{sinks: make(map[OutputKind]SinkFactory)}
}

// Register registers a sink factory under kind.
// Subsequent calls with the same kind overwrite the previous registration.
func (r *Registry) Register(kind OutputKind, factory SinkFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sinks[kind] = factory
}

// Create instantiates the sink registered under cfg.Device.
// Returns [ErrSinkNotRegistered] if no factory has been registered for it.
func (r *Registry) Create(cfg OutputConfig, q *playback.Queue, format audio.Format) (Sink, error) {
	r.mu.RLock()
	factory, ok := r.sinks[cfg.Device]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrSinkNotRegistered, cfg.Device)
	}
	return factory(cfg, q, format)
}

// Kinds returns the registered output kinds in sorted order.
func (r *Registry) Kinds() []OutputKind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]OutputKind, 0, len(r.sinks))
	for k := range r.sinks {
		kinds = append(kinds, k)
	}
	slices.Sort(kinds)
	return kinds
}
