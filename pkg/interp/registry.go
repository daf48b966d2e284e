package interp

import (
	"sort"
	"sync"

	"github.com/MrWong99/keyline/pkg/interp/sandbox"
)

// Spec is the persisted form of a strategy. Script is only meaningful for
// scripted strategies.
type Spec struct {
	Identify string `yaml:"identify"`
	Script   string `yaml:"script,omitempty"`
}

// Scripted is implemented by strategies that carry script text.
type Scripted interface {
	Script() string
}

// SpecOf returns the persisted form of l.
func SpecOf(l Logic) Spec {
	s := Spec{Identify: l.Identify()}
	if sc, ok := l.(Scripted); ok {
		s.Script = sc.Script()
	}
	return s
}

// Factory constructs a strategy from its persisted form.
type Factory func(Spec) (Logic, error)

// Registry maps identify keys to strategy constructors. It is safe for
// concurrent use.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns a registry holding the built-in strategies. Scripted
// strategies it constructs use limits.
func NewRegistry(limits sandbox.Limits) *Registry {
	r := &Registry{factories: make(map[string]Factory)}
	r.Register(LinearID, func(Spec) (Logic, error) { return LinearLogic{}, nil })
	r.Register(SmoothstepID, func(Spec) (Logic, error) { return SmoothstepLogic{}, nil })
	r.Register(HoldID, func(Spec) (Logic, error) { return HoldLogic{}, nil })
	r.Register(DynamicExpressionID, func(s Spec) (Logic, error) {
		return NewDynamicExpression(s.Script, limits), nil
	})
	return r
}

// Register stores factory under identify, replacing any previous entry.
func (r *Registry) Register(identify string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[identify] = factory
}

// New resolves s to a new strategy instance. An unregistered key yields an
// [*UnknownLogicError].
func (r *Registry) New(s Spec) (Logic, error) {
	r.mu.RLock()
	factory, ok := r.factories[s.Identify]
	r.mu.RUnlock()
	if !ok {
		return nil, &UnknownLogicError{Identify: s.Identify}
	}
	return factory(s)
}

// Identifiers returns the registered keys in sorted order.
func (r *Registry) Identifiers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.factories))
	for id := range r.factories {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
