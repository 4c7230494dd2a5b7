package effect

import (
	"fmt"

	"github.com/energia-project/energia/internal/schedule"
)

// Registry dispatches an effect name to its owning effector. The
// controller never branches on concrete effector kind; it builds one
// Registry from the configured effectors and the sequencer looks up
// through it.
type Registry struct {
	byName map[schedule.Name]Effector
	all    []Effector
}

// NewRegistry builds a dispatch table from the given effectors' declared
// supported effects. Returns an error if two effectors claim the same
// effect name.
func NewRegistry(effectors ...Effector) (*Registry, error) {
	r := &Registry{byName: make(map[schedule.Name]Effector), all: effectors}
	for _, e := range effectors {
		for _, name := range e.SupportedEffects() {
			if existing, ok := r.byName[name]; ok {
				return nil, fmt.Errorf("effect %q claimed by both %q and %q", name, existing.Name(), e.Name())
			}
			r.byName[name] = e
		}
	}
	return r, nil
}

// Lookup returns the effector owning the given effect name.
func (r *Registry) Lookup(name schedule.Name) (Effector, bool) {
	e, ok := r.byName[name]
	return e, ok
}

// All returns every registered effector, in the order they were added.
func (r *Registry) All() []Effector {
	return r.all
}
