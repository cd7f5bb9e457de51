package channel

import (
	"fmt"
	"sync"
)

// Registry holds channel configurations and objectives in declaration order.
type Registry struct {
	mu         sync.RWMutex
	channels   map[string]Config
	order      []string
	objectives map[string]Objective
	objOrder   []string
}

// NewRegistry creates a new empty registry.
func NewRegistry() *Registry {
	return &Registry{
		channels:   make(map[string]Config),
		objectives: make(map[string]Objective),
	}
}

// Register adds a channel. A channel with the same name is replaced in place.
func (r *Registry) Register(c Config) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.channels[c.Name]; !ok {
		r.order = append(r.order, c.Name)
	}
	r.channels[c.Name] = c
}

// Replace swaps the whole channel set.
func (r *Registry) Replace(configs []Config) error {
	next := make(map[string]Config, len(configs))
	order := make([]string, 0, len(configs))
	for _, c := range configs {
		if err := c.Validate(); err != nil {
			return err
		}
		if _, dup := next[c.Name]; dup {
			return fmt.Errorf("duplicate channel %q", c.Name)
		}
		next[c.Name] = c
		order = append(order, c.Name)
	}

	r.mu.Lock()
	r.channels = next
	r.order = order
	r.mu.Unlock()
	return nil
}

// Get retrieves a channel by name.
func (r *Registry) Get(name string) (Config, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.channels[name]
	return c, ok
}

// Lookup resolves several names at once, failing on the first unknown one.
func (r *Registry) Lookup(names ...string) ([]Config, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Config, 0, len(names))
	for _, n := range names {
		c, ok := r.channels[n]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownChannel, n)
		}
		out = append(out, c)
	}
	return out, nil
}

// Names returns channel names in declaration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// All returns all channels in declaration order.
func (r *Registry) All() []Config {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Config, 0, len(r.order))
	for _, n := range r.order {
		out = append(out, r.channels[n])
	}
	return out
}

// Count returns the number of registered channels.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.channels)
}

// RegisterObjective adds an objective.
func (r *Registry) RegisterObjective(o Objective) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.objectives[o.Name]; !ok {
		r.objOrder = append(r.objOrder, o.Name)
	}
	r.objectives[o.Name] = o
}

// Objective retrieves an objective by name.
func (r *Registry) Objective(name string) (Objective, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.objectives[name]
	return o, ok
}

// Objectives returns all objectives in declaration order.
func (r *Registry) Objectives() []Objective {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Objective, 0, len(r.objOrder))
	for _, n := range r.objOrder {
		out = append(out, r.objectives[n])
	}
	return out
}
