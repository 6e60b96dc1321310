package agent

import (
	"fmt"
	"log"
	"sort"
	"sync"
)

// Def is the declarative configuration for one agent instance, typically
// loaded from YAML alongside the execution plan.
type Def struct {
	ID     string         `yaml:"id"`
	Model  string         `yaml:"model,omitempty"`
	Prompt string         `yaml:"prompt,omitempty"`
	Extra  map[string]any `yaml:",inline"`
}

// GetString returns a string value from the def's extra fields, or def if the
// key is absent or not a string.
func (d *Def) GetString(key, def string) string {
	if v, ok := d.Extra[key].(string); ok {
		return v
	}
	return def
}

// Constructor builds a fresh agent instance from its definition.
type Constructor func(def Def) (Agent, error)

// ErrNotRegistered is returned by Registry.Create for unknown agent names.
var ErrNotRegistered = fmt.Errorf("agent not registered")

// Registry maps agent type names to constructors. It is an explicit value
// constructed at startup and passed to whoever builds the orchestrator, so
// tests can register mocks without touching process-wide state.
type Registry struct {
	mu    sync.RWMutex
	ctors map[string]Constructor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{ctors: make(map[string]Constructor)}
}

// Register associates a name with a constructor. Registering a duplicate name
// logs a warning and overwrites the previous constructor.
func (r *Registry) Register(name string, ctor Constructor) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.ctors[name]; exists {
		log.Printf("[Registry] Warning: overwriting constructor for agent %q", name)
	}
	r.ctors[name] = ctor
}

// Create instantiates a new agent of the named type.
func (r *Registry) Create(name string, def Def) (Agent, error) {
	r.mu.RLock()
	ctor, ok := r.ctors[name]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotRegistered, name)
	}

	if def.ID == "" {
		def.ID = name
	}
	return ctor(def)
}

// Names returns the registered agent type names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.ctors))
	for name := range r.ctors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
