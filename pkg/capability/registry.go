package capability

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/aretw0/ason/internal/logging"
	"github.com/aretw0/ason/pkg/domain"
)

// Registry is the explicit capability table. It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	types    map[string]*Type
	order    []string
	toolSets map[string]*ToolSet
	tsOrder  []string

	dirty     bool
	built     bool
	cached    Artifacts
	lastExtra string
	listeners []func(Artifacts)

	// rebuild serializes regeneration
	rebuild sync.Mutex

	logger *slog.Logger
}

// Option configures the Registry.
type Option func(*Registry)

// WithLogger configures a logger for rebuild events.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		types:    make(map[string]*Type),
		toolSets: make(map[string]*ToolSet),
		dirty:    true,
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds operator types. A type registered again replaces the previous declaration.
func (r *Registry) Register(types ...*Type) error {
	var errs []error
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range types {
		if t == nil {
			continue
		}
		if err := t.Err(); err != nil {
			errs = append(errs, err)
			continue
		}
		if t.Name == "" {
			errs = append(errs, errors.New("capability type without a name"))
			continue
		}
		if _, exists := r.types[t.Name]; !exists {
			r.order = append(r.order, t.Name)
		}
		r.types[t.Name] = t
		r.dirty = true
	}
	return errors.Join(errs...)
}

// RegisterToolSet merges the tools of an external server into the surface.
func (r *Registry) RegisterToolSet(server string, tools []domain.ToolDescriptor) error {
	ts, err := NewToolSet(server, tools)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.toolSets[server]; !exists {
		r.tsOrder = append(r.tsOrder, server)
	}
	r.toolSets[server] = ts
	r.dirty = true
	return nil
}

// OnRebuilt registers a callback invoked with the fresh artifacts after every rebuild.
func (r *Registry) OnRebuilt(fn func(Artifacts)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, fn)
}

// MarkDirty forces the next RebuildIfDirty to regenerate.
func (r *Registry) MarkDirty() {
	r.mu.Lock()
	r.dirty = true
	r.mu.Unlock()
}

// RebuildIfDirty returns the cached artifacts, regenerating them when a
// source changed since the last build or when extra differs. extra is
// appended verbatim to the prelude and the listing (e.g. root variables).
func (r *Registry) RebuildIfDirty(extra string) Artifacts {
	r.rebuild.Lock()
	defer r.rebuild.Unlock()

	r.mu.RLock()
	if r.built && !r.dirty && extra == r.lastExtra {
		cached := r.cached
		r.mu.RUnlock()
		return cached
	}
	types := make([]*Type, 0, len(r.order))
	for _, name := range r.order {
		types = append(types, r.types[name])
	}
	toolSets := make([]*ToolSet, 0, len(r.tsOrder))
	for _, name := range r.tsOrder {
		toolSets = append(toolSets, r.toolSets[name])
	}
	r.mu.RUnlock()

	artifacts := render(types, toolSets, extra)

	r.mu.Lock()
	r.cached = artifacts
	r.lastExtra = extra
	r.built = true
	r.dirty = false
	listeners := slices.Clone(r.listeners)
	r.mu.Unlock()

	r.logger.Debug("capability surface rebuilt", "types", len(types), "tool_sets", len(toolSets))
	for _, fn := range listeners {
		fn(artifacts)
	}
	return artifacts
}

// Lookup finds the method of kind named name taking argc arguments.
func (r *Registry) Lookup(kind, name string, argc int) (*Method, error) {
	r.mu.RLock()
	t, ok := r.types[kind]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: no capability type %s", domain.ErrMissingMethod, kind)
	}
	for _, m := range t.Methods {
		if m.Name == name && m.Arity() == argc {
			return m, nil
		}
	}
	return nil, fmt.Errorf("%w: %s.%s with %d argument(s)", domain.ErrMissingMethod, kind, name, argc)
}

// Type returns the declaration of kind.
func (r *Registry) Type(kind string) (*Type, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.types[kind]
	return t, ok
}

// ToolSets returns the registered tool sets in registration order.
func (r *Registry) ToolSets() []*ToolSet {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*ToolSet, 0, len(r.tsOrder))
	for _, name := range r.tsOrder {
		out = append(out, r.toolSets[name])
	}
	return out
}

// Types returns the registered operator types in registration order.
func (r *Registry) Types() []*Type {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Type, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.types[name])
	}
	return out
}
