package relayz

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/zoobzio/metricz"
)

// Observability constants for the Registry.
const (
	RegistryLookupsTotal       = metricz.Key("registry.lookups.total")
	RegistryMissesTotal        = metricz.Key("registry.misses.total")
	RegistryFactoryErrorsTotal = metricz.Key("registry.factory_errors.total")
	RegistryEntries            = metricz.Key("registry.entries")
)

// Factory builds a stage object on every lookup.
type Factory func(ctx context.Context) (any, error)

type registryEntry struct {
	instance any
	factory  Factory
}

// Registry is a Locator keyed by stage name. Entries are either shared
// instances or factories that build a fresh object per lookup, which suits
// stages that hold per-run state.
//
// Registry is safe for concurrent use.
//
//	registry := relayz.NewRegistry()
//	registry.Register("auth", &AuthStage{keys: keys})
//	registry.RegisterFactory("audit", func(context.Context) (any, error) {
//	    return NewAuditStage(db), nil
//	})
//
//	pipeline := relayz.New[Request]("api", registry).
//	    Through(relayz.Refs[Request]("auth", "audit:orders")...)
type Registry struct {
	entries map[string]registryEntry
	metrics *metricz.Registry
	mu      sync.RWMutex
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	metrics := metricz.New()
	metrics.Counter(RegistryLookupsTotal)
	metrics.Counter(RegistryMissesTotal)
	metrics.Counter(RegistryFactoryErrorsTotal)
	metrics.Gauge(RegistryEntries)

	return &Registry{
		entries: make(map[string]registryEntry),
		metrics: metrics,
	}
}

// Register stores a shared stage object under name, replacing any previous
// entry.
func (r *Registry) Register(name string, stage any) error {
	if name == "" {
		return ErrEmptyName
	}
	if stage == nil {
		return fmt.Errorf("register %q: %w", name, ErrNilStage)
	}
	r.set(name, registryEntry{instance: stage})
	return nil
}

// RegisterFactory stores a factory under name, replacing any previous entry.
func (r *Registry) RegisterFactory(name string, factory Factory) error {
	if name == "" {
		return ErrEmptyName
	}
	if factory == nil {
		return fmt.Errorf("register %q: %w", name, ErrNilStage)
	}
	r.set(name, registryEntry{factory: factory})
	return nil
}

func (r *Registry) set(name string, entry registryEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[name] = entry
	r.metrics.Gauge(RegistryEntries).Set(float64(len(r.entries)))
}

// Lookup implements Locator. Unknown names return an error wrapping
// ErrStageNotFound.
func (r *Registry) Lookup(ctx context.Context, name string) (any, error) {
	r.metrics.Counter(RegistryLookupsTotal).Inc()

	r.mu.RLock()
	entry, ok := r.entries[name]
	r.mu.RUnlock()

	if !ok {
		r.metrics.Counter(RegistryMissesTotal).Inc()
		return nil, fmt.Errorf("%w: %q", ErrStageNotFound, name)
	}
	if entry.factory == nil {
		return entry.instance, nil
	}

	stage, err := entry.factory(ctx)
	if err != nil {
		r.metrics.Counter(RegistryFactoryErrorsTotal).Inc()
		return nil, fmt.Errorf("factory %q: %w", name, err)
	}
	return stage, nil
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[name]
	return ok
}

// Remove deletes the entry for name.
func (r *Registry) Remove(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[name]; !ok {
		return fmt.Errorf("%w: %q", ErrStageNotFound, name)
	}
	delete(r.entries, name)
	r.metrics.Gauge(RegistryEntries).Set(float64(len(r.entries)))
	return nil
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	r.mu.RUnlock()

	slices.Sort(names)
	return names
}

// Len returns the number of registered entries.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Metrics returns the metrics registry for this Registry.
func (r *Registry) Metrics() *metricz.Registry {
	return r.metrics
}
