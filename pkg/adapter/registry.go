package adapter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/leapstack-labs/leaprun/pkg/core"
)

// Factory constructs an unconnected adapter.
type Factory func(*slog.Logger) Adapter

type registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

var adapters = newRegistry()

func newRegistry() *registry {
	return &registry{factories: make(map[string]Factory)}
}

func (r *registry) register(name string, factory Factory) {
	if factory == nil {
		panic("adapter: Register factory is nil for " + name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.factories[name]; dup {
		panic("adapter: Register called twice for " + name)
	}
	r.factories[name] = factory
}

func (r *registry) get(name string) (Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[name]
	return f, ok
}

func (r *registry) names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.factories))
}

// Register makes an adapter available under name. Adapter packages call
// it from init; registering nil or the same name twice panics.
func Register(name string, factory Factory) { adapters.register(name, factory) }

// Get returns the factory registered under name.
func Get(name string) (Factory, bool) { return adapters.get(name) }

func IsRegistered(name string) bool {
	_, ok := adapters.get(name)
	return ok
}

// ListAdapters returns the registered names, sorted.
func ListAdapters() []string { return adapters.names() }

var errNoType = errors.New("adapter type not specified")

// NewAdapter builds the adapter for cfg.Type without connecting it.
// A nil logger discards output.
func NewAdapter(cfg core.AdapterConfig, logger *slog.Logger) (Adapter, error) {
	if cfg.Type == "" {
		return nil, errNoType
	}
	factory, ok := Get(cfg.Type)
	if !ok {
		return nil, &UnknownAdapterError{Type: cfg.Type, Available: ListAdapters()}
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return factory(logger), nil
}

// Open builds the adapter for cfg.Type and connects it.
func Open(ctx context.Context, cfg core.AdapterConfig, logger *slog.Logger) (Adapter, error) {
	a, err := NewAdapter(cfg, logger)
	if err != nil {
		return nil, err
	}
	if err := a.Connect(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to connect %s adapter: %w", cfg.Type, err)
	}
	return a, nil
}

// UnknownAdapterError is returned for a target type nothing registered.
type UnknownAdapterError struct {
	Type      string
	Available []string
}

func (e *UnknownAdapterError) Error() string {
	available := "none"
	if len(e.Available) > 0 {
		available = strings.Join(e.Available, ", ")
	}
	return fmt.Sprintf("unknown adapter type %q (available: %s); check target.type in leaprun.yaml", e.Type, available)
}
