package macro

import (
	"fmt"
	"slices"
	"sort"

	"github.com/leapstack-labs/leaprun/pkg/core"
	"go.starlark.net/starlark"
)

// ReservedNamespaces are global names owned by the template context.
// A macro file may not shadow them.
var ReservedNamespaces = []string{
	"config",
	"env",
	"target",
	"this",
	"ref",
	"run_started_at",
	"invocation_id",
	"get_columns_in_table",
	"get_missing_columns",
	"already_exists",
}

// IsReserved reports whether name is owned by the template context.
func IsReserved(name string) bool {
	return slices.Contains(ReservedNamespaces, name)
}

// Registry holds loaded macro modules keyed by namespace.
type Registry struct {
	modules map[string]*LoadedModule
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{modules: make(map[string]*LoadedModule)}
}

// Register adds a module. Reserved and duplicate namespaces are rejected.
func (r *Registry) Register(m *LoadedModule) error {
	if IsReserved(m.Namespace) {
		return &RegistryError{
			Namespace: m.Namespace,
			Message:   "namespace is reserved",
		}
	}
	if existing, ok := r.modules[m.Namespace]; ok {
		return &RegistryError{
			Namespace: m.Namespace,
			Message:   fmt.Sprintf("namespace already defined in %s", existing.Path),
		}
	}
	r.modules[m.Namespace] = m
	return nil
}

// RegisterAll registers modules in order, stopping at the first error.
func (r *Registry) RegisterAll(modules []*LoadedModule) error {
	for _, m := range modules {
		if err := r.Register(m); err != nil {
			return err
		}
	}
	return nil
}

// Get returns the module for namespace, or nil.
func (r *Registry) Get(namespace string) *LoadedModule {
	return r.modules[namespace]
}

// Has reports whether namespace is registered.
func (r *Registry) Has(namespace string) bool {
	_, ok := r.modules[namespace]
	return ok
}

// Len returns the number of registered modules.
func (r *Registry) Len() int {
	return len(r.modules)
}

// Namespaces returns the registered namespaces in sorted order.
func (r *Registry) Namespaces() []string {
	names := make([]string, 0, len(r.modules))
	for name := range r.modules {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Function finds an exported callable by name across all namespaces.
// Namespaces are searched in sorted order so the result is deterministic.
func (r *Registry) Function(name string) (starlark.Callable, bool) {
	for _, ns := range r.Namespaces() {
		v, ok := r.modules[ns].Exports[name]
		if !ok {
			continue
		}
		if fn, ok := v.(starlark.Callable); ok {
			return fn, true
		}
	}
	return nil, false
}

// ToStarlarkDict exposes every module as an attribute-accessible value,
// e.g. utils.greet() in templates.
func (r *Registry) ToStarlarkDict() starlark.StringDict {
	dict := make(starlark.StringDict, len(r.modules))
	for name, m := range r.modules {
		dict[name] = &starlarkModule{name: name, exports: m.Exports}
	}
	return dict
}

// FromGraph executes the macro sources attached to a graph.
// The graph carries one entry per exported function; files are executed once.
func FromGraph(macros []core.Macro) (*Registry, error) {
	registry := NewRegistry()
	seen := make(map[string]bool)
	for _, m := range macros {
		key := m.Namespace + "\x00" + m.FilePath
		if seen[key] {
			continue
		}
		seen[key] = true

		module, err := LoadSource(m.Namespace, m.FilePath, []byte(m.Source))
		if err != nil {
			return nil, err
		}
		if err := registry.Register(module); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

// RegistryError is returned when a module cannot be registered.
type RegistryError struct {
	Namespace string
	Message   string
}

func (e *RegistryError) Error() string {
	return fmt.Sprintf("macro namespace %q: %s", e.Namespace, e.Message)
}

// starlarkModule is a namespace value with attribute access.
type starlarkModule struct {
	name    string
	exports starlark.StringDict
}

var _ starlark.HasAttrs = (*starlarkModule)(nil)

func (m *starlarkModule) String() string        { return fmt.Sprintf("<module %s>", m.name) }
func (m *starlarkModule) Type() string          { return "module" }
func (m *starlarkModule) Freeze()               { m.exports.Freeze() }
func (m *starlarkModule) Truth() starlark.Bool  { return starlark.True }
func (m *starlarkModule) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable: module") }

func (m *starlarkModule) Attr(name string) (starlark.Value, error) {
	if v, ok := m.exports[name]; ok {
		return v, nil
	}
	return nil, starlark.NoSuchAttrError(fmt.Sprintf("module %s has no attribute %q", m.name, name))
}

func (m *starlarkModule) AttrNames() []string {
	return m.exports.Keys()
}
