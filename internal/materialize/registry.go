package materialize

import (
	"log/slog"
	"sync"

	"github.com/leapstack-labs/leaprun/internal/dag"
	"github.com/leapstack-labs/leaprun/internal/macro"
)

// Registry resolves the macro implementing a strategy for an adapter type.
//
// Lookup order:
//  1. project macro materialization_<strategy>_<adapter>
//  2. project macro materialization_<strategy>_default
//  3. built-in for <adapter>
//  4. built-in for default
type Registry struct {
	logger *slog.Logger

	mu       sync.Mutex
	builtins map[string]map[string]Macro // adapter type -> strategy -> macro
	graphs   map[*dag.Graph]*macro.Registry
}

// NewRegistry creates a registry holding the built-in strategies for DefaultAdapter.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	r := &Registry{
		logger:   logger,
		builtins: make(map[string]map[string]Macro),
		graphs:   make(map[*dag.Graph]*macro.Registry),
	}
	for strategy, m := range Builtins() {
		r.Register(strategy, DefaultAdapter, m)
	}
	return r
}

// Register adds a built-in macro for strategy on adapterType.
func (r *Registry) Register(strategy, adapterType string, m Macro) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.builtins[adapterType] == nil {
		r.builtins[adapterType] = make(map[string]Macro)
	}
	r.builtins[adapterType][strategy] = m
}

// MacroName is the project macro name for strategy on adapterType.
func MacroName(strategy, adapterType string) string {
	return "materialization_" + strategy + "_" + adapterType
}

// Lookup finds the macro for strategy on adapterType.
func (r *Registry) Lookup(graph *dag.Graph, strategy, adapterType string) (Macro, bool) {
	if project := r.projectMacros(graph); project != nil {
		for _, name := range []string{MacroName(strategy, adapterType), MacroName(strategy, DefaultAdapter)} {
			if fn, ok := project.Function(name); ok {
				return NewStarlarkMacro(name, fn), true
			}
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, typ := range []string{adapterType, DefaultAdapter} {
		if m, ok := r.builtins[typ][strategy]; ok {
			return m, true
		}
	}
	return nil, false
}

// projectMacros executes the graph's macro sources once per graph.
func (r *Registry) projectMacros(graph *dag.Graph) *macro.Registry {
	if graph == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if reg, ok := r.graphs[graph]; ok {
		return reg
	}
	reg, err := macro.FromGraph(graph.Macros())
	if err != nil {
		// The loader validates macros, so this only fires for hand-built graphs.
		r.logger.Error("failed to load project macros", "error", err)
		reg = nil
	}
	r.graphs[graph] = reg
	return reg
}
