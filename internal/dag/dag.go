// Package dag provides the build graph of leaprun nodes.
// It supports cycle detection, topological sorting and wave computation.
package dag

import (
	"fmt"
	"slices"
	"sort"

	"github.com/leapstack-labs/leaprun/pkg/core"
)

// Graph is a directed acyclic graph of nodes plus the project macros.
// Edges point from a dependency (parent) to its dependent (child).
type Graph struct {
	nodes   map[string]*core.Node
	order   []string            // insertion order, used for hooks
	edges   map[string][]string // parent -> children (dependents)
	parents map[string][]string // child -> parents (dependencies)
	macros  map[string]core.Macro
}

// NewGraph creates a new empty graph.
func NewGraph() *Graph {
	return &Graph{
		nodes:   make(map[string]*core.Node),
		edges:   make(map[string][]string),
		parents: make(map[string][]string),
		macros:  make(map[string]core.Macro),
	}
}

// AddNode adds a node to the graph, replacing any node with the same id.
func (g *Graph) AddNode(n *core.Node) {
	if _, exists := g.nodes[n.UniqueID]; !exists {
		g.order = append(g.order, n.UniqueID)
		g.edges[n.UniqueID] = []string{}
		g.parents[n.UniqueID] = []string{}
	}
	g.nodes[n.UniqueID] = n
}

// AddEdge adds a directed edge from parent to child (child depends on parent).
func (g *Graph) AddEdge(parentID, childID string) error {
	if _, exists := g.nodes[parentID]; !exists {
		return fmt.Errorf("parent node %q does not exist", parentID)
	}
	if _, exists := g.nodes[childID]; !exists {
		return fmt.Errorf("child node %q does not exist", childID)
	}
	if parentID == childID {
		return fmt.Errorf("self-loop detected: %s", parentID)
	}

	if !slices.Contains(g.edges[parentID], childID) {
		g.edges[parentID] = append(g.edges[parentID], childID)
	}
	if !slices.Contains(g.parents[childID], parentID) {
		g.parents[childID] = append(g.parents[childID], parentID)
	}
	return nil
}

// LinkDependencies adds an edge for every DependsOn entry of every node.
func (g *Graph) LinkDependencies() error {
	for _, id := range g.order {
		for _, dep := range g.nodes[id].DependsOn {
			if err := g.AddEdge(dep, id); err != nil {
				return fmt.Errorf("node %s: %w", id, err)
			}
		}
	}
	return nil
}

// AddMacro attaches a project macro, keyed by its unique id (or name when unset).
func (g *Graph) AddMacro(m core.Macro) {
	key := m.UniqueID
	if key == "" {
		key = m.Name
	}
	g.macros[key] = m
}

// Macro returns the first macro, in unique id order, with the given name.
func (g *Graph) Macro(name string) (core.Macro, bool) {
	for _, m := range g.Macros() {
		if m.Name == name {
			return m, true
		}
	}
	return core.Macro{}, false
}

// Macros returns every macro sorted by unique id.
func (g *Graph) Macros() []core.Macro {
	out := make([]core.Macro, 0, len(g.macros))
	for _, m := range g.macros {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UniqueID != out[j].UniqueID {
			return out[i].UniqueID < out[j].UniqueID
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Node returns a node by id.
func (g *Graph) Node(id string) (*core.Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// Nodes returns all nodes sorted by id.
func (g *Graph) Nodes() []*core.Node {
	ids := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]*core.Node, len(ids))
	for i, id := range ids {
		out[i] = g.nodes[id]
	}
	return out
}

// ResolveRef finds the buildable node a ref(name) points at.
// Models win over archives when both share a name.
func (g *Graph) ResolveRef(name string) (*core.Node, bool) {
	var found *core.Node
	for _, id := range g.order {
		n := g.nodes[id]
		if n.Name != name {
			continue
		}
		switch n.ResourceType {
		case core.ResourceModel:
			return n, true
		case core.ResourceArchive:
			if found == nil {
				found = n
			}
		}
	}
	return found, found != nil
}

// Parents returns the ids of the direct dependencies of a node.
func (g *Graph) Parents(id string) []string {
	return g.parents[id]
}

// Children returns the ids of the direct dependents of a node.
func (g *Graph) Children(id string) []string {
	return g.edges[id]
}

// NodeCount returns the number of nodes in the graph.
func (g *Graph) NodeCount() int {
	return len(g.nodes)
}

// EdgeCount returns the number of edges in the graph.
func (g *Graph) EdgeCount() int {
	count := 0
	for _, children := range g.edges {
		count += len(children)
	}
	return count
}

// HasCycle returns true if the graph contains a cycle, along with the cycle path.
func (g *Graph) HasCycle() (bool, []string) {
	visited := make(map[string]bool)
	recStack := make(map[string]bool)
	path := make(map[string]string)

	var cyclePath []string

	var dfs func(id string) bool
	dfs = func(id string) bool {
		visited[id] = true
		recStack[id] = true

		for _, childID := range g.edges[id] {
			if !visited[childID] {
				path[childID] = id
				if dfs(childID) {
					return true
				}
			} else if recStack[childID] {
				cyclePath = []string{childID}
				for curr := id; curr != childID; curr = path[curr] {
					cyclePath = append([]string{curr}, cyclePath...)
				}
				cyclePath = append([]string{childID}, cyclePath...)
				return true
			}
		}

		recStack[id] = false
		return false
	}

	for _, id := range g.order {
		if !visited[id] && dfs(id) {
			return true, cyclePath
		}
	}
	return false, nil
}

// TopologicalSort returns nodes in dependency order.
// Returns an error if the graph contains a cycle.
func (g *Graph) TopologicalSort() ([]*core.Node, error) {
	if hasCycle, cyclePath := g.HasCycle(); hasCycle {
		return nil, fmt.Errorf("cycle detected: %v", cyclePath)
	}

	visited := make(map[string]bool)
	var result []*core.Node

	var visit func(id string)
	visit = func(id string) {
		if visited[id] {
			return
		}
		visited[id] = true
		for _, parentID := range g.parents[id] {
			visit(parentID)
		}
		result = append(result, g.nodes[id])
	}

	ids := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		visit(id)
	}
	return result, nil
}

// ExecutionLevels groups nodes into waves.
// Nodes in wave N depend only on nodes in earlier waves and can run in parallel.
func (g *Graph) ExecutionLevels() ([][]*core.Node, error) {
	if hasCycle, cyclePath := g.HasCycle(); hasCycle {
		return nil, fmt.Errorf("cycle detected: %v", cyclePath)
	}

	assigned := make(map[string]int)
	var getLevel func(id string) int
	getLevel = func(id string) int {
		if level, ok := assigned[id]; ok {
			return level
		}
		level := 0
		for _, parentID := range g.parents[id] {
			level = max(level, getLevel(parentID)+1)
		}
		assigned[id] = level
		return level
	}

	maxLevel := -1
	for id := range g.nodes {
		maxLevel = max(maxLevel, getLevel(id))
	}

	levels := make([][]*core.Node, maxLevel+1)
	for id, level := range assigned {
		levels[level] = append(levels[level], g.nodes[id])
	}
	for i := range levels {
		sort.Slice(levels[i], func(a, b int) bool {
			return levels[i][a].UniqueID < levels[i][b].UniqueID
		})
	}
	return levels, nil
}

// Descendants returns every node downstream of id, sorted.
func (g *Graph) Descendants(id string) []string {
	seen := make(map[string]bool)
	var walk func(string)
	walk = func(n string) {
		for _, c := range g.edges[n] {
			if !seen[c] {
				seen[c] = true
				walk(c)
			}
		}
	}
	walk(id)

	out := make([]string, 0, len(seen))
	for n := range seen {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// NodesByTag returns nodes of the given type carrying tag, in insertion order.
func (g *Graph) NodesByTag(tag string, rt core.ResourceType) []*core.Node {
	var out []*core.Node
	for _, id := range g.order {
		n := g.nodes[id]
		if n.ResourceType == rt && n.HasTag(tag) {
			out = append(out, n)
		}
	}
	return out
}

// ModelSchemas returns the distinct schemas non-ephemeral models build
// into, sorted. Archives create their own target schema.
func (g *Graph) ModelSchemas() []string {
	seen := make(map[string]bool)
	var out []string
	for _, n := range g.nodes {
		if !n.IsModel() || n.IsEphemeral() || n.Schema == "" || seen[n.Schema] {
			continue
		}
		seen[n.Schema] = true
		out = append(out, n.Schema)
	}
	sort.Strings(out)
	return out
}

// Subgraph returns a graph holding only the given nodes. Ordering through
// excluded nodes is kept: if a depends on b through an excluded c, the
// subgraph has a direct edge b -> a. Macros are shared.
func (g *Graph) Subgraph(nodeIDs []string) *Graph {
	sub := NewGraph()
	sub.macros = g.macros

	include := make(map[string]bool, len(nodeIDs))
	for _, id := range g.order {
		if slices.Contains(nodeIDs, id) {
			include[id] = true
			sub.AddNode(g.nodes[id])
		}
	}

	for id := range include {
		seen := make(map[string]bool)
		var up func(string)
		up = func(n string) {
			for _, p := range g.parents[n] {
				if seen[p] {
					continue
				}
				seen[p] = true
				if include[p] {
					_ = sub.AddEdge(p, id)
					continue
				}
				up(p)
			}
		}
		up(id)
	}
	return sub
}
