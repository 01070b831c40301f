package core

import "slices"

// ResourceType is the kind of graph vertex a Node represents.
type ResourceType string

// Resource type constants.
const (
	ResourceModel     ResourceType = "model"
	ResourceTest      ResourceType = "test"
	ResourceArchive   ResourceType = "archive"
	ResourceOperation ResourceType = "operation"
)

// Hook tags carried by operation nodes.
const (
	HookRunStart = "on-run-start"
	HookRunEnd   = "on-run-end"
)

// NodeConfig holds the per-node configuration parsed from frontmatter
// or the project file.
type NodeConfig struct {
	// Materialized is the materialization strategy: table, view, incremental, ephemeral, archive
	Materialized string
	// Enabled is false when the node was switched off in configuration
	Enabled bool
	// Tags used for selection and hook lookup
	Tags []string
	// UniqueKey for incremental and archive nodes
	UniqueKey string

	// Archive descriptors
	SourceSchema string
	SourceTable  string
	TargetSchema string
	TargetTable  string
	UpdatedAt    string

	// Extra contains custom extension fields
	Extra map[string]any
}

// Node is a unit of the build graph: one model, test, archive or hook.
type Node struct {
	// UniqueID is the graph-wide identifier, e.g. "model.shop.customers"
	UniqueID string
	// Name is the node name (filename without extension for models)
	Name string
	// Package is the project the node belongs to
	Package string
	// ResourceType is the kind of node
	ResourceType ResourceType
	// Schema is the target schema the node builds into
	Schema string
	// OriginalFilePath is the file path relative to the project root
	OriginalFilePath string

	// RawSQL is the template text as authored
	RawSQL string
	// CompiledSQL is the template rendered with ref() resolved
	CompiledSQL string
	// InjectedSQL is CompiledSQL with ephemeral CTEs injected
	InjectedSQL string
	// WrappedSQL is the statement that is actually executed
	WrappedSQL string
	// Compiled is true once the compiler has processed the node
	Compiled bool
	// BuildPath is where the injected SQL was written, if anywhere
	BuildPath string

	// DependsOn lists the unique ids of upstream nodes
	DependsOn []string
	// Tags are metadata labels for selection and hooks
	Tags []string
	// Config is the node configuration
	Config NodeConfig
}

// Clone returns a deep copy of the node.
// Compilation works on clones so the graph's copy is never mutated.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	c := *n
	c.DependsOn = slices.Clone(n.DependsOn)
	c.Tags = slices.Clone(n.Tags)
	c.Config.Tags = slices.Clone(n.Config.Tags)
	if n.Config.Extra != nil {
		c.Config.Extra = make(map[string]any, len(n.Config.Extra))
		for k, v := range n.Config.Extra {
			c.Config.Extra[k] = v
		}
	}
	return &c
}

// Materialization returns the node's materialization strategy.
func (n *Node) Materialization() string {
	return n.Config.Materialized
}

// IsModel reports whether the node is a model.
func (n *Node) IsModel() bool {
	return n.ResourceType == ResourceModel
}

// IsEphemeral reports whether the node is materialized as ephemeral.
func (n *Node) IsEphemeral() bool {
	return n.Config.Materialized == MaterializationEphemeral
}

// IsEphemeralModel reports whether the node is an ephemeral model.
// Ephemeral models are compiled for inlining but never executed.
func (n *Node) IsEphemeralModel() bool {
	return n.IsModel() && n.IsEphemeral()
}

// HasTag reports whether the node carries the given tag.
func (n *Node) HasTag(tag string) bool {
	return slices.Contains(n.Tags, tag) || slices.Contains(n.Config.Tags, tag)
}

// RelationName returns the qualified name the node builds, e.g. "analytics.customers".
func (n *Node) RelationName() string {
	if n.Schema == "" {
		return n.Name
	}
	return n.Schema + "." + n.Name
}

// Macro is a project macro attached to the graph.
// Source holds the Starlark definition; it is compiled lazily by its consumer.
type Macro struct {
	UniqueID  string
	Name      string
	Namespace string
	FilePath  string
	Source    string
}

// RelationType distinguishes tables from views.
type RelationType string

// Relation type constants.
const (
	RelationTable RelationType = "table"
	RelationView  RelationType = "view"
)

// Relation is a table or view present in the data store.
type Relation struct {
	Schema string
	Name   string
	Type   RelationType
}

// ExistingRelations maps "schema.name" to the relation type currently in the data store.
type ExistingRelations map[string]RelationType

// Lookup returns the type of schema.name, if it exists.
func (e ExistingRelations) Lookup(schema, name string) (RelationType, bool) {
	if e == nil {
		return "", false
	}
	t, ok := e[schema+"."+name]
	return t, ok
}
