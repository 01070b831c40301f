// Package materialize implements materialization strategies: the macros that
// turn a compiled model into a table, view, incremental table or archive.
//
// A strategy is looked up per node by name and adapter type. Project macros
// named materialization_<strategy>_<adapter> take precedence over the
// built-in Go implementations.
package materialize

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/leapstack-labs/leaprun/internal/dag"
	"github.com/leapstack-labs/leaprun/pkg/adapter"
	"github.com/leapstack-labs/leaprun/pkg/core"
)

// MainResult is the result name every materialization must store.
const MainResult = "main"

// Result is what a materialization reports back to its runner.
type Result struct {
	Status string
}

// Macro implements one materialization strategy.
type Macro interface {
	Name() string
	Invoke(ctx context.Context, mc *Context) error
}

// Context is bound to one node for the duration of its materialization.
// Statements run on the connection named after the node.
type Context struct {
	Node     *core.Node
	Graph    *dag.Graph
	Adapter  adapter.Adapter
	Existing core.ExistingRelations

	mu      sync.Mutex
	results map[string]Result
}

// NewContext creates a materialization context.
func NewContext(node *core.Node, graph *dag.Graph, adp adapter.Adapter, existing core.ExistingRelations) *Context {
	return &Context{
		Node:     node,
		Graph:    graph,
		Adapter:  adp,
		Existing: existing,
		results:  make(map[string]Result),
	}
}

// Conn is the connection name statements run on.
func (c *Context) Conn() string {
	return c.Node.Name
}

// SQL is the statement body the node compiled to.
func (c *Context) SQL() string {
	return c.Node.WrappedSQL
}

// Execute runs one statement, opening a transaction first if none is open.
func (c *Context) Execute(ctx context.Context, sql string) (adapter.Result, error) {
	res, err := c.Adapter.ExecuteOne(ctx, c.Conn(), sql, true)
	if err != nil {
		return adapter.Result{}, c.attach(err)
	}
	return res, nil
}

// Fetch runs one query and returns its rows.
func (c *Context) Fetch(ctx context.Context, sql string) (*core.Table, error) {
	_, table, err := c.Adapter.ExecuteAndFetch(ctx, c.Conn(), sql, true)
	if err != nil {
		return nil, c.attach(err)
	}
	return table, nil
}

// Commit commits the open transaction on the node's connection.
func (c *Context) Commit(ctx context.Context) error {
	return c.attach(c.Adapter.Commit(ctx, c.Conn()))
}

// AlreadyExists asks the data store whether schema.table exists right now.
func (c *Context) AlreadyExists(ctx context.Context, schema, table string) (bool, error) {
	ok, err := c.Adapter.TableExists(ctx, c.Conn(), schema, table)
	return ok, c.attach(err)
}

// EnsureSchema creates schema on the node's connection unless it exists.
func (c *Context) EnsureSchema(ctx context.Context, schema string) error {
	existing, err := c.Adapter.GetExistingSchemas(ctx, c.Conn())
	if err != nil {
		return c.attach(err)
	}
	if slices.Contains(existing, schema) {
		return nil
	}
	return c.attach(c.Adapter.CreateSchema(ctx, c.Conn(), schema))
}

// ExistingType returns the type of schema.name as it was when the batch started.
func (c *Context) ExistingType(schema, name string) (core.RelationType, bool) {
	return c.Existing.Lookup(schema, name)
}

// StoreResult records a named result. Later stores overwrite earlier ones.
func (c *Context) StoreResult(name, status string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results[name] = Result{Status: status}
}

// Result returns a stored result.
func (c *Context) Result(name string) (Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.results[name]
	return r, ok
}

// attach records the node on node faults that do not name one yet.
func (c *Context) attach(err error) error {
	if err == nil {
		return nil
	}
	var nodeErr core.NodeError
	if errors.As(err, &nodeErr) {
		nodeErr.AttachNode(c.Node)
	}
	return err
}
