// Package compiler renders node templates into executable SQL.
//
// Compilation resolves ref() calls against the graph, inlines ephemeral
// models as common table expressions and wraps tests in a count query.
// The caller's node is never modified; the compiled node is a clone.
package compiler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/leapstack-labs/leaprun/internal/dag"
	"github.com/leapstack-labs/leaprun/internal/macro"
	starctx "github.com/leapstack-labs/leaprun/internal/starlark"
	"github.com/leapstack-labs/leaprun/internal/template"
	"github.com/leapstack-labs/leaprun/pkg/core"
	"go.starlark.net/starlark"
)

// CTEPrefix prefixes the names of inlined ephemeral models.
const CTEPrefix = "__leaprun__cte__"

// Config holds compiler configuration.
// Vars are extra globals bound in every template, e.g. invocation_id.
type Config struct {
	Env    string
	Target *starctx.TargetInfo
	Pool   *starctx.ThreadPool
	Vars   starlark.StringDict
	Logger *slog.Logger
}

// Compiler compiles nodes. It is safe for concurrent use.
type Compiler struct {
	env    string
	target *starctx.TargetInfo
	pool   *starctx.ThreadPool
	vars   starlark.StringDict
	logger *slog.Logger

	mu     sync.Mutex
	macros map[*dag.Graph]starlark.StringDict
}

// New creates a compiler.
func New(cfg Config) *Compiler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	pool := cfg.Pool
	if pool == nil {
		pool = starctx.NewThreadPool(0)
	}
	return &Compiler{
		env:    cfg.Env,
		target: cfg.Target,
		pool:   pool,
		vars:   cfg.Vars,
		logger: logger,
		macros: make(map[*dag.Graph]starlark.StringDict),
	}
}

type cte struct {
	id   string
	name string
	sql  string
}

// CompileNode returns a compiled clone of node.
func (c *Compiler) CompileNode(ctx context.Context, node *core.Node, graph *dag.Graph) (*core.Node, error) {
	compiled, _, err := c.compile(ctx, node, graph, nil)
	return compiled, err
}

func (c *Compiler) compile(ctx context.Context, node *core.Node, graph *dag.Graph, stack []string) (*core.Node, []cte, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	n := node.Clone()
	if !n.Config.Enabled {
		return nil, nil, core.NewCompilationError(n, "node is disabled", nil)
	}
	for _, id := range stack {
		if id == n.UniqueID {
			return nil, nil, core.NewCompilationError(n, fmt.Sprintf("ephemeral cycle: %s", strings.Join(append(stack, id), " -> ")), nil)
		}
	}
	stack = append(stack, n.UniqueID)

	raw := n.RawSQL
	if n.ResourceType == core.ResourceArchive && strings.TrimSpace(raw) == "" {
		raw = fmt.Sprintf("select * from %s.%s", n.Config.SourceSchema, n.Config.SourceTable)
	}

	macros, err := c.projectMacros(graph)
	if err != nil {
		return nil, nil, core.NewCompilationError(n, "failed to load macros", err)
	}

	var ephemerals []*core.Node
	ref := starlark.NewBuiltin("ref", func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var name string
		if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &name); err != nil {
			return nil, err
		}
		target, ok := graph.ResolveRef(name)
		if !ok {
			return nil, core.NewCompilationError(n, fmt.Sprintf(
				"%s '%s' (%s) depends on a node named '%s' which was not found",
				strings.ToUpper(string(n.ResourceType[:1]))+string(n.ResourceType[1:]), n.Name, n.OriginalFilePath, name), nil)
		}
		if target.IsEphemeralModel() {
			if !containsNode(ephemerals, target) {
				ephemerals = append(ephemerals, target)
			}
			return starlark.String(CTEPrefix + target.Name), nil
		}
		return starlark.String(target.RelationName()), nil
	})

	execCtx := starctx.NewExecutionContext(
		starctx.NodeConfigDict(n.Config), c.env, c.target, starctx.ThisInfoFromNode(n),
		starctx.WithMacros(macros),
		starctx.WithBuiltins(c.builtins(ref)),
		starctx.WithThreadPool(c.pool),
	)

	file := n.OriginalFilePath
	if file == "" {
		file = n.Name
	}
	rendered, err := template.RenderString(raw, file, execCtx)
	if err != nil {
		return nil, nil, compileFault(n, err)
	}
	n.CompiledSQL = rendered

	var ctes []cte
	for _, dep := range ephemerals {
		compiledDep, depCTEs, err := c.compile(ctx, dep, graph, stack)
		if err != nil {
			return nil, nil, err
		}
		for _, d := range append(depCTEs, cte{id: dep.UniqueID, name: CTEPrefix + dep.Name, sql: compiledDep.CompiledSQL}) {
			if !containsCTE(ctes, d.id) {
				ctes = append(ctes, d)
			}
		}
	}

	n.InjectedSQL = injectCTEs(n.CompiledSQL, ctes)
	n.WrappedSQL = n.InjectedSQL
	if n.ResourceType == core.ResourceTest {
		n.WrappedSQL = WrapTest(n.InjectedSQL)
	}
	n.Compiled = true

	c.logger.Debug("compiled node", "node", n.UniqueID, "ctes", len(ctes))
	return n, ctes, nil
}

func (c *Compiler) builtins(ref *starlark.Builtin) starlark.StringDict {
	out := make(starlark.StringDict, len(c.vars)+1)
	for k, v := range c.vars {
		out[k] = v
	}
	out["ref"] = ref
	return out
}

// compileFault keeps node faults raised inside the template and wraps the rest.
func compileFault(n *core.Node, err error) error {
	var nodeErr core.NodeError
	if errors.As(err, &nodeErr) {
		nodeErr.AttachNode(n)
		return nodeErr
	}
	return core.NewCompilationError(n, "failed to render template", err)
}

// projectMacros exposes the graph's macro namespaces, executed once per graph.
func (c *Compiler) projectMacros(graph *dag.Graph) (starlark.StringDict, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if m, ok := c.macros[graph]; ok {
		return m, nil
	}
	registry, err := macro.FromGraph(graph.Macros())
	if err != nil {
		return nil, err
	}
	m := registry.ToStarlarkDict()
	c.macros[graph] = m
	return m, nil
}

// WrapTest turns a test query into a failure count.
func WrapTest(sql string) string {
	return fmt.Sprintf("select count(*) from (\n%s\n) as test_subquery", sql)
}

// injectCTEs prefixes sql with the given CTEs, merging into a leading WITH.
func injectCTEs(sql string, ctes []cte) string {
	if len(ctes) == 0 {
		return sql
	}
	defs := make([]string, len(ctes))
	for i, d := range ctes {
		defs[i] = fmt.Sprintf("%s as (\n%s\n)", d.name, strings.TrimSpace(d.sql))
	}
	list := strings.Join(defs, ", ")

	body := strings.TrimLeft(sql, " \t\r\n")
	lower := strings.ToLower(body)
	if hasKeyword(lower, "with") {
		rest := strings.TrimLeft(body[len("with"):], " \t\r\n")
		if hasKeyword(strings.ToLower(rest), "recursive") {
			rest = strings.TrimLeft(rest[len("recursive"):], " \t\r\n")
			return "with recursive " + list + ", " + rest
		}
		return "with " + list + ", " + rest
	}
	return "with " + list + "\n" + body
}

// hasKeyword reports whether s starts with kw followed by whitespace.
func hasKeyword(s, kw string) bool {
	if !strings.HasPrefix(s, kw) || len(s) == len(kw) {
		return false
	}
	switch s[len(kw)] {
	case ' ', '\t', '\r', '\n':
		return true
	}
	return false
}

func containsNode(nodes []*core.Node, n *core.Node) bool {
	for _, x := range nodes {
		if x.UniqueID == n.UniqueID {
			return true
		}
	}
	return false
}

func containsCTE(ctes []cte, id string) bool {
	for _, c := range ctes {
		if c.id == id {
			return true
		}
	}
	return false
}
