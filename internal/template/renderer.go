package template

import (
	"fmt"
	"maps"
	"strings"

	starctx "github.com/leapstack-labs/leaprun/internal/starlark"
	"go.starlark.net/starlark"
)

// Render executes a parsed template against ctx.
func Render(tmpl *Template, ctx *starctx.ExecutionContext) (string, error) {
	r := &renderer{ctx: ctx, file: tmpl.File}
	if err := r.renderNodes(tmpl.Nodes, nil); err != nil {
		return "", err
	}
	return r.out.String(), nil
}

// RenderString parses and renders input in one step.
func RenderString(input, file string, ctx *starctx.ExecutionContext) (string, error) {
	tmpl, err := Parse(input, file)
	if err != nil {
		return "", err
	}
	return Render(tmpl, ctx)
}

type renderer struct {
	ctx  *starctx.ExecutionContext
	file string
	out  strings.Builder
}

func (r *renderer) renderNodes(nodes []Node, locals starlark.StringDict) error {
	for _, n := range nodes {
		if err := r.renderNode(n, locals); err != nil {
			return err
		}
	}
	return nil
}

func (r *renderer) renderNode(n Node, locals starlark.StringDict) error {
	switch node := n.(type) {
	case *Text:
		r.out.WriteString(node.SQL)
	case *Expr:
		s, err := r.ctx.EvalString(node.Source, r.file, node.At.Line, locals)
		if err != nil {
			return renderFailed(node.At, "failed to evaluate expression", err)
		}
		r.out.WriteString(s)
	case *Loop:
		return r.renderLoop(node, locals)
	case *Cond:
		return r.renderCond(node, locals)
	default:
		return errorf(PhaseRender, n.Pos(), "unexpected node %T", n)
	}
	return nil
}

func (r *renderer) renderLoop(loop *Loop, locals starlark.StringDict) error {
	seq, err := r.ctx.Eval(loop.Iter, r.file, loop.At.Line, locals)
	if err != nil {
		return renderFailed(loop.At, "failed to evaluate for iterator", err)
	}
	iterable, ok := seq.(starlark.Iterable)
	if !ok {
		return errorf(PhaseRender, loop.At, "for: %s is not iterable (got %s)", loop.Iter, seq.Type())
	}

	iter := iterable.Iterate()
	defer iter.Done()

	var item starlark.Value
	for iter.Next(&item) {
		scope := make(starlark.StringDict, len(locals)+len(loop.Vars))
		maps.Copy(scope, locals)
		if err := bindLoopVars(scope, loop.Vars, item); err != nil {
			return renderFailed(loop.At, "for", err)
		}
		if err := r.renderNodes(loop.Body, scope); err != nil {
			return err
		}
	}
	return nil
}

// bindLoopVars assigns item to a single name, or unpacks it across several.
func bindLoopVars(scope starlark.StringDict, names []string, item starlark.Value) error {
	if len(names) == 1 {
		scope[names[0]] = item
		return nil
	}
	seq, ok := item.(starlark.Indexable)
	if !ok || seq.Len() != len(names) {
		return fmt.Errorf("cannot unpack %s into %d variables", item.Type(), len(names))
	}
	for i, name := range names {
		scope[name] = seq.Index(i)
	}
	return nil
}

// renderCond renders the first branch whose test is true, else the else body.
func (r *renderer) renderCond(cond *Cond, locals starlark.StringDict) error {
	for _, br := range cond.Branches {
		v, err := r.ctx.Eval(br.Test, r.file, br.At.Line, locals)
		if err != nil {
			return renderFailed(br.At, "failed to evaluate condition", err)
		}
		if v.Truth() {
			return r.renderNodes(br.Body, locals)
		}
	}
	return r.renderNodes(cond.Else, locals)
}

// HasTemplateSyntax reports whether s contains any template delimiter.
func HasTemplateSyntax(s string) bool {
	for _, d := range delimiters {
		if strings.Contains(s, d.open) {
			return true
		}
	}
	return false
}

// Engine renders named template sources against a shared environment.
// Values passed to Render are bound as globals for that call only.
type Engine struct {
	Env    string
	Target *starctx.TargetInfo
	Macros starlark.StringDict
	Pool   *starctx.ThreadPool
}

// Render renders source with vars bound as globals.
// Sources without template syntax are returned unchanged.
func (e *Engine) Render(name, source string, vars starlark.StringDict) (string, error) {
	if !HasTemplateSyntax(source) {
		return source, nil
	}
	ctx := starctx.NewExecutionContext(nil, e.Env, e.Target, nil,
		starctx.WithMacros(e.Macros),
		starctx.WithBuiltins(vars),
		starctx.WithThreadPool(e.Pool),
	)
	return RenderString(source, name, ctx)
}
