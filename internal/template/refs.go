package template

import (
	"go.starlark.net/syntax"
)

// Walk calls fn for every node in nodes, descending into block bodies.
func Walk(nodes []Node, fn func(Node)) {
	for _, n := range nodes {
		fn(n)
		switch b := n.(type) {
		case *Loop:
			Walk(b.Body, fn)
		case *Cond:
			for _, br := range b.Branches {
				Walk(br.Body, fn)
			}
			Walk(b.Else, fn)
		}
	}
}

// Expressions returns every Starlark expression in the template:
// {{ }} bodies, loop iterators and branch conditions.
func (t *Template) Expressions() []string {
	var exprs []string
	Walk(t.Nodes, func(n Node) {
		switch b := n.(type) {
		case *Expr:
			exprs = append(exprs, b.Source)
		case *Loop:
			exprs = append(exprs, b.Iter)
		case *Cond:
			for _, br := range b.Branches {
				exprs = append(exprs, br.Test)
			}
		}
	})
	return exprs
}

// CallArgs returns the literal string first arguments of every call to fn,
// e.g. CallArgs("ref") yields "customers" for {{ ref('customers') }}.
// Duplicates are dropped and order of first appearance is kept.
func (t *Template) CallArgs(fn string) ([]string, error) {
	var args []string
	seen := make(map[string]bool)
	for _, src := range t.Expressions() {
		expr, err := syntax.ParseExpr(t.File, src, 0)
		if err != nil {
			return nil, err
		}
		syntax.Walk(expr, func(n syntax.Node) bool {
			call, ok := n.(*syntax.CallExpr)
			if !ok || len(call.Args) == 0 {
				return true
			}
			ident, ok := call.Fn.(*syntax.Ident)
			if !ok || ident.Name != fn {
				return true
			}
			lit, ok := call.Args[0].(*syntax.Literal)
			if !ok || lit.Token != syntax.STRING {
				return true
			}
			if s, ok := lit.Value.(string); ok && !seen[s] {
				seen[s] = true
				args = append(args, s)
			}
			return true
		})
	}
	return args, nil
}
