// Package template renders SQL files that embed Starlark.
//
// {{ expr }} splices the value of an expression, {* for *} and {* if *}
// blocks control which text is emitted, and {# ... #} comments are dropped.
package template

import "fmt"

// Position is a location in template source. Line and Column are 1-based.
type Position struct {
	File   string
	Line   int
	Column int
}

func (p Position) String() string {
	if p.File == "" {
		return fmt.Sprintf("%d:%d", p.Line, p.Column)
	}
	return fmt.Sprintf("%s:%d:%d", p.File, p.Line, p.Column)
}

// Node is one element of a parsed template.
type Node interface {
	Pos() Position
	templateNode()
}

// Text is literal SQL copied to the output unchanged.
type Text struct {
	At  Position
	SQL string
}

// Expr is a {{ }} tag. Source is the Starlark expression without delimiters.
type Expr struct {
	At     Position
	Source string
}

// Loop is a {* for vars in iter: *} ... {* endfor *} block.
type Loop struct {
	At   Position
	Vars []string
	Iter string
	Body []Node
}

// Cond is an if/elif/else chain. The first branch is the if.
// Else is nil when the chain has no else branch.
type Cond struct {
	At       Position
	Branches []Branch
	Else     []Node
}

// Branch is one guarded arm of a Cond.
type Branch struct {
	At   Position
	Test string
	Body []Node
}

func (n *Text) Pos() Position { return n.At }
func (n *Expr) Pos() Position { return n.At }
func (n *Loop) Pos() Position { return n.At }
func (n *Cond) Pos() Position { return n.At }

func (*Text) templateNode() {}
func (*Expr) templateNode() {}
func (*Loop) templateNode() {}
func (*Cond) templateNode() {}

// Template is a parsed template source.
type Template struct {
	File  string
	Nodes []Node
}
