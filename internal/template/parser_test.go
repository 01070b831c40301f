package template

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Structure(t *testing.T) {
	tmpl, err := Parse(`select
{* for c in ["id", "total"]: *}{{ c }},{* endfor *}
{* if target.type == "duckdb": *}1{* elif target.type == "postgres": *}2{* else: *}3{* endif *}
from {{ ref('orders') }}`, "orders.sql")
	require.NoError(t, err)
	assert.Equal(t, "orders.sql", tmpl.File)
	require.Len(t, tmpl.Nodes, 6)

	loop, ok := tmpl.Nodes[1].(*Loop)
	require.True(t, ok, "got %T", tmpl.Nodes[1])
	assert.Equal(t, []string{"c"}, loop.Vars)
	assert.Equal(t, `["id", "total"]`, loop.Iter)
	require.Len(t, loop.Body, 2)
	assert.Equal(t, "c", loop.Body[0].(*Expr).Source)
	assert.Equal(t, ",", loop.Body[1].(*Text).SQL)
	assert.Equal(t, 2, loop.Pos().Line)

	cond, ok := tmpl.Nodes[3].(*Cond)
	require.True(t, ok, "got %T", tmpl.Nodes[3])
	require.Len(t, cond.Branches, 2)
	assert.Equal(t, `target.type == "duckdb"`, cond.Branches[0].Test)
	assert.Equal(t, `target.type == "postgres"`, cond.Branches[1].Test)
	require.Len(t, cond.Else, 1)
	assert.Equal(t, "3", cond.Else[0].(*Text).SQL)

	assert.Equal(t, "ref('orders')", tmpl.Nodes[5].(*Expr).Source)
}

func TestParse_Blocks(t *testing.T) {
	tests := []struct {
		name  string
		input string
		check func(t *testing.T, nodes []Node)
	}{
		{
			name:  "colon is optional",
			input: "{* for x in xs *}{{ x }}{* endfor *}",
			check: func(t *testing.T, nodes []Node) {
				assert.Equal(t, "xs", nodes[0].(*Loop).Iter)
			},
		},
		{
			name:  "tuple unpacking",
			input: "{* for k, v in pairs: *}{{ k }}{* endfor *}",
			check: func(t *testing.T, nodes []Node) {
				assert.Equal(t, []string{"k", "v"}, nodes[0].(*Loop).Vars)
			},
		},
		{
			name:  "if without else",
			input: "{* if is_incremental: *}where x{* endif *}",
			check: func(t *testing.T, nodes []Node) {
				cond := nodes[0].(*Cond)
				assert.Len(t, cond.Branches, 1)
				assert.Nil(t, cond.Else)
			},
		},
		{
			name:  "empty else is kept",
			input: "{* if a: *}x{* else: *}{* endif *}",
			check: func(t *testing.T, nodes []Node) {
				cond := nodes[0].(*Cond)
				assert.NotNil(t, cond.Else)
				assert.Empty(t, cond.Else)
			},
		},
		{
			name:  "nested loop in branch",
			input: "{* if a: *}{* for x in xs: *}{{ x }}{* endfor *}{* endif *}",
			check: func(t *testing.T, nodes []Node) {
				cond := nodes[0].(*Cond)
				_, ok := cond.Branches[0].Body[0].(*Loop)
				assert.True(t, ok)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpl, err := Parse(tt.input, "m.sql")
			require.NoError(t, err)
			tt.check(t, tmpl.Nodes)
		})
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"unclosed for", "{* for x in xs: *}{{ x }}", "'for' block is never closed with 'endfor'"},
		{"unclosed if", "{* if a: *}x", "'if' block is never closed with 'endif'"},
		{"stray endfor", "x{* endfor *}", "'endfor' has no opening 'for'"},
		{"stray endif", "{* endif *}", "'endif' has no opening 'if'"},
		{"stray else", "{* else *}", "'else' has no opening 'if'"},
		{"else inside loop", "{* for x in xs: *}{* else *}{* endfor *}", "'else' has no opening 'if'"},
		{"elif after else", "{* if a: *}{* else: *}{* elif b: *}{* endif *}", "'elif' after 'else'"},
		{"duplicate else", "{* if a: *}{* else: *}{* else: *}{* endif *}", "'else' after 'else'"},
		{"if without condition", "{* if: *}{* endif *}", "'if' needs a condition"},
		{"bad for", "{* for in xs: *}{* endfor *}", "invalid for statement"},
		{"bad loop var", "{* for 1x in xs: *}{* endfor *}", "invalid for statement"},
		{"text after endif", "{* if a: *}{* endif now *}", `unexpected "now" after 'endif'`},
		{"unknown statement", "{* while true: *}", `unknown statement "while true:"`},
		{"empty expression", "select {{ }}", "empty expression"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.input, "m.sql")
			require.Error(t, err)

			var tmplErr *Error
			require.True(t, errors.As(err, &tmplErr))
			assert.Equal(t, PhaseParse, tmplErr.Phase)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestPosition_String(t *testing.T) {
	assert.Equal(t, "orders.sql:3:7", Position{File: "orders.sql", Line: 3, Column: 7}.String())
	assert.Equal(t, "3:7", Position{Line: 3, Column: 7}.String())
}
