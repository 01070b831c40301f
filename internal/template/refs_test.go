package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.starlark.net/starlark"
)

func TestTemplate_CallArgs(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"no refs", "select 1", nil},
		{"single ref", "select * from {{ ref('customers') }}", []string{"customers"}},
		{
			name:  "refs in blocks deduplicated",
			input: "{* if ref(\"a\") != '': *}{{ ref('b') }}{* for x in [ref('a')]: *}{{ x }}{* endfor *}{* endif *}",
			want:  []string{"a", "b"},
		},
		{"non-literal argument ignored", "{{ ref(this.name) }}", nil},
		{"method call ignored", "{{ utils.ref('x') }}", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpl, err := ParseString(tt.input, "model.sql")
			require.NoError(t, err)

			got, err := tmpl.CallArgs("ref")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTemplate_CallArgs_SyntaxError(t *testing.T) {
	tmpl, err := ParseString("{{ ref( }}", "model.sql")
	require.NoError(t, err)

	_, err = tmpl.CallArgs("ref")
	assert.Error(t, err)
}

func TestEngine_Render(t *testing.T) {
	engine := &Engine{Env: "dev"}

	t.Run("plain sql is returned unchanged", func(t *testing.T) {
		out, err := engine.Render("orders.sql", "select 1", nil)
		require.NoError(t, err)
		assert.Equal(t, "select 1", out)
	})

	t.Run("vars are bound", func(t *testing.T) {
		vars := starlark.StringDict{"invocation_id": starlark.String("abc-123")}
		out, err := engine.Render("orders.sql", "select '{{ invocation_id }}' as id", vars)
		require.NoError(t, err)
		assert.Equal(t, "select 'abc-123' as id", out)
	})

	t.Run("loop unpacking", func(t *testing.T) {
		vars := starlark.StringDict{"pairs": starlark.NewList([]starlark.Value{
			starlark.Tuple{starlark.String("a"), starlark.MakeInt(1)},
			starlark.Tuple{starlark.String("b"), starlark.MakeInt(2)},
		})}
		out, err := engine.Render("x.sql", "{* for k, v in pairs: *}{{ k }}={{ v }};{* endfor *}", vars)
		require.NoError(t, err)
		assert.Equal(t, "a=1;b=2;", out)
	})

	t.Run("errors carry position", func(t *testing.T) {
		_, err := engine.Render("x.sql", "select\n{{ missing }}", nil)
		require.Error(t, err)

		var tmplErr *Error
		require.ErrorAs(t, err, &tmplErr)
		assert.Equal(t, 2, tmplErr.Pos.Line)
	})
}
