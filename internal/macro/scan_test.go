package macro

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.starlark.net/syntax"
)

func TestScan(t *testing.T) {
	src := []byte(`RATE = 100

def cents_to_dollars(col, scale=2):
    """Convert a cents column to dollars."""
    return col

def _helper():
    pass

if RATE > 1:
    def hidden():
        pass

def pivot(col, *values, **opts):
    return col
`)

	defs, err := Scan("macros/money.star", src)
	require.NoError(t, err)
	assert.Equal(t, []Definition{
		{Name: "cents_to_dollars", Line: 3},
		{Name: "pivot", Line: 14},
	}, defs)
}

func TestScan_Empty(t *testing.T) {
	defs, err := Scan("macros/empty.star", []byte("# nothing yet\n"))
	require.NoError(t, err)
	assert.Empty(t, defs)
}

func TestScan_SyntaxError(t *testing.T) {
	_, err := Scan("macros/bad.star", []byte("def broken(:\n"))
	require.Error(t, err)

	var loadErr *LoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Equal(t, "macros/bad.star: syntax error", err.Error())

	var syntaxErr syntax.Error
	assert.True(t, errors.As(err, &syntaxErr), "parser error is kept as the cause")
	assert.Equal(t, int32(1), syntaxErr.Pos.Line)
}
