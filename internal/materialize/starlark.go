package materialize

import (
	"context"
	"errors"
	"fmt"
	"sort"

	starctx "github.com/leapstack-labs/leaprun/internal/starlark"
	"github.com/leapstack-labs/leaprun/pkg/core"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

// StarlarkMacro is a project macro called as fn(ctx).
type StarlarkMacro struct {
	name string
	fn   starlark.Callable
}

// NewStarlarkMacro wraps a Starlark callable.
func NewStarlarkMacro(name string, fn starlark.Callable) *StarlarkMacro {
	return &StarlarkMacro{name: name, fn: fn}
}

// Name returns the macro name.
func (m *StarlarkMacro) Name() string { return m.name }

// Invoke calls the macro with a ctx struct bound to mc.
func (m *StarlarkMacro) Invoke(ctx context.Context, mc *Context) error {
	thread, stop := starctx.NewThread(ctx, m.name)
	defer stop()

	_, err := starlark.Call(thread, m.fn, starlark.Tuple{macroContext(ctx, mc)}, nil)
	if err == nil {
		return nil
	}

	var nodeErr core.NodeError
	var internal *core.InternalError
	if errors.As(err, &nodeErr) || errors.As(err, &internal) {
		return err
	}
	return core.NewRuntimeError(mc.Node, fmt.Sprintf("materialization %s failed", m.name), err)
}

// macroContext exposes mc to Starlark as the ctx argument.
func macroContext(ctx context.Context, mc *Context) starlark.Value {
	node := mc.Node
	this := &starctx.ThisInfo{Name: node.Name, Schema: node.Schema}

	existing := starlark.NewDict(len(mc.Existing))
	keys := make([]string, 0, len(mc.Existing))
	for k := range mc.Existing {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		_ = existing.SetKey(starlark.String(k), starlark.String(mc.Existing[k]))
	}
	existing.Freeze()

	return starlarkstruct.FromStringDict(starlark.String("ctx"), starlark.StringDict{
		"this":     this.ToStarlark(),
		"sql":      starlark.String(mc.SQL()),
		"config":   starctx.NodeConfigDict(node.Config),
		"existing": existing,

		"execute": starlark.NewBuiltin("execute", func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var sql string
			if err := starlark.UnpackArgs(b.Name(), args, kwargs, "sql", &sql); err != nil {
				return nil, err
			}
			res, err := mc.Execute(ctx, sql)
			if err != nil {
				return nil, err
			}
			return starlark.String(res.Status), nil
		}),

		"fetch": starlark.NewBuiltin("fetch", func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var sql string
			if err := starlark.UnpackArgs(b.Name(), args, kwargs, "sql", &sql); err != nil {
				return nil, err
			}
			table, err := mc.Fetch(ctx, sql)
			if err != nil {
				return nil, err
			}
			return tableToStarlark(table)
		}),

		"already_exists": starlark.NewBuiltin("already_exists", func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var schema, table string
			if err := starlark.UnpackArgs(b.Name(), args, kwargs, "schema", &schema, "table", &table); err != nil {
				return nil, err
			}
			ok, err := mc.AlreadyExists(ctx, schema, table)
			if err != nil {
				return nil, err
			}
			return starlark.Bool(ok), nil
		}),

		"commit": starlark.NewBuiltin("commit", func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			if err := starlark.UnpackArgs(b.Name(), args, kwargs); err != nil {
				return nil, err
			}
			return starlark.None, mc.Commit(ctx)
		}),

		"store_result": starlark.NewBuiltin("store_result", func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var name, status string
			if err := starlark.UnpackArgs(b.Name(), args, kwargs, "name", &name, "status", &status); err != nil {
				return nil, err
			}
			mc.StoreResult(name, status)
			return starlark.None, nil
		}),
	})
}

// tableToStarlark converts fetched rows to a list of tuples.
func tableToStarlark(t *core.Table) (starlark.Value, error) {
	if t == nil {
		return starlark.NewList(nil), nil
	}
	rows := make([]starlark.Value, 0, len(t.Rows))
	for i, row := range t.Rows {
		tuple := make(starlark.Tuple, len(row))
		for j, cell := range row {
			v, err := starctx.GoToStarlark(cell)
			if err != nil {
				v = starlark.String(fmt.Sprint(cell))
			}
			tuple[j] = v
		}
		if len(tuple) != len(t.Columns) && len(t.Columns) > 0 {
			return nil, fmt.Errorf("row %d has %d values for %d columns", i, len(tuple), len(t.Columns))
		}
		rows = append(rows, tuple)
	}
	return starlark.NewList(rows), nil
}
