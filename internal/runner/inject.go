package runner

import (
	"context"
	"time"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"

	"github.com/leapstack-labs/leaprun/pkg/core"
)

// runtimeContext returns the values rendered into a node's wrapped SQL after
// compilation. The adapter helpers run on the node's own connection.
func (r *Runner) runtimeContext(ctx context.Context, node *core.Node) starlark.StringDict {
	adp := r.cfg.Adapter
	conn := node.Name

	startedAt := r.cfg.RunStartedAt
	if startedAt.IsZero() {
		startedAt = time.Now()
	}

	getColumns := starlark.NewBuiltin("get_columns_in_table",
		func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var schema, table string
			if err := starlark.UnpackArgs(b.Name(), args, kwargs, "schema", &schema, "table", &table); err != nil {
				return nil, err
			}
			cols, err := adp.GetColumnsInTable(ctx, conn, schema, table)
			if err != nil {
				return nil, err
			}
			return columnsToStarlark(cols), nil
		})

	getMissing := starlark.NewBuiltin("get_missing_columns",
		func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var fromSchema, fromTable, toSchema, toTable string
			if err := starlark.UnpackArgs(b.Name(), args, kwargs,
				"from_schema", &fromSchema, "from_table", &fromTable,
				"to_schema", &toSchema, "to_table", &toTable); err != nil {
				return nil, err
			}
			cols, err := adp.GetMissingColumns(ctx, conn, fromSchema, fromTable, toSchema, toTable)
			if err != nil {
				return nil, err
			}
			return columnsToStarlark(cols), nil
		})

	alreadyExists := starlark.NewBuiltin("already_exists",
		func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var schema, table string
			if err := starlark.UnpackArgs(b.Name(), args, kwargs, "schema", &schema, "table", &table); err != nil {
				return nil, err
			}
			ok, err := adp.TableExists(ctx, conn, schema, table)
			if err != nil {
				return nil, err
			}
			return starlark.Bool(ok), nil
		})

	return starlark.StringDict{
		"run_started_at":       starlark.String(startedAt.UTC().Format(time.RFC3339)),
		"invocation_id":        starlark.String(r.cfg.InvocationID),
		"get_columns_in_table": getColumns,
		"get_missing_columns":  getMissing,
		"already_exists":       alreadyExists,
	}
}

func columnsToStarlark(cols []core.Column) *starlark.List {
	out := make([]starlark.Value, 0, len(cols))
	for _, c := range cols {
		out = append(out, starlarkstruct.FromStringDict(starlark.String("column"), starlark.StringDict{
			"name":      starlark.String(c.Name),
			"data_type": starlark.String(c.Type),
			"nullable":  starlark.Bool(c.Nullable),
			"position":  starlark.MakeInt(c.Position),
		}))
	}
	return starlark.NewList(out)
}
