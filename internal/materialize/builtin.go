package materialize

import (
	"context"
	"fmt"

	"github.com/leapstack-labs/leaprun/pkg/core"
)

// DefaultAdapter is the adapter type built-in strategies are registered for.
const DefaultAdapter = "default"

// Func adapts a plain function to the Macro interface.
type Func struct {
	name string
	fn   func(ctx context.Context, mc *Context) error
}

// NewFunc wraps fn as a macro called name.
func NewFunc(name string, fn func(ctx context.Context, mc *Context) error) *Func {
	return &Func{name: name, fn: fn}
}

// Name returns the macro name.
func (f *Func) Name() string { return f.name }

// Invoke runs the macro.
func (f *Func) Invoke(ctx context.Context, mc *Context) error { return f.fn(ctx, mc) }

// Builtins returns the Go implementations of the standard strategies.
func Builtins() map[string]Macro {
	return map[string]Macro{
		core.MaterializationTable:       NewFunc("materialization_table_default", materializeTable),
		core.MaterializationView:        NewFunc("materialization_view_default", materializeView),
		core.MaterializationIncremental: NewFunc("materialization_incremental_default", materializeIncremental),
		core.MaterializationArchive:     NewFunc("materialization_archive_default", materializeArchive),
	}
}

// dropExisting drops schema.name using the type it currently has.
func dropExisting(ctx context.Context, mc *Context, schema, name string) error {
	typ, ok := mc.ExistingType(schema, name)
	if !ok {
		return nil
	}
	kind := "table"
	if typ == core.RelationView {
		kind = "view"
	}
	_, err := mc.Execute(ctx, fmt.Sprintf("drop %s if exists %s", kind, qualified(schema, name)))
	return err
}

func createAs(ctx context.Context, mc *Context, kind string) error {
	node := mc.Node
	if err := dropExisting(ctx, mc, node.Schema, node.Name); err != nil {
		return err
	}
	res, err := mc.Execute(ctx, fmt.Sprintf("create %s %s as (\n%s\n)", kind, node.RelationName(), mc.SQL()))
	if err != nil {
		return err
	}
	if err := mc.Commit(ctx); err != nil {
		return err
	}
	mc.StoreResult(MainResult, res.Status)
	return nil
}

func materializeTable(ctx context.Context, mc *Context) error {
	return createAs(ctx, mc, "table")
}

func materializeView(ctx context.Context, mc *Context) error {
	return createAs(ctx, mc, "view")
}

// materializeIncremental creates the table on the first run. Later runs
// replace rows matching unique_key, or append when there is no key.
func materializeIncremental(ctx context.Context, mc *Context) error {
	node := mc.Node
	typ, exists := mc.ExistingType(node.Schema, node.Name)
	if !exists || typ != core.RelationTable {
		return createAs(ctx, mc, "table")
	}

	target := node.RelationName()
	source := fmt.Sprintf("(\n%s\n) as leaprun_incremental", mc.SQL())

	if key := node.Config.UniqueKey; key != "" {
		staging := node.Name + "__leaprun_tmp"
		stmts := []string{
			fmt.Sprintf("drop table if exists %s", staging),
			fmt.Sprintf("create temporary table %s as select * from %s", staging, source),
			fmt.Sprintf("delete from %s where %s in (select %s from %s)", target, key, key, staging),
		}
		for _, stmt := range stmts {
			if _, err := mc.Execute(ctx, stmt); err != nil {
				return err
			}
		}
		source = staging
	}

	res, err := mc.Execute(ctx, fmt.Sprintf("insert into %s select * from %s", target, source))
	if err != nil {
		return err
	}
	if err := mc.Commit(ctx); err != nil {
		return err
	}
	mc.StoreResult(MainResult, res.Status)
	return nil
}

// materializeArchive keeps type-2 history of a source table. Each version
// carries valid_from and valid_to; the current version has valid_to null.
func materializeArchive(ctx context.Context, mc *Context) error {
	node := mc.Node
	cfg := node.Config
	if cfg.UniqueKey == "" || cfg.UpdatedAt == "" {
		return core.NewCompilationError(node, "archive requires unique_key and updated_at", nil)
	}

	schema, table := cfg.TargetSchema, cfg.TargetTable
	if schema == "" {
		schema = node.Schema
	}
	if table == "" {
		table = node.Name
	}
	if schema != "" {
		if err := mc.EnsureSchema(ctx, schema); err != nil {
			return err
		}
	}
	target := qualified(schema, table)
	versions := fmt.Sprintf(
		"select src.*, src.%s as valid_from, cast(null as timestamp) as valid_to from (\n%s\n) as src",
		cfg.UpdatedAt, mc.SQL())

	var stmts []string
	if _, exists := mc.ExistingType(schema, table); !exists {
		stmts = []string{fmt.Sprintf("create table %s as (\n%s\n)", target, versions)}
	} else {
		stmts = []string{
			fmt.Sprintf(
				"update %s as arc set valid_to = src.%s from (\n%s\n) as src where arc.%s = src.%s and arc.valid_to is null and src.%s > arc.valid_from",
				target, cfg.UpdatedAt, mc.SQL(), cfg.UniqueKey, cfg.UniqueKey, cfg.UpdatedAt),
			fmt.Sprintf(
				"insert into %s %s where not exists (select 1 from %s as arc where arc.%s = src.%s and arc.valid_to is null)",
				target, versions, target, cfg.UniqueKey, cfg.UniqueKey),
		}
	}

	var last string
	for _, stmt := range stmts {
		res, err := mc.Execute(ctx, stmt)
		if err != nil {
			return err
		}
		last = res.Status
	}
	if err := mc.Commit(ctx); err != nil {
		return err
	}
	mc.StoreResult(MainResult, last)
	return nil
}

func qualified(schema, name string) string {
	if schema == "" {
		return name
	}
	return schema + "." + name
}
