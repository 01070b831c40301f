package runner

import (
	"context"
	"errors"
	"fmt"

	"github.com/leapstack-labs/leaprun/internal/dag"
	"github.com/leapstack-labs/leaprun/internal/materialize"
	"github.com/leapstack-labs/leaprun/pkg/core"
)

// compiledSubfolder is where injected SQL is written under the target path.
const compiledSubfolder = "compiled"

// compileStep is shared by every kind.
type compileStep struct{}

func (compileStep) compile(ctx context.Context, r *Runner, graph *dag.Graph) (*core.Node, error) {
	return r.compileNode(ctx, r.node, graph)
}

// compileNode compiles node, renders the runtime context into its wrapped
// SQL and writes the injected SQL of everything but archives.
func (r *Runner) compileNode(ctx context.Context, node *core.Node, graph *dag.Graph) (*core.Node, error) {
	compiled, err := r.cfg.Compiler.CompileNode(ctx, node, graph)
	if err != nil {
		return nil, err
	}

	name := compiled.OriginalFilePath
	if name == "" {
		name = compiled.Name
	}
	sql, err := r.cfg.Renderer.Render(name, compiled.WrappedSQL, r.runtimeContext(ctx, compiled))
	if err != nil {
		var nodeErr core.NodeError
		if errors.As(err, &nodeErr) {
			return compiled, err
		}
		return compiled, core.NewCompilationError(compiled, "failed to render runtime context", err)
	}
	compiled.WrappedSQL = sql

	if compiled.InjectedSQL != "" && compiled.ResourceType != core.ResourceArchive && r.cfg.Writer != nil {
		r.logger.Debug("writing injected SQL", "node", compiled.UniqueID)
		path, err := r.cfg.Writer.Write(compiled, r.cfg.targetPath(), compiledSubfolder, compiled.InjectedSQL)
		if err != nil {
			return compiled, fmt.Errorf("failed to write compiled SQL for %s: %w", compiled.UniqueID, err)
		}
		compiled.BuildPath = path
	}
	return compiled, nil
}

// compileStrategy compiles and writes without executing.
type compileStrategy struct{ compileStep }

func (compileStrategy) execute(_ context.Context, _ *Runner, node *core.Node, _ core.ExistingRelations, _ *dag.Graph) (core.RunOutcome, error) {
	return core.NewOutcome(node, ""), nil
}

func (compileStrategy) describe(node *core.Node) string {
	return fmt.Sprintf("compile %s", node.Name)
}

func (compileStrategy) printResultLine(*Runner, core.RunOutcome) {}

// modelStrategy dispatches to the node's materialization.
type modelStrategy struct{ compileStep }

func (modelStrategy) execute(ctx context.Context, r *Runner, node *core.Node, existing core.ExistingRelations, graph *dag.Graph) (core.RunOutcome, error) {
	return r.materialize(ctx, node, existing, graph)
}

func (modelStrategy) describe(node *core.Node) string {
	return fmt.Sprintf("%s model %s.%s", node.Materialization(), node.Schema, node.Name)
}

func (s modelStrategy) printResultLine(r *Runner, outcome core.RunOutcome) {
	r.cfg.presenter().ModelResultLine(s.describe(r.node), outcome, r.index, r.total)
}

func (r *Runner) materialize(ctx context.Context, node *core.Node, existing core.ExistingRelations, graph *dag.Graph) (core.RunOutcome, error) {
	adapterType := r.cfg.Adapter.Type()
	strategy := node.Materialization()

	m, ok := r.cfg.Materializations.Lookup(graph, strategy, adapterType)
	if !ok {
		return core.RunOutcome{}, core.NewMissingMaterializationError(node, adapterType)
	}

	mc := materialize.NewContext(node, graph, r.cfg.Adapter, existing)
	r.logger.Debug("invoking materialization", "macro", m.Name(), "adapter", adapterType)
	if err := m.Invoke(ctx, mc); err != nil {
		return core.RunOutcome{}, err
	}

	res, ok := mc.Result(materialize.MainResult)
	if !ok {
		return core.RunOutcome{}, core.NewRuntimeError(node,
			fmt.Sprintf("materialization %q did not store a %q result", m.Name(), materialize.MainResult), nil)
	}
	return core.NewOutcome(node, res.Status), nil
}

// archiveStrategy is a model with archive reporting.
type archiveStrategy struct{ modelStrategy }

func (archiveStrategy) describe(node *core.Node) string {
	cfg := node.Config
	return fmt.Sprintf("archive %s.%s --> %s.%s", cfg.SourceSchema, cfg.SourceTable, cfg.TargetSchema, cfg.TargetTable)
}

func (s archiveStrategy) printResultLine(r *Runner, outcome core.RunOutcome) {
	r.cfg.presenter().ArchiveResultLine(s.describe(r.node), outcome, r.index, r.total)
}

// testStrategy runs a scalar assertion.
type testStrategy struct{ compileStep }

func (testStrategy) execute(ctx context.Context, r *Runner, node *core.Node, _ core.ExistingRelations, _ *dag.Graph) (core.RunOutcome, error) {
	_, table, err := r.cfg.Adapter.ExecuteAndFetch(ctx, node.Name, node.WrappedSQL, true)
	if err != nil {
		return core.RunOutcome{}, err
	}

	rows := table.NumRows()
	cols := table.NumColumns()
	if rows > 0 {
		cols = len(table.Rows[0])
	}
	if rows != 1 || cols == 0 {
		return core.RunOutcome{}, &core.TestShapeError{Test: node.Name, Rows: rows, Columns: cols}
	}

	failures, err := scalarInt(table.Rows[0][0])
	if err != nil {
		return core.RunOutcome{}, core.NewRuntimeError(node, "test returned a non-numeric result", err)
	}
	return core.TestOutcome(node, failures), nil
}

func (testStrategy) describe(node *core.Node) string {
	return fmt.Sprintf("test %s", node.Name)
}

func (s testStrategy) printResultLine(r *Runner, outcome core.RunOutcome) {
	r.cfg.presenter().TestResultLine(s.describe(r.node), outcome, r.index, r.total)
}
