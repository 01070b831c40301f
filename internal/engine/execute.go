package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.starlark.net/starlark"
	"golang.org/x/sync/errgroup"

	"github.com/leapstack-labs/leaprun/internal/compiler"
	"github.com/leapstack-labs/leaprun/internal/dag"
	"github.com/leapstack-labs/leaprun/internal/loader"
	"github.com/leapstack-labs/leaprun/internal/materialize"
	"github.com/leapstack-labs/leaprun/internal/runner"
	starctx "github.com/leapstack-labs/leaprun/internal/starlark"
	"github.com/leapstack-labs/leaprun/internal/telemetry"
	"github.com/leapstack-labs/leaprun/internal/template"
	"github.com/leapstack-labs/leaprun/internal/writer"
	"github.com/leapstack-labs/leaprun/pkg/adapter"
	"github.com/leapstack-labs/leaprun/pkg/core"
)

// Command is a unit of work the engine executes.
type Command string

// Commands.
const (
	CommandRun     Command = "run"
	CommandCompile Command = "compile"
	CommandTest    Command = "test"
	CommandArchive Command = "archive"
)

// kind returns the runner kind of the batch hooks for c.
func (c Command) kind() (runner.Kind, bool) {
	switch c {
	case CommandRun:
		return runner.KindModel, true
	case CommandTest:
		return runner.KindTest, true
	case CommandArchive:
		return runner.KindArchive, true
	case CommandCompile:
		return runner.KindCompileOnly, true
	default:
		return 0, false
	}
}

// selects reports whether c works on n.
func (c Command) selects(n *core.Node) bool {
	if !n.Config.Enabled {
		return false
	}
	switch c {
	case CommandRun:
		return n.ResourceType == core.ResourceModel && !n.IsEphemeralModel()
	case CommandTest:
		return n.ResourceType == core.ResourceTest
	case CommandArchive:
		return n.ResourceType == core.ResourceArchive
	case CommandCompile:
		switch n.ResourceType {
		case core.ResourceModel:
			return !n.IsEphemeralModel()
		case core.ResourceTest, core.ResourceArchive:
			return true
		}
	}
	return false
}

// BatchResult is the result of one executed command.
type BatchResult struct {
	Command      Command
	InvocationID string
	Outcomes     []core.RunOutcome
	Elapsed      time.Duration
	// Internal counts errored outcomes caused by an internal fault.
	Internal int
}

// Failed reports whether any node errored or any test failed.
func (r *BatchResult) Failed() bool {
	for _, o := range r.Outcomes {
		if o.Errored() || o.Failed() {
			return true
		}
	}
	return false
}

// Count returns how many outcomes are in state.
func (r *BatchResult) Count(state core.OutcomeState) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.State() == state {
			n++
		}
	}
	return n
}

// Execute runs cmd over the project. The returned error is set when the
// batch was aborted; node errors and test failures are only reported in the
// result.
func (e *Engine) Execute(ctx context.Context, cmd Command) (*BatchResult, error) {
	kind, ok := cmd.kind()
	if !ok {
		return nil, fmt.Errorf("unknown command %q", cmd)
	}
	e.logger.Info("starting command", "command", cmd, "project", e.project.Name)

	graph, err := loader.New(loader.Config{Project: e.project, Root: e.root, Logger: e.logger}).Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load project: %w", err)
	}

	var ids []string
	for _, n := range graph.Nodes() {
		if cmd.selects(n) {
			ids = append(ids, n.UniqueID)
		}
	}
	waves, err := graph.Subgraph(ids).ExecutionLevels()
	if err != nil {
		return nil, err
	}

	db, err := e.ensureDBConnected(ctx)
	if err != nil {
		return nil, err
	}

	inv, err := e.store.CreateInvocation(string(cmd))
	if err != nil {
		return nil, fmt.Errorf("failed to create invocation: %w", err)
	}
	e.logger.Debug("created invocation", "invocation_id", inv.ID, "nodes", len(ids), "waves", len(waves))

	sink := telemetry.NewAsyncSink(telemetry.Config{
		Backends: []telemetry.Backend{
			telemetry.LogBackend{Logger: e.logger},
			telemetry.StoreBackend{Store: e.store},
		},
		Logger: e.logger,
	})

	b := &batch{
		cfg:         e.runnerConfig(db, inv, sink),
		graph:       graph,
		compileOnly: kind == runner.KindCompileOnly,
		threads:     e.project.Threads,
		total:       len(ids),
		skipped:     make(map[string]bool),
	}
	hooks := runner.HooksFor(kind, b.cfg, graph)

	started := time.Now()
	runErr := b.run(ctx, hooks, waves)
	result := &BatchResult{
		Command:      cmd,
		InvocationID: inv.ID,
		Outcomes:     b.outcomes,
		Elapsed:      time.Since(started),
		Internal:     b.internal,
	}
	if runErr == nil {
		runErr = hooks.AfterBatch(ctx, result.Outcomes, result.Elapsed)
	}

	_ = sink.Close()
	e.complete(inv.ID, result, runErr)
	return result, runErr
}

func (e *Engine) runnerConfig(db adapter.Adapter, inv *core.Invocation, sink telemetry.Sink) *runner.Config {
	project := *e.project
	project.TargetPath = e.path(project.TargetPath)

	target := &starctx.TargetInfo{
		Type:     db.Type(),
		Schema:   e.project.Target.DefaultSchema(),
		Database: e.project.Target.AdapterConfig().Database,
	}
	pool := starctx.NewThreadPool(e.project.Threads)
	startedAt := inv.StartedAt.UTC()

	return &runner.Config{
		Project: &project,
		Adapter: db,
		Compiler: compiler.New(compiler.Config{
			Env:    e.env,
			Target: target,
			Pool:   pool,
			Vars: starlark.StringDict{
				"invocation_id":  starlark.String(inv.ID),
				"run_started_at": starlark.String(startedAt.Format(time.RFC3339)),
			},
			Logger: e.logger,
		}),
		Renderer:         &template.Engine{Env: e.env, Target: target, Pool: pool},
		Writer:           writer.New(),
		Materializations: materialize.NewRegistry(e.logger),
		Presenter:        e.presenter,
		Telemetry:        sink,
		InvocationID:     inv.ID,
		RunStartedAt:     startedAt,
		Logger:           e.logger,
	}
}

func (e *Engine) complete(id string, result *BatchResult, runErr error) {
	status, msg := core.InvocationCompleted, ""
	switch {
	case runErr != nil:
		status, msg = core.InvocationFailed, runErr.Error()
	case result.Failed():
		status = core.InvocationFailed
		msg = fmt.Sprintf("%d errored, %d failed", result.Count(core.StateErrored), result.Count(core.StateFailed))
	}
	if err := e.store.CompleteInvocation(id, status, msg); err != nil {
		e.logger.Warn("failed to complete invocation", "invocation_id", id, "error", err)
	}
	if result.Internal > 0 {
		e.logger.Warn("command hit internal errors", "invocation_id", id, "count", result.Internal)
	}
	e.logger.Info("command finished", "invocation_id", id, "status", status, "elapsed", result.Elapsed)
}

// batch drives the runners of one command.
type batch struct {
	cfg         *runner.Config
	graph       *dag.Graph
	compileOnly bool
	threads     int
	total       int

	mu       sync.Mutex
	index    int
	outcomes []core.RunOutcome
	internal int
	skipped  map[string]bool
}

func (b *batch) run(ctx context.Context, hooks runner.BatchHooks, waves [][]*core.Node) error {
	if err := hooks.BeforeBatch(ctx); err != nil {
		return err
	}

	var existing core.ExistingRelations
	if !b.compileOnly {
		var err error
		if existing, err = b.existingRelations(ctx); err != nil {
			return err
		}
	}

	for _, wave := range waves {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := b.runWave(ctx, wave, existing); err != nil {
			return err
		}
	}
	return nil
}

func (b *batch) runWave(ctx context.Context, wave []*core.Node, existing core.ExistingRelations) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(b.threads, 1))

	for _, node := range wave {
		if gctx.Err() != nil {
			break
		}
		b.index++
		r := runner.New(b.cfg, runner.KindFor(node, b.compileOnly), node, b.index, b.total)

		if b.isSkipped(node.UniqueID) {
			b.add(r.OnSkip())
			continue
		}

		g.Go(func() error {
			// remaining nodes are not started once the batch aborts
			if gctx.Err() != nil {
				return nil
			}
			r.BeforeExecute()
			res := r.SafeRun(gctx, b.graph, existing)
			r.AfterExecute(res.Outcome)
			b.add(res.Outcome)
			if res.Fault != nil && res.Fault.Kind == runner.FaultInternal {
				b.mu.Lock()
				b.internal++
				b.mu.Unlock()
			}

			if res.Fatal() {
				return res.Err()
			}
			if res.Outcome.Errored() {
				b.skipDescendants(node.UniqueID)
				if r.RaiseOnFirstError() {
					return res.Err()
				}
			}
			return nil
		})
	}
	return g.Wait()
}

// existingRelations snapshots the relations in the data store.
func (b *batch) existingRelations(ctx context.Context) (core.ExistingRelations, error) {
	db := b.cfg.Adapter
	relations, err := db.ListRelations(ctx, adapter.MasterConnection)
	if releaseErr := db.ReleaseConnection(context.WithoutCancel(ctx), adapter.MasterConnection); releaseErr != nil {
		b.cfg.Logger.Warn("failed to release connection", "conn", adapter.MasterConnection, "error", releaseErr)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list relations: %w", err)
	}

	existing := make(core.ExistingRelations, len(relations))
	for _, rel := range relations {
		existing[rel.Schema+"."+rel.Name] = rel.Type
	}
	return existing, nil
}

func (b *batch) add(o core.RunOutcome) {
	b.mu.Lock()
	b.outcomes = append(b.outcomes, o)
	b.mu.Unlock()
}

func (b *batch) isSkipped(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.skipped[id]
}

func (b *batch) skipDescendants(id string) {
	descendants := b.graph.Descendants(id)
	b.mu.Lock()
	for _, d := range descendants {
		b.skipped[d] = true
	}
	b.mu.Unlock()
}
