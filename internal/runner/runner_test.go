package runner

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leaprun/internal/compiler"
	"github.com/leapstack-labs/leaprun/internal/dag"
	"github.com/leapstack-labs/leaprun/internal/materialize"
	"github.com/leapstack-labs/leaprun/internal/telemetry"
	"github.com/leapstack-labs/leaprun/internal/template"
	"github.com/leapstack-labs/leaprun/internal/testutil"
	"github.com/leapstack-labs/leaprun/pkg/core"
)

// --- test doubles ---

type stubCompiler struct {
	delay time.Duration
	err   error
	calls atomic.Int32
}

func (c *stubCompiler) CompileNode(_ context.Context, node *core.Node, _ *dag.Graph) (*core.Node, error) {
	c.calls.Add(1)
	time.Sleep(c.delay)
	if c.err != nil {
		return nil, c.err
	}
	n := node.Clone()
	n.CompiledSQL = n.RawSQL
	n.InjectedSQL = n.RawSQL
	n.WrappedSQL = n.RawSQL
	if n.ResourceType == core.ResourceTest {
		n.WrappedSQL = compiler.WrapTest(n.RawSQL)
	}
	n.Compiled = true
	return n, nil
}

type stubLookup struct {
	macros map[string]materialize.Macro
}

func (l stubLookup) Lookup(_ *dag.Graph, strategy, _ string) (materialize.Macro, bool) {
	m, ok := l.macros[strategy]
	return m, ok
}

type countingMacro struct {
	calls atomic.Int32
	fn    func(ctx context.Context, mc *materialize.Context) error
}

func (m *countingMacro) Name() string { return "counting" }

func (m *countingMacro) Invoke(ctx context.Context, mc *materialize.Context) error {
	m.calls.Add(1)
	return m.fn(ctx, mc)
}

type recordingWriter struct {
	mu      sync.Mutex
	written map[string]string
}

func (w *recordingWriter) Write(node *core.Node, targetDir, subfolder, content string) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.written == nil {
		w.written = make(map[string]string)
	}
	path := targetDir + "/" + subfolder + "/" + node.Name + ".sql"
	w.written[path] = content
	return path, nil
}

type recordingPresenter struct {
	mu    sync.Mutex
	lines []string
}

func (p *recordingPresenter) add(line string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lines = append(p.lines, line)
}

func (p *recordingPresenter) Lines() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.lines...)
}

func (p *recordingPresenter) StartLine(d string, _, _ int) { p.add("start " + d) }
func (p *recordingPresenter) SkipLine(n *core.Node, _, _ int) { p.add("skip " + n.Name) }
func (p *recordingPresenter) ModelResultLine(d string, o core.RunOutcome, _, _ int) {
	p.add("model " + d + " " + o.Status)
}
func (p *recordingPresenter) TestResultLine(d string, o core.RunOutcome, _, _ int) {
	p.add("test " + d + " " + o.Status)
}
func (p *recordingPresenter) ArchiveResultLine(d string, o core.RunOutcome, _, _ int) {
	p.add("archive " + d + " " + o.Status)
}
func (p *recordingPresenter) SummaryLine(counts string, elapsed time.Duration) {
	if elapsed == Unmeasured {
		p.add("summary " + counts)
		return
	}
	p.add("summary " + counts + " timed")
}

type recordingSink struct {
	mu     sync.Mutex
	events []telemetry.Event
}

func (s *recordingSink) Track(e telemetry.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

// --- fixtures ---

type fixture struct {
	cfg       *Config
	adapter   *testutil.FakeAdapter
	compiler  *stubCompiler
	presenter *recordingPresenter
	macro     *countingMacro
	graph     *dag.Graph
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		adapter:   testutil.NewFakeAdapter("duckdb"),
		compiler:  &stubCompiler{},
		presenter: &recordingPresenter{},
		graph:     dag.NewGraph(),
	}
	f.macro = &countingMacro{fn: func(ctx context.Context, mc *materialize.Context) error {
		res, err := mc.Execute(ctx, "create table "+mc.Node.RelationName()+" as (\n"+mc.SQL()+"\n)")
		if err != nil {
			return err
		}
		mc.StoreResult(materialize.MainResult, res.Status)
		return nil
	}}
	f.cfg = &Config{
		Project:          &core.ProjectConfig{Name: "shop", TargetPath: "target"},
		Adapter:          f.adapter,
		Compiler:         f.compiler,
		Renderer:         &template.Engine{},
		Materializations: stubLookup{macros: map[string]materialize.Macro{"table": f.macro, "archive": f.macro}},
		Presenter:        f.presenter,
		InvocationID:     "inv-1",
		Logger:           testutil.NewTestLogger(t),
	}
	return f
}

func model(name, materialized string) *core.Node {
	return &core.Node{
		UniqueID:         "model.shop." + name,
		Name:             name,
		Package:          "shop",
		ResourceType:     core.ResourceModel,
		Schema:           "analytics",
		OriginalFilePath: "models/" + name + ".sql",
		RawSQL:           "select 1 as id",
		Config:           core.NodeConfig{Materialized: materialized, Enabled: true},
	}
}

func testNode(name string) *core.Node {
	return &core.Node{
		UniqueID:     "test.shop." + name,
		Name:         name,
		Package:      "shop",
		ResourceType: core.ResourceTest,
		Schema:       "analytics",
		RawSQL:       "select * from analytics.orders where id is null",
		Config:       core.NodeConfig{Enabled: true},
	}
}

func hook(name, tag, sql string) *core.Node {
	return &core.Node{
		UniqueID:     "operation.shop." + name,
		Name:         name,
		Package:      "shop",
		ResourceType: core.ResourceOperation,
		RawSQL:       sql,
		Tags:         []string{tag},
		Config:       core.NodeConfig{Enabled: true},
	}
}

func scalarTable(rows ...core.Row) func(string, string) (*core.Table, error) {
	return func(string, string) (*core.Table, error) {
		return &core.Table{Columns: []string{"count"}, Rows: rows}, nil
	}
}

// --- SafeRun ---

func TestSafeRun_ScenarioTable(t *testing.T) {
	f := newFixture(t)
	node := model("a", core.MaterializationTable)
	f.graph.AddNode(node)

	res := New(f.cfg, KindModel, node, 1, 1).SafeRun(context.Background(), f.graph, nil)

	require.Nil(t, res.Fault)
	assert.False(t, res.Fatal())
	assert.Equal(t, "a", res.Outcome.Node.Name)
	assert.Empty(t, res.Outcome.Error)
	assert.False(t, res.Outcome.Skip)
	assert.Equal(t, "CREATE TABLE", res.Outcome.Status)
	assert.Equal(t, core.StateSuccess, res.Outcome.State())
	assert.True(t, res.Outcome.Node.Compiled, "outcome carries the compiled node")
	assert.Equal(t, []string{"create table analytics.a as (\nselect 1 as id\n)"}, f.adapter.Statements("a"))
}

func TestSafeRun_CompileFaultKeepsNode(t *testing.T) {
	f := newFixture(t)
	f.compiler.err = core.NewCompilationError(nil, "bad ref", nil)
	node := model("broken", core.MaterializationTable)

	res := New(f.cfg, KindModel, node, 1, 1).SafeRun(context.Background(), f.graph, nil)

	require.NotNil(t, res.Outcome.Node)
	assert.Same(t, node, res.Outcome.Node)
	assert.Equal(t, core.StatusError, res.Outcome.Status)
	assert.Contains(t, res.Outcome.Error, "bad ref")
	assert.False(t, res.Outcome.Skip)
	require.NotNil(t, res.Fault)
	assert.Equal(t, FaultNode, res.Fault.Kind)

	var compErr *core.CompilationError
	require.ErrorAs(t, res.Err(), &compErr)
	assert.Same(t, node, compErr.FaultNode(), "fault node defaults to the running node")
	assert.Zero(t, f.macro.calls.Load())
	assert.Len(t, f.adapter.CallsTo("ReleaseConnection"), 1)
}

func TestSafeRun_FaultTiers(t *testing.T) {
	tests := []struct {
		name      string
		fn        func(ctx context.Context, mc *materialize.Context) error
		wantKind  FaultKind
		wantFatal bool
	}{
		{
			name:     "database error is a node fault",
			fn:       func(context.Context, *materialize.Context) error { return core.NewDatabaseError("select", errors.New("syntax error")) },
			wantKind: FaultNode,
		},
		{
			name:     "runtime error is a node fault",
			fn:       func(_ context.Context, mc *materialize.Context) error { return core.NewRuntimeError(mc.Node, "nope", nil) },
			wantKind: FaultNode,
		},
		{
			name:     "internal error is captured",
			fn:       func(context.Context, *materialize.Context) error { return core.NewInternalError("bad state", nil) },
			wantKind: FaultInternal,
		},
		{
			name:     "panic is an internal fault",
			fn:       func(context.Context, *materialize.Context) error { panic("kaboom") },
			wantKind: FaultInternal,
		},
		{
			name:      "plain error is unclassified",
			fn:        func(context.Context, *materialize.Context) error { return errors.New("boom") },
			wantKind:  FaultUnclassified,
			wantFatal: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.macro.fn = tt.fn
			node := model("a", core.MaterializationTable)

			res := New(f.cfg, KindModel, node, 1, 1).SafeRun(context.Background(), f.graph, nil)

			require.NotNil(t, res.Fault)
			assert.Equal(t, tt.wantKind, res.Fault.Kind)
			assert.Equal(t, tt.wantFatal, res.Fatal())
			require.NotNil(t, res.Outcome.Node)
			assert.NotEmpty(t, res.Outcome.Error)
			assert.False(t, res.Outcome.Skip, "skip and error never both hold")
			assert.Equal(t, core.StatusError, res.Outcome.Status)
			assert.Len(t, f.adapter.CallsTo("ReleaseConnection"), 1)
		})
	}
}

func TestSafeRun_InternalFaultWarns(t *testing.T) {
	f := newFixture(t)
	logger, logs := testutil.NewCapturingLogger(t)
	f.cfg.Logger = logger
	f.macro.fn = func(context.Context, *materialize.Context) error {
		return core.NewInternalError("bad state", nil)
	}

	res := New(f.cfg, KindModel, model("a", core.MaterializationTable), 1, 1).SafeRun(context.Background(), f.graph, nil)

	require.NotNil(t, res.Fault)
	assert.Equal(t, FaultInternal, res.Fault.Kind)
	assert.True(t, logs.Contains(`level=WARN msg="internal error executing node" node=model.shop.a`), logs.Lines())
	assert.True(t, logs.Contains("level=DEBUG"), "banner kept at debug")
}

func TestSafeRun_NodeFaultAttachesCompiledNode(t *testing.T) {
	f := newFixture(t)
	f.macro.fn = func(context.Context, *materialize.Context) error {
		return core.NewDatabaseError("select", errors.New("relation does not exist"))
	}
	node := model("a", core.MaterializationTable)

	res := New(f.cfg, KindModel, node, 1, 1).SafeRun(context.Background(), f.graph, nil)

	var dbErr *core.DatabaseError
	require.ErrorAs(t, res.Err(), &dbErr)
	require.NotNil(t, dbErr.FaultNode())
	assert.True(t, dbErr.FaultNode().Compiled)
	assert.Contains(t, res.Outcome.Error, "in model a")
}

func TestSafeRun_UnclassifiedReleasesBeforeReturn(t *testing.T) {
	f := newFixture(t)
	var released atomic.Bool
	f.adapter.ReleaseHook = func(conn string) {
		if conn == "a" {
			released.Store(true)
		}
	}
	f.macro.fn = func(context.Context, *materialize.Context) error {
		assert.False(t, released.Load(), "released while executing")
		return errors.New("unexpected")
	}

	res := New(f.cfg, KindModel, model("a", core.MaterializationTable), 1, 1).SafeRun(context.Background(), f.graph, nil)

	require.True(t, res.Fatal())
	assert.True(t, released.Load(), "connection released before SafeRun returned")
	assert.Len(t, f.adapter.CallsTo("ReleaseConnection"), 1)
}

func TestSafeRun_ReleasesAfterCancel(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	f.macro.fn = func(ctx context.Context, _ *materialize.Context) error {
		cancel()
		return ctx.Err()
	}

	res := New(f.cfg, KindModel, model("a", core.MaterializationTable), 1, 1).SafeRun(ctx, f.graph, nil)

	assert.True(t, res.Fatal())
	assert.ErrorIs(t, res.Err(), context.Canceled)
	assert.Len(t, f.adapter.CallsTo("ReleaseConnection"), 1)
}

func TestSafeRun_ExecutionTime(t *testing.T) {
	f := newFixture(t)
	quick := New(f.cfg, KindModel, model("a", core.MaterializationTable), 1, 1).
		SafeRun(context.Background(), f.graph, nil)
	assert.GreaterOrEqual(t, quick.Outcome.ExecutionTime, time.Duration(0))

	f.compiler.delay = 15 * time.Millisecond
	inner := f.macro.fn
	f.macro.fn = func(ctx context.Context, mc *materialize.Context) error {
		time.Sleep(15 * time.Millisecond)
		return inner(ctx, mc)
	}
	slow := New(f.cfg, KindModel, model("b", core.MaterializationTable), 1, 1).
		SafeRun(context.Background(), f.graph, nil)

	assert.GreaterOrEqual(t, slow.Outcome.ExecutionTime, 30*time.Millisecond)
	assert.Greater(t, slow.Outcome.ExecutionTime, quick.Outcome.ExecutionTime)
}

func TestSafeRun_EphemeralOnlyCompiles(t *testing.T) {
	f := newFixture(t)
	node := model("stg", core.MaterializationEphemeral)

	r := New(f.cfg, KindModel, node, 1, 1)
	r.BeforeExecute()
	res := r.SafeRun(context.Background(), f.graph, nil)
	r.AfterExecute(res.Outcome)
	skipped := r.OnSkip()

	assert.Equal(t, int32(1), f.compiler.calls.Load(), "compile invoked")
	assert.Zero(t, f.macro.calls.Load(), "execute never invoked")
	assert.Empty(t, f.adapter.CallsTo("ExecuteOne"))
	require.Nil(t, res.Fault)
	assert.NotSame(t, node, res.Outcome.Node)
	assert.True(t, res.Outcome.Node.Compiled, "outcome built from the compiled node")
	assert.Equal(t, core.StateSuccess, res.Outcome.State())
	assert.True(t, skipped.Skip)
	assert.Empty(t, f.presenter.Lines(), "no start, result or skip line")
}

func TestSafeRun_MissingMaterialization(t *testing.T) {
	f := newFixture(t)
	node := model("a", core.MaterializationIncremental)

	res := New(f.cfg, KindModel, node, 1, 1).SafeRun(context.Background(), f.graph, nil)

	var missing *core.MissingMaterializationError
	require.ErrorAs(t, res.Err(), &missing)
	assert.Equal(t, "duckdb", missing.AdapterType)
	assert.Equal(t, FaultNode, res.Fault.Kind)
	assert.Contains(t, res.Outcome.Error, `No materialization "incremental" was found for adapter duckdb!`)
}

func TestSafeRun_MissingMainResult(t *testing.T) {
	f := newFixture(t)
	f.macro.fn = func(context.Context, *materialize.Context) error { return nil }

	res := New(f.cfg, KindModel, model("a", core.MaterializationTable), 1, 1).SafeRun(context.Background(), f.graph, nil)

	var rtErr *core.RuntimeError
	require.ErrorAs(t, res.Err(), &rtErr)
	assert.Contains(t, rtErr.Message, `"main"`)
}

func TestSafeRun_BuiltinMaterialization(t *testing.T) {
	f := newFixture(t)
	f.cfg.Materializations = materialize.NewRegistry(nil)
	node := model("orders", core.MaterializationView)
	existing := core.ExistingRelations{"analytics.orders": core.RelationTable}

	res := New(f.cfg, KindModel, node, 1, 1).SafeRun(context.Background(), f.graph, existing)

	require.Nil(t, res.Fault)
	assert.Equal(t, "CREATE VIEW", res.Outcome.Status)
	stmts := f.adapter.Statements("orders")
	require.Len(t, stmts, 2)
	assert.Equal(t, "drop table if exists analytics.orders", stmts[0])
}

// --- compile step ---

func TestCompile_RuntimeInjection(t *testing.T) {
	f := newFixture(t)
	f.cfg.RunStartedAt = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	node := model("a", core.MaterializationTable)
	node.RawSQL = "select '{{ invocation_id }}' as inv, '{{ run_started_at }}' as ts, " +
		"{{ 'yes' if already_exists('analytics', 'a') else 'no' }} as flag, " +
		"{{ len(get_columns_in_table('analytics', 'src')) }} as n"
	f.adapter.Relations = []core.Relation{{Schema: "analytics", Name: "a", Type: core.RelationTable}}
	f.adapter.Columns = map[string][]core.Column{
		"analytics.src": {{Name: "id"}, {Name: "name"}},
	}

	compiled, err := New(f.cfg, KindCompileOnly, node, 1, 1).compileNode(context.Background(), node, f.graph)
	require.NoError(t, err)

	assert.Equal(t, "select 'inv-1' as inv, '2024-03-01T12:00:00Z' as ts, yes as flag, 2 as n", compiled.WrappedSQL)
	exists := f.adapter.CallsTo("TableExists")
	require.Len(t, exists, 1)
	assert.Equal(t, "a", exists[0].Conn, "helpers run on the node's connection")
}

func TestCompile_RuntimeFaultIsNodeFault(t *testing.T) {
	f := newFixture(t)
	node := model("a", core.MaterializationTable)
	node.RawSQL = "select {{ undefined_thing }}"

	res := New(f.cfg, KindModel, node, 1, 1).SafeRun(context.Background(), f.graph, nil)

	var compErr *core.CompilationError
	require.ErrorAs(t, res.Err(), &compErr)
	assert.Equal(t, FaultNode, res.Fault.Kind)
	assert.Same(t, res.Outcome.Node, compErr.FaultNode())
}

func TestCompile_WritesInjectedSQL(t *testing.T) {
	f := newFixture(t)
	w := &recordingWriter{}
	f.cfg.Writer = w

	node := model("a", core.MaterializationTable)
	res := New(f.cfg, KindCompileOnly, node, 1, 2).SafeRun(context.Background(), f.graph, nil)
	require.Nil(t, res.Fault)
	assert.Equal(t, "target/compiled/a.sql", res.Outcome.Node.BuildPath)
	assert.Equal(t, "select 1 as id", w.written["target/compiled/a.sql"])

	archive := &core.Node{
		UniqueID: "archive.shop.orders_history", Name: "orders_history",
		ResourceType: core.ResourceArchive, RawSQL: "select * from raw.orders",
		Config: core.NodeConfig{Materialized: core.MaterializationArchive, Enabled: true},
	}
	res = New(f.cfg, KindCompileOnly, archive, 2, 2).SafeRun(context.Background(), f.graph, nil)
	require.Nil(t, res.Fault)
	assert.Empty(t, res.Outcome.Node.BuildPath, "archives are not written")
	assert.Len(t, w.written, 1)
}

func TestCompileOnly_DoesNotExecute(t *testing.T) {
	f := newFixture(t)
	r := New(f.cfg, KindCompileOnly, model("a", core.MaterializationTable), 1, 1)

	r.BeforeExecute()
	res := r.SafeRun(context.Background(), f.graph, nil)
	r.AfterExecute(res.Outcome)

	require.Nil(t, res.Fault)
	assert.True(t, r.RaiseOnFirstError())
	assert.Zero(t, f.macro.calls.Load())
	assert.Empty(t, f.presenter.Lines())
}

// --- tests ---

func TestTestRunner(t *testing.T) {
	tests := []struct {
		name      string
		rows      []core.Row
		status    string
		state     core.OutcomeState
		failures  int64
		wantShape string
	}{
		{name: "passing", rows: []core.Row{{int64(0)}}, status: "0", state: core.StateSuccess},
		{name: "failing", rows: []core.Row{{int64(3)}}, status: "3", state: core.StateFailed, failures: 3},
		{name: "numeric string", rows: []core.Row{{"7"}}, status: "7", state: core.StateFailed, failures: 7},
		{name: "bytes", rows: []core.Row{{[]byte("0")}}, status: "0", state: core.StateSuccess},
		{name: "two rows", rows: []core.Row{{int64(1)}, {int64(2)}}, wantShape: "Bad test not_null_id: Returned 2 rows and 1 cols"},
		{name: "no rows", rows: nil, wantShape: "Bad test not_null_id: Returned 0 rows and 1 cols"},
		{name: "no columns", rows: []core.Row{{}}, wantShape: "Bad test not_null_id: Returned 1 rows and 0 cols"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.adapter.FetchHook = scalarTable(tt.rows...)
			node := testNode("not_null_id")

			res := New(f.cfg, KindTest, node, 1, 1).SafeRun(context.Background(), f.graph, nil)

			if tt.wantShape != "" {
				require.True(t, res.Fatal(), "malformed test results abort the batch")
				var shapeErr *core.TestShapeError
				require.ErrorAs(t, res.Err(), &shapeErr)
				assert.Equal(t, tt.wantShape, shapeErr.Error())
				return
			}
			require.Nil(t, res.Fault)
			assert.Equal(t, tt.status, res.Outcome.Status)
			assert.Equal(t, tt.state, res.Outcome.State())
			assert.Equal(t, tt.failures, res.Outcome.Failures)

			fetches := f.adapter.CallsTo("ExecuteAndFetch")
			require.Len(t, fetches, 1)
			assert.True(t, fetches[0].AutoBegin)
			assert.Equal(t, "not_null_id", fetches[0].Conn)
			assert.True(t, strings.HasPrefix(fetches[0].SQL, "select count(*) from ("))
		})
	}
}

func TestTestRunner_NonNumeric(t *testing.T) {
	f := newFixture(t)
	f.adapter.FetchHook = scalarTable(core.Row{"many"})

	res := New(f.cfg, KindTest, testNode("t"), 1, 1).SafeRun(context.Background(), f.graph, nil)

	require.NotNil(t, res.Fault)
	assert.Equal(t, FaultNode, res.Fault.Kind)
	assert.Contains(t, res.Outcome.Error, "non-numeric")
}

func TestScalarInt(t *testing.T) {
	tests := []struct {
		in      any
		want    int64
		wantErr bool
	}{
		{int64(5), 5, false},
		{int32(2), 2, false},
		{uint64(9), 9, false},
		{float64(4), 4, false},
		{float64(1.5), 0, true},
		{"12", 12, false},
		{" 3.0 ", 3, false},
		{[]byte("8"), 8, false},
		{"abc", 0, true},
		{nil, 0, true},
		{true, 0, true},
	}
	for _, tt := range tests {
		got, err := scalarInt(tt.in)
		if tt.wantErr {
			assert.Error(t, err, "%v", tt.in)
			continue
		}
		require.NoError(t, err, "%v", tt.in)
		assert.Equal(t, tt.want, got)
	}
}

// --- skip, describe, reporting ---

func TestOnSkip(t *testing.T) {
	f := newFixture(t)
	node := model("a", core.MaterializationTable)

	outcome := New(f.cfg, KindModel, node, 2, 3).OnSkip()

	assert.True(t, outcome.Skip)
	assert.Empty(t, outcome.Error)
	assert.Same(t, node, outcome.Node)
	assert.Equal(t, core.StateSkipped, outcome.State())
	assert.Equal(t, []string{"skip a"}, f.presenter.Lines())
	assert.Zero(t, f.compiler.calls.Load())
}

func TestDescribe(t *testing.T) {
	f := newFixture(t)
	archive := &core.Node{
		Name: "orders_history", ResourceType: core.ResourceArchive,
		Config: core.NodeConfig{
			Materialized: core.MaterializationArchive,
			SourceSchema: "raw", SourceTable: "orders",
			TargetSchema: "archive", TargetTable: "orders_history",
		},
	}

	assert.Equal(t, "table model analytics.a", New(f.cfg, KindModel, model("a", "table"), 1, 1).Describe())
	assert.Equal(t, "test t", New(f.cfg, KindTest, testNode("t"), 1, 1).Describe())
	assert.Equal(t, "archive raw.orders --> archive.orders_history", New(f.cfg, KindArchive, archive, 1, 1).Describe())
}

func TestAfterExecute_TracksExecutedNodes(t *testing.T) {
	f := newFixture(t)
	sink := &recordingSink{}
	f.cfg.Telemetry = sink

	m := New(f.cfg, KindModel, model("a", core.MaterializationTable), 1, 2)
	m.BeforeExecute()
	m.AfterExecute(core.NewOutcome(m.Node(), "CREATE TABLE"))

	tr := New(f.cfg, KindTest, testNode("t"), 2, 2)
	tr.BeforeExecute()
	tr.AfterExecute(core.TestOutcome(tr.Node(), 3))

	c := New(f.cfg, KindCompileOnly, model("b", core.MaterializationTable), 1, 1)
	c.AfterExecute(core.NewOutcome(c.Node(), "compiled"))

	require.Len(t, sink.events, 2, "compile-only runs are not tracked")
	assert.Equal(t, "inv-1", sink.events[0].InvocationID)
	assert.Equal(t, 1, sink.events[0].Index)
	assert.Equal(t, 2, sink.events[0].Total)
	assert.Equal(t, "test.shop.t", sink.events[1].UniqueID)
	assert.Equal(t, int64(3), sink.events[1].Failures)
	assert.Equal(t, []string{
		"start table model analytics.a",
		"model table model analytics.a CREATE TABLE",
		"start test t",
		"test test t 3",
	}, f.presenter.Lines())
}

func TestKindFor(t *testing.T) {
	assert.Equal(t, KindModel, KindFor(model("a", "table"), false))
	assert.Equal(t, KindTest, KindFor(testNode("t"), false))
	assert.Equal(t, KindArchive, KindFor(&core.Node{ResourceType: core.ResourceArchive}, false))
	assert.Equal(t, KindCompileOnly, KindFor(testNode("t"), true))
	assert.False(t, New(newFixture(t).cfg, KindModel, model("a", "table"), 1, 1).RaiseOnFirstError())
}
