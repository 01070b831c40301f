package runner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leaprun/internal/testutil"
	"github.com/leapstack-labs/leaprun/pkg/adapter"
	"github.com/leapstack-labs/leaprun/pkg/core"
)

func inSchema(n *core.Node, schema string) *core.Node {
	n.Schema = schema
	return n
}

func createdSchemas(f *fixture) []string {
	var out []string
	for _, c := range f.adapter.CallsTo("CreateSchema") {
		out = append(out, c.SQL)
	}
	return out
}

func TestBeforeBatch_CreatesMissingSchemas(t *testing.T) {
	tests := []struct {
		name     string
		schemas  []string
		existing []string
		want     []string
	}{
		{name: "one missing", schemas: []string{"a", "b"}, existing: []string{"a"}, want: []string{"b"}},
		{name: "x and y", schemas: []string{"x", "y"}, existing: []string{"x"}, want: []string{"y"}},
		{name: "all present", schemas: []string{"a"}, existing: []string{"a", "main"}, want: nil},
		{name: "sorted", schemas: []string{"zeta", "alpha", "mid"}, existing: nil, want: []string{"alpha", "mid", "zeta"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			logger, logs := testutil.NewCapturingLogger(t)
			f.cfg.Logger = logger
			f.adapter.Schemas = tt.existing
			for i, s := range tt.schemas {
				f.graph.AddNode(inSchema(model(string(rune('a'+i))+"_model", core.MaterializationTable), s))
			}
			// ephemeral models never need a schema
			f.graph.AddNode(inSchema(model("eph", core.MaterializationEphemeral), "ephemeral_only"))

			require.NoError(t, HooksFor(KindModel, f.cfg, f.graph).BeforeBatch(context.Background()))

			assert.Equal(t, tt.want, createdSchemas(f))
			for _, s := range tt.want {
				assert.True(t, logs.Contains(`msg="creating schema" schema=`+s), s)
			}
			for _, c := range f.adapter.CallsTo("CreateSchema") {
				assert.Equal(t, adapter.MasterConnection, c.Conn)
			}
		})
	}
}

func TestBeforeBatch_LeavesArchiveSchemasToTheArchive(t *testing.T) {
	f := newFixture(t)
	f.adapter.Schemas = []string{"a"}
	f.graph.AddNode(inSchema(model("m", core.MaterializationTable), "a"))
	f.graph.AddNode(&core.Node{
		UniqueID:     "archive.shop.arc",
		Name:         "arc",
		Package:      "shop",
		ResourceType: core.ResourceArchive,
		Schema:       "snapshots",
		Config:       core.NodeConfig{Materialized: core.MaterializationArchive, Enabled: true},
	})

	require.NoError(t, HooksFor(KindModel, f.cfg, f.graph).BeforeBatch(context.Background()))
	assert.Empty(t, f.adapter.CallsTo("CreateSchema"))
}

func TestMissingSchemas(t *testing.T) {
	assert.Equal(t, []string{"b"}, MissingSchemas([]string{"b", "a", "b"}, []string{"a"}))
	assert.Nil(t, MissingSchemas([]string{"a"}, []string{"a"}))
}

func TestBeforeBatch_RunsStartHooksOutsideTransaction(t *testing.T) {
	f := newFixture(t)
	f.graph.AddNode(model("orders", core.MaterializationTable))
	f.graph.AddNode(hook("grant_usage", core.HookRunStart, "grant usage on schema analytics to reporter"))
	f.graph.AddNode(hook("audit", core.HookRunStart, "insert into audit values ('{{ invocation_id }}')"))
	f.graph.AddNode(hook("vacuum", core.HookRunEnd, "vacuum"))

	require.NoError(t, HooksFor(KindModel, f.cfg, f.graph).BeforeBatch(context.Background()))

	calls := f.adapter.Calls()
	clearAt, firstExec, releaseAt := -1, -1, -1
	for i, c := range calls {
		switch {
		case c.Method == "ClearTransaction" && c.Conn == adapter.MasterConnection && clearAt < 0:
			clearAt = i
		case c.Method == "ExecuteOne" && firstExec < 0:
			firstExec = i
		case c.Method == "ReleaseConnection" && c.Conn == adapter.MasterConnection:
			releaseAt = i
		}
	}
	require.GreaterOrEqual(t, clearAt, 0, "transaction cleared")
	require.GreaterOrEqual(t, firstExec, 0)
	assert.Less(t, clearAt, firstExec, "transaction cleared before the first hook statement")
	assert.Greater(t, releaseAt, firstExec, "hook connection released after the hooks")

	execs := f.adapter.CallsTo("ExecuteOne")
	require.Len(t, execs, 2, "only on-run-start hooks run")
	for _, c := range execs {
		assert.False(t, c.AutoBegin, "hooks never auto-begin")
		assert.Equal(t, adapter.MasterConnection, c.Conn)
	}
	assert.Equal(t, "grant usage on schema analytics to reporter", execs[0].SQL)
	assert.Equal(t, "insert into audit values ('inv-1')", execs[1].SQL)
	assert.False(t, f.adapter.InTransaction(adapter.MasterConnection))

	// every hook statement follows its own clear
	for i, c := range calls {
		if c.Method != "ExecuteOne" {
			continue
		}
		require.Positive(t, i)
		prev := calls[i-1]
		assert.Equal(t, "ClearTransaction", prev.Method, c.SQL)
		assert.Equal(t, adapter.MasterConnection, prev.Conn)
	}
}

func TestBeforeBatch_HookFaultIsFatal(t *testing.T) {
	f := newFixture(t)
	f.graph.AddNode(hook("bad", core.HookRunStart, "grant nonsense"))
	f.adapter.ExecHook = func(_, _ string) (string, error) {
		return "", core.NewDatabaseError("grant nonsense", errors.New("syntax error"))
	}

	err := HooksFor(KindModel, f.cfg, f.graph).BeforeBatch(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to run on-run-start hooks")
	var dbErr *core.DatabaseError
	assert.ErrorAs(t, err, &dbErr)
	assert.NotEmpty(t, f.adapter.CallsTo("ReleaseConnection"), "hook connection released on failure")
}

func TestBeforeBatch_StrictHookValidation(t *testing.T) {
	f := newFixture(t)
	f.cfg.Project.Strict = true
	f.graph.AddNode(hook("empty", core.HookRunStart, "   "))

	err := HooksFor(KindModel, f.cfg, f.graph).BeforeBatch(context.Background())

	var hookErr *HookError
	require.ErrorAs(t, err, &hookErr)
	assert.Equal(t, "empty", hookErr.Hook)
	assert.Empty(t, f.adapter.CallsTo("ExecuteOne"))

	// without strict mode the empty statement is skipped
	f.cfg.Project.Strict = false
	require.NoError(t, HooksFor(KindModel, f.cfg, f.graph).BeforeBatch(context.Background()))
	assert.Empty(t, f.adapter.CallsTo("ExecuteOne"))
}

func TestAfterBatch_RunsEndHooksThenSummary(t *testing.T) {
	f := newFixture(t)
	a := model("a", core.MaterializationTable)
	b := model("b", core.MaterializationView)
	tn := testNode("t")
	f.graph.AddNode(a)
	f.graph.AddNode(hook("vacuum", core.HookRunEnd, "vacuum"))

	results := []core.RunOutcome{core.NewOutcome(a, "CREATE TABLE"), core.NewOutcome(b, "CREATE VIEW"), core.TestOutcome(tn, 0)}
	require.NoError(t, HooksFor(KindModel, f.cfg, f.graph).AfterBatch(context.Background(), results, 420*time.Millisecond))

	execs := f.adapter.CallsTo("ExecuteOne")
	require.Len(t, execs, 1)
	assert.Equal(t, "vacuum", execs[0].SQL)
	assert.False(t, execs[0].AutoBegin)
	assert.Equal(t, []string{"summary 2 models, 1 test timed"}, f.presenter.Lines())
}

func TestAfterBatch_Unmeasured(t *testing.T) {
	f := newFixture(t)
	results := []core.RunOutcome{core.TestOutcome(testNode("t"), 0)}

	require.NoError(t, HooksFor(KindTest, f.cfg, f.graph).BeforeBatch(context.Background()))
	require.NoError(t, HooksFor(KindTest, f.cfg, f.graph).AfterBatch(context.Background(), results, Unmeasured))

	assert.Equal(t, []string{"summary 1 test"}, f.presenter.Lines())
	assert.Empty(t, f.adapter.Calls(), "test batches do not touch the adapter")
}

func TestCompileOnlyHooksAreNoops(t *testing.T) {
	f := newFixture(t)
	f.graph.AddNode(hook("grant", core.HookRunStart, "grant all"))
	hooks := HooksFor(KindCompileOnly, f.cfg, f.graph)

	require.NoError(t, hooks.BeforeBatch(context.Background()))
	require.NoError(t, hooks.AfterBatch(context.Background(), nil, Unmeasured))
	assert.Empty(t, f.adapter.Calls())
	assert.Empty(t, f.presenter.Lines())
}

func TestCounts(t *testing.T) {
	tests := []struct {
		name    string
		results []core.RunOutcome
		want    string
	}{
		{"empty", nil, "0 nodes"},
		{"one model", []core.RunOutcome{core.NewOutcome(model("a", "table"), "")}, "1 model"},
		{"mixed", []core.RunOutcome{
			core.TestOutcome(testNode("t1"), 0),
			core.NewOutcome(model("a", "table"), ""),
			core.TestOutcome(testNode("t2"), 0),
			core.NewOutcome(hook("h", core.HookRunStart, ""), ""),
		}, "1 model, 2 tests, 1 hook"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Counts(tt.results))
		})
	}
}
