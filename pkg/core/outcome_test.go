package core

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunOutcome_State(t *testing.T) {
	node := &Node{Name: "a"}

	tests := []struct {
		name    string
		outcome RunOutcome
		want    OutcomeState
	}{
		{"success", NewOutcome(node, "CREATE TABLE"), StateSuccess},
		{"skipped", SkippedOutcome(node), StateSkipped},
		{"errored", ErroredOutcome(node, errors.New("boom")), StateErrored},
		{"failed test", TestOutcome(node, 3), StateFailed},
		{"passing test", TestOutcome(node, 0), StateSuccess},
		{"skip wins over error", RunOutcome{Node: node, Skip: true, Error: "x"}, StateSkipped},
		{"error wins over fail", RunOutcome{Node: node, Error: "x", Fail: true}, StateErrored},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.outcome.State())
		})
	}
}

func TestErroredOutcome(t *testing.T) {
	node := &Node{Name: "a"}
	o := ErroredOutcome(node, errors.New("boom"))

	assert.Same(t, node, o.Node)
	assert.Equal(t, "boom", o.Error)
	assert.Equal(t, StatusError, o.Status)
	assert.False(t, o.Skip)
}

func TestTestOutcome(t *testing.T) {
	o := TestOutcome(&Node{Name: "t"}, 7)
	assert.Equal(t, "7", o.Status)
	assert.Equal(t, int64(7), o.Failures)
	assert.True(t, o.Failed())
}

func TestWithExecutionTime(t *testing.T) {
	o := NewOutcome(&Node{}, "OK")

	timed := o.WithExecutionTime(250 * time.Millisecond)
	assert.Equal(t, 250*time.Millisecond, timed.ExecutionTime)
	assert.Zero(t, o.ExecutionTime, "original must not change")

	assert.Zero(t, o.WithExecutionTime(-time.Second).ExecutionTime)
}

func TestNode_Clone(t *testing.T) {
	orig := &Node{
		Name:      "a",
		DependsOn: []string{"model.p.b"},
		Tags:      []string{"daily"},
		Config: NodeConfig{
			Materialized: MaterializationTable,
			Tags:         []string{"x"},
			Extra:        map[string]any{"k": "v"},
		},
	}

	c := orig.Clone()
	require.NotSame(t, orig, c)

	c.DependsOn[0] = "changed"
	c.Tags = append(c.Tags, "more")
	c.Config.Extra["k"] = "changed"
	c.CompiledSQL = "select 1"

	assert.Equal(t, "model.p.b", orig.DependsOn[0])
	assert.Equal(t, []string{"daily"}, orig.Tags)
	assert.Equal(t, "v", orig.Config.Extra["k"])
	assert.Empty(t, orig.CompiledSQL)

	var nilNode *Node
	assert.Nil(t, nilNode.Clone())
}

func TestNode_IsEphemeralModel(t *testing.T) {
	model := &Node{ResourceType: ResourceModel, Config: NodeConfig{Materialized: MaterializationEphemeral}}
	test := &Node{ResourceType: ResourceTest, Config: NodeConfig{Materialized: MaterializationEphemeral}}
	table := &Node{ResourceType: ResourceModel, Config: NodeConfig{Materialized: MaterializationTable}}

	assert.True(t, model.IsEphemeralModel())
	assert.False(t, test.IsEphemeralModel())
	assert.False(t, table.IsEphemeralModel())
}

func TestNodeErrors_AttachNode(t *testing.T) {
	node := &Node{Name: "orders", ResourceType: ResourceModel, OriginalFilePath: "models/orders.sql"}
	other := &Node{Name: "other"}

	err := NewDatabaseError("select 1", errors.New("relation missing"))
	var nodeErr NodeError = err
	nodeErr.AttachNode(node)
	nodeErr.AttachNode(other)

	assert.Same(t, node, err.FaultNode())
	assert.Contains(t, err.Error(), "Database Error in model orders (models/orders.sql)")
	assert.Contains(t, err.Error(), "relation missing")
}

func TestTestShapeError(t *testing.T) {
	err := &TestShapeError{Test: "not_null_orders_id", Rows: 2, Columns: 1}
	assert.Equal(t, "Bad test not_null_orders_id: Returned 2 rows and 1 cols", err.Error())
}

func TestMissingMaterializationError(t *testing.T) {
	node := &Node{Name: "a", ResourceType: ResourceModel, Config: NodeConfig{Materialized: "snapshot"}}
	err := NewMissingMaterializationError(node, "duckdb")

	assert.Contains(t, err.Error(), `No materialization "snapshot" was found for adapter duckdb!`)
	assert.Contains(t, err.Error(), "model a")
}
