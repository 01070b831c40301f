package dag

import (
	"reflect"
	"testing"

	"github.com/leapstack-labs/leaprun/pkg/core"
)

func model(name, schema string, deps ...string) *core.Node {
	return &core.Node{
		UniqueID:     "model.p." + name,
		Name:         name,
		ResourceType: core.ResourceModel,
		Schema:       schema,
		DependsOn:    deps,
		Config:       core.NodeConfig{Materialized: core.MaterializationTable, Enabled: true},
	}
}

func ids(nodes []*core.Node) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.UniqueID
	}
	return out
}

func chain(t *testing.T) *Graph {
	t.Helper()
	g := NewGraph()
	g.AddNode(model("a", "raw"))
	g.AddNode(model("b", "staging", "model.p.a"))
	g.AddNode(model("c", "marts", "model.p.b"))
	if err := g.LinkDependencies(); err != nil {
		t.Fatalf("link: %v", err)
	}
	return g
}

func TestGraph_AddNodeAndEdge(t *testing.T) {
	g := chain(t)

	if g.NodeCount() != 3 {
		t.Errorf("expected 3 nodes, got %d", g.NodeCount())
	}
	if g.EdgeCount() != 2 {
		t.Errorf("expected 2 edges, got %d", g.EdgeCount())
	}
	if got := g.Parents("model.p.b"); !reflect.DeepEqual(got, []string{"model.p.a"}) {
		t.Errorf("unexpected parents of b: %v", got)
	}
	if got := g.Children("model.p.b"); !reflect.DeepEqual(got, []string{"model.p.c"}) {
		t.Errorf("unexpected children of b: %v", got)
	}
}

func TestGraph_AddEdge_Invalid(t *testing.T) {
	g := NewGraph()
	g.AddNode(model("a", "s"))

	if err := g.AddEdge("model.p.a", "nonexistent"); err == nil {
		t.Error("expected error for nonexistent child node")
	}
	if err := g.AddEdge("nonexistent", "model.p.a"); err == nil {
		t.Error("expected error for nonexistent parent node")
	}
	if err := g.AddEdge("model.p.a", "model.p.a"); err == nil {
		t.Error("expected error for self-loop")
	}
}

func TestGraph_LinkDependencies_Missing(t *testing.T) {
	g := NewGraph()
	g.AddNode(model("a", "s", "model.p.ghost"))
	if err := g.LinkDependencies(); err == nil {
		t.Error("expected error for dependency on unknown node")
	}
}

func TestGraph_HasCycle(t *testing.T) {
	g := chain(t)
	if has, _ := g.HasCycle(); has {
		t.Error("chain must not have a cycle")
	}

	_ = g.AddEdge("model.p.c", "model.p.a")
	has, path := g.HasCycle()
	if !has {
		t.Fatal("expected a cycle")
	}
	if len(path) < 3 {
		t.Errorf("cycle path too short: %v", path)
	}
	if _, err := g.TopologicalSort(); err == nil {
		t.Error("topological sort must fail on a cycle")
	}
	if _, err := g.ExecutionLevels(); err == nil {
		t.Error("execution levels must fail on a cycle")
	}
}

func TestGraph_TopologicalSort(t *testing.T) {
	order, err := chain(t).TopologicalSort()
	if err != nil {
		t.Fatalf("sort: %v", err)
	}
	want := []string{"model.p.a", "model.p.b", "model.p.c"}
	if got := ids(order); !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestGraph_ExecutionLevels(t *testing.T) {
	g := NewGraph()
	g.AddNode(model("a", "s"))
	g.AddNode(model("b", "s"))
	g.AddNode(model("c", "s", "model.p.a", "model.p.b"))
	g.AddNode(model("d", "s", "model.p.c"))
	if err := g.LinkDependencies(); err != nil {
		t.Fatal(err)
	}

	levels, err := g.ExecutionLevels()
	if err != nil {
		t.Fatal(err)
	}
	if len(levels) != 3 {
		t.Fatalf("expected 3 levels, got %d", len(levels))
	}
	if got := ids(levels[0]); !reflect.DeepEqual(got, []string{"model.p.a", "model.p.b"}) {
		t.Errorf("unexpected level 0: %v", got)
	}
	if got := ids(levels[2]); !reflect.DeepEqual(got, []string{"model.p.d"}) {
		t.Errorf("unexpected level 2: %v", got)
	}

	empty, err := NewGraph().ExecutionLevels()
	if err != nil || len(empty) != 0 {
		t.Errorf("empty graph should have no levels, got %v (%v)", empty, err)
	}
}

func TestGraph_Descendants(t *testing.T) {
	got := chain(t).Descendants("model.p.a")
	if !reflect.DeepEqual(got, []string{"model.p.b", "model.p.c"}) {
		t.Errorf("unexpected descendants: %v", got)
	}
}

func TestGraph_ModelSchemas(t *testing.T) {
	g := chain(t)
	eph := model("e", "hidden")
	eph.Config.Materialized = core.MaterializationEphemeral
	g.AddNode(eph)
	g.AddNode(&core.Node{UniqueID: "test.p.t", Name: "t", ResourceType: core.ResourceTest, Schema: "tests"})
	g.AddNode(&core.Node{UniqueID: "archive.p.h", Name: "h", ResourceType: core.ResourceArchive, Schema: "history"})

	want := []string{"marts", "raw", "staging"}
	if got := g.ModelSchemas(); !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestGraph_NodesByTag_KeepsInsertionOrder(t *testing.T) {
	g := NewGraph()
	for _, name := range []string{"z_hook", "a_hook"} {
		g.AddNode(&core.Node{
			UniqueID:     "operation.p." + name,
			Name:         name,
			ResourceType: core.ResourceOperation,
			Tags:         []string{core.HookRunStart},
		})
	}
	g.AddNode(&core.Node{UniqueID: "operation.p.end", ResourceType: core.ResourceOperation, Tags: []string{core.HookRunEnd}})

	got := ids(g.NodesByTag(core.HookRunStart, core.ResourceOperation))
	if !reflect.DeepEqual(got, []string{"operation.p.z_hook", "operation.p.a_hook"}) {
		t.Errorf("unexpected hooks: %v", got)
	}
}

func TestGraph_ResolveRef(t *testing.T) {
	g := chain(t)
	g.AddNode(&core.Node{UniqueID: "archive.p.b", Name: "b", ResourceType: core.ResourceArchive})
	g.AddNode(&core.Node{UniqueID: "archive.p.hist", Name: "hist", ResourceType: core.ResourceArchive})

	if n, ok := g.ResolveRef("b"); !ok || n.UniqueID != "model.p.b" {
		t.Errorf("expected model b, got %v", n)
	}
	if n, ok := g.ResolveRef("hist"); !ok || n.UniqueID != "archive.p.hist" {
		t.Errorf("expected archive hist, got %v", n)
	}
	if _, ok := g.ResolveRef("nope"); ok {
		t.Error("unknown ref must not resolve")
	}
}

func TestGraph_Subgraph_BridgesExcludedNodes(t *testing.T) {
	g := chain(t)
	g.AddMacro(core.Macro{Name: "m"})

	sub := g.Subgraph([]string{"model.p.a", "model.p.c"})
	if sub.NodeCount() != 2 {
		t.Fatalf("expected 2 nodes, got %d", sub.NodeCount())
	}
	if got := sub.Parents("model.p.c"); !reflect.DeepEqual(got, []string{"model.p.a"}) {
		t.Errorf("expected bridged edge a -> c, got %v", got)
	}
	if _, ok := sub.Macro("m"); !ok {
		t.Error("macros must carry over to the subgraph")
	}
}
