package runner

import (
	"context"

	"github.com/leapstack-labs/leaprun/internal/dag"
	"github.com/leapstack-labs/leaprun/pkg/core"
)

// Kind selects how a node is compiled, executed and reported.
type Kind int

// Runner kinds.
const (
	KindModel Kind = iota
	KindTest
	KindArchive
	KindCompileOnly
)

func (k Kind) String() string {
	switch k {
	case KindModel:
		return "model"
	case KindTest:
		return "test"
	case KindArchive:
		return "archive"
	case KindCompileOnly:
		return "compile"
	default:
		return "unknown"
	}
}

// KindFor returns the kind that runs node. With compileOnly every node is
// compiled and written but never executed.
func KindFor(node *core.Node, compileOnly bool) Kind {
	if compileOnly {
		return KindCompileOnly
	}
	switch node.ResourceType {
	case core.ResourceTest:
		return KindTest
	case core.ResourceArchive:
		return KindArchive
	default:
		return KindModel
	}
}

// strategy is the kind-specific part of a runner.
type strategy interface {
	compile(ctx context.Context, r *Runner, graph *dag.Graph) (*core.Node, error)
	execute(ctx context.Context, r *Runner, node *core.Node, existing core.ExistingRelations, graph *dag.Graph) (core.RunOutcome, error)
	describe(node *core.Node) string
	printResultLine(r *Runner, outcome core.RunOutcome)
}

func strategyFor(k Kind) strategy {
	switch k {
	case KindTest:
		return testStrategy{}
	case KindArchive:
		return archiveStrategy{}
	case KindCompileOnly:
		return compileStrategy{}
	default:
		return modelStrategy{}
	}
}
