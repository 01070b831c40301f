package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"go.starlark.net/starlark"

	"github.com/leapstack-labs/leaprun/internal/dag"
	"github.com/leapstack-labs/leaprun/internal/materialize"
	"github.com/leapstack-labs/leaprun/internal/telemetry"
	"github.com/leapstack-labs/leaprun/pkg/adapter"
	"github.com/leapstack-labs/leaprun/pkg/core"
)

const internalErrorNote = "This is an error in leaprun. Please try again. If the error persists, " +
	"open an issue at https://github.com/leapstack-labs/leaprun/issues"

var bannerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))

// Compiler resolves ref() calls, ephemeral CTEs and test wrapping.
type Compiler interface {
	CompileNode(ctx context.Context, node *core.Node, graph *dag.Graph) (*core.Node, error)
}

// Renderer renders a template with vars bound as globals.
type Renderer interface {
	Render(name, source string, vars starlark.StringDict) (string, error)
}

// Writer persists compiled SQL and returns the written path.
type Writer interface {
	Write(node *core.Node, targetDir, subfolder, content string) (string, error)
}

// Materializations finds the macro implementing a strategy for an adapter type.
type Materializations interface {
	Lookup(graph *dag.Graph, strategy, adapterType string) (materialize.Macro, bool)
}

// Config holds the services shared by every runner of a batch.
// A Config is read-only once the batch starts.
type Config struct {
	Project          *core.ProjectConfig
	Adapter          adapter.Adapter
	Compiler         Compiler
	Renderer         Renderer
	Writer           Writer
	Materializations Materializations
	Presenter        Presenter
	Telemetry        telemetry.Sink
	InvocationID     string
	RunStartedAt     time.Time
	Logger           *slog.Logger
}

func (c *Config) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return c.Logger
}

func (c *Config) presenter() Presenter {
	if c.Presenter == nil {
		return NopPresenter{}
	}
	return c.Presenter
}

func (c *Config) telemetry() telemetry.Sink {
	if c.Telemetry == nil {
		return telemetry.Nop{}
	}
	return c.Telemetry
}

func (c *Config) targetPath() string {
	if c.Project == nil || c.Project.TargetPath == "" {
		return "target"
	}
	return c.Project.TargetPath
}

func (c *Config) strict() bool {
	return c.Project != nil && c.Project.Strict
}

// FaultKind is the tier of a fault raised while running a node.
type FaultKind int

// Fault tiers.
const (
	// FaultNode is bad SQL or configuration in the node; the batch continues.
	FaultNode FaultKind = iota + 1
	// FaultInternal is a defect in leaprun; it is captured like a node fault.
	FaultInternal
	// FaultUnclassified is anything else; it aborts the batch.
	FaultUnclassified
)

func (k FaultKind) String() string {
	switch k {
	case FaultNode:
		return "node"
	case FaultInternal:
		return "internal"
	case FaultUnclassified:
		return "unclassified"
	default:
		return "none"
	}
}

// Fault is a classified error raised by SafeRun.
type Fault struct {
	Kind FaultKind
	Err  error
}

func (f *Fault) Error() string { return f.Err.Error() }

func (f *Fault) Unwrap() error { return f.Err }

// Result is what SafeRun returns: the outcome and, if one was raised, the fault.
type Result struct {
	Outcome core.RunOutcome
	Fault   *Fault
}

// Fatal reports whether the driver must stop the batch.
func (r Result) Fatal() bool {
	return r.Fault != nil && r.Fault.Kind == FaultUnclassified
}

// Err returns the raised fault, or nil.
func (r Result) Err() error {
	if r.Fault == nil {
		return nil
	}
	return r.Fault
}

// Runner runs one node. It holds no state shared with other runners.
type Runner struct {
	cfg      *Config
	kind     Kind
	strategy strategy
	node     *core.Node
	index    int
	total    int
	logger   *slog.Logger
}

// New creates the runner for node, which is number index of total in the batch.
func New(cfg *Config, kind Kind, node *core.Node, index, total int) *Runner {
	return &Runner{
		cfg:      cfg,
		kind:     kind,
		strategy: strategyFor(kind),
		node:     node,
		index:    index,
		total:    total,
		logger:   cfg.logger().With("node", node.UniqueID),
	}
}

// Kind returns the runner's kind.
func (r *Runner) Kind() Kind { return r.kind }

// Node returns the node as given to New.
func (r *Runner) Node() *core.Node { return r.node }

// Describe returns the description used in start lines.
func (r *Runner) Describe() string { return r.strategy.describe(r.node) }

// RaiseOnFirstError reports whether the batch stops after the first errored node.
func (r *Runner) RaiseOnFirstError() bool {
	return r.kind == KindCompileOnly
}

// SafeRun compiles and executes the node. Node and internal faults are
// captured into the outcome; anything else is returned as an unclassified
// fault. The node's connection is released before SafeRun returns.
func (r *Runner) SafeRun(ctx context.Context, graph *dag.Graph, existing core.ExistingRelations) (res Result) {
	started := time.Now()
	// current is replaced by the compiled node once compilation succeeds
	current := r.node

	defer func() {
		if p := recover(); p != nil {
			res = r.capture(current, core.NewInternalError(fmt.Sprintf("panic: %v", p), nil))
		}
		r.release(ctx)
		res.Outcome = res.Outcome.WithExecutionTime(time.Since(started))
	}()

	compiled, err := r.strategy.compile(ctx, r, graph)
	if compiled != nil {
		current = compiled
	}
	if err != nil {
		return r.capture(current, err)
	}

	// ephemeral models are only compiled
	if r.node.IsEphemeralModel() {
		return Result{Outcome: core.NewOutcome(current, "")}
	}

	outcome, err := r.strategy.execute(ctx, r, current, existing, graph)
	if err != nil {
		return r.capture(current, err)
	}
	if outcome.Node == nil {
		outcome.Node = current
	}
	return Result{Outcome: outcome}
}

// capture classifies err raised while running node.
func (r *Runner) capture(node *core.Node, err error) Result {
	var nodeErr core.NodeError
	if errors.As(err, &nodeErr) {
		nodeErr.AttachNode(node)
		r.logger.Debug("node fault", "error", err)
		return Result{
			Outcome: core.ErroredOutcome(node, err),
			Fault:   &Fault{Kind: FaultNode, Err: err},
		}
	}

	var internalErr *core.InternalError
	if errors.As(err, &internalErr) {
		prefix := bannerStyle.Render("Internal error executing " + buildPath(node))
		r.logger.Debug(fmt.Sprintf("%s\n%s\n\n%s", prefix, strings.TrimSpace(err.Error()), internalErrorNote))
		r.logger.Warn("internal error executing node", "error", err)
		return Result{
			Outcome: core.ErroredOutcome(node, err),
			Fault:   &Fault{Kind: FaultInternal, Err: err},
		}
	}

	prefix := bannerStyle.Render("Unhandled error while executing " + buildPath(node))
	r.logger.Debug(fmt.Sprintf("%s\n%s", prefix, strings.TrimSpace(err.Error())))
	return Result{
		Outcome: core.ErroredOutcome(node, err),
		Fault:   &Fault{Kind: FaultUnclassified, Err: err},
	}
}

func (r *Runner) release(ctx context.Context) {
	if err := r.cfg.Adapter.ReleaseConnection(context.WithoutCancel(ctx), r.node.Name); err != nil {
		r.logger.Warn("failed to release connection", "conn", r.node.Name, "error", err)
	}
}

func buildPath(n *core.Node) string {
	if n.BuildPath != "" {
		return n.BuildPath
	}
	return n.OriginalFilePath
}

// OnSkip returns the outcome of a node that is not attempted because an
// upstream node errored. Ephemeral models are skipped silently.
func (r *Runner) OnSkip() core.RunOutcome {
	if !r.node.IsEphemeralModel() {
		r.cfg.presenter().SkipLine(r.node, r.index, r.total)
	}
	return core.SkippedOutcome(r.node)
}

// BeforeExecute prints the start line.
func (r *Runner) BeforeExecute() {
	if r.kind == KindCompileOnly || r.node.IsEphemeralModel() {
		return
	}
	r.cfg.presenter().StartLine(r.Describe(), r.index, r.total)
}

// AfterExecute tracks the outcome of an executed node and prints the
// result line.
func (r *Runner) AfterExecute(outcome core.RunOutcome) {
	if r.node.IsEphemeralModel() {
		return
	}
	if r.kind != KindCompileOnly {
		r.cfg.telemetry().Track(telemetry.NewEvent(r.cfg.InvocationID, r.index, r.total, outcome))
	}
	r.strategy.printResultLine(r, outcome)
}
