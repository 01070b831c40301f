package runner

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/leapstack-labs/leaprun/internal/dag"
	"github.com/leapstack-labs/leaprun/pkg/adapter"
	"github.com/leapstack-labs/leaprun/pkg/core"
)

// BatchHooks run once around a batch of nodes of one kind.
// Any error they return is fatal for the batch.
type BatchHooks interface {
	BeforeBatch(ctx context.Context) error
	AfterBatch(ctx context.Context, results []core.RunOutcome, elapsed time.Duration) error
}

// HooksFor returns the batch hooks of kind.
func HooksFor(kind Kind, cfg *Config, graph *dag.Graph) BatchHooks {
	switch kind {
	case KindModel, KindArchive:
		return &modelHooks{cfg: cfg, graph: graph}
	case KindTest:
		return &summaryHooks{cfg: cfg}
	default:
		return nopHooks{}
	}
}

type nopHooks struct{}

func (nopHooks) BeforeBatch(context.Context) error { return nil }

func (nopHooks) AfterBatch(context.Context, []core.RunOutcome, time.Duration) error { return nil }

// summaryHooks only prints the summary line.
type summaryHooks struct {
	cfg *Config
}

func (h *summaryHooks) BeforeBatch(context.Context) error { return nil }

func (h *summaryHooks) AfterBatch(_ context.Context, results []core.RunOutcome, elapsed time.Duration) error {
	h.cfg.presenter().SummaryLine(Counts(results), elapsed)
	return nil
}

// modelHooks creates missing schemas and runs the on-run-start and
// on-run-end hooks around a batch of models.
type modelHooks struct {
	cfg   *Config
	graph *dag.Graph
}

func (h *modelHooks) BeforeBatch(ctx context.Context) error {
	if err := h.createSchemas(ctx); err != nil {
		return err
	}
	return h.runHooks(ctx, core.HookRunStart)
}

func (h *modelHooks) AfterBatch(ctx context.Context, results []core.RunOutcome, elapsed time.Duration) error {
	if err := h.runHooks(ctx, core.HookRunEnd); err != nil {
		return err
	}
	h.cfg.presenter().SummaryLine(Counts(results), elapsed)
	return nil
}

// createSchemas creates the schemas of non-ephemeral models that do not exist yet.
func (h *modelHooks) createSchemas(ctx context.Context) error {
	adp := h.cfg.Adapter
	existing, err := adp.GetExistingSchemas(ctx, adapter.MasterConnection)
	if err != nil {
		return fmt.Errorf("failed to list schemas: %w", err)
	}
	for _, schema := range MissingSchemas(h.graph.ModelSchemas(), existing) {
		h.cfg.logger().Debug("creating schema", "schema", schema)
		if err := adp.CreateSchema(ctx, adapter.MasterConnection, schema); err != nil {
			return fmt.Errorf("failed to create schema %s: %w", schema, err)
		}
	}
	return nil
}

// MissingSchemas returns required minus existing, sorted.
func MissingSchemas(required, existing []string) []string {
	var missing []string
	for _, s := range required {
		if !slices.Contains(existing, s) && !slices.Contains(missing, s) {
			missing = append(missing, s)
		}
	}
	slices.Sort(missing)
	return missing
}

// runHooks compiles and executes every hook of hookType outside of any
// transaction on the master connection.
func (h *modelHooks) runHooks(ctx context.Context, hookType string) error {
	if err := h.execHooks(ctx, hookType); err != nil {
		var dbErr *core.DatabaseError
		if errors.As(err, &dbErr) {
			h.cfg.logger().Info("database error while running hooks", "hook", hookType)
		}
		return fmt.Errorf("failed to run %s hooks: %w", hookType, err)
	}
	return nil
}

func (h *modelHooks) execHooks(ctx context.Context, hookType string) error {
	adp := h.cfg.Adapter
	hooks := h.graph.NodesByTag(hookType, core.ResourceOperation)

	defer func() {
		if err := adp.ReleaseConnection(context.WithoutCancel(ctx), adapter.MasterConnection); err != nil {
			h.cfg.logger().Warn("failed to release connection", "conn", adapter.MasterConnection, "error", err)
		}
	}()

	statements := make([]string, 0, len(hooks))
	for i, hook := range hooks {
		r := New(h.cfg, KindCompileOnly, hook, i+1, len(hooks))
		compiled, err := r.compileNode(ctx, hook, h.graph)
		r.release(ctx)
		if err != nil {
			return err
		}
		if h.cfg.strict() {
			if err := validateHook(compiled); err != nil {
				return err
			}
		}
		statements = append(statements, compiled.WrappedSQL)
	}

	for _, sql := range statements {
		if strings.TrimSpace(sql) == "" {
			continue
		}
		if err := adp.ClearTransaction(ctx, adapter.MasterConnection); err != nil {
			return err
		}
		if _, err := adp.ExecuteOne(ctx, adapter.MasterConnection, sql, false); err != nil {
			return err
		}
	}
	return nil
}

// HookError reports a malformed hook in strict mode.
type HookError struct {
	Hook    string
	Message string
}

func (e *HookError) Error() string {
	return fmt.Sprintf("invalid hook %s: %s", e.Hook, e.Message)
}

func validateHook(n *core.Node) error {
	if n.Name == "" {
		return &HookError{Hook: n.UniqueID, Message: "hook has no name"}
	}
	if strings.TrimSpace(n.WrappedSQL) == "" {
		return &HookError{Hook: n.Name, Message: "hook SQL is empty"}
	}
	return nil
}

var countOrder = []core.ResourceType{
	core.ResourceModel,
	core.ResourceTest,
	core.ResourceArchive,
	core.ResourceOperation,
}

// Counts summarises results by resource type, e.g. "2 models, 1 test".
func Counts(results []core.RunOutcome) string {
	counts := make(map[core.ResourceType]int)
	for _, res := range results {
		counts[res.Node.ResourceType]++
	}

	var parts []string
	for _, rt := range countOrder {
		n := counts[rt]
		if n == 0 {
			continue
		}
		label := string(rt)
		if rt == core.ResourceOperation {
			label = "hook"
		}
		if n != 1 {
			label += "s"
		}
		parts = append(parts, fmt.Sprintf("%d %s", n, label))
	}
	if len(parts) == 0 {
		return "0 nodes"
	}
	return strings.Join(parts, ", ")
}
