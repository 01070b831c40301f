package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leaprun/internal/cli/output"
	"github.com/leapstack-labs/leaprun/internal/engine"
	"github.com/leapstack-labs/leaprun/pkg/core"
)

// NewRunCommand creates the run command.
func NewRunCommand() *cobra.Command {
	return newBatchCommand(engine.CommandRun, &cobra.Command{
		Use:   "run",
		Short: "Build all models",
		Long: `Build every enabled model in dependency order.

Ephemeral models are inlined into their dependents and never built on
their own. When a model errors, everything downstream of it is skipped.`,
		Example: `  # Build all models
  leaprun run

  # Build with four worker threads
  leaprun run --threads 4`,
		Aliases: []string{"build"},
	})
}

// NewTestCommand creates the test command.
func NewTestCommand() *cobra.Command {
	return newBatchCommand(engine.CommandTest, &cobra.Command{
		Use:   "test",
		Short: "Run data tests",
		Long: `Run schema tests and singular tests against built models.

A test passes when its query returns no rows.`,
		Example: `  # Run all tests
  leaprun test

  # Emit JSON lines for CI
  leaprun test -o json`,
	})
}

// NewCompileCommand creates the compile command.
func NewCompileCommand() *cobra.Command {
	return newBatchCommand(engine.CommandCompile, &cobra.Command{
		Use:   "compile",
		Short: "Compile models, tests and archives without running them",
		Long: `Render every model, test and archive to SQL and write it under
the target directory. Nothing is executed; the first error stops compilation.`,
		Example: `  leaprun compile`,
	})
}

// NewArchiveCommand creates the archive command.
func NewArchiveCommand() *cobra.Command {
	return newBatchCommand(engine.CommandArchive, &cobra.Command{
		Use:   "archive",
		Short: "Capture changes of source tables into history tables",
		Long: `Run every archive declared in the project file. Each archive records
changed rows of a source table in a history table with validity columns.`,
		Example: `  leaprun archive`,
	})
}

func newBatchCommand(command engine.Command, cmd *cobra.Command) *cobra.Command {
	cmd.Args = cobra.NoArgs
	cmd.RunE = func(cmd *cobra.Command, _ []string) error {
		cc, cleanup, err := NewCommandContext(cmd)
		if err != nil {
			return err
		}
		defer cleanup()
		return executeBatch(cmd.Context(), cc, command)
	}
	return cmd
}

// BatchFailedError is returned when a batch completed but some nodes
// errored or some tests failed.
type BatchFailedError struct {
	Command  engine.Command
	Errored  int
	Failures int
}

func (e *BatchFailedError) Error() string {
	return fmt.Sprintf("%s completed with %d errored and %d failed", e.Command, e.Errored, e.Failures)
}

func executeBatch(ctx context.Context, cc *CommandContext, command engine.Command) error {
	res, err := cc.Engine.Execute(ctx, command)
	if res != nil {
		cc.Renderer.RenderProblems(cc.Presenter.Problems())
	}
	if err != nil {
		return err
	}

	if command == engine.CommandCompile && cc.Renderer.EffectiveMode() == output.ModeText {
		cc.Renderer.Printf("Compiled %d nodes into %s\n", len(res.Outcomes), cc.Cfg.Path(cc.Cfg.Project.TargetPath))
	}

	if res.Failed() {
		return &BatchFailedError{
			Command:  command,
			Errored:  res.Count(core.StateErrored),
			Failures: res.Count(core.StateFailed),
		}
	}
	return nil
}
