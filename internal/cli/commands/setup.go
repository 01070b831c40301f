package commands

import (
	"context"
	"errors"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leaprun/internal/cli/output"
	"github.com/leapstack-labs/leaprun/internal/config"
	"github.com/leapstack-labs/leaprun/internal/engine"
)

// configKey is used to store the loaded config in a context.
type configKey struct{}

// WithConfig returns a copy of ctx carrying cfg.
func WithConfig(ctx context.Context, cfg *config.Config) context.Context {
	return context.WithValue(ctx, configKey{}, cfg)
}

// ConfigFrom returns the config stored by WithConfig, or nil.
func ConfigFrom(ctx context.Context) *config.Config {
	cfg, _ := ctx.Value(configKey{}).(*config.Config)
	return cfg
}

// CommandContext holds common dependencies for CLI commands.
type CommandContext struct {
	Cfg       *config.Config
	Logger    *slog.Logger
	Engine    *engine.Engine
	Renderer  *output.Renderer
	Presenter *output.Presenter
}

// NewCommandContext creates a CommandContext with engine and renderer.
// Returns the context and a cleanup function that must be called (typically via defer).
func NewCommandContext(cmd *cobra.Command) (*CommandContext, func(), error) {
	cfg := ConfigFrom(cmd.Context())
	if cfg == nil {
		return nil, nil, errors.New("configuration not loaded")
	}
	logger := config.GetLogger(cmd.Context())

	r := output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), output.Mode(cfg.Output))
	presenter := output.NewPresenter(r)

	eng, err := engine.New(engine.Config{
		Project:   &cfg.Project,
		Root:      cfg.ProjectRoot,
		Presenter: presenter,
		Logger:    logger,
	})
	if err != nil {
		return nil, nil, err
	}

	cleanup := func() {
		if err := eng.Close(); err != nil {
			logger.Warn("failed to close engine", "error", err)
		}
	}

	return &CommandContext{
		Cfg:       cfg,
		Logger:    logger,
		Engine:    eng,
		Renderer:  r,
		Presenter: presenter,
	}, cleanup, nil
}
