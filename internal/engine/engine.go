// Package engine drives leaprun commands.
// It loads the project graph, selects the nodes a command works on and runs
// them wave by wave through the runner package.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/leapstack-labs/leaprun/internal/runner"
	"github.com/leapstack-labs/leaprun/internal/state"
	"github.com/leapstack-labs/leaprun/pkg/adapter"
	"github.com/leapstack-labs/leaprun/pkg/core"
)

// DefaultEnv is the environment exposed to templates when none is set.
const DefaultEnv = "dev"

// Engine executes commands against one project.
type Engine struct {
	project *core.ProjectConfig
	root    string
	env     string

	// Database adapter (lazy initialized)
	db          adapter.Adapter
	dbConnected bool
	dbMu        sync.Mutex
	ownsDB      bool

	store     core.Store
	presenter runner.Presenter
	logger    *slog.Logger
}

// Config holds engine configuration.
type Config struct {
	// Project is the resolved project configuration
	Project *core.ProjectConfig
	// Root is the project directory; relative project paths resolve against it
	Root string
	// Env is the environment templates see as env, "dev" when empty
	Env string
	// Presenter receives progress lines (optional)
	Presenter runner.Presenter
	// Adapter is used instead of connecting through the registry (optional)
	Adapter adapter.Adapter
	// Store is used instead of the SQLite store at Project.StatePath (optional)
	Store core.Store
	// Logger is the structured logger (optional, uses discard if nil)
	Logger *slog.Logger
}

// New creates an engine. The state store is opened right away; the data
// store is only connected when a command executes.
func New(cfg Config) (*Engine, error) {
	if cfg.Project == nil {
		return nil, errors.New("engine: project config is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	env := cfg.Env
	if env == "" {
		env = DefaultEnv
	}
	presenter := cfg.Presenter
	if presenter == nil {
		presenter = runner.NopPresenter{}
	}

	e := &Engine{
		project:   cfg.Project,
		root:      cfg.Root,
		env:       env,
		db:        cfg.Adapter,
		store:     cfg.Store,
		presenter: presenter,
		logger:    logger,
	}
	e.dbConnected = e.db != nil

	if e.store == nil {
		store, err := e.openStore()
		if err != nil {
			return nil, err
		}
		e.store = store
	}

	logger.Debug("engine initialized", "project", cfg.Project.Name, "root", cfg.Root, "env", env)
	return e, nil
}

func (e *Engine) openStore() (core.Store, error) {
	path := e.path(e.project.StatePath)
	if path == "" {
		path = ":memory:"
	}
	store := state.NewSQLiteStore(e.logger)
	if err := store.Open(path); err != nil {
		return nil, fmt.Errorf("failed to open state store: %w", err)
	}
	if err := store.InitSchema(); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize state schema: %w", err)
	}
	return store, nil
}

// path resolves p against the project root.
func (e *Engine) path(p string) string {
	if p == "" || p == ":memory:" || filepath.IsAbs(p) || e.root == "" {
		return p
	}
	return filepath.Join(e.root, p)
}

// ensureDBConnected lazily connects to the data store.
func (e *Engine) ensureDBConnected(ctx context.Context) (adapter.Adapter, error) {
	e.dbMu.Lock()
	defer e.dbMu.Unlock()

	if e.dbConnected {
		return e.db, nil
	}

	cfg := e.project.Target.AdapterConfig()
	if cfg.Type == "" {
		cfg.Type = "duckdb"
	}
	e.logger.Debug("connecting to database", "adapter_type", cfg.Type)

	db, err := adapter.Open(ctx, cfg, e.logger)
	if err != nil {
		return nil, err
	}
	e.db = db
	e.dbConnected = true
	e.ownsDB = true
	return db, nil
}

// Store returns the run history store.
func (e *Engine) Store() core.Store {
	return e.store
}

// Close releases all resources the engine opened.
func (e *Engine) Close() error {
	e.logger.Debug("closing engine")

	var errs []error
	if e.db != nil && e.ownsDB {
		if err := e.db.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if e.store != nil {
		if err := e.store.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("errors closing engine: %w", errors.Join(errs...))
	}
	return nil
}
