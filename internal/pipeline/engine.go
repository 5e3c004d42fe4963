package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/cytops/cytops/internal/config"
	"github.com/cytops/cytops/internal/dag"
	"github.com/cytops/cytops/internal/state"
	"github.com/cytops/cytops/internal/warehouse"
	"github.com/cytops/cytops/pkg/core"
)

// Engine orchestrates the execution of pipeline stages.
type Engine struct {
	// Warehouse adapter (lazy connected)
	db          warehouse.Adapter
	dbConfig    warehouse.Config
	dbConnected bool
	dbMu        sync.Mutex

	cfg    *config.Config
	store  core.Store
	logger *slog.Logger

	graph  *dag.Graph
	stages map[string]Stage
}

// Options holds engine construction options.
type Options struct {
	// Config is the project configuration (required).
	Config *config.Config
	// Store overrides the state store; when nil an SQLite store is
	// opened at Config.StatePath.
	Store core.Store
	// Stages overrides the built-in stages (optional).
	Stages []Stage
	// Logger is the structured logger (optional, uses discard if nil).
	Logger *slog.Logger
}

// New creates a new engine with a lazy warehouse connection.
// The warehouse adapter is only connected when Run or RunSelected is
// called.
func New(opts Options) (*Engine, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("config is required")
	}
	cfg := opts.Config

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	logger.Debug("initializing engine", "environment", cfg.Environment, "warehouse", cfg.Warehouse.Type)

	store := opts.Store
	if store == nil {
		if dir := filepath.Dir(cfg.StatePath); dir != "." && cfg.StatePath != ":memory:" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create state directory: %w", err)
			}
		}
		s := state.NewSQLiteStore(logger)
		if err := s.Open(cfg.StatePath); err != nil {
			return nil, fmt.Errorf("failed to open state store: %w", err)
		}
		if err := s.Migrate(); err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("failed to migrate state store: %w", err)
		}
		store = s
	}

	db, err := warehouse.New(cfg.Warehouse.ToAdapterConfig(), logger)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	e := &Engine{
		db:       db,
		dbConfig: cfg.Warehouse.ToAdapterConfig(),
		cfg:      cfg,
		store:    store,
		logger:   logger,
		graph:    dag.New(),
		stages:   make(map[string]Stage),
	}

	stages := opts.Stages
	if stages == nil {
		stages = DefaultStages()
	}
	for _, s := range stages {
		if err := e.AddStage(s); err != nil {
			_ = store.Close()
			return nil, err
		}
	}
	if cycle := e.graph.Cycle(); cycle != nil {
		_ = store.Close()
		return nil, fmt.Errorf("stage dependency cycle: %v", cycle)
	}

	return e, nil
}

// AddStage registers a stage and its dependency edges. Every
// dependency must already be registered.
func (e *Engine) AddStage(s Stage) error {
	name := s.Name()
	if _, exists := e.stages[name]; exists {
		return fmt.Errorf("stage %q is already registered", name)
	}
	e.stages[name] = s
	e.graph.Add(name)
	for _, dep := range s.Deps() {
		if err := e.graph.AddDependency(name, dep); err != nil {
			return err
		}
	}
	return nil
}

// Graph returns the stage dependency graph.
func (e *Engine) Graph() *dag.Graph {
	return e.graph
}

// Stages returns the registered stage names, sorted.
func (e *Engine) Stages() []string {
	return e.graph.Stages()
}

// Store returns the state store.
func (e *Engine) Store() core.Store {
	return e.store
}

// DB returns the warehouse adapter. It may not be connected yet.
func (e *Engine) DB() warehouse.Adapter {
	return e.db
}

// ensureDBConnected connects the warehouse adapter if needed.
func (e *Engine) ensureDBConnected(ctx context.Context) error {
	e.dbMu.Lock()
	defer e.dbMu.Unlock()

	if e.dbConnected {
		return nil
	}

	if e.dbConfig.Path != "" && e.dbConfig.Path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(e.dbConfig.Path), 0o755); err != nil {
			return fmt.Errorf("failed to create warehouse directory: %w", err)
		}
	}

	e.logger.Debug("connecting to warehouse", "type", e.dbConfig.Type)
	if err := e.db.Connect(ctx, e.dbConfig); err != nil {
		return fmt.Errorf("failed to connect to warehouse: %w", err)
	}
	e.dbConnected = true
	return nil
}

// Close releases the engine's resources.
func (e *Engine) Close() error {
	var firstErr error

	e.dbMu.Lock()
	if e.dbConnected {
		if err := e.db.Close(); err != nil {
			firstErr = err
		}
		e.dbConnected = false
	}
	e.dbMu.Unlock()

	if err := e.store.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
