// Package commands implements the cytops subcommands.
package commands

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/cytops/cytops/internal/cli/output"
	"github.com/cytops/cytops/internal/config"
	"github.com/cytops/cytops/internal/pipeline"
)

// CommandContext holds common dependencies for CLI commands.
type CommandContext struct {
	Cfg      *config.Config
	Logger   *slog.Logger
	Engine   *pipeline.Engine
	Renderer *output.Renderer
}

// NewCommandContext creates a CommandContext with engine and renderer.
// Returns the context and a cleanup function that must be called
// (typically via defer).
func NewCommandContext(cmd *cobra.Command) (*CommandContext, func(), error) {
	cfg := getConfig()
	logger := newLogger(cfg.Verbose)

	eng, err := pipeline.New(pipeline.Options{Config: cfg, Logger: logger})
	if err != nil {
		return nil, nil, err
	}

	r := output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), output.Mode(cfg.Output))

	cleanup := func() {
		_ = eng.Close()
	}

	return &CommandContext{
		Cfg:      cfg,
		Logger:   logger,
		Engine:   eng,
		Renderer: r,
	}, cleanup, nil
}

// NewCommandContextWithoutEngine creates a CommandContext without an
// engine. Useful for commands that don't need the state store.
func NewCommandContextWithoutEngine(cmd *cobra.Command) *CommandContext {
	cfg := getConfig()
	return &CommandContext{
		Cfg:      cfg,
		Logger:   newLogger(cfg.Verbose),
		Renderer: output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), output.Mode(cfg.Output)),
	}
}

// getConfig returns the current configuration, falling back to defaults
// when the root command did not load one.
func getConfig() *config.Config {
	if cfg := config.Current(); cfg != nil {
		return cfg
	}

	cfg := &config.Config{
		Environment: os.Getenv("CYTOPS_ENVIRONMENT"),
		Verbose:     os.Getenv("CYTOPS_VERBOSE") == "true",
	}
	cfg.ApplyDefaults()
	return cfg
}

// newLogger returns a structured logger. Non-verbose runs discard log
// output; command results go through the renderer instead.
func newLogger(verbose bool) *slog.Logger {
	if !verbose {
		return slog.New(slog.DiscardHandler)
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
}
