package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/cytops/cytops/pkg/core"
)

// RunOptions holds options for the run command.
type RunOptions struct {
	Select     string
	Downstream bool
	Watch      bool
	JSONOutput bool
}

// NewRunCommand creates the run command.
func NewRunCommand() *cobra.Command {
	opts := &RunOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run all pipeline stages or specific stages",
		Long: `Execute pipeline stages in dependency order.

By default, runs the full pipeline. Use --select to run specific stages.
Use --downstream to also run stages that depend on the selected stages.`,
		Example: `  # Run the full pipeline
  cytops run

  # Run specific stages
  cytops run --select ingest,features

  # Run a stage and its downstream dependents
  cytops run --select split --downstream

  # Re-run whenever the raw events file changes
  cytops run --watch

  # Run with JSON output for CI/CD integration
  cytops run --json`,
		Aliases: []string{"build"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRun(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Select, "select", "s", "", "Comma-separated list of stages to run")
	cmd.Flags().BoolVar(&opts.Downstream, "downstream", false, "Include downstream dependents when using --select")
	cmd.Flags().BoolVar(&opts.Watch, "watch", false, "Watch the raw events file and re-run on changes")
	cmd.Flags().BoolVar(&opts.JSONOutput, "json", false, "Output the run result as JSON")

	return cmd
}

func runRun(cmd *cobra.Command, opts *RunOptions) error {
	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx := cmd.Context()
	eng := cmdCtx.Engine
	r := cmdCtx.Renderer
	envName := cmdCtx.Cfg.Environment

	if opts.Watch {
		if opts.Select != "" {
			return fmt.Errorf("--watch cannot be combined with --select")
		}
		return eng.Watch(ctx, envName)
	}

	startTime := time.Now()

	var result *core.Run
	var runErr error
	if opts.Select != "" {
		selected := splitSelection(opts.Select)
		if !opts.JSONOutput {
			downstreamStr := ""
			if opts.Downstream {
				downstreamStr = " (+ downstream)"
			}
			r.Printf("Running %d selected stages%s...\n", len(selected), downstreamStr)
		}
		result, runErr = eng.RunSelected(ctx, envName, selected, opts.Downstream)
	} else {
		if !opts.JSONOutput {
			r.Printf("Running %d stages...\n", len(eng.Stages()))
		}
		result, runErr = eng.Run(ctx, envName)
	}

	if result == nil {
		return runErr
	}

	stageRuns, err := eng.Store().GetStageRunsForRun(result.ID)
	if err != nil {
		stageRuns = nil
	}

	if opts.JSONOutput {
		if err := r.JSON(map[string]any{
			"run":    result,
			"stages": stageRuns,
		}); err != nil {
			return err
		}
		return runErr
	}

	r.Printf("Run %s: %s\n", result.ID, result.Status)
	if result.Error != "" {
		r.Printf("Error: %s\n", result.Error)
	}
	if len(stageRuns) > 0 {
		rows := make([][]string, 0, len(stageRuns))
		for _, sr := range stageRuns {
			rows = append(rows, []string{
				sr.Stage,
				string(sr.Status),
				r.Count(sr.Rows),
				fmt.Sprintf("%dms", sr.DurationMS),
			})
		}
		r.Table([]string{"Stage", "Status", "Rows", "Duration"}, rows)
	}
	r.Printf("Completed in %s\n", time.Since(startTime).Round(time.Millisecond))

	if runErr != nil {
		return fmt.Errorf("run failed: %w", runErr)
	}
	return nil
}

func splitSelection(s string) []string {
	parts := strings.Split(s, ",")
	selected := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			selected = append(selected, p)
		}
	}
	return selected
}
