package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/cytops/cytops/internal/cli/output"
	"github.com/cytops/cytops/pkg/core"
)

// RunsOptions holds options for the runs command.
type RunsOptions struct {
	Limit int
}

// NewRunsCommand creates the runs command.
func NewRunsCommand() *cobra.Command {
	opts := &RunsOptions{}

	cmd := &cobra.Command{
		Use:   "runs [run-id]",
		Short: "Show run history",
		Long: `Display recent pipeline runs, or the stage executions and artifacts
of a single run when a run ID is given.`,
		Example: `  # Show the last 10 runs
  cytops runs

  # Show the last 50 runs
  cytops runs --limit 50

  # Inspect one run
  cytops runs 1b4e28ba-2fa1-11d2-883f-0016d3cca427`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				return runShowRun(cmd, args[0])
			}
			return runListRuns(cmd, opts)
		},
	}

	cmd.Flags().IntVar(&opts.Limit, "limit", 10, "Maximum number of runs to show")
	return cmd
}

func runListRuns(cmd *cobra.Command, opts *RunsOptions) error {
	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	r := cmdCtx.Renderer
	runs, err := cmdCtx.Engine.Store().ListRuns(opts.Limit)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(runs)
	}

	if len(runs) == 0 {
		r.Println("No runs recorded yet.")
		return nil
	}

	rows := make([][]string, 0, len(runs))
	for _, run := range runs {
		rows = append(rows, []string{
			run.ID,
			run.Environment,
			string(run.Status),
			run.StartedAt.Format("2006-01-02 15:04:05"),
			runDuration(run),
		})
	}
	r.Table([]string{"Run", "Environment", "Status", "Started", "Duration"}, rows)
	return nil
}

func runShowRun(cmd *cobra.Command, runID string) error {
	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	r := cmdCtx.Renderer
	store := cmdCtx.Engine.Store()

	run, err := store.GetRun(runID)
	if err != nil {
		return fmt.Errorf("failed to load run: %w", err)
	}
	if run == nil {
		return fmt.Errorf("run %s not found", runID)
	}

	stageRuns, err := store.GetStageRunsForRun(runID)
	if err != nil {
		return fmt.Errorf("failed to load stage runs: %w", err)
	}
	artifacts, err := store.ListArtifactsForRun(runID)
	if err != nil {
		return fmt.Errorf("failed to load artifacts: %w", err)
	}

	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(map[string]any{
			"run":       run,
			"stages":    stageRuns,
			"artifacts": artifacts,
		})
	}

	r.Printf("Run %s (%s): %s\n", run.ID, run.Environment, run.Status)
	r.Printf("Started: %s, duration: %s\n", run.StartedAt.Format("2006-01-02 15:04:05"), runDuration(run))
	if run.Error != "" {
		r.Printf("Error: %s\n", run.Error)
	}

	if len(stageRuns) > 0 {
		r.Println()
		r.Header("Stages")
		rows := make([][]string, 0, len(stageRuns))
		for _, sr := range stageRuns {
			errMsg := sr.Error
			if errMsg == "" {
				errMsg = "-"
			}
			rows = append(rows, []string{
				sr.Stage,
				string(sr.Status),
				r.Count(sr.Rows),
				fmt.Sprintf("%dms", sr.DurationMS),
				errMsg,
			})
		}
		r.Table([]string{"Stage", "Status", "Rows", "Duration", "Error"}, rows)
	}

	if len(artifacts) > 0 {
		r.Println()
		r.Header("Artifacts")
		rows := make([][]string, 0, len(artifacts))
		for _, a := range artifacts {
			rows = append(rows, []string{
				a.Name,
				a.Format,
				a.Path,
				r.Count(a.Rows),
			})
		}
		r.Table([]string{"Name", "Format", "Path", "Rows"}, rows)
	}

	return nil
}

func runDuration(run *core.Run) string {
	if run.CompletedAt == nil {
		return "running"
	}
	return run.CompletedAt.Sub(run.StartedAt).Round(time.Millisecond).String()
}
