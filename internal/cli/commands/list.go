package commands

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/cytops/cytops/internal/cli/output"
)

// NewListCommand creates the list command.
func NewListCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List pipeline stages",
		Long: `Display all pipeline stages with their dependencies and the status
of their most recent execution.`,
		Example: `  # List stages
  cytops list

  # Output as JSON
  cytops list --output json`,
		Aliases: []string{"ls"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runList(cmd)
		},
	}
	return cmd
}

func runList(cmd *cobra.Command) error {
	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	eng := cmdCtx.Engine
	r := cmdCtx.Renderer
	graph := eng.Graph()

	type stageInfo struct {
		Stage      string   `json:"stage"`
		DependsOn  []string `json:"depends_on"`
		LastStatus string   `json:"last_status"`
		LastRows   int64    `json:"last_rows"`
		LastRunAt  string   `json:"last_run_at"`
	}

	var infos []stageInfo
	for _, name := range eng.Stages() {
		info := stageInfo{
			Stage:     name,
			DependsOn: graph.Parents(name),
		}
		if sr, err := eng.Store().GetLatestStageRun(name); err == nil && sr != nil {
			info.LastStatus = string(sr.Status)
			info.LastRows = sr.Rows
			info.LastRunAt = sr.StartedAt.Format("2006-01-02 15:04:05")
		}
		infos = append(infos, info)
	}

	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(infos)
	}

	rows := make([][]string, 0, len(infos))
	for _, info := range infos {
		status := info.LastStatus
		if status == "" {
			status = "-"
		}
		lastRun := info.LastRunAt
		if lastRun == "" {
			lastRun = "never"
		}
		rows = append(rows, []string{
			info.Stage,
			strings.Join(info.DependsOn, ", "),
			status,
			r.Count(info.LastRows),
			lastRun,
		})
	}
	r.Table([]string{"Stage", "Depends On", "Last Status", "Rows", "Last Run"}, rows)
	return nil
}
