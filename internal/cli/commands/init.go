package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

const configTemplate = `# Cytops project configuration.

# Raw click log to ingest.
raw_path: data/raw/events.tsv
raw_format: tsv

# Where exported datasets are written.
artifacts_dir: artifacts

# Date windows for the train/validation/test split.
validation_days: 7
test_days: 7

# Export format for the split datasets and predictions
# (parquet requires the duckdb warehouse).
export_format: parquet

warehouse:
  type: duckdb
  path: .cytops/warehouse.db

  # For a shared warehouse instead:
  # type: postgres
  # host: localhost
  # port: 5432
  # database: cytops
  # user: cytops
  # password: secret
`

const gitignoreTemplate = `.cytops/
artifacts/
`

// InitOptions holds options for the init command.
type InitOptions struct {
	Force bool
}

// NewInitCommand creates the init command.
func NewInitCommand() *cobra.Command {
	opts := &InitOptions{}

	cmd := &cobra.Command{
		Use:   "init [directory]",
		Short: "Initialize a new Cytops project",
		Long: `Create the scaffolding for a new Cytops project: a cytops.yaml
configuration file, the raw data directory, and a .gitignore for
generated files.`,
		Example: `  # Initialize in the current directory
  cytops init

  # Initialize in a new directory
  cytops init my-pipeline`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			return runInit(cmd, dir, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.Force, "force", false, "Overwrite an existing cytops.yaml")
	return cmd
}

func runInit(cmd *cobra.Command, dir string, opts *InitOptions) error {
	cfgPath := filepath.Join(dir, "cytops.yaml")
	if !opts.Force {
		if _, err := os.Stat(cfgPath); err == nil {
			return fmt.Errorf("%s already exists, use --force to overwrite", cfgPath)
		}
	}

	for _, d := range []string{
		filepath.Join(dir, "data", "raw"),
		filepath.Join(dir, "artifacts"),
	} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", d, err)
		}
	}

	if err := os.WriteFile(cfgPath, []byte(configTemplate), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", cfgPath, err)
	}

	gitignorePath := filepath.Join(dir, ".gitignore")
	if _, err := os.Stat(gitignorePath); os.IsNotExist(err) {
		if err := os.WriteFile(gitignorePath, []byte(gitignoreTemplate), 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", gitignorePath, err)
		}
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Initialized Cytops project in %s\n", dir)
	_, _ = fmt.Fprintln(out, "Next steps:")
	_, _ = fmt.Fprintln(out, "  1. Place your raw click log at data/raw/events.tsv")
	_, _ = fmt.Fprintln(out, "  2. Run: cytops run")
	return nil
}
