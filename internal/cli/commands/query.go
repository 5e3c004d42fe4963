package commands

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cytops/cytops/internal/cli/output"
	"github.com/cytops/cytops/internal/table"
	"github.com/cytops/cytops/internal/warehouse"
)

// QueryOptions holds options for the query command.
type QueryOptions struct {
	Format string
}

// NewQueryCommand creates the query command.
func NewQueryCommand() *cobra.Command {
	opts := &QueryOptions{}

	cmd := &cobra.Command{
		Use:   "query [SQL]",
		Short: "Query the warehouse",
		Long: `Execute SQL queries against the warehouse database.

The warehouse holds every dataset the pipeline produces: raw events,
the product catalog, daily product sales, the train/validation/test
splits, and predictions.

When invoked without arguments, enters interactive REPL mode.`,
		Example: `  # Execute SQL directly
  cytops query "SELECT * FROM product_day_sales LIMIT 10"

  # Output as JSON
  cytops query "SELECT * FROM predictions" --format json

  # Interactive mode
  cytops query`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd, args, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Format, "format", "f", "table", "Output format: table, json, csv, md")
	return cmd
}

func runQuery(cmd *cobra.Command, args []string, opts *QueryOptions) error {
	cmdCtx := NewCommandContextWithoutEngine(cmd)
	ctx := cmd.Context()

	db, err := warehouse.New(cmdCtx.Cfg.Warehouse.ToAdapterConfig(), cmdCtx.Logger)
	if err != nil {
		return err
	}
	if err := db.Connect(ctx, cmdCtx.Cfg.Warehouse.ToAdapterConfig()); err != nil {
		return fmt.Errorf("failed to connect to warehouse: %w", err)
	}
	defer func() { _ = db.Close() }()

	if len(args) == 0 {
		return runQueryREPL(cmd, cmdCtx, db, opts)
	}

	sqlText := strings.TrimSpace(strings.Join(args, " "))
	return executeQuery(ctx, cmd.OutOrStdout(), db, sqlText, opts.Format)
}

// executeQuery runs one statement and renders the result.
func executeQuery(ctx context.Context, w io.Writer, db warehouse.Adapter, sqlText, format string) error {
	rows, err := db.Query(ctx, sqlText)
	if err != nil {
		return fmt.Errorf("query failed: %w", err)
	}
	result, err := warehouse.ReadRows(rows)
	if err != nil {
		return err
	}
	return renderResult(w, result, format)
}

func renderResult(w io.Writer, t *table.Table, format string) error {
	switch format {
	case "json":
		return renderResultJSON(w, t)
	case "csv":
		return renderResultCSV(w, t)
	default:
		mode := output.ModeText
		if format == "md" || format == "markdown" {
			mode = output.ModeMarkdown
		}
		if t.Len() == 0 {
			_, _ = fmt.Fprintln(w, "(0 rows)")
			return nil
		}
		r := output.NewRenderer(w, w, mode)
		rows := make([][]string, 0, t.Len())
		for i := 0; i < t.Len(); i++ {
			rows = append(rows, t.Row(i))
		}
		r.Table(t.Columns(), rows)
		_, _ = fmt.Fprintf(w, "(%d rows)\n", t.Len())
		return nil
	}
}

func renderResultJSON(w io.Writer, t *table.Table) error {
	results := make([]map[string]string, 0, t.Len())
	for i := 0; i < t.Len(); i++ {
		row := make(map[string]string, len(t.Columns()))
		for _, col := range t.Columns() {
			row[col] = t.MustCell(i, col)
		}
		results = append(results, row)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(results)
}

func renderResultCSV(w io.Writer, t *table.Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Columns()); err != nil {
		return err
	}
	for i := 0; i < t.Len(); i++ {
		if err := cw.Write(t.Row(i)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
