package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/cytops/cytops/internal/pipeline"
	"github.com/cytops/cytops/internal/warehouse"
)

func runQueryREPL(cmd *cobra.Command, cmdCtx *CommandContext, db warehouse.Adapter, opts *QueryOptions) error {
	ctx := cmd.Context()

	// History lives next to the state database.
	historyFile := filepath.Join(filepath.Dir(cmdCtx.Cfg.StatePath), "query_history")

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "cytops> ",
		HistoryFile:     historyFile,
		AutoComplete:    newQueryCompleter(),
		InterruptPrompt: "^C",
		EOFPrompt:       ".quit",
	})
	if err != nil {
		return fmt.Errorf("failed to initialize REPL: %w", err)
	}
	defer func() { _ = rl.Close() }()

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Cytops Query REPL (%s warehouse)\n", db.DialectName())
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Type .help for commands, .quit to exit")
	_, _ = fmt.Fprintln(cmd.OutOrStdout())

	var multiLineBuffer strings.Builder
	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			multiLineBuffer.Reset()
			rl.SetPrompt("cytops> ")
			continue
		}
		if errors.Is(err, io.EOF) {
			break
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, ".") {
			if line == ".quit" || line == ".exit" {
				break
			}
			handleDotCommand(ctx, cmd, db, line, opts.Format)
			continue
		}

		// Accumulate multi-line SQL until semicolon
		multiLineBuffer.WriteString(line)
		if !strings.HasSuffix(line, ";") {
			multiLineBuffer.WriteString(" ")
			rl.SetPrompt("   ...> ")
			continue
		}
		rl.SetPrompt("cytops> ")

		query := strings.TrimSuffix(multiLineBuffer.String(), ";")
		multiLineBuffer.Reset()

		if err := executeQuery(ctx, cmd.OutOrStdout(), db, query, opts.Format); err != nil {
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
		}
	}

	return nil
}

// handleDotCommand processes REPL dot-commands.
func handleDotCommand(ctx context.Context, cmd *cobra.Command, db warehouse.Adapter, line, format string) {
	out := cmd.OutOrStdout()
	fields := strings.Fields(line)

	switch fields[0] {
	case ".help":
		_, _ = fmt.Fprintln(out, "Commands:")
		_, _ = fmt.Fprintln(out, "  .tables          List warehouse tables")
		_, _ = fmt.Fprintln(out, "  .schema TABLE    Show the columns of a table")
		_, _ = fmt.Fprintln(out, "  .quit, .exit     Leave the REPL")
		_, _ = fmt.Fprintln(out, "SQL statements end with a semicolon.")

	case ".tables":
		schema := "main"
		if db.DialectName() == "postgres" {
			schema = "public"
		}
		query := fmt.Sprintf(
			"SELECT table_name FROM information_schema.tables WHERE table_schema = '%s' ORDER BY table_name", schema)
		if err := executeQuery(ctx, out, db, query, format); err != nil {
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
		}

	case ".schema":
		if len(fields) < 2 {
			_, _ = fmt.Fprintln(out, "Usage: .schema TABLE")
			return
		}
		meta, err := db.TableMetadata(ctx, fields[1])
		if err != nil {
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
			return
		}
		for _, col := range meta.Columns {
			_, _ = fmt.Fprintf(out, "  %s %s\n", col.Name, col.Type)
		}

	default:
		_, _ = fmt.Fprintf(out, "Unknown command %s, type .help\n", fields[0])
	}
}

// newQueryCompleter completes the pipeline's table names and common SQL
// keywords.
func newQueryCompleter() readline.AutoCompleter {
	items := []readline.PrefixCompleterInterface{
		readline.PcItem(".help"),
		readline.PcItem(".tables"),
		readline.PcItem(".quit"),
		readline.PcItem(".exit"),
	}
	tables := []string{
		pipeline.TableRawEvents,
		pipeline.TableProductCatalog,
		pipeline.TableProductDaySales,
		pipeline.TableTrain,
		pipeline.TableValidation,
		pipeline.TableTest,
		pipeline.TablePredictions,
	}
	items = append(items, readline.PcItem(".schema", pcItems(tables)...))
	keywords := []string{"SELECT", "FROM", "WHERE", "GROUP", "ORDER", "BY", "LIMIT", "JOIN"}
	items = append(items, pcItems(append(keywords, tables...))...)
	return readline.NewPrefixCompleter(items...)
}

func pcItems(words []string) []readline.PrefixCompleterInterface {
	items := make([]readline.PrefixCompleterInterface, 0, len(words))
	for _, w := range words {
		items = append(items, readline.PcItem(w))
	}
	return items
}
