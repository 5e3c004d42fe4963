package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cytops/cytops/internal/cli/output"
	"github.com/cytops/cytops/internal/dag"
)

// DAGOptions holds options for the dag command.
type DAGOptions struct {
	Dot bool
}

// NewDAGCommand creates the dag command.
func NewDAGCommand() *cobra.Command {
	opts := &DAGOptions{}

	cmd := &cobra.Command{
		Use:   "dag",
		Short: "Show the stage dependency graph",
		Long: `Display the dependency graph (DAG) of all pipeline stages.

Stages are grouped by execution level, showing which stages can run
in parallel and their dependency relationships.`,
		Example: `  # Show the DAG
  cytops dag

  # Output as Graphviz dot
  cytops dag --dot | dot -Tsvg > dag.svg

  # Output as JSON
  cytops dag --output json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDAG(cmd, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.Dot, "dot", false, "Output the graph in Graphviz dot format")
	return cmd
}

func runDAG(cmd *cobra.Command, opts *DAGOptions) error {
	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	graph := cmdCtx.Engine.Graph()
	r := cmdCtx.Renderer

	if opts.Dot {
		return dagDot(r, graph)
	}

	levels, err := graph.Levels()
	if err != nil {
		return fmt.Errorf("failed to compute execution levels: %w", err)
	}

	if r.EffectiveMode() == output.ModeJSON {
		type edge struct {
			From string `json:"from"`
			To   string `json:"to"`
		}
		var edges []edge
		for _, stage := range graph.Stages() {
			for _, parent := range graph.Parents(stage) {
				edges = append(edges, edge{From: parent, To: stage})
			}
		}
		return r.JSON(map[string]any{
			"stages": graph.Stages(),
			"levels": levels,
			"edges":  edges,
		})
	}

	r.Header("Dependency Graph")
	for i, level := range levels {
		r.Printf("Level %d:\n", i)
		for _, stage := range level {
			r.Printf("  %s\n", stage)
			if parents := graph.Parents(stage); len(parents) > 0 {
				r.Printf("    depends on: %s\n", strings.Join(parents, ", "))
			}
			if children := graph.Children(stage); len(children) > 0 {
				r.Printf("    feeds: %s\n", strings.Join(children, ", "))
			}
		}
		r.Println()
	}
	return nil
}

// dagDot writes the graph in Graphviz dot format.
func dagDot(r *output.Renderer, graph *dag.Graph) error {
	var b strings.Builder
	b.WriteString("digraph cytops {\n")
	b.WriteString("  rankdir=LR;\n")
	b.WriteString("  node [shape=box, fontname=\"Helvetica\"];\n")
	for _, stage := range graph.Stages() {
		fmt.Fprintf(&b, "  %q;\n", stage)
	}
	for _, stage := range graph.Stages() {
		for _, parent := range graph.Parents(stage) {
			fmt.Fprintf(&b, "  %q -> %q;\n", parent, stage)
		}
	}
	b.WriteString("}\n")
	r.Printf("%s", b.String())
	return nil
}
