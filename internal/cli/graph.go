package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/caisson-io/caisson/internal/decl"
	"github.com/caisson-io/caisson/internal/engine"
)

var graphCmd = &cobra.Command{
	Use:   "graph [dir]",
	Short: "Print the dependency graph in DOT format",
	Long: `Prints the resource dependency graph in Graphviz DOT format.
Pipe it through dot to render it:

  caisson graph | dot -Tsvg > graph.svg`,
	Args: cobra.MaximumNArgs(1),
	RunE: runGraph,
}

func runGraph(cmd *cobra.Command, args []string) error {
	dir, err := resolveDir(args)
	if err != nil {
		return err
	}

	cfg, _, err := decl.Load(dir)
	if err != nil {
		return err
	}

	graph, err := engine.BuildGraph(cfg.Resources)
	if err != nil {
		return err
	}

	fmt.Print(graph.DOT())
	return nil
}
