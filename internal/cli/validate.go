package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/caisson-io/caisson/internal/decl"
	"github.com/caisson-io/caisson/internal/engine"
)

var validateCmd = &cobra.Command{
	Use:   "validate [dir]",
	Short: "Check the declaration without touching state",
	Long: `Decodes the declaration, builds the dependency graph, and checks
every resource type against its provider schema. Reports cycles, unknown
providers, unknown resource types, and unresolvable references.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	dir, err := resolveDir(args)
	if err != nil {
		return err
	}

	cfg, _, err := decl.Load(dir)
	if err != nil {
		return err
	}

	if _, err := engine.BuildGraph(cfg.Resources); err != nil {
		return err
	}

	factories := builtinProviders()
	for _, r := range cfg.Resources {
		factory, ok := factories[r.Provider]
		if !ok {
			return fmt.Errorf("%s: unknown provider %q", r.Addr(), r.Provider)
		}
		if _, err := factory().Schema(r.Type); err != nil {
			return fmt.Errorf("%s: %w", r.Addr(), err)
		}
	}

	color.Green("Success! The configuration is valid. (%d resource(s), %d output(s))",
		len(cfg.Resources), len(cfg.Outputs))
	return nil
}
