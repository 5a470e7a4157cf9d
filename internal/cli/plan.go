package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var planOutFile string

var planCmd = &cobra.Command{
	Use:   "plan [dir]",
	Short: "Show what an apply would change",
	Long: `Diffs the declaration against the recorded state and prints the
actions an apply would take. Nothing is mutated.

With -out the plan is written to a file that a later apply can execute,
as long as neither the declaration nor the state has moved since.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPlan,
}

func init() {
	planCmd.Flags().StringVarP(&planOutFile, "out", "o", "", "Write the plan to a file for a later apply")
}

func runPlan(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	ws, err := openWorkspace(ctx, args)
	if err != nil {
		return err
	}
	if err := loadRequiredProviders(ctx, ws.registry, ws.cfg); err != nil {
		return err
	}

	snap, err := ws.store.Load(ctx)
	if err != nil {
		return err
	}

	plan, err := ws.engine.Plan(ctx, ws.cfg, ws.configHash, snap)
	if err != nil {
		return fmt.Errorf("planning failed: %w", err)
	}

	renderPlan(plan)

	if planOutFile != "" {
		if err := savePlanFile(planOutFile, plan); err != nil {
			return err
		}
		fmt.Printf("\nPlan saved to %s. Apply it with: caisson apply --plan %s\n", planOutFile, planOutFile)
	}
	return nil
}
