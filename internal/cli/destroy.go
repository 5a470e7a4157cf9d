package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/caisson-io/caisson/internal/state"
)

var (
	destroyAutoApprove bool
	destroyParallelism int
)

var destroyCmd = &cobra.Command{
	Use:   "destroy [dir]",
	Short: "Destroy all recorded infrastructure",
	Long: `Plans the deletion of every resource in the state snapshot, in
reverse dependency order, and executes it. Resources declared with
lifecycle prevent_destroy refuse the whole run.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runDestroy,
}

func init() {
	destroyCmd.Flags().BoolVar(&destroyAutoApprove, "auto-approve", false, "Skip interactive approval")
	destroyCmd.Flags().IntVar(&destroyParallelism, "parallelism", 0, "Limit on concurrent actions (default 10)")
}

func runDestroy(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	ws, err := openWorkspace(ctx, args)
	if err != nil {
		return err
	}
	if destroyParallelism > 0 {
		ws.engine.Parallelism = destroyParallelism
	}

	unlock, err := ws.store.Lock(ctx, state.NewLockInfo("destroy"))
	if err != nil {
		return err
	}
	defer releaseLock(unlock)

	snap, err := ws.store.Load(ctx)
	if err != nil {
		return err
	}
	if err := loadStateProviders(ctx, ws.registry, snap); err != nil {
		return err
	}

	plan, err := ws.engine.PlanDestroy(ctx, ws.cfg, ws.configHash, snap)
	if err != nil {
		return fmt.Errorf("planning failed: %w", err)
	}

	if plan.Empty() {
		fmt.Println("No resources to destroy.")
		return nil
	}

	renderPlan(plan)

	if !destroyAutoApprove {
		if !confirm("\nDo you really want to destroy all resources?") {
			fmt.Println("Destroy cancelled.")
			return nil
		}
	}

	fmt.Printf("\nDestroying %d resource(s)...\n\n", len(plan.Actions))
	result, err := ws.engine.Apply(ctx, ws.cfg, plan, snap, ws.store, renderApplyEvent)
	if err != nil {
		if result != nil {
			if applied, _, _ := result.Counts(); applied > 0 {
				return fmt.Errorf("%w: %w", ErrPartialApply, err)
			}
		}
		return err
	}

	color.Green("\nDestroy complete! Resources: %d destroyed.", len(plan.Actions))
	return nil
}
