package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/caisson-io/caisson/internal/engine"
	"github.com/caisson-io/caisson/internal/logging"
	"github.com/caisson-io/caisson/internal/state"
)

var (
	applyAutoApprove bool
	applyPlanFile    string
	applyParallelism int
)

var applyCmd = &cobra.Command{
	Use:   "apply [dir]",
	Short: "Create or change infrastructure",
	Long: `Plans against the recorded state and executes the actions in
dependency order. Independent actions run concurrently up to the
parallelism limit.

A failed action only blocks its dependents; independent branches finish,
and the state of everything that completed is saved. With --plan the given
plan file is executed instead of prompting, after verifying that neither
the declaration nor the state has changed since it was written.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runApply,
}

func init() {
	applyCmd.Flags().BoolVar(&applyAutoApprove, "auto-approve", false, "Skip interactive approval of the plan")
	applyCmd.Flags().StringVar(&applyPlanFile, "plan", "", "Execute a plan saved by 'plan -out'")
	applyCmd.Flags().IntVar(&applyParallelism, "parallelism", 0, "Limit on concurrent actions (default 10)")
}

func runApply(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	ws, err := openWorkspace(ctx, args)
	if err != nil {
		return err
	}
	if applyParallelism > 0 {
		ws.engine.Parallelism = applyParallelism
	}
	if err := loadRequiredProviders(ctx, ws.registry, ws.cfg); err != nil {
		return err
	}

	unlock, err := ws.store.Lock(ctx, state.NewLockInfo("apply"))
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

	plan, err := ws.engine.Plan(ctx, ws.cfg, ws.configHash, snap)
	if err != nil {
		return fmt.Errorf("planning failed: %w", err)
	}

	if applyPlanFile != "" {
		saved, err := loadPlanFile(applyPlanFile)
		if err != nil {
			return err
		}
		// Matching metadata means the deterministic planner just
		// reproduced the saved actions, so execute the fresh plan.
		if err := engine.VerifyPlan(saved, ws.configHash, snap); err != nil {
			return err
		}
	}

	if plan.Empty() {
		fmt.Println("No changes. Infrastructure is up-to-date.")
		return nil
	}

	renderPlan(plan)

	if !applyAutoApprove && applyPlanFile == "" {
		if !confirm("\nDo you want to perform these actions?") {
			fmt.Println("Apply cancelled.")
			return nil
		}
	}

	fmt.Printf("\nApplying %d action(s)...\n\n", len(plan.Actions))
	result, err := ws.engine.Apply(ctx, ws.cfg, plan, snap, ws.store, renderApplyEvent)
	if err != nil {
		if result != nil {
			if applied, _, _ := result.Counts(); applied > 0 {
				return fmt.Errorf("%w: %w", ErrPartialApply, err)
			}
		}
		return err
	}

	s := plan.Summary()
	color.Green("\nApply complete! Resources: %d added, %d changed, %d destroyed.",
		s.Create+s.Replace, s.Update, s.Delete+s.Replace)
	renderOutputs(ws.cfg, snap.Outputs)
	return nil
}

func releaseLock(unlock state.UnlockFunc) {
	if err := unlock(); err != nil {
		logging.Warn("failed to release state lock", "error", err)
	}
}
