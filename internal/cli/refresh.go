package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/caisson-io/caisson/internal/ir"
	"github.com/caisson-io/caisson/internal/provider"
	"github.com/caisson-io/caisson/internal/state"
)

var refreshCmd = &cobra.Command{
	Use:   "refresh [dir]",
	Short: "Reconcile the state with real infrastructure",
	Long: `Asks each provider for the current attributes of every resource in
the state snapshot. Drifted outputs are updated; resources that no longer
exist are dropped from the state. The declaration itself is not touched;
run plan afterwards to see what apply would change.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRefresh,
}

func runRefresh(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	ws, err := openWorkspace(ctx, args)
	if err != nil {
		return err
	}

	unlock, err := ws.store.Lock(ctx, state.NewLockInfo("refresh"))
	if err != nil {
		return err
	}
	defer releaseLock(unlock)

	snap, err := ws.store.Load(ctx)
	if err != nil {
		return err
	}
	if len(snap.Resources) == 0 {
		fmt.Println("State is empty, nothing to refresh.")
		return nil
	}
	if err := loadStateProviders(ctx, ws.registry, snap); err != nil {
		return err
	}

	// Reads can remove entries, so walk a copy of the list.
	entries := make([]*ir.ResourceState, len(snap.Resources))
	copy(entries, snap.Resources)

	checked := 0
	for _, rs := range entries {
		prov, err := ws.registry.Get(rs.Provider)
		if err != nil {
			return err
		}

		fmt.Printf("%s: Refreshing... ", rs.Addr())
		outputs, err := prov.Read(ctx, rs.Type, rs.ID, rs.Outputs)
		if errors.Is(err, provider.ErrNotFound) {
			fmt.Println("gone, removing from state")
			snap.Remove(rs.Addr())
			checked++
			continue
		}
		if err != nil {
			fmt.Println("failed")
			return fmt.Errorf("%s: read failed: %w", rs.Addr(), err)
		}
		fmt.Println("done")
		rs.Outputs = outputs
		checked++
	}

	if err := ws.store.Save(ctx, snap); err != nil {
		return fmt.Errorf("failed to save state: %w", err)
	}
	fmt.Printf("\nState refreshed. %d resource(s) checked, %d remain in state.\n", checked, len(snap.Resources))
	return nil
}
