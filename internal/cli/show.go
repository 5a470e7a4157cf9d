package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var showCmd = &cobra.Command{
	Use:   "show [plan-file]",
	Short: "Render the state snapshot or a saved plan",
	Long: `With no argument, prints the current state snapshot. With a plan
file written by 'plan -out', renders the saved actions instead.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runShow,
}

func runShow(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	if len(args) == 1 {
		plan, err := loadPlanFile(args[0])
		if err != nil {
			return err
		}
		renderPlan(plan)
		return nil
	}

	ws, err := openWorkspace(ctx, nil)
	if err != nil {
		return err
	}
	snap, err := ws.store.Load(ctx)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	fmt.Println(string(data))
	return nil
}
