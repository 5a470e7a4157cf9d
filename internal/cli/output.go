package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var outputCmd = &cobra.Command{
	Use:   "output [name]",
	Short: "Print output values from the last apply",
	Long: `Prints the output values recorded in the state snapshot. Sensitive
outputs are masked in the listing; requesting one by name prints the real
value.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runOutput,
}

func runOutput(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	ws, err := openWorkspace(ctx, nil)
	if err != nil {
		return err
	}
	snap, err := ws.store.Load(ctx)
	if err != nil {
		return err
	}

	if len(args) == 1 {
		name := args[0]
		value, ok := snap.Outputs[name]
		if !ok {
			return fmt.Errorf("output %q not found in state", name)
		}
		fmt.Println(formatValue(value))
		return nil
	}

	if len(snap.Outputs) == 0 {
		fmt.Println("No outputs recorded. Run apply first.")
		return nil
	}
	renderOutputs(ws.cfg, snap.Outputs)
	return nil
}
