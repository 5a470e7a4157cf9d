// Package cli implements the caisson command tree. Each verb lives in its
// own file; helpers.go carries the shared wiring and rendering.
package cli

import (
	"errors"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/caisson-io/caisson/internal/logging"
)

var (
	logLevel string
	noColor  bool
)

// ErrPartialApply marks a run that changed some resources before failing.
// The state snapshot is saved; main translates this to exit code 2.
var ErrPartialApply = errors.New("apply incomplete")

var rootCmd = &cobra.Command{
	Use:   "caisson",
	Short: "Declarative infrastructure provisioning",
	Long: `Caisson provisions infrastructure from HCL declarations.

It diffs the declared resources against the recorded state, plans the
create/update/delete actions in dependency order, and executes them
through provider plugins. Partial failures keep a consistent state file
so the next run picks up where this one stopped.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.Init(logLevel)
		if noColor {
			color.NoColor = true
		}
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// ExitCode maps the Execute result to the process exit status: 0 success,
// 1 error, 2 partial apply failure.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, ErrPartialApply):
		return 2
	default:
		return 1
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(applyCmd)
	rootCmd.AddCommand(destroyCmd)
	rootCmd.AddCommand(refreshCmd)
	rootCmd.AddCommand(outputCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(graphCmd)
	rootCmd.AddCommand(versionCmd)
}
