package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewCleanupCommand creates the cleanup command.
func NewCleanupCommand(rootOpts *RootOptions) *cobra.Command {
	var startup bool

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Run the dedup passes and no-name-group recovery",
		Long: `Cleanup collapses duplicate records and tries to recover unresolved
no-name groups via the remote authority. With --startup it first runs the
full startup convergence sequence (structural dedup, primary-key
migration, direct-channel consolidation, verification sweeps).

The run is skipped silently when the previous cleanup was less than the
configured cooldown ago.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, done, err := rootOpts.openEngine(true)
			if err != nil {
				return err
			}
			defer done()

			if startup {
				if err := eng.Startup(cmd.Context()); err != nil {
					return WrapExitError(ExitFailure, "startup", err)
				}
			}
			if err := eng.RunCleanup(cmd.Context()); err != nil {
				return WrapExitError(ExitFailure, "cleanup", err)
			}

			out := rootOpts.formatter(cmd)
			if out.Format == "json" {
				return out.SuccessJSON(map[string]string{"result": "done"})
			}
			fmt.Fprintln(cmd.OutOrStdout(), "cleanup done")
			return nil
		},
	}

	cmd.Flags().BoolVar(&startup, "startup", false, "run the startup convergence sequence first")
	return cmd
}
