package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewVerifyCommand creates the verify command.
func NewVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Force a full verification sweep against the remote authority",
		Long: `Verify rechecks every cached record against the remote authority,
including records whose last verification is still fresh. Records the
authority disowns are degraded (pinned) or removed (unpinned). If the
sweep is interrupted, the pending flag survives and the next startup
retries it.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, done, err := rootOpts.openEngine(true)
			if err != nil {
				return err
			}
			defer done()

			if err := eng.ForceFullVerification(cmd.Context()); err != nil {
				return WrapExitError(ExitFailure, "verify", err)
			}

			out := rootOpts.formatter(cmd)
			if out.Format == "json" {
				return out.SuccessJSON(map[string]string{"result": "done"})
			}
			fmt.Fprintln(cmd.OutOrStdout(), "verification sweep done")
			return nil
		},
	}
	return cmd
}
