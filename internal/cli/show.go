package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewShowCommand creates the show command.
func NewShowCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "show <id>",
		Short:         "Show one record by id",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, done, err := rootOpts.openEngine(false)
			if err != nil {
				return err
			}
			defer done()

			r, err := eng.Profile(cmd.Context(), args[0])
			if err != nil {
				return WrapExitError(ExitFailure, "show", err)
			}
			if r == nil {
				return WrapExitError(ExitFailure, "show",
					fmt.Errorf("record %q not found", args[0]))
			}

			out := rootOpts.formatter(cmd)
			if out.Format == "json" {
				return out.SuccessJSON(summarize(r))
			}
			renderRecordLine(cmd.OutOrStdout(), r)
			return nil
		},
	}
	return cmd
}
