package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewPinCommand creates the pin command.
func NewPinCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "pin <id>",
		Short:         "Pin a record, appended at the end of the pinned list",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, done, err := rootOpts.openEngine(false)
			if err != nil {
				return err
			}
			defer done()

			if err := eng.Pin(cmd.Context(), args[0]); err != nil {
				return WrapExitError(ExitFailure, "pin", err)
			}

			out := rootOpts.formatter(cmd)
			if out.Format == "json" {
				return out.SuccessJSON(map[string]string{"pinned": args[0]})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "pinned %s\n", args[0])
			return nil
		},
	}
	return cmd
}

// NewUnpinCommand creates the unpin command.
func NewUnpinCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "unpin <id>",
		Short:         "Remove a record from the pinned list",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, done, err := rootOpts.openEngine(false)
			if err != nil {
				return err
			}
			defer done()

			if err := eng.Unpin(cmd.Context(), args[0]); err != nil {
				return WrapExitError(ExitFailure, "unpin", err)
			}

			out := rootOpts.formatter(cmd)
			if out.Format == "json" {
				return out.SuccessJSON(map[string]string{"unpinned": args[0]})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "unpinned %s\n", args[0])
			return nil
		},
	}
	return cmd
}
