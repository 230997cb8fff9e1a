package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/castlight/rolodex/internal/engine"
	"github.com/castlight/rolodex/internal/record"
)

// NewRecentCommand creates the recent command.
func NewRecentCommand(rootOpts *RootOptions) *cobra.Command {
	return newListCommand(rootOpts, "recent",
		"Most recently opened conversations, deduplicated by name",
		func(ctx context.Context, eng *engine.Engine) ([]*record.Record, error) {
			return eng.Recent(ctx)
		})
}

// NewPinnedCommand creates the pinned command.
func NewPinnedCommand(rootOpts *RootOptions) *cobra.Command {
	return newListCommand(rootOpts, "pinned",
		"Pinned records in explicit order, recency as fallback",
		func(ctx context.Context, eng *engine.Engine) ([]*record.Record, error) {
			return eng.Pinned(ctx)
		})
}

func newListCommand(rootOpts *RootOptions, use, short string,
	list func(context.Context, *engine.Engine) ([]*record.Record, error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:           use,
		Short:         short,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, done, err := rootOpts.openEngine(false)
			if err != nil {
				return err
			}
			defer done()

			recs, err := list(cmd.Context(), eng)
			if err != nil {
				return WrapExitError(ExitFailure, use, err)
			}

			out := rootOpts.formatter(cmd)
			if out.Format == "json" {
				return out.SuccessJSON(summarizeAll(recs))
			}
			for _, r := range recs {
				renderRecordLine(cmd.OutOrStdout(), r)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d record(s)\n", len(recs))
			return nil
		},
	}
	return cmd
}
