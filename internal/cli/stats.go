package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewStatsCommand creates the stats command.
func NewStatsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "stats",
		Short:         "Record count, storage size and cache efficiency",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, done, err := rootOpts.openEngine(false)
			if err != nil {
				return err
			}
			defer done()

			stats, err := eng.Stats(cmd.Context())
			if err != nil {
				return WrapExitError(ExitFailure, "stats", err)
			}

			out := rootOpts.formatter(cmd)
			if out.Format == "json" {
				return out.SuccessJSON(stats)
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "records:        %d\n", stats.Records)
			fmt.Fprintf(w, "storage bytes:  %d\n", stats.StorageBytes)
			fmt.Fprintf(w, "cache hit rate: %.1f%%\n", stats.CacheHitRate*100)
			for _, cs := range stats.Caches {
				fmt.Fprintf(w, "  %-18s entries=%-4d hits=%-6d misses=%d\n",
					cs.Name, cs.Entries, cs.Hits, cs.Misses)
			}
			return nil
		},
	}
	return cmd
}
