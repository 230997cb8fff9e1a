package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewSearchCommand creates the search command.
func NewSearchCommand(rootOpts *RootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "search <term>",
		Short: "Ranked search over the local record set",
		Long: `Search scores every cached record against the term and prints the top
matches by descending score. Records with no matching signal are omitted.

Example:
  rolodex search --db ./rolodex.db alice
  rolodex search --db ./rolodex.db --limit 5 --format json "flight ops"`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, done, err := rootOpts.openEngine(false)
			if err != nil {
				return err
			}
			defer done()

			matches, err := eng.Search(cmd.Context(), args[0], limit)
			if err != nil {
				return WrapExitError(ExitFailure, "search", err)
			}

			out := rootOpts.formatter(cmd)
			if out.Format == "json" {
				type scored struct {
					Score  int           `json:"score"`
					Record recordSummary `json:"record"`
				}
				payload := make([]scored, 0, len(matches))
				for _, m := range matches {
					payload = append(payload, scored{Score: m.Score, Record: summarize(m.Record)})
				}
				return out.SuccessJSON(payload)
			}

			for _, m := range matches {
				fmt.Fprintf(cmd.OutOrStdout(), "%5d  ", m.Score)
				renderRecordLine(cmd.OutOrStdout(), m.Record)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d match(es)\n", len(matches))
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of results")
	return cmd
}
