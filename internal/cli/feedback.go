package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/soyeahso/zueira/internal/domain"
	"github.com/soyeahso/zueira/internal/store"
)

func newFeedbackCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "feedback",
		Short: "Inspect feedback users gave on replies",
	}

	cmd.AddCommand(newFeedbackListCmd())
	cmd.AddCommand(newFeedbackSummaryCmd())
	return cmd
}

func openLedger() (*store.DB, *store.FeedbackLog, error) {
	db, _, err := openStore(cfg, paths, log)
	if err != nil {
		return nil, nil, err
	}
	return db, store.NewFeedbackLog(db), nil
}

func newFeedbackListCmd() *cobra.Command {
	var (
		conversation string
		limit        int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded feedback, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, ledger, err := openLedger()
			if err != nil {
				return err
			}
			defer db.Close()

			items, err := ledger.List(cmd.Context(), conversation, limit)
			if err != nil {
				return err
			}
			if len(items) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no feedback recorded")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "WHEN\tCONVERSATION\tPOLARITY\tRUN\tCOMMENT")
			for _, fb := range items {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					fb.CreatedAt.Local().Format(time.DateTime), fb.ConversationID, fb.Polarity, fb.RunID, fb.Comment)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVarP(&conversation, "conversation", "c", "", "only show feedback for this conversation")
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "maximum number of entries")

	return cmd
}

func newFeedbackSummaryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "summary",
		Short: "Print feedback counts by polarity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, ledger, err := openLedger()
			if err != nil {
				return err
			}
			defer db.Close()

			counts, err := ledger.Summary(cmd.Context())
			if err != nil {
				return err
			}
			pos, neg := counts[domain.PolarityPositive], counts[domain.PolarityNegative]
			fmt.Fprintf(cmd.OutOrStdout(), "positive: %d\nnegative: %d\n", pos, neg)
			if total := pos + neg; total > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "approval: %.0f%%\n", float64(pos)*100/float64(total))
			}
			return nil
		},
	}
}
