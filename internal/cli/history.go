package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect and clear stored conversations",
	}

	cmd.AddCommand(newHistoryListCmd())
	cmd.AddCommand(newHistoryShowCmd())
	cmd.AddCommand(newHistoryClearCmd())
	return cmd
}

func newHistoryListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List conversations with stored history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, hist, err := openStore(cfg, paths, log)
			if err != nil {
				return err
			}
			defer db.Close()

			ids, err := hist.List(cmd.Context())
			if err != nil {
				return err
			}
			if len(ids) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no conversations")
				return nil
			}
			for _, id := range ids {
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			return nil
		},
	}
}

func newHistoryShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <conversationId>",
		Short: "Print the stored messages of a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, hist, err := openStore(cfg, paths, log)
			if err != nil {
				return err
			}
			defer db.Close()

			msgs := hist.Load(cmd.Context(), args[0])
			if len(msgs) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "no history for %s\n", args[0])
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, m := range msgs {
				fmt.Fprintf(w, "%s\t%s\n", m.Role, m.Content)
			}
			return w.Flush()
		},
	}
}

func newHistoryClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear <conversationId>",
		Short: "Delete the stored history of a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, hist, err := openStore(cfg, paths, log)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := hist.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "cleared %s\n", args[0])
			return nil
		},
	}
}
