package cli

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/soyeahso/zueira/internal/channel/whatsapp"
)

func newMessageCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "message",
		Short: "Talk to the bot from the terminal",
	}

	cmd.AddCommand(newMessageSendCmd())
	cmd.AddCommand(newMessagePushCmd())
	return cmd
}

func newMessageSendCmd() *cobra.Command {
	var (
		conversation string
		verbose      bool
	)

	cmd := &cobra.Command{
		Use:   "send [message]",
		Short: "Run one turn as if the message came from a chat and print the reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")
			if err := validate(&cfg); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(cfg, paths, appOptions{}, log)
			if err != nil {
				return err
			}
			defer a.Close()

			result, err := a.router.Reply(ctx, conversation, text)
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), result.Reply)
			if verbose {
				fmt.Fprintf(cmd.ErrOrStderr(), "\n[run=%s item=%s fallback=%v took=%s]\n",
					result.RunID, result.ItemID, result.Fallback, result.Duration.Round(time.Millisecond))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&conversation, "conversation", "c", "cli", "conversation id the turn belongs to")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "print run details to stderr")

	return cmd
}

func newMessagePushCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "push <conversationId> <message>",
		Short: "Send a message straight to a WhatsApp chat through the bridge",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cfg.WhatsApp.Enabled {
				return fmt.Errorf("whatsapp channel is disabled")
			}

			a, err := newApp(cfg, paths, appOptions{WhatsApp: true}, log)
			if err != nil {
				return err
			}
			defer a.Close()

			text := strings.Join(args[1:], " ")
			if err := a.router.SendTo(cmd.Context(), whatsapp.ChannelID, args[0], text); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "sent to %s\n", args[0])
			return nil
		},
	}
}
