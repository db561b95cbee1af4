package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/soyeahso/zueira/internal/channel/whatsapp"
	"github.com/soyeahso/zueira/internal/config"
	"github.com/soyeahso/zueira/internal/version"
)

func newStatusCmd() *cobra.Command {
	var offline bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show zueira status and configuration summary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, version.Info())
			fmt.Fprintln(out)

			fmt.Fprintf(out, "Config:   %s\n", paths.Config)
			fmt.Fprintf(out, "Database: %s\n", paths.DBPath(&cfg))
			fmt.Fprintf(out, "History:  backend=%s limit=%d", cfg.History.Backend, cfg.History.Limit)
			if cfg.History.Backend != "sqlite" {
				fmt.Fprintf(out, " dir=%s", paths.HistoryDir(&cfg))
			}
			fmt.Fprintln(out)
			fmt.Fprintln(out)

			printSummary(out, &cfg)

			if cfg.WhatsApp.Enabled && !offline {
				printBridgeHealth(cmd.Context(), out, cfg.WhatsApp)
			}

			issues := config.Validate(&cfg)
			if len(issues) > 0 {
				fmt.Fprintf(out, "\nValidation issues (%d):\n", len(issues))
				for _, issue := range issues {
					fmt.Fprintf(out, "  - %s\n", issue)
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&offline, "offline", false, "skip the WhatsApp bridge health check")

	return cmd
}

func printSummary(out io.Writer, c *config.Config) {
	fmt.Fprintf(out, "LLM:      provider=%s model=%s\n", c.LLM.Provider, c.LLM.Model)

	if c.MCP.ServerURL != "" {
		fmt.Fprintf(out, "Tools:    %s\n", c.MCP.ServerURL)
	} else {
		fmt.Fprintln(out, "Tools:    (none, plain model only)")
	}

	if c.Tracing.Enabled {
		fmt.Fprintf(out, "Tracing:  langsmith project=%s\n", c.Tracing.Project)
	} else {
		fmt.Fprintln(out, "Tracing:  (disabled)")
	}

	if c.Gateway.Enabled {
		fmt.Fprintf(out, "Gateway:  port=%d bind=%s auth=%v\n",
			c.Gateway.Port, c.Gateway.Bind, c.Gateway.Auth.Token != "")
	} else {
		fmt.Fprintln(out, "Gateway:  (disabled)")
	}

	if c.WhatsApp.Enabled {
		fmt.Fprintf(out, "WhatsApp: bridge=%s\n", c.WhatsApp.BridgeURL)
	} else {
		fmt.Fprintln(out, "WhatsApp: (disabled)")
	}
}

func printBridgeHealth(ctx context.Context, out io.Writer, wc config.WhatsAppConfig) {
	ch, err := whatsapp.New(whatsapp.Config{BridgeURL: wc.BridgeURL, APIKey: wc.APIKey}, log)
	if err != nil {
		fmt.Fprintf(out, "Bridge:   invalid config: %v\n", err)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	h, err := ch.Health(ctx)
	if err != nil {
		fmt.Fprintf(out, "Bridge:   unreachable: %v\n", err)
		return
	}
	fmt.Fprintf(out, "Bridge:   status=%s ready=%v", h.Status, h.Ready)
	if h.Phone != "" {
		fmt.Fprintf(out, " phone=%s", h.Phone)
	}
	fmt.Fprintln(out)
}
