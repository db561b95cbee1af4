package cli

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/soyeahso/zueira/internal/version"
)

func newRunCmd() *cobra.Command {
	var (
		port       int
		bind       string
		noGateway  bool
		noWhatsApp bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the bot: WhatsApp channel plus the ops gateway",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if port > 0 {
				cfg.Gateway.Port = port
			}
			if bind != "" {
				cfg.Gateway.Bind = bind
			}
			if noGateway {
				cfg.Gateway.Enabled = false
			}
			if noWhatsApp {
				cfg.WhatsApp.Enabled = false
			}
			if err := validate(&cfg); err != nil {
				return err
			}
			if err := paths.EnsureDirs(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(cfg, paths, appOptions{WhatsApp: true, Gateway: true}, log)
			if err != nil {
				return err
			}
			defer a.Close()

			log.Info().
				Str("version", version.Version).
				Str("model", cfg.LLM.Model).
				Str("history", cfg.History.Backend).
				Bool("tools", a.tools != nil).
				Bool("tracing", cfg.Tracing.Enabled).
				Msg("starting zueira")
			return a.run(ctx)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "gateway port (overrides config)")
	cmd.Flags().StringVar(&bind, "bind", "", "gateway bind mode: loopback or lan")
	cmd.Flags().BoolVar(&noGateway, "no-gateway", false, "do not start the ops gateway")
	cmd.Flags().BoolVar(&noWhatsApp, "no-whatsapp", false, "do not connect to the WhatsApp bridge")

	return cmd
}

// run starts every surface and blocks until ctx is cancelled or the
// gateway fails. In-flight replies finish before it returns.
func (a *app) run(ctx context.Context) error {
	a.router.Wire(ctx)

	g, gctx := errgroup.WithContext(ctx)

	a.channels.StartAll(gctx)
	g.Go(func() error {
		<-gctx.Done()
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		a.channels.StopAll(stopCtx)
		a.channels.Wait()
		return nil
	})

	if a.gateway != nil {
		g.Go(func() error {
			return a.gateway.Start(gctx)
		})
	}

	if a.channels.Count() == 0 && a.gateway == nil {
		a.log.Warn().Msg("no channel or gateway enabled, waiting for a signal")
	}

	err := g.Wait()
	a.router.Drain()
	a.log.Info().Msg("zueira stopped")
	return err
}
