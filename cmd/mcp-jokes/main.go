// Command mcp-jokes serves the joke catalog as an MCP server over SSE.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/soyeahso/zueira/internal/logging"
	"github.com/soyeahso/zueira/internal/mcp"
)

func main() {
	if err := newCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newCmd() *cobra.Command {
	var (
		addr     string
		baseURL  string
		jokes    string
		logLevel string
	)

	cmd := &cobra.Command{
		Use:          "mcp-jokes",
		Short:        "Serve jokes to the bot over MCP (SSE transport)",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logging.New(nil, logLevel)

			catalog, err := loadCatalog(jokes)
			if err != nil {
				return err
			}

			if baseURL == "" {
				baseURL = "http://localhost" + addr
			}
			sse := server.NewSSEServer(mcp.NewJokeServer(catalog, log), server.WithBaseURL(baseURL))

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() {
				log.Info().Str("addr", addr).Str("sse", baseURL+"/sse").Strs("topics", catalog.Topics()).Msg("joke server listening")
				errCh <- sse.Start(addr)
			}()

			select {
			case err := <-errCh:
				if err != nil && !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("serve: %w", err)
				}
				return nil
			case <-ctx.Done():
			}

			log.Info().Msg("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return sse.Shutdown(shutdownCtx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":8000", "listen address")
	cmd.Flags().StringVar(&baseURL, "base-url", "", "public base URL announced to clients (default http://localhost<addr>)")
	cmd.Flags().StringVar(&jokes, "jokes", "", "YAML joke catalog (default: embedded catalog)")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "log level")
	return cmd
}

func loadCatalog(path string) (*mcp.Catalog, error) {
	if path == "" {
		return mcp.DefaultCatalog(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read jokes: %w", err)
	}
	return mcp.LoadCatalog(data)
}
