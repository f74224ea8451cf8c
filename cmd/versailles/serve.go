package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	var (
		addr   string
		noAuth bool
		noUI   bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the assistant over HTTP",
		Long: `Serve the HTTP API, the chat page and Prometheus metrics.
API requests need the key from server.api_key (VERSAILLES_API_KEY by default)
as a bearer token unless --no-auth is given.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			rt, cfg, _, err := startRuntime(ctx, logJSON, false)
			if err != nil {
				return err
			}
			defer rt.Close()

			if addr != "" {
				cfg.Server.Addr = addr
			}
			if noAuth {
				cfg.Server.NoAuth = true
			}
			if noUI {
				off := false
				cfg.Server.UI = &off
			}
			if err := rt.Start(ctx); err != nil {
				return err
			}
			return rt.Serve(ctx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides server.addr)")
	cmd.Flags().BoolVar(&noAuth, "no-auth", false, "Serve without authentication")
	cmd.Flags().BoolVar(&noUI, "no-ui", false, "Do not serve the chat page")
	return cmd
}
