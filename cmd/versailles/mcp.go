package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/szaher/versailles/internal/mcp"
)

func newMCPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the assistant's tools over MCP on stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			// stdout carries the protocol; logs go to stderr.
			rt, _, logger, err := startRuntime(ctx, logJSON, false)
			if err != nil {
				return err
			}
			defer rt.Close()

			return mcp.NewServer(rt.Registry(), version, mcp.WithLogger(logger)).RunStdio(ctx)
		},
	}
}
