package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
)

func newAskCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "ask <message>",
		Short: "Run one conversation turn and print the response",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			rt, _, _, err := startRuntime(ctx, logText, true)
			if err != nil {
				return err
			}
			defer rt.Close()

			id := currentSession()
			reply := rt.Orchestrator().RunTurn(ctx, id, strings.Join(args, " "))
			out := cmd.OutOrStdout()
			if asJSON {
				body := map[string]any{
					"session_id":  reply.SessionID,
					"turn_id":     reply.TurnID,
					"response":    reply.Text,
					"backend":     reply.Backend,
					"duration_ms": reply.Duration.Milliseconds(),
				}
				if reply.Err != nil {
					body["error"] = reply.Err.Error()
				}
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(body); err != nil {
					return err
				}
			} else {
				fmt.Fprintln(out, reply.Text)
				if sessionID == "" {
					fmt.Fprintf(os.Stderr, "session: %s\n", id)
				}
			}
			if reply.Err != nil {
				return fmt.Errorf("turn failed: %w", reply.Err)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the reply as JSON")
	return cmd
}
