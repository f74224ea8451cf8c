package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func newResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Clear the conversation history of --session",
		RunE: func(cmd *cobra.Command, args []string) error {
			if sessionID == "" {
				return errors.New("--session is required")
			}
			ctx := context.Background()
			rt, _, _, err := startRuntime(ctx, logText, true)
			if err != nil {
				return err
			}
			defer rt.Close()

			if err := rt.Orchestrator().ResetSession(ctx, sessionID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Session %s reset.\n", sessionID)
			return nil
		},
	}
}
