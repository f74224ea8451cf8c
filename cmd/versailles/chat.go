package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/szaher/versailles/internal/orchestrator"
)

// conversation is the part of the orchestrator the REPL drives.
type conversation interface {
	RunTurn(ctx context.Context, sessionID, message string) orchestrator.Reply
	ResetSession(ctx context.Context, sessionID string) error
}

func newChatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive conversation",
		Long:  "Interactive conversation. Type /reset to start over and /quit to leave.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			rt, _, _, err := startRuntime(ctx, logText, true)
			if err != nil {
				return err
			}
			defer rt.Close()
			if err := rt.Start(ctx); err != nil {
				return err
			}

			id := currentSession()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Session %s (mémoire : %s). /reset pour recommencer, /quit pour quitter.\n", id, rt.Snapshot().Memory)
			return chatLoop(ctx, cmd.InOrStdin(), out, rt.Orchestrator(), id)
		},
	}
}

// chatLoop reads one message per line until EOF, /quit or ctx is done.
func chatLoop(ctx context.Context, in io.Reader, out io.Writer, conv conversation, id string) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		if ctx.Err() != nil {
			return nil
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/reset":
			if err := conv.ResetSession(ctx, id); err != nil {
				fmt.Fprintf(os.Stderr, "reset failed: %v\n", err)
				continue
			}
			fmt.Fprintln(out, "Conversation réinitialisée.")
			continue
		}
		reply := conv.RunTurn(ctx, id, line)
		fmt.Fprintln(out, reply.Text)
		if verbose {
			fmt.Fprintf(os.Stderr, "[turn %s, %s, memory %s]\n", reply.TurnID, reply.Duration.Round(time.Millisecond), reply.Backend)
		}
	}
}
