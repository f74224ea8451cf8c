// Package main is the entry point for the versailles assistant CLI.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/szaher/versailles/internal/runtime"
)

// Version information set at build time.
var version = "0.1.0"

const defaultConfigFile = "versailles.yaml"

// Global flags.
var (
	configPath string
	verbose    bool
	sessionID  string
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "versailles",
		Short: "Conversational assistant for visiting the Château de Versailles",
		Long: `versailles answers questions about a visit to the Château de Versailles:
schedules, weather, routes, tickets, trains and lodging. Conversations are
kept per session, in Redis when it is reachable and in process memory
otherwise.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to the YAML configuration (default ./"+defaultConfigFile+" when present)")
	root.PersistentFlags().BoolVar(&verbose, "verbose", false, "Enable debug logging")
	root.PersistentFlags().StringVar(&sessionID, "session", "", "Session id (a new one is generated when empty)")

	root.AddCommand(newChatCmd())
	root.AddCommand(newAskCmd())
	root.AddCommand(newResetCmd())
	root.AddCommand(newServeCmd())
	root.AddCommand(newMCPCmd())
	root.AddCommand(newVersionCmd())

	return root
}

func main() {
	runtime.Version = version
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
