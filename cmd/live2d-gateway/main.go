package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "live2d-gateway",
		Short: "WebSocket gateway for Live2D desktop avatar clients",
		Long: `live2d-gateway bridges a chat backend to a Live2D desktop avatar
over a persistent WebSocket connection.

It accepts avatar client connections, compiles assistant replies into
timed performance sequences (text, speech, motions, expressions), and
serves media resources over a two-phase upload HTTP endpoint.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		serveCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
