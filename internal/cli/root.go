// Package cli implements the gateway's command-line interface using Cobra.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "gatewayd",
	Short: "gatewayd — MCP gateway and chat-stream orchestrator",
	Long: `gatewayd supervises local MCP servers behind a single HTTP proxy and
bridges a streaming local model to their tools over a typed SSE protocol.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. Called from main.go.
func Execute(version string) {
	rootCmd.Version = version

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
