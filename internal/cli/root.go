// Package cli implements the GridMesh command-line interface using
// Cobra. Subcommands either run the node (serve) or query a running
// node over its local HTTP API.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "gridmesh",
	Short: "GridMesh — decentralized computation marketplace node",
	Long: `GridMesh is a node in a decentralized computation marketplace.
It advertises tasks, requests work from peers, delivers computed
results, and keeps a bounded trust score per peer.`,
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
