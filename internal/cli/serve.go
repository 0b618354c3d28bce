package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/gridmesh-network/gridmesh/internal/daemon"
)

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "", "API host to listen on (overrides config)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "API port to listen on (overrides config)")
	serveCmd.Flags().IntVar(&servePeerPort, "peer-port", 0, "Peer protocol port (overrides config)")
	rootCmd.AddCommand(serveCmd)
}

var (
	serveHost     string
	servePort     int
	servePeerPort int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the GridMesh node",
	Long:  `Start the marketplace node: peer protocol listener, sync loop, and local HTTP API.`,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := daemon.LoadConfig()
	if err != nil {
		return err
	}

	// Override config from flags
	if serveHost != "" {
		cfg.API.Host = serveHost
	}
	if servePort > 0 {
		cfg.API.Port = servePort
	}
	if servePeerPort > 0 {
		cfg.Node.ListenPort = servePeerPort
	}

	d, err := daemon.NewWithConfig(cfg)
	if err != nil {
		return err
	}

	return d.Serve(context.Background())
}
