package cli

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"github.com/gridmesh-network/gridmesh/internal/daemon"
)

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(configCmd)
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect or initialize node configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration as TOML",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := daemon.LoadConfig()
		if err != nil {
			return err
		}
		return toml.NewEncoder(os.Stdout).Encode(cfg)
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default configuration to $GRIDMESH_HOME/config.toml",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := daemon.SaveConfig(daemon.DefaultConfig()); err != nil {
			return err
		}
		fmt.Printf("Wrote %s/config.toml\n", daemon.GridmeshHome())
		return nil
	},
}
