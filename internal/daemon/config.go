// Package daemon manages the GridMesh node lifecycle and configuration.
package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/BurntSushi/toml"
)

// Config holds all node configuration.
type Config struct {
	Node      NodeConfig      `toml:"node"`
	API       APIConfig       `toml:"api"`
	Market    MarketConfig    `toml:"market"`
	Trust     TrustConfig     `toml:"trust"`
	Payment   PaymentConfig   `toml:"payment"`
	Telemetry TelemetryConfig `toml:"telemetry"`
	Logging   LoggingConfig   `toml:"logging"`
}

// NodeConfig identifies this node to its peers.
type NodeConfig struct {
	ID            string `toml:"id"`
	ListenAddress string `toml:"listen_address"`
	ListenPort    int    `toml:"listen_port"`
}

// APIConfig controls the HTTP API server.
type APIConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// MarketConfig controls marketplace coordination.
type MarketConfig struct {
	SyncInterval     string   `toml:"sync_interval"`
	CooldownWindow   string   `toml:"cooldown_window"`
	MaxResendDelay   string   `toml:"max_resend_delay"`
	Environments     []string `toml:"environments"`
	MaxResultBacklog int      `toml:"max_result_backlog"`

	EstimatedPerformance float64 `toml:"estimated_performance"`
	MaxResourceSize      int64   `toml:"max_resource_size"`
	MaxMemorySize        int64   `toml:"max_memory_size"`
	NumCores             int     `toml:"num_cores"`
}

// TrustConfig bounds trust adjustments.
type TrustConfig struct {
	Min             float64 `toml:"min"`
	Max             float64 `toml:"max"`
	Start           float64 `toml:"start"`
	DefaultModifier float64 `toml:"default_modifier"`
}

// PaymentConfig controls reward settlement.
type PaymentConfig struct {
	PriceModifier  float64 `toml:"price_modifier"`
	SettleDeadline string  `toml:"settle_deadline"`
}

// TelemetryConfig controls observability endpoints.
type TelemetryConfig struct {
	Prometheus bool `toml:"prometheus"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level string `toml:"level"`
	File  string `toml:"file"`
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig() Config {
	homeDir := gridmeshHome()
	return Config{
		Node: NodeConfig{
			ListenAddress: "0.0.0.0",
			ListenPort:    40102,
		},
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 40110,
		},
		Market: MarketConfig{
			SyncInterval:         "10s",
			CooldownWindow:       "240s",
			MaxResendDelay:       "30s",
			Environments:         []string{"default"},
			MaxResultBacklog:     256,
			EstimatedPerformance: 1.0,
			MaxResourceSize:      2 << 30,
			MaxMemorySize:        4 << 30,
			NumCores:             0, // auto = runtime.NumCPU()
		},
		Trust: TrustConfig{
			Min:             0.0,
			Max:             1.0,
			Start:           0.5,
			DefaultModifier: 0.1,
		},
		Payment: PaymentConfig{
			PriceModifier:  1.0,
			SettleDeadline: "10m",
		},
		Telemetry: TelemetryConfig{
			Prometheus: false,
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  filepath.Join(homeDir, "gridmesh.log"),
		},
	}
}

// LoadConfig reads config from $GRIDMESH_HOME/config.toml, falling back
// to defaults.
func LoadConfig() (Config, error) {
	cfg := DefaultConfig()
	path := filepath.Join(gridmeshHome(), "config.toml")

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil // No config file yet — use defaults
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}

	// Apply auto-detection
	if cfg.Market.NumCores == 0 {
		cfg.Market.NumCores = runtime.NumCPU()
	}

	return cfg, nil
}

// SaveConfig writes the config to $GRIDMESH_HOME/config.toml.
func SaveConfig(cfg Config) error {
	path := filepath.Join(gridmeshHome(), "config.toml")
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	encoder := toml.NewEncoder(f)
	return encoder.Encode(cfg)
}

// gridmeshHome returns the GridMesh data directory.
func gridmeshHome() string {
	if env := os.Getenv("GRIDMESH_HOME"); env != "" {
		return env
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".gridmesh")
}

// GridmeshHome is exported for use by other packages.
func GridmeshHome() string {
	return gridmeshHome()
}

// parseDuration parses a duration string, returning a fallback on
// error.
func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
