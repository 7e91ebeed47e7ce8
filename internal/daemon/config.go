// Package daemon wires the gateway's collaborators together and manages
// its lifecycle and configuration.
package daemon

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config holds all gateway configuration.
type Config struct {
	Node      NodeConfig      `toml:"node"`
	API       APIConfig       `toml:"api"`
	Gateway   GatewayConfig   `toml:"gateway"`
	Sidecar   SidecarConfig   `toml:"sidecar"`
	Logging   LoggingConfig   `toml:"logging"`
	Telemetry TelemetryConfig `toml:"telemetry"`
}

// NodeConfig identifies this process.
type NodeConfig struct {
	ID string `toml:"id"`
}

// APIConfig controls the gateway's own HTTP surface.
type APIConfig struct {
	Host        string   `toml:"host"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
}

// GatewayConfig controls MCP server supervision.
type GatewayConfig struct {
	ContainerRuntime    string   `toml:"container_runtime"`
	MaxOrchestrations   int      `toml:"max_orchestrations"`
	HealthCheckInterval string   `toml:"health_check_interval"`
	ProxyAllowlist      []string `toml:"proxy_allowlist"`
	ResponseBufferSize  int      `toml:"response_buffer_size"`
}

// SidecarConfig points at the colocated inference sidecar.
type SidecarConfig struct {
	OllamaHost string `toml:"ollama_host"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level     string `toml:"level"`
	File      string `toml:"file"`
	MaxSizeMB int    `toml:"max_size_mb"`
	MaxFiles  int    `toml:"max_files"`
}

// TelemetryConfig controls observability.
type TelemetryConfig struct {
	Prometheus     bool `toml:"prometheus"`
	PrometheusPort int  `toml:"prometheus_port"`
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig() Config {
	homeDir := gatewayHome()
	return Config{
		API: APIConfig{
			Host:        "127.0.0.1",
			Port:        8765,
			CORSOrigins: []string{"*"},
		},
		Gateway: GatewayConfig{
			ContainerRuntime:    "docker",
			MaxOrchestrations:   10,
			HealthCheckInterval: "30s",
			ProxyAllowlist:      []string{"localhost", "127.0.0.1", "::1"},
			ResponseBufferSize:  1000,
		},
		Sidecar: SidecarConfig{
			OllamaHost: "http://127.0.0.1:11434",
		},
		Logging: LoggingConfig{
			Level:     "info",
			File:      filepath.Join(homeDir, "gateway.log"),
			MaxSizeMB: 50,
			MaxFiles:  5,
		},
		Telemetry: TelemetryConfig{
			Prometheus:     false, // opt-in: expose /metrics
			PrometheusPort: 9090,
		},
	}
}

// LoadConfig reads config from $TUTUD_HOME/config.toml, falling back to
// defaults, then applies environment variable overrides.
func LoadConfig() (Config, error) {
	cfg := DefaultConfig()
	path := filepath.Join(gatewayHome(), "config.toml")

	if _, err := os.Stat(path); os.IsNotExist(err) {
		applyEnvOverrides(&cfg)
		return cfg, nil
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}

	applyEnvOverrides(&cfg)
	return cfg, nil
}

// applyEnvOverrides lets OLLAMA_HOST and TUTUD_CONTAINER_RUNTIME override
// whatever the config file set (TUTUD_HOME is read by gatewayHome), matching
// the reference codebase's env-wins-over-file convention.
func applyEnvOverrides(cfg *Config) {
	if host := os.Getenv("OLLAMA_HOST"); host != "" {
		cfg.Sidecar.OllamaHost = host
	}
	if runtime := os.Getenv("TUTUD_CONTAINER_RUNTIME"); runtime != "" {
		cfg.Gateway.ContainerRuntime = runtime
	}
}

// SaveConfig writes the config to $TUTUD_HOME/config.toml.
func SaveConfig(cfg Config) error {
	path := filepath.Join(gatewayHome(), "config.toml")
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
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

// gatewayHome returns the gateway's data directory.
func gatewayHome() string {
	if env := os.Getenv("TUTUD_HOME"); env != "" {
		return env
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".tutud")
}

// GatewayHome is exported for use by other packages.
func GatewayHome() string {
	return gatewayHome()
}
