// Package config provides configuration loading and validation for the relay.
// Supports YAML and TOML files with environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// EnvConfigPath names the variable Load reads the config file path from.
const EnvConfigPath = "MOQ_RELAY_CONFIG"

// Config holds all configuration for a relay node.
type Config struct {
	ClusterID     string              `yaml:"clusterId" toml:"cluster_id" env:"MOQ_CLUSTER_ID"`
	Relay         RelayConfig         `yaml:"relay" toml:"relay"`
	Cluster       ClusterConfig       `yaml:"cluster" toml:"cluster"`
	Metadata      MetadataConfig      `yaml:"metadata" toml:"metadata"`
	Observability ObservabilityConfig `yaml:"observability" toml:"observability"`
}

type RelayConfig struct {
	ListenAddr string `yaml:"listenAddr" toml:"listen_addr" env:"MOQ_LISTEN_ADDR"`
	// AdvertiseAddr is what peers dial to reach this node. Defaults to
	// ListenAddr.
	AdvertiseAddr string `yaml:"advertiseAddr" toml:"advertise_addr" env:"MOQ_ADVERTISE_ADDR"`
	// NodeID is generated at startup when empty.
	NodeID string `yaml:"nodeId" toml:"node_id" env:"MOQ_NODE_ID"`
}

type ClusterConfig struct {
	Enabled bool `yaml:"enabled" toml:"enabled" env:"MOQ_CLUSTER_ENABLED"`
}

type MetadataConfig struct {
	OxiaEndpoint     string `yaml:"oxiaEndpoint" toml:"oxia_endpoint" env:"MOQ_OXIA_ENDPOINT"`
	Namespace        string `yaml:"namespace" toml:"namespace" env:"MOQ_OXIA_NAMESPACE"`
	RequestTimeoutMs int64  `yaml:"requestTimeoutMs" toml:"request_timeout_ms" env:"MOQ_OXIA_REQUEST_TIMEOUT_MS"`
	SessionTimeoutMs int64  `yaml:"sessionTimeoutMs" toml:"session_timeout_ms" env:"MOQ_OXIA_SESSION_TIMEOUT_MS"`
}

type ObservabilityConfig struct {
	MetricsAddr string `yaml:"metricsAddr" toml:"metrics_addr" env:"MOQ_METRICS_ADDR"`
	HealthAddr  string `yaml:"healthAddr" toml:"health_addr" env:"MOQ_HEALTH_ADDR"`
	LogLevel    string `yaml:"logLevel" toml:"log_level" env:"MOQ_LOG_LEVEL"`
	LogFormat   string `yaml:"logFormat" toml:"log_format" env:"MOQ_LOG_FORMAT"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		ClusterID: "default",
		Relay: RelayConfig{
			ListenAddr: ":4443",
		},
		Cluster: ClusterConfig{
			Enabled: false,
		},
		Metadata: MetadataConfig{
			OxiaEndpoint:     "localhost:6648",
			Namespace:        "moq",
			RequestTimeoutMs: 30000,
			SessionTimeoutMs: 15000,
		},
		Observability: ObservabilityConfig{
			MetricsAddr: ":9090",
			HealthAddr:  ":9091",
			LogLevel:    "info",
			LogFormat:   "json",
		},
	}
}

// Load reads the file named by MOQ_RELAY_CONFIG, or starts from the
// defaults when it is unset, then applies environment overrides.
func Load() (*Config, error) {
	if path := os.Getenv(EnvConfigPath); path != "" {
		return LoadFromPath(path)
	}
	cfg := Default()
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromPath overlays a config file on the defaults. Files ending in
// .toml are decoded as TOML, anything else as YAML. Environment overrides
// are applied after the file.
func LoadFromPath(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	cfg := Default()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, fmt.Errorf("config: decode toml %s: %w", path, err)
		}
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: decode yaml %s: %w", path, err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the config for values the relay cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Relay.ListenAddr) == "" {
		errs = append(errs, errors.New("relay.listenAddr is required"))
	}
	if c.Cluster.Enabled {
		if strings.TrimSpace(c.ClusterID) == "" {
			errs = append(errs, errors.New("clusterId is required when clustering is enabled"))
		}
		if strings.TrimSpace(c.Metadata.OxiaEndpoint) == "" {
			errs = append(errs, errors.New("metadata.oxiaEndpoint is required when clustering is enabled"))
		}
		if strings.TrimSpace(c.Metadata.Namespace) == "" {
			errs = append(errs, errors.New("metadata.namespace is required when clustering is enabled"))
		}
	}
	if c.Metadata.RequestTimeoutMs < 0 {
		errs = append(errs, errors.New("metadata.requestTimeoutMs must not be negative"))
	}
	if c.Metadata.SessionTimeoutMs < 0 {
		errs = append(errs, errors.New("metadata.sessionTimeoutMs must not be negative"))
	}
	switch strings.ToLower(c.Observability.LogFormat) {
	case "", "json", "text":
	default:
		errs = append(errs, fmt.Errorf("observability.logFormat %q is not json or text", c.Observability.LogFormat))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: invalid: %w", err)
	}
	return nil
}

// AdvertiseAddr returns the address peers should dial.
func (c *Config) AdvertiseAddr() string {
	if c.Relay.AdvertiseAddr != "" {
		return c.Relay.AdvertiseAddr
	}
	return c.Relay.ListenAddr
}

// RequestTimeout returns the metadata request timeout.
func (m MetadataConfig) RequestTimeout() time.Duration {
	return time.Duration(m.RequestTimeoutMs) * time.Millisecond
}

// SessionTimeout returns the metadata session timeout.
func (m MetadataConfig) SessionTimeout() time.Duration {
	return time.Duration(m.SessionTimeoutMs) * time.Millisecond
}
