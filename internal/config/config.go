// Package config provides configuration management for meshview.
//
// Config file locations (priority order):
//  1. the --config flag, then $MESHVIEW_CONFIG (must exist)
//  2. ./meshview.yaml
//  3. $XDG_CONFIG_HOME/meshview/config.yaml
//  4. ~/.config/meshview/config.yaml
//  5. /etc/meshview/config.yaml
//
// A .env file in the working directory is loaded first, so it may set
// MESHVIEW_CONFIG as well as the overrides. MESHVIEW_BROKER,
// MESHVIEW_HTTP_ADDR and MESHVIEW_NODE_TIMEOUT override the file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is returned by Validate
var ErrInvalidConfig = errors.New("invalid config")

// Environment overrides
const (
	EnvBroker      = "MESHVIEW_BROKER"
	EnvHTTPAddr    = "MESHVIEW_HTTP_ADDR"
	EnvNodeTimeout = "MESHVIEW_NODE_TIMEOUT"
)

// Defaults
const (
	DefaultBroker       = "tcp://localhost:1884"
	DefaultInfoTopic    = "mesh/network/info"
	DefaultCommandTopic = "mesh/cmd"
	DefaultHTTPAddr     = ":3000"
	DefaultNodeTimeout  = 10 * time.Second
	DefaultTickInterval = time.Second
	DefaultPendingTTL   = 30 * time.Second
	DefaultSpacingX     = 2.5
	DefaultSpacingY     = 1.5
	DefaultIntervalMS   = 5000
	DefaultMaxChildren  = 2
)

// Load loads .env, resolves the config file with FindConfigPath(explicit)
// and reads it. Defaults are returned, with an empty path, when nothing was
// named and nothing was found.
func Load(explicit string) (*Config, string, error) {
	if err := LoadDotEnv(".env"); err != nil {
		return nil, "", err
	}

	path, err := FindConfigPath(explicit)
	if err != nil {
		return nil, explicit, err
	}
	if path == "" {
		cfg := DefaultConfig()
		if err := cfg.finish(); err != nil {
			return nil, "", err
		}
		return cfg, "", nil
	}

	return LoadFromPath(path)
}

// LoadFromPath loads config from a specific path
func LoadFromPath(path string) (*Config, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, path, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, path, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.finish(); err != nil {
		return nil, path, err
	}
	return &cfg, path, nil
}

// LoadDotEnv loads variables from path without overriding ones already
// set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Save writes config to the specified path
func (c *Config) Save(path string) error {
	if err := EnsureConfigDir(path); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0644)
}

// DefaultConfig returns sensible defaults for a new installation
func DefaultConfig() *Config {
	timeout := Duration(DefaultNodeTimeout)
	ttl := Duration(DefaultPendingTTL)
	return &Config{
		Version: 1,
		MQTT: MQTTConfig{
			Broker:         DefaultBroker,
			InfoTopic:      DefaultInfoTopic,
			CommandTopic:   DefaultCommandTopic,
			ConnectTimeout: Duration(5 * time.Second),
		},
		HTTP: HTTPConfig{Addr: DefaultHTTPAddr},
		Topology: TopologyConfig{
			NodeTimeout:  &timeout,
			TickInterval: Duration(DefaultTickInterval),
		},
		Layout: LayoutConfig{SpacingX: DefaultSpacingX, SpacingY: DefaultSpacingY},
		Probe:  ProbeConfig{PendingTTL: &ttl},
		Mesh:   MeshConfig{IntervalMS: DefaultIntervalMS, MaxChildren: DefaultMaxChildren},
	}
}

func (c *Config) finish() error {
	c.applyDefaults()
	if err := c.applyEnv(); err != nil {
		return err
	}
	return c.Validate()
}

// applyDefaults fills in missing values with defaults
func (c *Config) applyDefaults() {
	if c.Version == 0 {
		c.Version = 1
	}
	if c.MQTT.Broker == "" {
		c.MQTT.Broker = DefaultBroker
	}
	if c.MQTT.InfoTopic == "" {
		c.MQTT.InfoTopic = DefaultInfoTopic
	}
	if c.MQTT.CommandTopic == "" {
		c.MQTT.CommandTopic = DefaultCommandTopic
	}
	if c.MQTT.ConnectTimeout == 0 {
		c.MQTT.ConnectTimeout = Duration(5 * time.Second)
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = DefaultHTTPAddr
	}
	if c.Topology.NodeTimeout == nil {
		d := Duration(DefaultNodeTimeout)
		c.Topology.NodeTimeout = &d
	}
	if c.Topology.TickInterval == 0 {
		c.Topology.TickInterval = Duration(DefaultTickInterval)
	}
	if c.Layout.SpacingX == 0 {
		c.Layout.SpacingX = DefaultSpacingX
	}
	if c.Layout.SpacingY == 0 {
		c.Layout.SpacingY = DefaultSpacingY
	}
	if c.Probe.PendingTTL == nil {
		d := Duration(DefaultPendingTTL)
		c.Probe.PendingTTL = &d
	}
	if c.Mesh.IntervalMS == 0 {
		c.Mesh.IntervalMS = DefaultIntervalMS
	}
	if c.Mesh.MaxChildren == 0 {
		c.Mesh.MaxChildren = DefaultMaxChildren
	}
}

func (c *Config) applyEnv() error {
	if v := os.Getenv(EnvBroker); v != "" {
		c.MQTT.Broker = v
	}
	if v := os.Getenv(EnvHTTPAddr); v != "" {
		c.HTTP.Addr = v
	}
	if v := os.Getenv(EnvNodeTimeout); v != "" {
		d, err := ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvNodeTimeout, err)
		}
		nt := Duration(d)
		c.Topology.NodeTimeout = &nt
	}
	return nil
}

// Validate rejects values the runtime cannot use
func (c *Config) Validate() error {
	switch {
	case c.Topology.Timeout() < 0:
		return fmt.Errorf("%w: topology.node_timeout must not be negative", ErrInvalidConfig)
	case c.Topology.TickInterval.Duration() <= 0:
		return fmt.Errorf("%w: topology.tick_interval must be positive", ErrInvalidConfig)
	case c.Probe.TTL() < 0:
		return fmt.Errorf("%w: probe.pending_ttl must not be negative", ErrInvalidConfig)
	case c.Layout.SpacingX <= 0 || c.Layout.SpacingY <= 0:
		return fmt.Errorf("%w: layout spacing must be positive", ErrInvalidConfig)
	case c.MQTT.QoS < 0 || c.MQTT.QoS > 2:
		return fmt.Errorf("%w: mqtt.qos must be 0, 1 or 2", ErrInvalidConfig)
	case c.Mesh.IntervalMS <= 0 || c.Mesh.MaxChildren <= 0:
		return fmt.Errorf("%w: mesh.interval_ms and mesh.max_children must be positive", ErrInvalidConfig)
	}
	return nil
}

// Summary returns a human-readable config summary
func (c *Config) Summary() string {
	return fmt.Sprintf("Broker: %s (%s -> %s), HTTP: %s, Node timeout: %s, Tick: %s",
		c.MQTT.Broker, c.MQTT.InfoTopic, c.MQTT.CommandTopic, c.HTTP.Addr,
		c.Topology.Timeout(), c.Topology.TickInterval.Duration())
}
