package config

import (
	"fmt"
	"strconv"
	"time"
)

// Config is the root configuration structure
type Config struct {
	Version  int            `yaml:"version"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	HTTP     HTTPConfig     `yaml:"http"`
	Topology TopologyConfig `yaml:"topology"`
	Layout   LayoutConfig   `yaml:"layout"`
	Probe    ProbeConfig    `yaml:"probe"`
	Mesh     MeshConfig     `yaml:"mesh"`
}

// MQTTConfig holds broker settings
type MQTTConfig struct {
	Broker         string   `yaml:"broker"`
	ClientID       string   `yaml:"client_id,omitempty"` // empty = generated per run
	InfoTopic      string   `yaml:"info_topic"`
	CommandTopic   string   `yaml:"command_topic"`
	QoS            int      `yaml:"qos"`
	ConnectTimeout Duration `yaml:"connect_timeout"`
}

// HTTPConfig holds API server settings
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// TopologyConfig controls liveness and the update cycle
type TopologyConfig struct {
	NodeTimeout  *Duration `yaml:"node_timeout"` // 0 disables eviction
	TickInterval Duration  `yaml:"tick_interval"`
}

// LayoutConfig holds the grid spacing
type LayoutConfig struct {
	SpacingX float64 `yaml:"spacing_x"`
	SpacingY float64 `yaml:"spacing_y"`
}

// ProbeConfig controls latency probes
type ProbeConfig struct {
	PendingTTL   *Duration `yaml:"pending_ttl"` // 0 keeps unanswered probes forever
	ClearOnEvict bool      `yaml:"clear_on_evict"`
}

// MeshConfig holds the defaults offered for a config push
type MeshConfig struct {
	IntervalMS  int `yaml:"interval_ms"`
	MaxChildren int `yaml:"max_children"`
}

// Timeout returns the eviction timeout
func (t TopologyConfig) Timeout() time.Duration {
	if t.NodeTimeout == nil {
		return DefaultNodeTimeout
	}
	return t.NodeTimeout.Duration()
}

// TTL returns how long an unanswered probe is kept
func (p ProbeConfig) TTL() time.Duration {
	if p.PendingTTL == nil {
		return DefaultPendingTTL
	}
	return p.PendingTTL.Duration()
}

// Duration wraps time.Duration for YAML unmarshaling. A bare integer is
// read as seconds.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// ParseDuration accepts Go duration strings and bare seconds
func ParseDuration(s string) (time.Duration, error) {
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}
	secs, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	return time.Duration(secs * float64(time.Second)), nil
}
