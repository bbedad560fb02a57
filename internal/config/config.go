// Package config loads the broker's startup configuration from a YAML file,
// covering network ports, QoS tunables, and an optional credential store
// path.
package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root of config.yml.
type Config struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
	Server  Server `yaml:"server"`
	Broker  Broker `yaml:"broker"`
	Auth    Auth   `yaml:"auth"`
}

// Server holds listener addresses.
type Server struct {
	MQTTPort string `yaml:"mqtt_port"`
	HTTPPort string `yaml:"http_port"`
	WifiSSID string `yaml:"wifi_ssid"`
	WifiIP   string `yaml:"wifi_ip"`
}

// Broker holds protocol engine tunables.
type Broker struct {
	MessageLogCapacity int `yaml:"message_log_capacity"`
	QoSTimeoutMs       int `yaml:"qos_timeout_ms"`
	MaxQoSRetries      int `yaml:"max_qos_retries"`
	MaxSessions        int `yaml:"max_sessions"`
}

// Auth holds optional credential-store settings. StorePath left empty
// disables the credential store; CONNECT username/password is then accepted
// without verification.
type Auth struct {
	StorePath string `yaml:"store_path"`
}

// QoSTimeout converts Broker.QoSTimeoutMs to a time.Duration, defaulting to
// 5 seconds when unset.
func (b Broker) QoSTimeout() time.Duration {
	if b.QoSTimeoutMs <= 0 {
		return 5000 * time.Millisecond
	}
	return time.Duration(b.QoSTimeoutMs) * time.Millisecond
}

// Load reads and parses a YAML config file at path, filling in defaults for
// any broker tunable left at its zero value.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.MQTTPort == "" {
		cfg.Server.MQTTPort = "1883"
	}
	if cfg.Server.HTTPPort == "" {
		cfg.Server.HTTPPort = "8080"
	}
	if cfg.Broker.MessageLogCapacity <= 0 {
		cfg.Broker.MessageLogCapacity = 50
	}
	if cfg.Broker.QoSTimeoutMs <= 0 {
		cfg.Broker.QoSTimeoutMs = 5000
	}
	if cfg.Broker.MaxQoSRetries <= 0 {
		cfg.Broker.MaxQoSRetries = 3
	}
	if cfg.Broker.MaxSessions <= 0 {
		cfg.Broker.MaxSessions = 1000
	}
}
