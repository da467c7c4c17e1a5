// Package config handles trstatus configuration loading.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// MQTT protocol levels accepted by [MQTTConfig.Protocol].
const (
	ProtocolV311 = "3.1.1"
	ProtocolV5   = "5"
)

// Payload formats accepted by [MQTTConfig.PayloadFormat].
const (
	PayloadCompact = "compact"
	PayloadPretty  = "pretty"
)

// Defaults applied by [Default] and by Load for unset fields.
const (
	DefaultBroker            = "tcp://localhost:1883"
	DefaultClientID          = "tr-status"
	DefaultKeepAliveSec      = 30
	DefaultConnectTimeoutSec = 30
	DefaultReconnectInitial  = 10
	DefaultReconnectMax      = 40
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./config.yaml, ~/.config/trstatus/config.yaml, /etc/trstatus/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "trstatus", "config.yaml"))
	}

	paths = append(paths, "/etc/trstatus/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
// Returns the path found, or an error if nothing was found.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all trstatus configuration.
type Config struct {
	MQTT      MQTTConfig   `yaml:"mqtt"`
	Listen    ListenConfig `yaml:"listen"`
	DataDir   string       `yaml:"data_dir"`
	LogLevel  string       `yaml:"log_level"`
	LogFormat string       `yaml:"log_format"`
}

// MQTTConfig defines the broker connection and publish settings.
type MQTTConfig struct {
	// Broker is the broker URL. tcp://, mqtt:// and ws:// connect in the
	// clear; ssl://, tls://, mqtts:// and wss:// request TLS.
	Broker string `yaml:"broker"`
	// Topic is the base topic; each message type is published below it.
	Topic    string `yaml:"topic"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	ClientID string `yaml:"client_id"`
	// UniqueClientID appends the persisted instance ID to ClientID so
	// several bridges can share one broker.
	UniqueClientID bool `yaml:"unique_client_id"`
	// Protocol selects the MQTT protocol level: "3.1.1" (default) or "5".
	Protocol          string `yaml:"protocol"`
	KeepAliveSec      int    `yaml:"keepalive_sec"`
	ConnectTimeoutSec int    `yaml:"connect_timeout_sec"`
	// PayloadFormat is "compact" (default) or "pretty".
	PayloadFormat string          `yaml:"payload_format"`
	Reconnect     ReconnectConfig `yaml:"reconnect"`
}

// ReconnectConfig bounds the automatic reconnect backoff.
type ReconnectConfig struct {
	InitialSec int `yaml:"initial_sec"`
	MaxSec     int `yaml:"max_sec"`
}

// ListenConfig defines the local status API. Port 0 disables it.
type ListenConfig struct {
	Address string `yaml:"address"` // Bind address (default: "" = all interfaces)
	Port    int    `yaml:"port"`
}

// Credentials reports whether both username and password are set. The
// broker only receives credentials when this is true.
func (c MQTTConfig) Credentials() bool {
	return c.Username != "" && c.Password != ""
}

// TLS reports whether the broker scheme asks for an encrypted transport.
func (c MQTTConfig) TLS() bool {
	u, err := url.Parse(c.Broker)
	if err != nil {
		return false
	}
	switch u.Scheme {
	case "ssl", "tls", "mqtts", "wss":
		return true
	}
	return false
}

// ValidateBroker checks that broker parses as a URL with a scheme one of
// the transports can dial.
func ValidateBroker(broker string) error {
	u, err := url.Parse(broker)
	if err != nil {
		return fmt.Errorf("mqtt.broker %q: %w", broker, err)
	}
	switch u.Scheme {
	case "tcp", "mqtt", "ws", "ssl", "tls", "mqtts", "wss":
		return nil
	}
	return fmt.Errorf("mqtt.broker %q: unsupported scheme %q", broker, u.Scheme)
}

// ApplyKeyValues overlays the plugin-style key/value settings (broker,
// topic, username, password) on c. Unknown keys are ignored. A broker
// that fails [ValidateBroker] is not applied and its error is returned;
// the other keys still are.
func (c *MQTTConfig) ApplyKeyValues(kv map[string]string) error {
	var brokerErr error
	if v, ok := kv["broker"]; ok && v != "" {
		if brokerErr = ValidateBroker(v); brokerErr == nil {
			c.Broker = v
		}
	}
	if v, ok := kv["topic"]; ok {
		c.Topic = v
	}
	if v, ok := kv["username"]; ok {
		c.Username = v
	}
	if v, ok := kv["password"]; ok {
		c.Password = v
	}
	return brokerErr
}

// Load reads configuration from a YAML file, expands ${VAR} references,
// fills defaults and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a default configuration.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// DefaultMQTT returns the MQTT section with every default filled in.
func DefaultMQTT() MQTTConfig {
	return Default().MQTT
}

func (c *Config) applyDefaults() {
	m := &c.MQTT
	if m.Broker == "" {
		m.Broker = DefaultBroker
	}
	if m.ClientID == "" {
		m.ClientID = DefaultClientID
	}
	if m.Protocol == "" {
		m.Protocol = ProtocolV311
	}
	if m.KeepAliveSec <= 0 {
		m.KeepAliveSec = DefaultKeepAliveSec
	}
	if m.ConnectTimeoutSec <= 0 {
		m.ConnectTimeoutSec = DefaultConnectTimeoutSec
	}
	if m.PayloadFormat == "" {
		m.PayloadFormat = PayloadCompact
	}
	if m.Reconnect.InitialSec <= 0 {
		m.Reconnect.InitialSec = DefaultReconnectInitial
	}
	if m.Reconnect.MaxSec <= 0 {
		m.Reconnect.MaxSec = DefaultReconnectMax
	}
	if c.DataDir == "" {
		c.DataDir = "./db"
	}
	if c.LogFormat == "" {
		c.LogFormat = "text"
	}
}

// Validate checks the configuration for values the bridge cannot use.
func (c *Config) Validate() error {
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("log_format %q invalid (valid: text, json)", c.LogFormat)
	}

	if err := ValidateBroker(c.MQTT.Broker); err != nil {
		return err
	}

	switch c.MQTT.Protocol {
	case ProtocolV311, ProtocolV5:
	default:
		return fmt.Errorf("mqtt.protocol %q invalid (valid: %s, %s)", c.MQTT.Protocol, ProtocolV311, ProtocolV5)
	}
	switch strings.ToLower(c.MQTT.PayloadFormat) {
	case PayloadCompact, PayloadPretty:
	default:
		return fmt.Errorf("mqtt.payload_format %q invalid (valid: %s, %s)", c.MQTT.PayloadFormat, PayloadCompact, PayloadPretty)
	}
	if c.MQTT.Reconnect.InitialSec > c.MQTT.Reconnect.MaxSec {
		return fmt.Errorf("mqtt.reconnect.initial_sec (%d) exceeds max_sec (%d)",
			c.MQTT.Reconnect.InitialSec, c.MQTT.Reconnect.MaxSec)
	}
	if c.Listen.Port < 0 || c.Listen.Port > 65535 {
		return fmt.Errorf("listen.port %d out of range", c.Listen.Port)
	}
	return nil
}
