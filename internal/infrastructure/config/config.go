package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is the configuration file used when no path is given.
const DefaultPath = "/etc/astroconsole/astroconsole.json"

// Config is the root configuration structure for astroconsole.
// The file is JSON; it is decoded with the YAML decoder, which accepts JSON documents.
// Unknown top-level keys (such as the persisted UI layout) are ignored here.
type Config struct {
	WebUI     WebUIConfig     `yaml:"webui"`
	Proxy     ListenConfig    `yaml:"proxy"`
	INDI      INDIConfig      `yaml:"indi"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Logging   LoggingConfig   `yaml:"logging"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Database  DatabaseConfig  `yaml:"database"`
}

// ListenConfig is a host/port pair for a listening socket.
type ListenConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Address returns the host:port form of the listener.
func (l ListenConfig) Address() string {
	return fmt.Sprintf("%s:%d", l.Host, l.Port)
}

// WebUIConfig contains the static web UI server settings.
type WebUIConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	Root string `yaml:"root"`
}

// Address returns the host:port form of the web UI listener.
func (w WebUIConfig) Address() string {
	return fmt.Sprintf("%s:%d", w.Host, w.Port)
}

// INDIConfig contains the upstream INDI server settings.
type INDIConfig struct {
	Host              string           `yaml:"host"`
	Port              int              `yaml:"port"`
	ReconnectInterval int              `yaml:"reconnect_interval"`
	ConnectTimeout    int              `yaml:"connect_timeout"`
	MaxElementSize    int              `yaml:"max_element_size"`
	Server            INDIServerConfig `yaml:"server"`
}

// Address returns the host:port of the upstream INDI server.
func (c INDIConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// INDIServerConfig describes an optional indiserver process managed by the gateway.
type INDIServerConfig struct {
	Enabled      bool     `yaml:"enabled"`
	Binary       string   `yaml:"binary"`
	Drivers      []string `yaml:"drivers"`
	RestartDelay int      `yaml:"restart_delay"`
}

// WebSocketConfig contains client session settings.
type WebSocketConfig struct {
	MaxMessageSize int `yaml:"max_message_size"`
	PingInterval   int `yaml:"ping_interval"`
	PongTimeout    int `yaml:"pong_timeout"`
	SendBuffer     int `yaml:"send_buffer"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled     bool             `yaml:"enabled"`
	Broker      MQTTBrokerConfig `yaml:"broker"`
	QoS         int              `yaml:"qos"`
	TopicPrefix string           `yaml:"topic_prefix"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// DatabaseConfig contains SQLite settings for the command audit log.
type DatabaseConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// Load reads configuration from the given file path.
//
// A missing file is not an error: the built-in defaults are used. Environment
// overrides are applied after the file, then the result is validated.
//
// Parameters:
//   - path: Path to the JSON configuration file
//
// Returns:
//   - *Config: Loaded configuration
//   - error: If the file cannot be read or parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		// defaults only
	case err != nil:
		return nil, fmt.Errorf("reading config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		WebUI: WebUIConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Root: "www",
		},
		Proxy: ListenConfig{
			Host: "0.0.0.0",
			Port: 7626,
		},
		INDI: INDIConfig{
			Host:              "127.0.0.1",
			Port:              7624,
			ReconnectInterval: 10,
			ConnectTimeout:    5,
			MaxElementSize:    16 << 20,
			Server: INDIServerConfig{
				Binary:       "indiserver",
				RestartDelay: 5,
			},
		},
		WebSocket: WebSocketConfig{
			MaxMessageSize: 65536,
			PingInterval:   30,
			PongTimeout:    10,
			SendBuffer:     256,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "astroconsole",
			},
			QoS:         1,
			TopicPrefix: "astroconsole",
		},
		InfluxDB: InfluxDBConfig{
			URL:           "http://localhost:8086",
			Org:           "astroconsole",
			Bucket:        "indi",
			BatchSize:     100,
			FlushInterval: 10,
		},
		Database: DatabaseConfig{
			Path:        "./data/astroconsole.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
	}
}

// applyEnvOverrides applies ASTROCONSOLE_* environment variables to the configuration.
// Malformed numeric values are ignored.
func applyEnvOverrides(cfg *Config) {
	// INDI
	if v := os.Getenv("ASTROCONSOLE_INDI_HOST"); v != "" {
		cfg.INDI.Host = v
	}
	envInt("ASTROCONSOLE_INDI_PORT", &cfg.INDI.Port)

	// Listeners
	if v := os.Getenv("ASTROCONSOLE_PROXY_HOST"); v != "" {
		cfg.Proxy.Host = v
	}
	envInt("ASTROCONSOLE_PROXY_PORT", &cfg.Proxy.Port)
	if v := os.Getenv("ASTROCONSOLE_WEBUI_HOST"); v != "" {
		cfg.WebUI.Host = v
	}
	envInt("ASTROCONSOLE_WEBUI_PORT", &cfg.WebUI.Port)
	if v := os.Getenv("ASTROCONSOLE_WEBUI_ROOT"); v != "" {
		cfg.WebUI.Root = v
	}

	// Logging
	if v := os.Getenv("ASTROCONSOLE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	// MQTT
	if v := os.Getenv("ASTROCONSOLE_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("ASTROCONSOLE_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Broker.Username = v
	}
	if v := os.Getenv("ASTROCONSOLE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Broker.Password = v
	}

	// InfluxDB
	if v := os.Getenv("ASTROCONSOLE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Database
	if v := os.Getenv("ASTROCONSOLE_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
}

func envInt(name string, dst *int) {
	v := os.Getenv(name)
	if v == "" {
		return
	}
	if n, err := strconv.Atoi(v); err == nil {
		*dst = n
	}
}

// Validate checks the configuration for required fields and valid values.
// All problems are reported together.
func (c *Config) Validate() error {
	var errs []string

	checkPort := func(name string, port int) {
		if port < 1 || port > 65535 {
			errs = append(errs, name+" must be between 1 and 65535")
		}
	}
	checkPort("webui.port", c.WebUI.Port)
	checkPort("proxy.port", c.Proxy.Port)
	checkPort("indi.port", c.INDI.Port)

	if c.INDI.Host == "" {
		errs = append(errs, "indi.host is required")
	}
	if c.INDI.ReconnectInterval <= 0 {
		errs = append(errs, "indi.reconnect_interval must be positive")
	}
	if c.INDI.MaxElementSize <= 0 {
		errs = append(errs, "indi.max_element_size must be positive")
	}
	if c.INDI.Server.Enabled && c.INDI.Server.Binary == "" {
		errs = append(errs, "indi.server.binary is required when indi.server.enabled is set")
	}

	if c.WebSocket.SendBuffer <= 0 {
		errs = append(errs, "websocket.send_buffer must be positive")
	}
	if c.WebSocket.PingInterval <= 0 || c.WebSocket.PongTimeout <= 0 {
		errs = append(errs, "websocket.ping_interval and websocket.pong_timeout must be positive")
	}

	if c.MQTT.Enabled {
		if c.MQTT.Broker.Host == "" {
			errs = append(errs, "mqtt.broker.host is required when mqtt is enabled")
		}
		checkPort("mqtt.broker.port", c.MQTT.Broker.Port)
		if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
			errs = append(errs, "mqtt.qos must be 0, 1, or 2")
		}
	}

	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" || c.InfluxDB.Bucket == "" || c.InfluxDB.Org == "" {
			errs = append(errs, "influxdb.url, influxdb.org and influxdb.bucket are required when influxdb is enabled")
		}
	}

	if c.Database.Enabled && c.Database.Path == "" {
		errs = append(errs, "database.path is required when database is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetReconnectInterval returns the fixed upstream reconnect delay.
func (c *Config) GetReconnectInterval() time.Duration {
	return time.Duration(c.INDI.ReconnectInterval) * time.Second
}

// GetConnectTimeout returns the upstream dial timeout.
func (c *Config) GetConnectTimeout() time.Duration {
	return time.Duration(c.INDI.ConnectTimeout) * time.Second
}

// GetPingInterval returns the websocket ping interval.
func (c *Config) GetPingInterval() time.Duration {
	return time.Duration(c.WebSocket.PingInterval) * time.Second
}

// GetPongTimeout returns how long a websocket client may stay silent after a ping.
func (c *Config) GetPongTimeout() time.Duration {
	return time.Duration(c.WebSocket.PongTimeout) * time.Second
}
