package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Defaults for the bridge section. Exported so tests and the status API can
// report effective values.
const (
	DefaultPrefix              = "echonet"
	DefaultDiscoverySeconds    = 10
	DefaultPollIntervalSeconds = 30
	DefaultExpectedDevices     = 1
	DefaultWatchdogSeconds     = 60
	DefaultWriteQueueSize      = 64

	// watchdogMarginSeconds is added to the poll interval to form the watchdog timeout.
	watchdogMarginSeconds = 1
)

// Config is the root configuration structure for the ECHONET Lite bridge.
// Values are loaded from defaults, an optional YAML file, an optional .env
// file and finally the process environment.
type Config struct {
	Bridge   BridgeConfig   `yaml:"bridge"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	ECHONET  ECHONETConfig  `yaml:"echonet"`
	Logging  LoggingConfig  `yaml:"logging"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	Database DatabaseConfig `yaml:"database"`
	API      APIConfig      `yaml:"api"`
}

// BridgeConfig contains the translation and polling engine settings.
type BridgeConfig struct {
	// Prefix is the first topic segment: /<prefix>/<device>/<suffix>.
	Prefix string `yaml:"prefix" envconfig:"MQTT_PREFIX"`

	// DiscoverySeconds is the length of the discovery window.
	DiscoverySeconds int `yaml:"discovery_time" envconfig:"DISCOVERY_TIME"`

	// PollIntervalSeconds is the sleep between poll cycles. Zero means unset,
	// in which case DefaultPollIntervalSeconds applies and the watchdog falls
	// back to WatchdogSeconds.
	PollIntervalSeconds int `yaml:"poll_frequency" envconfig:"POLL_FREQUENCY"`

	// ExpectedDevices is the minimum number of air conditioners discovery must find.
	ExpectedDevices int `yaml:"expected_device_count" envconfig:"EXPECTED_DEVICE_COUNT"`

	// WatchdogSeconds is the standalone watchdog timeout.
	WatchdogSeconds int `yaml:"watchdog_timeout" envconfig:"WATCHDOG_TIMEOUT"`

	// WriteQueueSize bounds the number of pending property writes.
	WriteQueueSize int `yaml:"write_queue_size" envconfig:"WRITE_QUEUE_SIZE"`

	// HealthIntervalSeconds is how often bridge health is published.
	HealthIntervalSeconds int `yaml:"health_interval" envconfig:"HEALTH_INTERVAL"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	URL       string              `yaml:"url" envconfig:"MQTT_URL"`
	ClientID  string              `yaml:"client_id" envconfig:"MQTT_CLIENT_ID"`
	Username  string              `yaml:"username" envconfig:"MQTT_USERNAME"`
	Password  string              `yaml:"password" envconfig:"MQTT_PASSWORD"`
	QoS       int                 `yaml:"qos" envconfig:"MQTT_QOS"`
	Retain    bool                `yaml:"retain" envconfig:"MQTT_RETAIN"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// ECHONETConfig contains ECHONET Lite transport settings.
type ECHONETConfig struct {
	// Interface is the network interface used for multicast. Empty selects
	// the system default.
	Interface string `yaml:"interface" envconfig:"ECHONET_INTERFACE"`

	// ListenAddress is the local UDP address to bind.
	ListenAddress string `yaml:"listen_address" envconfig:"ECHONET_LISTEN_ADDRESS"`

	// MulticastGroup is the ECHONET Lite multicast group.
	MulticastGroup string `yaml:"multicast_group" envconfig:"ECHONET_MULTICAST_GROUP"`

	// Port is the destination port for requests.
	Port int `yaml:"port" envconfig:"ECHONET_PORT"`

	// ResponseTimeout bounds how long a single Get or SetC waits for a reply.
	ResponseTimeout time.Duration `yaml:"response_timeout" envconfig:"ECHONET_RESPONSE_TIMEOUT"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level" envconfig:"LOG_LEVEL"`
	Format string `yaml:"format" envconfig:"LOG_FORMAT"`
	Output string `yaml:"output" envconfig:"LOG_OUTPUT"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled" envconfig:"INFLUXDB_ENABLED"`
	URL           string `yaml:"url" envconfig:"INFLUXDB_URL"`
	Token         string `yaml:"token" envconfig:"INFLUXDB_TOKEN"`
	Org           string `yaml:"org" envconfig:"INFLUXDB_ORG"`
	Bucket        string `yaml:"bucket" envconfig:"INFLUXDB_BUCKET"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// DatabaseConfig contains SQLite audit database settings.
type DatabaseConfig struct {
	Enabled     bool   `yaml:"enabled" envconfig:"DATABASE_ENABLED"`
	Path        string `yaml:"path" envconfig:"DATABASE_PATH"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// APIConfig contains HTTP status API settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled" envconfig:"API_ENABLED"`
	Host     string           `yaml:"host" envconfig:"API_HOST"`
	Port     int              `yaml:"port" envconfig:"API_PORT"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// Load reads configuration and applies environment overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values, if path is not empty
//  3. A .env file in the working directory, if present
//  4. Environment variables (MQTT_URL, POLL_FREQUENCY, ...)
//
// Parameters:
//   - path: Path to the YAML configuration file, or "" for environment only
//
// Returns:
//   - *Config: Loaded, normalised and validated configuration
//   - error: If the file cannot be read or parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("reading environment: %w", err)
	}

	cfg.normalise()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// loadDotEnv loads .env without overriding variables already set.
// A missing file is not an error.
func loadDotEnv() error {
	err := godotenv.Load()
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("loading .env: %w", err)
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Bridge: BridgeConfig{
			Prefix:                DefaultPrefix,
			DiscoverySeconds:      DefaultDiscoverySeconds,
			ExpectedDevices:       DefaultExpectedDevices,
			WatchdogSeconds:       DefaultWatchdogSeconds,
			WriteQueueSize:        DefaultWriteQueueSize,
			HealthIntervalSeconds: 30,
		},
		MQTT: MQTTConfig{
			ClientID: "echonet-bridge",
			QoS:      1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		ECHONET: ECHONETConfig{
			ListenAddress:   ":3610",
			MulticastGroup:  "224.0.23.0",
			Port:            3610,
			ResponseTimeout: 3 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Database: DatabaseConfig{
			Path:        "./data/echonet.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  10,
				Write: 10,
				Idle:  60,
			},
		},
	}
}

// normalise applies floors that are clamped rather than rejected.
func (c *Config) normalise() {
	if c.Bridge.ExpectedDevices < 1 {
		c.Bridge.ExpectedDevices = 1
	}
	c.Bridge.Prefix = strings.Trim(c.Bridge.Prefix, "/")
	if c.Bridge.Prefix == "" {
		c.Bridge.Prefix = DefaultPrefix
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of all validation failures, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.MQTT.URL == "" {
		errs = append(errs, "mqtt.url is required (set the MQTT_URL environment variable)")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.Bridge.DiscoverySeconds < 1 {
		errs = append(errs, "bridge.discovery_time must be at least 1 second")
	}
	if c.Bridge.PollIntervalSeconds < 0 {
		errs = append(errs, "bridge.poll_frequency must not be negative")
	}
	if c.Bridge.WatchdogSeconds < 1 {
		errs = append(errs, "bridge.watchdog_timeout must be at least 1 second")
	}
	if c.Bridge.WriteQueueSize < 1 {
		errs = append(errs, "bridge.write_queue_size must be at least 1")
	}

	if c.ECHONET.Port < 1 || c.ECHONET.Port > 65535 {
		errs = append(errs, "echonet.port must be between 1 and 65535")
	}
	if c.ECHONET.ResponseTimeout <= 0 {
		errs = append(errs, "echonet.response_timeout must be positive")
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}
	if c.Database.Enabled && c.Database.Path == "" {
		errs = append(errs, "database.path is required when the database is enabled")
	}
	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// DiscoveryWindow returns the discovery window as a Duration.
func (c *Config) DiscoveryWindow() time.Duration {
	return time.Duration(c.Bridge.DiscoverySeconds) * time.Second
}

// PollInterval returns the sleep between poll cycles.
func (c *Config) PollInterval() time.Duration {
	if c.Bridge.PollIntervalSeconds > 0 {
		return time.Duration(c.Bridge.PollIntervalSeconds) * time.Second
	}
	return DefaultPollIntervalSeconds * time.Second
}

// WatchdogTimeout returns poll interval + 1s when a poll interval has been
// configured, and the standalone watchdog timeout otherwise.
func (c *Config) WatchdogTimeout() time.Duration {
	if c.Bridge.PollIntervalSeconds > 0 {
		return time.Duration(c.Bridge.PollIntervalSeconds+watchdogMarginSeconds) * time.Second
	}
	return time.Duration(c.Bridge.WatchdogSeconds) * time.Second
}

// HealthInterval returns the health publishing interval.
func (c *Config) HealthInterval() time.Duration {
	return time.Duration(c.Bridge.HealthIntervalSeconds) * time.Second
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
