package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// clearBridgeEnv unsets variables that would otherwise leak from the host
// environment into Load.
func clearBridgeEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"MQTT_URL", "MQTT_PREFIX", "DISCOVERY_TIME", "POLL_FREQUENCY",
		"EXPECTED_DEVICE_COUNT", "WATCHDOG_TIMEOUT", "LOG_LEVEL",
	} {
		if v, ok := os.LookupEnv(key); ok {
			os.Unsetenv(key)
			t.Cleanup(func() { os.Setenv(key, v) })
		}
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestLoad_EnvironmentOnly(t *testing.T) {
	clearBridgeEnv(t)
	t.Setenv("MQTT_URL", "mqtt://broker.local:1883")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.MQTT.URL != "mqtt://broker.local:1883" {
		t.Errorf("MQTT.URL = %q, want %q", cfg.MQTT.URL, "mqtt://broker.local:1883")
	}
	if cfg.Bridge.Prefix != DefaultPrefix {
		t.Errorf("Bridge.Prefix = %q, want %q", cfg.Bridge.Prefix, DefaultPrefix)
	}
	if got := cfg.DiscoveryWindow(); got != 10*time.Second {
		t.Errorf("DiscoveryWindow() = %v, want 10s", got)
	}
	if got := cfg.PollInterval(); got != 30*time.Second {
		t.Errorf("PollInterval() = %v, want 30s", got)
	}
	if got := cfg.WatchdogTimeout(); got != 60*time.Second {
		t.Errorf("WatchdogTimeout() = %v, want 60s (poll interval unset)", got)
	}
	if cfg.Bridge.ExpectedDevices != 1 {
		t.Errorf("Bridge.ExpectedDevices = %d, want 1", cfg.Bridge.ExpectedDevices)
	}
}

func TestLoad_MissingMQTTURL(t *testing.T) {
	clearBridgeEnv(t)

	_, err := Load("")
	if err == nil {
		t.Fatal("Load() expected error when MQTT_URL is missing")
	}
	if !strings.Contains(err.Error(), "MQTT_URL") {
		t.Errorf("error %q does not mention MQTT_URL", err)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	clearBridgeEnv(t)
	path := writeConfig(t, `
bridge:
  prefix: "/home/ac/"
  discovery_time: 5
  poll_frequency: 15
mqtt:
  url: "tcp://from-file:1883"
  qos: 0
logging:
  level: debug
`)
	t.Setenv("MQTT_URL", "tcp://from-env:1883")
	t.Setenv("POLL_FREQUENCY", "20")
	t.Setenv("EXPECTED_DEVICE_COUNT", "0")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.MQTT.URL != "tcp://from-env:1883" {
		t.Errorf("MQTT.URL = %q, want env value", cfg.MQTT.URL)
	}
	if cfg.Bridge.Prefix != "home/ac" {
		t.Errorf("Bridge.Prefix = %q, want %q", cfg.Bridge.Prefix, "home/ac")
	}
	if cfg.Bridge.DiscoverySeconds != 5 {
		t.Errorf("Bridge.DiscoverySeconds = %d, want 5", cfg.Bridge.DiscoverySeconds)
	}
	if got := cfg.WatchdogTimeout(); got != 21*time.Second {
		t.Errorf("WatchdogTimeout() = %v, want 21s", got)
	}
	if cfg.Bridge.ExpectedDevices != 1 {
		t.Errorf("Bridge.ExpectedDevices = %d, want floor of 1", cfg.Bridge.ExpectedDevices)
	}
	if cfg.MQTT.QoS != 0 {
		t.Errorf("MQTT.QoS = %d, want 0", cfg.MQTT.QoS)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "invalid: [yaml: content")

	_, err := Load(path)
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_InvalidEnvValue(t *testing.T) {
	clearBridgeEnv(t)
	t.Setenv("MQTT_URL", "tcp://localhost:1883")
	t.Setenv("DISCOVERY_TIME", "ten")

	_, err := Load("")
	if err == nil {
		t.Error("Load() expected error for non-numeric DISCOVERY_TIME, got nil")
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		cfg := defaultConfig()
		cfg.MQTT.URL = "tcp://localhost:1883"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid config",
			mutate:  func(*Config) {},
			wantErr: false,
		},
		{
			name:    "missing mqtt url",
			mutate:  func(c *Config) { c.MQTT.URL = "" },
			wantErr: true,
		},
		{
			name:    "invalid qos",
			mutate:  func(c *Config) { c.MQTT.QoS = 3 },
			wantErr: true,
		},
		{
			name:    "zero discovery window",
			mutate:  func(c *Config) { c.Bridge.DiscoverySeconds = 0 },
			wantErr: true,
		},
		{
			name:    "negative poll interval",
			mutate:  func(c *Config) { c.Bridge.PollIntervalSeconds = -1 },
			wantErr: true,
		},
		{
			name:    "influxdb enabled without url",
			mutate:  func(c *Config) { c.InfluxDB.Enabled = true },
			wantErr: true,
		},
		{
			name:    "api disabled ignores port",
			mutate:  func(c *Config) { c.API.Port = 0 },
			wantErr: false,
		},
		{
			name: "api enabled with bad port",
			mutate: func(c *Config) {
				c.API.Enabled = true
				c.API.Port = 70000
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_ValidateCollectsAllErrors(t *testing.T) {
	cfg := defaultConfig()
	cfg.MQTT.QoS = 5
	cfg.Bridge.WriteQueueSize = 0

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() expected error")
	}
	msg := err.Error()
	for _, want := range []string{"mqtt.url", "mqtt.qos", "bridge.write_queue_size"} {
		if !strings.Contains(msg, want) {
			t.Errorf("error %q missing %q", msg, want)
		}
	}
}

func TestConfig_WatchdogTimeout(t *testing.T) {
	tests := []struct {
		name     string
		poll     int
		watchdog int
		want     time.Duration
	}{
		{"poll unset uses standalone", 0, 60, 60 * time.Second},
		{"poll unset custom standalone", 0, 90, 90 * time.Second},
		{"poll set adds margin", 30, 60, 31 * time.Second},
		{"poll set ignores standalone", 5, 600, 6 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			cfg.Bridge.PollIntervalSeconds = tt.poll
			cfg.Bridge.WatchdogSeconds = tt.watchdog
			if got := cfg.WatchdogTimeout(); got != tt.want {
				t.Errorf("WatchdogTimeout() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestConfig_Timeouts(t *testing.T) {
	cfg := &Config{
		API: APIConfig{
			Timeouts: APITimeoutConfig{Read: 30, Write: 45, Idle: 120},
		},
	}

	if got := cfg.GetReadTimeout(); got != 30*time.Second {
		t.Errorf("GetReadTimeout() = %v, want 30s", got)
	}
	if got := cfg.GetWriteTimeout(); got != 45*time.Second {
		t.Errorf("GetWriteTimeout() = %v, want 45s", got)
	}
	if got := cfg.GetIdleTimeout(); got != 120*time.Second {
		t.Errorf("GetIdleTimeout() = %v, want 120s", got)
	}
}
