package influxdb

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-echonet/internal/infrastructure/config"
)

// testConfig returns a configuration for a local dev InfluxDB.
func testConfig() config.InfluxDBConfig {
	return config.InfluxDBConfig{
		Enabled:       true,
		URL:           "http://127.0.0.1:8086",
		Token:         "echonet-dev-token",
		Org:           "echonet",
		Bucket:        "hvac",
		BatchSize:     100,
		FlushInterval: 1,
	}
}

// connectOrSkip connects to the dev InfluxDB or skips the test.
func connectOrSkip(t *testing.T) *Client {
	t.Helper()
	if os.Getenv("RUN_INTEGRATION") == "" {
		t.Skip("set RUN_INTEGRATION to run InfluxDB tests")
	}
	client, err := Connect(context.Background(), testConfig())
	if err != nil {
		t.Skipf("InfluxDB not available: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestConnect_Disabled(t *testing.T) {
	cfg := testConfig()
	cfg.Enabled = false

	_, err := Connect(context.Background(), cfg)
	if !errors.Is(err, ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnect_Unreachable(t *testing.T) {
	cfg := testConfig()
	cfg.URL = "http://127.0.0.1:1"

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := Connect(ctx, cfg)
	if !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestStateFields(t *testing.T) {
	tests := []struct {
		name  string
		value any
		key   string
		want  any
	}{
		{"temperature", 24, "value", float64(24)},
		{"negative temperature", -3, "value", float64(-3)},
		{"power", true, "on", true},
		{"mode", "cool", "state", "cool"},
		{"fan", "super_high", "state", "super_high"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fields := stateFields(tt.value)
			if len(fields) != 1 {
				t.Fatalf("stateFields(%v) = %v, want one field", tt.value, fields)
			}
			if got := fields[tt.key]; got != tt.want {
				t.Errorf("fields[%q] = %v, want %v", tt.key, got, tt.want)
			}
		})
	}
}

func TestStateFields_Unmapped(t *testing.T) {
	for _, v := range []any{nil, "", []byte{1}, struct{}{}} {
		if fields := stateFields(v); fields != nil {
			t.Errorf("stateFields(%v) = %v, want nil", v, fields)
		}
	}
}

func TestStatePoint(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	p := statePoint("10_0_0_5", "hvac_state_mode", "heat", at)
	if p == nil {
		t.Fatal("statePoint() = nil")
	}

	if p.Name() != MeasurementHVACState {
		t.Errorf("Name() = %q, want %q", p.Name(), MeasurementHVACState)
	}
	if !p.Time().Equal(at) {
		t.Errorf("Time() = %v, want %v", p.Time(), at)
	}

	tags := map[string]string{}
	for _, tag := range p.TagList() {
		tags[tag.Key] = tag.Value
	}
	if tags["device"] != "10_0_0_5" || tags["property"] != "hvac_state_mode" {
		t.Errorf("tags = %v", tags)
	}

	if statePoint("10_0_0_5", "hvac_state_mode", nil, at) != nil {
		t.Error("statePoint() with nil value should be nil")
	}
}

func TestWriteState_NotConnectedIsNoop(t *testing.T) {
	c := &Client{}
	c.WriteState("10_0_0_5", "hvac_state_power", true)
	c.Flush()

	if err := c.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestIntegration_WriteState(t *testing.T) {
	client := connectOrSkip(t)

	var mu sync.Mutex
	var writeErr error
	client.SetOnError(func(err error) {
		mu.Lock()
		writeErr = err
		mu.Unlock()
	})

	client.WriteState("test_device", "hvac_state_room_temperature", 22)
	client.WriteState("test_device", "hvac_state_power", true)
	client.WriteState("test_device", "hvac_state_mode", "cool")
	client.Flush()
	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if writeErr != nil {
		t.Errorf("async write error: %v", writeErr)
	}
}

func TestIntegration_CloseDropsLaterWrites(t *testing.T) {
	client := connectOrSkip(t)

	if err := client.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := client.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	client.WriteState("test_device", "hvac_state_power", true)
	client.Flush()
}
