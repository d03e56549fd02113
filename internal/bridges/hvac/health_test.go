package hvac

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/gray-logic-echonet/internal/bridges/echonet"
)

type staticStats struct {
	stats echonet.Stats
}

func (s staticStats) Stats() echonet.Stats { return s.stats }

func decodeHealth(t *testing.T, payload string) HealthMessage {
	t.Helper()
	var msg HealthMessage
	require.NoError(t, json.Unmarshal([]byte(payload), &msg))
	return msg
}

func TestHealthReporter_StartAndStop(t *testing.T) {
	mqtt := NewMockMQTTClient()
	h := NewHealthReporter(HealthReporterConfig{
		Topic:     "/echonet/bridge/health",
		Version:   "1.2.3",
		Interval:  time.Hour,
		Publisher: mqtt,
	}, nil)

	h.Start(context.Background())
	h.Start(context.Background())
	h.Stop()
	h.Stop()

	pubs := mqtt.GetPublished()
	require.Len(t, pubs, 2)
	for _, p := range pubs {
		assert.Equal(t, "/echonet/bridge/health", p.Topic)
		assert.Equal(t, byte(1), p.QoS)
		assert.True(t, p.Retained)
	}

	first := decodeHealth(t, pubs[0].Payload)
	assert.Equal(t, HealthStarting, first.Status)
	assert.Equal(t, "1.2.3", first.Version)
	assert.Equal(t, HealthStopping, decodeHealth(t, pubs[1].Payload).Status)
}

func TestHealthReporter_PeriodicPublish(t *testing.T) {
	mqtt := NewMockMQTTClient()
	h := NewHealthReporter(HealthReporterConfig{
		Topic:     "/echonet/bridge/health",
		Interval:  10 * time.Millisecond,
		Publisher: mqtt,
	}, nil)

	h.Start(context.Background())
	defer h.Stop()

	require.Eventually(t, func() bool { return len(mqtt.GetPublished()) >= 3 }, time.Second, 5*time.Millisecond)
}

func TestHealthReporter_DegradedWhenDisconnected(t *testing.T) {
	mqtt := NewMockMQTTClient()
	mqtt.connected = false
	h := NewHealthReporter(HealthReporterConfig{Topic: "/t", Publisher: mqtt}, nil)

	status, reason := h.determineStatus()
	assert.Equal(t, HealthDegraded, status)
	assert.Equal(t, "MQTT disconnected", reason)
}

func TestHealthReporter_FollowsDiscovery(t *testing.T) {
	client := NewMockProtocolClient()
	mqtt := NewMockMQTTClient()

	b, err := NewBridge(Options{
		Settings: testSettings(),
		Protocol: client,
		MQTT:     mqtt,
		Stats:    staticStats{echonet.Stats{FramesTx: 7, Timeouts: 2}},
	})
	require.NoError(t, err)

	status, _ := b.health.determineStatus()
	assert.Equal(t, HealthStarting, status, "idle discovery counts as starting")

	assert.ErrorIs(t, b.Run(context.Background()), ErrDiscoveryShortfall)

	status, reason := b.health.determineStatus()
	assert.Equal(t, HealthDegraded, status)
	assert.Equal(t, "discovery shortfall", reason)

	require.NoError(t, b.health.PublishNow())
	health := mqtt.PublishedTo("/prefix/bridge/health")
	msg := decodeHealth(t, health[len(health)-1])
	assert.Equal(t, "fatal_shortfall", msg.Discovery)
	require.NotNil(t, msg.Protocol)
	assert.Equal(t, uint64(7), msg.Protocol.FramesTx)
	assert.Equal(t, uint64(2), msg.Protocol.Timeouts)
	require.NotNil(t, msg.Polling)
}

func TestHealthReporter_NoTopicIsNoop(t *testing.T) {
	mqtt := NewMockMQTTClient()
	h := NewHealthReporter(HealthReporterConfig{Publisher: mqtt}, nil)

	assert.NoError(t, h.PublishNow())
	assert.Empty(t, mqtt.GetPublished())
}
