package hvac

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-echonet/internal/bridges/echonet"
)

// DefaultHealthInterval is how often health is published.
const DefaultHealthInterval = 30 * time.Second

// HealthStatus is the bridge health state published on the health topic.
type HealthStatus string

const (
	HealthStarting HealthStatus = "starting"
	HealthHealthy  HealthStatus = "healthy"
	HealthDegraded HealthStatus = "degraded"
	HealthStopping HealthStatus = "stopping"
)

// HealthMessage is the JSON payload of the health topic.
type HealthMessage struct {
	Status        HealthStatus    `json:"status"`
	Reason        string          `json:"reason,omitempty"`
	Version       string          `json:"version,omitempty"`
	Timestamp     time.Time       `json:"timestamp"`
	UptimeSeconds int64           `json:"uptime_seconds"`
	Devices       int             `json:"devices"`
	Discovery     string          `json:"discovery"`
	Protocol      *ProtocolHealth `json:"protocol,omitempty"`
	Polling       *PollingHealth  `json:"polling,omitempty"`
}

// ProtocolHealth carries ECHONET client counters.
type ProtocolHealth struct {
	FramesTx      uint64    `json:"frames_tx"`
	FramesRx      uint64    `json:"frames_rx"`
	FramesDropped uint64    `json:"frames_dropped"`
	Errors        uint64    `json:"errors"`
	Timeouts      uint64    `json:"timeouts"`
	LastActivity  time.Time `json:"last_activity"`
}

// PollingHealth carries poller and executor counters.
type PollingHealth struct {
	Cycles        uint64    `json:"cycles"`
	ReadFailures  uint64    `json:"read_failures"`
	WritesDropped uint64    `json:"writes_dropped"`
	LastCycle     time.Time `json:"last_cycle,omitzero"`
}

// HealthPublisher is the interface for publishing health messages.
type HealthPublisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	IsConnected() bool
}

// StatsSource provides protocol client statistics.
type StatsSource interface {
	Stats() echonet.Stats
}

// HealthReporterConfig holds configuration for the health reporter.
type HealthReporterConfig struct {
	Topic     string
	Version   string
	Interval  time.Duration
	Publisher HealthPublisher

	// Bridge supplies device count, discovery state and poll counters.
	Bridge *Bridge

	// Protocol is optional.
	Protocol StatsSource
}

// HealthReporter publishes bridge health periodically, retained.
type HealthReporter struct {
	topic     string
	version   string
	startTime time.Time
	interval  time.Duration
	publisher HealthPublisher
	bridge    *Bridge
	protocol  StatsSource
	logger    Logger

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
	started  sync.Once
}

// NewHealthReporter creates a reporter. Call Start to begin reporting.
func NewHealthReporter(cfg HealthReporterConfig, logger Logger) *HealthReporter {
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultHealthInterval
	}
	return &HealthReporter{
		topic:     cfg.Topic,
		version:   cfg.Version,
		startTime: time.Now(),
		interval:  interval,
		publisher: cfg.Publisher,
		bridge:    cfg.Bridge,
		protocol:  cfg.Protocol,
		logger:    loggerOrNop(logger),
		done:      make(chan struct{}),
	}
}

// Start publishes "starting" and begins periodic reporting.
func (h *HealthReporter) Start(ctx context.Context) {
	h.started.Do(func() {
		if err := h.publishStatus(HealthStarting, "bridge starting"); err != nil {
			h.logger.Warn("failed to publish starting health", "error", err)
		}
		h.wg.Add(1)
		go h.reportLoop(ctx)
	})
}

// Stop ends reporting and publishes a final "stopping" status.
// Safe to call multiple times.
func (h *HealthReporter) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
		h.wg.Wait()

		//nolint:errcheck // Best-effort during shutdown
		h.publishStatus(HealthStopping, "")
	})
}

// PublishNow publishes the current health immediately.
func (h *HealthReporter) PublishNow() error {
	status, reason := h.determineStatus()
	return h.publishStatus(status, reason)
}

func (h *HealthReporter) reportLoop(ctx context.Context) {
	defer h.wg.Done()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			return
		case <-ticker.C:
			if err := h.PublishNow(); err != nil {
				h.logger.Warn("failed to publish health", "error", err)
			}
		}
	}
}

func (h *HealthReporter) determineStatus() (HealthStatus, string) {
	if h.publisher == nil || !h.publisher.IsConnected() {
		return HealthDegraded, "MQTT disconnected"
	}
	if h.bridge != nil {
		switch h.bridge.DiscoveryState() {
		case DiscoveryIdle, DiscoveryScanning, DiscoveryEvaluating:
			return HealthStarting, "discovery in progress"
		case DiscoveryFatalShortfall:
			return HealthDegraded, "discovery shortfall"
		}
	}
	return HealthHealthy, ""
}

// buildMessage assembles the payload for a status.
func (h *HealthReporter) buildMessage(status HealthStatus, reason string) HealthMessage {
	now := time.Now().UTC()
	msg := HealthMessage{
		Status:        status,
		Reason:        reason,
		Version:       h.version,
		Timestamp:     now,
		UptimeSeconds: int64(now.Sub(h.startTime).Seconds()),
	}

	if h.bridge != nil {
		msg.Devices = h.bridge.Registry().Count()
		msg.Discovery = h.bridge.DiscoveryState().String()

		ps := h.bridge.poller.Stats()
		es := h.bridge.executor.Stats()
		msg.Polling = &PollingHealth{
			Cycles:        ps.Cycles,
			ReadFailures:  ps.ReadFailures,
			WritesDropped: es.WritesDropped,
			LastCycle:     ps.LastCycle,
		}
	}

	if h.protocol != nil {
		st := h.protocol.Stats()
		msg.Protocol = &ProtocolHealth{
			FramesTx:      st.FramesTx,
			FramesRx:      st.FramesRx,
			FramesDropped: st.FramesDropped,
			Errors:        st.ErrorsTotal,
			Timeouts:      st.Timeouts,
			LastActivity:  st.LastActivity,
		}
	}
	return msg
}

func (h *HealthReporter) publishStatus(status HealthStatus, reason string) error {
	if h.publisher == nil || h.topic == "" {
		return nil
	}

	payload, err := json.Marshal(h.buildMessage(status, reason))
	if err != nil {
		return err
	}
	return h.publisher.Publish(h.topic, payload, 1, true)
}
