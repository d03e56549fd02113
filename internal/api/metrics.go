package api

import (
	"net/http"
	"runtime"
	"time"
)

// SystemMetrics is the body of GET /api/v1/metrics.
type SystemMetrics struct {
	Timestamp     string           `json:"timestamp"`
	Version       string           `json:"version"`
	UptimeSeconds int64            `json:"uptime_seconds"`
	Runtime       RuntimeMetrics   `json:"runtime"`
	MQTT          MQTTMetrics      `json:"mqtt"`
	Bridge        BridgeMetrics    `json:"bridge"`
	Protocol      *ProtocolMetrics `json:"protocol,omitempty"`
	Database      *DatabaseMetrics `json:"database,omitempty"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// MQTTMetrics contains MQTT client statistics.
type MQTTMetrics struct {
	Connected bool `json:"connected"`
}

// BridgeMetrics contains discovery, polling and write-queue counters.
type BridgeMetrics struct {
	Devices       int       `json:"devices"`
	Discovery     string    `json:"discovery"`
	PollCycles    uint64    `json:"poll_cycles"`
	ReadFailures  uint64    `json:"read_failures"`
	Published     uint64    `json:"published"`
	LastCycle     time.Time `json:"last_cycle,omitzero"`
	Reads         uint64    `json:"reads"`
	Writes        uint64    `json:"writes"`
	WritesDropped uint64    `json:"writes_dropped"`
	WritesPending int       `json:"writes_pending"`
}

// ProtocolMetrics contains ECHONET Lite client statistics.
type ProtocolMetrics struct {
	FramesTx        uint64    `json:"frames_tx"`
	FramesRx        uint64    `json:"frames_rx"`
	FramesDropped   uint64    `json:"frames_dropped"`
	Errors          uint64    `json:"errors"`
	Timeouts        uint64    `json:"timeouts"`
	PendingRequests int       `json:"pending_requests"`
	LastActivity    time.Time `json:"last_activity,omitzero"`
}

// DatabaseMetrics contains database connection pool statistics.
type DatabaseMetrics struct {
	OpenConnections int   `json:"open_connections"`
	InUse           int   `json:"in_use"`
	Idle            int   `json:"idle"`
	WaitCount       int64 `json:"wait_count"`
}

const bytesPerMB = 1024 * 1024

func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	bm := s.bridge.GetMetrics()
	metrics := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(mem.Alloc) / bytesPerMB,
			MemoryTotalMB: float64(mem.TotalAlloc) / bytesPerMB,
			NumGC:         mem.NumGC,
		},
		Bridge: BridgeMetrics{
			Devices:       bm.Devices,
			Discovery:     bm.Discovery,
			PollCycles:    bm.Poller.Cycles,
			ReadFailures:  bm.Poller.ReadFailures,
			Published:     bm.Poller.Published,
			LastCycle:     bm.Poller.LastCycle,
			Reads:         bm.Executor.Reads,
			Writes:        bm.Executor.Writes,
			WritesDropped: bm.Executor.WritesDropped,
			WritesPending: bm.Executor.WritesPending,
		},
	}

	if s.mqtt != nil {
		metrics.MQTT.Connected = s.mqtt.IsConnected()
	}

	if s.protocol != nil {
		st := s.protocol.Stats()
		metrics.Protocol = &ProtocolMetrics{
			FramesTx:        st.FramesTx,
			FramesRx:        st.FramesRx,
			FramesDropped:   st.FramesDropped,
			Errors:          st.ErrorsTotal,
			Timeouts:        st.Timeouts,
			PendingRequests: st.PendingRequests,
			LastActivity:    st.LastActivity,
		}
	}

	if s.db != nil {
		st := s.db.Stats()
		metrics.Database = &DatabaseMetrics{
			OpenConnections: st.OpenConnections,
			InUse:           st.InUse,
			Idle:            st.Idle,
			WaitCount:       st.WaitCount,
		}
	}

	writeJSON(w, http.StatusOK, metrics)
}
