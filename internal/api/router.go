package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-echonet/internal/bridges/hvac"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(readOnlyMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/metrics", s.handleMetrics)
		r.Get("/audit", s.handleListAuditLogs)

		r.Route("/devices", func(r chi.Router) {
			r.Get("/", s.handleListDevices)
			r.Get("/{name}", s.handleGetDevice)
		})
	})

	return r
}

// HealthResponse is the body of GET /api/v1/health.
type HealthResponse struct {
	Status        string          `json:"status"`
	Version       string          `json:"version"`
	Discovery     string          `json:"discovery"`
	Devices       int             `json:"devices"`
	MQTTConnected bool            `json:"mqtt_connected"`
	Watchdog      *WatchdogHealth `json:"watchdog,omitempty"`
	Database      string          `json:"database,omitempty"`
}

// WatchdogHealth reports the liveness watchdog.
type WatchdogHealth struct {
	LastPing       time.Time `json:"last_ping"`
	TimeoutSeconds float64   `json:"timeout_seconds"`
	Expired        bool      `json:"expired"`
}

// handleHealth reports bridge health. It answers 503 when the bridge
// cannot do its job: watchdog expired, bus disconnected or discovery
// shortfall.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	discovery := s.bridge.DiscoveryState()
	resp := HealthResponse{
		Status:    "ok",
		Version:   s.version,
		Discovery: discovery.String(),
		Devices:   len(s.bridge.Devices()),
	}
	healthy := discovery != hvac.DiscoveryFatalShortfall

	if s.mqtt != nil {
		resp.MQTTConnected = s.mqtt.IsConnected()
		healthy = healthy && resp.MQTTConnected
	}

	if s.watchdog != nil {
		resp.Watchdog = &WatchdogHealth{
			LastPing:       s.watchdog.LastPing().UTC(),
			TimeoutSeconds: s.watchdog.Timeout().Seconds(),
			Expired:        s.watchdog.Expired(),
		}
		healthy = healthy && !resp.Watchdog.Expired
	}

	if s.db != nil {
		resp.Database = "ok"
		if err := s.db.HealthCheck(r.Context()); err != nil {
			resp.Database = err.Error()
		}
	}

	status := http.StatusOK
	if !healthy {
		resp.Status = "degraded"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}
