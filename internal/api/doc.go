// Package api serves the bridge's read-only HTTP status API.
//
// Endpoints:
//   - GET /api/v1/health: discovery state, bus connectivity and watchdog;
//     503 when the bridge is degraded
//   - GET /api/v1/devices and /api/v1/devices/{name}: registered air
//     conditioners and their topics
//   - GET /api/v1/audit: discovery and command audit trail (database enabled)
//   - GET /api/v1/metrics: runtime, polling and protocol counters
//
// Lifecycle:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// The API never changes device state; commands only arrive over MQTT.
package api
