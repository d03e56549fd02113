package api

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/nerrad567/gray-logic-echonet/internal/audit"
	"github.com/nerrad567/gray-logic-echonet/internal/bridges/hvac"
	"github.com/nerrad567/gray-logic-echonet/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-echonet/internal/infrastructure/logging"
)

// gracefulShutdownTimeout bounds how long Close waits for in-flight requests.
const gracefulShutdownTimeout = 10 * time.Second

// Bridge is the read side of the running bridge. *hvac.Bridge satisfies it.
type Bridge interface {
	Devices() []hvac.Device
	Device(name string) (hvac.Device, error)
	DiscoveryState() hvac.DiscoveryState
	GetMetrics() hvac.BridgeMetrics
}

// Watchdog reports liveness. *watchdog.Watchdog satisfies it.
type Watchdog interface {
	LastPing() time.Time
	Expired() bool
	Timeout() time.Duration
}

// Connectivity reports whether the bus client is connected.
type Connectivity interface {
	IsConnected() bool
}

// Database is the audit database, used for health and pool statistics.
type Database interface {
	HealthCheck(ctx context.Context) error
	Stats() sql.DBStats
}

// Deps holds the dependencies of the status API.
type Deps struct {
	Config config.APIConfig
	Logger *logging.Logger
	Bridge Bridge

	// The rest are optional.
	MQTT     Connectivity
	Protocol hvac.StatsSource
	Watchdog Watchdog
	Audit    audit.Repository
	DB       Database
	Version  string
}

// Server is the read-only HTTP status API.
type Server struct {
	cfg       config.APIConfig
	logger    *logging.Logger
	bridge    Bridge
	mqtt      Connectivity
	protocol  hvac.StatsSource
	watchdog  Watchdog
	auditRepo audit.Repository
	db        Database
	version   string
	startTime time.Time

	server   *http.Server
	listener net.Listener
}

// New creates a server. It does not listen until Start is called.
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If the logger or bridge is missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Bridge == nil {
		return nil, fmt.Errorf("bridge is required")
	}

	return &Server{
		cfg:       deps.Config,
		logger:    deps.Logger,
		bridge:    deps.Bridge,
		mqtt:      deps.MQTT,
		protocol:  deps.Protocol,
		watchdog:  deps.Watchdog,
		auditRepo: deps.Audit,
		db:        deps.DB,
		version:   deps.Version,
		startTime: time.Now(),
	}, nil
}

// Start binds the listener and serves in the background. Binding errors
// (port in use, bad host) are returned directly.
func (s *Server) Start(_ context.Context) error {
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	s.listener = ln

	s.server = &http.Server{
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	s.logger.Info("status API listening", "address", ln.Addr().String())
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close shuts the server down, waiting for in-flight requests.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}
