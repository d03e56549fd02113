// ECHONET Lite to MQTT bridge for home air conditioners.
//
// The bridge discovers air conditioners on the local network, publishes
// their power, mode, fan speed and temperatures to MQTT, and applies
// commands received on the matching command topics.
//
// Configuration comes from an optional YAML file (-config or ECHONET_CONFIG),
// an optional .env file and the environment. MQTT_URL is required.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nerrad567/gray-logic-echonet/internal/api"
	"github.com/nerrad567/gray-logic-echonet/internal/audit"
	"github.com/nerrad567/gray-logic-echonet/internal/bridges/echonet"
	"github.com/nerrad567/gray-logic-echonet/internal/bridges/hvac"
	"github.com/nerrad567/gray-logic-echonet/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-echonet/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-echonet/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-echonet/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-echonet/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-echonet/internal/watchdog"
	"github.com/nerrad567/gray-logic-echonet/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// exit is swapped in tests so the watchdog handler can be observed.
var exit = os.Exit

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		exit(1)
	}
}

// run is the application body, separated from main for testability.
// It returns nil on a clean, signal-driven shutdown.
func run(ctx context.Context, args []string) error {
	log := logging.Default()

	configPath, err := parseConfigPath(args)
	if err != nil {
		return err
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version)
	log.Info("starting ECHONET Lite bridge",
		"version", version,
		"commit", commit,
		"build_date", date,
		"config", configPath,
	)
	log.Info("Using MQTT endpoint", "url", cfg.MQTT.URL)

	mqttClient, err := mqtt.Connect(cfg.MQTT, mqtt.StatusTopic(cfg.Bridge.Prefix), log)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()

	protocol := echonet.NewClient(echonet.Config{
		Interface:       cfg.ECHONET.Interface,
		ListenAddress:   cfg.ECHONET.ListenAddress,
		MulticastGroup:  cfg.ECHONET.MulticastGroup,
		Port:            cfg.ECHONET.Port,
		ResponseTimeout: cfg.ECHONET.ResponseTimeout,
	})
	protocol.SetLogger(log)
	if initErr := protocol.Init(ctx); initErr != nil {
		return fmt.Errorf("initialising ECHONET Lite: %w", initErr)
	}
	defer func() {
		log.Info("closing ECHONET Lite client")
		if closeErr := protocol.Close(); closeErr != nil {
			log.Error("error closing ECHONET Lite client", "error", closeErr)
		}
	}()

	opts := hvac.Options{
		Settings: bridgeSettings(cfg),
		Protocol: protocol,
		MQTT:     &busAdapter{client: mqttClient},
		Stats:    protocol,
		Logger:   log,
	}

	influxClient, err := startInfluxDB(ctx, cfg, log)
	if err != nil {
		return err
	}
	if influxClient != nil {
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		opts.Sink = influxClient
	}

	db, err := openDatabase(ctx, cfg, log)
	if err != nil {
		return err
	}
	var auditRepo audit.Repository
	if db != nil {
		defer func() {
			log.Info("closing database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()

		auditRepo = audit.NewSQLiteRepository(db.DB)
		recorder := audit.NewRecorder(auditRepo, log)
		defer recorder.Close()
		opts.Commands = recorder
		opts.Discoveries = recorder
	}

	wd := watchdog.New(cfg.WatchdogTimeout(), func() {
		log.Error("watchdog expired, no poll progress", "timeout", cfg.WatchdogTimeout().String())
		exit(1)
	})
	opts.Watchdog = wd

	bridge, err := hvac.NewBridge(opts)
	if err != nil {
		return fmt.Errorf("creating bridge: %w", err)
	}

	if cfg.API.Enabled {
		deps := api.Deps{
			Config:   cfg.API,
			Logger:   log,
			Bridge:   bridge,
			MQTT:     mqttClient,
			Protocol: protocol,
			Watchdog: wd,
			Audit:    auditRepo,
			Version:  version,
		}
		if db != nil {
			deps.DB = db
		}

		srv, apiErr := api.New(deps)
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		if startErr := srv.Start(ctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			if closeErr := srv.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	}

	log.Info("bridge starting",
		"prefix", cfg.Bridge.Prefix,
		"discovery_window", cfg.DiscoveryWindow().String(),
		"poll_interval", cfg.PollInterval().String(),
		"expected_devices", cfg.Bridge.ExpectedDevices,
	)

	if runErr := bridge.Run(ctx); runErr != nil {
		return fmt.Errorf("bridge: %w", runErr)
	}

	log.Info("shutdown signal received, cleaning up")
	return nil
}

// parseConfigPath returns the YAML file named by -config, falling back to
// ECHONET_CONFIG. An empty result means environment-only configuration.
func parseConfigPath(args []string) (string, error) {
	fs := flag.NewFlagSet("echonetbridge", flag.ContinueOnError)
	path := fs.String("config", os.Getenv("ECHONET_CONFIG"), "path to a YAML configuration file")
	if err := fs.Parse(args); err != nil {
		return "", fmt.Errorf("parsing flags: %w", err)
	}
	return *path, nil
}

// bridgeSettings maps configuration onto the bridge tunables.
func bridgeSettings(cfg *config.Config) hvac.Settings {
	return hvac.Settings{
		Prefix:          cfg.Bridge.Prefix,
		DiscoveryWindow: cfg.DiscoveryWindow(),
		PollInterval:    cfg.PollInterval(),
		HealthInterval:  cfg.HealthInterval(),
		ExpectedDevices: cfg.Bridge.ExpectedDevices,
		WriteQueueSize:  cfg.Bridge.WriteQueueSize,
		QoS:             byte(cfg.MQTT.QoS), //nolint:gosec // Validated to 0-2
		Retain:          cfg.MQTT.Retain,
		Version:         version,
	}
}

// startInfluxDB connects the optional telemetry sink. It returns nil, nil
// when InfluxDB is disabled.
func startInfluxDB(ctx context.Context, cfg *config.Config, log *logging.Logger) (*influxdb.Client, error) {
	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
	if errors.Is(err, influxdb.ErrDisabled) {
		log.Info("InfluxDB disabled")
		return nil, nil //nolint:nilnil // Disabled is not an error
	}
	if err != nil {
		return nil, fmt.Errorf("connecting to InfluxDB: %w", err)
	}

	client.SetOnError(func(err error) {
		log.Error("InfluxDB write error", "error", err)
	})
	log.Info("InfluxDB connected",
		"url", cfg.InfluxDB.URL,
		"org", cfg.InfluxDB.Org,
		"bucket", cfg.InfluxDB.Bucket,
	)
	return client, nil
}

// openDatabase opens and migrates the optional audit store. It returns
// nil, nil when the database is disabled.
func openDatabase(ctx context.Context, cfg *config.Config, log *logging.Logger) (*database.DB, error) {
	if !cfg.Database.Enabled {
		log.Info("audit database disabled")
		return nil, nil //nolint:nilnil // Disabled is not an error
	}

	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Migrate(ctx, migrations.FS); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	log.Info("audit database ready", "path", db.Path())
	return db, nil
}

// busAdapter adapts the infrastructure MQTT client to hvac.MQTTClient.
// Infrastructure handlers return an error; bridge handlers log their own
// failures and return nothing.
type busAdapter struct {
	client *mqtt.Client
}

func (a *busAdapter) Publish(topic string, payload []byte, qos byte, retained bool) error {
	return a.client.Publish(topic, payload, qos, retained)
}

func (a *busAdapter) SubscribeMultiple(topics []string, qos byte, handler func(topic string, payload []byte)) error {
	return a.client.SubscribeMultiple(topics, qos, wrapHandler(handler))
}

func (a *busAdapter) IsConnected() bool {
	return a.client.IsConnected()
}

func wrapHandler(handler func(topic string, payload []byte)) mqtt.MessageHandler {
	return func(topic string, payload []byte) error {
		handler(topic, payload)
		return nil
	}
}
