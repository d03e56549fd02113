package hvac

import (
	"context"
	"errors"
	"time"

	"github.com/nerrad567/gray-logic-echonet/internal/bridges/echonet"
)

// ProtocolClient is the field-protocol side of the bridge.
// *echonet.Client satisfies it.
type ProtocolClient interface {
	// StartDiscovery begins discovery; found is called for every node that answers.
	StartDiscovery(ctx context.Context, found func(echonet.Device)) error

	// GetPropertyValue reads one property.
	GetPropertyValue(ctx context.Context, address string, eoj echonet.EOJ, epc echonet.EPC) (echonet.Value, error)

	// SetPropertyValue writes one property.
	SetPropertyValue(ctx context.Context, address string, eoj echonet.EOJ, value echonet.Value) error
}

// MQTTClient is the interface for MQTT operations.
// This allows mocking in tests and flexibility in implementation.
type MQTTClient interface {
	// Publish sends a message to a topic.
	Publish(topic string, payload []byte, qos byte, retained bool) error

	// SubscribeMultiple registers one handler for several topics in a single request.
	SubscribeMultiple(topics []string, qos byte, handler func(topic string, payload []byte)) error

	// IsConnected returns true if connected to the broker.
	IsConnected() bool
}

// Logger is the structured logging interface used by the bridge.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Pinger is the part of the watchdog the poller uses.
type Pinger interface {
	Ping()
}

// Liveness is a watchdog the bridge arms once polling starts.
type Liveness interface {
	Start()
	Ping()
	Stop()
}

// CommandRecorder receives the outcome of every inbound command.
// It is optional - if nil, commands are only logged.
type CommandRecorder interface {
	RecordCommand(ev CommandEvent)
}

// DiscoveryRecorder is told about newly registered devices.
// It is optional.
type DiscoveryRecorder interface {
	RecordDiscovery(name, address string, eoj echonet.EOJ)
}

// StateSink receives every decoded state value after it is published.
// It is optional.
type StateSink interface {
	WriteState(device, suffix string, value any)
}

// Settings holds the bridge's tunables.
type Settings struct {
	Prefix          string
	DiscoveryWindow time.Duration
	PollInterval    time.Duration
	HealthInterval  time.Duration
	ExpectedDevices int
	WriteQueueSize  int
	QoS             byte
	Retain          bool
	Version         string
}

// Options holds dependencies for creating a bridge.
type Options struct {
	Settings Settings

	// Protocol is the ECHONET Lite client.
	Protocol ProtocolClient

	// MQTT is the bus client.
	MQTT MQTTClient

	// Watchdog is optional; it is started when polling begins.
	Watchdog Liveness

	// Stats is optional protocol statistics for health reporting.
	Stats StatsSource

	Logger Logger

	// Commands, Discoveries and Sink are optional.
	Commands    CommandRecorder
	Discoveries DiscoveryRecorder
	Sink        StateSink
}

// Bridge wires discovery, command dispatch and polling together.
//
// Thread Safety: All exported methods are safe for concurrent use.
type Bridge struct {
	settings   Settings
	codec      TopicCodec
	registry   *Registry
	executor   *Executor
	discovery  *Discovery
	dispatcher *Dispatcher
	poller     *Poller
	health     *HealthReporter
	watchdog   Liveness
	logger     Logger
	startTime  time.Time
}

// NewBridge creates a bridge. Call Run to start it.
func NewBridge(opts Options) (*Bridge, error) {
	if opts.Protocol == nil {
		return nil, errors.New("protocol client is required")
	}
	if opts.MQTT == nil {
		return nil, errors.New("MQTT client is required")
	}

	logger := loggerOrNop(opts.Logger)
	s := opts.Settings
	codec := NewTopicCodec(s.Prefix)
	registry := NewRegistry()
	executor := NewExecutor(opts.Protocol, s.WriteQueueSize)

	var pinger Pinger
	if opts.Watchdog != nil {
		pinger = opts.Watchdog
	}

	b := &Bridge{
		settings:  s,
		codec:     codec,
		registry:  registry,
		executor:  executor,
		watchdog:  opts.Watchdog,
		logger:    logger,
		startTime: time.Now(),
	}

	b.discovery = NewDiscovery(DiscoveryOptions{
		Client:   opts.Protocol,
		Registry: registry,
		Window:   s.DiscoveryWindow,
		Expected: s.ExpectedDevices,
		Logger:   logger,
		Recorder: opts.Discoveries,
	})
	b.dispatcher = NewDispatcher(DispatcherOptions{
		Codec:    codec,
		Registry: registry,
		Executor: executor,
		MQTT:     opts.MQTT,
		QoS:      s.QoS,
		Logger:   logger,
		Recorder: opts.Commands,
	})
	b.poller = NewPoller(PollerOptions{
		Codec:    codec,
		Registry: registry,
		Executor: executor,
		MQTT:     opts.MQTT,
		Watchdog: pinger,
		Interval: s.PollInterval,
		QoS:      s.QoS,
		Retain:   s.Retain,
		Logger:   logger,
		Sink:     opts.Sink,
	})
	b.health = NewHealthReporter(HealthReporterConfig{
		Topic:     codec.HealthTopic(),
		Version:   s.Version,
		Interval:  s.HealthInterval,
		Publisher: opts.MQTT,
		Bridge:    b,
		Protocol:  opts.Stats,
	}, logger)

	return b, nil
}

// Run discovers devices, subscribes their command topics and polls until
// ctx is cancelled. Discovery shortfall and subscription failure are
// returned immediately; cancellation returns nil.
func (b *Bridge) Run(ctx context.Context) error {
	b.executor.Start(ctx)
	defer b.executor.Stop()

	b.health.Start(ctx)
	defer b.health.Stop()

	if err := b.discovery.Run(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}

	if err := b.dispatcher.Subscribe(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}

	//nolint:errcheck // Best-effort, the next tick retries
	b.health.PublishNow()

	if b.watchdog != nil {
		b.watchdog.Start()
		defer b.watchdog.Stop()
	}

	return b.poller.Run(ctx)
}

// Registry returns the device registry.
func (b *Bridge) Registry() *Registry {
	return b.registry
}

// Devices returns every registered device in name order.
func (b *Bridge) Devices() []Device {
	return b.registry.Snapshot()
}

// Device returns one registered device by name.
func (b *Bridge) Device(name string) (Device, error) {
	return b.registry.Get(name)
}

// Codec returns the topic codec.
func (b *Bridge) Codec() TopicCodec {
	return b.codec
}

// DiscoveryState returns the discovery lifecycle state.
func (b *Bridge) DiscoveryState() DiscoveryState {
	return b.discovery.State()
}

// BridgeMetrics holds bridge counters for the status API.
type BridgeMetrics struct {
	Devices   int           `json:"devices"`
	Discovery string        `json:"discovery"`
	Poller    PollerStats   `json:"poller"`
	Executor  ExecutorStats `json:"executor"`
	Uptime    time.Duration `json:"uptime"`
}

// GetMetrics returns current bridge counters.
func (b *Bridge) GetMetrics() BridgeMetrics {
	return BridgeMetrics{
		Devices:   b.registry.Count(),
		Discovery: b.discovery.State().String(),
		Poller:    b.poller.Stats(),
		Executor:  b.executor.Stats(),
		Uptime:    time.Since(b.startTime),
	}
}

// nopLogger discards everything.
type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

func loggerOrNop(l Logger) Logger {
	if l == nil {
		return nopLogger{}
	}
	return l
}

type nopPinger struct{}

func (nopPinger) Ping() {}
