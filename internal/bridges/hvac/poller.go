package hvac

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/gray-logic-echonet/internal/bridges/echonet"
)

// DefaultPollInterval is the pause between poll cycles.
const DefaultPollInterval = 30 * time.Second

// PollerOptions holds configuration for a Poller.
type PollerOptions struct {
	Codec    TopicCodec
	Registry *Registry
	Executor *Executor
	MQTT     MQTTClient

	// Watchdog is pinged at cycle start and after each device.
	Watchdog Pinger

	// Interval is the pause after each cycle. Default 30s.
	Interval time.Duration

	QoS    byte
	Retain bool

	Logger Logger

	// Sink is optional; it receives every decoded state value.
	Sink StateSink
}

// Poller mirrors device state onto the bus, one device at a time.
type Poller struct {
	codec    TopicCodec
	registry *Registry
	executor *Executor
	mqtt     MQTTClient
	watchdog Pinger
	interval time.Duration
	qos      byte
	retain   bool
	logger   Logger
	sink     StateSink

	cycles       atomic.Uint64
	readFailures atomic.Uint64
	published    atomic.Uint64

	lastCycleMu sync.RWMutex
	lastCycle   time.Time
}

// NewPoller creates a poller.
func NewPoller(opts PollerOptions) *Poller {
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	wd := opts.Watchdog
	if wd == nil {
		wd = nopPinger{}
	}
	return &Poller{
		codec:    opts.Codec,
		registry: opts.Registry,
		executor: opts.Executor,
		mqtt:     opts.MQTT,
		watchdog: wd,
		interval: interval,
		qos:      opts.QoS,
		retain:   opts.Retain,
		logger:   loggerOrNop(opts.Logger),
		sink:     opts.Sink,
	}
}

// Run polls until ctx is cancelled. It returns nil on cancellation.
func (p *Poller) Run(ctx context.Context) error {
	p.logger.Info("polling for device status", "interval", p.interval.String())

	for {
		p.RunCycle(ctx)

		timer := time.NewTimer(p.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

// RunCycle polls every registered device once.
func (p *Poller) RunCycle(ctx context.Context) {
	p.watchdog.Ping()

	for _, name := range p.registry.ListNames() {
		if ctx.Err() != nil {
			return
		}
		p.pollDevice(ctx, name)
		p.watchdog.Ping()
	}

	p.cycles.Add(1)
	p.lastCycleMu.Lock()
	p.lastCycle = time.Now()
	p.lastCycleMu.Unlock()
}

// pollDevice reads every state property of one device in table order.
func (p *Poller) pollDevice(ctx context.Context, name string) {
	dev, err := p.registry.Get(name)
	if err != nil {
		p.logger.Warn("device vanished from registry", "device", name)
		return
	}

	for _, m := range mappingsFor(DirectionState) {
		value, err := p.executor.Read(ctx, dev.Address, dev.EOJ, m.EPC)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.readFailures.Add(1)
			p.logger.Warn("property read failed", "device", name, "suffix", m.Suffix, "error", err)
			continue
		}

		decoded := p.applyPower(name, m.EPC, DecodeState(value))
		p.publish(name, m.Suffix, decoded)

		if p.sink != nil {
			p.sink.WriteState(name, m.Suffix, decoded)
		}
	}
}

// applyPower stores power readings and replaces mode and fan with "off"
// while the device's last power reading is off.
func (p *Poller) applyPower(name string, epc echonet.EPC, decoded any) any {
	switch epc {
	case echonet.EPCOperationStatus:
		if on, ok := decoded.(bool); ok {
			if err := p.registry.SetPowerState(name, on); err != nil {
				p.logger.Warn("storing power state failed", "device", name, "error", err)
			}
		}
		return decoded

	case echonet.EPCOperationMode, echonet.EPCAirFlowRate:
		dev, err := p.registry.Get(name)
		if err == nil && dev.Power == PowerOff {
			return ValueOff
		}
		return decoded

	default:
		return decoded
	}
}

func (p *Poller) publish(device, suffix string, decoded any) {
	topic := p.codec.StateTopic(device, suffix)
	payload := FormatPayload(decoded)

	if err := p.mqtt.Publish(topic, []byte(payload), p.qos, p.retain); err != nil {
		p.logger.Warn("state publish failed", "topic", topic, "error", err)
		return
	}
	p.published.Add(1)
	p.logger.Debug("published state", "topic", topic, "payload", payload)
}

// PollerStats holds poller counters.
type PollerStats struct {
	Cycles       uint64
	ReadFailures uint64
	Published    uint64
	LastCycle    time.Time
}

// Stats returns current counters.
func (p *Poller) Stats() PollerStats {
	p.lastCycleMu.RLock()
	last := p.lastCycle
	p.lastCycleMu.RUnlock()

	return PollerStats{
		Cycles:       p.cycles.Load(),
		ReadFailures: p.readFailures.Load(),
		Published:    p.published.Load(),
		LastCycle:    last,
	}
}
