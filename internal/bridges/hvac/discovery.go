package hvac

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-echonet/internal/bridges/echonet"
)

// Discovery defaults.
const (
	DefaultDiscoveryWindow = 10 * time.Second
	DefaultExpectedDevices = 1
)

// DiscoveryState is the discovery lifecycle.
type DiscoveryState int

const (
	DiscoveryIdle DiscoveryState = iota
	DiscoveryScanning
	DiscoveryEvaluating
	DiscoveryReady
	DiscoveryFatalShortfall
)

var discoveryStateNames = map[DiscoveryState]string{
	DiscoveryIdle:           "idle",
	DiscoveryScanning:       "scanning",
	DiscoveryEvaluating:     "evaluating",
	DiscoveryReady:          "ready",
	DiscoveryFatalShortfall: "fatal_shortfall",
}

func (s DiscoveryState) String() string {
	if name, ok := discoveryStateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("DiscoveryState(%d)", int(s))
}

// DiscoveryOptions holds configuration for a Discovery.
type DiscoveryOptions struct {
	Client   ProtocolClient
	Registry *Registry

	// Window is how long announcements are accepted. Default 10s.
	Window time.Duration

	// Expected is the minimum device count. Values below 1 become 1.
	Expected int

	Logger Logger

	// Recorder is optional; it is told about every newly registered device.
	Recorder DiscoveryRecorder
}

// Discovery runs the one-shot discovery window and fills the Registry.
type Discovery struct {
	client   ProtocolClient
	registry *Registry
	window   time.Duration
	expected int
	logger   Logger
	recorder DiscoveryRecorder

	mu    sync.Mutex
	state DiscoveryState
}

// NewDiscovery creates a discovery controller in the Idle state.
func NewDiscovery(opts DiscoveryOptions) *Discovery {
	window := opts.Window
	if window <= 0 {
		window = DefaultDiscoveryWindow
	}
	expected := opts.Expected
	if expected < 1 {
		expected = DefaultExpectedDevices
	}
	return &Discovery{
		client:   opts.Client,
		registry: opts.Registry,
		window:   window,
		expected: expected,
		logger:   loggerOrNop(opts.Logger),
		recorder: opts.Recorder,
	}
}

// State returns the current state.
func (d *Discovery) State() DiscoveryState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Run starts discovery, waits for the window to close and checks the
// device count. It can be called once; later calls fail with
// ErrDiscoveryActive.
//
// Returns:
//   - error: ErrDiscoveryShortfall (fatal) if too few devices answered,
//     or the protocol client's error if discovery could not start
func (d *Discovery) Run(ctx context.Context) error {
	d.mu.Lock()
	if d.state != DiscoveryIdle {
		state := d.state
		d.mu.Unlock()
		return fmt.Errorf("%w: state %s", ErrDiscoveryActive, state)
	}
	d.state = DiscoveryScanning
	d.mu.Unlock()

	d.logger.Info("running ECHONET Lite discovery", "window", d.window.String(), "expected", d.expected)

	if err := d.client.StartDiscovery(ctx, d.handleDevice); err != nil {
		d.setState(DiscoveryIdle)
		return fmt.Errorf("starting discovery: %w", err)
	}

	timer := time.NewTimer(d.window)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-ctx.Done():
		d.setState(DiscoveryIdle)
		return ctx.Err()
	}

	d.setState(DiscoveryEvaluating)

	found := d.registry.Count()
	if found < d.expected {
		d.setState(DiscoveryFatalShortfall)
		return fmt.Errorf("%w: found %d, expected at least %d", ErrDiscoveryShortfall, found, d.expected)
	}

	d.setState(DiscoveryReady)
	d.logger.Info("discovery completed", "devices", found)
	return nil
}

// handleDevice is the protocol client's discovery callback.
func (d *Discovery) handleDevice(dev echonet.Device) {
	d.mu.Lock()
	if d.state != DiscoveryScanning {
		state := d.state
		d.mu.Unlock()
		d.logger.Debug("discarding discovery callback outside window", "address", dev.Address, "state", state.String())
		return
	}

	eoj, ok := firstAirConditioner(dev.EOJs)
	if !ok {
		d.mu.Unlock()
		d.logger.Info("discovered node is not an air conditioner, ignoring", "address", dev.Address, "objects", len(dev.EOJs))
		return
	}

	name, created := d.registry.Register(dev.Address, eoj)
	d.mu.Unlock()

	if !created {
		d.logger.Debug("device already registered", "device", name)
		return
	}

	d.logger.Info("found air conditioner", "device", name, "address", dev.Address, "eoj", eoj.String())
	if d.recorder != nil {
		d.recorder.RecordDiscovery(name, dev.Address, eoj)
	}
}

func (d *Discovery) setState(s DiscoveryState) {
	d.mu.Lock()
	d.state = s
	d.mu.Unlock()
}

// firstAirConditioner picks the first home air conditioner object a node lists.
func firstAirConditioner(eojs []echonet.EOJ) (echonet.EOJ, bool) {
	for _, eoj := range eojs {
		if eoj.IsHomeAirConditioner() {
			return eoj, true
		}
	}
	return echonet.EOJ{}, false
}
