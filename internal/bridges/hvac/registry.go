package hvac

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-echonet/internal/bridges/echonet"
)

// PowerState is the last power status read from a device.
type PowerState int

const (
	PowerUnknown PowerState = iota
	PowerOn
	PowerOff
)

// String returns "unknown", "on" or "off".
func (p PowerState) String() string {
	switch p {
	case PowerOn:
		return ValueOn
	case PowerOff:
		return ValueOff
	default:
		return ValueUnknown
	}
}

// Device is a registered air conditioner.
type Device struct {
	Name         string
	Address      string
	EOJ          echonet.EOJ
	Power        PowerState
	DiscoveredAt time.Time
}

var nameReplacer = strings.NewReplacer(".", "_", ":", "_")

// DeviceName derives the topic-safe device name from its address,
// e.g. 10.0.0.5 becomes 10_0_0_5.
func DeviceName(address string) string {
	return nameReplacer.Replace(address)
}

// Registry holds discovered devices keyed by name.
//
// Thread Safety: All methods are safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	devices map[string]*Device
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{devices: make(map[string]*Device)}
}

// Register adds a device. Registering an address a second time keeps the
// original entry and reports created=false.
func (r *Registry) Register(address string, eoj echonet.EOJ) (name string, created bool) {
	name = DeviceName(address)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.devices[name]; exists {
		return name, false
	}
	r.devices[name] = &Device{
		Name:         name,
		Address:      address,
		EOJ:          eoj,
		Power:        PowerUnknown,
		DiscoveredAt: time.Now().UTC(),
	}
	return name, true
}

// Get returns a copy of the named device.
func (r *Registry) Get(name string) (Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	dev, ok := r.devices[name]
	if !ok {
		return Device{}, fmt.Errorf("%w: %s", ErrDeviceNotFound, name)
	}
	return *dev, nil
}

// SetPowerState records the last power reading.
func (r *Registry) SetPowerState(name string, on bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	dev, ok := r.devices[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrDeviceNotFound, name)
	}
	if on {
		dev.Power = PowerOn
	} else {
		dev.Power = PowerOff
	}
	return nil
}

// ListNames returns all device names, sorted.
func (r *Registry) ListNames() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.devices))
	for name := range r.devices {
		names = append(names, name)
	}
	r.mu.RUnlock()

	sort.Strings(names)
	return names
}

// Snapshot returns copies of all devices, sorted by name.
func (r *Registry) Snapshot() []Device {
	r.mu.RLock()
	out := make([]Device, 0, len(r.devices))
	for _, dev := range r.devices {
		out = append(out, *dev)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Count returns the number of registered devices.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.devices)
}
