package hvac

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-echonet/internal/bridges/echonet"
)

var errDeviceOffline = errors.New("device offline")

// MockMQTTClient implements MQTTClient for testing.
type MockMQTTClient struct {
	mu            sync.Mutex
	published     []mockPublish
	subscriptions [][]string
	handlers      map[string]func(topic string, payload []byte)
	connected     bool
	subscribeErr  error
	publishErr    error
}

type mockPublish struct {
	Topic    string
	Payload  string
	QoS      byte
	Retained bool
}

func NewMockMQTTClient() *MockMQTTClient {
	return &MockMQTTClient{
		connected: true,
		handlers:  make(map[string]func(topic string, payload []byte)),
	}
}

func (m *MockMQTTClient) Publish(topic string, payload []byte, qos byte, retained bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.publishErr != nil {
		return m.publishErr
	}
	m.published = append(m.published, mockPublish{
		Topic:    topic,
		Payload:  string(payload),
		QoS:      qos,
		Retained: retained,
	})
	return nil
}

func (m *MockMQTTClient) SubscribeMultiple(topics []string, _ byte, handler func(topic string, payload []byte)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.subscribeErr != nil {
		return m.subscribeErr
	}
	m.subscriptions = append(m.subscriptions, append([]string(nil), topics...))
	for _, t := range topics {
		m.handlers[t] = handler
	}
	return nil
}

func (m *MockMQTTClient) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *MockMQTTClient) GetPublished() []mockPublish {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]mockPublish, len(m.published))
	copy(out, m.published)
	return out
}

// PublishedTo returns payloads published to a topic, in order.
func (m *MockMQTTClient) PublishedTo(topic string) []string {
	var out []string
	for _, p := range m.GetPublished() {
		if p.Topic == topic {
			out = append(out, p.Payload)
		}
	}
	return out
}

func (m *MockMQTTClient) GetSubscriptions() [][]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.subscriptions
}

// SimulateMessage simulates receiving an MQTT message on a topic.
func (m *MockMQTTClient) SimulateMessage(topic string, payload []byte) bool {
	m.mu.Lock()
	handler, ok := m.handlers[topic]
	m.mu.Unlock()
	if ok {
		handler(topic, payload)
	}
	return ok
}

// MockProtocolClient implements ProtocolClient for testing.
type MockProtocolClient struct {
	mu           sync.Mutex
	values       map[string]echonet.Value
	readErrs     map[string]error
	discovered   []echonet.Device
	discoveryErr error
	found        func(echonet.Device)
	writes       []mockWrite
	writeErr     error
	writeDelay   time.Duration
	reads        []string

	active    int
	maxActive int
}

type mockWrite struct {
	Address string
	EOJ     echonet.EOJ
	Value   echonet.Value
}

func NewMockProtocolClient() *MockProtocolClient {
	return &MockProtocolClient{
		values:   make(map[string]echonet.Value),
		readErrs: make(map[string]error),
	}
}

func propKey(address string, epc echonet.EPC) string {
	return fmt.Sprintf("%s|%s", address, epc)
}

func (m *MockProtocolClient) SetValue(address string, v echonet.Value) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[propKey(address, v.EPC())] = v
}

func (m *MockProtocolClient) SetReadError(address string, epc echonet.EPC, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readErrs[propKey(address, epc)] = err
}

func (m *MockProtocolClient) AddDevice(address string, eojs ...echonet.EOJ) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.discovered = append(m.discovered, echonet.Device{Address: address, EOJs: eojs})
}

func (m *MockProtocolClient) StartDiscovery(_ context.Context, found func(echonet.Device)) error {
	m.mu.Lock()
	if m.discoveryErr != nil {
		m.mu.Unlock()
		return m.discoveryErr
	}
	m.found = found
	devices := append([]echonet.Device(nil), m.discovered...)
	m.mu.Unlock()

	for _, d := range devices {
		found(d)
	}
	return nil
}

// Announce delivers a discovery callback after StartDiscovery.
func (m *MockProtocolClient) Announce(dev echonet.Device) {
	m.mu.Lock()
	found := m.found
	m.mu.Unlock()
	if found != nil {
		found(dev)
	}
}

func (m *MockProtocolClient) enter() {
	m.mu.Lock()
	m.active++
	if m.active > m.maxActive {
		m.maxActive = m.active
	}
	m.mu.Unlock()
}

func (m *MockProtocolClient) leave() {
	m.mu.Lock()
	m.active--
	m.mu.Unlock()
}

func (m *MockProtocolClient) GetPropertyValue(_ context.Context, address string, _ echonet.EOJ, epc echonet.EPC) (echonet.Value, error) {
	m.enter()
	defer m.leave()

	m.mu.Lock()
	defer m.mu.Unlock()
	key := propKey(address, epc)
	m.reads = append(m.reads, key)
	if err, ok := m.readErrs[key]; ok {
		return nil, err
	}
	v, ok := m.values[key]
	if !ok {
		return nil, errDeviceOffline
	}
	return v, nil
}

func (m *MockProtocolClient) SetPropertyValue(_ context.Context, address string, eoj echonet.EOJ, value echonet.Value) error {
	m.enter()
	defer m.leave()

	m.mu.Lock()
	delay := m.writeDelay
	m.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.writeErr != nil {
		return m.writeErr
	}
	m.writes = append(m.writes, mockWrite{Address: address, EOJ: eoj, Value: value})
	return nil
}

func (m *MockProtocolClient) GetWrites() []mockWrite {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]mockWrite, len(m.writes))
	copy(out, m.writes)
	return out
}

func (m *MockProtocolClient) GetReads() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.reads))
	copy(out, m.reads)
	return out
}

func (m *MockProtocolClient) MaxConcurrent() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maxActive
}

// recordingLogger captures log messages by level.
type recordingLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

type logEntry struct {
	Level string
	Msg   string
}

func (l *recordingLogger) add(level, msg string) {
	l.mu.Lock()
	l.entries = append(l.entries, logEntry{Level: level, Msg: msg})
	l.mu.Unlock()
}

func (l *recordingLogger) Debug(msg string, _ ...any) { l.add("debug", msg) }
func (l *recordingLogger) Info(msg string, _ ...any)  { l.add("info", msg) }
func (l *recordingLogger) Warn(msg string, _ ...any)  { l.add("warn", msg) }
func (l *recordingLogger) Error(msg string, _ ...any) { l.add("error", msg) }

func (l *recordingLogger) has(level, msg string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.entries {
		if e.Level == level && e.Msg == msg {
			return true
		}
	}
	return false
}

// recordingRecorder implements CommandRecorder and DiscoveryRecorder.
type recordingRecorder struct {
	mu          sync.Mutex
	commands    []CommandEvent
	discoveries []string
}

func (r *recordingRecorder) RecordCommand(ev CommandEvent) {
	r.mu.Lock()
	r.commands = append(r.commands, ev)
	r.mu.Unlock()
}

func (r *recordingRecorder) RecordDiscovery(name, _ string, _ echonet.EOJ) {
	r.mu.Lock()
	r.discoveries = append(r.discoveries, name)
	r.mu.Unlock()
}

func (r *recordingRecorder) Commands() []CommandEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]CommandEvent, len(r.commands))
	copy(out, r.commands)
	return out
}

// countingPinger counts watchdog pings.
type countingPinger struct {
	mu    sync.Mutex
	pings int
}

func (p *countingPinger) Ping() {
	p.mu.Lock()
	p.pings++
	p.mu.Unlock()
}

func (p *countingPinger) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pings
}

var homeAC = echonet.MakeEOJ(0x01, 0x30, 0x01)
