package echonet

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"
)

// fakeDevice is a loopback ECHONET node that answers with a handler.
type fakeDevice struct {
	conn    *net.UDPConn
	handler func(req Frame) (Frame, bool)

	mu       sync.Mutex
	received []Frame
}

func newFakeDevice(t *testing.T, handler func(req Frame) (Frame, bool)) *fakeDevice {
	t.Helper()

	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	d := &fakeDevice{conn: conn, handler: handler}
	go d.serve()
	t.Cleanup(func() { conn.Close() })
	return d
}

func (d *fakeDevice) port() int {
	return d.conn.LocalAddr().(*net.UDPAddr).Port
}

func (d *fakeDevice) serve() {
	buf := make([]byte, readBufferSize)
	for {
		n, from, err := d.conn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		req, err := ParseFrame(buf[:n])
		if err != nil {
			continue
		}
		d.mu.Lock()
		d.received = append(d.received, req)
		d.mu.Unlock()

		resp, ok := d.handler(req)
		if !ok {
			continue
		}
		resp.TID = req.TID
		data, err := resp.MarshalBinary()
		if err != nil {
			continue
		}
		_, _ = d.conn.WriteToUDP(data, from)
	}
}

func (d *fakeDevice) requests() []Frame {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Frame, len(d.received))
	copy(out, d.received)
	return out
}

// newLoopbackClient creates an initialised client whose "multicast group"
// is the loopback address, so discovery reaches the fake device directly.
func newLoopbackClient(t *testing.T, devicePort int) *Client {
	t.Helper()

	c := NewClient(Config{
		ListenAddress:   "127.0.0.1:0",
		MulticastGroup:  "127.0.0.1",
		Port:            devicePort,
		ResponseTimeout: 300 * time.Millisecond,
	})
	if err := c.Init(context.Background()); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

var homeAC = EOJ{0x01, 0x30, 0x01}

func respond(req Frame, esv ESV, props ...Property) Frame {
	return Frame{SEOJ: req.DEOJ, DEOJ: req.SEOJ, ESV: esv, Properties: props}
}

func TestClient_GetPropertyValue(t *testing.T) {
	dev := newFakeDevice(t, func(req Frame) (Frame, bool) {
		if req.ESV != ESVGet || req.DEOJ != homeAC {
			return Frame{}, false
		}
		switch req.Properties[0].EPC {
		case EPCOperationMode:
			return respond(req, ESVGetRes, Property{EPC: EPCOperationMode, EDT: []byte{0x42}}), true
		case EPCRoomTemperature:
			return respond(req, ESVGetRes, Property{EPC: EPCRoomTemperature, EDT: []byte{0x17}}), true
		default:
			return respond(req, ESVGetSNA, Property{EPC: req.Properties[0].EPC}), true
		}
	})
	c := newLoopbackClient(t, dev.port())
	ctx := context.Background()

	v, err := c.GetPropertyValue(ctx, "127.0.0.1", homeAC, EPCOperationMode)
	if err != nil {
		t.Fatalf("GetPropertyValue(mode) error = %v", err)
	}
	if v != (OperationMode{Index: 2}) {
		t.Errorf("mode = %#v, want index 2", v)
	}

	v, err = c.GetPropertyValue(ctx, "127.0.0.1", homeAC, EPCRoomTemperature)
	if err != nil {
		t.Fatalf("GetPropertyValue(room) error = %v", err)
	}
	if v.First() != 23 {
		t.Errorf("room temperature = %v, want 23", v.First())
	}

	_, err = c.GetPropertyValue(ctx, "127.0.0.1", homeAC, EPCFaultStatus)
	if !errors.Is(err, ErrRequestRejected) {
		t.Errorf("GetPropertyValue(unsupported) error = %v, want ErrRequestRejected", err)
	}

	stats := c.Stats()
	if stats.FramesTx != 3 || stats.FramesRx != 3 {
		t.Errorf("Stats() = %+v, want 3 tx and 3 rx", stats)
	}
}

func TestClient_SetPropertyValue(t *testing.T) {
	dev := newFakeDevice(t, func(req Frame) (Frame, bool) {
		if req.ESV != ESVSetC {
			return Frame{}, false
		}
		p := req.Properties[0]
		if p.EPC == EPCTargetTemperature && p.EDT[0] > 30 {
			return respond(req, ESVSetCSNA, p), true
		}
		return respond(req, ESVSetRes, Property{EPC: p.EPC}), true
	})
	c := newLoopbackClient(t, dev.port())
	ctx := context.Background()

	if err := c.SetPropertyValue(ctx, "127.0.0.1", homeAC, Power(true)); err != nil {
		t.Fatalf("SetPropertyValue(power) error = %v", err)
	}
	if err := c.SetPropertyValue(ctx, "127.0.0.1", homeAC, TargetTemperature(35)); !errors.Is(err, ErrRequestRejected) {
		t.Errorf("SetPropertyValue(35) error = %v, want ErrRequestRejected", err)
	}

	reqs := dev.requests()
	if len(reqs) != 2 {
		t.Fatalf("device received %d requests, want 2", len(reqs))
	}
	if reqs[0].Properties[0].EPC != EPCOperationStatus || reqs[0].Properties[0].EDT[0] != 0x30 {
		t.Errorf("first request = %+v, want power on", reqs[0])
	}
	if reqs[0].SEOJ != Controller {
		t.Errorf("SEOJ = %s, want controller", reqs[0].SEOJ)
	}
}

func TestClient_SetPropertyValue_InvalidValue(t *testing.T) {
	dev := newFakeDevice(t, func(Frame) (Frame, bool) { return Frame{}, false })
	c := newLoopbackClient(t, dev.port())

	err := c.SetPropertyValue(context.Background(), "127.0.0.1", homeAC, Mode(9))
	if !errors.Is(err, ErrInvalidEDT) {
		t.Errorf("error = %v, want ErrInvalidEDT", err)
	}
	if len(dev.requests()) != 0 {
		t.Error("invalid value must not be sent")
	}
}

func TestClient_Timeout(t *testing.T) {
	dev := newFakeDevice(t, func(Frame) (Frame, bool) { return Frame{}, false })
	c := newLoopbackClient(t, dev.port())

	start := time.Now()
	_, err := c.GetPropertyValue(context.Background(), "127.0.0.1", homeAC, EPCOperationStatus)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("error = %v, want ErrTimeout", err)
	}
	if time.Since(start) < 250*time.Millisecond {
		t.Error("returned before the response timeout")
	}
	if c.Stats().Timeouts != 1 {
		t.Errorf("Timeouts = %d, want 1", c.Stats().Timeouts)
	}
}

func TestClient_ContextCancelled(t *testing.T) {
	dev := newFakeDevice(t, func(Frame) (Frame, bool) { return Frame{}, false })
	c := newLoopbackClient(t, dev.port())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.GetPropertyValue(ctx, "127.0.0.1", homeAC, EPCOperationStatus); !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestClient_InvalidAddress(t *testing.T) {
	dev := newFakeDevice(t, func(Frame) (Frame, bool) { return Frame{}, false })
	c := newLoopbackClient(t, dev.port())

	if _, err := c.GetPropertyValue(context.Background(), "not-an-ip", homeAC, EPCOperationStatus); !errors.Is(err, ErrInvalidAddress) {
		t.Errorf("error = %v, want ErrInvalidAddress", err)
	}
}

func TestClient_StartDiscovery(t *testing.T) {
	dev := newFakeDevice(t, func(req Frame) (Frame, bool) {
		if req.ESV != ESVGet || req.DEOJ != NodeProfile {
			return Frame{}, false
		}
		return Frame{
			SEOJ: NodeProfile,
			DEOJ: req.SEOJ,
			ESV:  ESVGetRes,
			Properties: []Property{{
				EPC: EPCSelfNodeInstanceListS,
				EDT: []byte{0x02, 0x05, 0xFF, 0x01, 0x01, 0x30, 0x01},
			}},
		}, true
	})
	c := newLoopbackClient(t, dev.port())

	found := make(chan Device, 1)
	if err := c.StartDiscovery(context.Background(), func(d Device) { found <- d }); err != nil {
		t.Fatalf("StartDiscovery() error = %v", err)
	}

	select {
	case d := <-found:
		if d.Address != "127.0.0.1" {
			t.Errorf("Address = %q, want 127.0.0.1", d.Address)
		}
		if len(d.EOJs) != 2 || d.EOJs[1] != homeAC {
			t.Errorf("EOJs = %v", d.EOJs)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for discovery callback")
	}

	reqs := dev.requests()
	if len(reqs) != 1 || reqs[0].Properties[0].EPC != EPCSelfNodeInstanceListS {
		t.Errorf("discovery request = %+v", reqs)
	}
}

func TestClient_CallbackPanicRecovered(t *testing.T) {
	c := NewClient(Config{ListenAddress: "127.0.0.1:0", MulticastGroup: "127.0.0.1", Port: 9})
	if err := c.Init(context.Background()); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	defer c.Close()

	calls := make(chan struct{}, 2)
	c.discoverMu.Lock()
	c.onDiscover = func(Device) {
		calls <- struct{}{}
		panic("boom")
	}
	c.discoverMu.Unlock()

	inf := Frame{SEOJ: NodeProfile, ESV: ESVINF, Properties: []Property{{EPC: EPCInstanceListNotification, EDT: []byte{0x01, 0x01, 0x30, 0x01}}}}
	c.handleFrame(inf, "10.0.0.5")
	c.handleFrame(inf, "10.0.0.6")

	for range 2 {
		select {
		case <-calls:
		case <-time.After(time.Second):
			t.Fatal("worker stopped after callback panic")
		}
	}
}

func TestClient_IgnoresNonNodeProfile(t *testing.T) {
	c := NewClient(Config{})
	called := false
	c.onDiscover = func(Device) { called = true }

	c.handleFrame(Frame{SEOJ: homeAC, ESV: ESVINF, Properties: []Property{{EPC: EPCInstanceListNotification, EDT: []byte{0x00}}}}, "10.0.0.5")

	if len(c.discoveryQueue) != 0 || called {
		t.Error("INF from a device object must not be treated as discovery")
	}
}

func TestClient_NotInitialised(t *testing.T) {
	c := NewClient(Config{})

	if _, err := c.GetPropertyValue(context.Background(), "10.0.0.5", homeAC, EPCOperationStatus); !errors.Is(err, ErrNotInitialised) {
		t.Errorf("GetPropertyValue() error = %v", err)
	}
	if err := c.StartDiscovery(context.Background(), func(Device) {}); !errors.Is(err, ErrNotInitialised) {
		t.Errorf("StartDiscovery() error = %v", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestClient_CloseIdempotent(t *testing.T) {
	dev := newFakeDevice(t, func(Frame) (Frame, bool) { return Frame{}, false })
	c := newLoopbackClient(t, dev.port())

	if err := c.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
	if err := c.Init(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("Init() after Close error = %v, want ErrClosed", err)
	}
}

func TestNewClient_Defaults(t *testing.T) {
	c := NewClient(Config{})
	if c.cfg.ListenAddress != ":3610" || c.cfg.MulticastGroup != DefaultMulticastGroup || c.cfg.Port != DefaultPort {
		t.Errorf("defaults = %+v", c.cfg)
	}
	if c.cfg.ResponseTimeout != defaultResponseTimeout {
		t.Errorf("ResponseTimeout = %v", c.cfg.ResponseTimeout)
	}
}
