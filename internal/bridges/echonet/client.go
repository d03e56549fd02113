package echonet

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"golang.org/x/net/ipv4"
)

// closeOnce wraps a channel with sync.Once to prevent double-close panics.
type closeOnce struct {
	ch   chan struct{}
	once sync.Once
}

func newCloseOnce() *closeOnce {
	return &closeOnce{ch: make(chan struct{})}
}

func (c *closeOnce) Close() {
	c.once.Do(func() { close(c.ch) })
}

func (c *closeOnce) Done() <-chan struct{} {
	return c.ch
}

// Defaults for the UDP transport.
const (
	// DefaultPort is the ECHONET Lite UDP port.
	DefaultPort = 3610

	// DefaultMulticastGroup is the ECHONET Lite IPv4 multicast group.
	DefaultMulticastGroup = "224.0.23.0"

	// defaultResponseTimeout bounds a single Get or SetC exchange.
	defaultResponseTimeout = 3 * time.Second

	// defaultWriteTimeout bounds a single datagram send.
	defaultWriteTimeout = 2 * time.Second

	// readBufferSize covers the largest datagram a device sends in practice.
	readBufferSize = 1500

	// discoveryQueueSize is the buffer size for discovery callbacks.
	discoveryQueueSize = 32
)

// Logger is the logging interface used by the client.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Config holds UDP transport settings.
type Config struct {
	// Interface is the network interface used for multicast ("" = system default).
	Interface string

	// ListenAddress is the local bind address, normally ":3610".
	ListenAddress string

	// MulticastGroup is where discovery requests are sent.
	MulticastGroup string

	// Port is the remote ECHONET Lite port.
	Port int

	// ResponseTimeout bounds a single request/response exchange.
	ResponseTimeout time.Duration
}

// Device is a node that answered discovery, with the objects it reported.
type Device struct {
	Address string
	EOJs    []EOJ
}

// Stats holds client statistics.
type Stats struct {
	FramesTx        uint64
	FramesRx        uint64
	FramesDropped   uint64
	ErrorsTotal     uint64
	Timeouts        uint64
	PendingRequests int
	LastActivity    time.Time
}

// inbound is a received frame with its sender.
type inbound struct {
	frame Frame
	from  string
}

// Client speaks ECHONET Lite over UDP.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - Discovery callbacks run on a dedicated goroutine, never on the
//     receive loop.
type Client struct {
	cfg   Config
	conn  *net.UDPConn
	group *net.UDPAddr

	connMu      sync.RWMutex
	initialised bool

	tid     atomic.Uint32
	pending *ttlcache.Cache[uint16, chan inbound]

	onDiscover     func(Device)
	discoverMu     sync.RWMutex
	discoveryQueue chan Device

	done *closeOnce
	wg   sync.WaitGroup

	logger   Logger
	loggerMu sync.RWMutex

	framesTx      atomic.Uint64
	framesRx      atomic.Uint64
	framesDropped atomic.Uint64
	errorsTotal   atomic.Uint64
	timeouts      atomic.Uint64
	lastActivity  atomic.Int64
}

// NewClient creates a client. Call Init before any other operation.
func NewClient(cfg Config) *Client {
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = ":" + strconv.Itoa(DefaultPort)
	}
	if cfg.MulticastGroup == "" {
		cfg.MulticastGroup = DefaultMulticastGroup
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.ResponseTimeout <= 0 {
		cfg.ResponseTimeout = defaultResponseTimeout
	}

	c := &Client{
		cfg:            cfg,
		done:           newCloseOnce(),
		discoveryQueue: make(chan Device, discoveryQueueSize),
	}
	// Waiters delete their own entry; the TTL only reaps entries whose
	// waiter never returned.
	c.pending = ttlcache.New[uint16, chan inbound](
		ttlcache.WithTTL[uint16, chan inbound](2 * cfg.ResponseTimeout),
	)
	return c
}

// Init binds the UDP socket, joins the multicast group and starts the
// receive loop.
func (c *Client) Init(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.initialised {
		return nil
	}
	if c.isClosed() {
		return ErrClosed
	}

	laddr, err := net.ResolveUDPAddr("udp4", c.cfg.ListenAddress)
	if err != nil {
		return fmt.Errorf("resolving listen address %q: %w", c.cfg.ListenAddress, err)
	}
	group, err := net.ResolveUDPAddr("udp4", net.JoinHostPort(c.cfg.MulticastGroup, strconv.Itoa(c.cfg.Port)))
	if err != nil {
		return fmt.Errorf("resolving multicast group %q: %w", c.cfg.MulticastGroup, err)
	}

	conn, err := net.ListenUDP("udp4", laddr)
	if err != nil {
		return fmt.Errorf("binding %s: %w", c.cfg.ListenAddress, err)
	}

	if group.IP.IsMulticast() {
		if err := c.joinGroup(conn, group.IP); err != nil {
			conn.Close()
			return err
		}
	}

	c.conn = conn
	c.group = group
	c.initialised = true
	c.lastActivity.Store(time.Now().Unix())

	go c.pending.Start()

	c.wg.Add(2)
	go c.discoveryWorker()
	go c.receiveLoop(conn)

	c.logInfo("echonet client initialised",
		"listen", conn.LocalAddr().String(),
		"group", group.String(),
	)
	return nil
}

// joinGroup subscribes the socket to the multicast group on the
// configured interface.
func (c *Client) joinGroup(conn *net.UDPConn, group net.IP) error {
	var ifi *net.Interface
	if c.cfg.Interface != "" {
		found, err := net.InterfaceByName(c.cfg.Interface)
		if err != nil {
			return fmt.Errorf("looking up interface %q: %w", c.cfg.Interface, err)
		}
		ifi = found
	}

	pc := ipv4.NewPacketConn(conn)
	if err := pc.JoinGroup(ifi, &net.UDPAddr{IP: group}); err != nil {
		return fmt.Errorf("joining multicast group %s: %w", group, err)
	}
	if ifi != nil {
		if err := pc.SetMulticastInterface(ifi); err != nil {
			return fmt.Errorf("selecting multicast interface %q: %w", ifi.Name, err)
		}
	}
	// Our own discovery request would otherwise come straight back.
	if err := pc.SetMulticastLoopback(false); err != nil {
		c.logWarn("disabling multicast loopback failed", "error", err)
	}
	return nil
}

// receiveLoop reads datagrams until the socket is closed.
func (c *Client) receiveLoop(conn *net.UDPConn) {
	defer c.wg.Done()

	buf := make([]byte, readBufferSize)
	for {
		n, from, err := conn.ReadFromUDP(buf)
		if err != nil {
			if c.isClosed() || errors.Is(err, net.ErrClosed) {
				return
			}
			c.errorsTotal.Add(1)
			c.logError("udp read failed", err)
			continue
		}

		frame, err := ParseFrame(buf[:n])
		if err != nil {
			c.errorsTotal.Add(1)
			c.logDebug("ignoring datagram", "from", from.String(), "error", err)
			continue
		}

		c.framesRx.Add(1)
		c.lastActivity.Store(time.Now().Unix())
		c.handleFrame(frame, from.IP.String())
	}
}

// handleFrame routes a frame to its waiting request or to discovery.
func (c *Client) handleFrame(frame Frame, from string) {
	switch frame.ESV {
	case ESVGetRes, ESVSetRes, ESVGetSNA, ESVSetCSNA:
		if item := c.pending.Get(frame.TID); item != nil {
			select {
			case item.Value() <- inbound{frame: frame, from: from}:
			default:
			}
			return
		}
	}

	if frame.SEOJ != NodeProfile {
		return
	}
	if frame.ESV != ESVGetRes && frame.ESV != ESVINF && frame.ESV != ESVINFC {
		return
	}

	for _, epc := range []EPC{EPCSelfNodeInstanceListS, EPCInstanceListNotification} {
		prop, ok := frame.Property(epc)
		if !ok {
			continue
		}
		eojs, err := ParseInstanceList(prop.EDT)
		if err != nil {
			c.errorsTotal.Add(1)
			c.logDebug("bad instance list", "from", from, "error", err)
			return
		}
		c.queueDiscovery(Device{Address: from, EOJs: eojs})
		return
	}
}

// queueDiscovery hands a discovered node to the callback worker.
func (c *Client) queueDiscovery(dev Device) {
	c.discoverMu.RLock()
	hasCallback := c.onDiscover != nil
	c.discoverMu.RUnlock()

	if !hasCallback {
		return
	}

	select {
	case c.discoveryQueue <- dev:
	default:
		c.framesDropped.Add(1)
		c.logError("discovery queue full, dropping announcement", nil)
	}
}

// discoveryWorker invokes the discovery callback for queued nodes.
func (c *Client) discoveryWorker() {
	defer c.wg.Done()

	for {
		select {
		case <-c.done.Done():
			return
		case dev := <-c.discoveryQueue:
			c.discoverMu.RLock()
			callback := c.onDiscover
			c.discoverMu.RUnlock()

			if callback == nil {
				continue
			}
			func() {
				defer func() {
					if r := recover(); r != nil {
						c.logError("discovery callback panic", fmt.Errorf("%v", r))
					}
				}()
				callback(dev)
			}()
		}
	}
}

// StartDiscovery installs the discovery callback and multicasts a Get of
// the node profile instance list. Nodes answer asynchronously; every
// answer (and every later instance-list INF) reaches found.
func (c *Client) StartDiscovery(ctx context.Context, found func(Device)) error {
	c.discoverMu.Lock()
	c.onDiscover = found
	c.discoverMu.Unlock()

	c.connMu.RLock()
	group := c.group
	c.connMu.RUnlock()
	if group == nil {
		return ErrNotInitialised
	}

	frame := Frame{
		TID:        c.nextTID(),
		SEOJ:       Controller,
		DEOJ:       NodeProfile,
		ESV:        ESVGet,
		Properties: []Property{{EPC: EPCSelfNodeInstanceListS}},
	}
	if err := c.send(ctx, group, frame); err != nil {
		return fmt.Errorf("sending discovery request: %w", err)
	}
	c.logInfo("discovery request sent", "group", group.String())
	return nil
}

// StopDiscovery removes the discovery callback.
func (c *Client) StopDiscovery() {
	c.discoverMu.Lock()
	c.onDiscover = nil
	c.discoverMu.Unlock()
}

// GetPropertyValue reads one property from an object on a device.
func (c *Client) GetPropertyValue(ctx context.Context, address string, eoj EOJ, epc EPC) (Value, error) {
	resp, err := c.request(ctx, address, Frame{
		SEOJ:       Controller,
		DEOJ:       eoj,
		ESV:        ESVGet,
		Properties: []Property{{EPC: epc}},
	})
	if err != nil {
		return nil, err
	}

	if resp.ESV != ESVGetRes {
		return nil, fmt.Errorf("%w: %s for %s on %s", ErrRequestRejected, resp.ESV, epc, address)
	}
	prop, ok := resp.Property(epc)
	if !ok || len(prop.EDT) == 0 {
		return nil, fmt.Errorf("%w: %s on %s", ErrPropertyMissing, epc, address)
	}
	return Decode(epc, prop.EDT)
}

// SetPropertyValue writes one property with SetC and waits for Set_Res.
func (c *Client) SetPropertyValue(ctx context.Context, address string, eoj EOJ, value Value) error {
	edt, err := Encode(value)
	if err != nil {
		return err
	}

	resp, err := c.request(ctx, address, Frame{
		SEOJ:       Controller,
		DEOJ:       eoj,
		ESV:        ESVSetC,
		Properties: []Property{{EPC: value.EPC(), EDT: edt}},
	})
	if err != nil {
		return err
	}
	if resp.ESV != ESVSetRes {
		return fmt.Errorf("%w: %s for %s on %s", ErrRequestRejected, resp.ESV, value.EPC(), address)
	}
	return nil
}

// request sends a unicast frame and waits for the response with the same TID.
func (c *Client) request(ctx context.Context, address string, frame Frame) (Frame, error) {
	if !c.isInitialised() {
		return Frame{}, ErrNotInitialised
	}
	if c.isClosed() {
		return Frame{}, ErrClosed
	}

	ip := net.ParseIP(address)
	if ip == nil {
		return Frame{}, fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}
	to := &net.UDPAddr{IP: ip, Port: c.cfg.Port}

	frame.TID = c.nextTID()
	ch := make(chan inbound, 1)
	c.pending.Set(frame.TID, ch, ttlcache.DefaultTTL)
	defer c.pending.Delete(frame.TID)

	if err := c.send(ctx, to, frame); err != nil {
		return Frame{}, err
	}

	timer := time.NewTimer(c.cfg.ResponseTimeout)
	defer timer.Stop()

	for {
		select {
		case in := <-ch:
			if in.from != ip.String() {
				c.logDebug("response from unexpected sender", "want", address, "got", in.from)
				continue
			}
			return in.frame, nil
		case <-timer.C:
			c.timeouts.Add(1)
			return Frame{}, fmt.Errorf("%w: %s %s on %s", ErrTimeout, frame.ESV, frame.DEOJ, address)
		case <-ctx.Done():
			return Frame{}, ctx.Err()
		case <-c.done.Done():
			return Frame{}, ErrClosed
		}
	}
}

// send writes one frame to addr.
func (c *Client) send(ctx context.Context, addr *net.UDPAddr, frame Frame) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.connMu.RLock()
	conn := c.conn
	c.connMu.RUnlock()
	if conn == nil {
		return ErrNotInitialised
	}

	data, err := frame.MarshalBinary()
	if err != nil {
		return err
	}

	deadline := time.Now().Add(defaultWriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}

	if _, err := conn.WriteToUDP(data, addr); err != nil {
		c.errorsTotal.Add(1)
		return fmt.Errorf("write to %s: %w", addr, err)
	}

	c.framesTx.Add(1)
	c.lastActivity.Store(time.Now().Unix())
	return nil
}

// nextTID returns the next transaction ID. Zero is skipped.
func (c *Client) nextTID() uint16 {
	for {
		tid := uint16(c.tid.Add(1))
		if tid != 0 {
			return tid
		}
	}
}

func (c *Client) isInitialised() bool {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.initialised
}

func (c *Client) isClosed() bool {
	select {
	case <-c.done.Done():
		return true
	default:
		return false
	}
}

// Close stops the receive loop and releases the socket. Safe to call
// multiple times.
func (c *Client) Close() error {
	c.done.Close()

	c.connMu.Lock()
	conn := c.conn
	wasInitialised := c.initialised
	c.initialised = false
	c.conn = nil
	c.connMu.Unlock()

	if conn != nil {
		conn.Close()
	}
	c.wg.Wait()

	if wasInitialised {
		c.pending.Stop()
		c.logInfo("echonet client closed")
	}
	return nil
}

// LocalAddr returns the bound socket address, or nil before Init.
func (c *Client) LocalAddr() *net.UDPAddr {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	if c.conn == nil {
		return nil
	}
	addr, _ := c.conn.LocalAddr().(*net.UDPAddr)
	return addr
}

// Stats returns current operational statistics.
func (c *Client) Stats() Stats {
	return Stats{
		FramesTx:        c.framesTx.Load(),
		FramesRx:        c.framesRx.Load(),
		FramesDropped:   c.framesDropped.Load(),
		ErrorsTotal:     c.errorsTotal.Load(),
		Timeouts:        c.timeouts.Load(),
		PendingRequests: c.pending.Len(),
		LastActivity:    time.Unix(c.lastActivity.Load(), 0),
	}
}

// SetLogger sets the logger for this client.
func (c *Client) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

func (c *Client) getLogger() Logger {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	return c.logger
}

func (c *Client) logDebug(msg string, keysAndValues ...any) {
	if logger := c.getLogger(); logger != nil {
		logger.Debug(msg, keysAndValues...)
	}
}

func (c *Client) logInfo(msg string, keysAndValues ...any) {
	if logger := c.getLogger(); logger != nil {
		logger.Info(msg, keysAndValues...)
	}
}

func (c *Client) logWarn(msg string, keysAndValues ...any) {
	if logger := c.getLogger(); logger != nil {
		logger.Warn(msg, keysAndValues...)
	}
}

func (c *Client) logError(msg string, err error) {
	if logger := c.getLogger(); logger != nil {
		logger.Error(msg, "error", err)
	}
}
