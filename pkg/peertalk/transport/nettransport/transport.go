// Package nettransport is the reference core.Ops implementation: real TCP
// and UDP sockets via the standard net package, background goroutines
// supervised by golang.org/x/sync/errgroup (grounded in
// facebook-time/ptp/sptp/client.Client's use of errgroup to supervise its
// receive loop), completions surfacing to the poll driver only through
// atomic flags — never by touching the peer table directly (spec §9
// "ISR-safe" contract). It speaks TCP and UDP; ADSP/NBP are Non-goals for
// this reference transport (SPEC_FULL.md §13 carries that forward — no
// AppleTalk stack ships in the standard library or this module's
// dependency set).
package nettransport

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jabolina/peertalk/pkg/peertalk/core"
	"github.com/jabolina/peertalk/pkg/peertalk/types"
)

// conn is one TCP connection's hot/cold split (spec §9): connectDone,
// connectOk and hotClosed are set atomically by background goroutines;
// recvBuf is appended to by the read loop and drained by the poll driver's
// RecvInto calls, both holding mu only for the brief copy.
type conn struct {
	nc net.Conn

	connectDone int32 // atomic: non-blocking Connect finished
	connectOk   int32 // atomic
	hotClosed   int32 // atomic: set by the read loop or Disconnect

	mu      sync.Mutex
	recvBuf []byte
}

// Transport implements core.Ops over net.Conn/net.PacketConn. Construct
// with New, then call ListenTCP/ListenUDP as configured before handing it
// to peertalk.Init.
type Transport struct {
	group  *errgroup.Group
	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	conns     map[core.ConnHandle]*conn
	nextConn  uint64
	pending   []pendingAccept
	discoveryIn []discoveryDatagram

	tcpListener net.Listener
	udpConn     *net.UDPConn
	udpMessage  *net.UDPConn // separate socket for the unreliable messaging channel
	broadcast   *net.UDPAddr
}

type pendingAccept struct {
	handle core.ConnHandle
	kind   types.TransportKind
	remote types.Endpoint
}

type discoveryDatagram struct {
	data []byte
	from types.Endpoint
}

// New builds an idle Transport; nothing is listening until the relevant
// Listen* method is called.
func New() *Transport {
	ctx, cancel := context.WithCancel(context.Background())
	group, gctx := errgroup.WithContext(ctx)
	return &Transport{
		group:  group,
		ctx:    gctx,
		cancel: cancel,
		conns:  make(map[core.ConnHandle]*conn),
	}
}

// ListenTCP starts accepting inbound TCP connections on port.
func (t *Transport) ListenTCP(port uint16) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return err
	}
	t.tcpListener = ln
	t.group.Go(func() error { return t.acceptLoop(ln) })
	return nil
}

// ListenUDP starts the UDP broadcast discovery socket and a separate
// unreliable-messaging socket on port+1, and records broadcastAddr for
// DiscoverySend.
func (t *Transport) ListenUDP(port uint16, broadcastAddr string) error {
	uc, err := net.ListenUDP("udp", &net.UDPAddr{Port: int(port)})
	if err != nil {
		return err
	}
	t.udpConn = uc
	addr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", broadcastAddr, port))
	if err != nil {
		return err
	}
	t.broadcast = addr
	t.group.Go(func() error { return t.discoveryRecvLoop(uc) })

	um, err := net.ListenUDP("udp", &net.UDPAddr{Port: int(port) + 1})
	if err != nil {
		return err
	}
	t.udpMessage = um
	return nil
}

// Close stops all background goroutines and closes every socket.
func (t *Transport) Close() {
	t.cancel()
	if t.tcpListener != nil {
		t.tcpListener.Close()
	}
	if t.udpConn != nil {
		t.udpConn.Close()
	}
	if t.udpMessage != nil {
		t.udpMessage.Close()
	}
	t.mu.Lock()
	for _, c := range t.conns {
		c.nc.Close()
	}
	t.mu.Unlock()
	_ = t.group.Wait()
}

func (t *Transport) acceptLoop(ln net.Listener) error {
	for {
		nc, err := ln.Accept()
		if err != nil {
			if t.ctx.Err() != nil {
				return nil
			}
			return err
		}
		handle := t.register(nc)
		remote := endpointFromAddr(types.TransportTCP, nc.RemoteAddr())
		t.mu.Lock()
		t.pending = append(t.pending, pendingAccept{handle: handle, kind: types.TransportTCP, remote: remote})
		t.mu.Unlock()
		t.group.Go(func() error { return t.readLoop(handle, nc) })
	}
}

func (t *Transport) register(nc net.Conn) core.ConnHandle {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nextConn++
	handle := core.ConnHandle(t.nextConn)
	t.conns[handle] = &conn{nc: nc}
	return handle
}

func (t *Transport) readLoop(handle core.ConnHandle, nc net.Conn) error {
	buf := make([]byte, 4096)
	for {
		n, err := nc.Read(buf)
		if n > 0 {
			t.mu.Lock()
			c := t.conns[handle]
			t.mu.Unlock()
			if c != nil {
				c.mu.Lock()
				c.recvBuf = append(c.recvBuf, buf[:n]...)
				c.mu.Unlock()
			}
		}
		if err != nil {
			t.mu.Lock()
			c := t.conns[handle]
			t.mu.Unlock()
			if c != nil {
				atomic.StoreInt32(&c.hotClosed, 1)
			}
			if t.ctx.Err() != nil {
				return nil
			}
			return nil // a closed peer connection is not a Transport-fatal error
		}
	}
}

func (t *Transport) discoveryRecvLoop(uc *net.UDPConn) error {
	buf := make([]byte, types.MaxDiscoveryDatagram)
	for {
		n, addr, err := uc.ReadFromUDP(buf)
		if err != nil {
			if t.ctx.Err() != nil {
				return nil
			}
			return nil
		}
		data := make([]byte, n)
		copy(data, buf[:n])
		t.mu.Lock()
		t.discoveryIn = append(t.discoveryIn, discoveryDatagram{
			data: data,
			from: types.Endpoint{Kind: types.TransportUDP, Address: addr.IP.String(), Port: uint16(addr.Port)},
		})
		t.mu.Unlock()
	}
}

func endpointFromAddr(kind types.TransportKind, addr net.Addr) types.Endpoint {
	host, portStr, err := net.SplitHostPort(addr.String())
	if err != nil {
		return types.Endpoint{Kind: kind, Address: addr.String()}
	}
	var port uint16
	fmt.Sscanf(portStr, "%d", &port)
	return types.Endpoint{Kind: kind, Address: host, Port: port}
}

// --- core.Ops ---

func (t *Transport) NowTicks() int64 { return time.Now().UnixMilli() }

func (t *Transport) Connect(kind types.TransportKind, endpoint types.Endpoint) (core.ConnHandle, error) {
	if kind != types.TransportTCP {
		return 0, types.NewError("nettransport.Connect", types.KindNotSupported, "only TCP connect-oriented transport supported")
	}
	c := &conn{}
	t.mu.Lock()
	t.nextConn++
	handle := core.ConnHandle(t.nextConn)
	t.conns[handle] = c
	t.mu.Unlock()

	addr := fmt.Sprintf("%s:%d", endpoint.Address, endpoint.Port)
	t.group.Go(func() error {
		nc, err := net.DialTimeout("tcp", addr, core.ConnectTimeout)
		if err != nil {
			atomic.StoreInt32(&c.connectDone, 1)
			atomic.StoreInt32(&c.connectOk, 0)
			return nil
		}
		c.nc = nc
		atomic.StoreInt32(&c.connectOk, 1)
		atomic.StoreInt32(&c.connectDone, 1)
		return t.readLoop(handle, nc)
	})
	return handle, nil
}

func (t *Transport) Disconnect(handle core.ConnHandle) {
	t.mu.Lock()
	c, ok := t.conns[handle]
	if ok {
		delete(t.conns, handle)
	}
	t.mu.Unlock()
	if ok && c.nc != nil {
		c.nc.Close()
	}
}

func (t *Transport) Send(handle core.ConnHandle, data []byte) core.SendResult {
	t.mu.Lock()
	c, ok := t.conns[handle]
	t.mu.Unlock()
	if !ok || c.nc == nil || atomic.LoadInt32(&c.hotClosed) == 1 {
		return core.SendFatal
	}
	c.nc.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if _, err := c.nc.Write(data); err != nil {
		if ne, isNet := err.(net.Error); isNet && ne.Timeout() {
			return core.SendFlowControlled
		}
		return core.SendFatal
	}
	return core.SendAll
}

func (t *Transport) SendUDP(endpoint types.Endpoint, data []byte) (bool, error) {
	if t.udpMessage == nil {
		return false, nil // no unreliable path; core.Ops reports this through ok
	}
	addr := &net.UDPAddr{IP: net.ParseIP(endpoint.Address), Port: int(endpoint.Port)}
	if _, err := t.udpMessage.WriteToUDP(data, addr); err != nil {
		return false, err
	}
	return true, nil
}

func (t *Transport) RecvInto(handle core.ConnHandle, dst []byte) (int, bool) {
	t.mu.Lock()
	c, ok := t.conns[handle]
	t.mu.Unlock()
	if !ok {
		return 0, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	n := copy(dst, c.recvBuf)
	c.recvBuf = c.recvBuf[n:]
	return n, len(c.recvBuf) > 0
}

func (t *Transport) PollConnect(handle core.ConnHandle) (done bool, ok bool) {
	t.mu.Lock()
	c, exists := t.conns[handle]
	t.mu.Unlock()
	if !exists {
		return true, false
	}
	return atomic.LoadInt32(&c.connectDone) == 1, atomic.LoadInt32(&c.connectOk) == 1
}

func (t *Transport) Accept() (core.ConnHandle, types.TransportKind, types.Endpoint, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.pending) == 0 {
		return 0, 0, types.Endpoint{}, false
	}
	p := t.pending[0]
	t.pending = t.pending[1:]
	return p.handle, p.kind, p.remote, true
}

func (t *Transport) DiscoverySend(kind types.TransportKind, data []byte) error {
	if kind != types.TransportUDP {
		return types.NewError("nettransport.DiscoverySend", types.KindNotSupported, "only UDP discovery supported")
	}
	if t.udpConn == nil || t.broadcast == nil {
		return types.NewError("nettransport.DiscoverySend", types.KindInvalidState, "UDP discovery not listening")
	}
	_, err := t.udpConn.WriteToUDP(data, t.broadcast)
	return err
}

func (t *Transport) DiscoveryRecv() ([]byte, types.Endpoint, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.discoveryIn) == 0 {
		return nil, types.Endpoint{}, false
	}
	d := t.discoveryIn[0]
	t.discoveryIn = t.discoveryIn[1:]
	return d.data, d.from, true
}

var _ core.Ops = (*Transport)(nil)
