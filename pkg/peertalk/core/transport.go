package core

import (
	"time"

	"github.com/jabolina/peertalk/pkg/peertalk/types"
)

// SendResult is what a transport's Send reports back to the poll driver's
// send path (spec §4.6 step 5).
type SendResult uint8

const (
	SendAll SendResult = iota
	SendFlowControlled
	SendFatal
)

// ConnHandle identifies one transport-level connection to the capability
// set. Concrete transports are free to interpret it (fd, socket ref,
// ADSP connection-end) as long as it is stable for the connection's
// lifetime.
type ConnHandle uint64

// Ops is the platform capability set the core requires from any transport
// (spec §3 "Platform Capability Handle", §9 "Replace the C function-pointer
// vtable with a capability trait/interface"). The core owns the handle
// exclusively; a transport implementation never reaches back into peer
// tables or queues, only into this interface's callback-context
// restrictions (spec §5).
type Ops interface {
	// NowTicks returns a monotonic tick counter (milliseconds is a
	// reasonable unit); the core never calls a wall-clock API directly so
	// tests can inject a fake clock.
	NowTicks() int64

	// Connect issues a non-blocking connect to endpoint over the given
	// transport kind, pre-allocating nothing further (the core has already
	// allocated queues/framer before calling this, per spec §4.5 step 3).
	// It returns a ConnHandle immediately; completion is observed later via
	// the handle's hot flags (PollConnect).
	Connect(kind types.TransportKind, endpoint types.Endpoint) (ConnHandle, error)

	// Disconnect closes a connection. Always safe to call more than once.
	Disconnect(handle ConnHandle)

	// Send writes a fully-framed buffer (or a raw unreliable datagram) to
	// handle without blocking.
	Send(handle ConnHandle, data []byte) SendResult

	// SendUDP sends an unreliable datagram to endpoint without requiring a
	// prior Connect. Returns KindNotSupported via the bool if this
	// transport has no unreliable path (spec §7 NotSupported).
	SendUDP(endpoint types.Endpoint, data []byte) (ok bool, err error)

	// RecvInto copies any bytes currently buffered for handle into dst,
	// returning how many bytes were copied and whether more data is
	// immediately available (an explicit "would block"-style signal, spec
	// §4.3: "the transport decides this via an explicit WouldBlock-style
	// return").
	RecvInto(handle ConnHandle, dst []byte) (n int, more bool)

	// PollConnect reports whether a pending non-blocking Connect finished,
	// and whether it succeeded.
	PollConnect(handle ConnHandle) (done bool, ok bool)

	// Accept drains one pending inbound connection, if any, along with the
	// transport kind and remote endpoint it arrived on.
	Accept() (handle ConnHandle, kind types.TransportKind, remote types.Endpoint, ok bool)

	// DiscoverySend broadcasts a discovery datagram on the configured
	// discovery channel for kind (UDP broadcast, or NBP registration).
	DiscoverySend(kind types.TransportKind, data []byte) error

	// DiscoveryRecv drains one pending discovery datagram, if any, along
	// with the sender's endpoint.
	DiscoveryRecv() (data []byte, from types.Endpoint, ok bool)
}

// HotFlags is the cache-line-sized, callback-safe record a transport's
// interrupt/deferred-task-time completion handler is allowed to touch
// (spec §9 "split each per-connection record into a small ... hot part").
// Only atomic operations may touch these fields from callback context;
// the poll driver is the sole reader/clearer.
type HotFlags struct {
	readable   int32 // atomic: set by callback, cleared by poll driver after drain
	writable   int32 // atomic
	connected  int32 // atomic: non-blocking connect completed
	connectErr int32 // atomic: 1 if the completed connect failed
	closed     int32 // atomic: remote closed / fatal error observed
}

// Common discovery timing constants (spec §4.4, §5).
const (
	DiscoveryAnnounceInterval = 10 * time.Second
	DiscoveryFreshness        = 30 * time.Second
	ConnectTimeout            = 30 * time.Second
	GracefulCloseTimeout      = 30 * time.Second
)
