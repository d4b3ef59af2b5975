package types

import "fmt"

// PeerId is a dense, non-zero, process-scoped identifier. It encodes a slot
// index and a generation counter so that an id belonging to a destroyed
// peer can never be mistaken for a live peer occupying a reused slot
// (spec §3 invariants): Id == 0 means "no peer".
type PeerId uint64

// NewPeerId packs a slot index and generation into a PeerId. Manager starts
// every slot's generation at 1, so issued ids (slot 0's included) are never
// 0, which stays reserved for "absent".
func NewPeerId(slot uint32, generation uint32) PeerId {
	return PeerId(uint64(slot)<<32 | uint64(generation))
}

// Slot extracts the slot index from a PeerId.
func (id PeerId) Slot() uint32 { return uint32(id >> 32) }

// Generation extracts the generation counter from a PeerId.
func (id PeerId) Generation() uint32 { return uint32(id) }

func (id PeerId) String() string {
	return fmt.Sprintf("peer#%d.%d", id.Slot(), id.Generation())
}

// MaxNameLength bounds Peer.Name (spec §3: "≤ 31 code units").
const MaxNameLength = 31

// TransportKind names a protocol/stack pair this peer may be reached on.
// It doubles as a bitmask element for Peer.AvailableTransports.
type TransportKind uint8

const (
	TransportTCP TransportKind = 1 << iota
	TransportUDP
	TransportADSP
	TransportNBP
)

func (k TransportKind) String() string {
	switch k {
	case TransportTCP:
		return "TCP"
	case TransportUDP:
		return "UDP"
	case TransportADSP:
		return "ADSP"
	case TransportNBP:
		return "NBP"
	default:
		return "Unknown"
	}
}

// TransportMask is a bitmask over TransportKind values.
type TransportMask uint8

func (m TransportMask) Has(k TransportKind) bool { return m&TransportMask(k) != 0 }
func (m TransportMask) With(k TransportKind) TransportMask {
	return m | TransportMask(k)
}
func (m TransportMask) Without(k TransportKind) TransportMask {
	return m &^ TransportMask(k)
}
func (m TransportMask) Empty() bool { return m == 0 }

// Endpoint is a transport address. Which fields are meaningful depends on
// Kind: TCP/UDP use Address+Port; ADSP uses Address+Port (a DDP node/socket
// pair rendered as host:port by the transport); NBP uses Object+Zone.
type Endpoint struct {
	Kind    TransportKind
	Address string
	Port    uint16
	Object  string // NBP entity name, e.g. "Alice"
	Zone    string // NBP zone, "*" for the local zone
}

func (e Endpoint) String() string {
	switch e.Kind {
	case TransportNBP:
		return fmt.Sprintf("%s:PeerTalk@%s", e.Object, e.Zone)
	default:
		return fmt.Sprintf("%s:%d", e.Address, e.Port)
	}
}

// State is the peer lifecycle state (spec §4.1 state machine).
type State uint8

const (
	Unused State = iota
	Discovered
	Connecting
	Connected
	Disconnecting
	Failed
)

func (s State) String() string {
	switch s {
	case Unused:
		return "Unused"
	case Discovered:
		return "Discovered"
	case Connecting:
		return "Connecting"
	case Connected:
		return "Connected"
	case Disconnecting:
		return "Disconnecting"
	case Failed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// ValidTransition reports whether from -> to is one of the edges drawn in
// spec §4.1's state diagram. Anything else must be rejected with
// KindInvalidState.
func ValidTransition(from, to State) bool {
	switch from {
	case Unused:
		return to == Discovered
	case Discovered:
		return to == Connecting || to == Connected || to == Unused
	case Connecting:
		return to == Connected || to == Failed
	case Connected:
		return to == Disconnecting
	case Disconnecting:
		return to == Unused
	case Failed:
		return to == Unused
	default:
		return false
	}
}

// DiscoveryRecord is one transport address record learned (or configured)
// for a peer, aging independently per transport (spec §3).
type DiscoveryRecord struct {
	Transport    TransportKind
	Endpoint     Endpoint
	Flags        uint16
	SenderPort   uint16
	LastSeenTick int64
}

// MatchStrength is the result of name-matching dedup (spec §4.1).
type MatchStrength uint8

const (
	MatchNone MatchStrength = iota
	MatchName
	MatchNameExact
)

// DiscoveryReason explains why a peer or transport went away, surfaced via
// on_peer_lost/on_peer_disconnected callbacks.
type DiscoveryReason uint8

const (
	ReasonUnspecified DiscoveryReason = iota
	ReasonTimeout
	ReasonRemoteGoodbye
	ReasonLocalDisconnect
	ReasonRemoteDisconnect
	ReasonConnectFailed
	ReasonProtocolError
	ReasonShutdown
)

func (r DiscoveryReason) String() string {
	switch r {
	case ReasonTimeout:
		return "Timeout"
	case ReasonRemoteGoodbye:
		return "RemoteGoodbye"
	case ReasonLocalDisconnect:
		return "LocalDisconnect"
	case ReasonRemoteDisconnect:
		return "RemoteDisconnect"
	case ReasonConnectFailed:
		return "ConnectFailed"
	case ReasonProtocolError:
		return "ProtocolError"
	case ReasonShutdown:
		return "Shutdown"
	default:
		return "Unspecified"
	}
}

// TransportPreference picks which transport to use when several are
// available for a peer (spec §4.1).
type TransportPreference uint8

const (
	PreferTcp TransportPreference = iota
	PreferAdsp
	PreferFastest
)

// Stats are the per-peer (and, summed, global) counters spec §3/§6 name.
type Stats struct {
	BytesIn      uint64
	BytesOut     uint64
	MessagesIn   uint64
	MessagesOut  uint64
	RTTMillis    float64 // rolling latency, see core dispatch Pong handling
	Quality      uint8   // 0-100 banding derived from RTT/loss evidence
	FramesCRCErr uint64
}

// PeerInfo is the read-only snapshot returned by GetPeerInfo/GetPeers.
type PeerInfo struct {
	Id                  PeerId
	Name                string
	State               State
	AvailableTransports TransportMask
	ConnectedTransport   TransportKind
	Records             []DiscoveryRecord
	Stats               Stats
}
