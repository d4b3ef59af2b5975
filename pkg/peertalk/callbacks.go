package peertalk

import "github.com/jabolina/peertalk/pkg/peertalk/types"

// MessageBatchEntry is one application message queued in the batch buffer
// (spec §3 "Batch Buffer").
type MessageBatchEntry struct {
	From      types.PeerId
	Transport types.TransportKind
	Payload   []byte
}

// Callbacks is the application's notification table (spec §6). All
// callbacks fire from the poll driver, never from a transport completion
// callback (spec §5 "ISR-safe" contract), and must not reentrantly call
// mutating API methods (read-only queries are fine).
type Callbacks struct {
	OnPeerDiscovered   func(info types.PeerInfo)
	OnPeerLost         func(id types.PeerId, transport types.TransportKind)
	OnPeerConnected    func(id types.PeerId, transport types.TransportKind)
	OnPeerDisconnected func(id types.PeerId, transport types.TransportKind, reason types.DiscoveryReason)
	OnMessageReceived  func(from types.PeerId, transport types.TransportKind, payload []byte)
	// OnMessageBatch, when non-nil, is used INSTEAD of OnMessageReceived
	// for Data frames (spec §4.3 dispatch table).
	OnMessageBatch   func(entries []MessageBatchEntry)
	OnTransportAdded func(id types.PeerId, transport types.TransportKind)
	OnTransportRemoved func(id types.PeerId, transport types.TransportKind)
	OnPeersMerged    func(keep, merged types.PeerId)
}

func (c Callbacks) fireDiscovered(info types.PeerInfo) {
	if c.OnPeerDiscovered != nil {
		c.OnPeerDiscovered(info)
	}
}
func (c Callbacks) fireLost(id types.PeerId, t types.TransportKind) {
	if c.OnPeerLost != nil {
		c.OnPeerLost(id, t)
	}
}
func (c Callbacks) fireConnected(id types.PeerId, t types.TransportKind) {
	if c.OnPeerConnected != nil {
		c.OnPeerConnected(id, t)
	}
}
func (c Callbacks) fireDisconnected(id types.PeerId, t types.TransportKind, reason types.DiscoveryReason) {
	if c.OnPeerDisconnected != nil {
		c.OnPeerDisconnected(id, t, reason)
	}
}
func (c Callbacks) fireMessage(from types.PeerId, t types.TransportKind, payload []byte) {
	if c.OnMessageReceived != nil {
		c.OnMessageReceived(from, t, payload)
	}
}
func (c Callbacks) fireTransportAdded(id types.PeerId, t types.TransportKind) {
	if c.OnTransportAdded != nil {
		c.OnTransportAdded(id, t)
	}
}
func (c Callbacks) fireTransportRemoved(id types.PeerId, t types.TransportKind) {
	if c.OnTransportRemoved != nil {
		c.OnTransportRemoved(id, t)
	}
}
func (c Callbacks) fireMerged(keep, merged types.PeerId) {
	if c.OnPeersMerged != nil {
		c.OnPeersMerged(keep, merged)
	}
}
