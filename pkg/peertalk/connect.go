package peertalk

import (
	"github.com/jabolina/peertalk/pkg/peertalk/core"
	"github.com/jabolina/peertalk/pkg/peertalk/types"
)

// Connect opens a connection to a Discovered peer using the transport
// preference policy (spec §4.1 PickTransport, §4.5 "Connection Lifecycle").
func (c *Context) Connect(id types.PeerId) error {
	p := c.manager.FindByID(id)
	if p == nil {
		return types.NewError(op+".Connect", types.KindNotFound, "unknown peer")
	}
	kind, err := core.PickTransport(p, c.cfg.TransportPreference)
	if err != nil {
		return err
	}
	return c.connectVia(p, kind)
}

// ConnectVia opens a connection over a specific transport kind, overriding
// the preference policy for this one call.
func (c *Context) ConnectVia(id types.PeerId, kind types.TransportKind) error {
	p := c.manager.FindByID(id)
	if p == nil {
		return types.NewError(op+".ConnectVia", types.KindNotFound, "unknown peer")
	}
	if !p.AvailableTransports.Has(kind) {
		return types.NewError(op+".ConnectVia", types.KindNotFound, "peer has no such transport")
	}
	return c.connectVia(p, kind)
}

func (c *Context) connectVia(p *core.Peer, kind types.TransportKind) error {
	if p.State != types.Discovered {
		return types.NewError(op+".Connect", types.KindInvalidState, "peer not in Discovered state")
	}
	var endpoint types.Endpoint
	found := false
	for _, r := range p.Records {
		if r.Transport == kind {
			endpoint = r.Endpoint
			found = true
			break
		}
	}
	if !found {
		return types.NewError(op+".Connect", types.KindNotFound, "no endpoint record for transport")
	}

	// Pre-allocate the queue and framer BEFORE the non-blocking connect
	// call, so a transport completion that fires before Poll runs again
	// never races an allocation (spec §4.5 step 3, §9 interrupt-time
	// safety).
	p.Queue = core.NewQueue(c.cfg.SendQueueCapacity)
	p.Framer = core.NewFramer(c.cfg.MessageMax)

	handle, err := c.ops.Connect(kind, endpoint)
	if err != nil {
		p.Queue = nil
		p.Framer = nil
		return types.WrapError(op+".Connect", types.KindNetwork, err)
	}
	p.Conn = handle
	p.ConnectedTransport = kind
	p.ConnectStart = c.ops.NowTicks()
	if err := c.manager.SetState(p.Id, types.Connecting); err != nil {
		return err
	}
	c.log.Debug("connect initiated", types.Fields{"peer_id": p.Id.String(), "transport": kind.String()})
	return nil
}

// Disconnect begins a graceful close of a Connected peer (spec §4.5).
// Completion (reaching Unused) happens in Poll once GracefulCloseTicks has
// elapsed since this call; Poll does not watch for the remote side
// finishing the close earlier.
func (c *Context) Disconnect(id types.PeerId) error {
	p := c.manager.FindByID(id)
	if p == nil {
		return types.NewError(op+".Disconnect", types.KindNotFound, "unknown peer")
	}
	if p.State != types.Connected {
		return types.NewError(op+".Disconnect", types.KindInvalidState, "peer not Connected")
	}
	p.CloseStart = c.ops.NowTicks()
	if err := c.manager.SetState(p.Id, types.Disconnecting); err != nil {
		return err
	}
	disconnectFrame := core.EncodeFrame(types.MessageDisconnect, p.SendSeq, 0, nil)
	c.ops.Send(p.Conn, disconnectFrame)
	return nil
}

// RemovePeer forcibly drops a peer regardless of state, disconnecting any
// live transport first.
func (c *Context) RemovePeer(id types.PeerId) error {
	p := c.manager.FindByID(id)
	if p == nil {
		return types.NewError(op+".RemovePeer", types.KindNotFound, "unknown peer")
	}
	if p.State == types.Connected || p.State == types.Connecting {
		c.ops.Disconnect(p.Conn)
	}
	switch p.State {
	case types.Connected:
		if err := c.manager.SetState(p.Id, types.Disconnecting); err != nil {
			return err
		}
	case types.Connecting:
		if err := c.manager.SetState(p.Id, types.Failed); err != nil {
			return err
		}
	}
	return c.manager.SetState(p.Id, types.Unused)
}

// RemovePeerTransport drops one transport record from a peer (spec §4.1
// "remove_transport"); the peer itself is destroyed if this was its last
// record and it isn't connected.
func (c *Context) RemovePeerTransport(id types.PeerId, kind types.TransportKind) error {
	_, err := c.manager.RemoveTransport(id, kind)
	if err == nil {
		c.cfg.Callbacks.fireTransportRemoved(id, kind)
	}
	return err
}

// MergePeers absorbs merge's transports into keep (spec §4.1 "merge").
func (c *Context) MergePeers(keep, merge types.PeerId) error {
	if err := c.manager.Merge(keep, merge); err != nil {
		return err
	}
	c.cfg.Callbacks.fireMerged(keep, merge)
	return nil
}

// SplitPeer detaches one transport into a freshly discovered peer, the
// inverse of MergePeers (spec §6, SPEC_FULL.md §12).
func (c *Context) SplitPeer(id types.PeerId, kind types.TransportKind) (types.PeerId, error) {
	newID, err := c.manager.Split(id, kind)
	if err != nil {
		return 0, err
	}
	if p := c.manager.FindByID(newID); p != nil {
		c.cfg.Callbacks.fireDiscovered(peerInfo(p))
	}
	return newID, nil
}
