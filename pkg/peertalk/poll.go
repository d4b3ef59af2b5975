package peertalk

import (
	"github.com/jabolina/peertalk/pkg/peertalk/core"
	"github.com/jabolina/peertalk/pkg/peertalk/types"
)

// pingIntervalTicks is how often each Connected peer gets a fresh Ping
// (spec §4.3 "Ping/Pong" housekeeping), whether or not it has had recent
// traffic, independent of the discovery announce interval.
const pingIntervalTicks = 15_000

// Poll drives one tick of the core state machine in the fixed order spec
// §4.6 mandates: discovery, connection lifecycle, receive, send,
// housekeeping, then batch flush. It never blocks; everything it touches
// is either already buffered by the transport or an in-memory structure.
func (c *Context) Poll() {
	if c.shutdown {
		return
	}
	now := c.ops.NowTicks()

	c.pollDiscovery(now)
	c.pollConnections(now)
	c.pollReceive()
	c.pollSendAndHousekeeping(now)
	c.flushBatch()
}

// pollConnections accepts inbound connections, advances pending outbound
// connects, and enforces connect/close timeouts (spec §4.5).
func (c *Context) pollConnections(now int64) {
	for {
		handle, kind, remote, ok := c.ops.Accept()
		if !ok {
			break
		}
		c.acceptConnection(handle, kind, remote, now)
	}

	c.manager.Each(func(p *core.Peer) {
		switch p.State {
		case types.Connecting:
			done, connectOk := c.ops.PollConnect(p.Conn)
			if !done {
				if now-p.ConnectStart > c.ticksOr(c.cfg.ConnectTimeoutTicks, 30_000) {
					c.failPeer(p, types.ReasonTimeout)
				}
				return
			}
			if !connectOk {
				c.failPeer(p, types.ReasonConnectFailed)
				return
			}
			if err := c.manager.SetState(p.Id, types.Connected); err != nil {
				c.log.Error("invalid post-connect transition", types.Fields{"peer_id": p.Id.String(), "error": err.Error()})
				return
			}
			c.cfg.Callbacks.fireConnected(p.Id, p.ConnectedTransport)
		case types.Disconnecting:
			if now-p.CloseStart > c.ticksOr(c.cfg.GracefulCloseTicks, 30_000) {
				c.ops.Disconnect(p.Conn)
				c.finishDisconnect(p, types.ReasonLocalDisconnect)
			}
		}
	})
}

func (c *Context) acceptConnection(handle core.ConnHandle, kind types.TransportKind, remote types.Endpoint, now int64) {
	p := c.manager.FindByEndpoint(kind, remote)
	if p == nil {
		id, err := c.manager.Create("", kind, remote)
		if err != nil {
			c.log.Warn("inbound connection dropped, peer table full", types.Fields{"error": err.Error()})
			c.ops.Disconnect(handle)
			return
		}
		p = c.manager.FindByID(id)
	}
	if p.State != types.Discovered {
		c.ops.Disconnect(handle)
		return
	}
	p.Queue = core.NewQueue(c.cfg.SendQueueCapacity)
	p.Framer = core.NewFramer(c.cfg.MessageMax)
	p.Conn = handle
	p.ConnectedTransport = kind
	p.LastSeenTick = now
	if err := c.manager.SetState(p.Id, types.Connecting); err != nil {
		c.log.Error("invalid accept transition", types.Fields{"peer_id": p.Id.String(), "error": err.Error()})
		return
	}
	if err := c.manager.SetState(p.Id, types.Connected); err != nil {
		c.log.Error("invalid accept transition", types.Fields{"peer_id": p.Id.String(), "error": err.Error()})
		return
	}
	c.cfg.Callbacks.fireConnected(p.Id, kind)
}

// pollReceive feeds every Connected peer's inbound bytes through its
// framer and dispatches completed frames (spec §4.3, §4.6 step 4).
func (c *Context) pollReceive() {
	buf := make([]byte, c.cfg.MessageMax+types.HeaderSize+types.CRCSize)
	c.manager.Each(func(p *core.Peer) {
		if p.State != types.Connected || p.Framer == nil {
			return
		}
		for {
			n, more := c.ops.RecvInto(p.Conn, buf)
			if n == 0 {
				if !more {
					return
				}
				continue
			}
			data := buf[:n]
			for len(data) > 0 {
				outcome, consumed, msg := p.Framer.Feed(data)
				data = data[consumed:]
				switch outcome {
				case core.OutcomeMessage:
					c.handleMessage(p, msg)
					if p.Framer == nil {
						return // this frame closed the peer
					}
				case core.OutcomeProtocolError:
					p.Stats.FramesCRCErr = p.Framer.CRCFailures()
					c.failPeer(p, types.ReasonProtocolError)
					return
				}
			}
			if !more {
				return
			}
		}
	})
}

func (c *Context) handleMessage(p *core.Peer, msg core.DeliveredMessage) {
	now := c.ops.NowTicks()
	switch core.Dispatch(p, msg, now) {
	case core.DispatchData:
		if c.cfg.Callbacks.OnMessageBatch != nil {
			c.batch = append(c.batch, MessageBatchEntry{From: p.Id, Transport: p.ConnectedTransport, Payload: msg.Payload})
		} else {
			c.cfg.Callbacks.fireMessage(p.Id, p.ConnectedTransport, msg.Payload)
		}
	case core.DispatchPing:
		frame := core.EncodeFrame(types.MessagePong, msg.Seq, 0, nil)
		c.ops.Send(p.Conn, frame)
	case core.DispatchPong:
		// stats already updated by Dispatch
	case core.DispatchDisconnect:
		if err := c.manager.SetState(p.Id, types.Disconnecting); err != nil {
			c.log.Error("remote disconnect transition error", types.Fields{"peer_id": p.Id.String(), "error": err.Error()})
			return
		}
		c.ops.Disconnect(p.Conn)
		c.finishDisconnect(p, types.ReasonRemoteDisconnect)
	case core.DispatchAck:
		// reserved; no action beyond the stats bump Dispatch already applied
	}
}

// pollSendAndHousekeeping drains queued sends and issues a keepalive Ping to
// every Connected peer once per pingIntervalTicks (spec §4.6 steps 5-6); a
// Ping still unanswered when the next one goes out lowers quality.
func (c *Context) pollSendAndHousekeeping(now int64) {
	c.manager.Each(func(p *core.Peer) {
		if p.State != types.Connected {
			return
		}
		drainSend(c, p)
		if now-p.PingSentTick >= pingIntervalTicks {
			frame := core.SendPing(p, now)
			c.ops.Send(p.Conn, frame)
		}
	})
}

// flushBatch delivers any accumulated MessageBatchEntry values in one call
// (spec §3 "Batch Buffer"), then clears it.
func (c *Context) flushBatch() {
	if len(c.batch) == 0 {
		return
	}
	if c.cfg.Callbacks.OnMessageBatch != nil {
		c.cfg.Callbacks.OnMessageBatch(c.batch)
	}
	c.batch = c.batch[:0]
}

func (c *Context) failPeer(p *core.Peer, reason types.DiscoveryReason) {
	c.ops.Disconnect(p.Conn)
	wasConnected := p.State == types.Connected
	transport := p.ConnectedTransport
	switch p.State {
	case types.Connecting:
		if err := c.manager.SetState(p.Id, types.Failed); err != nil {
			c.log.Error("failPeer transition error", types.Fields{"peer_id": p.Id.String(), "error": err.Error()})
			return
		}
		c.cfg.Callbacks.fireDisconnected(p.Id, transport, reason)
		_ = c.manager.SetState(p.Id, types.Unused)
	case types.Connected:
		if err := c.manager.SetState(p.Id, types.Disconnecting); err != nil {
			c.log.Error("failPeer transition error", types.Fields{"peer_id": p.Id.String(), "error": err.Error()})
			return
		}
		c.finishDisconnect(p, reason)
	}
	if wasConnected {
		c.cfg.Callbacks.fireLost(p.Id, transport)
	}
}

func (c *Context) finishDisconnect(p *core.Peer, reason types.DiscoveryReason) {
	transport := p.ConnectedTransport
	id := p.Id
	p.Queue = nil
	p.Framer = nil
	p.ConnectedTransport = 0
	if err := c.manager.SetState(id, types.Unused); err != nil {
		c.log.Error("finishDisconnect transition error", types.Fields{"peer_id": id.String(), "error": err.Error()})
		return
	}
	c.cfg.Callbacks.fireDisconnected(id, transport, reason)
}

func (c *Context) ticksOr(v, fallback int64) int64 {
	if v <= 0 {
		return fallback
	}
	return v
}
