package peertalk

import (
	"github.com/jabolina/peertalk/pkg/peertalk/core"
	"github.com/jabolina/peertalk/pkg/peertalk/types"
)

// Send queues payload for a Connected peer at Normal priority, no
// coalescing (spec §6 convenience wrapper over SendEx).
func (c *Context) Send(id types.PeerId, payload []byte) error {
	return c.SendEx(id, payload, types.Normal, 0, types.CoalesceKey{})
}

// SendEx is the full-control send entry point (spec §4.2, §6).
// FlagUnreliable bypasses the send queue and framer entirely, handing
// payload straight to the transport's datagram path. FlagCoalesceNewest/
// FlagCoalesceOldest activate key-based coalescing using key, scoped to
// (key.Domain, id, key.Key) — see types.CoalesceKey.
func (c *Context) SendEx(id types.PeerId, payload []byte, priority types.Priority, flags types.SendFlags, key types.CoalesceKey) error {
	p := c.manager.FindByID(id)
	if p == nil {
		return types.NewError(op+".Send", types.KindNotFound, "unknown peer")
	}

	if flags&types.FlagUnreliable != 0 {
		var endpoint types.Endpoint
		found := false
		for _, r := range p.Records {
			if r.Transport == types.TransportUDP {
				endpoint = r.Endpoint
				found = true
				break
			}
		}
		if !found {
			return types.NewError(op+".Send", types.KindNotSupported, "peer has no UDP record for unreliable send")
		}
		datagram, err := types.UnreliableDatagram{Payload: payload}.Encode()
		if err != nil {
			return types.WrapError(op+".Send", types.KindMessageTooLarge, err)
		}
		ok, err := c.ops.SendUDP(endpoint, datagram)
		if err != nil {
			return types.WrapError(op+".Send", types.KindNetwork, err)
		}
		if !ok {
			return types.NewError(op+".Send", types.KindNotSupported, "transport rejected unreliable send")
		}
		p.Stats.MessagesOut++
		p.Stats.BytesOut += uint64(len(datagram))
		return nil
	}

	if p.State != types.Connected {
		return types.NewError(op+".Send", types.KindInvalidState, "peer not Connected")
	}

	key.Peer = id
	hasKey := flags&(types.FlagCoalesceNewest|types.FlagCoalesceOldest) != 0
	if hasKey && flags&types.FlagCoalesceOldest != 0 {
		// TryPush treats any coalesce hit as "newest wins in place"; Oldest
		// semantics (drop the new payload, keep the existing slot) are
		// obtained by pre-checking for an existing hit ourselves.
		if p.Queue.HasCoalesced(key) {
			return nil
		}
	}
	return p.Queue.TryPush(payload, priority, key, hasKey)
}

// drainSend moves queued payloads into the transport, one peer per Poll
// pass worth of capacity (spec §4.6 step 5 "Send"), framing each as it
// goes and stopping on the first flow-controlled or fatal result.
func drainSend(c *Context, p *core.Peer) {
	if p.Queue == nil || p.State != types.Connected {
		return
	}
	for {
		popped, ok := p.Queue.PopPriority()
		if !ok {
			return
		}
		seq := p.SendSeq + 1
		frame := core.EncodeFrame(types.MessageData, seq, 0, popped.Payload)
		switch c.ops.Send(p.Conn, frame) {
		case core.SendAll:
			p.SendSeq = seq
			p.Stats.MessagesOut++
			p.Stats.BytesOut += uint64(len(frame))
		case core.SendFlowControlled:
			// Transport buffer is full; no frame went out, so SendSeq does
			// not advance. Re-enqueue at the head of its priority so this
			// payload is the next one tried, rather than losing it (spec
			// §4.6 step 5 "leave in queue or re-enqueue at head"). Stop
			// draining this peer until the next Poll pass.
			p.Queue.PushFront(popped)
			return
		case core.SendFatal:
			c.failPeer(p, types.ReasonConnectFailed)
			return
		}
	}
}
