package core

import "github.com/jabolina/peertalk/pkg/peertalk/types"

// DispatchOutcome tells the poll driver what follow-up action a delivered
// frame requires (spec §4.3 dispatch table).
type DispatchOutcome uint8

const (
	// DispatchData: payload is an application message, route to
	// OnMessageReceived/OnMessageBatch.
	DispatchData DispatchOutcome = iota
	// DispatchPing: reply with a Pong carrying the same Seq, no application
	// callback fires.
	DispatchPing
	// DispatchPong: RTT/quality already updated on Peer, no application
	// callback fires.
	DispatchPong
	// DispatchDisconnect: peer requested a graceful close; caller should
	// transition the peer to Disconnecting (spec §4.5 "Disconnect frame").
	DispatchDisconnect
	// DispatchAck: reserved for future reliable-delivery use; currently
	// observed only as a stats bump (spec Non-goals: "no exactly-once").
	DispatchAck
)

// qualityFloor/qualityCeiling bound the banding computed in qualityFromRTT
// and degradeQuality.
const (
	qualityFloor   = 0
	qualityCeiling = 100

	// rttGoodMillis / rttBadMillis anchor the linear RTT-to-quality mapping:
	// at or below rttGoodMillis quality is unaffected by RTT, at or above
	// rttBadMillis RTT alone drives quality to qualityFloor.
	rttGoodMillis = 50.0
	rttBadMillis  = 1000.0

	// missedPingPenalty is subtracted from quality for each Ping that timed
	// out with no Pong before the next one was sent (spec §12 "ping-loss
	// evidence").
	missedPingPenalty = 20
)

// Dispatch applies a delivered frame to peer state and reports what the
// poll driver should do next (spec §4.3). It never fires application
// callbacks itself (spec §5: callbacks fire only from the poll driver).
func Dispatch(p *Peer, msg DeliveredMessage, now int64) DispatchOutcome {
	p.Stats.MessagesIn++
	p.Stats.BytesIn += uint64(types.HeaderSize + len(msg.Payload) + types.CRCSize)
	p.LastSeenTick = now

	switch msg.Type {
	case types.MessageData:
		// Only a Data frame advances recv_seq; control messages must not
		// (spec §4.3: "receivers must not update recv_seq from them").
		p.RecvSeq = msg.Seq
		return DispatchData
	case types.MessagePing:
		return DispatchPing
	case types.MessagePong:
		recordPong(p, now)
		return DispatchPong
	case types.MessageDisconnect:
		return DispatchDisconnect
	case types.MessageAck:
		return DispatchAck
	default:
		return DispatchAck
	}
}

// SendPing records an outstanding ping (for RTT/quality tracking) and
// returns the frame to send. Penalizes quality if a previous ping never
// got a Pong (spec §12: missed pings count as loss evidence).
func SendPing(p *Peer, now int64) []byte {
	if p.PingOutstanding {
		degradeQuality(p, missedPingPenalty)
	}
	p.PingOutstanding = true
	p.PingSentTick = now
	p.SendSeq++
	return EncodeFrame(types.MessagePing, p.SendSeq, 0, nil)
}

// recordPong computes RTT from the outstanding ping and folds it into the
// peer's rolling quality estimate.
func recordPong(p *Peer, now int64) {
	if !p.PingOutstanding {
		return // stray/duplicate Pong, ignore (no matching Ping in flight)
	}
	p.PingOutstanding = false
	rtt := now - p.PingSentTick
	if rtt < 0 {
		rtt = 0
	}
	// EWMA with alpha=0.25, matching the framer's steady-state-no-alloc
	// spirit: cheap, bounded, no history buffer.
	if p.Stats.RTTMillis == 0 {
		p.Stats.RTTMillis = float64(rtt)
	} else {
		p.Stats.RTTMillis = p.Stats.RTTMillis*0.75 + float64(rtt)*0.25
	}
	p.Stats.Quality = qualityFromRTT(p.Stats.RTTMillis)
}

// qualityFromRTT maps a rolling RTT onto the 0-100 band, linearly between
// rttGoodMillis (full marks) and rttBadMillis (zero).
func qualityFromRTT(rttMillis float64) uint8 {
	if rttMillis <= rttGoodMillis {
		return qualityCeiling
	}
	if rttMillis >= rttBadMillis {
		return qualityFloor
	}
	span := rttBadMillis - rttGoodMillis
	frac := (rttMillis - rttGoodMillis) / span
	return qualityCeiling - uint8(frac*float64(qualityCeiling))
}

func degradeQuality(p *Peer, penalty uint8) {
	if p.Stats.Quality < penalty {
		p.Stats.Quality = qualityFloor
		return
	}
	p.Stats.Quality -= penalty
}
