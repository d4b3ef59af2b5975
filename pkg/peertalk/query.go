package peertalk

import (
	"github.com/jabolina/peertalk/pkg/peertalk/core"
	"github.com/jabolina/peertalk/pkg/peertalk/stats"
	"github.com/jabolina/peertalk/pkg/peertalk/types"
)

func peerInfo(p *core.Peer) types.PeerInfo {
	records := make([]types.DiscoveryRecord, len(p.Records))
	copy(records, p.Records)
	return types.PeerInfo{
		Id:                  p.Id,
		Name:                p.Name,
		State:               p.State,
		AvailableTransports: p.AvailableTransports,
		ConnectedTransport:  p.ConnectedTransport,
		Records:             records,
		Stats:               p.Stats,
	}
}

// GetPeers returns a snapshot of every live peer (spec §6).
func (c *Context) GetPeers() []types.PeerInfo {
	out := make([]types.PeerInfo, 0, c.manager.Len())
	c.manager.Each(func(p *core.Peer) {
		out = append(out, peerInfo(p))
	})
	return out
}

// GetPeerInfo returns one peer's snapshot, or KindNotFound.
func (c *Context) GetPeerInfo(id types.PeerId) (types.PeerInfo, error) {
	p := c.manager.FindByID(id)
	if p == nil {
		return types.PeerInfo{}, types.NewError(op+".GetPeerInfo", types.KindNotFound, "unknown peer")
	}
	return peerInfo(p), nil
}

// GetPeerTransports returns the transport mask currently available for id.
func (c *Context) GetPeerTransports(id types.PeerId) (types.TransportMask, error) {
	p := c.manager.FindByID(id)
	if p == nil {
		return 0, types.NewError(op+".GetPeerTransports", types.KindNotFound, "unknown peer")
	}
	return p.AvailableTransports, nil
}

// GetQueuePressure returns a peer's send-queue fill percentage (0-100), or
// 0 if the peer isn't Connected (it has no queue yet).
func (c *Context) GetQueuePressure(id types.PeerId) (int, error) {
	p := c.manager.FindByID(id)
	if p == nil {
		return 0, types.NewError(op+".GetQueuePressure", types.KindNotFound, "unknown peer")
	}
	if p.Queue == nil {
		return 0, nil
	}
	return p.Queue.Pressure(), nil
}

// GetPeerStats returns one peer's counters.
func (c *Context) GetPeerStats(id types.PeerId) (types.Stats, error) {
	p := c.manager.FindByID(id)
	if p == nil {
		return types.Stats{}, types.NewError(op+".GetPeerStats", types.KindNotFound, "unknown peer")
	}
	return p.Stats, nil
}

// GetStats aggregates every peer's counters into one rollup (SPEC_FULL.md
// §12 "GetStats global rollup"), also exposed as Prometheus metrics via
// stats.NewCollector(ctx).
func (c *Context) GetStats() types.Stats {
	var total types.Stats
	n := 0
	c.manager.Each(func(p *core.Peer) {
		total.BytesIn += p.Stats.BytesIn
		total.BytesOut += p.Stats.BytesOut
		total.MessagesIn += p.Stats.MessagesIn
		total.MessagesOut += p.Stats.MessagesOut
		total.FramesCRCErr += p.Stats.FramesCRCErr
		total.RTTMillis += p.Stats.RTTMillis
		total.Quality += 0 // quality is averaged below, not summed
		n++
	})
	if n > 0 {
		total.RTTMillis /= float64(n)
		sum := 0
		c.manager.Each(func(p *core.Peer) { sum += int(p.Stats.Quality) })
		total.Quality = uint8(sum / n)
	}
	return total
}

// Snapshot implements stats.Source, letting a stats.Collector be
// registered against a live Context without that package importing this
// one (avoids an import cycle; see stats/collector.go).
func (c *Context) Snapshot() stats.Snapshot {
	peers := make([]stats.PeerSnapshot, 0, c.manager.Len())
	c.manager.Each(func(p *core.Peer) {
		pressure := 0
		if p.Queue != nil {
			pressure = p.Queue.Pressure()
		}
		peers = append(peers, stats.PeerSnapshot{
			Id:       p.Id,
			Name:     p.Name,
			State:    p.State,
			Stats:    p.Stats,
			Pressure: pressure,
		})
	})
	return stats.Snapshot{Peers: peers}
}
