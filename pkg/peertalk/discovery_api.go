package peertalk

import (
	"github.com/jabolina/peertalk/pkg/peertalk/core"
	"github.com/jabolina/peertalk/pkg/peertalk/types"
)

// StartDiscovery begins periodic Announce broadcasts and enables inbound
// discovery datagram processing (spec §4.4). Query is sent once
// immediately to shortcut the first announce interval.
func (c *Context) StartDiscovery() error {
	if c.discovering {
		return nil
	}
	c.discovering = true
	c.lastAnnounceTick = c.ops.NowTicks()
	return c.sendDiscovery(types.Query)
}

// StopDiscovery sends a Goodbye and stops further announces; inbound
// datagrams are still drained from the transport but discarded (Goodbyes
// included), and the discovery timeout sweep no longer runs.
func (c *Context) StopDiscovery() error {
	if !c.discovering {
		return nil
	}
	err := c.sendDiscovery(types.Goodbye)
	c.discovering = false
	return err
}

func (c *Context) sendDiscovery(kind types.DatagramType) error {
	var build func(string, uint16) ([]byte, error)
	switch kind {
	case types.Announce:
		build = core.BuildAnnounce
	case types.Query:
		build = core.BuildQuery
	default:
		build = core.BuildGoodbye
	}
	datagram, err := build(c.cfg.LocalName, c.cfg.TCPPort)
	if err != nil {
		return types.WrapError(op+".discovery", types.KindInvalidArg, err)
	}
	if c.cfg.Transports.Has(types.TransportUDP) {
		if err := c.ops.DiscoverySend(types.TransportUDP, datagram); err != nil {
			c.log.Warn("discovery send failed", types.Fields{"transport": "UDP", "error": err.Error()})
		}
	}
	if c.cfg.Transports.Has(types.TransportNBP) {
		if err := c.ops.DiscoverySend(types.TransportNBP, datagram); err != nil {
			c.log.Warn("discovery send failed", types.Fields{"transport": "NBP", "error": err.Error()})
		}
	}
	return nil
}

// pollDiscovery is step 2 of the poll tick (spec §4.6): re-announce on
// interval, drain inbound datagrams, sweep stale Discovered-only records.
func (c *Context) pollDiscovery(now int64) {
	if !c.discovering {
		c.drainDiscoveryDatagrams(now, false)
		return
	}

	announceTicks := c.cfg.DiscoveryFreshnessTicks / 3 // 10s announce vs 30s freshness, spec §4.4
	if announceTicks <= 0 {
		announceTicks = 10_000
	}
	if now-c.lastAnnounceTick >= announceTicks {
		if err := c.sendDiscovery(types.Announce); err != nil {
			c.log.Warn("announce failed", types.Fields{"error": err.Error()})
		}
		c.lastAnnounceTick = now
	}

	c.drainDiscoveryDatagrams(now, true)

	threshold := c.cfg.DiscoveryFreshnessTicks
	if threshold <= 0 {
		threshold = 30_000
	}
	for _, id := range c.manager.CheckTimeouts(now, threshold) {
		c.cfg.Callbacks.fireLost(id, 0)
	}
}

func (c *Context) drainDiscoveryDatagrams(now int64, createPeers bool) {
	for {
		data, from, ok := c.ops.DiscoveryRecv()
		if !ok {
			return
		}
		d, err := types.DecodeDiscoveryDatagram(data)
		if err != nil {
			c.log.Warn("malformed discovery datagram", types.Fields{"error": err.Error()})
			continue
		}
		kind := from.Kind
		if kind == 0 {
			kind = types.TransportUDP
		}
		endpoint := from
		endpoint.Port = d.SenderPort

		if !createPeers {
			continue
		}
		id, created, goodbye := core.HandleDiscoveryDatagram(c.manager, d, kind, endpoint, now)
		switch {
		case goodbye:
			if id != 0 {
				if _, err := c.manager.RemoveTransport(id, kind); err == nil {
					c.cfg.Callbacks.fireLost(id, kind)
				}
			}
		case created:
			if p := c.manager.FindByID(id); p != nil {
				c.cfg.Callbacks.fireDiscovered(peerInfo(p))
			}
		case id != 0:
			if added, err := c.manager.AddTransport(id, kind, endpoint); err == nil && added {
				c.cfg.Callbacks.fireTransportAdded(id, kind)
			}
		}
	}
}
