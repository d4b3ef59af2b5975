package core

import "github.com/jabolina/peertalk/pkg/peertalk/types"

// BuildAnnounce/BuildQuery/BuildGoodbye construct the outbound discovery
// datagrams (spec §4.4). Encoding errors only occur if localName is longer
// than fits in MaxDiscoveryDatagram (122 bytes); Init truncates
// Config.LocalName to MaxNameLength, well below that, so callers may safely
// ignore the error in practice but still receive it for completeness.
func BuildAnnounce(localName string, senderPort uint16) ([]byte, error) {
	return types.DiscoveryDatagram{Type: types.Announce, SenderPort: senderPort, Name: localName}.Encode()
}

func BuildQuery(localName string, senderPort uint16) ([]byte, error) {
	return types.DiscoveryDatagram{Type: types.Query, SenderPort: senderPort, Name: localName}.Encode()
}

func BuildGoodbye(localName string, senderPort uint16) ([]byte, error) {
	return types.DiscoveryDatagram{Type: types.Goodbye, SenderPort: senderPort, Name: localName}.Encode()
}

// HandleDiscoveryDatagram applies one received datagram to the peer table
// (spec §4.4): Announce/Query both establish-or-refresh a Discovered peer
// and its transport record; Goodbye, if it matches a known peer, tears the
// record down immediately instead of waiting for the freshness timeout.
// Returns the affected peer id (0 if none) and whether it was newly
// created this call (for on_peer_discovered).
func HandleDiscoveryDatagram(m *Manager, d types.DiscoveryDatagram, transport types.TransportKind, from types.Endpoint, now int64) (id types.PeerId, created bool, goodbye bool) {
	switch d.Type {
	case types.Goodbye:
		if p := m.FindByEndpoint(transport, from); p != nil {
			return p.Id, false, true
		}
		return 0, false, true
	default: // Announce, Query
		var pid types.PeerId
		wasNew := false
		if existing := m.FindByEndpoint(transport, from); existing != nil {
			pid = existing.Id
		} else {
			before := m.Len()
			newID, err := m.Create(d.Name, transport, from)
			if err != nil {
				return 0, false, false
			}
			pid = newID
			wasNew = m.Len() > before
		}
		if p := m.FindByID(pid); p != nil {
			p.LastSeenTick = now
			for i := range p.Records {
				if p.Records[i].Transport == transport {
					p.Records[i].LastSeenTick = now
					p.Records[i].SenderPort = d.SenderPort
				}
			}
		}
		return pid, wasNew, false
	}
}
