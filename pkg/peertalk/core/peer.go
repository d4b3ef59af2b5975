package core

import (
	"strings"

	"github.com/jabolina/peertalk/pkg/peertalk/types"
)

// Peer is a participant known to this host (spec §3). It owns its send
// queue and receive framer exclusively, allocated just before an outbound
// connect is issued or when an inbound one is accepted, and released on
// exit (invariant: Unused peers have neither).
type Peer struct {
	Id   types.PeerId
	Name string

	State State_ // see type alias below for clarity in this file
	AvailableTransports types.TransportMask
	ConnectedTransport  types.TransportKind
	PreferredTransport  *types.TransportPreference // per-peer override, nil = use global

	Records []types.DiscoveryRecord

	SendSeq uint8
	RecvSeq uint8

	LastSeenTick int64 // latest across all discovery sources
	ConnectStart int64 // tick Connecting began, for timeout detection
	CloseStart   int64 // tick Disconnecting began, for forced-abort detection

	Stats types.Stats

	// Pending-ping bookkeeping for RTT/quality computation (spec §4.3 Pong
	// handling).
	PingOutstanding bool
	PingSentTick    int64

	Queue  *Queue  // nil unless Connecting/Connected
	Framer *Framer // nil unless Connecting/Connected

	Conn ConnHandle // valid only while Connecting/Connected

	generation uint32
}

// State_ is an alias for types.State.
type State_ = types.State

// slotEntry is one row of the peer table, reused across create/destroy
// cycles via the generation counter (spec §3: "a destroyed peer's id never
// refers to a living peer").
type slotEntry struct {
	peer       *Peer
	generation uint32
	inUse      bool
}

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	MaxPeers          int
	SendQueueCapacity int // per-peer, default 16 (spec: "typical 16 slots")
	MessageMax        int
	AutoMergePeers    bool
	TransportPref     types.TransportPreference
	DiscoveryTimeout  int64 // ticks; not read by Manager (CheckTimeouts takes its threshold as an argument)
}

// Manager is the Peer Manager component (spec §4.1): a small, stable-index
// table of peers keyed by PeerId, with multi-transport dedup.
type Manager struct {
	cfg ManagerConfig

	slots     []slotEntry
	free      []int // free slot indices
	active    ActiveSet
	byNameIdx map[string]int // lowercased name -> slot, for dedup
	log       types.Logger
}

// NewManager pre-allocates cfg.MaxPeers slots (spec: "no dynamic memory
// growth at steady state").
func NewManager(cfg ManagerConfig, log types.Logger) *Manager {
	if cfg.MaxPeers <= 0 {
		cfg.MaxPeers = 64
	}
	if cfg.SendQueueCapacity <= 0 {
		cfg.SendQueueCapacity = 16
	}
	if log == nil {
		log = types.NopLogger{}
	}
	m := &Manager{
		cfg:       cfg,
		slots:     make([]slotEntry, cfg.MaxPeers),
		active:    NewActiveSet(uint32(cfg.MaxPeers)),
		byNameIdx: make(map[string]int),
		log:       log,
	}
	for i := 0; i < cfg.MaxPeers; i++ {
		m.free = append(m.free, i)
	}
	return m
}

const op = "PeerManager"

// Create allocates a new peer or, if auto-merge dedup matches an existing
// peer by name, merges the new record into it and returns its id (spec
// §4.1 "create").
func (m *Manager) Create(name string, transport types.TransportKind, endpoint types.Endpoint) (types.PeerId, error) {
	if len(name) > types.MaxNameLength {
		name = name[:types.MaxNameLength]
	}
	if transport == 0 {
		return 0, types.NewError(op+".Create", types.KindInvalidArg, "transport must be non-zero")
	}

	if m.cfg.AutoMergePeers && name != "" {
		if slot, ok := m.byNameIdx[strings.ToLower(name)]; ok {
			p := m.slots[slot].peer
			if !p.AvailableTransports.Has(transport) {
				m.addTransportLocked(p, transport, endpoint)
			}
			return p.Id, nil
		}
	}

	if len(m.free) == 0 {
		return 0, types.NewError(op+".Create", types.KindPoolExhausted, "no free peer slot")
	}

	slot := m.free[len(m.free)-1]
	m.free = m.free[:len(m.free)-1]

	entry := &m.slots[slot]
	entry.generation++
	entry.inUse = true
	id := types.NewPeerId(uint32(slot), entry.generation)

	entry.peer = &Peer{
		Id:                  id,
		Name:                name,
		State:               types.Discovered,
		AvailableTransports: types.TransportMask(0).With(transport),
		Records:             []types.DiscoveryRecord{{Transport: transport, Endpoint: endpoint, LastSeenTick: 0}},
		generation:          entry.generation,
	}
	m.active.Add(uint32(slot))
	if name != "" {
		m.byNameIdx[strings.ToLower(name)] = slot
	}
	return id, nil
}

// lookup resolves a PeerId to its live Peer, or nil if stale/absent.
func (m *Manager) lookup(id types.PeerId) *Peer {
	slot := id.Slot()
	if int(slot) >= len(m.slots) {
		return nil
	}
	entry := &m.slots[slot]
	if !entry.inUse || entry.generation != id.Generation() {
		return nil
	}
	return entry.peer
}

// FindByID returns the peer for id, or nil.
func (m *Manager) FindByID(id types.PeerId) *Peer { return m.lookup(id) }

// FindByEndpoint returns at most one peer currently advertising endpoint on
// transport.
func (m *Manager) FindByEndpoint(transport types.TransportKind, endpoint types.Endpoint) *Peer {
	var found *Peer
	m.active.Each(func(slot uint32) {
		if found != nil {
			return
		}
		p := m.slots[slot].peer
		for _, r := range p.Records {
			if r.Transport == transport && r.Endpoint == endpoint {
				found = p
				return
			}
		}
	})
	return found
}

// AddTransport idempotently attaches a transport record to an existing
// peer (spec §4.1 "add_transport").
func (m *Manager) AddTransport(id types.PeerId, transport types.TransportKind, endpoint types.Endpoint) (added bool, err error) {
	p := m.lookup(id)
	if p == nil {
		return false, types.NewError(op+".AddTransport", types.KindNotFound, "unknown peer")
	}
	return m.addTransportLocked(p, transport, endpoint), nil
}

func (m *Manager) addTransportLocked(p *Peer, transport types.TransportKind, endpoint types.Endpoint) bool {
	already := p.AvailableTransports.Has(transport)
	if !already {
		p.AvailableTransports = p.AvailableTransports.With(transport)
	}
	for i, r := range p.Records {
		if r.Transport == transport {
			p.Records[i].Endpoint = endpoint
			return !already
		}
	}
	p.Records = append(p.Records, types.DiscoveryRecord{Transport: transport, Endpoint: endpoint})
	return !already
}

// RemoveTransport releases one transport record; if the peer loses all
// records and is not Connected, it is destroyed (spec §4.1
// "remove_transport").
func (m *Manager) RemoveTransport(id types.PeerId, transport types.TransportKind) (destroyed bool, err error) {
	p := m.lookup(id)
	if p == nil {
		return false, types.NewError(op+".RemoveTransport", types.KindNotFound, "unknown peer")
	}
	kept := p.Records[:0]
	for _, r := range p.Records {
		if r.Transport != transport {
			kept = append(kept, r)
		}
	}
	p.Records = kept
	p.AvailableTransports = p.AvailableTransports.Without(transport)
	if p.ConnectedTransport == transport {
		p.ConnectedTransport = 0
	}
	if len(p.Records) == 0 && p.State != types.Connected && p.State != types.Connecting {
		m.destroy(p)
		return true, nil
	}
	return false, nil
}

// Merge absorbs all of merge's transports into keep and destroys merge
// (spec §4.1 "merge").
func (m *Manager) Merge(keepID, mergeID types.PeerId) error {
	if keepID == mergeID {
		return types.NewError(op+".Merge", types.KindInvalidArg, "keep and merge ids must differ")
	}
	keep := m.lookup(keepID)
	merge := m.lookup(mergeID)
	if keep == nil || merge == nil {
		return types.NewError(op+".Merge", types.KindNotFound, "unknown peer")
	}
	for _, r := range merge.Records {
		if !keep.AvailableTransports.Has(r.Transport) {
			keep.AvailableTransports = keep.AvailableTransports.With(r.Transport)
			keep.Records = append(keep.Records, r)
		}
	}
	m.destroy(merge)
	return nil
}

// Split detaches one transport record from an existing (typically merged)
// peer into a freshly allocated peer, returning its new id. The inverse of
// Merge, named SplitPeer in the API (spec §6).
func (m *Manager) Split(id types.PeerId, transport types.TransportKind) (types.PeerId, error) {
	p := m.lookup(id)
	if p == nil {
		return 0, types.NewError(op+".Split", types.KindNotFound, "unknown peer")
	}
	if !p.AvailableTransports.Has(transport) {
		return 0, types.NewError(op+".Split", types.KindNotFound, "peer has no such transport")
	}
	var rec types.DiscoveryRecord
	found := false
	for _, r := range p.Records {
		if r.Transport == transport {
			rec = r
			found = true
			break
		}
	}
	if !found {
		return 0, types.NewError(op+".Split", types.KindNotFound, "no record for transport")
	}
	// Under auto-merge Create would resolve p.Name back to p itself, so name
	// dedup is bypassed for this one allocation.
	autoMerge := m.cfg.AutoMergePeers
	m.cfg.AutoMergePeers = false
	newID, err := m.Create(p.Name, transport, rec.Endpoint)
	m.cfg.AutoMergePeers = autoMerge
	if err != nil {
		return 0, err
	}
	if _, err := m.RemoveTransport(id, transport); err != nil {
		return 0, err
	}
	return newID, nil
}

// SetState performs a validated lifecycle transition (spec §4.1
// "set_state").
func (m *Manager) SetState(id types.PeerId, newState types.State) error {
	p := m.lookup(id)
	if p == nil {
		return types.NewError(op+".SetState", types.KindNotFound, "unknown peer")
	}
	if !types.ValidTransition(p.State, newState) {
		return types.NewError(op+".SetState", types.KindInvalidState, "illegal transition "+p.State.String()+"->"+newState.String())
	}
	from := p.State
	p.State = newState
	m.log.Debug("peer state transition", types.Fields{
		"peer_id": p.Id.String(), "from": from.String(), "to": newState.String(),
	})
	if newState == types.Unused {
		m.destroy(p)
	}
	return nil
}

// CheckTimeouts destroys peers whose last_seen across all sources has
// exceeded threshold ticks and are in Discovered (spec §4.1
// "check_timeouts"). Returns the ids destroyed this call.
func (m *Manager) CheckTimeouts(now int64, thresholdTicks int64) []types.PeerId {
	var destroyed []types.PeerId
	var toDestroy []*Peer
	m.active.Each(func(slot uint32) {
		p := m.slots[slot].peer
		if p.State != types.Discovered {
			return
		}
		if now-p.LastSeenTick > thresholdTicks {
			toDestroy = append(toDestroy, p)
		}
	})
	for _, p := range toDestroy {
		destroyed = append(destroyed, p.Id)
		m.log.Debug("peer discovery timeout", types.Fields{"peer_id": p.Id.String(), "name": p.Name})
		m.destroy(p)
	}
	return destroyed
}

func (m *Manager) destroy(p *Peer) {
	slot := p.Id.Slot()
	entry := &m.slots[slot]
	if !entry.inUse {
		return
	}
	entry.inUse = false
	entry.peer = nil
	m.active.Remove(slot)
	m.free = append(m.free, int(slot))
	if p.Name != "" {
		if cur, ok := m.byNameIdx[strings.ToLower(p.Name)]; ok && cur == int(slot) {
			delete(m.byNameIdx, strings.ToLower(p.Name))
		}
	}
}

// Each iterates all live peers in active-set order (spec §4.6: "within a
// component, peers are serviced in active-set order ... not table order").
func (m *Manager) Each(fn func(p *Peer)) {
	m.active.Each(func(slot uint32) {
		fn(m.slots[slot].peer)
	})
}

// Len returns the number of live peers.
func (m *Manager) Len() int { return m.active.Len() }

// MatchName compares two names for discovery dedup (spec §4.1): a
// byte-identical match is MatchNameExact, a case-insensitive match is
// MatchName; distinct-but-related name matching is left to callers that
// want to implement fuzzier policies.
func MatchName(a, b string) types.MatchStrength {
	if a == "" || b == "" {
		return types.MatchNone
	}
	if a == b {
		return types.MatchNameExact
	}
	if strings.EqualFold(a, b) {
		return types.MatchName
	}
	return types.MatchNone
}

// PickTransport applies the preference policy (spec §4.1 "Transport
// preference") to choose which of a peer's available transports to use.
func PickTransport(p *Peer, globalPref types.TransportPreference) (types.TransportKind, error) {
	pref := globalPref
	if p.PreferredTransport != nil {
		pref = *p.PreferredTransport
	}
	if p.AvailableTransports.Empty() {
		return 0, types.NewError(op+".PickTransport", types.KindNotFound, "peer has no transports")
	}
	switch pref {
	case types.PreferTcp:
		if p.AvailableTransports.Has(types.TransportTCP) {
			return types.TransportTCP, nil
		}
		if p.AvailableTransports.Has(types.TransportADSP) {
			return types.TransportADSP, nil
		}
	case types.PreferAdsp:
		if p.AvailableTransports.Has(types.TransportADSP) {
			return types.TransportADSP, nil
		}
		if p.AvailableTransports.Has(types.TransportTCP) {
			return types.TransportTCP, nil
		}
	case types.PreferFastest:
		return mostRecentTransport(p), nil
	}
	// Fall through: any available transport, preferring connection-oriented
	// kinds over datagram-only ones.
	for _, k := range []types.TransportKind{types.TransportTCP, types.TransportADSP, types.TransportUDP, types.TransportNBP} {
		if p.AvailableTransports.Has(k) {
			return k, nil
		}
	}
	return 0, types.NewError(op+".PickTransport", types.KindNotFound, "no usable transport")
}

func mostRecentTransport(p *Peer) types.TransportKind {
	var best types.TransportKind
	var bestTick int64 = -1
	for _, r := range p.Records {
		if r.LastSeenTick > bestTick {
			bestTick = r.LastSeenTick
			best = r.Transport
		}
	}
	return best
}
