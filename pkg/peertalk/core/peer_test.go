package core

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jabolina/peertalk/pkg/peertalk/types"
)

func newTestManager(maxPeers int) *Manager {
	return NewManager(ManagerConfig{MaxPeers: maxPeers, AutoMergePeers: true}, nil)
}

func TestManager_CreateAndFind(t *testing.T) {
	m := newTestManager(4)
	id, err := m.Create("alice", types.TransportTCP, types.Endpoint{Address: "10.0.0.1", Port: 9000})
	require.NoError(t, err)
	require.NotZero(t, id)

	p := m.FindByID(id)
	require.NotNil(t, p)
	require.Equal(t, "alice", p.Name)
	require.Equal(t, types.Discovered, p.State)
}

func TestManager_AutoMergeByNameDedupsAcrossTransports(t *testing.T) {
	m := newTestManager(4)
	id1, err := m.Create("alice", types.TransportTCP, types.Endpoint{Address: "10.0.0.1", Port: 9000})
	require.NoError(t, err)

	id2, err := m.Create("Alice", types.TransportUDP, types.Endpoint{Address: "10.0.0.1", Port: 9001})
	require.NoError(t, err)

	require.Equal(t, id1, id2)
	p := m.FindByID(id1)
	require.True(t, p.AvailableTransports.Has(types.TransportTCP))
	require.True(t, p.AvailableTransports.Has(types.TransportUDP))
	require.Equal(t, 1, m.Len())
}

func TestManager_PoolExhausted(t *testing.T) {
	m := newTestManager(1)
	_, err := m.Create("a", types.TransportTCP, types.Endpoint{})
	require.NoError(t, err)
	_, err = m.Create("b", types.TransportTCP, types.Endpoint{})
	require.Equal(t, types.KindPoolExhausted, types.KindOf(err))
}

func TestManager_DestroyedIdNeverResolvesAfterSlotReuse(t *testing.T) {
	m := newTestManager(1)
	id1, err := m.Create("a", types.TransportTCP, types.Endpoint{})
	require.NoError(t, err)
	require.NoError(t, m.SetState(id1, types.Connecting))
	require.NoError(t, m.SetState(id1, types.Connected))
	require.NoError(t, m.SetState(id1, types.Disconnecting))
	require.NoError(t, m.SetState(id1, types.Unused)) // destroys the slot

	require.Nil(t, m.FindByID(id1))

	id2, err := m.Create("b", types.TransportTCP, types.Endpoint{})
	require.NoError(t, err)
	require.Equal(t, id1.Slot(), id2.Slot())
	require.NotEqual(t, id1, id2)
	require.Nil(t, m.FindByID(id1)) // stale id still doesn't resolve to the new occupant
	require.NotNil(t, m.FindByID(id2))
}

func TestManager_InvalidTransitionRejected(t *testing.T) {
	m := newTestManager(4)
	id, err := m.Create("a", types.TransportTCP, types.Endpoint{})
	require.NoError(t, err)

	err = m.SetState(id, types.Connected) // Discovered -> Connected is valid per spec
	require.NoError(t, err)
	err = m.SetState(id, types.Discovered) // Connected -> Discovered is not
	require.Equal(t, types.KindInvalidState, types.KindOf(err))
}

func TestManager_MergeAndSplitAreInverses(t *testing.T) {
	m := newTestManager(4)
	id1, _ := m.Create("alice", types.TransportTCP, types.Endpoint{Address: "1.1.1.1", Port: 1})
	id2, _ := m.Create("alice-adsp", types.TransportADSP, types.Endpoint{Object: "alice", Zone: "*"})

	require.NoError(t, m.Merge(id1, id2))
	require.Nil(t, m.FindByID(id2))
	p := m.FindByID(id1)
	require.True(t, p.AvailableTransports.Has(types.TransportTCP))
	require.True(t, p.AvailableTransports.Has(types.TransportADSP))

	newID, err := m.Split(id1, types.TransportADSP)
	require.NoError(t, err)
	require.NotEqual(t, id1, newID)

	p = m.FindByID(id1)
	require.False(t, p.AvailableTransports.Has(types.TransportADSP))
	split := m.FindByID(newID)
	require.True(t, split.AvailableTransports.Has(types.TransportADSP))
}

func TestManager_CheckTimeoutsDestroysStaleDiscovered(t *testing.T) {
	m := newTestManager(4)
	id, _ := m.Create("a", types.TransportTCP, types.Endpoint{})
	p := m.FindByID(id)
	p.LastSeenTick = 0

	destroyed := m.CheckTimeouts(100_000, 30_000)
	require.Contains(t, destroyed, id)
	require.Nil(t, m.FindByID(id))
}

func TestPickTransport_PrefersTcpThenFallsBackToAdsp(t *testing.T) {
	m := newTestManager(4)
	id, _ := m.Create("a", types.TransportADSP, types.Endpoint{})
	p := m.FindByID(id)

	kind, err := PickTransport(p, types.PreferTcp)
	require.NoError(t, err)
	require.Equal(t, types.TransportADSP, kind)
}

func TestMatchName(t *testing.T) {
	require.Equal(t, types.MatchNameExact, MatchName("alice", "alice"))
	require.Equal(t, types.MatchName, MatchName("alice", "ALICE"))
	require.Equal(t, types.MatchNone, MatchName("alice", "bob"))
	require.Equal(t, types.MatchNone, MatchName("", "alice"))
}
