package peertalk

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jabolina/peertalk/pkg/peertalk/core"
	"github.com/jabolina/peertalk/pkg/peertalk/types"
)

// fakeOps is a minimal in-memory core.Ops good enough to drive Context
// through its lifecycle without a real socket, grounded in the teacher's
// test.TestInvoker pattern of substituting a fake for the real runtime
// dependency.
type fakeOps struct {
	now           int64
	connectResult map[core.ConnHandle]bool
	nextHandle    uint64
	sent          [][]byte
	discoveryOut  [][]byte
}

func newFakeOps() *fakeOps {
	return &fakeOps{connectResult: make(map[core.ConnHandle]bool)}
}

func (f *fakeOps) NowTicks() int64 { return f.now }

func (f *fakeOps) Connect(kind types.TransportKind, endpoint types.Endpoint) (core.ConnHandle, error) {
	f.nextHandle++
	h := core.ConnHandle(f.nextHandle)
	f.connectResult[h] = true
	return h, nil
}
func (f *fakeOps) Disconnect(core.ConnHandle) {}
func (f *fakeOps) Send(h core.ConnHandle, data []byte) core.SendResult {
	f.sent = append(f.sent, data)
	return core.SendAll
}
func (f *fakeOps) SendUDP(types.Endpoint, []byte) (bool, error) { return true, nil }
func (f *fakeOps) RecvInto(core.ConnHandle, []byte) (int, bool) { return 0, false }
func (f *fakeOps) PollConnect(h core.ConnHandle) (bool, bool) {
	ok, known := f.connectResult[h]
	return known, ok
}
func (f *fakeOps) Accept() (core.ConnHandle, types.TransportKind, types.Endpoint, bool) {
	return 0, 0, types.Endpoint{}, false
}
func (f *fakeOps) DiscoverySend(kind types.TransportKind, data []byte) error {
	f.discoveryOut = append(f.discoveryOut, data)
	return nil
}
func (f *fakeOps) DiscoveryRecv() ([]byte, types.Endpoint, bool) { return nil, types.Endpoint{}, false }

var _ core.Ops = (*fakeOps)(nil)

func TestInit_DefaultsApplied(t *testing.T) {
	ctx, err := Init(DefaultConfig("alice"), newFakeOps())
	require.NoError(t, err)
	require.NotNil(t, ctx)
	require.Empty(t, ctx.GetPeers())
}

func TestInit_RejectsNilOps(t *testing.T) {
	_, err := Init(DefaultConfig("alice"), nil)
	require.Equal(t, types.KindInvalidArg, types.KindOf(err))
}

func TestConnect_UnknownPeerNotFound(t *testing.T) {
	ctx, _ := Init(DefaultConfig("alice"), newFakeOps())
	err := ctx.Connect(types.PeerId(99))
	require.Equal(t, types.KindNotFound, types.KindOf(err))
}

func TestConnectAndPoll_ReachesConnectedAndFiresCallback(t *testing.T) {
	ops := newFakeOps()
	var connected types.PeerId
	cfg := DefaultConfig("alice")
	cfg.Callbacks.OnPeerConnected = func(id types.PeerId, _ types.TransportKind) { connected = id }
	ctx, err := Init(cfg, ops)
	require.NoError(t, err)

	id, err := ctx.manager.Create("bob", types.TransportTCP, types.Endpoint{Address: "1.2.3.4", Port: 9000})
	require.NoError(t, err)

	require.NoError(t, ctx.Connect(id))
	info, _ := ctx.GetPeerInfo(id)
	require.Equal(t, types.Connecting, info.State)

	ctx.Poll()
	info, _ = ctx.GetPeerInfo(id)
	require.Equal(t, types.Connected, info.State)
	require.Equal(t, id, connected)
}

func TestSend_RejectsUnconnectedPeer(t *testing.T) {
	ops := newFakeOps()
	ctx, _ := Init(DefaultConfig("alice"), ops)
	id, _ := ctx.manager.Create("bob", types.TransportTCP, types.Endpoint{})
	err := ctx.Send(id, []byte("hi"))
	require.Equal(t, types.KindInvalidState, types.KindOf(err))
}

func TestSend_DrainsOnPollOnceConnected(t *testing.T) {
	ops := newFakeOps()
	ctx, _ := Init(DefaultConfig("alice"), ops)
	id, _ := ctx.manager.Create("bob", types.TransportTCP, types.Endpoint{Address: "1.2.3.4", Port: 9000})
	require.NoError(t, ctx.Connect(id))
	ctx.Poll() // completes the connect

	require.NoError(t, ctx.Send(id, []byte("payload")))
	ctx.Poll() // drains the send queue
	require.NotEmpty(t, ops.sent)
}

func TestStartDiscovery_SendsQueryImmediately(t *testing.T) {
	ops := newFakeOps()
	cfg := DefaultConfig("alice")
	cfg.Transports = types.TransportMask(0).With(types.TransportUDP)
	ctx, _ := Init(cfg, ops)
	require.NoError(t, ctx.StartDiscovery())
	require.NotEmpty(t, ops.discoveryOut)
}

func TestGetStats_EmptyManagerReturnsZeroValue(t *testing.T) {
	ctx, _ := Init(DefaultConfig("alice"), newFakeOps())
	require.Equal(t, types.Stats{}, ctx.GetStats())
}
