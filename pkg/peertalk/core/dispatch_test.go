package core

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jabolina/peertalk/pkg/peertalk/types"
)

func TestDispatch_DataBumpsStatsAndRoutes(t *testing.T) {
	p := &Peer{}
	outcome := Dispatch(p, DeliveredMessage{Type: types.MessageData, Payload: []byte("hi")}, 1000)
	require.Equal(t, DispatchData, outcome)
	require.EqualValues(t, 1, p.Stats.MessagesIn)
}

func TestDispatch_PingRequestsPongReply(t *testing.T) {
	p := &Peer{}
	outcome := Dispatch(p, DeliveredMessage{Type: types.MessagePing, Seq: 5}, 1000)
	require.Equal(t, DispatchPing, outcome)
}

func TestDispatch_PongUpdatesRTTAndQuality(t *testing.T) {
	p := &Peer{}
	frame := SendPing(p, 1000)
	require.NotEmpty(t, frame)
	require.True(t, p.PingOutstanding)

	outcome := Dispatch(p, DeliveredMessage{Type: types.MessagePong}, 1020)
	require.Equal(t, DispatchPong, outcome)
	require.False(t, p.PingOutstanding)
	require.InDelta(t, 20, p.Stats.RTTMillis, 0.001)
	require.Equal(t, uint8(100), p.Stats.Quality) // well under rttGoodMillis
}

func TestDispatch_MissedPingDegradesQuality(t *testing.T) {
	p := &Peer{}
	SendPing(p, 1000)
	Dispatch(p, DeliveredMessage{Type: types.MessagePong}, 1010) // establishes quality=100
	require.Equal(t, uint8(100), p.Stats.Quality)

	SendPing(p, 2000)
	// A second Ping fires before this one got a Pong: quality penalized.
	SendPing(p, 3000)
	require.Equal(t, uint8(80), p.Stats.Quality)
}

func TestDispatch_DisconnectRequestsTeardown(t *testing.T) {
	p := &Peer{}
	outcome := Dispatch(p, DeliveredMessage{Type: types.MessageDisconnect}, 1000)
	require.Equal(t, DispatchDisconnect, outcome)
}

func TestDispatch_StrayPongIgnored(t *testing.T) {
	p := &Peer{}
	outcome := Dispatch(p, DeliveredMessage{Type: types.MessagePong}, 1000)
	require.Equal(t, DispatchPong, outcome)
	require.Zero(t, p.Stats.RTTMillis)
}
