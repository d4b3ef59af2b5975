package peertalk

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jabolina/peertalk/pkg/peertalk/core"
	"github.com/jabolina/peertalk/pkg/peertalk/types"
)

// flowControlledOps behaves like fakeOps but returns SendFlowControlled for
// the first N calls to Send, then SendAll afterward, letting tests drive
// drainSend's retry path without a real socket.
type flowControlledOps struct {
	*fakeOps
	blockFor int
}

func (f *flowControlledOps) Send(h core.ConnHandle, data []byte) core.SendResult {
	if f.blockFor > 0 {
		f.blockFor--
		return core.SendFlowControlled
	}
	return f.fakeOps.Send(h, data)
}

func TestDrainSend_FlowControlledReenqueuesAtHeadWithoutBurningSeq(t *testing.T) {
	ops := &flowControlledOps{fakeOps: newFakeOps(), blockFor: 1}
	ctx, _ := Init(DefaultConfig("alice"), ops)
	id, _ := ctx.manager.Create("bob", types.TransportTCP, types.Endpoint{Address: "1.2.3.4", Port: 9000})
	require.NoError(t, ctx.Connect(id))
	ctx.Poll() // completes the connect

	require.NoError(t, ctx.Send(id, []byte("payload")))
	ctx.Poll() // first drain attempt: flow-controlled, payload re-enqueued at head

	p := ctx.manager.FindByID(id)
	require.EqualValues(t, 0, p.SendSeq, "SendSeq must not advance when no frame actually went out")
	require.False(t, p.Queue.IsEmpty(), "flow-controlled payload must remain queued, not be dropped")

	ctx.Poll() // second drain attempt: succeeds
	require.True(t, p.Queue.IsEmpty())
	require.EqualValues(t, 1, p.SendSeq)
	require.Len(t, ops.sent, 1)
}
