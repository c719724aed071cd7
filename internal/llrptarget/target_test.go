package llrptarget

import (
	"testing"
	"time"

	"github.com/marmos91/rdmnetcore/internal/protocol/acn"
	"github.com/marmos91/rdmnetcore/internal/protocol/llrp"
	"github.com/marmos91/rdmnetcore/internal/protocol/rdm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	frames [][]byte
}

func (s *fakeSender) Send(frame []byte) error {
	s.frames = append(s.frames, append([]byte{}, frame...))
	return nil
}

type fakeDispatcher struct {
	resp *rdm.Message
	err  error
	got  *rdm.Message
}

func (d *fakeDispatcher) HandleRDMCommand(msg *rdm.Message) (*rdm.Message, error) {
	d.got = msg
	return d.resp, d.err
}

func probeRequestFrame(t *testing.T, managerCID acn.CID, destCID acn.CID, lo, hi rdm.UID, filter uint16, known []rdm.UID, tx uint32) []byte {
	t.Helper()
	req := &llrp.ProbeRequest{Lower: lo, Upper: hi, Filter: filter, KnownUIDs: known}
	payload, err := req.Marshal()
	require.NoError(t, err)

	pdu := &llrp.PDU{Vector: llrp.VectorProbeRequest, DestCID: destCID, TransactionNumber: tx, Payload: payload}
	pduBytes, err := pdu.Marshal()
	require.NoError(t, err)

	root := &acn.RootLayerPDU{Vector: acn.VectorLLRP, SrcCID: managerCID, Payload: pduBytes}
	frame, err := root.Marshal()
	require.NoError(t, err)
	return frame
}

func noJitter(max time.Duration) time.Duration { return max / 2 }

func newTestTarget(cid acn.CID, uid rdm.UID, sender *fakeSender, dispatcher RDMDispatcher) *Target {
	tg := New(cid, uid, [6]byte{1, 2, 3, 4, 5, 6}, llrp.ComponentTypeRPTDevice, sender, dispatcher, 1500*time.Millisecond)
	tg.jitter = noJitter
	return tg
}

func TestProbeRequestWithinRangeSchedulesReply(t *testing.T) {
	sender := &fakeSender{}
	myCID := acn.NewCID()
	myUID := rdm.UID{Manufacturer: 0x1234, Device: 0x00000010}
	tg := newTestTarget(myCID, myUID, sender, nil)

	managerCID := acn.NewCID()
	frame := probeRequestFrame(t, managerCID, acn.BroadcastCID, rdm.UID{}, rdm.UID{Manufacturer: 0xFFFF, Device: 0xFFFFFFFF}, 0, nil, 42)

	now := time.Unix(0, 0)
	require.NoError(t, tg.HandleFrame(frame, now))
	assert.True(t, tg.Pending())

	require.NoError(t, tg.Tick(now.Add(100*time.Millisecond)))
	assert.True(t, tg.Pending(), "back-off window has not elapsed yet")

	require.NoError(t, tg.Tick(now.Add(2*time.Second)))
	assert.False(t, tg.Pending())
	require.Len(t, sender.frames, 1)

	root, err := acn.UnmarshalRootLayerPDU(sender.frames[0])
	require.NoError(t, err)
	assert.Equal(t, myCID, root.SrcCID)
	pdu, err := llrp.Unmarshal(root.Payload)
	require.NoError(t, err)
	assert.Equal(t, llrp.VectorProbeReply, pdu.Vector)
	assert.Equal(t, managerCID, pdu.DestCID)
	assert.Equal(t, uint32(42), pdu.TransactionNumber)

	reply, err := llrp.UnmarshalProbeReply(pdu.Payload)
	require.NoError(t, err)
	assert.Equal(t, myUID, reply.UID)
}

func TestProbeRequestOutsideRangeIsDropped(t *testing.T) {
	sender := &fakeSender{}
	myUID := rdm.UID{Manufacturer: 0x1234, Device: 0x00000010}
	tg := newTestTarget(acn.NewCID(), myUID, sender, nil)

	lo := rdm.UID{Manufacturer: 0x1234, Device: 0x00000020}
	hi := rdm.UID{Manufacturer: 0xFFFF, Device: 0xFFFFFFFF}
	frame := probeRequestFrame(t, acn.NewCID(), acn.BroadcastCID, lo, hi, 0, nil, 1)

	require.NoError(t, tg.HandleFrame(frame, time.Unix(0, 0)))
	assert.False(t, tg.Pending())
}

func TestProbeRequestListingOwnUIDAsKnownIsDropped(t *testing.T) {
	sender := &fakeSender{}
	myUID := rdm.UID{Manufacturer: 0x1234, Device: 0x00000010}
	tg := newTestTarget(acn.NewCID(), myUID, sender, nil)

	frame := probeRequestFrame(t, acn.NewCID(), acn.BroadcastCID, rdm.UID{}, rdm.UID{Manufacturer: 0xFFFF, Device: 0xFFFFFFFF}, 0, []rdm.UID{myUID}, 1)

	require.NoError(t, tg.HandleFrame(frame, time.Unix(0, 0)))
	assert.False(t, tg.Pending())
}

func TestBrokersOnlyFilterExcludesNonBroker(t *testing.T) {
	sender := &fakeSender{}
	tg := newTestTarget(acn.NewCID(), rdm.UID{Manufacturer: 1, Device: 1}, sender, nil)

	frame := probeRequestFrame(t, acn.NewCID(), acn.BroadcastCID, rdm.UID{}, rdm.UID{Manufacturer: 0xFFFF, Device: 0xFFFFFFFF}, llrp.FilterBrokersOnly, nil, 1)

	require.NoError(t, tg.HandleFrame(frame, time.Unix(0, 0)))
	assert.False(t, tg.Pending())
}

func TestClientTCPConnectionInactiveFilterExcludesActiveConnection(t *testing.T) {
	sender := &fakeSender{}
	tg := newTestTarget(acn.NewCID(), rdm.UID{Manufacturer: 1, Device: 1}, sender, nil)
	tg.SetConnectionActive(true)

	frame := probeRequestFrame(t, acn.NewCID(), acn.BroadcastCID, rdm.UID{}, rdm.UID{Manufacturer: 0xFFFF, Device: 0xFFFFFFFF}, llrp.FilterClientTCPConnectionInactive, nil, 1)

	require.NoError(t, tg.HandleFrame(frame, time.Unix(0, 0)))
	assert.False(t, tg.Pending())
}

func TestSecondMatchingRequestCoalescesWithPendingReply(t *testing.T) {
	sender := &fakeSender{}
	myUID := rdm.UID{Manufacturer: 1, Device: 1}
	tg := newTestTarget(acn.NewCID(), myUID, sender, nil)

	firstManager := acn.NewCID()
	frame1 := probeRequestFrame(t, firstManager, acn.BroadcastCID, rdm.UID{}, rdm.UID{Manufacturer: 0xFFFF, Device: 0xFFFFFFFF}, 0, nil, 7)
	require.NoError(t, tg.HandleFrame(frame1, time.Unix(0, 0)))

	secondManager := acn.NewCID()
	frame2 := probeRequestFrame(t, secondManager, acn.BroadcastCID, rdm.UID{}, rdm.UID{Manufacturer: 0xFFFF, Device: 0xFFFFFFFF}, 0, nil, 8)
	require.NoError(t, tg.HandleFrame(frame2, time.Unix(0, 0)))

	require.NoError(t, tg.Tick(time.Unix(0, 0).Add(2*time.Second)))
	require.Len(t, sender.frames, 1, "only one reply should fire for the coalesced window")

	root, err := acn.UnmarshalRootLayerPDU(sender.frames[0])
	require.NoError(t, err)
	pdu, err := llrp.Unmarshal(root.Payload)
	require.NoError(t, err)
	assert.Equal(t, firstManager, pdu.DestCID, "the first request that scheduled the reply wins")
	assert.Equal(t, uint32(7), pdu.TransactionNumber)
}

func TestRDMCommandAddressedToThisTargetIsDispatchedAndAnswered(t *testing.T) {
	sender := &fakeSender{}
	myUID := rdm.UID{Manufacturer: 1, Device: 1}
	resp := &rdm.Message{
		SourceUID:    myUID,
		DestUID:      rdm.UID{Manufacturer: 2, Device: 2},
		CommandClass: rdm.CommandClassGetCommandResponse,
		ResponseType: rdm.ResponseTypeAck,
		PID:          0x0001,
	}
	dispatcher := &fakeDispatcher{resp: resp}
	tg := newTestTarget(acn.NewCID(), myUID, sender, dispatcher)

	cmd := &rdm.Message{
		SourceUID:    rdm.UID{Manufacturer: 2, Device: 2},
		DestUID:      myUID,
		CommandClass: rdm.CommandClassGetCommand,
		PID:          0x0001,
	}
	payload, err := cmd.Marshal()
	require.NoError(t, err)

	requesterCID := acn.NewCID()
	pdu := &llrp.PDU{Vector: llrp.VectorRDMCommand, DestCID: tg.cid, TransactionNumber: 9, Payload: payload}
	pduBytes, err := pdu.Marshal()
	require.NoError(t, err)
	root := &acn.RootLayerPDU{Vector: acn.VectorLLRP, SrcCID: requesterCID, Payload: pduBytes}
	frame, err := root.Marshal()
	require.NoError(t, err)

	require.NoError(t, tg.HandleFrame(frame, time.Unix(0, 0)))
	require.NotNil(t, dispatcher.got)
	assert.Equal(t, myUID, dispatcher.got.DestUID)

	require.Len(t, sender.frames, 1)
	outRoot, err := acn.UnmarshalRootLayerPDU(sender.frames[0])
	require.NoError(t, err)
	outPDU, err := llrp.Unmarshal(outRoot.Payload)
	require.NoError(t, err)
	assert.Equal(t, requesterCID, outPDU.DestCID)
	assert.Equal(t, uint32(9), outPDU.TransactionNumber)
}
