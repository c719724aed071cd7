// Package llrptarget implements the LLRP Target engine: the probe-reply
// side of LLRP discovery every RDMnet component (controller, device, or
// broker) runs so a Manager's bisection search can find it (spec.md
// §4.6).
package llrptarget

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/marmos91/rdmnetcore/internal/protocol/acn"
	"github.com/marmos91/rdmnetcore/internal/protocol/llrp"
	"github.com/marmos91/rdmnetcore/internal/protocol/rdm"
)

// Sender transmits one already-framed LLRP packet on the LLRP reply
// multicast group.
type Sender interface {
	Send(frame []byte) error
}

// RDMDispatcher hands an RDM command addressed to this target's UID to
// its owning client and returns the response synchronously (spec.md
// §4.6: "RDM command matching target UID dispatched to owning client,
// response sent via sync-response buffer synchronously").
type RDMDispatcher interface {
	HandleRDMCommand(msg *rdm.Message) (*rdm.Message, error)
}

func uid64(u rdm.UID) uint64 {
	return uint64(u.Manufacturer)<<32 | uint64(u.Device)
}

// Target answers LLRP probe-requests for a single component identity.
// HandleFrame is called from the socket-reader goroutine; Tick fires
// the scheduled reply from the single-tick thread (spec.md §5).
type Target struct {
	cid           acn.CID
	uid           rdm.UID
	hardwareAddr  [6]byte
	componentType llrp.ComponentType
	send          Sender
	dispatcher    RDMDispatcher
	backoffMax    time.Duration
	jitter        func(max time.Duration) time.Duration

	mu               sync.Mutex
	connectionActive bool
	pending          bool
	pendingDestCID   acn.CID
	pendingTxNumber  uint32
	fireAt           time.Time
}

// New constructs a Target for one component identity. backoffMax bounds
// the randomized probe-reply delay (spec.md §4.6, Open Question 4:
// REPLY_BACKOFF_MAX).
func New(cid acn.CID, uid rdm.UID, hardwareAddr [6]byte, componentType llrp.ComponentType, send Sender, dispatcher RDMDispatcher, backoffMax time.Duration) *Target {
	return &Target{
		cid:           cid,
		uid:           uid,
		hardwareAddr:  hardwareAddr,
		componentType: componentType,
		send:          send,
		dispatcher:    dispatcher,
		backoffMax:    backoffMax,
		jitter:        defaultJitter,
	}
}

func defaultJitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(max)))
}

// SetConnectionActive records whether this target's RPT broker
// connection currently carries an active client, for the
// client-TCP-connection-inactive probe filter bit.
func (t *Target) SetConnectionActive(active bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connectionActive = active
}

// HandleFrame processes one received root-layer frame: a probe-request
// that may schedule a reply, or an RDM command addressed to this
// target's UID.
func (t *Target) HandleFrame(frame []byte, now time.Time) error {
	root, err := acn.UnmarshalRootLayerPDU(frame)
	if err != nil {
		return fmt.Errorf("llrptarget: %w", err)
	}
	if root.Vector != acn.VectorLLRP {
		return nil
	}
	pdu, err := llrp.Unmarshal(root.Payload)
	if err != nil {
		return fmt.Errorf("llrptarget: %w", err)
	}
	if pdu.DestCID != t.cid && pdu.DestCID != acn.BroadcastCID {
		return nil
	}

	switch pdu.Vector {
	case llrp.VectorProbeRequest:
		return t.handleProbeRequest(pdu, root.SrcCID, now)
	case llrp.VectorRDMCommand:
		return t.handleRDMCommand(pdu, root.SrcCID)
	default:
		return nil
	}
}

// handleProbeRequest applies spec.md §4.6's drop/schedule rule: "drop
// if own UID not in [lo, hi], own UID in Known-UIDs, or the filter
// excludes this component; otherwise schedule a reply at now +
// uniform(0, REPLY_BACKOFF_MAX), coalescing further matching
// probe-requests while one reply is already pending."
func (t *Target) handleProbeRequest(pdu *llrp.PDU, managerCID acn.CID, now time.Time) error {
	req, err := llrp.UnmarshalProbeRequest(pdu.Payload)
	if err != nil {
		return fmt.Errorf("llrptarget: %w", err)
	}

	self := uid64(t.uid)
	if self < uid64(req.Lower) || self > uid64(req.Upper) {
		return nil
	}
	for _, known := range req.KnownUIDs {
		if known == t.uid {
			return nil
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.excludedByFilter(req.Filter) {
		return nil
	}
	if t.pending {
		return nil
	}

	t.pending = true
	t.pendingDestCID = managerCID
	t.pendingTxNumber = pdu.TransactionNumber
	t.fireAt = now.Add(t.jitter(t.backoffMax))
	return nil
}

// excludedByFilter reports whether req.Filter's bits rule this target
// out of the search. Caller holds mu.
func (t *Target) excludedByFilter(filter uint16) bool {
	if filter&llrp.FilterClientTCPConnectionInactive != 0 && t.connectionActive {
		return true
	}
	if filter&llrp.FilterBrokersOnly != 0 && t.componentType != llrp.ComponentTypeBroker {
		return true
	}
	return false
}

// handleRDMCommand dispatches an RDM command addressed to this target's
// UID to the owning client and sends the response back to the
// requesting CID.
func (t *Target) handleRDMCommand(pdu *llrp.PDU, requesterCID acn.CID) error {
	msg, err := rdm.Unmarshal(pdu.Payload)
	if err != nil {
		return fmt.Errorf("llrptarget: %w", err)
	}
	if msg.DestUID != t.uid {
		return nil
	}
	if t.dispatcher == nil {
		return nil
	}

	resp, err := t.dispatcher.HandleRDMCommand(msg)
	if err != nil {
		return fmt.Errorf("llrptarget: dispatch RDM command: %w", err)
	}
	if resp == nil {
		return nil
	}
	return t.sendRDMResponse(resp, requesterCID, pdu.TransactionNumber)
}

func (t *Target) sendRDMResponse(resp *rdm.Message, destCID acn.CID, transactionNumber uint32) error {
	payload, err := resp.Marshal()
	if err != nil {
		return fmt.Errorf("llrptarget: marshal RDM response: %w", err)
	}
	pdu := &llrp.PDU{Vector: llrp.VectorRDMCommand, DestCID: destCID, TransactionNumber: transactionNumber, Payload: payload}
	pduBytes, err := pdu.Marshal()
	if err != nil {
		return fmt.Errorf("llrptarget: marshal RDM response PDU: %w", err)
	}
	root := &acn.RootLayerPDU{Vector: acn.VectorLLRP, SrcCID: t.cid, Payload: pduBytes}
	frame, err := root.Marshal()
	if err != nil {
		return fmt.Errorf("llrptarget: marshal root-layer PDU: %w", err)
	}
	return t.send.Send(frame)
}

// Tick fires the scheduled probe-reply once its back-off window has
// elapsed (spec.md §4.6: "on firing, send probe-reply to the LLRP reply
// multicast group echoing stored dest CID and transaction number").
func (t *Target) Tick(now time.Time) error {
	t.mu.Lock()
	if !t.pending || now.Before(t.fireAt) {
		t.mu.Unlock()
		return nil
	}
	destCID := t.pendingDestCID
	txNumber := t.pendingTxNumber
	t.pending = false
	t.mu.Unlock()

	reply := &llrp.ProbeReply{UID: t.uid, HardwareAddr: t.hardwareAddr, ComponentType: t.componentType}
	payload, err := reply.Marshal()
	if err != nil {
		return fmt.Errorf("llrptarget: marshal probe-reply: %w", err)
	}
	pdu := &llrp.PDU{Vector: llrp.VectorProbeReply, DestCID: destCID, TransactionNumber: txNumber, Payload: payload}
	pduBytes, err := pdu.Marshal()
	if err != nil {
		return fmt.Errorf("llrptarget: marshal probe-reply PDU: %w", err)
	}
	root := &acn.RootLayerPDU{Vector: acn.VectorLLRP, SrcCID: t.cid, Payload: pduBytes}
	frame, err := root.Marshal()
	if err != nil {
		return fmt.Errorf("llrptarget: marshal root-layer PDU: %w", err)
	}
	return t.send.Send(frame)
}

// Pending reports whether a probe-reply is currently scheduled.
func (t *Target) Pending() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pending
}
