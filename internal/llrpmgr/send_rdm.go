package llrpmgr

import (
	"fmt"

	"github.com/marmos91/rdmnetcore/internal/protocol/acn"
	"github.com/marmos91/rdmnetcore/internal/protocol/llrp"
	"github.com/marmos91/rdmnetcore/internal/protocol/rdm"
)

// SendRDM sends an RDM GET or SET addressed to a single target over the
// LLRP request group, outside the discovery loop (spec.md §4.5:
// "send_rdm(destination_cid, uid, get|set, pid, data) allocates a new
// 32-bit transaction number ..."). It returns the transaction number it
// stamped on the request. The Manager keeps no record of outstanding
// requests, and HandleFrame ignores incoming RDM PDUs, so responses to
// these commands are not correlated or delivered by this package.
func (m *Manager) SendRDM(destinationCID acn.CID, uid rdm.UID, commandClass rdm.CommandClass, pid uint16, data []byte) (transactionNumber uint32, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	msg := &rdm.Message{
		SourceUID:     m.uid,
		DestUID:       uid,
		CommandClass:  commandClass,
		PID:           pid,
		ParameterData: data,
	}
	payload, err := msg.Marshal()
	if err != nil {
		return 0, fmt.Errorf("llrpmgr: marshal RDM command: %w", err)
	}

	m.nextTx++
	tx := m.nextTx
	pdu := &llrp.PDU{
		Vector:            llrp.VectorRDMCommand,
		DestCID:           destinationCID,
		TransactionNumber: tx,
		Payload:           payload,
	}
	pduBytes, err := pdu.Marshal()
	if err != nil {
		return 0, fmt.Errorf("llrpmgr: marshal RDM command PDU: %w", err)
	}

	root := &acn.RootLayerPDU{Vector: acn.VectorLLRP, SrcCID: m.cid, Payload: pduBytes}
	frame, err := root.Marshal()
	if err != nil {
		return 0, fmt.Errorf("llrpmgr: marshal root-layer PDU: %w", err)
	}
	if err := m.send.Send(frame); err != nil {
		return 0, fmt.Errorf("llrpmgr: send RDM command: %w", err)
	}
	return tx, nil
}
