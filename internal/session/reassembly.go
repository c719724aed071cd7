package session

import (
	"time"

	"github.com/marmos91/rdmnetcore/internal/logger"
	"github.com/marmos91/rdmnetcore/internal/protocol/rdm"
	"github.com/marmos91/rdmnetcore/internal/protocol/rpt"
)

// nackReasonProxyBroadcastDropped is the NACK reason code this
// implementation reports for an ACK_OVERFLOW chain abandoned by timeout
// or by exceeding the reassembly size cap (spec.md §4.7: "implementers
// choose consistently" between a synthesized NACK and a silent drop —
// this one NACKs). The NACK is delivered as a notification; a pending
// command waiting on the chain is left in place.
const nackReasonProxyBroadcastDropped uint16 = 0x0009

// reassemblyKey identifies one ACK_OVERFLOW chain in flight: consecutive
// responses sharing source UID, destination UID, PID, and command class
// are chain candidates (spec.md §4.7).
type reassemblyKey struct {
	SourceUID    rdm.UID
	DestUID      rdm.UID
	PID          uint16
	CommandClass rdm.CommandClass
}

// reassemblyChain accumulates the ACK_OVERFLOW parts of one in-flight
// response chain, pending its final (non-overflow) part or a timeout.
type reassemblyChain struct {
	parts     []*rdm.Message
	size      int
	startedAt time.Time
}

// handleRPTPDU dispatches one decoded RPT PDU: a Status PDU is logged, a
// Request/Notification PDU's chained RDM messages are unpacked and
// individually correlated or reassembled.
func (s *Session) handleRPTPDU(scopeID string, st *scopeState, pdu *rpt.PDU, now time.Time) {
	if pdu.Vector == rpt.VectorStatus {
		status, err := rpt.UnmarshalStatus(pdu.Payload)
		if err != nil {
			if s.log != nil {
				s.log.Warn("malformed RPT status PDU", logger.KeyScope, scopeID, logger.KeyError, err.Error())
			}
			return
		}
		if s.log != nil {
			s.log.Info("RPT status", logger.KeyScope, scopeID, "rpt_status_code", uint16(status.Code), "rpt_status_message", status.Message)
		}
		return
	}

	msgs, err := rpt.UnchainRDMMessages(pdu.Payload)
	if err != nil {
		if s.log != nil {
			s.log.Warn("malformed RPT payload", logger.KeyScope, scopeID, logger.KeyError, err.Error())
		}
		return
	}

	for _, msg := range msgs {
		s.handleRDMMessage(scopeID, st, pdu.SourceEndpoint, pdu.DestEndpoint, pdu.SequenceNumber, msg, now)
	}
}

// handleRDMMessage correlates one decoded RDM message to a pending
// command by (scope, source UID, sequence number), reassembling any
// ACK_OVERFLOW chain it belongs to first (spec.md §4.7). A message whose
// command class is not a response is an incoming command addressed to
// this session (the device/responder role), delivered via
// OnRDMCommand rather than correlated.
func (s *Session) handleRDMMessage(scopeID string, st *scopeState, sourceEndpoint, destEndpoint uint16, seq uint32, msg *rdm.Message, now time.Time) {
	if !msg.CommandClass.IsResponse() {
		if s.callbacks != nil {
			s.callbacks.OnRDMCommand(scopeID, sourceEndpoint, destEndpoint, seq, msg)
		}
		return
	}

	key := reassemblyKey{SourceUID: msg.SourceUID, DestUID: msg.DestUID, PID: msg.PID, CommandClass: msg.CommandClass}

	if msg.ResponseType == rdm.ResponseTypeAckOverflow {
		chain, ok := st.chains[key]
		if !ok {
			chain = &reassemblyChain{startedAt: now}
			st.chains[key] = chain
			s.metr.RecordReassemblyChain(scopeID)
		}
		chain.size += len(msg.ParameterData)
		if s.caps.MaxReassembledMessageSize > 0 && uint64(chain.size) > s.caps.MaxReassembledMessageSize.Uint64() {
			delete(st.chains, key)
			s.metr.RecordReassemblyDropped(scopeID)
			s.nackAbandonedChain(scopeID, key)
			return
		}
		chain.parts = append(chain.parts, msg)
		return
	}

	final := msg
	if chain, ok := st.chains[key]; ok {
		delete(st.chains, key)
		final = mergeChain(chain, msg)
	}

	if _, ok := st.pending[seq]; ok {
		delete(st.pending, seq)
		if s.callbacks != nil {
			s.callbacks.OnRDMResponse(scopeID, seq, final)
		}
		return
	}

	if s.callbacks != nil {
		s.callbacks.OnRDMNotification(scopeID, final)
	}
}

// mergeChain concatenates an ACK_OVERFLOW chain's accumulated parameter
// data with the terminating response's, returning the single logical
// response the client sees.
func mergeChain(chain *reassemblyChain, final *rdm.Message) *rdm.Message {
	merged := *final
	var data []byte
	for _, part := range chain.parts {
		data = append(data, part.ParameterData...)
	}
	data = append(data, final.ParameterData...)
	merged.ParameterData = data
	return &merged
}

// expireChains drops any ACK_OVERFLOW chain that has sat incomplete
// longer than the reassembly timeout, delivering a synthesized NACK via
// nackAbandonedChain.
func (s *Session) expireChains(st *scopeState, scopeID string, now time.Time) {
	for key, chain := range st.chains {
		if now.Sub(chain.startedAt) <= s.reassemblyTimeout {
			continue
		}
		delete(st.chains, key)
		s.metr.RecordReassemblyDropped(scopeID)
		s.nackAbandonedChain(scopeID, key)
	}
}

// nackAbandonedChain synthesizes a NACK for an ACK_OVERFLOW chain
// abandoned by timeout (expireChains) or size cap
// (s.caps.MaxReassembledMessageSize, handleRDMMessage) and delivers it
// through OnRDMNotification. The pending-command table is not touched,
// so a command awaiting the chain still resolves only by its own
// timeout or a later response.
func (s *Session) nackAbandonedChain(scopeID string, key reassemblyKey) {
	if s.callbacks == nil {
		return
	}
	nack := &rdm.Message{
		SourceUID:    key.SourceUID,
		DestUID:      key.DestUID,
		CommandClass: key.CommandClass,
		ResponseType: rdm.ResponseTypeNackReason,
		PID:          key.PID,
		NackReason:   nackReasonProxyBroadcastDropped,
	}
	s.callbacks.OnRDMNotification(scopeID, nack)
}
