// Package rpt implements the RPT (RDM Packet Transport) PDU used to
// carry RDM command/response traffic, and broker status messages,
// between an RPT controller or device and a broker (spec.md §4.1).
package rpt

import (
	"fmt"

	"github.com/marmos91/rdmnetcore/internal/protocol/rdm"
	"github.com/marmos91/rdmnetcore/internal/wire"
)

// RPT PDU vectors (spec.md §4.1: "vector {request, notification,
// status}").
const (
	VectorRequest      uint32 = 0x00000001
	VectorNotification uint32 = 0x00000002
	VectorStatus       uint32 = 0x00000003
)

// HeaderSize is the wire size of the RPT PDU header: flags+length(3),
// vector(4), source UID(6), source endpoint(2), dest UID(6), dest
// endpoint(2), sequence number(4).
const HeaderSize = 3 + 4 + rdm.Size + 2 + rdm.Size + 2 + 4

// PDU is an RPT PDU. For VectorRequest/VectorNotification, Payload is
// zero or more chained rdm.Message encodings back to back; for
// VectorStatus, Payload is a Status encoding.
type PDU struct {
	Vector          uint32
	SourceUID       rdm.UID
	SourceEndpoint  uint16
	DestUID         rdm.UID
	DestEndpoint    uint16
	SequenceNumber  uint32
	Payload         []byte
}

// Marshal encodes p into its wire form.
func (p *PDU) Marshal() ([]byte, error) {
	total := HeaderSize + len(p.Payload)
	buf := make([]byte, total)
	if err := wire.PutFlagsLength(buf[0:3], uint32(total)); err != nil {
		return nil, err
	}
	wire.PutUint32(buf[3:7], p.Vector)
	off := 7
	if err := p.SourceUID.Put(buf[off : off+rdm.Size]); err != nil {
		return nil, err
	}
	off += rdm.Size
	wire.PutUint16(buf[off:off+2], p.SourceEndpoint)
	off += 2
	if err := p.DestUID.Put(buf[off : off+rdm.Size]); err != nil {
		return nil, err
	}
	off += rdm.Size
	wire.PutUint16(buf[off:off+2], p.DestEndpoint)
	off += 2
	wire.PutUint32(buf[off:off+4], p.SequenceNumber)
	off += 4
	copy(buf[off:], p.Payload)
	return buf, nil
}

// Unmarshal parses an RPT PDU from buf.
func Unmarshal(buf []byte) (*PDU, error) {
	if len(buf) < HeaderSize {
		return nil, fmt.Errorf("rpt: buffer too short for PDU header")
	}
	length, err := wire.GetFlagsLength(buf[0:3])
	if err != nil {
		return nil, fmt.Errorf("rpt: %w", err)
	}
	if err := wire.CheckContained(buf, 0, length); err != nil {
		return nil, fmt.Errorf("rpt: %w", err)
	}
	if length < HeaderSize {
		return nil, fmt.Errorf("rpt: PDU length %d shorter than header", length)
	}

	vector, _ := wire.GetUint32(buf[3:7])
	off := 7
	srcUID, err := rdm.GetUID(buf[off : off+rdm.Size])
	if err != nil {
		return nil, err
	}
	off += rdm.Size
	srcEp, _ := wire.GetUint16(buf[off : off+2])
	off += 2
	dstUID, err := rdm.GetUID(buf[off : off+rdm.Size])
	if err != nil {
		return nil, err
	}
	off += rdm.Size
	dstEp, _ := wire.GetUint16(buf[off : off+2])
	off += 2
	seq, _ := wire.GetUint32(buf[off : off+4])
	off += 4

	return &PDU{
		Vector:         vector,
		SourceUID:      srcUID,
		SourceEndpoint: srcEp,
		DestUID:        dstUID,
		DestEndpoint:   dstEp,
		SequenceNumber: seq,
		Payload:        buf[off:length],
	}, nil
}

// ChainRDMMessages encodes a slice of RDM messages back to back, for use
// as a VectorRequest/VectorNotification PDU's Payload (spec.md §4.1
// "payload of chained RDM command PDUs").
func ChainRDMMessages(msgs []*rdm.Message) ([]byte, error) {
	var out []byte
	for _, m := range msgs {
		encoded, err := m.Marshal()
		if err != nil {
			return nil, err
		}
		out = append(out, encoded...)
	}
	return out, nil
}

// UnchainRDMMessages decodes a Payload produced by ChainRDMMessages back
// into individual RDM messages. Each message's own parameter-data length
// field lets the decoder find the next message's start.
func UnchainRDMMessages(payload []byte) ([]*rdm.Message, error) {
	var msgs []*rdm.Message
	for len(payload) > 0 {
		if len(payload) < rdm.HeaderSize {
			return nil, fmt.Errorf("rpt: trailing %d bytes too short for an RDM message header", len(payload))
		}
		paramLen := int(payload[rdm.HeaderSize-1])
		msgLen := rdm.HeaderSize + paramLen
		if msgLen > len(payload) {
			return nil, fmt.Errorf("rpt: chained RDM message declares length %d exceeding remaining payload %d", msgLen, len(payload))
		}
		m, err := rdm.Unmarshal(payload[:msgLen])
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
		payload = payload[msgLen:]
	}
	return msgs, nil
}

// StatusCode is the RPT-level status a broker or client reports in a
// VectorStatus PDU (spec.md Open Question 3: "whether the library
// reflects each status code to the client" — internal/session logs
// each one and does not deliver it to client callbacks).
type StatusCode uint16

const (
	StatusUnknownRPTUID         StatusCode = 0x0001
	StatusRDMTimeout            StatusCode = 0x0002
	StatusRDMInvalidResponse    StatusCode = 0x0003
	StatusUnknownRDMUID         StatusCode = 0x0004
	StatusUnknownEndpoint       StatusCode = 0x0005
	StatusBroadcastComplete     StatusCode = 0x0006
	StatusUnknownVector         StatusCode = 0x0007
)

// Status is the VectorStatus payload: a status code plus a free-text
// diagnostic string.
type Status struct {
	Code    StatusCode
	Message string
}

// Marshal encodes s into its wire form: a 2-byte code followed by the
// message bytes (not NUL-terminated; length is implied by the
// enclosing PDU).
func (s *Status) Marshal() ([]byte, error) {
	buf := make([]byte, 2+len(s.Message))
	wire.PutUint16(buf[0:2], uint16(s.Code))
	copy(buf[2:], s.Message)
	return buf, nil
}

// UnmarshalStatus parses a Status payload from buf.
func UnmarshalStatus(buf []byte) (*Status, error) {
	if len(buf) < 2 {
		return nil, fmt.Errorf("rpt: buffer too short for status")
	}
	code, _ := wire.GetUint16(buf[0:2])
	return &Status{Code: StatusCode(code), Message: string(buf[2:])}, nil
}
