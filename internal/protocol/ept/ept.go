// Package ept implements the EPT (Extensible Packet Transport) PDU,
// the RDMnet vector reserved for vendor-defined payloads routed by
// destination CID rather than by RDM UID (spec.md §4.1).
package ept

import (
	"fmt"

	"github.com/marmos91/rdmnetcore/internal/protocol/acn"
	"github.com/marmos91/rdmnetcore/internal/wire"
)

// EPT PDU vectors (spec.md §4.1: "vector {data, status}").
const (
	VectorData   uint32 = 0x00000001
	VectorStatus uint32 = 0x00000002
)

// cidSize is the wire size of an acn.CID.
const cidSize = 16

// HeaderSize is the wire size of the EPT PDU header: flags+length(3),
// vector(4), dest CID(16).
const HeaderSize = 3 + 4 + cidSize

// PDU is an EPT PDU.
type PDU struct {
	Vector  uint32
	DestCID acn.CID
	Payload []byte
}

// Marshal encodes p into its wire form.
func (p *PDU) Marshal() ([]byte, error) {
	total := HeaderSize + len(p.Payload)
	buf := make([]byte, total)
	if err := wire.PutFlagsLength(buf[0:3], uint32(total)); err != nil {
		return nil, err
	}
	wire.PutUint32(buf[3:7], p.Vector)
	if err := acn.PutCID(buf[7:7+cidSize], p.DestCID); err != nil {
		return nil, err
	}
	copy(buf[HeaderSize:], p.Payload)
	return buf, nil
}

// Unmarshal parses an EPT PDU from buf.
func Unmarshal(buf []byte) (*PDU, error) {
	if len(buf) < HeaderSize {
		return nil, fmt.Errorf("ept: buffer too short for PDU header")
	}
	length, err := wire.GetFlagsLength(buf[0:3])
	if err != nil {
		return nil, fmt.Errorf("ept: %w", err)
	}
	if err := wire.CheckContained(buf, 0, length); err != nil {
		return nil, fmt.Errorf("ept: %w", err)
	}
	if length < HeaderSize {
		return nil, fmt.Errorf("ept: PDU length %d shorter than header", length)
	}

	vector, _ := wire.GetUint32(buf[3:7])
	destCID, err := acn.GetCID(buf[7 : 7+cidSize])
	if err != nil {
		return nil, err
	}

	return &PDU{
		Vector:  vector,
		DestCID: destCID,
		Payload: buf[HeaderSize:length],
	}, nil
}

// StatusCode is the EPT-level status a peer reports in a VectorStatus
// PDU when it cannot deliver or process a VectorData payload.
type StatusCode uint16

const (
	StatusUnknownVector StatusCode = 0x0001
	StatusCapacityExhausted StatusCode = 0x0002
	StatusUnknownCID    StatusCode = 0x0003
)

// Status is the VectorStatus payload: a status code plus a free-text
// diagnostic string.
type Status struct {
	Code    StatusCode
	Message string
}

// Marshal encodes s into its wire form.
func (s *Status) Marshal() ([]byte, error) {
	buf := make([]byte, 2+len(s.Message))
	wire.PutUint16(buf[0:2], uint16(s.Code))
	copy(buf[2:], s.Message)
	return buf, nil
}

// UnmarshalStatus parses a Status payload from buf.
func UnmarshalStatus(buf []byte) (*Status, error) {
	if len(buf) < 2 {
		return nil, fmt.Errorf("ept: buffer too short for status")
	}
	code, _ := wire.GetUint16(buf[0:2])
	return &Status{Code: StatusCode(code), Message: string(buf[2:])}, nil
}
