package acn

import (
	"fmt"

	"github.com/marmos91/rdmnetcore/internal/wire"
)

// Root-layer vectors select which sub-protocol's PDU follows the sender
// CID (spec.md §4.1).
const (
	VectorLLRP   uint32 = 0x00000001
	VectorBroker uint32 = 0x00000002
	VectorRPT    uint32 = 0x00000003
	VectorEPT    uint32 = 0x00000004
)

// RootLayerHeaderSize is the size of flags+length(3) + vector(4) + CID(16).
const RootLayerHeaderSize = 3 + 4 + 16

// RootLayerPDU is the outermost ACN framing layer every LLRP and RDMnet
// message carries: a 3-byte extended-length flags+length field, a 32-bit
// vector naming the sub-protocol, a 16-byte sender CID, and the payload.
type RootLayerPDU struct {
	Vector  uint32
	SrcCID  CID
	Payload []byte
}

// Marshal encodes the root-layer PDU, including its own length field.
func (p *RootLayerPDU) Marshal() ([]byte, error) {
	total := RootLayerHeaderSize + len(p.Payload)
	buf := make([]byte, total)
	if err := wire.PutFlagsLength(buf[0:3], uint32(total)); err != nil {
		return nil, err
	}
	wire.PutUint32(buf[3:7], p.Vector)
	if err := PutCID(buf[7:23], p.SrcCID); err != nil {
		return nil, err
	}
	copy(buf[23:], p.Payload)
	return buf, nil
}

// UnmarshalRootLayerPDU parses a root-layer PDU from buf. buf must contain
// exactly one PDU (the transport layer is responsible for framing TCP
// fragments before calling this).
func UnmarshalRootLayerPDU(buf []byte) (*RootLayerPDU, error) {
	if len(buf) < RootLayerHeaderSize {
		return nil, fmt.Errorf("acn: buffer too short for root layer PDU header")
	}
	length, err := wire.GetFlagsLength(buf[0:3])
	if err != nil {
		return nil, fmt.Errorf("acn: root layer: %w", err)
	}
	if err := wire.CheckContained(buf, 0, length); err != nil {
		return nil, fmt.Errorf("acn: root layer: %w", err)
	}
	if length < RootLayerHeaderSize {
		return nil, fmt.Errorf("acn: root layer PDU length %d shorter than header", length)
	}
	vector, err := wire.GetUint32(buf[3:7])
	if err != nil {
		return nil, err
	}
	cid, err := GetCID(buf[7:23])
	if err != nil {
		return nil, err
	}
	return &RootLayerPDU{
		Vector:  vector,
		SrcCID:  cid,
		Payload: buf[RootLayerHeaderSize:length],
	}, nil
}
