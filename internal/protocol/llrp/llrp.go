// Package llrp implements the LLRP (Low Level Recovery Protocol) PDU and
// sub-PDU wire forms used by both the Manager discovery engine
// (internal/llrpmgr) and the Target engine (internal/llrptarget),
// spec.md §4.1 and §4.5-§4.6.
package llrp

import (
	"fmt"

	"github.com/marmos91/rdmnetcore/internal/protocol/acn"
	"github.com/marmos91/rdmnetcore/internal/protocol/rdm"
	"github.com/marmos91/rdmnetcore/internal/wire"
)

// LLRP PDU vectors (spec.md §4.1: "32-bit vector {probe-request,
// probe-reply, RDM command}").
const (
	VectorProbeRequest uint32 = 0x00000001
	VectorProbeReply   uint32 = 0x00000002
	VectorRDMCommand   uint32 = 0x00000003
)

// Multicast groups LLRP uses (spec.md §4.2, §6). The request group is
// used by Managers to send probe-requests and by Targets to listen; the
// reply group is the reverse.
const (
	MulticastGroupRequestIPv4 = "239.255.250.133"
	MulticastGroupReplyIPv4   = "239.255.250.134"
	MulticastGroupRequestIPv6 = "ff18::85:85:250:133"
	MulticastGroupReplyIPv6   = "ff18::85:85:250:134"
	MulticastPort             = 5569
)

// HeaderSize is the wire size of the LLRP PDU header: flags+length(3),
// vector(4), destination CID(16), transaction number(4).
const HeaderSize = 3 + 4 + 16 + 4

// PDU is an LLRP PDU: vector, destination CID, transaction number, and
// an opaque payload (a ProbeRequest, ProbeReply, or embedded RDM
// message depending on Vector).
type PDU struct {
	Vector            uint32
	DestCID           acn.CID
	TransactionNumber uint32
	Payload           []byte
}

// Marshal encodes p into its wire form.
func (p *PDU) Marshal() ([]byte, error) {
	total := HeaderSize + len(p.Payload)
	buf := make([]byte, total)
	if err := wire.PutFlagsLength(buf[0:3], uint32(total)); err != nil {
		return nil, err
	}
	wire.PutUint32(buf[3:7], p.Vector)
	if err := acn.PutCID(buf[7:23], p.DestCID); err != nil {
		return nil, err
	}
	wire.PutUint32(buf[23:27], p.TransactionNumber)
	copy(buf[27:], p.Payload)
	return buf, nil
}

// Unmarshal parses an LLRP PDU from buf.
func Unmarshal(buf []byte) (*PDU, error) {
	if len(buf) < HeaderSize {
		return nil, fmt.Errorf("llrp: buffer too short for PDU header")
	}
	length, err := wire.GetFlagsLength(buf[0:3])
	if err != nil {
		return nil, fmt.Errorf("llrp: %w", err)
	}
	if err := wire.CheckContained(buf, 0, length); err != nil {
		return nil, fmt.Errorf("llrp: %w", err)
	}
	if length < HeaderSize {
		return nil, fmt.Errorf("llrp: PDU length %d shorter than header", length)
	}
	vector, _ := wire.GetUint32(buf[3:7])
	destCID, err := acn.GetCID(buf[7:23])
	if err != nil {
		return nil, err
	}
	txn, _ := wire.GetUint32(buf[23:27])
	return &PDU{
		Vector:            vector,
		DestCID:           destCID,
		TransactionNumber: txn,
		Payload:           buf[HeaderSize:length],
	}, nil
}

// Filter bitfield values a probe-request carries (spec.md §4.6: "filter
// bits: client-TCP-connection-inactive, brokers-only").
const (
	FilterClientTCPConnectionInactive uint16 = 0x0001
	FilterBrokersOnly                 uint16 = 0x0002
)

// ProbeRequestHeaderSize is the wire size of a probe-request payload's
// fixed fields: flags+length(3), sub-vector(1), lower UID(6), upper
// UID(6), filter(2).
const ProbeRequestHeaderSize = 3 + 1 + 6 + 6 + 2

// ProbeRequestSubVector is the one sub-vector value a probe-request
// payload carries.
const ProbeRequestSubVector = 0x01

// ProbeRequest is the payload of an LLRP PDU whose Vector is
// VectorProbeRequest (spec.md §4.1, §4.5).
type ProbeRequest struct {
	Lower     rdm.UID
	Upper     rdm.UID
	Filter    uint16
	KnownUIDs []rdm.UID
}

// Marshal encodes r into its wire form.
func (r *ProbeRequest) Marshal() ([]byte, error) {
	total := ProbeRequestHeaderSize + len(r.KnownUIDs)*rdm.Size
	buf := make([]byte, total)
	if err := wire.PutFlagsLength(buf[0:3], uint32(total)); err != nil {
		return nil, err
	}
	buf[3] = ProbeRequestSubVector
	if err := r.Lower.Put(buf[4:10]); err != nil {
		return nil, err
	}
	if err := r.Upper.Put(buf[10:16]); err != nil {
		return nil, err
	}
	wire.PutUint16(buf[16:18], r.Filter)
	off := ProbeRequestHeaderSize
	for _, u := range r.KnownUIDs {
		if err := u.Put(buf[off : off+rdm.Size]); err != nil {
			return nil, err
		}
		off += rdm.Size
	}
	return buf, nil
}

// UnmarshalProbeRequest parses a ProbeRequest payload from buf.
func UnmarshalProbeRequest(buf []byte) (*ProbeRequest, error) {
	if len(buf) < ProbeRequestHeaderSize {
		return nil, fmt.Errorf("llrp: buffer too short for probe-request header")
	}
	length, err := wire.GetFlagsLength(buf[0:3])
	if err != nil {
		return nil, fmt.Errorf("llrp: probe-request: %w", err)
	}
	if err := wire.CheckContained(buf, 0, length); err != nil {
		return nil, fmt.Errorf("llrp: probe-request: %w", err)
	}
	if buf[3] != ProbeRequestSubVector {
		return nil, fmt.Errorf("llrp: probe-request sub-vector %#x unsupported", buf[3])
	}
	lower, err := rdm.GetUID(buf[4:10])
	if err != nil {
		return nil, err
	}
	upper, err := rdm.GetUID(buf[10:16])
	if err != nil {
		return nil, err
	}
	filter, _ := wire.GetUint16(buf[16:18])

	remaining := int(length) - ProbeRequestHeaderSize
	if remaining%rdm.Size != 0 {
		return nil, fmt.Errorf("llrp: probe-request Known-UID list length %d not a multiple of %d", remaining, rdm.Size)
	}
	knownUIDs := make([]rdm.UID, 0, remaining/rdm.Size)
	off := ProbeRequestHeaderSize
	for off < int(length) {
		u, err := rdm.GetUID(buf[off : off+rdm.Size])
		if err != nil {
			return nil, err
		}
		knownUIDs = append(knownUIDs, u)
		off += rdm.Size
	}

	return &ProbeRequest{Lower: lower, Upper: upper, Filter: filter, KnownUIDs: knownUIDs}, nil
}

// ProbeReplySize is the fixed wire size of a probe-reply payload:
// flags+length(3), sub-vector(1), UID(6), hardware address(6),
// component type(1).
const ProbeReplySize = 3 + 1 + 6 + 6 + 1

// ProbeReplySubVector is the one sub-vector value a probe-reply payload
// carries.
const ProbeReplySubVector = 0x01

// ComponentType identifies the kind of component replying to a probe.
type ComponentType uint8

const (
	ComponentTypeRPTDevice        ComponentType = 0x00
	ComponentTypeRPTController    ComponentType = 0x01
	ComponentTypeBroker           ComponentType = 0x02
	ComponentTypeEPTMaster        ComponentType = 0x03
	ComponentTypeEPTVirtualDevice ComponentType = 0x04
)

// ProbeReply is the payload of an LLRP PDU whose Vector is
// VectorProbeReply (spec.md §4.1, §4.6).
type ProbeReply struct {
	UID           rdm.UID
	HardwareAddr  [6]byte
	ComponentType ComponentType
}

// Marshal encodes r into its wire form.
func (r *ProbeReply) Marshal() ([]byte, error) {
	buf := make([]byte, ProbeReplySize)
	if err := wire.PutFlagsLength(buf[0:3], ProbeReplySize); err != nil {
		return nil, err
	}
	buf[3] = ProbeReplySubVector
	if err := r.UID.Put(buf[4:10]); err != nil {
		return nil, err
	}
	copy(buf[10:16], r.HardwareAddr[:])
	buf[16] = byte(r.ComponentType)
	return buf, nil
}

// UnmarshalProbeReply parses a ProbeReply payload from buf.
func UnmarshalProbeReply(buf []byte) (*ProbeReply, error) {
	if len(buf) < ProbeReplySize {
		return nil, fmt.Errorf("llrp: buffer too short for probe-reply")
	}
	length, err := wire.GetFlagsLength(buf[0:3])
	if err != nil {
		return nil, fmt.Errorf("llrp: probe-reply: %w", err)
	}
	if int(length) != ProbeReplySize {
		return nil, fmt.Errorf("llrp: probe-reply declared length %d, want %d", length, ProbeReplySize)
	}
	if buf[3] != ProbeReplySubVector {
		return nil, fmt.Errorf("llrp: probe-reply sub-vector %#x unsupported", buf[3])
	}
	uid, err := rdm.GetUID(buf[4:10])
	if err != nil {
		return nil, err
	}
	var hw [6]byte
	copy(hw[:], buf[10:16])
	return &ProbeReply{UID: uid, HardwareAddr: hw, ComponentType: ComponentType(buf[16])}, nil
}
