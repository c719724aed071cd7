// Package broker implements the Broker PDU and its payload sub-messages
// carried over a client's TCP connection to an RDMnet broker (spec.md
// §4.1, §4.4).
package broker

import (
	"fmt"

	"github.com/marmos91/rdmnetcore/internal/protocol/acn"
	"github.com/marmos91/rdmnetcore/internal/protocol/rdm"
	"github.com/marmos91/rdmnetcore/internal/wire"
)

// Broker PDU vectors (spec.md §4.1).
const (
	VectorConnect             uint32 = 0x00000001
	VectorConnectReply        uint32 = 0x00000002
	VectorClientEntryUpdate   uint32 = 0x00000003
	VectorRedirectV4          uint32 = 0x00000004
	VectorRedirectV6          uint32 = 0x00000005
	VectorConnectedClientList uint32 = 0x00000006
	VectorClientAdd           uint32 = 0x00000007
	VectorClientRemove        uint32 = 0x00000008
	VectorClientEntryChange   uint32 = 0x00000009
	VectorRequestDynamicUIDs  uint32 = 0x0000000A
	VectorAssignedDynamicUIDs uint32 = 0x0000000B
	VectorFetchDynamicUIDList uint32 = 0x0000000C
	VectorDisconnect          uint32 = 0x0000000D
	VectorNull                uint32 = 0x0000000E // heartbeat
)

// HeaderSize is the wire size of the Broker PDU header: flags+length(3),
// vector(4).
const HeaderSize = 3 + 4

// PDU is a Broker PDU.
type PDU struct {
	Vector  uint32
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
	copy(buf[7:], p.Payload)
	return buf, nil
}

// Unmarshal parses a Broker PDU from buf.
func Unmarshal(buf []byte) (*PDU, error) {
	if len(buf) < HeaderSize {
		return nil, fmt.Errorf("broker: buffer too short for PDU header")
	}
	length, err := wire.GetFlagsLength(buf[0:3])
	if err != nil {
		return nil, fmt.Errorf("broker: %w", err)
	}
	if err := wire.CheckContained(buf, 0, length); err != nil {
		return nil, fmt.Errorf("broker: %w", err)
	}
	if length < HeaderSize {
		return nil, fmt.Errorf("broker: PDU length %d shorter than header", length)
	}
	vector, _ := wire.GetUint32(buf[3:7])
	return &PDU{Vector: vector, Payload: buf[HeaderSize:length]}, nil
}

// ClientType identifies a connected client's capability set (spec.md §3
// "Client ... polymorphic handle over capability set").
type ClientType uint8

const (
	ClientTypeRPTDevice     ClientType = 0x00
	ClientTypeRPTController ClientType = 0x01
	ClientTypeEPT           ClientType = 0x02
)

// ScopeMaxLength is the maximum scope-string payload length, excluding
// the NUL terminator (spec.md §3 "Scope ... ≤ 63 payload bytes + NUL").
const ScopeMaxLength = 63

// ScopeFieldSize is the fixed wire size of a NUL-padded scope field.
const ScopeFieldSize = ScopeMaxLength + 1

// ClientEntry identifies one client in a connect, update, or
// client-list message.
type ClientEntry struct {
	ClientCID  acn.CID
	ClientUID  rdm.UID
	ClientType ClientType
	BindingUID rdm.UID // EPT clients only; zero UID otherwise
}

const clientEntrySize = 16 + rdm.Size + 1 + rdm.Size

func putClientEntry(buf []byte, e ClientEntry) error {
	if len(buf) < clientEntrySize {
		return fmt.Errorf("broker: buffer too small for client entry")
	}
	if err := acn.PutCID(buf[0:16], e.ClientCID); err != nil {
		return err
	}
	if err := e.ClientUID.Put(buf[16 : 16+rdm.Size]); err != nil {
		return err
	}
	buf[16+rdm.Size] = byte(e.ClientType)
	return e.BindingUID.Put(buf[16+rdm.Size+1:])
}

func getClientEntry(buf []byte) (ClientEntry, error) {
	if len(buf) < clientEntrySize {
		return ClientEntry{}, fmt.Errorf("broker: buffer too small for client entry")
	}
	cid, err := acn.GetCID(buf[0:16])
	if err != nil {
		return ClientEntry{}, err
	}
	uid, err := rdm.GetUID(buf[16 : 16+rdm.Size])
	if err != nil {
		return ClientEntry{}, err
	}
	ct := ClientType(buf[16+rdm.Size])
	binding, err := rdm.GetUID(buf[16+rdm.Size+1:])
	if err != nil {
		return ClientEntry{}, err
	}
	return ClientEntry{ClientCID: cid, ClientUID: uid, ClientType: ct, BindingUID: binding}, nil
}

// ClientConnect is the VectorConnect payload: a client's initial
// handshake message (spec.md §4.4 "Connecting → Connected: send a
// client-connect message").
type ClientConnect struct {
	Scope      string
	E133Version uint16
	Entry      ClientEntry
}

const clientConnectSize = ScopeFieldSize + 2 + clientEntrySize

// Marshal encodes c into its wire form.
func (c *ClientConnect) Marshal() ([]byte, error) {
	buf := make([]byte, clientConnectSize)
	if err := wire.PutFixedString(buf[0:ScopeFieldSize], c.Scope); err != nil {
		return nil, err
	}
	wire.PutUint16(buf[ScopeFieldSize:ScopeFieldSize+2], c.E133Version)
	if err := putClientEntry(buf[ScopeFieldSize+2:], c.Entry); err != nil {
		return nil, err
	}
	return buf, nil
}

// UnmarshalClientConnect parses a ClientConnect payload from buf.
func UnmarshalClientConnect(buf []byte) (*ClientConnect, error) {
	if len(buf) < clientConnectSize {
		return nil, fmt.Errorf("broker: buffer too short for client-connect")
	}
	scope, err := wire.GetFixedString(buf[0:ScopeFieldSize])
	if err != nil {
		return nil, fmt.Errorf("broker: client-connect scope: %w", err)
	}
	version, _ := wire.GetUint16(buf[ScopeFieldSize : ScopeFieldSize+2])
	entry, err := getClientEntry(buf[ScopeFieldSize+2:])
	if err != nil {
		return nil, err
	}
	return &ClientConnect{Scope: scope, E133Version: version, Entry: entry}, nil
}

// ConnectStatus is the RDMnet status code a broker returns in a
// connect-reply (spec.md §4.4 "a non-OK status ... demotes to
// Discovery").
type ConnectStatus uint16

const (
	ConnectStatusOK                  ConnectStatus = 0x0000
	ConnectStatusScopeMismatch       ConnectStatus = 0x0001
	ConnectStatusCapacityExceeded    ConnectStatus = 0x0002
	ConnectStatusDuplicateUID        ConnectStatus = 0x0003
	ConnectStatusInvalidClientEntry  ConnectStatus = 0x0004
	ConnectStatusInvalidUID          ConnectStatus = 0x0005
)

// ConnectReply is the VectorConnectReply payload.
type ConnectReply struct {
	Status      ConnectStatus
	E133Version uint16
	BrokerUID   rdm.UID
	ClientUID   rdm.UID
}

const connectReplySize = 2 + 2 + rdm.Size + rdm.Size

// Marshal encodes c into its wire form.
func (c *ConnectReply) Marshal() ([]byte, error) {
	buf := make([]byte, connectReplySize)
	wire.PutUint16(buf[0:2], uint16(c.Status))
	wire.PutUint16(buf[2:4], c.E133Version)
	if err := c.BrokerUID.Put(buf[4 : 4+rdm.Size]); err != nil {
		return nil, err
	}
	if err := c.ClientUID.Put(buf[4+rdm.Size:]); err != nil {
		return nil, err
	}
	return buf, nil
}

// UnmarshalConnectReply parses a ConnectReply payload from buf.
func UnmarshalConnectReply(buf []byte) (*ConnectReply, error) {
	if len(buf) < connectReplySize {
		return nil, fmt.Errorf("broker: buffer too short for connect-reply")
	}
	status, _ := wire.GetUint16(buf[0:2])
	version, _ := wire.GetUint16(buf[2:4])
	brokerUID, err := rdm.GetUID(buf[4 : 4+rdm.Size])
	if err != nil {
		return nil, err
	}
	clientUID, err := rdm.GetUID(buf[4+rdm.Size:])
	if err != nil {
		return nil, err
	}
	return &ConnectReply{
		Status:      ConnectStatus(status),
		E133Version: version,
		BrokerUID:   brokerUID,
		ClientUID:   clientUID,
	}, nil
}

// ClientEntryUpdate is the VectorClientEntryUpdate payload: a connected
// client updating its own entry (e.g. binding changes for EPT).
type ClientEntryUpdate struct {
	ConnectionFlags uint8
	Entry           ClientEntry
}

const clientEntryUpdateSize = 1 + clientEntrySize

// Marshal encodes u into its wire form.
func (u *ClientEntryUpdate) Marshal() ([]byte, error) {
	buf := make([]byte, clientEntryUpdateSize)
	buf[0] = u.ConnectionFlags
	if err := putClientEntry(buf[1:], u.Entry); err != nil {
		return nil, err
	}
	return buf, nil
}

// UnmarshalClientEntryUpdate parses a ClientEntryUpdate payload from buf.
func UnmarshalClientEntryUpdate(buf []byte) (*ClientEntryUpdate, error) {
	if len(buf) < clientEntryUpdateSize {
		return nil, fmt.Errorf("broker: buffer too short for client-entry-update")
	}
	entry, err := getClientEntry(buf[1:])
	if err != nil {
		return nil, err
	}
	return &ClientEntryUpdate{ConnectionFlags: buf[0], Entry: entry}, nil
}

// RedirectV4 is the VectorRedirectV4 payload (spec.md §4.4 "Redirect").
type RedirectV4 struct {
	Addr [4]byte
	Port uint16
}

// Marshal encodes r into its wire form.
func (r *RedirectV4) Marshal() ([]byte, error) {
	buf := make([]byte, 6)
	copy(buf[0:4], r.Addr[:])
	wire.PutUint16(buf[4:6], r.Port)
	return buf, nil
}

// UnmarshalRedirectV4 parses a RedirectV4 payload from buf.
func UnmarshalRedirectV4(buf []byte) (*RedirectV4, error) {
	if len(buf) < 6 {
		return nil, fmt.Errorf("broker: buffer too short for redirect-v4")
	}
	var r RedirectV4
	copy(r.Addr[:], buf[0:4])
	r.Port, _ = wire.GetUint16(buf[4:6])
	return &r, nil
}

// RedirectV6 is the VectorRedirectV6 payload.
type RedirectV6 struct {
	Addr [16]byte
	Port uint16
}

// Marshal encodes r into its wire form.
func (r *RedirectV6) Marshal() ([]byte, error) {
	buf := make([]byte, 18)
	copy(buf[0:16], r.Addr[:])
	wire.PutUint16(buf[16:18], r.Port)
	return buf, nil
}

// UnmarshalRedirectV6 parses a RedirectV6 payload from buf.
func UnmarshalRedirectV6(buf []byte) (*RedirectV6, error) {
	if len(buf) < 18 {
		return nil, fmt.Errorf("broker: buffer too short for redirect-v6")
	}
	var r RedirectV6
	copy(r.Addr[:], buf[0:16])
	r.Port, _ = wire.GetUint16(buf[16:18])
	return &r, nil
}

// DisconnectReason is the reason code a Disconnect payload carries
// (spec.md §7 "Disconnect ... the disconnect reason code").
type DisconnectReason uint16

const (
	DisconnectReasonShutdown        DisconnectReason = 0x0000
	DisconnectReasonCapacityExceeded DisconnectReason = 0x0001
	DisconnectReasonHardwareFault    DisconnectReason = 0x0002
	DisconnectReasonSoftwareFault    DisconnectReason = 0x0003
	DisconnectReasonScopeChanged     DisconnectReason = 0x0004
)

// Disconnect is the VectorDisconnect payload.
type Disconnect struct {
	Reason DisconnectReason
}

// Marshal encodes d into its wire form.
func (d *Disconnect) Marshal() ([]byte, error) {
	buf := make([]byte, 2)
	wire.PutUint16(buf, uint16(d.Reason))
	return buf, nil
}

// UnmarshalDisconnect parses a Disconnect payload from buf.
func UnmarshalDisconnect(buf []byte) (*Disconnect, error) {
	if len(buf) < 2 {
		return nil, fmt.Errorf("broker: buffer too short for disconnect")
	}
	reason, _ := wire.GetUint16(buf[0:2])
	return &Disconnect{Reason: DisconnectReason(reason)}, nil
}

// NewNullPDU returns the heartbeat PDU: a Broker PDU with VectorNull and
// an empty payload, exchanged at least every 15s on an idle connection
// (spec.md §4.4 "Heartbeat").
func NewNullPDU() *PDU {
	return &PDU{Vector: VectorNull}
}
