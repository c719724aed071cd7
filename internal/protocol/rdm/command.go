package rdm

import (
	"fmt"

	"github.com/marmos91/rdmnetcore/internal/wire"
)

// CommandClass selects the RDM operation an RDM message carries.
type CommandClass uint8

const (
	CommandClassDiscoveryCommand          CommandClass = 0x10
	CommandClassDiscoveryCommandResponse  CommandClass = 0x11
	CommandClassGetCommand                CommandClass = 0x20
	CommandClassGetCommandResponse        CommandClass = 0x21
	CommandClassSetCommand                CommandClass = 0x30
	CommandClassSetCommandResponse        CommandClass = 0x31
)

// ResponseType distinguishes an RDM response's disposition. ACK_TIMER is
// intentionally absent: RDMnet forbids it (spec.md §3 "Response variants").
// It has no meaning on a command (non-*Response CommandClass).
type ResponseType uint8

const (
	ResponseTypeAck         ResponseType = 0x00
	ResponseTypeNackReason  ResponseType = 0x02
	ResponseTypeAckOverflow ResponseType = 0x03
)

// MaxParameterDataLength bounds the parameter-data payload of a single
// RDM message (E1.20; spec.md §3: "plus ≤231 bytes of parameter data").
const MaxParameterDataLength = 231

// HeaderSize is the wire size of the fixed RDM command/response header:
// source UID, dest UID, subdevice, command class, response type, PID,
// transaction number, parameter-data length.
const HeaderSize = Size + Size + 2 + 1 + 1 + 2 + 4 + 1

// Message is a single RDM command or response, in the restricted wire
// form RDMnet embeds inside RPT/LLRP PDUs.
type Message struct {
	SourceUID         UID
	DestUID           UID
	Subdevice         uint16
	CommandClass      CommandClass
	ResponseType      ResponseType // meaningful only when CommandClass.IsResponse()
	PID               uint16
	TransactionNumber uint32
	NackReason        uint16 // valid only when ResponseType == ResponseTypeNackReason
	ParameterData     []byte
}

// Marshal encodes m into its wire form. When ResponseType is
// ResponseTypeNackReason, NackReason is written as the first two bytes
// of the parameter-data field, matching E1.20's NACK reason placement.
func (m *Message) Marshal() ([]byte, error) {
	paramData := m.ParameterData
	if m.CommandClass.IsResponse() && m.ResponseType == ResponseTypeNackReason {
		nackBuf := make([]byte, 2)
		wire.PutUint16(nackBuf, m.NackReason)
		paramData = append(nackBuf, m.ParameterData...)
	}

	if len(paramData) > MaxParameterDataLength {
		return nil, fmt.Errorf("rdm: parameter data length %d exceeds maximum %d", len(paramData), MaxParameterDataLength)
	}

	buf := make([]byte, HeaderSize+len(paramData))
	if err := m.SourceUID.Put(buf[0:6]); err != nil {
		return nil, err
	}
	if err := m.DestUID.Put(buf[6:12]); err != nil {
		return nil, err
	}
	wire.PutUint16(buf[12:14], m.Subdevice)
	buf[14] = byte(m.CommandClass)
	buf[15] = byte(m.ResponseType)
	wire.PutUint16(buf[16:18], m.PID)
	wire.PutUint32(buf[18:22], m.TransactionNumber)
	buf[22] = byte(len(paramData))
	copy(buf[HeaderSize:], paramData)
	return buf, nil
}

// Unmarshal parses a Message from buf. buf must contain exactly one
// message (callers frame RDM messages via the enclosing RPT/LLRP PDU
// length, not a length embedded here beyond the parameter-data count).
func Unmarshal(buf []byte) (*Message, error) {
	if len(buf) < HeaderSize {
		return nil, fmt.Errorf("rdm: buffer too short for message header")
	}
	src, err := GetUID(buf[0:6])
	if err != nil {
		return nil, err
	}
	dst, err := GetUID(buf[6:12])
	if err != nil {
		return nil, err
	}
	subdevice, _ := wire.GetUint16(buf[12:14])
	cc := CommandClass(buf[14])
	rt := ResponseType(buf[15])
	pid, _ := wire.GetUint16(buf[16:18])
	txn, _ := wire.GetUint32(buf[18:22])
	paramLen := int(buf[22])

	if err := wire.CheckContained(buf, HeaderSize, uint32(paramLen)); err != nil {
		return nil, fmt.Errorf("rdm: %w", err)
	}
	paramData := buf[HeaderSize : HeaderSize+paramLen]

	msg := &Message{
		SourceUID:         src,
		DestUID:           dst,
		Subdevice:         subdevice,
		CommandClass:      cc,
		ResponseType:      rt,
		PID:               pid,
		TransactionNumber: txn,
	}

	if cc.IsResponse() && rt == ResponseTypeNackReason {
		if len(paramData) < 2 {
			return nil, fmt.Errorf("rdm: NACK_REASON response missing reason bytes")
		}
		msg.NackReason, _ = wire.GetUint16(paramData[0:2])
		msg.ParameterData = append([]byte(nil), paramData[2:]...)
	} else {
		msg.ParameterData = append([]byte(nil), paramData...)
	}

	return msg, nil
}

// IsResponse reports whether cc is one of the *Response command classes.
func (cc CommandClass) IsResponse() bool {
	switch cc {
	case CommandClassDiscoveryCommandResponse, CommandClassGetCommandResponse, CommandClassSetCommandResponse:
		return true
	default:
		return false
	}
}
