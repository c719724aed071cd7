package rpt

import (
	"testing"

	"github.com/marmos91/rdmnetcore/internal/protocol/rdm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPDURoundTrip(t *testing.T) {
	p := &PDU{
		Vector:         VectorRequest,
		SourceUID:      rdm.UID{Manufacturer: 0x6574, Device: 1},
		SourceEndpoint: 0,
		DestUID:        rdm.UID{Manufacturer: 0x6574, Device: 2},
		DestEndpoint:   3,
		SequenceNumber: 42,
		Payload:        []byte{0xAA, 0xBB},
	}
	encoded, err := p.Marshal()
	require.NoError(t, err)

	decoded, err := Unmarshal(encoded)
	require.NoError(t, err)
	assert.Equal(t, p.Vector, decoded.Vector)
	assert.Equal(t, p.SourceUID, decoded.SourceUID)
	assert.Equal(t, p.SourceEndpoint, decoded.SourceEndpoint)
	assert.Equal(t, p.DestUID, decoded.DestUID)
	assert.Equal(t, p.DestEndpoint, decoded.DestEndpoint)
	assert.Equal(t, p.SequenceNumber, decoded.SequenceNumber)
	assert.Equal(t, p.Payload, decoded.Payload)
}

func TestUnmarshalRejectsTruncatedHeader(t *testing.T) {
	_, err := Unmarshal(make([]byte, HeaderSize-1))
	assert.Error(t, err)
}

func TestUnmarshalRejectsLengthExceedingBuffer(t *testing.T) {
	p := &PDU{SourceUID: rdm.UID{Device: 1}, DestUID: rdm.UID{Device: 2}}
	encoded, err := p.Marshal()
	require.NoError(t, err)

	_, err = Unmarshal(encoded[:len(encoded)-1])
	assert.Error(t, err)
}

func TestChainAndUnchainRDMMessagesRoundTrip(t *testing.T) {
	msgs := []*rdm.Message{
		{
			SourceUID:         rdm.UID{Manufacturer: 0x6574, Device: 1},
			DestUID:           rdm.UID{Manufacturer: 0x6574, Device: 2},
			CommandClass:      rdm.CommandClassGetCommand,
			PID:               0x0060,
			TransactionNumber: 1,
			ParameterData:     []byte{0x01},
		},
		{
			SourceUID:         rdm.UID{Manufacturer: 0x6574, Device: 2},
			DestUID:           rdm.UID{Manufacturer: 0x6574, Device: 1},
			CommandClass:      rdm.CommandClassGetCommandResponse,
			ResponseType:      rdm.ResponseTypeAck,
			PID:               0x0060,
			TransactionNumber: 1,
			ParameterData:     []byte{0x02, 0x03, 0x04},
		},
	}

	payload, err := ChainRDMMessages(msgs)
	require.NoError(t, err)

	decoded, err := UnchainRDMMessages(payload)
	require.NoError(t, err)
	require.Len(t, decoded, 2)
	assert.Equal(t, msgs[0].ParameterData, decoded[0].ParameterData)
	assert.Equal(t, msgs[1].ParameterData, decoded[1].ParameterData)
	assert.Equal(t, msgs[1].CommandClass, decoded[1].CommandClass)
}

func TestUnchainRDMMessagesRejectsTruncatedTrailer(t *testing.T) {
	_, err := UnchainRDMMessages(make([]byte, rdm.HeaderSize-1))
	assert.Error(t, err)
}

func TestStatusRoundTrip(t *testing.T) {
	s := &Status{Code: StatusUnknownRDMUID, Message: "no such device"}
	encoded, err := s.Marshal()
	require.NoError(t, err)

	decoded, err := UnmarshalStatus(encoded)
	require.NoError(t, err)
	assert.Equal(t, *s, *decoded)
}

func TestUnmarshalStatusRejectsTooShort(t *testing.T) {
	_, err := UnmarshalStatus([]byte{0x01})
	assert.Error(t, err)
}
