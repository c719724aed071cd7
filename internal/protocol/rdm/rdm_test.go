package rdm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUIDRoundTrip(t *testing.T) {
	buf := make([]byte, Size)
	u := UID{Manufacturer: 0x6574, Device: 0x12345678}
	require.NoError(t, u.Put(buf))

	got, err := GetUID(buf)
	require.NoError(t, err)
	assert.Equal(t, u, got)
	assert.Equal(t, "6574:12345678", got.String())
}

func TestUIDIsDynamicRequest(t *testing.T) {
	assert.True(t, UID{Manufacturer: 0x8574, Device: 0}.IsDynamicRequest())
	assert.False(t, UID{Manufacturer: 0x0574, Device: 0}.IsDynamicRequest())
	assert.False(t, UID{Manufacturer: 0x8574, Device: 1}.IsDynamicRequest())
}

func TestUIDOrderingMatchesUint64(t *testing.T) {
	lo := UID{Manufacturer: 0x0000, Device: 0}
	hi := UID{Manufacturer: 0xFFFF, Device: 0xFFFFFFFF}
	assert.True(t, lo.Less(hi))
	assert.False(t, hi.Less(lo))
	assert.Equal(t, hi, FromUint64(hi.ToUint64()))
}

func TestMessageRoundTrip_GetCommand(t *testing.T) {
	m := &Message{
		SourceUID:         UID{Manufacturer: 0x6574, Device: 1},
		DestUID:           UID{Manufacturer: 0x6574, Device: 2},
		Subdevice:         0,
		CommandClass:      CommandClassGetCommand,
		PID:               0x0003, // TCP_COMMS_STATUS-adjacent example PID
		TransactionNumber: 42,
		ParameterData:     []byte{0x01, 0x02, 0x03},
	}

	encoded, err := m.Marshal()
	require.NoError(t, err)

	decoded, err := Unmarshal(encoded)
	require.NoError(t, err)
	assert.Equal(t, m.SourceUID, decoded.SourceUID)
	assert.Equal(t, m.DestUID, decoded.DestUID)
	assert.Equal(t, m.CommandClass, decoded.CommandClass)
	assert.Equal(t, m.PID, decoded.PID)
	assert.Equal(t, m.TransactionNumber, decoded.TransactionNumber)
	assert.Equal(t, m.ParameterData, decoded.ParameterData)

	reencoded, err := decoded.Marshal()
	require.NoError(t, err)
	assert.Equal(t, encoded, reencoded)
}

func TestMessageRoundTrip_NackReason(t *testing.T) {
	m := &Message{
		SourceUID:         UID{Manufacturer: 0x6574, Device: 1},
		DestUID:           UID{Manufacturer: 0x6574, Device: 2},
		CommandClass:      CommandClassGetCommandResponse,
		ResponseType:      ResponseTypeNackReason,
		PID:               0x0003,
		TransactionNumber: 7,
		NackReason:        0x0001, // NR_UNKNOWN_PID-style placeholder
	}

	encoded, err := m.Marshal()
	require.NoError(t, err)

	decoded, err := Unmarshal(encoded)
	require.NoError(t, err)
	assert.Equal(t, ResponseTypeNackReason, decoded.ResponseType)
	assert.Equal(t, uint16(0x0001), decoded.NackReason)
	assert.Empty(t, decoded.ParameterData)
}

func TestMessageRejectsOverlongParameterData(t *testing.T) {
	m := &Message{
		ParameterData: make([]byte, MaxParameterDataLength+1),
	}
	_, err := m.Marshal()
	assert.Error(t, err)
}

func TestUnmarshalRejectsOverlongDeclaredParamLength(t *testing.T) {
	buf := make([]byte, HeaderSize+2)
	buf[22] = 200 // declares 200 bytes of parameter data, buffer only has 2
	_, err := Unmarshal(buf)
	assert.Error(t, err)
}
