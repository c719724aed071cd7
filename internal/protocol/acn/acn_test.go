package acn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCIDParseRoundTrip(t *testing.T) {
	const s = "48eaee88-2d5e-43d4-b0e9-7a9d5977ae9d"
	c, err := ParseCID(s)
	require.NoError(t, err)
	assert.Equal(t, s, c.String())
}

func TestPreambleRoundTrip(t *testing.T) {
	buf := make([]byte, PreambleSize)
	require.NoError(t, WriteUDPPreamble(buf))
	require.NoError(t, ReadUDPPreamble(buf))
	require.Error(t, ReadTCPPreamble(buf))
}

func TestTCPPreambleRoundTrip(t *testing.T) {
	buf := make([]byte, PreambleSize+4)
	require.NoError(t, WriteTCPPreamble(buf))
	require.NoError(t, ReadTCPPreamble(buf))
}

func TestRootLayerPDURoundTrip(t *testing.T) {
	cid := NewCID()
	pdu := &RootLayerPDU{Vector: VectorLLRP, SrcCID: cid, Payload: []byte{1, 2, 3, 4}}
	encoded, err := pdu.Marshal()
	require.NoError(t, err)

	decoded, err := UnmarshalRootLayerPDU(encoded)
	require.NoError(t, err)
	assert.Equal(t, pdu.Vector, decoded.Vector)
	assert.Equal(t, pdu.SrcCID, decoded.SrcCID)
	assert.Equal(t, pdu.Payload, decoded.Payload)

	reencoded, err := decoded.Marshal()
	require.NoError(t, err)
	assert.Equal(t, encoded, reencoded)
}

func TestRootLayerPDURejectsOverlongDeclaredLength(t *testing.T) {
	buf := make([]byte, RootLayerHeaderSize+4)
	// Declare a length larger than the buffer.
	buf[0] = 0x80 | byte((uint32(len(buf)+100)>>16)&0x0F)
	buf[1] = byte((uint32(len(buf) + 100)) >> 8)
	buf[2] = byte(uint32(len(buf) + 100))
	_, err := UnmarshalRootLayerPDU(buf)
	assert.Error(t, err)
}
