package broker

import (
	"testing"

	"github.com/marmos91/rdmnetcore/internal/protocol/acn"
	"github.com/marmos91/rdmnetcore/internal/protocol/rdm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPDURoundTrip(t *testing.T) {
	p := &PDU{Vector: VectorConnect, Payload: []byte{1, 2, 3, 4}}
	encoded, err := p.Marshal()
	require.NoError(t, err)

	decoded, err := Unmarshal(encoded)
	require.NoError(t, err)
	assert.Equal(t, p.Vector, decoded.Vector)
	assert.Equal(t, p.Payload, decoded.Payload)
}

func TestNullPDUHasEmptyPayload(t *testing.T) {
	p := NewNullPDU()
	encoded, err := p.Marshal()
	require.NoError(t, err)

	decoded, err := Unmarshal(encoded)
	require.NoError(t, err)
	assert.Equal(t, VectorNull, decoded.Vector)
	assert.Empty(t, decoded.Payload)
}

func TestClientConnectRoundTrip(t *testing.T) {
	c := &ClientConnect{
		Scope:       "default",
		E133Version: 1,
		Entry: ClientEntry{
			ClientCID:  acn.NewCID(),
			ClientUID:  rdm.UID{Manufacturer: 0x6574, Device: 1},
			ClientType: ClientTypeRPTController,
		},
	}
	encoded, err := c.Marshal()
	require.NoError(t, err)

	decoded, err := UnmarshalClientConnect(encoded)
	require.NoError(t, err)
	assert.Equal(t, c.Scope, decoded.Scope)
	assert.Equal(t, c.E133Version, decoded.E133Version)
	assert.Equal(t, c.Entry, decoded.Entry)
}

func TestClientConnectRejectsOverlongScope(t *testing.T) {
	c := &ClientConnect{Scope: string(make([]byte, ScopeMaxLength+1))}
	_, err := c.Marshal()
	assert.Error(t, err)
}

func TestConnectReplyRoundTrip(t *testing.T) {
	c := &ConnectReply{
		Status:      ConnectStatusOK,
		E133Version: 1,
		BrokerUID:   rdm.UID{Manufacturer: 0x6574, Device: 0},
		ClientUID:   rdm.UID{Manufacturer: 0x6574, Device: 99},
	}
	encoded, err := c.Marshal()
	require.NoError(t, err)

	decoded, err := UnmarshalConnectReply(encoded)
	require.NoError(t, err)
	assert.Equal(t, *c, *decoded)
}

func TestRedirectV4RoundTrip(t *testing.T) {
	r := &RedirectV4{Addr: [4]byte{10, 0, 0, 5}, Port: 8888}
	encoded, err := r.Marshal()
	require.NoError(t, err)

	decoded, err := UnmarshalRedirectV4(encoded)
	require.NoError(t, err)
	assert.Equal(t, *r, *decoded)
}

func TestDisconnectRoundTrip(t *testing.T) {
	d := &Disconnect{Reason: DisconnectReasonScopeChanged}
	encoded, err := d.Marshal()
	require.NoError(t, err)

	decoded, err := UnmarshalDisconnect(encoded)
	require.NoError(t, err)
	assert.Equal(t, *d, *decoded)
}

func TestClientListRoundTrip(t *testing.T) {
	l := &ClientList{Entries: []ClientEntry{
		{ClientCID: acn.NewCID(), ClientUID: rdm.UID{Manufacturer: 1, Device: 1}, ClientType: ClientTypeRPTDevice},
		{ClientCID: acn.NewCID(), ClientUID: rdm.UID{Manufacturer: 1, Device: 2}, ClientType: ClientTypeRPTController},
	}}
	encoded, err := l.Marshal()
	require.NoError(t, err)

	decoded, err := UnmarshalClientList(encoded)
	require.NoError(t, err)
	assert.Equal(t, l.Entries, decoded.Entries)
}

func TestRequestAndAssignedDynamicUIDsRoundTrip(t *testing.T) {
	req := &RequestDynamicUIDs{Requests: []DynamicUIDRequestPair{
		{RequestedUID: rdm.UID{Manufacturer: 0x8574, Device: 0}},
	}}
	encoded, err := req.Marshal()
	require.NoError(t, err)
	decodedReq, err := UnmarshalRequestDynamicUIDs(encoded)
	require.NoError(t, err)
	assert.Equal(t, req.Requests, decodedReq.Requests)

	assigned := &AssignedDynamicUIDs{
		MoreComing: true,
		Mappings: []DynamicUIDMapping{
			{
				RequestedUID: rdm.UID{Manufacturer: 0x8574, Device: 0},
				AssignedUID:  rdm.UID{Manufacturer: 0x6574, Device: 42},
				Status:       DynamicUIDMappingStatusOK,
			},
		},
	}
	encodedAssigned, err := assigned.Marshal()
	require.NoError(t, err)
	decodedAssigned, err := UnmarshalAssignedDynamicUIDs(encodedAssigned)
	require.NoError(t, err)
	assert.True(t, decodedAssigned.MoreComing)
	assert.Equal(t, assigned.Mappings, decodedAssigned.Mappings)
}

func TestFetchDynamicUIDListRoundTrip(t *testing.T) {
	f := &FetchDynamicUIDList{UIDs: []rdm.UID{
		{Manufacturer: 0x6574, Device: 1},
		{Manufacturer: 0x6574, Device: 2},
	}}
	encoded, err := f.Marshal()
	require.NoError(t, err)

	decoded, err := UnmarshalFetchDynamicUIDList(encoded)
	require.NoError(t, err)
	assert.Equal(t, f.UIDs, decoded.UIDs)
}
