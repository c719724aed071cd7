package rdmnet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCIDRoundTripsThroughParseCID(t *testing.T) {
	cid := NewCID()
	parsed, err := ParseCID(cid.String())
	require.NoError(t, err)
	assert.Equal(t, cid, parsed)
}

func TestParseCIDRejectsGarbage(t *testing.T) {
	_, err := ParseCID("not-a-cid")
	assert.Error(t, err)
}

func TestCallbacksAdapterForwardsEveryEvent(t *testing.T) {
	cb := &fakeCallbacks{}
	a := callbacksAdapter{cb}

	a.OnConnected("s")
	a.OnConnectFailed("s", "refused")
	a.OnDisconnected("s", "bye")
	a.OnRDMResponse("s", 1, &Message{})
	a.OnRDMNotification("s", &Message{})
	a.OnRDMCommand("s", 1, 2, 3, &Message{})
	a.OnDynamicUIDsAssigned("s", []DynamicUIDMapping{{}})

	assert.Equal(t, []Scope{"s"}, cb.connected)
	assert.Equal(t, []string{"s:refused"}, cb.connectFail)
	assert.Equal(t, []string{"s:bye"}, cb.disconnected)
	assert.Len(t, cb.responses, 1)
	assert.Len(t, cb.notifs, 1)
	assert.Len(t, cb.commands, 1)
	assert.Len(t, cb.assigned, 1)
}
