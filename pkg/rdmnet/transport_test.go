package rdmnet

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/rdmnetcore/internal/protocol/acn"
	"github.com/marmos91/rdmnetcore/internal/protocol/broker"
	"github.com/marmos91/rdmnetcore/internal/protocol/rdm"
	"github.com/marmos91/rdmnetcore/internal/session"
	"github.com/marmos91/rdmnetcore/pkg/config"
)

func newTestSession(t *testing.T, cb *fakeCallbacks) (*session.Session, UID) {
	t.Helper()
	defaults := config.GetDefaultConfig()
	uid := rdm.UID{Manufacturer: 0x1234, Device: 1}
	return session.New(session.Options{
		CID:               acn.NewCID(),
		UID:               uid,
		ClientType:        broker.ClientTypeRPTController,
		ConnectionConfig:  defaults.Connection,
		Caps:              defaults.Caps,
		ReassemblyTimeout: time.Second,
		Callbacks:         callbacksAdapter{cb},
	}), uid
}

func TestScopeTransportDialConnectAndHandshake(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	cb := &fakeCallbacks{}
	sess, uid := newTestSession(t, cb)

	ctx := newTestContext(t)
	tr := newScopeTransport(ctx, sess)
	t.Cleanup(tr.closeAllConns)

	effects, err := sess.AddScope("default", ln.Addr().String(), time.Unix(0, 0))
	require.NoError(t, err)
	tr.applyEffects("default", effects)

	serverConn, err := ln.Accept()
	require.NoError(t, err)
	t.Cleanup(func() { _ = serverConn.Close() })

	// The transport's dial goroutine writes the client-connect PDU as
	// soon as the TCP handshake lands; read and discard it before
	// replying.
	_, err = readRootLayerFrame(serverConn)
	require.NoError(t, err)

	reply := &broker.ConnectReply{
		Status:    broker.ConnectStatusOK,
		BrokerUID: rdm.UID{Manufacturer: 0xAAAA, Device: 1},
		ClientUID: uid,
	}
	replyPayload, err := reply.Marshal()
	require.NoError(t, err)
	replyPDU, err := (&broker.PDU{Vector: broker.VectorConnectReply, Payload: replyPayload}).Marshal()
	require.NoError(t, err)
	root, err := (&acn.RootLayerPDU{Vector: acn.VectorBroker, SrcCID: acn.NewCID(), Payload: replyPDU}).Marshal()
	require.NoError(t, err)

	_, err = serverConn.Write(root)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(cb.connected) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, Scope("default"), cb.connected[0])
}

func TestScopeTransportDialFailureReportsConnectFailed(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close()) // nothing listening anymore

	cb := &fakeCallbacks{}
	sess, _ := newTestSession(t, cb)
	ctx := newTestContext(t)
	tr := newScopeTransport(ctx, sess)
	t.Cleanup(tr.closeAllConns)

	effects, err := sess.AddScope("default", addr, time.Unix(0, 0))
	require.NoError(t, err)
	tr.applyEffects("default", effects)

	require.Eventually(t, func() bool {
		return len(cb.connectFail) == 1
	}, 2*time.Second, 10*time.Millisecond)
}
