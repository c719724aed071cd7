package rdmnet

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestContextWithLLRP extends newTestContext with loopback UDP
// sockets standing in for the real multicast request/reply groups, so
// LLRPManager/LLRPTarget construction and teardown can be exercised
// without depending on the host's multicast interfaces.
func newTestContextWithLLRP(t *testing.T) *Context {
	t.Helper()
	ctx := newTestContext(t)

	reqConn, err := net.ListenPacket("udp4", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = reqConn.Close() })
	replyConn, err := net.ListenPacket("udp4", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = replyConn.Close() })

	sockets := &llrpSockets{
		reqConn:   reqConn,
		replyConn: replyConn,
		reqAddr:   reqConn.LocalAddr().(*net.UDPAddr),
		replyAddr: replyConn.LocalAddr().(*net.UDPAddr),
		reqSinks:  map[uint64]func([]byte){},
		replySink: map[uint64]func([]byte){},
	}
	go sockets.fanOut(reqConn, sockets.reqSinks, &sockets.mu)
	go sockets.fanOut(replyConn, sockets.replySink, &sockets.mu)
	ctx.llrp = sockets
	return ctx
}

func TestLLRPManagerStartStopDiscovered(t *testing.T) {
	ctx := newTestContextWithLLRP(t)
	mgr := ctx.NewLLRPManager(NewCID(), UID{Manufacturer: 1, Device: 1}, "")
	t.Cleanup(mgr.Close)

	assert.Empty(t, mgr.Discovered())
	assert.False(t, mgr.Running())

	require.NoError(t, mgr.Start(0))
	assert.True(t, mgr.Running())

	mgr.Stop()
	assert.False(t, mgr.Running())
}

func TestLLRPTargetConstructionAndClose(t *testing.T) {
	ctx := newTestContextWithLLRP(t)
	tgt := ctx.NewLLRPTarget(NewCID(), UID{Manufacturer: 1, Device: 2}, [6]byte{1, 2, 3, 4, 5, 6}, 0, fakeRDMDispatcher{})
	tgt.Close()
	assert.Equal(t, 0, ctx.hmgr.Count())
}

type fakeRDMDispatcher struct{}

func (fakeRDMDispatcher) HandleRDMCommand(msg *Message) (*Message, error) { return nil, nil }
