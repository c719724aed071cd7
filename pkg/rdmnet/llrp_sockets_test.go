package rdmnet

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// newLoopbackSockets builds an llrpSockets over plain loopback UDP
// sockets rather than real multicast groups, so fan-out behavior can be
// tested without depending on the host having a multicast-capable
// interface.
func newLoopbackSockets(t *testing.T) (*llrpSockets, net.PacketConn) {
	t.Helper()
	conn, err := net.ListenPacket("udp4", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	peer, err := net.ListenPacket("udp4", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = peer.Close() })

	s := &llrpSockets{
		reqConn:   conn,
		reqSinks:  map[uint64]func([]byte){},
		replySink: map[uint64]func([]byte){},
	}
	go s.fanOut(conn, s.reqSinks, &s.mu)
	return s, peer
}

func TestFanOutDeliversToEveryRegisteredSink(t *testing.T) {
	s, peer := newLoopbackSockets(t)

	var mu sync.Mutex
	var gotA, gotB []byte
	done := make(chan struct{}, 2)

	idA := s.addReqSink(func(frame []byte) {
		mu.Lock()
		gotA = frame
		mu.Unlock()
		done <- struct{}{}
	})
	idB := s.addReqSink(func(frame []byte) {
		mu.Lock()
		gotB = frame
		mu.Unlock()
		done <- struct{}{}
	})
	require.NotEqual(t, idA, idB)

	_, err := peer.WriteTo([]byte("probe"), s.reqConn.LocalAddr())
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for fan-out delivery")
		}
	}

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []byte("probe"), gotA)
	require.Equal(t, []byte("probe"), gotB)
}

func TestRemoveSinkStopsDelivery(t *testing.T) {
	s, peer := newLoopbackSockets(t)

	received := make(chan struct{}, 1)
	id := s.addReqSink(func(frame []byte) { received <- struct{}{} })
	s.removeReqSink(id)

	_, err := peer.WriteTo([]byte("probe"), s.reqConn.LocalAddr())
	require.NoError(t, err)

	select {
	case <-received:
		t.Fatal("sink fired after removal")
	case <-time.After(200 * time.Millisecond):
	}
}
