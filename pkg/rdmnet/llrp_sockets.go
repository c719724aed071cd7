package rdmnet

import (
	"errors"
	"net"
	"sync"

	"github.com/marmos91/rdmnetcore/internal/logger"
	"github.com/marmos91/rdmnetcore/internal/netif"
	"github.com/marmos91/rdmnetcore/internal/protocol/llrp"
)

// llrpSockets owns the shared LLRP request/reply multicast sockets
// every Manager and Target in a Context sends and receives on (spec.md
// §4.2, §6: fixed multicast groups, UDP port 5569). Both groups are
// bound once per Context and fanned out to every co-hosted or
// standalone Manager/Target registered against them, since a
// net.PacketConn has exactly one reader: two goroutines both calling
// ReadFrom on the same socket would each only get a fraction of the
// traffic.
type llrpSockets struct {
	reqConn   net.PacketConn
	replyConn net.PacketConn
	reqAddr   *net.UDPAddr
	replyAddr *net.UDPAddr

	log *logger.Logger

	mu        sync.Mutex
	nextID    uint64
	reqSinks  map[uint64]func([]byte)
	replySink map[uint64]func([]byte)
}

func openLLRPSockets(ifaceNames []string, log *logger.Logger) (*llrpSockets, error) {
	reqConn, err := netif.OpenMulticastSocket(llrp.MulticastGroupRequestIPv4, llrp.MulticastPort, ifaceNames)
	if err != nil {
		return nil, err
	}
	replyConn, err := netif.OpenMulticastSocket(llrp.MulticastGroupReplyIPv4, llrp.MulticastPort, ifaceNames)
	if err != nil {
		_ = reqConn.Close()
		return nil, err
	}

	s := &llrpSockets{
		reqConn:   reqConn,
		replyConn: replyConn,
		reqAddr:   &net.UDPAddr{IP: net.ParseIP(llrp.MulticastGroupRequestIPv4), Port: llrp.MulticastPort},
		replyAddr: &net.UDPAddr{IP: net.ParseIP(llrp.MulticastGroupReplyIPv4), Port: llrp.MulticastPort},
		log:       log,
		reqSinks:  map[uint64]func([]byte){},
		replySink: map[uint64]func([]byte){},
	}
	go s.fanOut(reqConn, s.reqSinks, &s.mu)
	go s.fanOut(replyConn, s.replySink, &s.mu)
	return s, nil
}

func (s *llrpSockets) Close() {
	_ = s.reqConn.Close()
	_ = s.replyConn.Close()
}

// addReqSink registers fn to receive every probe-request datagram
// (consumed by Targets). addReplySink registers fn to receive every
// probe-reply datagram (consumed by Managers). Both return an id for
// removeSink.
func (s *llrpSockets) addReqSink(fn func([]byte)) uint64   { return s.addSink(s.reqSinks, fn) }
func (s *llrpSockets) addReplySink(fn func([]byte)) uint64 { return s.addSink(s.replySink, fn) }

func (s *llrpSockets) addSink(m map[uint64]func([]byte), fn func([]byte)) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := s.nextID
	m[id] = fn
	return id
}

func (s *llrpSockets) removeReqSink(id uint64)   { s.removeSink(s.reqSinks, id) }
func (s *llrpSockets) removeReplySink(id uint64) { s.removeSink(s.replySink, id) }

func (s *llrpSockets) removeSink(m map[uint64]func([]byte), id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(m, id)
}

// fanOut reads datagrams off conn until it is closed, delivering a copy
// of each to every registered sink in sinks.
func (s *llrpSockets) fanOut(conn net.PacketConn, sinks map[uint64]func([]byte), mu *sync.Mutex) {
	buf := make([]byte, 65535)
	for {
		n, _, err := conn.ReadFrom(buf)
		if err != nil {
			if !errors.Is(err, net.ErrClosed) && s.log != nil {
				s.log.Error("rdmnet: llrp socket read failed", logger.KeyError, err.Error())
			}
			return
		}
		frame := make([]byte, n)
		copy(frame, buf[:n])

		mu.Lock()
		fns := make([]func([]byte), 0, len(sinks))
		for _, fn := range sinks {
			fns = append(fns, fn)
		}
		mu.Unlock()
		for _, fn := range fns {
			fn(frame)
		}
	}
}

// requestSender implements llrpmgr.Sender: Managers send probe-requests
// to the request group.
type requestSender struct{ s *llrpSockets }

func (r requestSender) Send(frame []byte) error {
	_, err := r.s.reqConn.WriteTo(frame, r.s.reqAddr)
	return err
}

// replySender implements llrptarget.Sender: Targets send probe-replies
// to the reply group.
type replySender struct{ s *llrpSockets }

func (r replySender) Send(frame []byte) error {
	_, err := r.s.replyConn.WriteTo(frame, r.s.replyAddr)
	return err
}
