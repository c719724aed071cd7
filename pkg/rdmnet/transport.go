package rdmnet

import (
	"net"
	"sync"
	"time"

	"github.com/marmos91/rdmnetcore/internal/connection"
	"github.com/marmos91/rdmnetcore/internal/logger"
	"github.com/marmos91/rdmnetcore/internal/session"
)

// dialTimeout bounds how long a Controller/Device waits for TCP connect
// to a resolved or static broker address before treating it as a failed
// dial (spec.md §4.4's connect-reply timeout covers the protocol
// handshake; this covers the TCP handshake beneath it).
const dialTimeout = 5 * time.Second

// scopeTransport carries out the connection.Effects an embedded
// session.Session produces: dialing, writing frames, and closing
// sockets, one net.Conn per scope. Controller and Device both embed
// this; only the session.Options they construct differ (spec.md §6:
// the caller, not the protocol state machine, performs I/O).
type scopeTransport struct {
	ctx  *Context
	sess *session.Session
	log  *logger.Logger

	mu      sync.Mutex
	conns   map[string]net.Conn
	closeWg sync.WaitGroup
}

func newScopeTransport(ctx *Context, sess *session.Session) scopeTransport {
	return scopeTransport{ctx: ctx, sess: sess, log: ctx.log, conns: map[string]net.Conn{}}
}

// Scopes returns a snapshot of every scope this transport's session
// currently monitors.
func (t *scopeTransport) Scopes() []session.ScopeStatus {
	return t.sess.Scopes()
}

func (t *scopeTransport) closeAllConns() {
	t.mu.Lock()
	conns := make([]net.Conn, 0, len(t.conns))
	for _, c := range t.conns {
		conns = append(conns, c)
	}
	t.conns = map[string]net.Conn{}
	t.mu.Unlock()

	for _, c := range conns {
		_ = c.Close()
	}
	t.closeWg.Wait()
}

// applyEffects carries out one scope's connection.Effects.
func (t *scopeTransport) applyEffects(scope string, effects []connection.Effect) {
	for _, e := range effects {
		switch e.Kind {
		case connection.EffectDial:
			t.dial(scope, e.Address)
		case connection.EffectSend:
			t.send(scope, e.Frame)
		case connection.EffectCloseSocket:
			t.closeConn(scope)
		case connection.EffectConnected, connection.EffectConnectFailed,
			connection.EffectDisconnected, connection.EffectRedirected:
			// pure notifications; Session already invoked Callbacks.
		}
	}
}

func (t *scopeTransport) dial(scope, addr string) {
	t.closeWg.Add(1)
	go func() {
		defer t.closeWg.Done()

		conn, err := net.DialTimeout("tcp", addr, dialTimeout)
		now := time.Now()
		if err != nil {
			if t.log != nil {
				t.log.Warn("rdmnet: dial failed", logger.KeyScope, scope, logger.KeyError, err.Error())
			}
			effects, _ := t.sess.DialFailed(scope, now)
			t.applyEffects(scope, effects)
			return
		}

		t.mu.Lock()
		t.conns[scope] = conn
		t.mu.Unlock()

		effects, err := t.sess.DialSucceeded(scope, now)
		if err != nil {
			_ = conn.Close()
			return
		}
		t.applyEffects(scope, effects)

		t.readLoop(scope, conn)
	}()
}

func (t *scopeTransport) readLoop(scope string, conn net.Conn) {
	for {
		frame, err := readRootLayerFrame(conn)
		if err != nil {
			t.mu.Lock()
			if t.conns[scope] == conn {
				delete(t.conns, scope)
			}
			t.mu.Unlock()
			return
		}
		effects, err := t.sess.HandleFrame(scope, frame, time.Now())
		if err != nil {
			if t.log != nil {
				t.log.Warn("rdmnet: handle frame failed", logger.KeyScope, scope, logger.KeyError, err.Error())
			}
			continue
		}
		t.applyEffects(scope, effects)
	}
}

func (t *scopeTransport) send(scope string, frame []byte) {
	t.mu.Lock()
	conn := t.conns[scope]
	t.mu.Unlock()
	if conn == nil {
		return
	}
	if _, err := conn.Write(frame); err != nil && t.log != nil {
		t.log.Warn("rdmnet: send failed", logger.KeyScope, scope, logger.KeyError, err.Error())
	}
}

func (t *scopeTransport) closeConn(scope string) {
	t.mu.Lock()
	conn := t.conns[scope]
	delete(t.conns, scope)
	t.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
}
