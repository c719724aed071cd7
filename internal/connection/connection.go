package connection

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/marmos91/rdmnetcore/internal/discovery"
	"github.com/marmos91/rdmnetcore/internal/metrics"
	"github.com/marmos91/rdmnetcore/internal/protocol/acn"
	"github.com/marmos91/rdmnetcore/internal/protocol/broker"
	"github.com/marmos91/rdmnetcore/internal/protocol/rdm"
	"github.com/marmos91/rdmnetcore/internal/telemetry"
	"github.com/marmos91/rdmnetcore/pkg/config"
)

// Identity is the local component's identity presented in client-connect
// (spec.md §4.4, §4.7).
type Identity struct {
	CID         acn.CID
	UID         rdm.UID
	ClientType  broker.ClientType
	BindingUID  rdm.UID
	E133Version uint16
}

// Connection drives one scope's broker connection through the lifecycle
// Inactive -> Discovery -> Connecting -> Connected -> MarkedForDestruction
// (spec.md §4.4). It performs no I/O itself: every state transition
// returns the Effects the caller (the session layer, on the single tick
// thread) must carry out, so the state machine is exercised without a
// real socket.
type Connection struct {
	scope      string
	identity   Identity
	staticAddr string
	registry   *discovery.Registry
	cfg        config.ConnectionConfig
	metr       *metrics.Collector

	mu sync.Mutex

	state State

	addrs   []string
	addrIdx int

	backoff        time.Duration
	nextAttemptAt  time.Time
	connectDeadline time.Time

	brokerUID rdm.UID
	clientUID rdm.UID // assigned dynamic UID, once a connect-reply grants one

	lastHeartbeatSent time.Time
	lastHeartbeatSeen time.Time

	// connectSpan covers one handshake attempt, from the client-connect
	// send to the connect-reply (or its timeout/rejection). nil outside
	// that window.
	connectCtx  context.Context
	connectSpan trace.Span
}

// New constructs a Connection for one scope. If staticAddr is non-empty,
// Activate skips discovery entirely and dials it directly (spec.md
// §4.4: "if a static broker is configured, skip to Connecting").
func New(scope string, identity Identity, staticAddr string, registry *discovery.Registry, cfg config.ConnectionConfig, metr *metrics.Collector) *Connection {
	return &Connection{
		scope:      scope,
		identity:   identity,
		staticAddr: staticAddr,
		registry:   registry,
		cfg:        cfg,
		metr:       metr,
		state:      StateInactive,
		backoff:    cfg.BackoffInitial,
	}
}

// State reports the connection's current lifecycle state.
func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Scope reports the monitored scope this connection serves.
func (c *Connection) Scope() string {
	return c.scope
}

// Activate transitions Inactive -> Discovery, or straight to Connecting
// when a static broker address is configured.
func (c *Connection) Activate(now time.Time) []Effect {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateInactive {
		return nil
	}

	if c.staticAddr != "" {
		c.addrs = []string{c.staticAddr}
		c.addrIdx = 0
		c.state = StateConnecting
		c.setMetricState()
		return []Effect{{Kind: EffectDial, Address: c.staticAddr}}
	}

	c.state = StateDiscovery
	c.registry.AddScopeRef(c.scope)
	c.setMetricState()
	return nil
}

// Tick drives timers: discovery address polling, connect-reply timeout,
// reconnect back-off, and heartbeat send/receive timeout. Call once per
// scheduler tick (spec.md §5).
func (c *Connection) Tick(now time.Time) []Effect {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StateDiscovery:
		return c.tickDiscovery(now)
	case StateConnecting:
		return c.tickConnecting(now)
	case StateConnected:
		return c.tickConnected(now)
	default:
		return nil
	}
}

func (c *Connection) tickDiscovery(now time.Time) []Effect {
	if now.Before(c.nextAttemptAt) {
		return nil
	}
	resolved := c.registry.Resolved(c.scope)
	if len(resolved) == 0 {
		return nil
	}

	addrs := make([]string, 0, len(resolved))
	for _, b := range resolved {
		if b.Host == "" {
			continue
		}
		addrs = append(addrs, net.JoinHostPort(b.Host, strconv.Itoa(int(b.Port))))
	}
	if len(addrs) == 0 {
		return nil
	}

	c.addrs = addrs
	c.addrIdx = 0
	c.state = StateConnecting
	c.setMetricState()
	return []Effect{{Kind: EffectDial, Address: c.addrs[0]}}
}

func (c *Connection) tickConnecting(now time.Time) []Effect {
	if c.connectDeadline.IsZero() || now.Before(c.connectDeadline) {
		return nil
	}
	// Sent client-connect but never heard back: treat like a failed
	// dial against this address and move on.
	return c.advanceOrBackOff(now, "connect_reply_timeout")
}

func (c *Connection) tickConnected(now time.Time) []Effect {
	var effects []Effect
	if !c.lastHeartbeatSeen.IsZero() && now.Sub(c.lastHeartbeatSeen) > c.cfg.HeartbeatTimeout {
		effects = append(effects, Effect{Kind: EffectCloseSocket})
		effects = append(effects, Effect{Kind: EffectDisconnected, Reason: "heartbeat_timeout"})
		c.enterDiscovery(now)
		return effects
	}
	if c.lastHeartbeatSent.IsZero() || now.Sub(c.lastHeartbeatSent) >= c.cfg.HeartbeatInterval {
		_, span := telemetry.StartConnectionSpan(context.Background(), telemetry.SpanHeartbeat, c.scope)
		frame, err := c.frameBrokerPDU(broker.NewNullPDU())
		if err == nil {
			effects = append(effects, Effect{Kind: EffectSend, Frame: frame})
			c.lastHeartbeatSent = now
		} else {
			span.RecordError(err)
		}
		span.End()
	}
	return effects
}

// frameBrokerPDU wraps a Broker PDU in the ACN root-layer PDU every
// RDMnet message rides inside, stamping it with this connection's own
// CID.
func (c *Connection) frameBrokerPDU(pdu *broker.PDU) ([]byte, error) {
	payload, err := pdu.Marshal()
	if err != nil {
		return nil, err
	}
	root := &acn.RootLayerPDU{Vector: acn.VectorBroker, SrcCID: c.identity.CID, Payload: payload}
	return root.Marshal()
}

// DialSucceeded is called once the caller's TCP dial to the address
// most recently requested via an EffectDial completes successfully. It
// sends the client-connect handshake and arms the connect-reply
// timeout (spec.md §4.4: "Connecting → Connected: send a client-connect
// message").
func (c *Connection) DialSucceeded(now time.Time) ([]Effect, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateConnecting {
		return nil, nil
	}

	c.connectCtx, c.connectSpan = telemetry.StartConnectionSpan(context.Background(), telemetry.SpanConnect, c.scope,
		telemetry.BrokerAddr(c.addrs[c.addrIdx]))

	connect := &broker.ClientConnect{
		Scope:       c.scope,
		E133Version: c.identity.E133Version,
		Entry: broker.ClientEntry{
			ClientCID:  c.identity.CID,
			ClientUID:  c.identity.UID,
			ClientType: c.identity.ClientType,
			BindingUID: c.identity.BindingUID,
		},
	}
	payload, err := connect.Marshal()
	if err != nil {
		c.endConnectSpan(err)
		return nil, fmt.Errorf("connection: marshal client-connect: %w", err)
	}
	frame, err := c.frameBrokerPDU(&broker.PDU{Vector: broker.VectorConnect, Payload: payload})
	if err != nil {
		c.endConnectSpan(err)
		return nil, fmt.Errorf("connection: marshal client-connect PDU: %w", err)
	}

	c.connectDeadline = now.Add(c.cfg.ConnectReplyTimeout)
	return []Effect{{Kind: EffectSend, Frame: frame}}, nil
}

// DialFailed is called when the caller's TCP dial to the most recently
// requested address fails. It advances to the next discovered address,
// or backs off and returns to Discovery once every candidate has been
// tried (spec.md §4.4: "iterating discovered listen addresses in
// order, advancing on failure").
func (c *Connection) DialFailed(now time.Time) []Effect {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateConnecting {
		return nil
	}
	return c.advanceOrBackOff(now, "dial_failed")
}

// advanceOrBackOff tries the next candidate address, or returns to
// Discovery with an exponential back-off if none remain. Caller holds
// mu.
func (c *Connection) advanceOrBackOff(now time.Time, reason string) []Effect {
	c.metr.RecordConnectAttempt(c.scope, "failed")
	c.endConnectSpan(fmt.Errorf("connection: %s", reason))

	c.addrIdx++
	if c.addrIdx < len(c.addrs) {
		c.connectDeadline = time.Time{}
		return []Effect{{Kind: EffectCloseSocket}, {Kind: EffectDial, Address: c.addrs[c.addrIdx]}}
	}

	c.enterDiscovery(now)
	c.nextAttemptAt = now.Add(c.backoff)
	c.backoff *= 2
	if c.backoff > c.cfg.BackoffMax {
		c.backoff = c.cfg.BackoffMax
	}
	return []Effect{{Kind: EffectCloseSocket}, {Kind: EffectConnectFailed, Reason: reason}}
}

// HandleFrame processes one decoded Broker PDU arriving on the active
// socket.
func (c *Connection) HandleFrame(pdu *broker.PDU, now time.Time) ([]Effect, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch pdu.Vector {
	case broker.VectorConnectReply:
		return c.handleConnectReply(pdu, now)
	case broker.VectorRedirectV4:
		return c.handleRedirectV4(pdu)
	case broker.VectorRedirectV6:
		return c.handleRedirectV6(pdu)
	case broker.VectorDisconnect:
		return c.handleDisconnect(pdu, now)
	case broker.VectorNull:
		c.lastHeartbeatSeen = now
		return nil, nil
	default:
		c.lastHeartbeatSeen = now
		return nil, nil
	}
}

func (c *Connection) handleConnectReply(pdu *broker.PDU, now time.Time) ([]Effect, error) {
	reply, err := broker.UnmarshalConnectReply(pdu.Payload)
	if err != nil {
		c.endConnectSpan(err)
		return nil, fmt.Errorf("connection: %w", err)
	}

	if reply.Status != broker.ConnectStatusOK {
		c.metr.RecordConnectAttempt(c.scope, "refused")
		c.endConnectSpan(fmt.Errorf("connection: connect-reply status %s", connectRejectionReason(reply.Status)))
		c.enterDiscovery(now)
		return []Effect{
			{Kind: EffectCloseSocket},
			{Kind: EffectConnectFailed, Reason: connectRejectionReason(reply.Status)},
		}, nil
	}

	c.metr.RecordConnectAttempt(c.scope, "ok")
	c.brokerUID = reply.BrokerUID
	c.clientUID = reply.ClientUID
	c.backoff = c.cfg.BackoffInitial
	c.connectDeadline = time.Time{}
	c.lastHeartbeatSeen = now
	c.lastHeartbeatSent = time.Time{}
	c.state = StateConnected
	c.setMetricState()
	if c.connectSpan != nil {
		c.connectSpan.SetAttributes(telemetry.ConnState(c.state.String()))
	}
	c.endConnectSpan(nil)
	return []Effect{{Kind: EffectConnected}}, nil
}

// endConnectSpan closes the in-flight handshake span started by
// DialSucceeded, if any, recording err when the attempt did not
// complete cleanly. Caller holds mu.
func (c *Connection) endConnectSpan(err error) {
	if c.connectSpan == nil {
		return
	}
	if err != nil {
		telemetry.RecordError(c.connectCtx, err)
	}
	c.connectSpan.End()
	c.connectSpan = nil
	c.connectCtx = nil
}

func connectRejectionReason(status broker.ConnectStatus) string {
	switch status {
	case broker.ConnectStatusScopeMismatch:
		return "scope_mismatch"
	case broker.ConnectStatusCapacityExceeded:
		return "capacity_exceeded"
	case broker.ConnectStatusDuplicateUID:
		return "duplicate_uid"
	case broker.ConnectStatusInvalidClientEntry:
		return "invalid_client_entry"
	case broker.ConnectStatusInvalidUID:
		return "invalid_uid"
	default:
		return "rejected"
	}
}

// handleRedirectV4/V6 preserve the scope and restart Connecting against
// the broker-supplied address (spec.md §4.4: "redirect preserves scope
// and restarts Connecting").
func (c *Connection) handleRedirectV4(pdu *broker.PDU) ([]Effect, error) {
	r, err := broker.UnmarshalRedirectV4(pdu.Payload)
	if err != nil {
		return nil, fmt.Errorf("connection: %w", err)
	}
	addr := net.JoinHostPort(net.IP(r.Addr[:]).String(), strconv.Itoa(int(r.Port)))
	return c.redirectTo(addr), nil
}

func (c *Connection) handleRedirectV6(pdu *broker.PDU) ([]Effect, error) {
	r, err := broker.UnmarshalRedirectV6(pdu.Payload)
	if err != nil {
		return nil, fmt.Errorf("connection: %w", err)
	}
	addr := net.JoinHostPort(net.IP(r.Addr[:]).String(), strconv.Itoa(int(r.Port)))
	return c.redirectTo(addr), nil
}

func (c *Connection) redirectTo(addr string) []Effect {
	_, span := telemetry.StartConnectionSpan(context.Background(), telemetry.SpanReconnect, c.scope, telemetry.BrokerAddr(addr))
	span.End()

	c.endConnectSpan(nil)
	c.addrs = []string{addr}
	c.addrIdx = 0
	c.connectDeadline = time.Time{}
	c.state = StateConnecting
	c.setMetricState()
	return []Effect{
		{Kind: EffectCloseSocket},
		{Kind: EffectRedirected, Address: addr},
		{Kind: EffectDial, Address: addr},
	}
}

func (c *Connection) handleDisconnect(pdu *broker.PDU, now time.Time) ([]Effect, error) {
	d, err := broker.UnmarshalDisconnect(pdu.Payload)
	if err != nil {
		return nil, fmt.Errorf("connection: %w", err)
	}
	c.enterDiscovery(now)
	return []Effect{
		{Kind: EffectCloseSocket},
		{Kind: EffectDisconnected, Reason: disconnectReasonString(d.Reason)},
	}, nil
}

func disconnectReasonString(r broker.DisconnectReason) string {
	switch r {
	case broker.DisconnectReasonShutdown:
		return "shutdown"
	case broker.DisconnectReasonCapacityExceeded:
		return "capacity_exceeded"
	case broker.DisconnectReasonHardwareFault:
		return "hardware_fault"
	case broker.DisconnectReasonSoftwareFault:
		return "software_fault"
	case broker.DisconnectReasonScopeChanged:
		return "scope_changed"
	default:
		return "unknown"
	}
}

func (c *Connection) enterDiscovery(now time.Time) {
	c.state = StateDiscovery
	c.addrs = nil
	c.addrIdx = 0
	c.setMetricState()
}

// Disconnect tears the connection down from any state (spec.md §4.4:
// "remove_scope/disconnect transitions any state to
// MarkedForDestruction with a drain step before resource freeing").
// The caller must flush any in-flight sends before calling Destroy.
func (c *Connection) Disconnect(reason string, now time.Time) []Effect {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateMarkedForDestruction {
		return nil
	}
	prevState := c.state
	c.state = StateMarkedForDestruction
	c.setMetricState()

	c.endConnectSpan(fmt.Errorf("connection: %s", reason))

	var effects []Effect
	if prevState == StateConnecting || prevState == StateConnected {
		effects = append(effects, Effect{Kind: EffectCloseSocket})
	}
	effects = append(effects, Effect{Kind: EffectDisconnected, Reason: reason})
	return effects
}

// Destroy releases the scope browse reference once the caller has
// finished draining. Safe to call only after Disconnect.
func (c *Connection) Destroy() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.staticAddr == "" {
		c.registry.RemoveScopeRef(c.scope)
	}
}

// BrokerUID and ClientUID return the identities learned from the most
// recent successful connect-reply.
func (c *Connection) BrokerUID() rdm.UID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.brokerUID
}

func (c *Connection) ClientUID() rdm.UID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.clientUID
}

func (c *Connection) setMetricState() {
	c.metr.SetActiveConnections(c.scope, c.state.String(), 1)
}
