// Package session implements the client session layer: scope lifecycle,
// the outbound message pump, RDM command/response correlation,
// ACK_OVERFLOW reassembly, dynamic-UID handling, and the co-hosted LLRP
// target every controller/device runs alongside its broker connections
// (spec.md §4.7).
package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/marmos91/rdmnetcore/internal/connection"
	"github.com/marmos91/rdmnetcore/internal/discovery"
	"github.com/marmos91/rdmnetcore/internal/llrptarget"
	"github.com/marmos91/rdmnetcore/internal/logger"
	"github.com/marmos91/rdmnetcore/internal/metrics"
	"github.com/marmos91/rdmnetcore/internal/protocol/acn"
	"github.com/marmos91/rdmnetcore/internal/protocol/broker"
	"github.com/marmos91/rdmnetcore/internal/protocol/llrp"
	"github.com/marmos91/rdmnetcore/internal/protocol/rdm"
	"github.com/marmos91/rdmnetcore/internal/protocol/rpt"
	"github.com/marmos91/rdmnetcore/pkg/config"
)

// Callbacks is the event table the session layer delivers to its owning
// client (spec.md §4.7, §6 "every callback receives a pointer to the
// event data"). A method may be invoked with the Session's instance
// lock held; implementations must not call back into this Session from
// within a callback (spec.md §5 re-entrancy restriction).
type Callbacks interface {
	OnConnected(scope string)
	OnConnectFailed(scope string, reason string)
	OnDisconnected(scope string, reason string)
	OnRDMResponse(scope string, sequenceNumber uint32, msg *rdm.Message)
	OnRDMNotification(scope string, msg *rdm.Message)
	OnDynamicUIDsAssigned(scope string, mappings []broker.DynamicUIDMapping)

	// OnRDMCommand delivers an incoming GET/SET command addressed to
	// this session (spec.md §6 device "send_rdm_response"): a device
	// answers it with SendRDMResponse, echoing sequenceNumber and
	// swapping sourceEndpoint/destEndpoint.
	OnRDMCommand(scope string, sourceEndpoint, destEndpoint uint16, sequenceNumber uint32, msg *rdm.Message)
}

// RDMHandler answers RDM commands this session's co-hosted LLRP target
// receives (the client's own RDM responder logic, e.g. TCP_COMMS_STATUS).
type RDMHandler interface {
	HandleRDMCommand(msg *rdm.Message) (*rdm.Message, error)
}

type pendingCommand struct {
	destUID      rdm.UID
	pid          uint16
	commandClass rdm.CommandClass
	sentAt       time.Time
}

// scopeState is the per-scope slice of session state: the connection
// state machine, sequence-number allocation, pending-command
// correlation table, and in-flight ACK_OVERFLOW chains.
type scopeState struct {
	conn    *connection.Connection
	nextSeq uint32
	pending map[uint32]pendingCommand
	chains  map[reassemblyKey]*reassemblyChain

	tcpCommsStatusOK bool
}

// Session owns one client's scope/connection map, its co-hosted LLRP
// target, and RDM command/response correlation across every scope. It
// performs no socket I/O itself: Tick, HandleFrame, and SendRDMCommand
// all return []connection.Effect describing what the caller must carry
// out, following the same externalization shape internal/connection and
// internal/llrpmgr/internal/llrptarget already use.
type Session struct {
	cid        acn.CID
	uid        rdm.UID
	clientType broker.ClientType
	connCfg    config.ConnectionConfig
	caps       config.ResourceCaps
	registry   *discovery.Registry
	metr       *metrics.Collector
	log        *logger.Logger

	reassemblyTimeout time.Duration

	target *llrptarget.Target

	callbacks Callbacks

	mu     sync.Mutex
	scopes map[string]*scopeState
}

// Options bundles Session's construction-time dependencies.
type Options struct {
	CID               acn.CID
	UID               rdm.UID
	ClientType        broker.ClientType
	ConnectionConfig  config.ConnectionConfig
	Caps              config.ResourceCaps
	Registry          *discovery.Registry
	Metrics           *metrics.Collector
	Logger            *logger.Logger
	Callbacks         Callbacks
	ReassemblyTimeout time.Duration

	// HardwareAddr/ComponentType/LLRPBackoffMax/RDMHandler co-host an
	// LLRP target for this session (spec.md §4.7: "controllers and
	// devices always"). Leave RDMHandler nil to omit the co-hosted
	// target (e.g. an EPT-only client).
	HardwareAddr   [6]byte
	ComponentType  llrp.ComponentType
	LLRPBackoffMax time.Duration
	RDMHandler     RDMHandler
	LLRPSender     llrptarget.Sender
}

// New constructs a Session. The co-hosted LLRP target (spec.md §4.7:
// "controllers and devices always") is created only when both
// opts.RDMHandler and opts.LLRPSender are supplied.
func New(opts Options) *Session {
	s := &Session{
		cid:               opts.CID,
		uid:               opts.UID,
		clientType:        opts.ClientType,
		connCfg:           opts.ConnectionConfig,
		caps:              opts.Caps,
		registry:          opts.Registry,
		metr:              opts.Metrics,
		log:               opts.Logger,
		reassemblyTimeout: opts.ReassemblyTimeout,
		callbacks:         opts.Callbacks,
		scopes:            map[string]*scopeState{},
	}
	if opts.RDMHandler != nil && opts.LLRPSender != nil {
		s.target = llrptarget.New(opts.CID, opts.UID, opts.HardwareAddr, opts.ComponentType, opts.LLRPSender, opts.RDMHandler, opts.LLRPBackoffMax)
	}
	return s
}

// AddScope registers a new monitored scope and activates its connection
// state machine (spec.md §4.4, §4.7 "own scope handles ... bounded per
// configuration").
func (s *Session) AddScope(scopeID string, staticBrokerAddr string, now time.Time) ([]connection.Effect, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.scopes[scopeID]; exists {
		return nil, fmt.Errorf("session: scope %q already registered", scopeID)
	}
	if len(s.scopes) >= s.caps.MaxScopesPerClient {
		return nil, fmt.Errorf("session: scope cap %d reached", s.caps.MaxScopesPerClient)
	}

	identity := connection.Identity{
		CID:         s.cid,
		UID:         s.uid,
		ClientType:  s.clientType,
		E133Version: 1,
	}
	conn := connection.New(scopeID, identity, staticBrokerAddr, s.registry, s.connCfg, s.metr)
	st := &scopeState{
		conn:    conn,
		pending: map[uint32]pendingCommand{},
		chains:  map[reassemblyKey]*reassemblyChain{},
	}
	s.scopes[scopeID] = st

	if s.log != nil {
		s.log.Info("scope added", logger.KeyScope, scopeID)
	}
	effects := conn.Activate(now)
	s.notifyConnectionEffects(scopeID, effects)
	return effects, nil
}

// RemoveScope tears a scope's connection down, draining its pending
// commands before the caller releases the resources (spec.md §4.4
// "drain step before resource freeing").
func (s *Session) RemoveScope(scopeID string, reason string, now time.Time) ([]connection.Effect, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.scopes[scopeID]
	if !ok {
		return nil, fmt.Errorf("session: scope %q not found", scopeID)
	}

	effects := st.conn.Disconnect(reason, now)
	st.conn.Destroy()
	delete(s.scopes, scopeID)
	s.notifyConnectionEffects(scopeID, effects)
	return effects, nil
}

// Tick drives every scope's connection timers and the co-hosted LLRP
// target, then expires any stalled ACK_OVERFLOW reassembly chains
// (spec.md §5 "single dedicated tick thread"). The returned map groups
// connection Effects by scope so the caller can route each Send/Dial to
// the right socket.
func (s *Session) Tick(now time.Time) map[string][]connection.Effect {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := map[string][]connection.Effect{}
	for scopeID, st := range s.scopes {
		if effects := st.conn.Tick(now); len(effects) > 0 {
			out[scopeID] = effects
			s.notifyConnectionEffects(scopeID, effects)
		}
		s.expireChains(st, scopeID, now)
	}

	if s.target != nil {
		if err := s.target.Tick(now); err != nil && s.log != nil {
			s.log.Warn("llrp target tick failed", logger.KeyError, err.Error())
		}
	}
	return out
}

// DialSucceeded/DialFailed forward the transport-layer dial outcome to
// the named scope's connection.
func (s *Session) DialSucceeded(scopeID string, now time.Time) ([]connection.Effect, error) {
	st, err := s.scopeOrErr(scopeID)
	if err != nil {
		return nil, err
	}
	effects, err := st.conn.DialSucceeded(now)
	if err != nil {
		return nil, err
	}
	s.notifyConnectionEffects(scopeID, effects)
	return effects, nil
}

func (s *Session) DialFailed(scopeID string, now time.Time) ([]connection.Effect, error) {
	st, err := s.scopeOrErr(scopeID)
	if err != nil {
		return nil, err
	}
	effects := st.conn.DialFailed(now)
	s.notifyConnectionEffects(scopeID, effects)
	return effects, nil
}

// ScopeStatus is a read-only snapshot of one monitored scope's
// connection state, for introspection callers (e.g. pkg/rdmnet/controlapi)
// that have no business driving the state machine.
type ScopeStatus struct {
	Scope     string
	State     connection.State
	BrokerUID rdm.UID
}

// Scopes returns a snapshot of every scope this session currently
// monitors, in no particular order.
func (s *Session) Scopes() []ScopeStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]ScopeStatus, 0, len(s.scopes))
	for scopeID, st := range s.scopes {
		out = append(out, ScopeStatus{
			Scope:     scopeID,
			State:     st.conn.State(),
			BrokerUID: st.conn.BrokerUID(),
		})
	}
	return out
}

func (s *Session) scopeOrErr(scopeID string) (*scopeState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.scopes[scopeID]
	if !ok {
		return nil, fmt.Errorf("session: scope %q not found", scopeID)
	}
	return st, nil
}

// HandleFrame demultiplexes one root-layer frame received on scopeID's
// TCP connection: Broker-vector frames drive the connection state
// machine, RPT-vector frames carry RDM command/response/notification
// traffic handled by this session's correlation and reassembly logic.
func (s *Session) HandleFrame(scopeID string, frame []byte, now time.Time) ([]connection.Effect, error) {
	root, err := acn.UnmarshalRootLayerPDU(frame)
	if err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}

	s.mu.Lock()
	st, ok := s.scopes[scopeID]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("session: scope %q not found", scopeID)
	}

	switch root.Vector {
	case acn.VectorBroker:
		pdu, err := broker.Unmarshal(root.Payload)
		if err != nil {
			return nil, fmt.Errorf("session: %w", err)
		}
		if pdu.Vector == broker.VectorAssignedDynamicUIDs {
			assigned, err := broker.UnmarshalAssignedDynamicUIDs(pdu.Payload)
			if err != nil {
				return nil, fmt.Errorf("session: %w", err)
			}
			if s.callbacks != nil {
				s.callbacks.OnDynamicUIDsAssigned(scopeID, assigned.Mappings)
			}
			return nil, nil
		}
		effects, err := st.conn.HandleFrame(pdu, now)
		if err == nil {
			s.notifyConnectionEffects(scopeID, effects)
		}
		return effects, err
	case acn.VectorRPT:
		pdu, err := rpt.Unmarshal(root.Payload)
		if err != nil {
			return nil, fmt.Errorf("session: %w", err)
		}
		s.mu.Lock()
		s.handleRPTPDU(scopeID, st, pdu, now)
		s.mu.Unlock()
		return nil, nil
	default:
		return nil, nil
	}
}

// HandleLLRPFrame forwards one LLRP multicast frame to the co-hosted
// target, a no-op if this session did not co-host one.
func (s *Session) HandleLLRPFrame(frame []byte, now time.Time) error {
	if s.target == nil {
		return nil
	}
	return s.target.HandleFrame(frame, now)
}

// notifyConnectionEffects fires the lifecycle callbacks implied by
// effects: every caller that can produce an EffectConnected/
// EffectConnectFailed/EffectDisconnected (AddScope's Activate,
// DialSucceeded/DialFailed, Tick's heartbeat timeout, HandleFrame's
// connect-reply/disconnect handling, RemoveScope's Disconnect) routes
// through here so a scope's lifecycle is reported consistently
// regardless of which path produced it.
func (s *Session) notifyConnectionEffects(scopeID string, effects []connection.Effect) {
	if s.callbacks == nil {
		return
	}
	for _, e := range effects {
		switch e.Kind {
		case connection.EffectConnected:
			s.callbacks.OnConnected(scopeID)
		case connection.EffectConnectFailed:
			s.callbacks.OnConnectFailed(scopeID, e.Reason)
		case connection.EffectDisconnected:
			s.callbacks.OnDisconnected(scopeID, e.Reason)
		}
	}
}

// SendRDMCommand allocates the next sequence number for scopeID,
// records the pending command for response correlation, and returns the
// framed RPT request PDU for the caller to send (spec.md §4.7: "pump
// outbound sends ... sequence-number allocation is monotonic per
// connection").
func (s *Session) SendRDMCommand(scopeID string, destUID rdm.UID, cc rdm.CommandClass, pid uint16, data []byte, now time.Time) (uint32, []byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.scopes[scopeID]
	if !ok {
		return 0, nil, fmt.Errorf("session: scope %q not found", scopeID)
	}
	if len(st.pending) >= s.caps.MaxPendingCommandsPerScope {
		return 0, nil, fmt.Errorf("session: pending-command cap %d reached for scope %q", s.caps.MaxPendingCommandsPerScope, scopeID)
	}

	seq := st.nextSeq
	st.nextSeq++

	msg := &rdm.Message{SourceUID: s.uid, DestUID: destUID, CommandClass: cc, PID: pid, ParameterData: data}
	msgBytes, err := msg.Marshal()
	if err != nil {
		return 0, nil, fmt.Errorf("session: marshal RDM command: %w", err)
	}

	rptPDU := &rpt.PDU{
		Vector:         rpt.VectorRequest,
		SourceUID:      s.uid,
		DestUID:        destUID,
		SequenceNumber: seq,
		Payload:        msgBytes,
	}
	rptBytes, err := rptPDU.Marshal()
	if err != nil {
		return 0, nil, fmt.Errorf("session: marshal RPT PDU: %w", err)
	}

	root := &acn.RootLayerPDU{Vector: acn.VectorRPT, SrcCID: s.cid, Payload: rptBytes}
	frame, err := root.Marshal()
	if err != nil {
		return 0, nil, fmt.Errorf("session: marshal root-layer PDU: %w", err)
	}

	st.pending[seq] = pendingCommand{destUID: destUID, pid: pid, commandClass: cc, sentAt: now}
	s.metr.RecordRDMCommandSent(scopeID, fmt.Sprintf("0x%02x", uint8(cc)))

	return seq, frame, nil
}

// SendRDMResponse frames a response to a command delivered through
// OnRDMCommand: the caller passes back the sourceEndpoint/destEndpoint
// and sequenceNumber OnRDMCommand supplied, swapped, plus the response
// message it constructed (spec.md §6 device "send_rdm_response").
func (s *Session) SendRDMResponse(scopeID string, sourceEndpoint, destEndpoint uint16, sequenceNumber uint32, resp *rdm.Message) ([]byte, error) {
	msgBytes, err := resp.Marshal()
	if err != nil {
		return nil, fmt.Errorf("session: marshal RDM response: %w", err)
	}

	rptPDU := &rpt.PDU{
		Vector:         rpt.VectorNotification,
		SourceUID:      resp.SourceUID,
		DestUID:        resp.DestUID,
		SourceEndpoint: sourceEndpoint,
		DestEndpoint:   destEndpoint,
		SequenceNumber: sequenceNumber,
		Payload:        msgBytes,
	}
	rptBytes, err := rptPDU.Marshal()
	if err != nil {
		return nil, fmt.Errorf("session: marshal RPT PDU: %w", err)
	}

	root := &acn.RootLayerPDU{Vector: acn.VectorRPT, SrcCID: s.cid, Payload: rptBytes}
	return root.Marshal()
}

// RequestDynamicUIDs builds a request-dynamic-uids Broker PDU for the
// given manufacturer-only UIDs (spec.md §4.7: "a controller may request
// UIDs for additional responder IDs").
func (s *Session) RequestDynamicUIDs(scopeID string, requests []rdm.UID) ([]byte, error) {
	pairs := make([]broker.DynamicUIDRequestPair, len(requests))
	for i, u := range requests {
		pairs[i] = broker.DynamicUIDRequestPair{RequestedUID: u}
	}
	reqPDU := &broker.RequestDynamicUIDs{Requests: pairs}
	payload, err := reqPDU.Marshal()
	if err != nil {
		return nil, fmt.Errorf("session: marshal request-dynamic-uids: %w", err)
	}
	pdu := &broker.PDU{Vector: broker.VectorRequestDynamicUIDs, Payload: payload}
	pduBytes, err := pdu.Marshal()
	if err != nil {
		return nil, fmt.Errorf("session: marshal broker PDU: %w", err)
	}
	root := &acn.RootLayerPDU{Vector: acn.VectorBroker, SrcCID: s.cid, Payload: pduBytes}
	return root.Marshal()
}
