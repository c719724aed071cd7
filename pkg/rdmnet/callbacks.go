package rdmnet

import (
	"github.com/marmos91/rdmnetcore/internal/protocol/broker"
	"github.com/marmos91/rdmnetcore/internal/protocol/rdm"
	"github.com/marmos91/rdmnetcore/internal/session"
)

// Callbacks is the event table a Controller or Device delivers scope
// lifecycle and RDM traffic through (spec.md §6). Every method is
// invoked synchronously from the scheduler tick thread, a socket
// reader goroutine, or the goroutine calling AddScope/RemoveScope;
// implementations must not call back into the
// Controller/Device that owns them.
type Callbacks interface {
	// OnConnected fires once scope's broker connection completes.
	OnConnected(scope Scope)
	// OnConnectFailed fires when a connect attempt is refused or times
	// out.
	OnConnectFailed(scope Scope, reason string)
	// OnDisconnected fires when an established connection is torn down.
	OnDisconnected(scope Scope, reason string)
	// OnRDMResponse delivers a response correlated to a command sent
	// with the returned sequenceNumber.
	OnRDMResponse(scope Scope, sequenceNumber uint32, msg *Message)
	// OnRDMNotification delivers an unsolicited RDM message: a
	// broadcast, a NACK synthesized for an abandoned ACK_OVERFLOW chain,
	// or a response that could not be correlated to a pending command.
	OnRDMNotification(scope Scope, msg *Message)
	// OnDynamicUIDsAssigned delivers the broker's reply to
	// Controller.RequestDynamicUIDs.
	OnDynamicUIDsAssigned(scope Scope, mappings []DynamicUIDMapping)

	// OnRDMCommand delivers an incoming GET/SET command addressed to
	// this client (spec.md §6 "send_rdm_response"): answer it with
	// Device.SendRDMResponse, passing sourceEndpoint/destEndpoint and
	// sequenceNumber back unchanged.
	OnRDMCommand(scope Scope, sourceEndpoint, destEndpoint uint16, sequenceNumber uint32, msg *Message)
}

// callbacksAdapter satisfies internal/session.Callbacks by forwarding
// to the public Callbacks interface: the two method sets are already
// identical modulo type aliases, so no field translation is needed.
type callbacksAdapter struct {
	cb Callbacks
}

func (a callbacksAdapter) OnConnected(scope string) { a.cb.OnConnected(scope) }

func (a callbacksAdapter) OnConnectFailed(scope string, reason string) {
	a.cb.OnConnectFailed(scope, reason)
}

func (a callbacksAdapter) OnDisconnected(scope string, reason string) {
	a.cb.OnDisconnected(scope, reason)
}

func (a callbacksAdapter) OnRDMResponse(scope string, sequenceNumber uint32, msg *rdm.Message) {
	a.cb.OnRDMResponse(scope, sequenceNumber, msg)
}

func (a callbacksAdapter) OnRDMNotification(scope string, msg *rdm.Message) {
	a.cb.OnRDMNotification(scope, msg)
}

func (a callbacksAdapter) OnDynamicUIDsAssigned(scope string, mappings []broker.DynamicUIDMapping) {
	a.cb.OnDynamicUIDsAssigned(scope, mappings)
}

func (a callbacksAdapter) OnRDMCommand(scope string, sourceEndpoint, destEndpoint uint16, sequenceNumber uint32, msg *rdm.Message) {
	a.cb.OnRDMCommand(scope, sourceEndpoint, destEndpoint, sequenceNumber, msg)
}

var _ session.Callbacks = callbacksAdapter{}
