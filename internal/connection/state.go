// Package connection implements the broker TCP connection state machine
// every RDMnet client runs per monitored scope (spec.md §4.4).
package connection

import "fmt"

// State is one node of the connection lifecycle.
type State int

const (
	StateInactive State = iota
	StateDiscovery
	StateConnecting
	StateConnected
	StateMarkedForDestruction
)

func (s State) String() string {
	switch s {
	case StateInactive:
		return "inactive"
	case StateDiscovery:
		return "discovery"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateMarkedForDestruction:
		return "marked_for_destruction"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// EffectKind distinguishes what the caller must do in response to an
// Effect: perform I/O, or observe a lifecycle notification.
type EffectKind int

const (
	// EffectDial asks the caller to open a TCP connection to Address.
	EffectDial EffectKind = iota
	// EffectSend asks the caller to write Frame to the active socket.
	EffectSend
	// EffectCloseSocket asks the caller to close the active socket
	// before any further EffectDial for this connection.
	EffectCloseSocket
	// EffectConnected notifies that the connect-reply was OK.
	EffectConnected
	// EffectConnectFailed notifies that a connect attempt was refused
	// or timed out, carrying Reason.
	EffectConnectFailed
	// EffectDisconnected notifies that an established connection was
	// torn down, carrying Reason.
	EffectDisconnected
	// EffectRedirected notifies that the broker redirected the client
	// to Address, preserving the scope.
	EffectRedirected
)

// Effect is one directive or notification produced by a Connection
// state transition. A single call may produce several, e.g. closing a
// stale socket and dialing its replacement.
type Effect struct {
	Kind    EffectKind
	Address string
	Frame   []byte
	Reason  string
}
