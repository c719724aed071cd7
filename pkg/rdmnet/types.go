// Package rdmnet is the public API surface (spec.md §6): a Context
// bootstraps the library, Controllers and Devices each own a set of
// broker scopes, and LLRPManager/LLRPTarget run LLRP discovery
// standalone or alongside a Controller/Device.
package rdmnet

import (
	"github.com/marmos91/rdmnetcore/internal/protocol/acn"
	"github.com/marmos91/rdmnetcore/internal/protocol/broker"
	"github.com/marmos91/rdmnetcore/internal/protocol/rdm"
)

// CID identifies one RDMnet component instance (spec.md §3).
type CID = acn.CID

// UID identifies one RDM responder or controller (spec.md §3).
type UID = rdm.UID

// Scope names an RDMnet scope a Controller or Device can monitor.
type Scope = string

// ClientType distinguishes an RPT client's role within a scope.
type ClientType = broker.ClientType

const (
	ClientTypeController ClientType = broker.ClientTypeRPTController
	ClientTypeDevice     ClientType = broker.ClientTypeRPTDevice
)

// CommandClass is an RDM command/response class (spec.md §3, E1.20).
type CommandClass = rdm.CommandClass

const (
	CommandClassGetCommand = rdm.CommandClassGetCommand
	CommandClassSetCommand = rdm.CommandClassSetCommand
)

// NewCID allocates a fresh component identifier.
func NewCID() CID { return acn.NewCID() }

// ParseCID parses a hyphenated or bare-hex CID string.
func ParseCID(s string) (CID, error) { return acn.ParseCID(s) }

// ParseUID parses a "manuf:device" hex UID string, e.g. "7a70:00000001".
func ParseUID(s string) (UID, error) { return rdm.ParseUID(s) }

// DynamicUIDMapping reports the outcome of one dynamic-UID request
// (spec.md §4.7).
type DynamicUIDMapping = broker.DynamicUIDMapping

// Message is one RDM command, response, or notification (spec.md §3,
// E1.20).
type Message = rdm.Message
