package rdmnet

import (
	"strconv"

	"github.com/marmos91/rdmnetcore/internal/handle"
	"github.com/marmos91/rdmnetcore/internal/llrpmgr"
)

// ScopeSummary is a read-only view of one scope monitored by a
// Controller or Device, for operational introspection (SPEC_FULL.md §4
// "Operational introspection"). It carries no method that could drive
// the connection state machine; callers that need to act on a scope
// still go through the owning Controller/Device.
type ScopeSummary struct {
	Owner     string
	Scope     string
	State     string
	BrokerUID string
}

// DiscoveredBrokerSummary is a read-only view of one broker discovered
// via mDNS on a monitored scope.
type DiscoveredBrokerSummary struct {
	Scope    string
	CID      string
	UID      string
	Host     string
	Port     uint16
	Priority uint16
}

// LLRPTargetSummary is a read-only view of one component found by a
// standalone LLRPManager's most recent discovery cycle.
type LLRPTargetSummary struct {
	Manager string
	CID     string
	UID     string
}

// ListScopes returns every scope currently monitored by any Controller
// or Device created from this Context.
func (c *Context) ListScopes() []ScopeSummary {
	var out []ScopeSummary

	for _, inst := range c.hmgr.Snapshot(handle.KindController) {
		ctrl, ok := inst.(*Controller)
		if !ok {
			continue
		}
		owner := ownerLabel("controller", ctrl.h)
		for _, st := range ctrl.Scopes() {
			out = append(out, ScopeSummary{Owner: owner, Scope: st.Scope, State: st.State.String(), BrokerUID: st.BrokerUID.String()})
		}
	}
	for _, inst := range c.hmgr.Snapshot(handle.KindDevice) {
		dev, ok := inst.(*Device)
		if !ok {
			continue
		}
		owner := ownerLabel("device", dev.h)
		for _, st := range dev.Scopes() {
			out = append(out, ScopeSummary{Owner: owner, Scope: st.Scope, State: st.State.String(), BrokerUID: st.BrokerUID.String()})
		}
	}
	return out
}

// ListDiscoveredBrokers returns every broker discovered via mDNS across
// every scope this Context's discovery registry is currently browsing,
// independent of whether a Controller/Device has dialed them yet.
func (c *Context) ListDiscoveredBrokers() []DiscoveredBrokerSummary {
	var out []DiscoveredBrokerSummary

	for _, scope := range c.disco.ScopesMonitored() {
		for _, b := range c.disco.Resolved(scope) {
			out = append(out, DiscoveredBrokerSummary{
				Scope:    scope,
				CID:      b.CID.String(),
				UID:      b.UID.String(),
				Host:     b.Host,
				Port:     b.Port,
				Priority: b.Priority,
			})
		}
	}
	return out
}

// ListLLRPTargets returns every component found by the most recently
// completed discovery cycle of every standalone LLRPManager created
// from this Context. Controllers/Devices running a co-hosted LLRP
// target are not enumerated here: a target has nothing to discover,
// it only answers probes (spec.md §4.6).
func (c *Context) ListLLRPTargets() []LLRPTargetSummary {
	var out []LLRPTargetSummary

	for _, inst := range c.hmgr.Snapshot(handle.KindLLRPManager) {
		lm, ok := inst.(*LLRPManager)
		if !ok {
			continue
		}
		owner := ownerLabel("llrp_manager", lm.h)
		for _, t := range lm.Discovered() {
			out = append(out, targetSummary(owner, t))
		}
	}
	return out
}

func targetSummary(owner string, t llrpmgr.DiscoveredTarget) LLRPTargetSummary {
	return LLRPTargetSummary{Manager: owner, CID: t.CID.String(), UID: t.UID.String()}
}

func ownerLabel(kind string, h handle.Handle) string {
	return kind + ":" + strconv.FormatUint(uint64(h), 10)
}
