package discovery

import (
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/marmos91/rdmnetcore/internal/mdns"
	"github.com/marmos91/rdmnetcore/internal/protocol/acn"
	"github.com/marmos91/rdmnetcore/internal/protocol/rdm"
)

// scopeEntry holds the browse reference count and discovered brokers
// for one monitored scope.
type scopeEntry struct {
	refs    int
	brokers map[string]*Broker // keyed by service-instance name
}

// Registry tracks discovered brokers across all monitored scopes and
// reference-counts browse requests, stopping the browse once the last
// reference is removed (spec.md §4.3: "Monitored scopes are
// reference-counted by the session layer; unregistering the last
// reference stops the browse").
type Registry struct {
	mu     sync.Mutex
	scopes map[string]*scopeEntry
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{scopes: map[string]*scopeEntry{}}
}

// AddScopeRef increments scope's reference count, starting a browse
// (the caller is responsible for actually sending the PTR query via
// internal/mdns) if this is the first reference.
func (r *Registry) AddScopeRef(scope string) (firstRef bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.scopes[scope]
	if !ok {
		e = &scopeEntry{brokers: map[string]*Broker{}}
		r.scopes[scope] = e
	}
	e.refs++
	return e.refs == 1
}

// RemoveScopeRef decrements scope's reference count, returning true if
// this was the last reference (the caller should stop the browse and
// may discard the scope's discovered brokers).
func (r *Registry) RemoveScopeRef(scope string) (lastRef bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.scopes[scope]
	if !ok || e.refs == 0 {
		return true
	}
	e.refs--
	if e.refs == 0 {
		delete(r.scopes, scope)
		return true
	}
	return false
}

// RefCount reports the current browse reference count for scope.
func (r *Registry) RefCount(scope string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.scopes[scope]; ok {
		return e.refs
	}
	return 0
}

// ScopesMonitored returns the names of every scope with at least one
// active browse reference, for read-only introspection callers that
// need to enumerate scopes rather than query one by name (e.g.
// pkg/rdmnet/controlapi's ListDiscoveredBrokers).
func (r *Registry) ScopesMonitored() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, 0, len(r.scopes))
	for scope := range r.scopes {
		out = append(out, scope)
	}
	return out
}

// Resolved returns the non-pending discovered brokers for scope.
func (r *Registry) Resolved(scope string) []*Broker {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.scopes[scope]
	if !ok {
		return nil
	}
	var out []*Broker
	for _, b := range e.brokers {
		if !b.Pending() && !b.goodbye {
			out = append(out, b)
		}
	}
	return out
}

// HandleMessage applies an mDNS response's PTR/SRV/TXT/A/AAAA records
// to scope's discovered-broker set (spec.md §4.3).
func (r *Registry) HandleMessage(scope string, msg *mdns.Message, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.scopes[scope]
	if !ok {
		return
	}

	all := append(append([]mdns.ResourceRecord{}, msg.Answers...), msg.Additionals...)

	expectedPTR := mdns.ServiceTypeForScope(scope)
	for _, rr := range all {
		switch rr.Type {
		case mdns.TypePTR:
			if !mdns.EqualNames(rr.Name, expectedPTR) {
				continue
			}
			// RData points into the original message; re-derive the
			// instance name via the message bytes is the caller's job
			// for exact compression handling, but ParsePTR on RData
			// alone resolves any self-contained name.
			instance, err := mdns.ParsePTR(rr.RData, 0)
			if err != nil || instance == "" {
				continue
			}
			b, isNew := e.brokerFor(instance)
			b.Scope = scope
			b.applyTTL(time.Duration(rr.TTL)*time.Second, now)
			_ = isNew

		case mdns.TypeSRV:
			b, ok := e.brokers[rr.Name]
			if !ok {
				b, _ = e.brokerFor(rr.Name)
				b.Scope = scope
			}
			srv, err := mdns.ParseSRV(rr.RData, 0, len(rr.RData))
			if err != nil {
				continue
			}
			b.Host = srv.Target
			b.Port = srv.Port
			b.Priority = srv.Priority
			b.Weight = srv.Weight
			b.hasSRV = true
			b.applyTTL(time.Duration(rr.TTL)*time.Second, now)

		case mdns.TypeTXT:
			b, ok := e.brokers[rr.Name]
			if !ok {
				b, _ = e.brokerFor(rr.Name)
				b.Scope = scope
			}
			kv, err := mdns.ParseTXT(rr.RData)
			if err != nil {
				continue
			}
			applyTXT(b, kv)
			b.hasTXT = true
			b.applyTTL(time.Duration(rr.TTL)*time.Second, now)

		case mdns.TypeA:
			ip, err := mdns.ParseA(rr.RData)
			if err != nil {
				continue
			}
			e.appendAddrForHost(rr.Name, ip, rr.TTL, now)

		case mdns.TypeAAAA:
			ip, err := mdns.ParseAAAA(rr.RData)
			if err != nil {
				continue
			}
			e.appendAddrForHost(rr.Name, ip, rr.TTL, now)
		}
	}
}

func (e *scopeEntry) brokerFor(instance string) (*Broker, bool) {
	if b, ok := e.brokers[instance]; ok {
		return b, false
	}
	b := &Broker{ServiceInstance: instance}
	e.brokers[instance] = b
	return b, true
}

func (e *scopeEntry) appendAddrForHost(host string, ip net.IP, ttl uint32, now time.Time) {
	for _, b := range e.brokers {
		if b.Host == "" || !mdns.EqualNames(b.Host, host) {
			continue
		}
		if !containsIP(b.Addrs, ip) {
			b.Addrs = append(b.Addrs, ip)
		}
		b.applyTTL(time.Duration(ttl)*time.Second, now)
	}
}

func containsIP(addrs []net.IP, ip net.IP) bool {
	for _, a := range addrs {
		if a.Equal(ip) {
			return true
		}
	}
	return false
}

func applyTXT(b *Broker, kv map[string]string) {
	if cidStr, ok := kv["CID"]; ok {
		if cid, err := acn.ParseCID(cidStr); err == nil {
			b.CID = cid
		}
	}
	if uidStr, ok := kv["UID"]; ok {
		if uid, err := parseUID(uidStr); err == nil {
			b.UID = uid
		}
	}
	if versStr, ok := kv["E133Vers"]; ok {
		if v, err := strconv.ParseUint(versStr, 10, 16); err == nil {
			b.E133Version = uint16(v)
		}
	}
}

func parseUID(s string) (rdm.UID, error) {
	return rdm.ParseUID(s)
}
