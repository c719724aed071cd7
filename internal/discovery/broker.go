// Package discovery tracks DiscoveredBroker lifecycle and per-scope
// browse reference counting built on top of internal/mdns (spec.md
// §4.3).
package discovery

import (
	"net"
	"time"

	"github.com/marmos91/rdmnetcore/internal/protocol/acn"
	"github.com/marmos91/rdmnetcore/internal/protocol/rdm"
)

// Broker is a discovered RDMnet broker service instance, created on
// first resolved record and destroyed when its TTL expires, a
// zero-TTL goodbye is received, or discovery is cancelled (spec.md §3
// "Discovered Broker").
type Broker struct {
	Scope           string
	ServiceInstance string
	CID             acn.CID
	UID             rdm.UID
	E133Version     uint16

	Host     string
	Port     uint16
	Priority uint16
	Weight   uint16
	Addrs    []net.IP

	hasSRV bool
	hasTXT bool

	ttl       time.Duration
	expiresAt time.Time
	goodbye   bool
}

// Pending reports whether b has been created (PTR seen) but has not
// yet observed both an SRV+TXT pair and at least one A/AAAA record
// (spec.md §4.3: "pending" until then).
func (b *Broker) Pending() bool {
	return !(b.hasSRV && b.hasTXT && len(b.Addrs) > 0)
}

// Expired reports whether b's TTL has elapsed, or a goodbye record
// marked it for deletion, as of now.
func (b *Broker) Expired(now time.Time) bool {
	return b.goodbye || !b.expiresAt.After(now)
}

// applyTTL records a TTL observed on one of b's records, scheduling its
// expiry deadline. TTL == 0 is RFC 6762's "goodbye" convention: the
// entry is marked for deletion on the next tick rather than aged.
func (b *Broker) applyTTL(ttl time.Duration, now time.Time) {
	if ttl <= 0 {
		b.goodbye = true
		return
	}
	b.ttl = ttl
	b.expiresAt = now.Add(ttl)
}
