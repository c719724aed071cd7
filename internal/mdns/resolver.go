package mdns

import (
	"fmt"
	"net"

	"github.com/marmos91/rdmnetcore/internal/netif"
)

// mDNS well-known multicast groups and port (RFC 6762 §5).
const (
	MulticastGroupIPv4 = "224.0.0.251"
	MulticastGroupIPv6 = "ff02::fb"
	Port               = 5353
)

// ServiceType is the DNS-SD service type RDMnet brokers advertise
// under (spec.md §4.3).
const ServiceType = "_rdmnet._tcp.local"

// ServiceTypeForScope returns the sub-type PTR domain browsed for a
// given monitored scope, e.g. scope "default" yields
// "default._sub._rdmnet._tcp.local" (spec.md §4.3: "scope name appears
// as the PTR sub-domain").
func ServiceTypeForScope(scope string) string {
	return fmt.Sprintf("%s._sub.%s", scope, ServiceType)
}

// Resolver browses and resolves RDMnet broker service instances over
// mDNS. One Resolver owns one IPv4 and one IPv6 multicast socket.
type Resolver struct {
	v4 net.PacketConn
	v6 net.PacketConn
}

// NewResolver opens mDNS multicast sockets on the named interfaces (or
// all usable interfaces, if ifaceNames is empty).
func NewResolver(ifaceNames []string) (*Resolver, error) {
	v4, err := netif.OpenMulticastSocket(MulticastGroupIPv4, Port, ifaceNames)
	if err != nil {
		return nil, fmt.Errorf("mdns: open IPv4 socket: %w", err)
	}
	v6, err := netif.OpenMulticastSocket(MulticastGroupIPv6, Port, ifaceNames)
	if err != nil {
		_ = v4.Close()
		return nil, fmt.Errorf("mdns: open IPv6 socket: %w", err)
	}
	return &Resolver{v4: v4, v6: v6}, nil
}

// Close releases both multicast sockets.
func (r *Resolver) Close() error {
	err4 := r.v4.Close()
	err6 := r.v6.Close()
	if err4 != nil {
		return err4
	}
	return err6
}

// Browse sends a one-shot PTR query for the given scope's RDMnet
// sub-type on both address families (spec.md §4.3).
func (r *Resolver) Browse(queryID uint16, scope string) error {
	query, err := EncodeQuery(queryID, ServiceTypeForScope(scope), TypePTR)
	if err != nil {
		return fmt.Errorf("mdns: encode PTR query: %w", err)
	}

	addr4 := &net.UDPAddr{IP: net.ParseIP(MulticastGroupIPv4), Port: Port}
	if _, err := r.v4.WriteTo(query, addr4); err != nil {
		return fmt.Errorf("mdns: send IPv4 query: %w", err)
	}

	addr6 := &net.UDPAddr{IP: net.ParseIP(MulticastGroupIPv6), Port: Port}
	if _, err := r.v6.WriteTo(query, addr6); err != nil {
		return fmt.Errorf("mdns: send IPv6 query: %w", err)
	}
	return nil
}

// ReadFrom reads and parses one mDNS message from either socket family.
// Callers typically run this in a loop on a dedicated goroutine per
// socket; see internal/discovery for the tick-driven consumer.
func ReadFrom(conn net.PacketConn) (*Message, net.Addr, error) {
	buf := make([]byte, 9000) // jumbo frame headroom, RFC 6762 §17
	n, addr, err := conn.ReadFrom(buf)
	if err != nil {
		return nil, nil, err
	}
	msg, err := ParseMessage(buf[:n])
	if err != nil {
		return nil, addr, err
	}
	return msg, addr, nil
}

// Conns returns the resolver's IPv4 and IPv6 sockets, for callers that
// need to multiplex reads across both (e.g. with a select-driven
// reader goroutine per socket).
func (r *Resolver) Conns() (v4, v6 net.PacketConn) {
	return r.v4, r.v6
}
