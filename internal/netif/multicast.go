package netif

import (
	"context"
	"fmt"
	"net"

	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"

	rdmnetErrors "github.com/marmos91/rdmnetcore/internal/errors"
)

// MulticastTTL is the hop limit LLRP multicast sends use; LLRP is a
// link-local discovery mechanism and never needs to cross a router.
const MulticastTTL = 1

// OpenMulticastSocket binds a UDP socket to port and joins group on
// every interface named by ifaceNames (or all usable interfaces, if
// ifaceNames is empty). group may be an IPv4 or IPv6 multicast
// address; the returned PacketConn is ready for both send and receive
// (spec.md §4.2: "create sockets bound to LLRP multicast groups").
func OpenMulticastSocket(group string, port int, ifaceNames []string) (net.PacketConn, error) {
	groupIP := net.ParseIP(group)
	if groupIP == nil {
		return nil, rdmnetErrors.New(rdmnetErrors.KindInvalidArgument, fmt.Sprintf("invalid multicast group %q", group))
	}

	ifaces, err := selectInterfaces(ifaceNames)
	if err != nil {
		return nil, err
	}

	if groupIP.To4() != nil {
		return openV4(groupIP, port, ifaces)
	}
	return openV6(groupIP, port, ifaces)
}

func selectInterfaces(names []string) ([]net.Interface, error) {
	all, err := net.Interfaces()
	if err != nil {
		return nil, rdmnetErrors.Wrap(rdmnetErrors.KindInvalidArgument, "enumerate network interfaces", err)
	}

	if len(names) == 0 {
		var out []net.Interface
		for _, iface := range all {
			if usable(iface) {
				out = append(out, iface)
			}
		}
		return out, nil
	}

	want := map[string]bool{}
	for _, n := range names {
		want[n] = true
	}
	var out []net.Interface
	for _, iface := range all {
		if want[iface.Name] {
			out = append(out, iface)
		}
	}
	return out, nil
}

func openV4(group net.IP, port int, ifaces []net.Interface) (net.PacketConn, error) {
	lc := net.ListenConfig{Control: PlatformControl}
	conn, err := lc.ListenPacket(context.Background(), "udp4", fmt.Sprintf("0.0.0.0:%d", port))
	if err != nil {
		return nil, rdmnetErrors.Wrap(rdmnetErrors.KindInvalidArgument, "bind LLRP IPv4 multicast socket", err)
	}

	p := ipv4.NewPacketConn(conn)
	joined := 0
	for i := range ifaces {
		if err := p.JoinGroup(&ifaces[i], &net.UDPAddr{IP: group}); err == nil {
			joined++
		}
	}
	if joined == 0 {
		_ = conn.Close()
		return nil, rdmnetErrors.New(rdmnetErrors.KindInvalidArgument, "joined LLRP multicast group on no interface")
	}
	_ = p.SetMulticastTTL(MulticastTTL)
	_ = p.SetMulticastLoopback(true)
	return conn, nil
}

func openV6(group net.IP, port int, ifaces []net.Interface) (net.PacketConn, error) {
	lc := net.ListenConfig{Control: PlatformControl}
	conn, err := lc.ListenPacket(context.Background(), "udp6", fmt.Sprintf("[::]:%d", port))
	if err != nil {
		return nil, rdmnetErrors.Wrap(rdmnetErrors.KindInvalidArgument, "bind LLRP IPv6 multicast socket", err)
	}

	p := ipv6.NewPacketConn(conn)
	joined := 0
	for i := range ifaces {
		if err := p.JoinGroup(&ifaces[i], &net.UDPAddr{IP: group}); err == nil {
			joined++
		}
	}
	if joined == 0 {
		_ = conn.Close()
		return nil, rdmnetErrors.New(rdmnetErrors.KindInvalidArgument, "joined LLRP multicast group on no interface")
	}
	_ = p.SetMulticastHopLimit(MulticastTTL)
	_ = p.SetMulticastLoopback(true)
	return conn, nil
}
