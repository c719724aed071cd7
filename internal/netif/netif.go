// Package netif enumerates system network interfaces and derives the
// values RDMnet components need from them: the stable identifier used
// to scope a discovery/LLRP socket to one interface, and the
// numerically-lowest MAC address used to seed generated component UIDs
// (spec.md §4.2).
package netif

import (
	"net"
	"sort"

	rdmnetErrors "github.com/marmos91/rdmnetcore/internal/errors"
)

// IPType distinguishes the address family a NetintID was enumerated
// under; a dual-stack interface produces two distinct IDs.
type IPType int

const (
	IPTypeV4 IPType = 4
	IPTypeV6 IPType = 6
)

// ID identifies one (ip-type, interface-index) pair, the unit spec.md
// §4.2 enumerates interfaces by.
type ID struct {
	Type  IPType
	Index int
}

// Info is the resolved detail behind an ID.
type Info struct {
	ID           ID
	Name         string
	HardwareAddr net.HardwareAddr
	Addrs        []net.IP
}

// skipPrefixes lists interface name prefixes that should never be picked as
// an LLRP/discovery interface: VPN tunnels and container bridges, which
// are UP+MULTICAST but never carry real RDMnet traffic.
var skipPrefixes = []string{"utun", "tun", "ppp", "wg", "tailscale", "wireguard", "veth", "br-", "docker"}

func shouldSkip(name string) bool {
	for _, p := range skipPrefixes {
		if len(name) >= len(p) && name[:len(p)] == p {
			return true
		}
	}
	return false
}

// usable reports whether iface is a candidate RDMnet/LLRP interface:
// up, multicast-capable, not loopback, not a VPN/container interface.
func usable(iface net.Interface) bool {
	if iface.Flags&net.FlagUp == 0 {
		return false
	}
	if iface.Flags&net.FlagMulticast == 0 {
		return false
	}
	if iface.Flags&net.FlagLoopback != 0 {
		return false
	}
	return !shouldSkip(iface.Name)
}

// Enumerate lists the system's usable interfaces as (ip-type, index)
// IDs, one per address family the interface actually carries an
// address for (spec.md §4.2 `netints()`).
func Enumerate() ([]Info, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, rdmnetErrors.Wrap(rdmnetErrors.KindInvalidArgument, "enumerate network interfaces", err)
	}

	var out []Info
	for _, iface := range ifaces {
		if !usable(iface) {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}

		var v4, v6 []net.IP
		for _, a := range addrs {
			ipnet, ok := a.(*net.IPNet)
			if !ok {
				continue
			}
			if ip4 := ipnet.IP.To4(); ip4 != nil {
				v4 = append(v4, ip4)
			} else {
				v6 = append(v6, ipnet.IP)
			}
		}

		if len(v4) > 0 {
			out = append(out, Info{
				ID:           ID{Type: IPTypeV4, Index: iface.Index},
				Name:         iface.Name,
				HardwareAddr: iface.HardwareAddr,
				Addrs:        v4,
			})
		}
		if len(v6) > 0 {
			out = append(out, Info{
				ID:           ID{Type: IPTypeV6, Index: iface.Index},
				Name:         iface.Name,
				HardwareAddr: iface.HardwareAddr,
				Addrs:        v6,
			})
		}
	}
	return out, nil
}

// IsValid reports whether id still names an enumerable, usable
// interface (spec.md §4.2 `is_valid(NetintId) -> bool`).
func IsValid(id ID) bool {
	infos, err := Enumerate()
	if err != nil {
		return false
	}
	for _, info := range infos {
		if info.ID == id {
			return true
		}
	}
	return false
}

// LowestMAC returns the numerically-lowest non-zero MAC address among
// usable interfaces, used as the default seed for generated component
// UIDs (spec.md §4.2 `lowest_mac() -> MacAddr`).
func LowestMAC() (net.HardwareAddr, error) {
	infos, err := Enumerate()
	if err != nil {
		return nil, err
	}

	seen := map[string]net.HardwareAddr{}
	for _, info := range infos {
		if len(info.HardwareAddr) == 0 || isZeroMAC(info.HardwareAddr) {
			continue
		}
		seen[info.HardwareAddr.String()] = info.HardwareAddr
	}
	if len(seen) == 0 {
		return nil, rdmnetErrors.New(rdmnetErrors.KindNotFound, "no usable interface carries a non-zero MAC address")
	}

	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return seen[keys[0]], nil
}

func isZeroMAC(mac net.HardwareAddr) bool {
	for _, b := range mac {
		if b != 0 {
			return false
		}
	}
	return true
}
