// Package rdm implements the E1.20 RDM command/response wire form that
// RDMnet embeds inside RPT and LLRP PDUs, restricted per spec.md §4.1 to
// the subset RDMnet actually carries (bounded parameter data, no
// ACK_TIMER response).
package rdm

import (
	"fmt"

	"github.com/marmos91/rdmnetcore/internal/wire"
)

// UID is a 48-bit RDM identifier: a 16-bit manufacturer ID and a 32-bit
// device ID (spec.md §3).
type UID struct {
	Manufacturer uint16
	Device       uint32
}

// Size is the wire size of a UID.
const Size = 6

// DynamicUIDFlag is the manufacturer-ID high bit that marks a UID as a
// dynamic request or a dynamic-assignment class, rather than static
// (spec.md §3: "dynamic request (device id = 0, manufacturer high bit
// set)").
const DynamicUIDFlag uint16 = 0x8000

// BroadcastUID is the all-ones UID addressing every responder.
var BroadcastUID = UID{Manufacturer: 0xFFFF, Device: 0xFFFFFFFF}

// IsDynamicRequest reports whether u is a dynamic-UID request sentinel:
// manufacturer high bit set, device id zero.
func (u UID) IsDynamicRequest() bool {
	return u.Manufacturer&DynamicUIDFlag != 0 && u.Device == 0
}

// IsStatic reports whether u is a static (manufacturer-assigned) UID.
func (u UID) IsStatic() bool {
	return u.Manufacturer&DynamicUIDFlag == 0
}

// String renders u in "manuf:device" hex form, e.g. "6574:12345678".
func (u UID) String() string {
	return fmt.Sprintf("%04x:%08x", u.Manufacturer, u.Device)
}

// ParseUID parses the "manuf:device" hex form String renders, e.g. for
// a CLI flag or an mDNS TXT record value.
func ParseUID(s string) (UID, error) {
	var manu, dev uint32
	n, err := fmt.Sscanf(s, "%04x:%08x", &manu, &dev)
	if err != nil || n != 2 {
		return UID{}, fmt.Errorf("rdm: malformed UID %q", s)
	}
	return UID{Manufacturer: uint16(manu), Device: dev}, nil
}

// Put writes u to buf[0:6].
func (u UID) Put(buf []byte) error {
	if len(buf) < Size {
		return fmt.Errorf("rdm: buffer too small for UID")
	}
	wire.PutUint16(buf[0:2], u.Manufacturer)
	wire.PutUint32(buf[2:6], u.Device)
	return nil
}

// GetUID reads a UID from buf[0:6].
func GetUID(buf []byte) (UID, error) {
	if len(buf) < Size {
		return UID{}, fmt.Errorf("rdm: buffer too small for UID")
	}
	manuf, _ := wire.GetUint16(buf[0:2])
	dev, _ := wire.GetUint32(buf[2:6])
	return UID{Manufacturer: manuf, Device: dev}, nil
}

// Less reports whether u sorts before other, treating a UID as the
// 48-bit unsigned integer (manufacturer<<32 | device). Used by the LLRP
// Manager's UID-range bisection (spec.md §4.5).
func (u UID) Less(other UID) bool {
	return u.asUint64() < other.asUint64()
}

func (u UID) asUint64() uint64 {
	return uint64(u.Manufacturer)<<32 | uint64(u.Device)
}

// FromUint64 reconstructs a UID from its 48-bit unsigned integer form.
func FromUint64(v uint64) UID {
	return UID{Manufacturer: uint16(v >> 32), Device: uint32(v)}
}

// ToUint64 returns u as a 48-bit unsigned integer.
func (u UID) ToUint64() uint64 { return u.asUint64() }
