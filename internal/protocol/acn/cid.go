// Package acn implements the ACN (ANSI E1.17) preamble and root-layer PDU
// framing that every RDMnet and LLRP message is wrapped in (spec.md §4.1).
package acn

import (
	"fmt"

	"github.com/google/uuid"
)

// CID is a 128-bit component identifier: every LLRP/RDMnet component has
// exactly one, stable for its lifetime (spec.md §3).
type CID [16]byte

// NewCID generates a random (v4) CID.
func NewCID() CID {
	var c CID
	copy(c[:], uuid.New()[:])
	return c
}

// ParseCID parses a canonical UUID string ("xxxxxxxx-xxxx-...") into a CID.
func ParseCID(s string) (CID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return CID{}, fmt.Errorf("acn: invalid CID %q: %w", s, err)
	}
	var c CID
	copy(c[:], u[:])
	return c, nil
}

// String renders the CID in canonical lowercase-hyphenated UUID form.
func (c CID) String() string {
	return uuid.UUID(c).String()
}

// IsZero reports whether c is the all-zero CID (used as "no CID" sentinel
// in some optional fields; never a valid component identity).
func (c CID) IsZero() bool {
	return c == CID{}
}

// BroadcastCID is the reserved LLRP broadcast destination CID: an LLRP
// Target or Manager accepts a probe/command addressed to it or to this
// value (spec.md §4.5 "LLRP broadcast CID").
var BroadcastCID = CID{
	0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF,
	0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF,
}

// PutCID writes c into buf[0:16].
func PutCID(buf []byte, c CID) error {
	if len(buf) < 16 {
		return fmt.Errorf("acn: buffer too small for CID")
	}
	copy(buf, c[:])
	return nil
}

// GetCID reads a CID from buf[0:16].
func GetCID(buf []byte) (CID, error) {
	if len(buf) < 16 {
		return CID{}, fmt.Errorf("acn: short read for CID")
	}
	var c CID
	copy(c[:], buf[:16])
	return c, nil
}
