// Package wire implements the low-level byte primitives shared by every
// ACN/E1.33/E1.17/E1.20 PDU codec in this module: big-endian integer
// read/write, fixed-length NUL-padded string fields, and the 3-byte
// "flags + length" field that prefixes every PDU in the stack.
//
// This plays the role the teacher repository's internal/protocol/xdr
// package plays for RPC/XDR framing, adapted for ACN's flat, big-endian,
// unpadded PDU layout (no 4-byte alignment, no XDR opaque/string framing).
package wire

import (
	"encoding/binary"
	"fmt"
)

// FlagsLength is the 3-byte "flags + length" field that begins every ACN,
// LLRP, broker, RPT and EPT PDU (E1.17 §5). The top bit of the first byte
// selects the extended-length (20-bit) form; the next bit is reserved.
// RDMnet's root layer always requires the extended form (spec.md §4.1).
const (
	flagsExtendedLength = 0x80
	flagsVectorPresent  = 0x70 // reserved/vector-defined bits: not set by PutFlagsLength, ignored by GetFlagsLength
	maxPDULength        = 1<<20 - 1
)

// PutFlagsLength writes the 3-byte flags+length field. length is the total
// PDU length including this 3-byte field itself, per E1.17 convention.
func PutFlagsLength(buf []byte, length uint32) error {
	if len(buf) < 3 {
		return fmt.Errorf("wire: buffer too small for flags+length")
	}
	if length > maxPDULength {
		return fmt.Errorf("wire: length %d exceeds maximum PDU length %d", length, maxPDULength)
	}
	buf[0] = flagsExtendedLength | byte((length>>16)&0x0F)
	buf[1] = byte((length >> 8) & 0xFF)
	buf[2] = byte(length & 0xFF)
	return nil
}

// GetFlagsLength decodes the 3-byte flags+length field, returning the total
// PDU length it declares. Non-extended-length PDUs (top bit clear) are
// rejected: every layer RDMnet defines requires the extended form.
func GetFlagsLength(buf []byte) (length uint32, err error) {
	if len(buf) < 3 {
		return 0, fmt.Errorf("wire: buffer too small for flags+length")
	}
	if buf[0]&flagsExtendedLength == 0 {
		return 0, fmt.Errorf("wire: non-extended-length PDU form is not supported")
	}
	length = uint32(buf[0]&0x0F)<<16 | uint32(buf[1])<<8 | uint32(buf[2])
	return length, nil
}

// PutUint16 writes a big-endian uint16 at buf[0:2].
func PutUint16(buf []byte, v uint16) { binary.BigEndian.PutUint16(buf, v) }

// PutUint32 writes a big-endian uint32 at buf[0:4].
func PutUint32(buf []byte, v uint32) { binary.BigEndian.PutUint32(buf, v) }

// GetUint16 reads a big-endian uint16 from buf[0:2].
func GetUint16(buf []byte) (uint16, error) {
	if len(buf) < 2 {
		return 0, fmt.Errorf("wire: short read for uint16")
	}
	return binary.BigEndian.Uint16(buf), nil
}

// GetUint32 reads a big-endian uint32 from buf[0:4].
func GetUint32(buf []byte) (uint32, error) {
	if len(buf) < 4 {
		return 0, fmt.Errorf("wire: short read for uint32")
	}
	return binary.BigEndian.Uint32(buf), nil
}

// PutFixedString writes s into buf NUL-padded/truncated to exactly len(buf)
// bytes, always NUL-terminating, per spec.md §4.1 ("the codec always
// NUL-terminates on write"). It is an error if s does not fit within
// len(buf)-1 bytes (room must remain for the terminator).
func PutFixedString(buf []byte, s string) error {
	if len(s) > len(buf)-1 {
		return fmt.Errorf("wire: string %q too long for %d-byte field", s, len(buf))
	}
	n := copy(buf, s)
	for i := n; i < len(buf); i++ {
		buf[i] = 0
	}
	return nil
}

// GetFixedString reads a NUL-terminated string out of a fixed-length field.
// An unterminated buffer (no zero byte present) is malformed per spec.md
// §4.1 and is rejected rather than silently truncated.
func GetFixedString(buf []byte) (string, error) {
	for i, b := range buf {
		if b == 0 {
			return string(buf[:i]), nil
		}
	}
	return "", fmt.Errorf("wire: fixed-length string field is not NUL-terminated")
}

// CheckContained verifies that a nested PDU of declared length childLen,
// read starting at offset within parent, does not exceed the parent's
// bounds. spec.md §4.1: "rejects any PDU whose declared length exceeds
// the enclosing buffer."
func CheckContained(parent []byte, offset int, childLen uint32) error {
	if offset < 0 || uint64(offset)+uint64(childLen) > uint64(len(parent)) {
		return fmt.Errorf("wire: PDU of length %d at offset %d exceeds parent buffer of length %d", childLen, offset, len(parent))
	}
	return nil
}
