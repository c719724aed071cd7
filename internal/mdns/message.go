// Package mdns implements a lightweight DNS-SD/mDNS resolver: enough
// DNS wire-format parsing to browse and resolve RDMnet broker service
// instances, without pulling in a general-purpose DNS library
// (spec.md §4.3).
package mdns

import (
	"encoding/binary"
	"fmt"
)

// Record types this resolver understands (spec.md §4.3: TXT, SRV, A,
// AAAA records, plus PTR for browsing).
const (
	TypeA    uint16 = 1
	TypePTR  uint16 = 12
	TypeTXT  uint16 = 16
	TypeAAAA uint16 = 28
	TypeSRV  uint16 = 33

	ClassIN         uint16 = 0x0001
	ClassCacheFlush uint16 = 0x8000 // high bit of CLASS, per RFC 6762 §10.2
)

// Header is the 12-byte DNS message header (RFC 1035 §4.1.1).
type Header struct {
	ID      uint16
	Flags   uint16
	QDCount uint16
	ANCount uint16
	NSCount uint16
	ARCount uint16
}

// IsResponse reports whether the QR bit is set.
func (h Header) IsResponse() bool { return h.Flags&0x8000 != 0 }

// Question is one entry of the question section.
type Question struct {
	Name  string
	Type  uint16
	Class uint16
}

// ResourceRecord is one answer/authority/additional section entry.
type ResourceRecord struct {
	Name  string
	Type  uint16
	Class uint16
	TTL   uint32
	RData []byte
}

// Message is a full parsed DNS message.
type Message struct {
	Header      Header
	Questions   []Question
	Answers     []ResourceRecord
	Authorities []ResourceRecord
	Additionals []ResourceRecord
}

// ParseMessage parses a complete DNS message (spec.md §4.3: browse and
// resolve responses arrive as ordinary mDNS messages).
func ParseMessage(buf []byte) (*Message, error) {
	if len(buf) < 12 {
		return nil, fmt.Errorf("mdns: message too short for header: %d bytes", len(buf))
	}

	h := Header{
		ID:      binary.BigEndian.Uint16(buf[0:2]),
		Flags:   binary.BigEndian.Uint16(buf[2:4]),
		QDCount: binary.BigEndian.Uint16(buf[4:6]),
		ANCount: binary.BigEndian.Uint16(buf[6:8]),
		NSCount: binary.BigEndian.Uint16(buf[8:10]),
		ARCount: binary.BigEndian.Uint16(buf[10:12]),
	}

	offset := 12
	questions := make([]Question, 0, h.QDCount)
	for i := uint16(0); i < h.QDCount; i++ {
		q, next, err := parseQuestion(buf, offset)
		if err != nil {
			return nil, err
		}
		questions = append(questions, q)
		offset = next
	}

	parseSection := func(count uint16) ([]ResourceRecord, error) {
		records := make([]ResourceRecord, 0, count)
		for i := uint16(0); i < count; i++ {
			rr, next, err := parseRecord(buf, offset)
			if err != nil {
				return nil, err
			}
			records = append(records, rr)
			offset = next
		}
		return records, nil
	}

	answers, err := parseSection(h.ANCount)
	if err != nil {
		return nil, err
	}
	authorities, err := parseSection(h.NSCount)
	if err != nil {
		return nil, err
	}
	additionals, err := parseSection(h.ARCount)
	if err != nil {
		return nil, err
	}

	return &Message{
		Header:      h,
		Questions:   questions,
		Answers:     answers,
		Authorities: authorities,
		Additionals: additionals,
	}, nil
}

func parseQuestion(buf []byte, offset int) (Question, int, error) {
	name, next, err := ParseName(buf, offset)
	if err != nil {
		return Question{}, offset, err
	}
	if next+4 > len(buf) {
		return Question{}, offset, fmt.Errorf("mdns: truncated question at offset %d", next)
	}
	return Question{
		Name:  name,
		Type:  binary.BigEndian.Uint16(buf[next : next+2]),
		Class: binary.BigEndian.Uint16(buf[next+2 : next+4]),
	}, next + 4, nil
}

func parseRecord(buf []byte, offset int) (ResourceRecord, int, error) {
	name, next, err := ParseName(buf, offset)
	if err != nil {
		return ResourceRecord{}, offset, err
	}
	if next+10 > len(buf) {
		return ResourceRecord{}, offset, fmt.Errorf("mdns: truncated record at offset %d", next)
	}

	rtype := binary.BigEndian.Uint16(buf[next : next+2])
	class := binary.BigEndian.Uint16(buf[next+2 : next+4])
	ttl := binary.BigEndian.Uint32(buf[next+4 : next+8])
	rdlen := binary.BigEndian.Uint16(buf[next+8 : next+10])
	next += 10

	if next+int(rdlen) > len(buf) {
		return ResourceRecord{}, offset, fmt.Errorf("mdns: truncated RDATA at offset %d: want %d bytes, have %d", next, rdlen, len(buf)-next)
	}
	rdata := make([]byte, rdlen)
	copy(rdata, buf[next:next+int(rdlen)])

	return ResourceRecord{
		Name:  name,
		Type:  rtype,
		Class: class & 0x7FFF,
		TTL:   ttl,
		RData: rdata,
	}, next + int(rdlen), nil
}

// EncodeQuery builds a one-shot query message of type qtype for name (spec.md
// §4.3 "browses for DNS-SD service type ... within the sub-type for
// each monitored scope").
func EncodeQuery(id uint16, name string, qtype uint16) ([]byte, error) {
	encodedName, err := EncodeName(name)
	if err != nil {
		return nil, err
	}

	buf := make([]byte, 12, 12+len(encodedName)+4)
	binary.BigEndian.PutUint16(buf[0:2], id)
	// Flags left zero: QR=0 (query), OPCODE=0, everything else zero per RFC 6762 §18.
	binary.BigEndian.PutUint16(buf[4:6], 1) // QDCount = 1

	buf = append(buf, encodedName...)
	typeClass := make([]byte, 4)
	binary.BigEndian.PutUint16(typeClass[0:2], qtype)
	binary.BigEndian.PutUint16(typeClass[2:4], ClassIN)
	buf = append(buf, typeClass...)

	return buf, nil
}
