package broker

import "fmt"

// ClientList is the shared payload shape of VectorConnectedClientList,
// VectorClientAdd, VectorClientRemove, and VectorClientEntryChange: a
// flat sequence of ClientEntry records.
type ClientList struct {
	Entries []ClientEntry
}

// Marshal encodes l into its wire form.
func (l *ClientList) Marshal() ([]byte, error) {
	buf := make([]byte, len(l.Entries)*clientEntrySize)
	off := 0
	for _, e := range l.Entries {
		if err := putClientEntry(buf[off:off+clientEntrySize], e); err != nil {
			return nil, err
		}
		off += clientEntrySize
	}
	return buf, nil
}

// UnmarshalClientList parses a ClientList payload from buf.
func UnmarshalClientList(buf []byte) (*ClientList, error) {
	if len(buf)%clientEntrySize != 0 {
		return nil, fmt.Errorf("broker: client-list length %d not a multiple of entry size %d", len(buf), clientEntrySize)
	}
	entries := make([]ClientEntry, 0, len(buf)/clientEntrySize)
	for off := 0; off < len(buf); off += clientEntrySize {
		e, err := getClientEntry(buf[off : off+clientEntrySize])
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return &ClientList{Entries: entries}, nil
}
