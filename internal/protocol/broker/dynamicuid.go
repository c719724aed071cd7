package broker

import (
	"fmt"

	"github.com/marmos91/rdmnetcore/internal/protocol/rdm"
	"github.com/marmos91/rdmnetcore/internal/wire"
)

// DynamicUIDRequestPair is one entry of a RequestDynamicUIDs payload: a
// manufacturer-only UID (device id zero) naming the manufacturer block
// to assign a dynamic UID from (spec.md §4.7 "a controller may request
// UIDs for additional responder IDs").
type DynamicUIDRequestPair struct {
	RequestedUID rdm.UID
}

// RequestDynamicUIDs is the VectorRequestDynamicUIDs payload.
type RequestDynamicUIDs struct {
	Requests []DynamicUIDRequestPair
}

// Marshal encodes r into its wire form.
func (r *RequestDynamicUIDs) Marshal() ([]byte, error) {
	buf := make([]byte, len(r.Requests)*rdm.Size)
	off := 0
	for _, req := range r.Requests {
		if err := req.RequestedUID.Put(buf[off : off+rdm.Size]); err != nil {
			return nil, err
		}
		off += rdm.Size
	}
	return buf, nil
}

// UnmarshalRequestDynamicUIDs parses a RequestDynamicUIDs payload from buf.
func UnmarshalRequestDynamicUIDs(buf []byte) (*RequestDynamicUIDs, error) {
	if len(buf)%rdm.Size != 0 {
		return nil, fmt.Errorf("broker: request-dynamic-uids length %d not a multiple of %d", len(buf), rdm.Size)
	}
	reqs := make([]DynamicUIDRequestPair, 0, len(buf)/rdm.Size)
	for off := 0; off < len(buf); off += rdm.Size {
		u, err := rdm.GetUID(buf[off : off+rdm.Size])
		if err != nil {
			return nil, err
		}
		reqs = append(reqs, DynamicUIDRequestPair{RequestedUID: u})
	}
	return &RequestDynamicUIDs{Requests: reqs}, nil
}

// DynamicUIDMappingStatus is the per-mapping result of a dynamic UID
// assignment.
type DynamicUIDMappingStatus uint16

const (
	DynamicUIDMappingStatusOK                    DynamicUIDMappingStatus = 0x0000
	DynamicUIDMappingStatusCapacityExhausted     DynamicUIDMappingStatus = 0x0001
	DynamicUIDMappingStatusInvalidRequest        DynamicUIDMappingStatus = 0x0002
)

// DynamicUIDMapping is one entry of an AssignedDynamicUIDs payload.
type DynamicUIDMapping struct {
	RequestedUID rdm.UID
	AssignedUID  rdm.UID
	Status       DynamicUIDMappingStatus
}

const dynamicUIDMappingSize = rdm.Size + rdm.Size + 2

// AssignedDynamicUIDs is the VectorAssignedDynamicUIDs payload. A
// request spanning multiple PDUs sets MoreComing on every PDU but the
// last, per spec.md §4.7 ("more_coming flag signals continuation").
type AssignedDynamicUIDs struct {
	MoreComing bool
	Mappings   []DynamicUIDMapping
}

// Marshal encodes a into its wire form.
func (a *AssignedDynamicUIDs) Marshal() ([]byte, error) {
	buf := make([]byte, 1+len(a.Mappings)*dynamicUIDMappingSize)
	if a.MoreComing {
		buf[0] = 1
	}
	off := 1
	for _, m := range a.Mappings {
		if err := m.RequestedUID.Put(buf[off : off+rdm.Size]); err != nil {
			return nil, err
		}
		if err := m.AssignedUID.Put(buf[off+rdm.Size : off+2*rdm.Size]); err != nil {
			return nil, err
		}
		wire.PutUint16(buf[off+2*rdm.Size:off+dynamicUIDMappingSize], uint16(m.Status))
		off += dynamicUIDMappingSize
	}
	return buf, nil
}

// UnmarshalAssignedDynamicUIDs parses an AssignedDynamicUIDs payload from buf.
func UnmarshalAssignedDynamicUIDs(buf []byte) (*AssignedDynamicUIDs, error) {
	if len(buf) < 1 {
		return nil, fmt.Errorf("broker: buffer too short for assigned-dynamic-uids")
	}
	remaining := buf[1:]
	if len(remaining)%dynamicUIDMappingSize != 0 {
		return nil, fmt.Errorf("broker: assigned-dynamic-uids length %d not a multiple of %d", len(remaining), dynamicUIDMappingSize)
	}
	mappings := make([]DynamicUIDMapping, 0, len(remaining)/dynamicUIDMappingSize)
	for off := 0; off < len(remaining); off += dynamicUIDMappingSize {
		reqUID, err := rdm.GetUID(remaining[off : off+rdm.Size])
		if err != nil {
			return nil, err
		}
		assignedUID, err := rdm.GetUID(remaining[off+rdm.Size : off+2*rdm.Size])
		if err != nil {
			return nil, err
		}
		status, _ := wire.GetUint16(remaining[off+2*rdm.Size : off+dynamicUIDMappingSize])
		mappings = append(mappings, DynamicUIDMapping{
			RequestedUID: reqUID,
			AssignedUID:  assignedUID,
			Status:       DynamicUIDMappingStatus(status),
		})
	}
	return &AssignedDynamicUIDs{MoreComing: buf[0] != 0, Mappings: mappings}, nil
}

// FetchDynamicUIDList is the VectorFetchDynamicUIDList payload: a list
// of previously-assigned dynamic UIDs whose manufacturer-ID mapping the
// caller wants refreshed.
type FetchDynamicUIDList struct {
	UIDs []rdm.UID
}

// Marshal encodes f into its wire form.
func (f *FetchDynamicUIDList) Marshal() ([]byte, error) {
	buf := make([]byte, len(f.UIDs)*rdm.Size)
	off := 0
	for _, u := range f.UIDs {
		if err := u.Put(buf[off : off+rdm.Size]); err != nil {
			return nil, err
		}
		off += rdm.Size
	}
	return buf, nil
}

// UnmarshalFetchDynamicUIDList parses a FetchDynamicUIDList payload from buf.
func UnmarshalFetchDynamicUIDList(buf []byte) (*FetchDynamicUIDList, error) {
	if len(buf)%rdm.Size != 0 {
		return nil, fmt.Errorf("broker: fetch-dynamic-uid-list length %d not a multiple of %d", len(buf), rdm.Size)
	}
	uids := make([]rdm.UID, 0, len(buf)/rdm.Size)
	for off := 0; off < len(buf); off += rdm.Size {
		u, err := rdm.GetUID(buf[off : off+rdm.Size])
		if err != nil {
			return nil, err
		}
		uids = append(uids, u)
	}
	return &FetchDynamicUIDList{UIDs: uids}, nil
}
