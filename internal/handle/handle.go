// Package handle implements the process-wide handle-to-instance map and
// its locking discipline (spec.md §5): one reader/writer lock guards
// handle resolution, lifecycle operations take the write lock, and
// destroy is deferred one tick so any work already in flight against a
// handle completes before the instance is actually dropped.
package handle

import (
	"sync"
)

// Handle is an opaque, process-unique identifier for a controller,
// device, LLRP manager, or LLRP target instance. The zero value is
// never issued by Create and can be used as an "unset" sentinel.
type Handle uint64

// Kind distinguishes the instance a Handle resolves to, since one
// process-wide map (spec.md §5: "the handle-to-instance map", singular)
// holds every kind behind a single lock rather than one map per kind.
type Kind uint8

const (
	KindController Kind = iota
	KindDevice
	KindLLRPManager
	KindLLRPTarget
)

func (k Kind) String() string {
	switch k {
	case KindController:
		return "controller"
	case KindDevice:
		return "device"
	case KindLLRPManager:
		return "llrp_manager"
	case KindLLRPTarget:
		return "llrp_target"
	default:
		return "unknown"
	}
}

type entry struct {
	instance       any
	kind           Kind
	pendingDestroy bool
}

// Manager is the process-wide handle map. The zero value is not usable;
// construct with New.
type Manager struct {
	mu      sync.RWMutex
	entries map[Handle]*entry
	nextID  uint64
}

// New constructs an empty Manager.
func New() *Manager {
	return &Manager{entries: map[Handle]*entry{}}
}

// Create registers instance under a freshly allocated Handle and
// returns it. Takes the write lock.
func (m *Manager) Create(kind Kind, instance any) Handle {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	h := Handle(m.nextID)
	m.entries[h] = &entry{instance: instance, kind: kind}
	return h
}

// Get resolves h to its stored instance and kind under the read lock.
// ok is false if h is unknown or already marked for destruction.
func (m *Manager) Get(h Handle) (instance any, kind Kind, ok bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, found := m.entries[h]
	if !found || e.pendingDestroy {
		return nil, 0, false
	}
	return e.instance, e.kind, true
}

// Destroy marks h for removal and returns immediately (spec.md §5:
// "destroy(handle) returns immediately"). The entry stops resolving via
// Get right away but is only physically dropped from the map, and its
// destroyed callback fired, on the next Sweep. Returns false if h is
// unknown or already pending destruction.
func (m *Manager) Destroy(h Handle) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[h]
	if !ok || e.pendingDestroy {
		return false
	}
	e.pendingDestroy = true
	return true
}

// Sweep physically removes every handle marked for destruction and
// invokes onDestroyed once per removed handle, outside the map lock, so
// the callback can safely call back into the Manager (spec.md §5
// forbids holding a lock across a callback). Intended to run once per
// scheduler tick.
func (m *Manager) Sweep(onDestroyed func(h Handle, kind Kind, instance any)) {
	m.mu.Lock()
	var removed []Handle
	for h, e := range m.entries {
		if e.pendingDestroy {
			removed = append(removed, h)
		}
	}
	reaped := make([]*entry, 0, len(removed))
	for _, h := range removed {
		reaped = append(reaped, m.entries[h])
		delete(m.entries, h)
	}
	m.mu.Unlock()

	if onDestroyed == nil {
		return
	}
	for i, h := range removed {
		onDestroyed(h, reaped[i].kind, reaped[i].instance)
	}
}

// Count returns the number of handles currently resolvable (excluding
// those pending destruction).
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for _, e := range m.entries {
		if !e.pendingDestroy {
			n++
		}
	}
	return n
}

// Snapshot returns the instances currently registered under kind,
// excluding any pending destruction, for read-only introspection
// callers that enumerate live components rather than resolve a single
// known Handle (e.g. pkg/rdmnet/controlapi).
func (m *Manager) Snapshot(kind Kind) []any {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []any
	for _, e := range m.entries {
		if e.pendingDestroy || e.kind != kind {
			continue
		}
		out = append(out, e.instance)
	}
	return out
}

// Resolve resolves h and type-asserts the stored instance to T. Returns
// false if h is unknown, pending destruction, or stores a different
// type.
func Resolve[T any](m *Manager, h Handle) (T, bool) {
	var zero T
	inst, _, ok := m.Get(h)
	if !ok {
		return zero, false
	}
	t, ok := inst.(T)
	if !ok {
		return zero, false
	}
	return t, true
}
