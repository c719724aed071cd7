// Package llrpmgr implements the LLRP Manager discovery engine: the
// UID-range-bisection search that finds every RDMnet component on a
// network segment without a central directory (spec.md §4.5).
package llrpmgr

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/marmos91/rdmnetcore/internal/protocol/acn"
	"github.com/marmos91/rdmnetcore/internal/protocol/llrp"
	"github.com/marmos91/rdmnetcore/internal/protocol/rdm"
	"github.com/marmos91/rdmnetcore/internal/telemetry"
)

// maxUID is the top of the full 48-bit RDM UID space.
var maxUID = rdm.UID{Manufacturer: 0xFFFF, Device: 0xFFFFFFFF}

// uidRange is a closed interval [Lo, Hi] of the 48-bit UID space
// searched by one round of probe-requests.
type uidRange struct {
	Lo, Hi rdm.UID
}

func (r uidRange) isFullSpace() bool {
	return r.Lo == (rdm.UID{}) && r.Hi == maxUID
}

func (r uidRange) isLeaf() bool {
	return r.Lo == r.Hi
}

// uid64 packs a UID into a single uint64 for arithmetic (bisection,
// ordering); the 48-bit space fits comfortably.
func uid64(u rdm.UID) uint64 {
	return uint64(u.Manufacturer)<<32 | uint64(u.Device)
}

func uidFrom64(v uint64) rdm.UID {
	return rdm.UID{Manufacturer: uint16(v >> 32), Device: uint32(v)}
}

// DiscoveredTarget is one component found by a bisection search
// (spec.md §4.5: "target_discovered(uid, cid, hw_addr, component_type)").
type DiscoveredTarget struct {
	UID           rdm.UID
	CID           acn.CID
	HardwareAddr  [6]byte
	ComponentType llrp.ComponentType
}

// Sender transmits one already-framed LLRP packet (root-layer PDU
// wrapping an LLRP PDU) on the LLRP request multicast group. The caller
// owns the actual socket (internal/netif).
type Sender interface {
	Send(frame []byte) error
}

// Metrics is the subset of internal/metrics.Collector the Manager
// drives; satisfied by a nil-safe no-op collector when metrics are
// disabled.
type Metrics interface {
	RecordLLRPProbeSent(iface string)
	RecordLLRPTargetsFound(iface string, n int)
	ObserveLLRPDiscoveryCycle(d time.Duration)
}

// Config holds the Manager's timing constants, normally sourced from
// pkg/config.LLRPConfig.
type Config struct {
	ProbeTimeout        time.Duration
	CleanProbesToFinish int
	KnownUIDSize        int
}

// Manager runs one UID-range-bisection discovery cycle at a time. It is
// driven by Tick on the single-tick thread (spec.md §5); HandleFrame may
// be called from the socket-reader goroutine but only mutates state
// under mu.
type Manager struct {
	cid   acn.CID
	uid   rdm.UID
	iface string
	send  Sender
	cfg   Config
	metr  Metrics

	OnTargetDiscovered  func(DiscoveredTarget)
	OnDiscoveryFinished func()

	mu          sync.Mutex
	running     bool
	filter      uint16
	cur         uidRange
	stack       []uidRange
	known       map[rdm.UID]struct{}
	discovered  map[rdm.UID]DiscoveredTarget
	cleanCount  int
	sawReply    bool
	deadline    time.Time
	replies     int
	nextTx      uint32
	started     time.Time

	// cycleCtx/cycleSpan cover one full discovery cycle, from Start to
	// finish. nil when no cycle is running.
	cycleCtx  context.Context
	cycleSpan trace.Span
}

// New constructs a Manager. cid and uid are the Manager's own component
// identity, used as the accept-filter for probe-replies and as the
// source UID on targeted RDM commands; iface labels metrics.
func New(cid acn.CID, uid rdm.UID, iface string, send Sender, cfg Config, metr Metrics) *Manager {
	if metr == nil {
		metr = noopMetrics{}
	}
	return &Manager{
		cid:   cid,
		uid:   uid,
		iface: iface,
		send:  send,
		cfg:   cfg,
		metr:  metr,
	}
}

type noopMetrics struct{}

func (noopMetrics) RecordLLRPProbeSent(string)            {}
func (noopMetrics) RecordLLRPTargetsFound(string, int)    {}
func (noopMetrics) ObserveLLRPDiscoveryCycle(time.Duration) {}

// Discovered returns a snapshot of every target found so far this
// cycle.
func (m *Manager) Discovered() []DiscoveredTarget {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]DiscoveredTarget, 0, len(m.discovered))
	for _, t := range m.discovered {
		out = append(out, t)
	}
	return out
}

// Running reports whether a discovery cycle is in progress.
func (m *Manager) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// Start begins a fresh discovery cycle over the full UID space
// (spec.md §4.5: "On start(filter): set [lo, hi] to the full space, c =
// 0, K = ∅, emit the first probe-request"). filter carries the
// client-TCP-connection-inactive / brokers-only bits targets use to
// self-exclude.
func (m *Manager) Start(filter uint16, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.running = true
	m.filter = filter
	m.cur = uidRange{Lo: rdm.UID{}, Hi: maxUID}
	m.stack = nil
	m.known = map[rdm.UID]struct{}{}
	m.discovered = map[rdm.UID]DiscoveredTarget{}
	m.cleanCount = 0
	m.sawReply = false
	m.started = now
	m.cycleCtx, m.cycleSpan = telemetry.StartLLRPSpan(context.Background(), telemetry.SpanLLRPDiscovery, m.cid.String())

	if err := m.sendProbe(now); err != nil {
		telemetry.RecordError(m.cycleCtx, err)
		return err
	}
	return nil
}

// Stop clears the discovered-target tree and resets state, leaving the
// multicast socket joined (spec.md §4.5: "stop(): clears the target
// tree, resets state, and leaves the socket joined").
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.running = false
	m.endCycleSpan()
	m.stack = nil
	m.known = nil
	m.discovered = nil
}

// endCycleSpan closes the in-flight discovery-cycle span, if any. Caller
// holds mu.
func (m *Manager) endCycleSpan() {
	if m.cycleSpan == nil {
		return
	}
	m.cycleSpan.SetAttributes(telemetry.LLRPTargetsFound(len(m.discovered)))
	m.cycleSpan.End()
	m.cycleSpan = nil
	m.cycleCtx = nil
}

// Tick advances the discovery state machine; call it once per
// scheduler tick. It is a no-op until the current probe window's
// deadline has elapsed.
func (m *Manager) Tick(now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running || now.Before(m.deadline) {
		return nil
	}
	return m.handleWindowExpiry(now)
}

// HandleFrame processes one received root-layer frame, extracting a
// probe-reply addressed to this Manager (spec.md §4.5: "accepts replies
// whose dest CID matches manager CID or LLRP broadcast CID").
func (m *Manager) HandleFrame(frame []byte, now time.Time) error {
	root, err := acn.UnmarshalRootLayerPDU(frame)
	if err != nil {
		return fmt.Errorf("llrpmgr: %w", err)
	}
	if root.Vector != acn.VectorLLRP {
		return nil
	}
	pdu, err := llrp.Unmarshal(root.Payload)
	if err != nil {
		return fmt.Errorf("llrpmgr: %w", err)
	}
	if pdu.DestCID != m.cid && pdu.DestCID != acn.BroadcastCID {
		return nil
	}
	if pdu.Vector != llrp.VectorProbeReply {
		return nil
	}
	reply, err := llrp.UnmarshalProbeReply(pdu.Payload)
	if err != nil {
		return fmt.Errorf("llrpmgr: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return nil
	}
	m.replies++
	m.sawReply = true
	if _, already := m.discovered[reply.UID]; already {
		return nil
	}
	t := DiscoveredTarget{
		UID:           reply.UID,
		CID:           root.SrcCID,
		HardwareAddr:  reply.HardwareAddr,
		ComponentType: reply.ComponentType,
	}
	m.discovered[reply.UID] = t
	m.known[reply.UID] = struct{}{}
	m.metr.RecordLLRPTargetsFound(m.iface, 1)

	parent := m.cycleCtx
	if parent == nil {
		parent = context.Background()
	}
	_, span := telemetry.StartLLRPSpan(parent, telemetry.SpanLLRPReply, root.SrcCID.String(), telemetry.UID(reply.UID.String()))
	span.End()

	if m.OnTargetDiscovered != nil {
		m.OnTargetDiscovered(t)
	}
	return nil
}

// handleWindowExpiry applies spec.md §4.5's per-window state
// transition. Caller holds mu.
func (m *Manager) handleWindowExpiry(now time.Time) error {
	if m.replies == 0 {
		m.cleanCount++
	} else {
		m.cleanCount = 0
	}
	m.replies = 0

	if m.cleanCount < m.cfg.CleanProbesToFinish {
		return m.sendProbe(now)
	}

	// cleanCount has reached the threshold: this range is clean. A
	// range that never yielded a single reply across its whole run of
	// retransmissions is fully explored: the full space finishes
	// discovery outright, any sub-range just gets popped. A range that
	// did yield replies at some point along the way is narrowed
	// further rather than trusted as exhaustively searched (spec.md
	// §4.5: "the range yielded replies at some point; bisect it").
	if m.cur.isFullSpace() && !m.sawReply && len(m.stack) == 0 {
		m.finish(now)
		return nil
	}
	if m.cur.isLeaf() || !m.sawReply {
		return m.popOrFinish(now)
	}

	lo, hi := uid64(m.cur.Lo), uid64(m.cur.Hi)
	mid := lo + (hi-lo)/2
	if mid < hi {
		m.stack = append(m.stack, uidRange{Lo: uidFrom64(mid + 1), Hi: m.cur.Hi})
	}
	m.cur = uidRange{Lo: m.cur.Lo, Hi: uidFrom64(mid)}
	m.cleanCount = 0
	m.sawReply = false
	return m.sendProbe(now)
}

// popOrFinish pops the next pending sub-range off the stack, or
// declares discovery finished if none remain (spec.md §4.5: "on
// finishing a sub-range cleanly, pop the next... discovery ends when
// stack empty and c == 3 at top level").
func (m *Manager) popOrFinish(now time.Time) error {
	if len(m.stack) == 0 {
		m.finish(now)
		return nil
	}
	m.cur = m.stack[len(m.stack)-1]
	m.stack = m.stack[:len(m.stack)-1]
	m.cleanCount = 0
	m.sawReply = false
	return m.sendProbe(now)
}

func (m *Manager) finish(now time.Time) {
	m.running = false
	m.metr.ObserveLLRPDiscoveryCycle(now.Sub(m.started))
	m.endCycleSpan()
	if m.OnDiscoveryFinished != nil {
		m.OnDiscoveryFinished()
	}
}

// sendProbe transmits one probe-request window for m.cur, fragmenting
// the Known-UID list across multiple PDUs when it exceeds cfg.KnownUIDSize
// (spec.md §4.5: "Managers MUST fragment K into multiple probe-requests
// if it exceeds the Known-UID cap per PDU"). Caller holds mu.
func (m *Manager) sendProbe(now time.Time) error {
	known := make([]rdm.UID, 0, len(m.known))
	for u := range m.known {
		known = append(known, u)
	}

	chunkSize := m.cfg.KnownUIDSize
	if chunkSize <= 0 {
		chunkSize = len(known)
	}
	if len(known) == 0 {
		if err := m.sendFragment(known); err != nil {
			return err
		}
	}
	for off := 0; off < len(known); off += chunkSize {
		end := off + chunkSize
		if end > len(known) {
			end = len(known)
		}
		if err := m.sendFragment(known[off:end]); err != nil {
			return err
		}
	}

	m.deadline = now.Add(m.cfg.ProbeTimeout)
	return nil
}

func (m *Manager) sendFragment(knownChunk []rdm.UID) error {
	parent := m.cycleCtx
	if parent == nil {
		parent = context.Background()
	}
	_, span := telemetry.StartLLRPSpan(parent, telemetry.SpanLLRPProbe, m.cid.String(), telemetry.LLRPRange(uid64(m.cur.Lo), uid64(m.cur.Hi))...)
	defer span.End()

	req := &llrp.ProbeRequest{Lower: m.cur.Lo, Upper: m.cur.Hi, Filter: m.filter, KnownUIDs: knownChunk}
	payload, err := req.Marshal()
	if err != nil {
		err = fmt.Errorf("llrpmgr: marshal probe-request: %w", err)
		span.RecordError(err)
		return err
	}

	m.nextTx++
	pdu := &llrp.PDU{
		Vector:            llrp.VectorProbeRequest,
		DestCID:           acn.BroadcastCID,
		TransactionNumber: m.nextTx,
		Payload:           payload,
	}
	pduBytes, err := pdu.Marshal()
	if err != nil {
		err = fmt.Errorf("llrpmgr: marshal probe-request PDU: %w", err)
		span.RecordError(err)
		return err
	}

	root := &acn.RootLayerPDU{Vector: acn.VectorLLRP, SrcCID: m.cid, Payload: pduBytes}
	frame, err := root.Marshal()
	if err != nil {
		err = fmt.Errorf("llrpmgr: marshal root-layer PDU: %w", err)
		span.RecordError(err)
		return err
	}

	if err := m.send.Send(frame); err != nil {
		err = fmt.Errorf("llrpmgr: send probe-request: %w", err)
		span.RecordError(err)
		return err
	}
	m.metr.RecordLLRPProbeSent(m.iface)
	return nil
}
