package rdmnet

import (
	"time"

	"github.com/marmos91/rdmnetcore/internal/handle"
	"github.com/marmos91/rdmnetcore/internal/llrpmgr"
	"github.com/marmos91/rdmnetcore/internal/logger"
)

// LLRPManager runs LLRP discovery standalone, independent of any
// Controller/Device session (spec.md §6 "LLRP Manager API"). A
// Controller or Device co-hosts only an LLRP target through its
// embedded Session, not a manager; LLRPManager is how a caller runs
// discovery, with or without a full RPT client.
type LLRPManager struct {
	ctx *Context
	mgr *llrpmgr.Manager
	h   handle.Handle

	tickID uint64
	sinkID uint64
}

// NewLLRPManager creates an LLRPManager identified by cid/uid and
// starts reading LLRP reply traffic in the background.
func (c *Context) NewLLRPManager(cid CID, uid UID, iface string) *LLRPManager {
	lm := &LLRPManager{ctx: c}
	lm.mgr = llrpmgr.New(cid, uid, iface, requestSender{c.llrp}, llrpmgr.Config{
		ProbeTimeout:        c.cfg.LLRP.ProbeTimeout,
		CleanProbesToFinish: c.cfg.LLRP.CleanProbesToFinish,
		KnownUIDSize:        c.cfg.LLRP.KnownUIDSize,
	}, c.metr)
	lm.h = c.hmgr.Create(handle.KindLLRPManager, lm)
	lm.tickID = c.sched.Register(lm.tick)
	lm.sinkID = c.llrp.addReplySink(lm.handleFrame)
	return lm
}

// Start begins one discovery cycle across the full UID space. filter is
// sent verbatim as the probe-request filter bitfield
// (llrp.FilterClientTCPConnectionInactive, llrp.FilterBrokersOnly; 0
// means no filter).
func (lm *LLRPManager) Start(filter uint16) error {
	return lm.mgr.Start(filter, time.Now())
}

// Stop ends the current discovery cycle.
func (lm *LLRPManager) Stop() { lm.mgr.Stop() }

// Running reports whether a discovery cycle is in progress.
func (lm *LLRPManager) Running() bool { return lm.mgr.Running() }

// Discovered returns every component the most recent discovery cycle
// found. Stop clears this set.
func (lm *LLRPManager) Discovered() []llrpmgr.DiscoveredTarget { return lm.mgr.Discovered() }

// Close unregisters this LLRPManager from its Context.
func (lm *LLRPManager) Close() {
	lm.ctx.sched.Unregister(lm.tickID)
	lm.ctx.hmgr.Destroy(lm.h)
	lm.ctx.llrp.removeReplySink(lm.sinkID)
}

func (lm *LLRPManager) tick(now time.Time) {
	if err := lm.mgr.Tick(now); err != nil && lm.ctx.log != nil {
		lm.ctx.log.Warn("rdmnet: llrp manager tick failed", logger.KeyError, err.Error())
	}
}

func (lm *LLRPManager) handleFrame(frame []byte) {
	if err := lm.mgr.HandleFrame(frame, time.Now()); err != nil && lm.ctx.log != nil {
		lm.ctx.log.Debug("rdmnet: llrp manager dropped frame", logger.KeyError, err.Error())
	}
}
