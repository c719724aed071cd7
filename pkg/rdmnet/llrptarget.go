package rdmnet

import (
	"time"

	"github.com/marmos91/rdmnetcore/internal/handle"
	"github.com/marmos91/rdmnetcore/internal/llrptarget"
	"github.com/marmos91/rdmnetcore/internal/logger"
	"github.com/marmos91/rdmnetcore/internal/protocol/llrp"
)

// RDMDispatcher answers RDM commands an LLRPTarget receives directly
// over LLRP (spec.md §4.5 "LLRP-only RDM access", used before a
// component has an RPT session or has none at all, e.g. an EPT-only
// gateway).
type RDMDispatcher interface {
	HandleRDMCommand(msg *Message) (*Message, error)
}

// LLRPTarget answers LLRP probe-requests and RDM-over-LLRP commands
// standalone, independent of any Controller/Device session. A
// Controller/Device gets an LLRPTarget co-hosted for free through its
// embedded Session; this type is for components that only ever speak
// LLRP (spec.md §6 "LLRP Target API").
type LLRPTarget struct {
	ctx *Context
	tgt *llrptarget.Target
	h   handle.Handle

	tickID uint64
	sinkID uint64
}

// NewLLRPTarget creates an LLRPTarget identified by cid/uid/hardwareAddr
// and begins answering probe-requests on the Context's shared LLRP
// sockets.
func (c *Context) NewLLRPTarget(cid CID, uid UID, hardwareAddr [6]byte, componentType llrp.ComponentType, dispatcher RDMDispatcher) *LLRPTarget {
	lt := &LLRPTarget{ctx: c}
	lt.tgt = llrptarget.New(cid, uid, hardwareAddr, componentType, replySender{c.llrp}, dispatcherAdapter{dispatcher}, c.cfg.LLRP.ReplyBackoffMax)
	lt.h = c.hmgr.Create(handle.KindLLRPTarget, lt)
	lt.tickID = c.sched.Register(lt.tick)
	lt.sinkID = c.llrp.addReqSink(lt.handleFrame)
	return lt
}

// Close unregisters this LLRPTarget from its Context.
func (lt *LLRPTarget) Close() {
	lt.ctx.sched.Unregister(lt.tickID)
	lt.ctx.hmgr.Destroy(lt.h)
	lt.ctx.llrp.removeReqSink(lt.sinkID)
}

func (lt *LLRPTarget) tick(now time.Time) {
	if err := lt.tgt.Tick(now); err != nil && lt.ctx.log != nil {
		lt.ctx.log.Warn("rdmnet: llrp target tick failed", logger.KeyError, err.Error())
	}
}

func (lt *LLRPTarget) handleFrame(frame []byte) {
	if err := lt.tgt.HandleFrame(frame, time.Now()); err != nil && lt.ctx.log != nil {
		lt.ctx.log.Debug("rdmnet: llrp target dropped frame", logger.KeyError, err.Error())
	}
}

// dispatcherAdapter satisfies internal/llrptarget.RDMDispatcher by
// forwarding to the public RDMDispatcher interface.
type dispatcherAdapter struct {
	d RDMDispatcher
}

func (a dispatcherAdapter) HandleRDMCommand(msg *Message) (*Message, error) {
	return a.d.HandleRDMCommand(msg)
}

var _ llrptarget.RDMDispatcher = dispatcherAdapter{}
