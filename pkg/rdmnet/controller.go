package rdmnet

import (
	"time"

	"github.com/marmos91/rdmnetcore/internal/connection"
	"github.com/marmos91/rdmnetcore/internal/handle"
	"github.com/marmos91/rdmnetcore/internal/protocol/broker"
	"github.com/marmos91/rdmnetcore/internal/protocol/llrp"
	"github.com/marmos91/rdmnetcore/internal/session"
)

// Controller is an RPT-controller client: it monitors a set of scopes,
// maintains one broker connection per scope, and sends/receives RDM
// commands across them (spec.md §6 "Controller").
type Controller struct {
	scopeTransport
	h handle.Handle

	tickID     uint64
	llrpSinkID uint64
	hasLLRP    bool
}

// ControllerOptions bundles a Controller's construction-time
// dependencies. HardwareAddr/ComponentType/RDMHandler co-host an LLRP
// target on the controller's CID/UID (spec.md §4.7: "controllers and
// devices always"); leave RDMHandler nil to omit it.
type ControllerOptions struct {
	CID       CID
	UID       UID
	Callbacks Callbacks

	HardwareAddr  [6]byte
	ComponentType llrp.ComponentType
	RDMHandler    RDMDispatcher
}

// NewController creates a Controller identified by cid/uid and begins
// driving its Tick on the Context's scheduler thread.
func (c *Context) NewController(opts ControllerOptions) (*Controller, error) {
	ctrl := &Controller{}

	sessOpts := session.Options{
		CID:               opts.CID,
		UID:               opts.UID,
		ClientType:        broker.ClientTypeRPTController,
		ConnectionConfig:  c.cfg.Connection,
		Caps:              c.cfg.Caps,
		Registry:          c.disco,
		Metrics:           c.metr,
		Logger:            c.log,
		Callbacks:         callbacksAdapter{opts.Callbacks},
		ReassemblyTimeout: c.cfg.Connection.HeartbeatTimeout,
	}
	if opts.RDMHandler != nil {
		sessOpts.HardwareAddr = opts.HardwareAddr
		sessOpts.ComponentType = opts.ComponentType
		sessOpts.LLRPBackoffMax = c.cfg.LLRP.ReplyBackoffMax
		sessOpts.RDMHandler = dispatcherAdapter{opts.RDMHandler}
		sessOpts.LLRPSender = replySender{c.llrp}
	}
	ctrl.scopeTransport = newScopeTransport(c, session.New(sessOpts))
	ctrl.hasLLRP = opts.RDMHandler != nil

	ctrl.h = c.hmgr.Create(handle.KindController, ctrl)
	ctrl.tickID = c.sched.Register(ctrl.tick)
	if ctrl.hasLLRP {
		ctrl.llrpSinkID = c.llrp.addReqSink(func(frame []byte) {
			_ = ctrl.sess.HandleLLRPFrame(frame, time.Now())
		})
	}
	return ctrl, nil
}

// AddScope begins monitoring scope, dialing staticBrokerAddr directly
// when non-empty or else resolving it through discovery.
func (ctrl *Controller) AddScope(scope Scope, staticBrokerAddr string) error {
	effects, err := ctrl.sess.AddScope(scope, staticBrokerAddr, time.Now())
	if err != nil {
		return err
	}
	ctrl.applyEffects(scope, effects)
	return nil
}

// RemoveScope tears down scope's connection and stops monitoring it.
func (ctrl *Controller) RemoveScope(scope Scope, reason string) error {
	effects, err := ctrl.sess.RemoveScope(scope, reason, time.Now())
	if err != nil {
		return err
	}
	ctrl.applyEffects(scope, effects)
	return nil
}

// SendRDMCommand sends an RDM command to destUID over scope and returns
// the sequence number the response/notification callbacks will carry.
func (ctrl *Controller) SendRDMCommand(scope Scope, destUID UID, cc CommandClass, pid uint16, data []byte) (uint32, error) {
	seq, frame, err := ctrl.sess.SendRDMCommand(scope, destUID, cc, pid, data, time.Now())
	if err != nil {
		return 0, err
	}
	ctrl.applyEffects(scope, []connection.Effect{{Kind: connection.EffectSend, Frame: frame}})
	return seq, nil
}

// RequestDynamicUIDs asks scope's broker to assign dynamic UIDs for the
// given requested UIDs; results arrive via Callbacks.OnDynamicUIDsAssigned.
func (ctrl *Controller) RequestDynamicUIDs(scope Scope, requests []UID) error {
	frame, err := ctrl.sess.RequestDynamicUIDs(scope, requests)
	if err != nil {
		return err
	}
	ctrl.applyEffects(scope, []connection.Effect{{Kind: connection.EffectSend, Frame: frame}})
	return nil
}

// Close tears down every scope's connection and unregisters this
// Controller from its Context.
func (ctrl *Controller) Close() {
	ctrl.ctx.sched.Unregister(ctrl.tickID)
	ctrl.ctx.hmgr.Destroy(ctrl.h)
	if ctrl.hasLLRP {
		ctrl.ctx.llrp.removeReqSink(ctrl.llrpSinkID)
	}
	ctrl.closeAllConns()
}

func (ctrl *Controller) tick(now time.Time) {
	for scope, effects := range ctrl.sess.Tick(now) {
		ctrl.applyEffects(scope, effects)
	}
}
