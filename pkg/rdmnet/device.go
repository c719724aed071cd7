package rdmnet

import (
	"fmt"
	"sync"
	"time"

	"github.com/marmos91/rdmnetcore/internal/connection"
	"github.com/marmos91/rdmnetcore/internal/handle"
	"github.com/marmos91/rdmnetcore/internal/protocol/broker"
	"github.com/marmos91/rdmnetcore/internal/protocol/llrp"
	"github.com/marmos91/rdmnetcore/internal/session"
)

// EndpointType distinguishes a physical endpoint (a hardware port, e.g.
// a DMX512 line) from a virtual one (spec.md §3 "Endpoint (device-side)
// ... numeric id, type {virtual, physical, NULL=0}").
type EndpointType int

const (
	EndpointTypeVirtual EndpointType = iota
	EndpointTypePhysical
)

// Responder is one RDM responder bound to an endpoint: its UID, the
// binding UID of the physical device it proxies for (zero if none), and
// its control field (spec.md §3).
type Responder struct {
	UID        UID
	BindingUID UID
	Control    uint16
}

// Endpoint is a numbered group of responders a Device exposes (spec.md
// §3). Endpoint 0, the NULL endpoint, is implicit and always present;
// it is not tracked in Device's endpoint map since it is never added or
// removed.
type Endpoint struct {
	ID         uint16
	Type       EndpointType
	Responders []Responder
}

// Device is an RPT-device client: it monitors a set of scopes, exposes
// a set of endpoints and their responders, and answers incoming RDM
// commands via SendRDMResponse (spec.md §6 "device").
type Device struct {
	scopeTransport
	h handle.Handle

	tickID     uint64
	llrpSinkID uint64
	hasLLRP    bool

	mu        sync.Mutex
	endpoints map[uint16]*Endpoint
	nextEPID  uint16
}

// DeviceOptions bundles a Device's construction-time dependencies.
// HardwareAddr/ComponentType/RDMHandler co-host an LLRP target on the
// device's CID/UID (spec.md §4.7: "controllers and devices always");
// leave RDMHandler nil to omit it.
type DeviceOptions struct {
	CID       CID
	UID       UID
	Callbacks Callbacks

	HardwareAddr  [6]byte
	ComponentType llrp.ComponentType
	RDMHandler    RDMDispatcher
}

// NewDevice creates a Device identified by cid/uid and begins driving
// its Tick on the Context's scheduler thread.
func (c *Context) NewDevice(opts DeviceOptions) (*Device, error) {
	dev := &Device{endpoints: map[uint16]*Endpoint{}, nextEPID: 1}

	sessOpts := session.Options{
		CID:               opts.CID,
		UID:               opts.UID,
		ClientType:        broker.ClientTypeRPTDevice,
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
	dev.scopeTransport = newScopeTransport(c, session.New(sessOpts))
	dev.hasLLRP = opts.RDMHandler != nil

	dev.h = c.hmgr.Create(handle.KindDevice, dev)
	dev.tickID = c.sched.Register(dev.tick)
	if dev.hasLLRP {
		dev.llrpSinkID = c.llrp.addReqSink(func(frame []byte) {
			_ = dev.sess.HandleLLRPFrame(frame, time.Now())
		})
	}
	return dev, nil
}

// AddScope begins monitoring scope, dialing staticBrokerAddr directly
// when non-empty or else resolving it through discovery.
func (dev *Device) AddScope(scope Scope, staticBrokerAddr string) error {
	effects, err := dev.sess.AddScope(scope, staticBrokerAddr, time.Now())
	if err != nil {
		return err
	}
	dev.applyEffects(scope, effects)
	return nil
}

// RemoveScope tears down scope's connection and stops monitoring it.
func (dev *Device) RemoveScope(scope Scope, reason string) error {
	effects, err := dev.sess.RemoveScope(scope, reason, time.Now())
	if err != nil {
		return err
	}
	dev.applyEffects(scope, effects)
	return nil
}

// AddVirtualEndpoint creates a new virtual endpoint and returns its id
// (spec.md §6 "add_virtual_endpoint").
func (dev *Device) AddVirtualEndpoint() uint16 { return dev.addEndpoint(EndpointTypeVirtual) }

// AddPhysicalEndpoint creates a new physical endpoint and returns its id
// (spec.md §6 "add_physical_endpoint").
func (dev *Device) AddPhysicalEndpoint() uint16 { return dev.addEndpoint(EndpointTypePhysical) }

func (dev *Device) addEndpoint(t EndpointType) uint16 {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	id := dev.nextEPID
	dev.nextEPID++
	dev.endpoints[id] = &Endpoint{ID: id, Type: t}
	return id
}

// RemoveEndpoint deletes endpointID and every responder bound to it
// (spec.md §6 "remove_endpoint").
func (dev *Device) RemoveEndpoint(endpointID uint16) error {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	if _, ok := dev.endpoints[endpointID]; !ok {
		return fmt.Errorf("rdmnet: endpoint %d not found", endpointID)
	}
	delete(dev.endpoints, endpointID)
	return nil
}

// AddResponder binds a responder to endpointID, subject to the
// per-endpoint responder cap (spec.md §5 "resource caps": responders
// per endpoint; §6 "add_responder").
func (dev *Device) AddResponder(endpointID uint16, r Responder) error {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	ep, ok := dev.endpoints[endpointID]
	if !ok {
		return fmt.Errorf("rdmnet: endpoint %d not found", endpointID)
	}
	if len(ep.Responders) >= dev.ctx.cfg.Caps.MaxRespondersPerEndpoint {
		return fmt.Errorf("rdmnet: responder cap %d reached for endpoint %d", dev.ctx.cfg.Caps.MaxRespondersPerEndpoint, endpointID)
	}
	ep.Responders = append(ep.Responders, r)
	return nil
}

// Endpoints returns a snapshot of every endpoint and its responders.
func (dev *Device) Endpoints() []Endpoint {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	out := make([]Endpoint, 0, len(dev.endpoints))
	for _, ep := range dev.endpoints {
		out = append(out, *ep)
	}
	return out
}

// SendRDMResponse answers a command delivered through
// Callbacks.OnRDMCommand: sourceEndpoint/destEndpoint and
// sequenceNumber must be passed back exactly as received (spec.md §6
// "send_rdm_response").
func (dev *Device) SendRDMResponse(scope Scope, sourceEndpoint, destEndpoint uint16, sequenceNumber uint32, resp *Message) error {
	frame, err := dev.sess.SendRDMResponse(scope, sourceEndpoint, destEndpoint, sequenceNumber, resp)
	if err != nil {
		return err
	}
	dev.applyEffects(scope, []connection.Effect{{Kind: connection.EffectSend, Frame: frame}})
	return nil
}

// Close tears down every scope's connection and unregisters this
// Device from its Context.
func (dev *Device) Close() {
	dev.ctx.sched.Unregister(dev.tickID)
	dev.ctx.hmgr.Destroy(dev.h)
	if dev.hasLLRP {
		dev.ctx.llrp.removeReqSink(dev.llrpSinkID)
	}
	dev.closeAllConns()
}

func (dev *Device) tick(now time.Time) {
	for scope, effects := range dev.sess.Tick(now) {
		dev.applyEffects(scope, effects)
	}
}
