package rdmnet

import (
	"testing"

	"github.com/marmos91/rdmnetcore/internal/discovery"
	"github.com/marmos91/rdmnetcore/internal/handle"
	"github.com/marmos91/rdmnetcore/internal/scheduler"
	"github.com/marmos91/rdmnetcore/pkg/config"
)

// newTestContext builds a Context without touching real multicast
// sockets, so unit tests can exercise Controller/Device/handle wiring
// without depending on the host's network interfaces. The scheduler is
// never Started; tests drive tick functions directly.
func newTestContext(t *testing.T) *Context {
	t.Helper()
	cfg := *config.GetDefaultConfig()
	return &Context{
		cfg:   cfg,
		sched: scheduler.New(cfg.Connection.HeartbeatInterval, nil),
		hmgr:  handle.New(),
		disco: discovery.NewRegistry(),
	}
}

// fakeCallbacks records every Callbacks invocation for assertions.
type fakeCallbacks struct {
	connected    []Scope
	connectFail  []string
	disconnected []string
	responses    []*Message
	notifs       []*Message
	commands     []*Message
	assigned     []DynamicUIDMapping
}

func (f *fakeCallbacks) OnConnected(scope Scope) { f.connected = append(f.connected, scope) }

func (f *fakeCallbacks) OnConnectFailed(scope Scope, reason string) {
	f.connectFail = append(f.connectFail, scope+":"+reason)
}

func (f *fakeCallbacks) OnDisconnected(scope Scope, reason string) {
	f.disconnected = append(f.disconnected, scope+":"+reason)
}

func (f *fakeCallbacks) OnRDMResponse(scope Scope, sequenceNumber uint32, msg *Message) {
	f.responses = append(f.responses, msg)
}

func (f *fakeCallbacks) OnRDMNotification(scope Scope, msg *Message) {
	f.notifs = append(f.notifs, msg)
}

func (f *fakeCallbacks) OnDynamicUIDsAssigned(scope Scope, mappings []DynamicUIDMapping) {
	f.assigned = append(f.assigned, mappings...)
}

func (f *fakeCallbacks) OnRDMCommand(scope Scope, sourceEndpoint, destEndpoint uint16, sequenceNumber uint32, msg *Message) {
	f.commands = append(f.commands, msg)
}

var _ Callbacks = (*fakeCallbacks)(nil)
