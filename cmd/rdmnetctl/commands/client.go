package commands

import (
	"fmt"
	"time"

	"github.com/marmos91/rdmnetcore/pkg/config"
	"github.com/marmos91/rdmnetcore/pkg/rdmnet"
)

// cliCallbacks forwards the one scope this CLI cares about onto
// buffered channels a command can select on, satisfying
// rdmnet.Callbacks without the command needing to implement every
// method itself.
type cliCallbacks struct {
	connected     chan struct{}
	connectFailed chan string
	responses     chan *rdmnet.Message
	notifications chan *rdmnet.Message
}

func newCLICallbacks() *cliCallbacks {
	return &cliCallbacks{
		connected:     make(chan struct{}, 1),
		connectFailed: make(chan string, 1),
		responses:     make(chan *rdmnet.Message, 8),
		notifications: make(chan *rdmnet.Message, 8),
	}
}

func (c *cliCallbacks) OnConnected(rdmnet.Scope) {
	select {
	case c.connected <- struct{}{}:
	default:
	}
}

func (c *cliCallbacks) OnConnectFailed(_ rdmnet.Scope, reason string) {
	select {
	case c.connectFailed <- reason:
	default:
	}
}

func (c *cliCallbacks) OnDisconnected(rdmnet.Scope, string) {}

func (c *cliCallbacks) OnRDMResponse(_ rdmnet.Scope, _ uint32, msg *rdmnet.Message) {
	c.responses <- msg
}

func (c *cliCallbacks) OnRDMNotification(_ rdmnet.Scope, msg *rdmnet.Message) {
	c.notifications <- msg
}

func (c *cliCallbacks) OnDynamicUIDsAssigned(rdmnet.Scope, []rdmnet.DynamicUIDMapping) {}

func (c *cliCallbacks) OnRDMCommand(rdmnet.Scope, uint16, uint16, uint32, *rdmnet.Message) {}

var _ rdmnet.Callbacks = (*cliCallbacks)(nil)

// ctlSession bundles a live Context+Controller and the channels its
// callbacks feed, plus a deferrable teardown.
type ctlSession struct {
	ctx  *rdmnet.Context
	ctrl *rdmnet.Controller
	cb   *cliCallbacks
}

// connectController loads configPath (or built-in defaults when
// empty), boots a Context, creates a Controller under a freshly
// generated identity, adds scope pointed at brokerAddr, and blocks
// until connected, failed, or timeout elapses.
func connectController(configPath, scope, brokerAddr string, timeout time.Duration) (*ctlSession, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}

	ctx, err := rdmnet.Init(*cfg)
	if err != nil {
		return nil, fmt.Errorf("rdmnetctl: init: %w", err)
	}

	cb := newCLICallbacks()
	ctrl, err := ctx.NewController(rdmnet.ControllerOptions{
		CID:       rdmnet.NewCID(),
		UID:       rdmnet.UID{Manufacturer: 0x7ff0, Device: uint32(time.Now().UnixNano())},
		Callbacks: cb,
	})
	if err != nil {
		ctx.Deinit()
		return nil, fmt.Errorf("rdmnetctl: new controller: %w", err)
	}

	if err := ctrl.AddScope(scope, brokerAddr); err != nil {
		ctrl.Close()
		ctx.Deinit()
		return nil, fmt.Errorf("rdmnetctl: add scope: %w", err)
	}

	select {
	case <-cb.connected:
	case reason := <-cb.connectFailed:
		ctrl.Close()
		ctx.Deinit()
		return nil, fmt.Errorf("rdmnetctl: connect failed: %s", reason)
	case <-time.After(timeout):
		ctrl.Close()
		ctx.Deinit()
		return nil, fmt.Errorf("rdmnetctl: connect timed out after %s", timeout)
	}

	return &ctlSession{ctx: ctx, ctrl: ctrl, cb: cb}, nil
}

func (s *ctlSession) Close() {
	s.ctrl.Close()
	s.ctx.Deinit()
}

func loadConfig(configPath string) (*config.Config, error) {
	if configPath == "" {
		return config.GetDefaultConfig(), nil
	}
	return config.Load(configPath)
}
