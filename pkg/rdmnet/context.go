package rdmnet

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/marmos91/rdmnetcore/internal/discovery"
	"github.com/marmos91/rdmnetcore/internal/handle"
	"github.com/marmos91/rdmnetcore/internal/logger"
	"github.com/marmos91/rdmnetcore/internal/metrics"
	"github.com/marmos91/rdmnetcore/internal/scheduler"
	"github.com/marmos91/rdmnetcore/pkg/config"
)

// tickInterval is how often the scheduler drives every registered
// component's Tick (spec.md §5: "one thread drives Tick ... at a fixed
// interval"). Held fixed rather than configurable; every timing knob a
// caller actually needs to tune lives in config.Config instead.
const tickInterval = 50 * time.Millisecond

// Context bootstraps the library (spec.md §6 "init/deinit"). One
// Context owns one scheduler thread, one handle table, one discovery
// registry, one metrics collector and one logger; every Controller,
// Device, LLRPManager and LLRPTarget created from it shares those.
// Constructing more than one Context in a process is supported — each
// is fully independent (spec.md §9 "Global singletons": none here).
type Context struct {
	cfg config.Config

	log   *logger.Logger
	metr  *metrics.Collector
	sched *scheduler.Scheduler
	hmgr  *handle.Manager
	disco *discovery.Registry

	mu      sync.Mutex
	llrp    *llrpSockets
	started bool
}

// Init constructs a Context from cfg and starts its scheduler thread.
// The caller must Deinit the returned Context when done with it.
func Init(cfg config.Config) (*Context, error) {
	log, err := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("rdmnet: init logger: %w", err)
	}

	var collector *metrics.Collector
	if cfg.Metrics.Enabled {
		collector = metrics.New(prometheus.NewRegistry())
	}

	c := &Context{
		cfg:   cfg,
		log:   log,
		metr:  collector,
		sched: scheduler.New(tickInterval, log),
		hmgr:  handle.New(),
		disco: discovery.NewRegistry(),
	}

	sockets, err := openLLRPSockets(cfg.Network.Interfaces, log)
	if err != nil {
		return nil, fmt.Errorf("rdmnet: init llrp sockets: %w", err)
	}
	c.llrp = sockets

	c.sched.Register(c.sweepHandles)
	c.sched.Start(context.Background())
	c.mu.Lock()
	c.started = true
	c.mu.Unlock()

	return c, nil
}

// Deinit stops the scheduler thread, closes every LLRP socket, and
// releases the Context. Components created from it (Controller, Device,
// LLRPManager, LLRPTarget) must be closed first; Deinit does not reach
// into the handle table to tear them down for the caller (spec.md §6:
// "destroy every child handle before deinit").
func (c *Context) Deinit() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.started {
		return
	}
	c.sched.Stop()
	c.llrp.Close()
	c.started = false
}

// Config returns the configuration this Context was initialized with.
func (c *Context) Config() config.Config { return c.cfg }

// sweepHandles physically removes every handle marked for destruction
// (spec.md §5 "reclaimed on the next tick"); registered once per
// Context against the scheduler.
func (c *Context) sweepHandles(now time.Time) {
	c.hmgr.Sweep(func(h handle.Handle, kind handle.Kind, instance any) {
		if c.log != nil {
			c.log.Debug("rdmnet: handle reclaimed", "handle", h, "kind", kind.String())
		}
	})
}

func (c *Context) logger() *logger.Logger          { return c.log }
func (c *Context) metrics() *metrics.Collector     { return c.metr }
func (c *Context) scheduler() *scheduler.Scheduler { return c.sched }
func (c *Context) handles() *handle.Manager        { return c.hmgr }
func (c *Context) registry() *discovery.Registry   { return c.disco }
