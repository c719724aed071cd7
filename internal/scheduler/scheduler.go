// Package scheduler runs the single dedicated tick thread every
// registered component shares (spec.md §5: "no per-instance goroutines;
// one thread drives Tick on every live connection, session, and LLRP
// manager in registration order").
package scheduler

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/marmos91/rdmnetcore/internal/logger"
)

// Func is one registered unit of periodic work, e.g. a client Session's
// Tick or an LLRP Manager's Tick.
type Func func(now time.Time)

// Scheduler runs every registered Func once per interval, in
// registration order, on a single goroutine.
type Scheduler struct {
	interval time.Duration
	log      *logger.Logger

	mu     sync.Mutex
	funcs  map[uint64]Func
	order  []uint64
	nextID uint64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds a Scheduler that ticks every interval once Start is called.
func New(interval time.Duration, log *logger.Logger) *Scheduler {
	return &Scheduler{
		interval: interval,
		log:      log,
		funcs:    map[uint64]Func{},
	}
}

// Register adds fn to the tick rotation, returning a handle Unregister
// later removes it by. Safe to call while the scheduler is running.
func (s *Scheduler) Register(fn Func) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	s.funcs[id] = fn
	s.order = append(s.order, id)
	return id
}

// Unregister removes a previously registered Func. A no-op if id is
// already gone.
func (s *Scheduler) Unregister(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.funcs, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// Start begins the tick goroutine. It runs until Stop is called or ctx
// is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.run()
}

// Stop cancels the tick goroutine and blocks until it has exited, after
// one final tick so in-flight state (heartbeat sends, backoff timers)
// gets a last chance to settle.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Scheduler) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			s.tickAll(time.Now())
			return
		case now := <-ticker.C:
			s.tickAll(now)
		}
	}
}

func (s *Scheduler) tickAll(now time.Time) {
	s.mu.Lock()
	order := append([]uint64{}, s.order...)
	s.mu.Unlock()

	for _, id := range order {
		s.mu.Lock()
		fn, ok := s.funcs[id]
		s.mu.Unlock()
		if !ok {
			continue
		}
		s.safeCall(id, fn, now)
	}
}

// safeCall isolates one registered Func's panic so it cannot take down
// every other registered instance's tick.
func (s *Scheduler) safeCall(id uint64, fn Func, now time.Time) {
	defer func() {
		if r := recover(); r != nil && s.log != nil {
			s.log.Error("scheduler: tick function panicked",
				"registration_id", id,
				logger.KeyError, fmt.Sprint(r),
				"stack", string(debug.Stack()))
		}
	}()
	fn(now)
}
