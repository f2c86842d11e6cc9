// Package capture runs the periodic capture and analyze loop and applies
// each result to the session, statistics and alert state in capture order.
package capture

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tphakala/emotion-go/internal/logger"
)

// TickFunc is one capture, analyze and apply cycle.
type TickFunc func(ctx context.Context)

// Ticker is the subset of *time.Ticker the scheduler uses.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type stdTicker struct{ t *time.Ticker }

func (s stdTicker) C() <-chan time.Time { return s.t.C }
func (s stdTicker) Stop()               { s.t.Stop() }

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithTicker replaces the time.Ticker factory.
func WithTicker(factory func(time.Duration) Ticker) SchedulerOption {
	return func(s *Scheduler) { s.newTicker = factory }
}

// WithTickObserver is called on every tick with whether it was skipped.
func WithTickObserver(fn func(skipped bool)) SchedulerOption {
	return func(s *Scheduler) { s.observeTick = fn }
}

// Scheduler fires a cycle every interval. A tick that finds the previous
// cycle still running is dropped, so at most one cycle is ever in flight
// and no backlog builds up.
type Scheduler struct {
	newTicker   func(time.Duration) Ticker
	observeTick func(skipped bool)
	log         logger.Logger

	// busy spans one full cycle and is shared across restarts
	busy   atomic.Bool
	onTick atomic.Pointer[TickFunc]

	cycleMu   sync.Mutex
	cycleDone chan struct{}

	mu       sync.Mutex
	running  bool
	stop     chan struct{}
	loopDone chan struct{}
}

// NewScheduler returns a stopped scheduler.
func NewScheduler(log logger.Logger, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		newTicker: func(d time.Duration) Ticker { return stdTicker{time.NewTicker(d)} },
		log:       log.Module("scheduler"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OnTick registers the cycle action.
func (s *Scheduler) OnTick(fn TickFunc) {
	s.onTick.Store(&fn)
}

// Start begins ticking every interval. A running loop is stopped first.
// Cycles receive ctx without its cancellation so Stop never aborts the
// cycle in flight.
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("scheduler interval must be positive, got %s", interval)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()

	stop := make(chan struct{})
	done := make(chan struct{})
	s.stop, s.loopDone, s.running = stop, done, true

	ticker := s.newTicker(interval)
	cycleCtx := context.WithoutCancel(ctx)
	go s.loop(cycleCtx, ticker, stop, done)

	s.log.Debug("scheduler started", logger.Duration("interval", interval))
	return nil
}

// Stop halts ticking. It is idempotent and does not wait for the cycle in
// flight; use Wait for that.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

func (s *Scheduler) stopLocked() {
	if !s.running {
		return
	}
	close(s.stop)
	<-s.loopDone
	s.running = false
	s.log.Debug("scheduler stopped")
}

// Running reports whether ticks are being scheduled.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Busy reports whether a cycle is in flight.
func (s *Scheduler) Busy() bool { return s.busy.Load() }

// Wait blocks until no cycle is in flight or ctx is done.
func (s *Scheduler) Wait(ctx context.Context) error {
	s.cycleMu.Lock()
	done := s.cycleDone
	s.cycleMu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) loop(ctx context.Context, ticker Ticker, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C():
			// a stop racing with a tick wins
			select {
			case <-stop:
				return
			default:
			}
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	if !s.busy.CompareAndSwap(false, true) {
		if s.observeTick != nil {
			s.observeTick(true)
		}
		s.log.Trace("tick skipped, cycle in flight")
		return
	}
	if s.observeTick != nil {
		s.observeTick(false)
	}

	fn := s.onTick.Load()
	if fn == nil || *fn == nil {
		s.busy.Store(false)
		return
	}

	done := make(chan struct{})
	s.cycleMu.Lock()
	s.cycleDone = done
	s.cycleMu.Unlock()

	go func() {
		defer close(done)
		defer s.busy.Store(false)
		defer func() {
			if r := recover(); r != nil {
				s.log.Error("capture cycle panicked",
					logger.Any("panic", r),
					logger.String("stack", string(debug.Stack())))
			}
		}()
		(*fn)(ctx)
	}()
}
