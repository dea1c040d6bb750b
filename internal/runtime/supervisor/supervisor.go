// Package supervisor manages named goroutines tied to a shared context:
// panic recovery, optional restart, and timeout-aware graceful stop.
package supervisor

import (
	"context"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	logx "dailybot/pkg/logx"
)

type Supervisor struct {
	ctx    context.Context
	cancel context.CancelFunc

	log logx.Logger
	wg  sync.WaitGroup

	started atomic.Uint64
	active  atomic.Int64
	panics  atomic.Uint64
}

type Option func(*Supervisor)

func WithLogger(log logx.Logger) Option {
	return func(s *Supervisor) { s.log = log }
}

func New(parent context.Context, opts ...Option) *Supervisor {
	ctx, cancel := context.WithCancel(parent)
	s := &Supervisor{ctx: ctx, cancel: cancel, log: logx.Nop()}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Supervisor) Context() context.Context { return s.ctx }

// Go runs fn on a supervised goroutine. A panic is recovered and logged;
// the goroutine is not restarted.
func (s *Supervisor) Go(name string, fn func(ctx context.Context)) {
	s.spawn(name, fn, false)
}

// GoRestart runs fn and restarts it (with a short delay) if it panics,
// until the supervisor context ends. Use for loops that must stay alive.
func (s *Supervisor) GoRestart(name string, fn func(ctx context.Context)) {
	s.spawn(name, fn, true)
}

func (s *Supervisor) spawn(name string, fn func(ctx context.Context), restart bool) {
	s.wg.Add(1)
	s.started.Add(1)
	s.active.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.active.Add(-1)
		for {
			panicked := s.runOnce(name, fn)
			if !panicked || !restart || s.ctx.Err() != nil {
				return
			}
			s.log.Warn("restarting goroutine after panic", logx.String("name", name))
			select {
			case <-s.ctx.Done():
				return
			case <-time.After(time.Second):
			}
		}
	}()
}

func (s *Supervisor) runOnce(name string, fn func(ctx context.Context)) (panicked bool) {
	defer func() {
		if r := recover(); r != nil {
			panicked = true
			s.panics.Add(1)
			s.log.Error("panic in supervised goroutine",
				logx.String("name", name), logx.Any("panic", r),
				logx.String("stack", string(debug.Stack())))
		}
	}()
	fn(s.ctx)
	return false
}

// Stop cancels the shared context and waits for all goroutines, up to the
// deadline on ctx. Returns false if the wait timed out.
func (s *Supervisor) Stop(ctx context.Context) bool {
	s.cancel()
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}

// Active reports the number of currently running supervised goroutines.
func (s *Supervisor) Active() int64 { return s.active.Load() }

// Panics reports the total panics recovered so far.
func (s *Supervisor) Panics() uint64 { return s.panics.Load() }
