// Package schedule runs delayed and background work owned by a session or
// order, so pending work can be cancelled per owner or all at once on shutdown.
package schedule

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/rs/zerolog"
	logx "github.com/tanpawarit/chative-order-relay/pkg/logger"
)

var ErrClosed = errors.New("scheduler is closed")

// Step is one part of a sequence: wait Delay, then Run.
type Step struct {
	Delay time.Duration
	Run   func(ctx context.Context)
}

type Scheduler struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	owners *xsync.MapOf[string, *owner]
	lanes  *xsync.MapOf[string, chan struct{}]
	log    zerolog.Logger

	mu     sync.RWMutex
	closed bool
}

type owner struct {
	ctx    context.Context
	cancel context.CancelFunc
	tasks  int
}

func New() *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		ctx:    ctx,
		cancel: cancel,
		owners: xsync.NewMapOf[string, *owner](),
		lanes:  xsync.NewMapOf[string, chan struct{}](),
		log:    logx.Component("schedule"),
	}
}

// Go runs fn in the background under owner.
func (s *Scheduler) Go(ownerKey string, fn func(ctx context.Context)) error {
	return s.Sequence(ownerKey, []Step{{Run: fn}})
}

// After runs fn once delay has elapsed, unless owner is cancelled first.
func (s *Scheduler) After(ownerKey string, delay time.Duration, fn func(ctx context.Context)) error {
	return s.Sequence(ownerKey, []Step{{Delay: delay, Run: fn}})
}

// Sequence runs steps one after another on a single goroutine. Cancelling
// the owner stops the remaining steps; a step that panics is logged and the
// sequence continues.
func (s *Scheduler) Sequence(ownerKey string, steps []Step) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}

	o := s.acquire(ownerKey)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.release(ownerKey, o)

		for i, step := range steps {
			if !sleep(o.ctx, step.Delay) {
				s.log.Debug().Str("owner", ownerKey).Int("step", i).Msg("sequence cancelled")
				return
			}
			s.run(o.ctx, ownerKey, step.Run)
		}
	}()
	return nil
}

// Enqueue runs steps after every sequence previously enqueued on lane has
// finished, so the first step's Delay is measured from the end of the one
// before it. Lanes are FIFO; cancelling the owner drops the queued steps.
func (s *Scheduler) Enqueue(ownerKey, lane string, steps []Step) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}

	done := make(chan struct{})
	var prev chan struct{}
	s.lanes.Compute(lane, func(tail chan struct{}, loaded bool) (chan struct{}, bool) {
		if loaded {
			prev = tail
		}
		return done, false
	})

	o := s.acquire(ownerKey)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.release(ownerKey, o)
		defer func() {
			close(done)
			s.lanes.Compute(lane, func(tail chan struct{}, loaded bool) (chan struct{}, bool) {
				return tail, !loaded || tail == done
			})
		}()

		if prev != nil {
			select {
			case <-prev:
			case <-o.ctx.Done():
				return
			}
		}
		for i, step := range steps {
			if !sleep(o.ctx, step.Delay) {
				s.log.Debug().Str("owner", ownerKey).Str("lane", lane).Int("step", i).Msg("queued sequence cancelled")
				return
			}
			s.run(o.ctx, ownerKey, step.Run)
		}
	}()
	return nil
}

// Cancel stops every pending task of owner and reports whether any existed.
func (s *Scheduler) Cancel(ownerKey string) bool {
	o, ok := s.owners.LoadAndDelete(ownerKey)
	if ok {
		o.cancel()
	}
	return ok
}

// Pending reports the number of live tasks for owner.
func (s *Scheduler) Pending(ownerKey string) int {
	n := 0
	s.owners.Compute(ownerKey, func(o *owner, loaded bool) (*owner, bool) {
		if !loaded {
			return nil, true
		}
		n = o.tasks
		return o, false
	})
	return n
}

// Wait blocks until every started task has returned.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// Close cancels everything and waits for running tasks until ctx is done.
func (s *Scheduler) Close(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) acquire(ownerKey string) *owner {
	o, _ := s.owners.Compute(ownerKey, func(o *owner, loaded bool) (*owner, bool) {
		if !loaded {
			ctx, cancel := context.WithCancel(s.ctx)
			o = &owner{ctx: ctx, cancel: cancel}
		}
		o.tasks++
		return o, false
	})
	return o
}

func (s *Scheduler) release(ownerKey string, mine *owner) {
	s.owners.Compute(ownerKey, func(o *owner, loaded bool) (*owner, bool) {
		if !loaded {
			return nil, true
		}
		if o != mine {
			// owner was cancelled and replaced; leave the new one alone
			return o, false
		}
		o.tasks--
		if o.tasks <= 0 {
			o.cancel()
			return nil, true
		}
		return o, false
	})
}

func (s *Scheduler) run(ctx context.Context, ownerKey string, fn func(ctx context.Context)) {
	if fn == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Str("owner", ownerKey).Interface("panic", r).Msg("scheduled task panicked")
		}
	}()
	fn(ctx)
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
