// Package scheduler drives the periodic roadmap refresh. It is a cooperative
// timer loop: one immediate load on start, then one load per interval until
// stopped. The interval stands in for server push; swapping in a
// subscription model later only replaces this package.
package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// DefaultInterval matches the 30-second refresh cadence of the roadmap views.
const DefaultInterval = 30 * time.Second

// LoadFunc runs one load cycle for a target. An empty target means the
// generic platform view.
type LoadFunc func(ctx context.Context, target string) error

// Scheduler re-runs a LoadFunc for the currently watched target. Start is
// idempotent: starting again stops the previous loop first.
type Scheduler struct {
	interval time.Duration
	load     LoadFunc
	log      *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	target string

	inFlight atomic.Bool
}

// New builds a Scheduler. interval <= 0 falls back to DefaultInterval.
func New(interval time.Duration, load LoadFunc, logger *zap.Logger) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{interval: interval, load: load, log: logger}
}

// Start begins refreshing target, replacing any running loop. The first load
// happens immediately; subsequent ones per interval until ctx is cancelled
// or Stop is called.
func (s *Scheduler) Start(ctx context.Context, target string) {
	s.Stop()

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	s.mu.Lock()
	s.cancel = cancel
	s.done = done
	s.target = target
	s.mu.Unlock()

	go s.run(runCtx, target, done)
}

// Stop cancels the loop and waits for any in-flight tick to return. Late
// results cannot mutate state afterwards; the state container discards
// stale generations. Safe to call when not running.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	done := s.done
	s.cancel = nil
	s.done = nil
	s.target = ""
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

// Running reports whether a refresh loop is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

// Target returns the currently watched target, or "" when idle.
func (s *Scheduler) Target() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.target
}

func (s *Scheduler) run(ctx context.Context, target string, done chan struct{}) {
	defer close(done)

	s.tick(ctx, target)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx, target)
		}
	}
}

// tick runs one load unless the previous one is still in flight, in which
// case the tick is skipped rather than queued.
func (s *Scheduler) tick(ctx context.Context, target string) {
	if ctx.Err() != nil {
		return
	}
	if !s.inFlight.CompareAndSwap(false, true) {
		s.log.Debug("refresh tick skipped, previous load still in flight", zap.String("target", target))
		return
	}
	defer s.inFlight.Store(false)

	if err := s.load(ctx, target); err != nil && ctx.Err() == nil {
		s.log.Warn("scheduled refresh failed", zap.String("target", target), zap.Error(err))
	}
}
