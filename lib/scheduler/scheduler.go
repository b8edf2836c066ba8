// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package scheduler

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bureau-foundation/textstream/lib/clock"
)

// Defaults applied by DefaultConfig.
const (
	DefaultFlushInterval       = 500 * time.Millisecond
	DefaultMinCharsDelta       = 24
	DefaultMaxUpdatesPerMinute = 80
)

// Config controls coalescing and rate limiting.
type Config struct {
	// FlushInterval is the poll period. Non-positive values use
	// DefaultFlushInterval.
	FlushInterval time.Duration

	// MinCharsDelta is the growth (in runes) since the last flush that
	// makes an unforced flush eligible.
	MinCharsDelta int

	// MaxUpdatesPerMinute caps flush executions. Zero or negative
	// means unlimited.
	MaxUpdatesPerMinute int
}

// DefaultConfig returns the default scheduler configuration.
func DefaultConfig() Config {
	return Config{
		FlushInterval:       DefaultFlushInterval,
		MinCharsDelta:       DefaultMinCharsDelta,
		MaxUpdatesPerMinute: DefaultMaxUpdatesPerMinute,
	}
}

// Overrides replaces individual fields of a base Config. A nil field
// keeps the base value, so a zero MaxUpdatesPerMinute override (no
// ceiling) is distinct from leaving the ceiling alone.
type Overrides struct {
	FlushInterval       *time.Duration
	MinCharsDelta       *int
	MaxUpdatesPerMinute *int
}

// Apply returns base with every set field of o replacing its
// counterpart.
func (o Overrides) Apply(base Config) Config {
	if o.FlushInterval != nil {
		base.FlushInterval = *o.FlushInterval
	}
	if o.MinCharsDelta != nil {
		base.MinCharsDelta = *o.MinCharsDelta
	}
	if o.MaxUpdatesPerMinute != nil {
		base.MaxUpdatesPerMinute = *o.MaxUpdatesPerMinute
	}
	return base
}

// MinInterval converts a per-minute ceiling into the minimum spacing
// between flushes, rounded up to the millisecond.
func MinInterval(maxPerMinute int) time.Duration {
	if maxPerMinute <= 0 {
		return 0
	}
	milliseconds := (60000 + maxPerMinute - 1) / maxPerMinute
	return time.Duration(milliseconds) * time.Millisecond
}

// Callbacks connect a Scheduler to the state it schedules.
type Callbacks struct {
	// Size reports the current size signal. Required.
	Size func() int

	// Flush performs one flush and blocks until it completes.
	// Required.
	Flush func(force bool) error

	// OnError receives every error Flush returns. Optional.
	OnError func(error)
}

// Scheduler coalesces flush requests and enforces a rate ceiling. It is
// safe for concurrent use.
type Scheduler struct {
	flushInterval time.Duration
	minCharsDelta int
	minInterval   time.Duration
	callbacks     Callbacks
	clock         clock.Clock
	logger        *slog.Logger

	mu            sync.Mutex
	lastFlushSize int
	lastFlushAt   time.Time
	flushing      bool
	forcePending  bool
	started       bool
	stopped       bool
	poll          *clock.Timer
	gate          *clock.Timer
}

// New creates a stopped Scheduler. A nil clock uses clock.Real(); a nil
// logger uses slog.Default().
func New(config Config, callbacks Callbacks, clk clock.Clock, logger *slog.Logger) (*Scheduler, error) {
	if callbacks.Size == nil {
		return nil, fmt.Errorf("scheduler: Size callback is required")
	}
	if callbacks.Flush == nil {
		return nil, fmt.Errorf("scheduler: Flush callback is required")
	}
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = slog.Default()
	}

	flushInterval := config.FlushInterval
	if flushInterval <= 0 {
		flushInterval = DefaultFlushInterval
	}

	return &Scheduler{
		flushInterval: flushInterval,
		minCharsDelta: config.MinCharsDelta,
		minInterval:   MinInterval(config.MaxUpdatesPerMinute),
		callbacks:     callbacks,
		clock:         clk,
		logger:        logger,
	}, nil
}

// Start begins periodic polling. Calling Start again, or after Stop,
// has no effect.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || s.stopped {
		return
	}
	s.started = true
	s.armPollLocked()
}

// Stop cancels the poll and any pending gate timer. A flush that is
// already executing runs to completion, but nothing is scheduled after
// it. Stop is terminal and idempotent.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	if s.poll != nil {
		s.poll.Stop()
		s.poll = nil
	}
	if s.gate != nil {
		s.gate.Stop()
		s.gate = nil
	}
}

// RequestFlush asks for a flush. A forced request bypasses the size
// threshold but not the rate ceiling.
func (s *Scheduler) RequestFlush(force bool) {
	if force {
		s.mu.Lock()
		s.forcePending = true
		s.mu.Unlock()
	}
	s.maybeFlush()
}

// armPollLocked schedules the next poll tick. Each tick re-arms the
// next one, so a stopped scheduler simply stops re-arming.
func (s *Scheduler) armPollLocked() {
	s.poll = s.clock.AfterFunc(s.flushInterval, func() {
		s.mu.Lock()
		if s.stopped {
			s.mu.Unlock()
			return
		}
		s.armPollLocked()
		s.mu.Unlock()
		s.maybeFlush()
	})
}

// maybeFlush runs the eligibility check. The size is read before
// taking the lock so the Size callback never runs under it.
func (s *Scheduler) maybeFlush() {
	size := s.callbacks.Size()

	s.mu.Lock()
	if s.stopped || s.flushing {
		s.mu.Unlock()
		return
	}

	delta := size - s.lastFlushSize
	if !s.forcePending && delta < s.minCharsDelta {
		s.mu.Unlock()
		return
	}

	if wait := s.minInterval - s.clock.Now().Sub(s.lastFlushAt); wait > 0 {
		if s.gate == nil {
			s.gate = s.clock.AfterFunc(wait, s.onGate)
		}
		s.mu.Unlock()
		return
	}

	s.flushing = true
	force := s.forcePending
	s.forcePending = false
	s.mu.Unlock()

	go s.execute(force, size)
}

func (s *Scheduler) onGate() {
	s.mu.Lock()
	s.gate = nil
	s.mu.Unlock()
	s.maybeFlush()
}

// execute runs one flush. Bookkeeping is updated whether or not the
// flush succeeded, then the eligibility check runs again to pick up
// anything requested in the meantime. The recorded size is the one
// that made the flush eligible, so growth during the flush counts
// toward the next one.
func (s *Scheduler) execute(force bool, size int) {
	if err := s.callbacks.Flush(force); err != nil {
		s.logger.Debug("flush failed", "force", force, "error", err)
		if s.callbacks.OnError != nil {
			s.callbacks.OnError(err)
		}
	}

	s.mu.Lock()
	s.flushing = false
	s.lastFlushAt = s.clock.Now()
	s.lastFlushSize = size
	s.mu.Unlock()

	s.maybeFlush()
}
