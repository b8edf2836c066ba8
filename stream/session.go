// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package stream

import (
	"context"
	"log/slog"
	"sync"

	"github.com/bureau-foundation/textstream/chat"
	"github.com/bureau-foundation/textstream/lib/clock"
	"github.com/bureau-foundation/textstream/lib/scheduler"
	"github.com/bureau-foundation/textstream/lib/statusline"
	"github.com/bureau-foundation/textstream/lib/textbuffer"
)

// DefaultHybridSwitchChars is the text length at which a hybrid session
// moves to thread delivery.
const DefaultHybridSwitchChars = 2800

// SessionOptions configures one session.
type SessionOptions struct {
	// Channel is the destination. Required.
	Channel string

	// ThreadID places the session inside an existing thread. In edit
	// mode the message is created as a reply there; in thread mode the
	// replies go there and no root message is created.
	ThreadID string

	Mode Mode

	// HybridSwitchChars is the text length, in runes, at which a hybrid
	// session switches to thread delivery. Zero means
	// DefaultHybridSwitchChars.
	HybridSwitchChars int

	// DisableRateLimitSwitch keeps a hybrid session editing when an
	// edit is rate limited. By default it switches to thread delivery.
	DisableRateLimitSwitch bool

	// Scheduler overrides individual fields of the streamer's
	// scheduler defaults. Unset fields inherit them.
	Scheduler scheduler.Overrides
}

// messenger is the part of the transport a session uses.
type messenger interface {
	PostMessage(ctx context.Context, request chat.PostRequest) (chat.MessageRef, error)
	UpdateMessage(ctx context.Context, request chat.UpdateRequest) (chat.MessageRef, error)
}

// Session streams one reply into a channel. All methods are safe for
// concurrent use.
type Session struct {
	ctx         context.Context
	transport   messenger
	channel     string
	mode        Mode
	switchChars int
	switchOn429 bool
	clock       clock.Clock
	logger      *slog.Logger
	scheduler   *scheduler.Scheduler
	onClose     func(*Session)

	// mu guards everything below. It is never held across a transport,
	// scheduler or rotator call.
	mu               sync.Mutex
	buffer           textbuffer.Buffer
	threadID         string
	messageID        string
	lastSentText     string
	lastSentBody     string
	threadModeActive bool
	closing          bool
	closed           bool
	lastError        error
	rotator          *statusline.Rotator
	tail             chan struct{}
}

// flushResult is one link of the flush chain.
type flushResult struct {
	done chan struct{}
	err  error
}

func newSession(ctx context.Context, transport messenger, options SessionOptions, schedulerConfig scheduler.Config,
	clk clock.Clock, logger *slog.Logger, onClose func(*Session)) (*Session, error) {
	switchChars := options.HybridSwitchChars
	if switchChars <= 0 {
		switchChars = DefaultHybridSwitchChars
	}

	session := &Session{
		ctx:         ctx,
		transport:   transport,
		channel:     options.Channel,
		mode:        options.Mode,
		switchChars: switchChars,
		switchOn429: !options.DisableRateLimitSwitch,
		clock:       clk,
		logger:      logger.With("channel", options.Channel, "mode", options.Mode.String()),
		onClose:     onClose,
		threadID:    options.ThreadID,
	}

	flusher, err := scheduler.New(schedulerConfig, scheduler.Callbacks{
		Size:  session.size,
		Flush: session.scheduledFlush,
	}, clk, session.logger)
	if err != nil {
		return nil, err
	}
	session.scheduler = flusher
	flusher.Start()
	return session, nil
}

// Append adds chunk to the text and requests an unforced flush.
func (s *Session) Append(chunk string) {
	s.mu.Lock()
	if s.closing || s.closed {
		s.mu.Unlock()
		return
	}
	s.buffer.Append(chunk)
	s.mu.Unlock()

	s.scheduler.RequestFlush(false)
}

// SetStatus sets the status line and requests a forced flush, so the
// status shows even when the text has barely grown.
func (s *Session) SetStatus(status string) {
	s.mu.Lock()
	if s.closing || s.closed {
		s.mu.Unlock()
		return
	}
	s.buffer.SetStatus(status)
	s.mu.Unlock()

	s.scheduler.RequestFlush(true)
}

// ClearStatus stops any rotating status, removes the status line and
// requests a forced flush.
func (s *Session) ClearStatus() {
	s.mu.Lock()
	if s.closing || s.closed {
		s.mu.Unlock()
		return
	}
	rotator := s.rotator
	s.rotator = nil
	s.buffer.ClearStatus()
	s.mu.Unlock()

	if rotator != nil {
		rotator.Stop()
	}
	s.scheduler.RequestFlush(true)
}

// StartRotatingStatus cycles the status line through config.Messages,
// replacing any rotation already running. A nil config.Clock uses the
// session's clock.
func (s *Session) StartRotatingStatus(config statusline.Config) {
	if config.Clock == nil {
		config.Clock = s.clock
	}
	var rotator *statusline.Rotator
	rotator = statusline.NewRotator(func(status string) {
		s.rotatedStatus(rotator, status)
	}, config)

	s.mu.Lock()
	if s.closing || s.closed {
		s.mu.Unlock()
		return
	}
	previous := s.rotator
	s.rotator = rotator
	s.mu.Unlock()

	if previous != nil {
		previous.Stop()
	}
	rotator.Start()

	// The session may have closed, or another rotation replaced this
	// one, while Start ran unlocked.
	s.mu.Lock()
	current := s.rotator == rotator
	s.mu.Unlock()
	if !current {
		rotator.Stop()
	}
}

// rotatedStatus applies a tick from rotator. A tick that was already
// in flight when the rotation was stopped or replaced is dropped, so it
// cannot bring back a status the caller has since cleared.
func (s *Session) rotatedStatus(rotator *statusline.Rotator, status string) {
	s.mu.Lock()
	if s.closing || s.closed || s.rotator != rotator {
		s.mu.Unlock()
		return
	}
	s.buffer.SetStatus(status)
	s.mu.Unlock()

	s.scheduler.RequestFlush(true)
}

// StopRotatingStatus stops the rotation. The last status stays until
// cleared or replaced.
func (s *Session) StopRotatingStatus() {
	s.mu.Lock()
	rotator := s.rotator
	s.rotator = nil
	s.mu.Unlock()

	if rotator != nil {
		rotator.Stop()
	}
}

// Finalize clears the status line, performs one last forced flush and
// closes the session. It returns the final flush's error, or else the
// last error any earlier flush reported. Calling Finalize on a closed
// or closing session returns nil.
func (s *Session) Finalize(ctx context.Context) error {
	s.mu.Lock()
	if s.closing || s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closing = true
	rotator := s.rotator
	s.rotator = nil
	s.buffer.ClearStatus()
	s.mu.Unlock()

	if rotator != nil {
		rotator.Stop()
	}
	s.scheduler.Stop()

	result := s.enqueueFlush(ctx, true, true)
	<-result.done
	s.release()

	if result.err != nil {
		return result.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastError
}

// Cancel closes the session without a final flush. Buffered text that
// was not yet sent is abandoned. A remote call already in flight
// completes, but its result is discarded.
func (s *Session) Cancel() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closing = true
	s.closed = true
	rotator := s.rotator
	s.rotator = nil
	s.mu.Unlock()

	if rotator != nil {
		rotator.Stop()
	}
	s.scheduler.Stop()
	s.release()
	s.logger.Debug("session cancelled")
}

// Fail replaces the status line with message, performs one forced
// flush and closes the session. It returns that flush's error.
func (s *Session) Fail(ctx context.Context, message string) error {
	s.mu.Lock()
	if s.closing || s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closing = true
	rotator := s.rotator
	s.rotator = nil
	s.buffer.SetStatus(message)
	s.mu.Unlock()

	if rotator != nil {
		rotator.Stop()
	}
	s.scheduler.Stop()

	result := s.enqueueFlush(ctx, true, true)
	<-result.done
	s.release()
	return result.err
}

func (s *Session) release() {
	if s.onClose != nil {
		s.onClose(s)
	}
}

// Channel returns the destination channel.
func (s *Session) Channel() string { return s.channel }

// Mode returns the mode the session was created with. A hybrid session
// keeps reporting ModeHybrid after switching; see ThreadModeActive.
func (s *Session) Mode() Mode { return s.mode }

// MessageID returns the ID of the message the session created, or "".
func (s *Session) MessageID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.messageID
}

// ThreadID returns the thread the session posts into, or "".
func (s *Session) ThreadID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.threadID
}

// ThreadModeActive reports whether a hybrid session has switched to
// thread delivery.
func (s *Session) ThreadModeActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.threadModeActive
}

// Closed reports whether the session is closed.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Text returns the buffered text without the status line.
func (s *Session) Text() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buffer.Text()
}

// LastError returns the most recent flush error, or nil.
func (s *Session) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastError
}

func (s *Session) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buffer.Size()
}
