// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package stream

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/sourcegraph/conc/pool"

	"github.com/bureau-foundation/textstream/chat"
	"github.com/bureau-foundation/textstream/lib/clock"
	"github.com/bureau-foundation/textstream/lib/scheduler"
	"github.com/bureau-foundation/textstream/lib/transport"
)

// Config configures a Streamer.
type Config struct {
	// Transport controls retries for every session. Start from
	// transport.DefaultConfig(). Its Clock and Logger default to the
	// streamer's.
	Transport transport.Config

	// Scheduler is the base every session's overrides apply to.
	Scheduler scheduler.Config

	Clock  clock.Clock
	Logger *slog.Logger
}

// DefaultConfig returns the default streamer configuration.
func DefaultConfig() Config {
	return Config{
		Transport: transport.DefaultConfig(),
		Scheduler: scheduler.DefaultConfig(),
	}
}

// Streamer mints sessions that share one transport.
type Streamer struct {
	transport *transport.Transport
	scheduler scheduler.Config
	clock     clock.Clock
	logger    *slog.Logger

	mu       sync.Mutex
	sessions map[*Session]struct{}
	closed   bool
}

// New creates a Streamer over backend.
func New(backend chat.Backend, config Config) (*Streamer, error) {
	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	transportConfig := config.Transport
	if transportConfig.Clock == nil {
		transportConfig.Clock = clk
	}
	if transportConfig.Logger == nil {
		transportConfig.Logger = logger
	}
	shared, err := transport.New(backend, transportConfig)
	if err != nil {
		return nil, fmt.Errorf("stream: %w", err)
	}

	return &Streamer{
		transport: shared,
		scheduler: config.Scheduler,
		clock:     clk,
		logger:    logger,
		sessions:  make(map[*Session]struct{}),
	}, nil
}

// StartSession creates a session and starts its scheduler. ctx bounds
// the session's scheduled flushes; Finalize and Fail use their own
// context.
func (s *Streamer) StartSession(ctx context.Context, options SessionOptions) (*Session, error) {
	if options.Channel == "" {
		return nil, fmt.Errorf("stream: session channel is required")
	}
	if options.Mode < ModeEdit || options.Mode > ModeHybrid {
		return nil, fmt.Errorf("stream: invalid session mode %v", options.Mode)
	}

	schedulerConfig := options.Scheduler.Apply(s.scheduler)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, fmt.Errorf("stream: streamer is closed")
	}

	session, err := newSession(ctx, s.transport, options, schedulerConfig, s.clock, s.logger, s.forget)
	if err != nil {
		return nil, fmt.Errorf("stream: %w", err)
	}
	s.sessions[session] = struct{}{}
	s.logger.Debug("session started",
		"channel", options.Channel,
		"mode", options.Mode.String(),
		"thread_id", options.ThreadID,
	)
	return session, nil
}

// Sessions returns the number of sessions not yet closed.
func (s *Streamer) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Close finalizes every open session concurrently and refuses new
// ones. It returns the sessions' Finalize errors joined.
func (s *Streamer) Close(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	open := make([]*Session, 0, len(s.sessions))
	for session := range s.sessions {
		open = append(open, session)
	}
	s.mu.Unlock()

	finalizers := pool.New().WithErrors()
	for _, session := range open {
		finalizers.Go(func() error {
			if err := session.Finalize(ctx); err != nil {
				return fmt.Errorf("finalizing session in %s: %w", session.Channel(), err)
			}
			return nil
		})
	}
	return finalizers.Wait()
}

func (s *Streamer) forget(session *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, session)
}
