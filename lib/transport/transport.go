// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"

	"github.com/bureau-foundation/textstream/chat"
	"github.com/bureau-foundation/textstream/lib/clock"
)

// Defaults applied by DefaultConfig.
const (
	DefaultMaxRetries     = 5
	DefaultBaseRetryDelay = 500 * time.Millisecond
	DefaultMaxRetryDelay  = 8 * time.Second
)

// jitterFraction is the largest share of a backoff added as jitter.
const jitterFraction = 0.3

// Config controls retry behavior. Start from DefaultConfig: a zero
// MaxRetries means no retries at all.
type Config struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int

	// BaseRetryDelay is the first transient backoff and the rate-limit
	// wait when the server gives no Retry-After. Non-positive values
	// use DefaultBaseRetryDelay.
	BaseRetryDelay time.Duration

	// MaxRetryDelay caps the exponential backoff before jitter.
	// Non-positive values use DefaultMaxRetryDelay.
	MaxRetryDelay time.Duration

	// OnRateLimit is called before each rate-limit wait with the
	// server's Retry-After (zero when absent). It runs on the calling
	// goroutine and must not block.
	OnRateLimit func(retryAfter time.Duration)

	// Jitter returns a value in [0, 1). Nil uses math/rand/v2.
	Jitter func() float64

	Clock  clock.Clock
	Logger *slog.Logger
}

// DefaultConfig returns the default retry configuration.
func DefaultConfig() Config {
	return Config{
		MaxRetries:     DefaultMaxRetries,
		BaseRetryDelay: DefaultBaseRetryDelay,
		MaxRetryDelay:  DefaultMaxRetryDelay,
	}
}

// Transport is a retrying view of a chat.Backend. It is safe for
// concurrent use when the backend is.
type Transport struct {
	backend     chat.Backend
	maxRetries  int
	baseDelay   time.Duration
	maxDelay    time.Duration
	onRateLimit func(time.Duration)
	jitter      func() float64
	clock       clock.Clock
	logger      *slog.Logger
}

// New wraps backend.
func New(backend chat.Backend, config Config) (*Transport, error) {
	if backend == nil {
		return nil, fmt.Errorf("transport: backend is required")
	}

	transport := &Transport{
		backend:     backend,
		maxRetries:  max(config.MaxRetries, 0),
		baseDelay:   config.BaseRetryDelay,
		maxDelay:    config.MaxRetryDelay,
		onRateLimit: config.OnRateLimit,
		jitter:      config.Jitter,
		clock:       config.Clock,
		logger:      config.Logger,
	}
	if transport.baseDelay <= 0 {
		transport.baseDelay = DefaultBaseRetryDelay
	}
	if transport.maxDelay <= 0 {
		transport.maxDelay = DefaultMaxRetryDelay
	}
	if transport.jitter == nil {
		transport.jitter = rand.Float64
	}
	if transport.clock == nil {
		transport.clock = clock.Real()
	}
	if transport.logger == nil {
		transport.logger = slog.Default()
	}
	return transport, nil
}

// PostMessage creates a message, retrying per the classification
// rules.
func (t *Transport) PostMessage(ctx context.Context, request chat.PostRequest) (chat.MessageRef, error) {
	if request.IdempotencyKey == "" {
		request.IdempotencyKey = uuid.NewString()
	}
	return t.call(ctx, "create", func(ctx context.Context) (chat.MessageRef, error) {
		return t.backend.CreateMessage(ctx, request)
	})
}

// UpdateMessage edits a message, retrying per the classification
// rules.
func (t *Transport) UpdateMessage(ctx context.Context, request chat.UpdateRequest) (chat.MessageRef, error) {
	if request.IdempotencyKey == "" {
		request.IdempotencyKey = uuid.NewString()
	}
	return t.call(ctx, "edit", func(ctx context.Context) (chat.MessageRef, error) {
		return t.backend.EditMessage(ctx, request)
	})
}

func (t *Transport) call(ctx context.Context, operation string, attempt func(context.Context) (chat.MessageRef, error)) (chat.MessageRef, error) {
	for retries := 0; ; retries++ {
		ref, err := attempt(ctx)
		if err == nil {
			return ref, nil
		}

		var delay time.Duration
		switch class := Classify(err); class {
		case ClassRateLimited:
			if retries >= t.maxRetries {
				return chat.MessageRef{}, err
			}
			retryAfter := chat.RetryAfter(err)
			if t.onRateLimit != nil {
				t.onRateLimit(retryAfter)
			}
			delay = retryAfter
			if delay <= 0 {
				delay = t.baseDelay
			}
			t.logger.Info("rate limited, backing off",
				"operation", operation,
				"retry", retries+1,
				"duration", delay,
			)

		case ClassTransient:
			if retries >= t.maxRetries {
				return chat.MessageRef{}, err
			}
			delay = t.backoff(retries)
			t.logger.Debug("transient failure, retrying",
				"operation", operation,
				"retry", retries+1,
				"duration", delay,
				"error", err,
			)

		default:
			return chat.MessageRef{}, err
		}

		select {
		case <-t.clock.After(delay):
		case <-ctx.Done():
			return chat.MessageRef{}, ctx.Err()
		}
	}
}

// backoff returns min(maxDelay, baseDelay·2^retries) plus up to 30% of
// that value as jitter.
func (t *Transport) backoff(retries int) time.Duration {
	delay := t.maxDelay
	// Past 2^30 the product overflows long before it matters.
	if retries < 30 {
		if scaled := t.baseDelay << retries; scaled > 0 && scaled < t.maxDelay {
			delay = scaled
		}
	}
	jitter := time.Duration(t.jitter() * jitterFraction * float64(delay))
	return delay + jitter
}
