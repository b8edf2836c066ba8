// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package recorder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/bureau-foundation/textstream/chat"
	"github.com/bureau-foundation/textstream/lib/clock"
	"github.com/bureau-foundation/textstream/lib/codec"
)

// Entry is one journaled backend call.
type Entry struct {
	Sequence       uint64        `cbor:"seq" json:"seq"`
	At             time.Time     `cbor:"at" json:"at"`
	Kind           string        `cbor:"kind" json:"kind"`
	Channel        string        `cbor:"channel" json:"channel"`
	ThreadID       string        `cbor:"thread_id,omitempty" json:"thread_id,omitempty"`
	MessageID      string        `cbor:"message_id,omitempty" json:"message_id,omitempty"`
	Text           string        `cbor:"text" json:"text"`
	IdempotencyKey string        `cbor:"idempotency_key,omitempty" json:"idempotency_key,omitempty"`
	ResultID       string        `cbor:"result_id,omitempty" json:"result_id,omitempty"`
	Error          string        `cbor:"error,omitempty" json:"error,omitempty"`
	ErrorCode      string        `cbor:"error_code,omitempty" json:"error_code,omitempty"`
	StatusCode     int           `cbor:"status_code,omitempty" json:"status_code,omitempty"`
	Duration       time.Duration `cbor:"duration_ns" json:"duration_ns"`
}

// Entry kinds.
const (
	KindCreate = "create"
	KindEdit   = "edit"
)

// Config holds the optional dependencies of a Recorder.
type Config struct {
	Clock  clock.Clock
	Logger *slog.Logger
}

// Recorder is a chat.Backend that forwards to another Backend and
// journals each call. It is safe for concurrent use.
type Recorder struct {
	backend chat.Backend
	clock   clock.Clock
	logger  *slog.Logger

	mu         sync.Mutex
	compressor *zstd.Encoder
	encoder    *codec.Encoder
	sequence   uint64
	failed     bool
	closed     bool
}

var _ chat.Backend = (*Recorder)(nil)

// New returns a Recorder that forwards to backend and writes the
// journal to w. The caller owns w and closes it after Close.
func New(backend chat.Backend, w io.Writer, config Config) (*Recorder, error) {
	if backend == nil {
		return nil, fmt.Errorf("recorder: backend is required")
	}
	compressor, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("recorder: creating zstd writer: %w", err)
	}

	recorder := &Recorder{
		backend:    backend,
		clock:      config.Clock,
		logger:     config.Logger,
		compressor: compressor,
		encoder:    codec.NewEncoder(compressor),
	}
	if recorder.clock == nil {
		recorder.clock = clock.Real()
	}
	if recorder.logger == nil {
		recorder.logger = slog.Default()
	}
	return recorder, nil
}

func (r *Recorder) CreateMessage(ctx context.Context, request chat.PostRequest) (chat.MessageRef, error) {
	start := r.clock.Now()
	ref, err := r.backend.CreateMessage(ctx, request)
	r.record(Entry{
		At:             start,
		Kind:           KindCreate,
		Channel:        request.Channel,
		ThreadID:       request.ThreadID,
		Text:           request.Text,
		IdempotencyKey: request.IdempotencyKey,
		ResultID:       ref.ID,
		Duration:       r.clock.Now().Sub(start),
	}, err)
	return ref, err
}

func (r *Recorder) EditMessage(ctx context.Context, request chat.UpdateRequest) (chat.MessageRef, error) {
	start := r.clock.Now()
	ref, err := r.backend.EditMessage(ctx, request)
	r.record(Entry{
		At:             start,
		Kind:           KindEdit,
		Channel:        request.Channel,
		MessageID:      request.MessageID,
		Text:           request.Text,
		IdempotencyKey: request.IdempotencyKey,
		ResultID:       ref.ID,
		Duration:       r.clock.Now().Sub(start),
	}, err)
	return ref, err
}

func (r *Recorder) record(entry Entry, callErr error) {
	if callErr != nil {
		entry.Error = callErr.Error()
		var apiErr *chat.APIError
		if errors.As(callErr, &apiErr) {
			entry.ErrorCode = apiErr.Code
			entry.StatusCode = apiErr.StatusCode
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || r.failed {
		return
	}
	r.sequence++
	entry.Sequence = r.sequence
	if err := r.encoder.Encode(entry); err != nil {
		r.failed = true
		r.logger.Warn("journal write failed, recording stopped", "error", err)
	}
}

// Flush pushes buffered journal data to the underlying writer.
func (r *Recorder) Flush() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	return r.compressor.Flush()
}

// Close finishes the zstd frame. Calls after Close are still forwarded
// but no longer journaled. Close does not close the underlying writer.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	return r.compressor.Close()
}

// Entries returns the number of entries written so far.
func (r *Recorder) Entries() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sequence
}

// ReadAll decodes every entry of a journal.
func ReadAll(reader io.Reader) ([]Entry, error) {
	decompressor, err := zstd.NewReader(reader)
	if err != nil {
		return nil, fmt.Errorf("recorder: opening zstd stream: %w", err)
	}
	defer decompressor.Close()

	decoder := codec.NewDecoder(decompressor)
	var entries []Entry
	for {
		var entry Entry
		if err := decoder.Decode(&entry); err != nil {
			if errors.Is(err, io.EOF) {
				return entries, nil
			}
			return entries, fmt.Errorf("recorder: decoding entry %d: %w", len(entries)+1, err)
		}
		entries = append(entries, entry)
	}
}
