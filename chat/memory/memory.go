// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package memory

import (
	"context"
	"log/slog"
	"strconv"
	"sync"

	"github.com/bureau-foundation/textstream/chat"
)

// CallKind distinguishes the two backend operations.
type CallKind int

const (
	Create CallKind = iota + 1
	Edit
)

func (k CallKind) String() string {
	switch k {
	case Create:
		return "create"
	case Edit:
		return "edit"
	default:
		return "unknown"
	}
}

// Call is one recorded backend call.
type Call struct {
	Kind           CallKind
	Channel        string
	ThreadID       string
	MessageID      string
	Text           string
	IdempotencyKey string
}

// Handler intercepts calls after they are recorded. A non-nil error
// fails the call; nil lets the default behavior proceed. A Handler may
// block, for example until the test releases it.
type Handler func(ctx context.Context, call Call) error

// notifyBuffer is the capacity of the Notify channel. Sends beyond it
// are dropped.
const notifyBuffer = 256

// Backend is the in-memory chat.Backend. The zero value is not usable;
// call New.
type Backend struct {
	logger *slog.Logger
	notify chan Call

	mu       sync.Mutex
	calls    []Call
	created  int
	messages map[string]string
	handler  Handler
}

var _ chat.Backend = (*Backend)(nil)

// New creates an empty Backend. A nil logger uses slog.Default().
func New(logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	return &Backend{
		logger:   logger,
		notify:   make(chan Call, notifyBuffer),
		messages: make(map[string]string),
	}
}

// SetHandler installs handler for subsequent calls. nil removes it.
func (b *Backend) SetHandler(handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handler = handler
}

// CreateMessage records the call and stores the message. IDs are
// sequential decimal strings starting at "1".
func (b *Backend) CreateMessage(ctx context.Context, request chat.PostRequest) (chat.MessageRef, error) {
	call := Call{
		Kind:           Create,
		Channel:        request.Channel,
		ThreadID:       request.ThreadID,
		Text:           request.Text,
		IdempotencyKey: request.IdempotencyKey,
	}
	if err := b.intercept(ctx, call); err != nil {
		return chat.MessageRef{}, err
	}

	b.mu.Lock()
	b.created++
	id := strconv.Itoa(b.created)
	b.messages[id] = request.Text
	b.mu.Unlock()

	b.logger.Debug("message created",
		"channel", request.Channel,
		"message_id", id,
		"thread_id", request.ThreadID,
		"length", len(request.Text),
	)
	return chat.MessageRef{ID: id, Channel: request.Channel}, nil
}

// EditMessage records the call and replaces the stored text. Editing
// an unknown message fails with code "message_not_found".
func (b *Backend) EditMessage(ctx context.Context, request chat.UpdateRequest) (chat.MessageRef, error) {
	call := Call{
		Kind:           Edit,
		Channel:        request.Channel,
		MessageID:      request.MessageID,
		Text:           request.Text,
		IdempotencyKey: request.IdempotencyKey,
	}
	if err := b.intercept(ctx, call); err != nil {
		return chat.MessageRef{}, err
	}

	b.mu.Lock()
	_, exists := b.messages[request.MessageID]
	if exists {
		b.messages[request.MessageID] = request.Text
	}
	b.mu.Unlock()

	if !exists {
		return chat.MessageRef{}, &chat.APIError{
			Code:    "message_not_found",
			Message: "no message " + strconv.Quote(request.MessageID),
		}
	}

	b.logger.Debug("message edited",
		"channel", request.Channel,
		"message_id", request.MessageID,
		"length", len(request.Text),
	)
	return chat.MessageRef{ID: request.MessageID, Channel: request.Channel}, nil
}

func (b *Backend) intercept(ctx context.Context, call Call) error {
	b.mu.Lock()
	b.calls = append(b.calls, call)
	handler := b.handler
	b.mu.Unlock()

	select {
	case b.notify <- call:
	default:
	}

	if handler != nil {
		return handler(ctx, call)
	}
	return nil
}

// Notify returns a channel that receives each call as it is recorded,
// before the Handler runs.
func (b *Backend) Notify() <-chan Call { return b.notify }

// Calls returns a copy of every recorded call in order.
func (b *Backend) Calls() []Call {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Call(nil), b.calls...)
}

// Creates returns the recorded create calls.
func (b *Backend) Creates() []Call { return b.filter(Create) }

// Edits returns the recorded edit calls.
func (b *Backend) Edits() []Call { return b.filter(Edit) }

func (b *Backend) filter(kind CallKind) []Call {
	b.mu.Lock()
	defer b.mu.Unlock()
	var result []Call
	for _, call := range b.calls {
		if call.Kind == kind {
			result = append(result, call)
		}
	}
	return result
}

// Text returns the current text of a stored message.
func (b *Backend) Text(messageID string) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	text, ok := b.messages[messageID]
	return text, ok
}
