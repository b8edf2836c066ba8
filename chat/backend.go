// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package chat

import "context"

// Backend is the remote messaging service.
type Backend interface {
	// CreateMessage posts a new message. With a ThreadID the message
	// is a reply in that thread.
	CreateMessage(ctx context.Context, request PostRequest) (MessageRef, error)

	// EditMessage replaces the text of an existing message.
	EditMessage(ctx context.Context, request UpdateRequest) (MessageRef, error)
}

// PostRequest describes a message to create.
type PostRequest struct {
	// Channel is the destination (Slack channel ID, Matrix room ID).
	Channel string

	// Text is the message body.
	Text string

	// ThreadID, when set, makes the message a reply in that thread.
	ThreadID string

	// IdempotencyKey identifies one logical send across retries.
	// Backends that support idempotent sends (Matrix transaction IDs)
	// use it so a retried request cannot post twice. Empty means the
	// backend generates its own.
	IdempotencyKey string
}

// UpdateRequest describes an edit of an existing message.
type UpdateRequest struct {
	Channel   string
	MessageID string
	Text      string

	// IdempotencyKey has the same meaning as in PostRequest.
	IdempotencyKey string
}

// MessageRef identifies a message on the remote service.
type MessageRef struct {
	// ID is the message identifier (Slack ts, Matrix event ID).
	ID string

	// Channel is the channel the message lives in.
	Channel string
}
