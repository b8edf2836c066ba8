// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package stream publishes a growing text buffer to a chat channel as
// it is produced.
//
// A [Streamer] owns a retrying transport over a chat.Backend and mints
// one [Session] per streamed reply. The caller appends chunks and
// status lines; the session's scheduler coalesces them into flushes
// under a rate ceiling, and each flush reconciles the remote message
// with the buffer:
//
//   - ModeEdit keeps one message and edits it in place. The message
//     shows the status line (in italics) above the text.
//   - ModeThread posts the first text as a root message and every
//     later addition as a reply in its thread. No status line.
//   - ModeHybrid starts as ModeEdit and switches to thread delivery for
//     good once the text reaches HybridSwitchChars, or as soon as an
//     edit is rejected for rate limiting. The existing message becomes
//     the thread root.
//
// Flushes of one session run strictly one after another, in request
// order. Flush failures do not interrupt streaming; the last one is
// reported by Finalize.
//
// Lifecycle:
//
//	session, err := streamer.StartSession(ctx, stream.SessionOptions{Channel: "C123"})
//	session.StartRotatingStatus(statusline.Config{})
//	for chunk := range chunks {
//	    session.Append(chunk)
//	}
//	err = session.Finalize(ctx)
//
// Cancel abandons a session without a final flush; Fail shows an error
// message as the status line and closes the session. After any of the
// three, every mutator is a no-op.
package stream
