// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package matrix implements chat.Backend against a Matrix homeserver
// using the Client-Server API.
//
// Channels are room IDs. A message is an m.room.message event and its
// ID is the event ID. Thread replies carry an m.thread relation to the
// thread root, with the in-reply-to fallback set so clients without
// thread support still show them as replies. Edits are m.replace
// events carrying the full replacement in m.new_content; the top-level
// body is prefixed with "* " as the fallback for older clients.
//
// Bodies are sent both as plain text and as HTML rendered from the
// Markdown subset the session produces (the italic status line), so
// the status shows as italics in clients that render formatted bodies.
//
// Sends use the idempotent PUT endpoint. The transaction ID is the
// request's idempotency key, so a retried send is deduplicated by the
// homeserver.
//
// Matrix error codes are normalized into chat's vocabulary:
// M_LIMIT_EXCEEDED becomes "ratelimited", M_FORBIDDEN becomes
// "restricted_action", and so on. See normalizedCodes.
package matrix
