// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package chat defines the remote messaging service a streaming session
// publishes to.
//
// A [Backend] exposes exactly two operations: create a message (at the
// top of a channel or as a reply in a thread) and edit an existing
// message. Implementations live in subpackages: chat/matrix for a
// Matrix homeserver, chat/slack for the Slack Web API, chat/memory for
// tests and dry runs, and chat/recorder, which wraps any Backend and
// journals its calls.
//
// Backends report service-side failures as [*APIError]. The Code field
// carries a normalized error code shared by all backends (the Slack
// vocabulary: "ratelimited", "channel_not_found", ...), so retry policy
// can classify failures without knowing which service produced them.
// BackendCode keeps the service's own code for diagnostics. Network
// failures are returned unwrapped from the HTTP client.
package chat
