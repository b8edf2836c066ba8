// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package slack implements chat.Backend on the Slack Web API
// (chat.postMessage and chat.update) through slack-go.
//
// Channels are Slack channel IDs and message IDs are message
// timestamps ("ts"). Slack's own error codes already are chat's
// normalized vocabulary, so they pass through unchanged. Slack has no
// idempotent send, so idempotency keys are ignored.
package slack
