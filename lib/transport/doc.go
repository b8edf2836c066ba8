// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package transport wraps a chat.Backend with retry, backoff and error
// classification.
//
// Every failure falls into one [Class]:
//
//   - RateLimited (HTTP 429 or code "ratelimited"): wait for the
//     server's Retry-After, or the base delay when it gave none, then
//     retry. The OnRateLimit hook is told about each wait.
//   - Fatal (authentication, permission, argument and size errors):
//     returned at once. Retrying cannot help.
//   - Transient (HTTP 5xx, network failures): exponential backoff with
//     up to 30% jitter, capped at MaxRetryDelay.
//   - Other: returned at once.
//
// Retries stop after MaxRetries and the last error is returned as is,
// so callers can still classify it. Each logical call carries one
// idempotency key across all of its attempts.
//
// Waits use the injected clock and end early when the context is
// cancelled.
package transport
