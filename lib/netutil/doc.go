// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package netutil provides HTTP and network error utilities shared by
// the chat backends and the retrying transport.
//
// HTTP response helpers (ReadResponse, DecodeResponse, ErrorBody) bound
// response body reads at MaxResponseSize so a misbehaving server cannot
// exhaust memory.
//
// IsNetworkFailure classifies errors that mean the request never got a
// response: timeouts, refused or reset connections, DNS failures. The
// transport retries these like server errors.
package netutil
