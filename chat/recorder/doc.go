// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package recorder wraps a chat.Backend and journals every call it
// forwards. The journal is a zstd-compressed CBOR sequence of [Entry]
// values, one per call, written in call-completion order. ReadAll
// decodes a journal back; `textstream --inspect` prints one.
//
// Journal write failures never fail the chat call. They are logged and
// the recorder stops writing.
package recorder
