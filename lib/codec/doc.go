// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec holds the CBOR configuration shared by every textstream
// component that persists binary data. Today that is the session
// journal written by chat/recorder.
//
// External interfaces (the Matrix and Slack APIs, CLI output) use JSON.
// Anything textstream writes for itself uses CBOR through this package,
// so all of it encodes identically. The encoder uses Core Deterministic
// Encoding (RFC 8949 §4.2): sorted map keys, smallest integer encoding,
// no indefinite-length items. Timestamps encode as RFC 3339 strings with
// nanoseconds so journals stay readable in diagnostic notation.
//
// Buffer-oriented use:
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
// Stream-oriented use (a journal is a CBOR sequence):
//
//	encoder := codec.NewEncoder(writer)
//	decoder := codec.NewDecoder(reader)
//
// Types that are only ever CBOR carry `cbor` struct tags.
package codec
