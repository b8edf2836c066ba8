// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// textstream pipes standard input into a chat message that updates as
// the text arrives. It is the command-line front end of the stream
// package: each chunk read from stdin is appended to one session, the
// scheduler decides when the remote message is edited, and EOF
// finalizes it. An interrupt marks the message as failed instead.
//
// The backend (matrix, slack, or memory for dry runs) and all timing
// parameters come from a config file named by --config or
// TEXTSTREAM_CONFIG; flags override the common fields. --record keeps
// a compressed journal of every backend call and --inspect prints one
// back as JSON lines.
package main
