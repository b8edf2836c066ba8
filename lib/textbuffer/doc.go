// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package textbuffer holds the text a streaming session has accumulated
// and the two pure functions the delivery path needs: [Render], which
// prefixes the status line, and [DiffAppend], which computes what a
// thread reply has to add.
//
// A [Buffer] belongs to exactly one session and is not safe for
// concurrent use; the session's lock guards it.
package textbuffer
