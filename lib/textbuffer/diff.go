// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package textbuffer

import "strings"

// DiffAppend returns the part of next that a reader who has already
// seen prev is missing. Thread delivery only ever appends, so the
// result is the suffix when next extends prev. Any other change is
// treated as a reset and the whole of next is returned.
//
//	DiffAppend("Hello", "Hello world") == " world"
//	DiffAppend("Hello", "Hello")       == ""
//	DiffAppend("Hello", "Goodbye")     == "Goodbye"
func DiffAppend(prev, next string) string {
	if next == prev {
		return ""
	}
	if strings.HasPrefix(next, prev) {
		return next[len(prev):]
	}
	return next
}
