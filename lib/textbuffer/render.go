// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package textbuffer

import "strings"

// Render prefixes text with the status line in italics:
//
//	Render("Content", "Thinking...") == "_Thinking..._\nContent"
//
// A status that is empty after trimming leaves text unchanged.
func Render(text, status string) string {
	status = strings.TrimSpace(status)
	if status == "" {
		return text
	}
	return "_" + status + "_\n" + text
}
