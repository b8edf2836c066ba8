// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package textbuffer

import (
	"strings"
	"unicode/utf8"
)

// Buffer accumulates streamed text plus an optional status line.
type Buffer struct {
	text strings.Builder

	// size is the rune count of text, kept in step with every mutation
	// so that Size is constant time on every scheduler tick.
	size int

	status    string
	hasStatus bool
}

// Append adds chunk to the end of the text. An empty chunk is a no-op.
func (b *Buffer) Append(chunk string) {
	if chunk == "" {
		return
	}
	b.text.WriteString(chunk)
	b.size += utf8.RuneCountInString(chunk)
}

// Set replaces the text wholesale. Unlike Append it may shrink Size.
func (b *Buffer) Set(value string) {
	b.text.Reset()
	b.text.WriteString(value)
	b.size = utf8.RuneCountInString(value)
}

// SetStatus sets the status line shown above the text.
func (b *Buffer) SetStatus(status string) {
	b.status = status
	b.hasStatus = true
}

// ClearStatus removes the status line.
func (b *Buffer) ClearStatus() {
	b.status = ""
	b.hasStatus = false
}

// Status returns the status line and whether one is set.
func (b *Buffer) Status() (string, bool) {
	return b.status, b.hasStatus
}

// Text returns the accumulated text without the status line.
func (b *Buffer) Text() string {
	return b.text.String()
}

// Size returns the length of the text in runes.
func (b *Buffer) Size() int {
	return b.size
}

// Render returns the text with the status line applied.
func (b *Buffer) Render() string {
	return Render(b.Text(), b.status)
}
