// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package statusline cycles a status callback through a list of short
// progress messages ("Thinking...", "Pondering...") while an agent has
// not produced output yet.
package statusline
