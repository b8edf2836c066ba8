// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package scheduler decides when a streaming session flushes.
//
// A [Scheduler] watches a size signal and calls a flush function when
// enough new text has accumulated (or a caller forces it), while
// capping how many flushes happen per minute. Rapid appends coalesce:
// growth below the threshold waits for the next poll, and a request
// that arrives while a flush is running is answered by the re-check
// that follows that flush rather than by a second flush.
//
// Lifecycle:
//
//	IDLE --(poll tick | RequestFlush)--> eligibility check
//	    not eligible            -> IDLE
//	    eligible, too soon      -> RATE-GATED (one deferred re-check)
//	    eligible                -> EXECUTING (one flush goroutine) -> re-check
//
// At most one flush executes at a time and at most one gate timer is
// armed. A forced request is sticky: it survives a gate wait or a
// running flush and is consumed by the next execution.
//
// Flush errors are handed to the OnError callback and never stop the
// scheduler.
package scheduler
