// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil holds the channel helpers shared by textstream tests.
//
// Timers under test run on a clock.FakeClock, but flushes and retries
// still execute on their own goroutines. [RequireReceive],
// [RequireNoReceive] and [RequireClosed] are how tests synchronize with
// those goroutines. The wall-clock timeouts inside them are a hang
// safety valve only; no test outcome depends on real time passing.
//
// All helpers call t.Fatalf on failure.
package testutil
