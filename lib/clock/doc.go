// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides the time source used by every timer in
// textstream: the scheduler's poll and rate-gate timers, the status
// rotator's tick, and the transport's retry sleeps.
//
// Production code holds a [Clock] obtained from [Real]. Tests hold a
// [*FakeClock] from [Fake] and move time explicitly:
//
//	fake := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	flusher, err := scheduler.New(config, callbacks, fake, logger)
//	...
//	flusher.Start()
//	fake.Advance(500 * time.Millisecond) // fires the poll callback
//
// AfterFunc callbacks registered on a FakeClock run synchronously inside
// Advance, in deadline order (registration order breaks ties). Code that
// re-arms a timer from its own callback therefore gets one callback per
// elapsed interval, which is what periodic polling needs.
//
// Goroutines that block on After (retry sleeps) register a waiter before
// blocking. Tests call [FakeClock.WaitForTimers] before advancing so the
// registration cannot race the advance.
package clock
