// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"sync"
	"time"
)

// Fake returns a FakeClock standing still at initial. Time moves only
// through Advance.
func Fake(initial time.Time) *FakeClock {
	clock := &FakeClock{now: initial}
	clock.changed = sync.NewCond(&clock.mu)
	return clock
}

// FakeClock is a deterministic Clock for tests. It is safe for
// concurrent use. Do not call Advance from inside an AfterFunc
// callback.
type FakeClock struct {
	mu      sync.Mutex
	now     time.Time
	seq     uint64
	pending []*fakeWaiter
	changed *sync.Cond
}

type fakeWaiter struct {
	deadline time.Time
	seq      uint64

	// Exactly one of channel and callback is set.
	channel  chan time.Time
	callback func()
}

// Now returns the fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// After returns a channel that receives when the clock reaches now+d.
func (c *FakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	channel := make(chan time.Time, 1)
	if d <= 0 {
		channel <- c.now
		return channel
	}
	c.addLocked(&fakeWaiter{deadline: c.now.Add(d), channel: channel})
	return channel
}

// AfterFunc schedules f for now+d. If d <= 0, f runs before AfterFunc
// returns.
func (c *FakeClock) AfterFunc(d time.Duration, f func()) *Timer {
	if d <= 0 {
		f()
		return &Timer{}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	waiter := &fakeWaiter{deadline: c.now.Add(d), callback: f}
	c.addLocked(waiter)
	return &Timer{stop: func() bool { return c.remove(waiter) }}
}

// Advance moves the clock forward by d, firing every waiter whose
// deadline is reached. While a waiter fires, Now reports its deadline,
// so a callback that re-arms itself for one interval fires again if
// the advance covers that interval too.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()

	for {
		c.mu.Lock()
		waiter := c.popDueLocked(target)
		if waiter == nil {
			c.now = target
			c.mu.Unlock()
			return
		}
		if waiter.deadline.After(c.now) {
			c.now = waiter.deadline
		}
		fireTime := c.now
		c.mu.Unlock()

		if waiter.callback != nil {
			waiter.callback()
			continue
		}
		select {
		case waiter.channel <- fireTime:
		default:
		}
	}
}

// WaitForTimers blocks until at least n waiters are pending. Use it to
// wait for a goroutine to reach its After or AfterFunc call before
// advancing.
func (c *FakeClock) WaitForTimers(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for len(c.pending) < n {
		c.changed.Wait()
	}
}

// PendingCount returns the number of waiters that have not fired or
// been stopped.
func (c *FakeClock) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

func (c *FakeClock) addLocked(waiter *fakeWaiter) {
	c.seq++
	waiter.seq = c.seq
	c.pending = append(c.pending, waiter)
	c.changed.Broadcast()
}

func (c *FakeClock) remove(target *fakeWaiter) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, waiter := range c.pending {
		if waiter == target {
			c.pending = append(c.pending[:i], c.pending[i+1:]...)
			return true
		}
	}
	return false
}

// popDueLocked removes and returns the earliest waiter due at or before
// target, or nil.
func (c *FakeClock) popDueLocked(target time.Time) *fakeWaiter {
	best := -1
	for i, waiter := range c.pending {
		if waiter.deadline.After(target) {
			continue
		}
		if best < 0 || earlier(waiter, c.pending[best]) {
			best = i
		}
	}
	if best < 0 {
		return nil
	}
	waiter := c.pending[best]
	c.pending = append(c.pending[:best], c.pending[best+1:]...)
	return waiter
}

func earlier(a, b *fakeWaiter) bool {
	if a.deadline.Equal(b.deadline) {
		return a.seq < b.seq
	}
	return a.deadline.Before(b.deadline)
}
