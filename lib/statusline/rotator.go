// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package statusline

import (
	"math/rand/v2"
	"sync"
	"time"

	"github.com/bureau-foundation/textstream/lib/clock"
)

// DefaultInterval is the time between status changes.
const DefaultInterval = 2500 * time.Millisecond

// DefaultMessages is the catalog used when Config.Messages is empty.
var DefaultMessages = []string{
	"Thinking...",
	"Pondering...",
	"Contemplating reality...",
	"Reticulating splines...",
	"Consulting the oracle...",
	"Gathering thoughts...",
	"Processing...",
	"Computing possibilities...",
	"Analyzing...",
	"Synthesizing response...",
}

// Config controls a Rotator.
type Config struct {
	// Messages to cycle through. Empty uses DefaultMessages.
	Messages []string

	// Interval between changes. Non-positive uses DefaultInterval.
	Interval time.Duration

	// Shuffle permutes the messages once, at construction.
	Shuffle bool

	// Rand is the shuffle source. Nil uses the math/rand/v2 global
	// source; inject a seeded one for reproducible order.
	Rand *rand.Rand

	// Clock drives the tick. Nil uses clock.Real().
	Clock clock.Clock
}

// Rotator calls a status callback with the next message on every tick.
type Rotator struct {
	messages []string
	interval time.Duration
	clock    clock.Clock
	onChange func(string)

	mu      sync.Mutex
	index   int
	running bool
	timer   *clock.Timer
}

// NewRotator creates a stopped Rotator.
func NewRotator(onChange func(status string), config Config) *Rotator {
	messages := config.Messages
	if len(messages) == 0 {
		messages = DefaultMessages
	}
	messages = append([]string(nil), messages...)
	if config.Shuffle {
		swap := func(i, j int) { messages[i], messages[j] = messages[j], messages[i] }
		if config.Rand != nil {
			config.Rand.Shuffle(len(messages), swap)
		} else {
			rand.Shuffle(len(messages), swap)
		}
	}

	interval := config.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}

	return &Rotator{
		messages: messages,
		interval: interval,
		clock:    clk,
		onChange: onChange,
	}
}

// Messages returns the rotation order.
func (r *Rotator) Messages() []string {
	return append([]string(nil), r.messages...)
}

// Start emits the current message immediately and then advances one
// message per interval. Starting a running Rotator does nothing.
func (r *Rotator) Start() {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return
	}
	r.running = true
	message := r.messages[r.index]
	r.armLocked()
	r.mu.Unlock()

	r.onChange(message)
}

// Stop halts the rotation. Safe to call repeatedly.
func (r *Rotator) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.running = false
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}

// Running reports whether the Rotator is started.
func (r *Rotator) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

func (r *Rotator) armLocked() {
	r.timer = r.clock.AfterFunc(r.interval, r.tick)
}

func (r *Rotator) tick() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.index = (r.index + 1) % len(r.messages)
	message := r.messages[r.index]
	r.armLocked()
	r.mu.Unlock()

	r.onChange(message)
}
