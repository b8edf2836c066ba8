// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package stream

import (
	"context"
	"errors"
	"runtime"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bureau-foundation/textstream/chat"
	"github.com/bureau-foundation/textstream/chat/memory"
	"github.com/bureau-foundation/textstream/lib/clock"
	"github.com/bureau-foundation/textstream/lib/scheduler"
	"github.com/bureau-foundation/textstream/lib/statusline"
	"github.com/bureau-foundation/textstream/lib/testutil"
	"github.com/bureau-foundation/textstream/lib/transport"
)

type fixture struct {
	fake     *clock.FakeClock
	backend  *memory.Backend
	streamer *Streamer
}

func newFixture(t *testing.T, configure func(*Config)) *fixture {
	t.Helper()
	f := &fixture{
		fake:    clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)),
		backend: memory.New(nil),
	}
	config := DefaultConfig()
	config.Clock = f.fake
	config.Transport.Jitter = func() float64 { return 0 }
	if configure != nil {
		configure(&config)
	}
	streamer, err := New(f.backend, config)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	f.streamer = streamer
	return f
}

func ptr[T any](v T) *T { return &v }

// schedule overrides every scheduler field, with no rate ceiling.
func schedule(interval time.Duration, delta int) scheduler.Overrides {
	return scheduler.Overrides{
		FlushInterval:       ptr(interval),
		MinCharsDelta:       ptr(delta),
		MaxUpdatesPerMinute: ptr(0),
	}
}

// eager flushes on every change and never rate limits.
func eager() scheduler.Overrides {
	return schedule(10*time.Millisecond, 1)
}

func (f *fixture) start(t *testing.T, options SessionOptions) *Session {
	t.Helper()
	if options.Channel == "" {
		options.Channel = "C1"
	}
	if options.Scheduler == (scheduler.Overrides{}) {
		options.Scheduler = eager()
	}
	session, err := f.streamer.StartSession(context.Background(), options)
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	t.Cleanup(session.Cancel)
	return session
}

func (f *fixture) waitCall(t *testing.T, what string) memory.Call {
	t.Helper()
	return testutil.RequireReceive(t, f.backend.Notify(), testutil.DefaultTimeout, what)
}

func (f *fixture) finalize(t *testing.T, session *Session) {
	t.Helper()
	if err := session.Finalize(context.Background()); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
}

// waitIdle blocks until every flush enqueued so far has finished.
func waitIdle(session *Session) {
	session.mu.Lock()
	tail := session.tail
	session.mu.Unlock()
	if tail != nil {
		<-tail
	}
}

func TestThrottlesUpdates(t *testing.T) {
	f := newFixture(t, nil)
	session := f.start(t, SessionOptions{
		Scheduler: schedule(50*time.Millisecond, 10),
	})

	session.Append("12345")
	session.Append("67890")
	session.Append("abcde")
	f.waitCall(t, "create once the delta is reached")

	f.fake.Advance(60 * time.Millisecond)
	f.finalize(t, session)

	if got := len(f.backend.Creates()); got != 1 {
		t.Errorf("creates = %d, want 1", got)
	}
	edits := f.backend.Edits()
	if len(edits) != 1 {
		t.Fatalf("edits = %d, want 1 (the final flush)", len(edits))
	}
	if edits[0].Text != "1234567890abcde" {
		t.Errorf("final text = %q", edits[0].Text)
	}
}

func TestBelowDeltaDoesNotFlush(t *testing.T) {
	f := newFixture(t, nil)
	session := f.start(t, SessionOptions{
		Scheduler: schedule(50*time.Millisecond, 24),
	})

	session.Append("short")
	f.fake.Advance(time.Second)
	testutil.RequireNoReceive(t, f.backend.Notify(), "flush below the delta")

	f.finalize(t, session)
	if creates := f.backend.Creates(); len(creates) != 1 || creates[0].Text != "short" {
		t.Errorf("creates = %+v, want the final flush only", creates)
	}
}

func TestThreadModePostsDiffs(t *testing.T) {
	f := newFixture(t, nil)
	session := f.start(t, SessionOptions{Mode: ModeThread, ThreadID: "parent"})

	session.Append("Hello")
	first := f.waitCall(t, "first reply")
	session.Append(" world")
	second := f.waitCall(t, "second reply")
	f.finalize(t, session)

	if first.Text != "Hello" || first.ThreadID != "parent" {
		t.Errorf("first = %+v", first)
	}
	if second.Text != " world" || second.ThreadID != "parent" {
		t.Errorf("second = %+v", second)
	}
	if got := len(f.backend.Calls()); got != 2 {
		t.Errorf("calls = %d, want 2 (finalize has nothing new)", got)
	}
}

func TestThreadModeCreatesRootWithoutStatus(t *testing.T) {
	f := newFixture(t, nil)
	session := f.start(t, SessionOptions{Mode: ModeThread})

	session.SetStatus("Thinking...")
	testutil.RequireNoReceive(t, f.backend.Notify(), "root created for a status alone")

	session.Append("Hello")
	root := f.waitCall(t, "root message")
	if root.Text != "Hello" || root.ThreadID != "" {
		t.Errorf("root = %+v", root)
	}
	waitIdle(session)
	if session.ThreadID() != "1" || session.MessageID() != "1" {
		t.Errorf("thread %q message %q, want both 1", session.ThreadID(), session.MessageID())
	}

	session.Append(" again")
	reply := f.waitCall(t, "reply")
	if reply.Text != " again" || reply.ThreadID != "1" {
		t.Errorf("reply = %+v", reply)
	}
	f.finalize(t, session)
}

func TestHybridSwitchesOnSize(t *testing.T) {
	f := newFixture(t, nil)
	session := f.start(t, SessionOptions{Mode: ModeHybrid, HybridSwitchChars: 5})

	session.Append("123456")
	f.waitCall(t, "root message")
	f.finalize(t, session)

	if got := len(f.backend.Creates()); got != 1 {
		t.Errorf("creates = %d, want 1", got)
	}
	if got := len(f.backend.Edits()); got != 0 {
		t.Errorf("edits = %d, want 0", got)
	}
	if !session.ThreadModeActive() {
		t.Error("hybrid session did not switch")
	}
}

func TestHybridSizeSwitchContinuesFromEditedMessage(t *testing.T) {
	f := newFixture(t, nil)
	session := f.start(t, SessionOptions{Mode: ModeHybrid, HybridSwitchChars: 8})

	session.Append("Hello")
	if create := f.waitCall(t, "create"); create.Text != "Hello" {
		t.Errorf("create text = %q", create.Text)
	}
	waitIdle(session)

	session.Append(" world")
	reply := f.waitCall(t, "thread reply")
	f.finalize(t, session)

	if reply.Kind != memory.Create || reply.ThreadID != "1" {
		t.Errorf("reply = %+v, want a reply under the edited message", reply)
	}
	if reply.Text != " world" {
		t.Errorf("reply text = %q, want only the unsent suffix", reply.Text)
	}
	if session.Mode() != ModeHybrid || !session.ThreadModeActive() {
		t.Errorf("mode %v active %v", session.Mode(), session.ThreadModeActive())
	}
	if got := len(f.backend.Edits()); got != 0 {
		t.Errorf("edits = %d, want 0", got)
	}
}

func TestHybridSwitchesOnRateLimit(t *testing.T) {
	f := newFixture(t, func(config *Config) { config.Transport.MaxRetries = 0 })
	var edits atomic.Int32
	f.backend.SetHandler(func(_ context.Context, call memory.Call) error {
		if call.Kind == memory.Edit && edits.Add(1) == 1 {
			return &chat.APIError{Code: chat.CodeRateLimited, StatusCode: 429, RetryAfter: time.Second}
		}
		return nil
	})
	session := f.start(t, SessionOptions{Mode: ModeHybrid})

	session.Append("Hello")
	f.waitCall(t, "create")
	waitIdle(session)

	session.Append(" world")
	edit := f.waitCall(t, "rate limited edit")
	reply := f.waitCall(t, "thread reply after the switch")
	if err := session.Finalize(context.Background()); err != nil {
		t.Fatalf("Finalize returned the absorbed rate limit: %v", err)
	}

	if edit.Kind != memory.Edit || edit.Text != "Hello world" {
		t.Errorf("edit = %+v", edit)
	}
	if reply.Kind != memory.Create || reply.ThreadID != "1" || reply.Text != " world" {
		t.Errorf("reply = %+v", reply)
	}
	if !session.ThreadModeActive() {
		t.Error("session did not switch to thread delivery")
	}
	if got := len(f.backend.Calls()); got != 3 {
		t.Errorf("calls = %d, want 3", got)
	}
}

func TestHybridRateLimitedCreateStartsThread(t *testing.T) {
	f := newFixture(t, func(config *Config) { config.Transport.MaxRetries = 0 })
	var creates atomic.Int32
	f.backend.SetHandler(func(_ context.Context, call memory.Call) error {
		if call.Kind == memory.Create && creates.Add(1) == 1 {
			return &chat.APIError{Code: chat.CodeRateLimited, StatusCode: 429, RetryAfter: time.Second}
		}
		return nil
	})
	session := f.start(t, SessionOptions{Mode: ModeHybrid})

	session.Append("Hello")
	limited := f.waitCall(t, "rate limited create")
	root := f.waitCall(t, "thread root after the switch")
	waitIdle(session)

	if limited.Kind != memory.Create || limited.Text != "Hello" {
		t.Errorf("rate limited call = %+v", limited)
	}
	if root.Kind != memory.Create || root.ThreadID != "" || root.Text != "Hello" {
		t.Errorf("root = %+v, want a new top-level message with the full text", root)
	}
	if !session.ThreadModeActive() {
		t.Fatal("session did not switch to thread delivery")
	}
	if got := session.ThreadID(); got != "1" {
		t.Errorf("ThreadID = %q, want the root message", got)
	}

	session.Append(" world")
	reply := f.waitCall(t, "thread reply")
	if err := session.Finalize(context.Background()); err != nil {
		t.Fatalf("Finalize returned the absorbed rate limit: %v", err)
	}
	if reply.Kind != memory.Create || reply.ThreadID != "1" || reply.Text != " world" {
		t.Errorf("reply = %+v", reply)
	}
	if got := len(f.backend.Edits()); got != 0 {
		t.Errorf("edits = %d, want 0", got)
	}
}

func TestHybridRateLimitSwitchDisabled(t *testing.T) {
	f := newFixture(t, func(config *Config) { config.Transport.MaxRetries = 0 })
	var edits atomic.Int32
	f.backend.SetHandler(func(_ context.Context, call memory.Call) error {
		if call.Kind == memory.Edit && edits.Add(1) == 1 {
			return &chat.APIError{Code: chat.CodeRateLimited, StatusCode: 429}
		}
		return nil
	})
	session := f.start(t, SessionOptions{Mode: ModeHybrid, DisableRateLimitSwitch: true})

	session.Append("Hello")
	f.waitCall(t, "create")
	waitIdle(session)
	session.Append(" world")
	f.waitCall(t, "rate limited edit")

	err := session.Finalize(context.Background())
	if !transport.IsRateLimited(err) {
		t.Fatalf("Finalize = %v, want the remembered rate limit", err)
	}
	if session.ThreadModeActive() {
		t.Error("switched to thread delivery with the switch disabled")
	}
	if text, _ := f.backend.Text("1"); text != "Hello world" {
		t.Errorf("message text = %q, want the final edit", text)
	}
}

func TestIgnoresAppendsAfterFinalize(t *testing.T) {
	f := newFixture(t, nil)
	session := f.start(t, SessionOptions{})

	session.Append("Hello")
	f.waitCall(t, "create")
	f.finalize(t, session)

	calls := len(f.backend.Calls())
	session.Append(" should be ignored")
	session.SetStatus("ignored")
	f.fake.Advance(20 * time.Millisecond)

	if got := len(f.backend.Calls()); got != calls {
		t.Errorf("calls after finalize = %d, want %d", got, calls)
	}
	if session.Text() != "Hello" {
		t.Errorf("Text = %q, buffer mutated after finalize", session.Text())
	}
	if err := session.Finalize(context.Background()); err != nil {
		t.Errorf("second Finalize = %v, want nil", err)
	}
	if !session.Closed() {
		t.Error("session not closed")
	}
}

func TestIgnoresAppendsAfterCancel(t *testing.T) {
	f := newFixture(t, nil)
	session := f.start(t, SessionOptions{})

	session.Append("Hello")
	f.waitCall(t, "create")
	session.Cancel()
	waitIdle(session)

	calls := len(f.backend.Calls())
	session.Append(" should be ignored")
	f.fake.Advance(20 * time.Millisecond)

	if got := len(f.backend.Calls()); got != calls {
		t.Errorf("calls after cancel = %d, want %d", got, calls)
	}
	if got := f.fake.PendingCount(); got != 0 {
		t.Errorf("PendingCount after cancel = %d, want 0", got)
	}
	if err := session.Finalize(context.Background()); err != nil {
		t.Errorf("Finalize after cancel = %v, want nil", err)
	}
}

func TestCancelDiscardsInFlightResult(t *testing.T) {
	f := newFixture(t, nil)
	release := make(chan struct{})
	f.backend.SetHandler(func(context.Context, memory.Call) error {
		<-release
		return nil
	})
	session := f.start(t, SessionOptions{})

	session.Append("Hello")
	f.waitCall(t, "blocked create")
	session.Cancel()
	close(release)
	waitIdle(session)

	if id := session.MessageID(); id != "" {
		t.Errorf("MessageID = %q after cancel, want the result discarded", id)
	}
}

func TestFailSetsStatusAndCloses(t *testing.T) {
	f := newFixture(t, nil)
	session := f.start(t, SessionOptions{})

	session.Append("Processing...")
	f.waitCall(t, "create")

	if err := session.Fail(context.Background(), "Something went wrong!"); err != nil {
		t.Fatalf("Fail: %v", err)
	}
	calls := f.backend.Calls()
	last := calls[len(calls)-1]
	if !strings.Contains(last.Text, "Something went wrong!") {
		t.Errorf("last text = %q, want the error status", last.Text)
	}
	if last.Text != "_Something went wrong!_\nProcessing..." {
		t.Errorf("last text = %q", last.Text)
	}

	session.Append("This should be ignored")
	f.fake.Advance(20 * time.Millisecond)
	if got := len(f.backend.Calls()); got != len(calls) {
		t.Errorf("calls after Fail = %d, want %d", got, len(calls))
	}
	if !session.Closed() {
		t.Error("session not closed after Fail")
	}
}

func TestUsesExistingThreadID(t *testing.T) {
	f := newFixture(t, nil)
	session := f.start(t, SessionOptions{ThreadID: "existing-thread-ts"})

	session.Append("Reply in thread")
	create := f.waitCall(t, "create")
	f.finalize(t, session)

	if create.ThreadID != "existing-thread-ts" {
		t.Errorf("ThreadID = %q", create.ThreadID)
	}
	if session.ThreadID() != "existing-thread-ts" {
		t.Errorf("session ThreadID = %q, want it kept", session.ThreadID())
	}
}

func TestClearsStatusOnFinalize(t *testing.T) {
	f := newFixture(t, nil)
	session := f.start(t, SessionOptions{})

	session.SetStatus("Thinking...")
	first := f.waitCall(t, "create with status")
	if !strings.HasPrefix(first.Text, "_Thinking..._\n") {
		t.Errorf("first text = %q, want the status line", first.Text)
	}
	session.Append("Hello")
	f.finalize(t, session)

	edits := f.backend.Edits()
	if len(edits) == 0 {
		t.Fatal("no edits")
	}
	if last := edits[len(edits)-1]; last.Text != "Hello" {
		t.Errorf("final text = %q, want %q", last.Text, "Hello")
	}
}

func TestEditSkipsUnchangedContent(t *testing.T) {
	f := newFixture(t, nil)
	session := f.start(t, SessionOptions{
		Scheduler: schedule(time.Hour, 1<<20),
	})
	ctx := context.Background()

	session.Append("Hello")
	if err := session.flush(ctx, false); err != nil {
		t.Fatalf("first flush: %v", err)
	}
	if err := session.flush(ctx, false); err != nil {
		t.Fatalf("second flush: %v", err)
	}
	if got := len(f.backend.Calls()); got != 1 {
		t.Fatalf("calls = %d, want 1 (unchanged content skipped)", got)
	}

	if err := session.flush(ctx, true); err != nil {
		t.Fatalf("forced flush: %v", err)
	}
	if got := len(f.backend.Edits()); got != 1 {
		t.Errorf("edits = %d, want 1 (forced flush resends)", got)
	}
}

func TestRotatingStatus(t *testing.T) {
	f := newFixture(t, nil)
	session := f.start(t, SessionOptions{})

	session.StartRotatingStatus(statusline.Config{Messages: []string{"A", "B"}, Interval: time.Second})
	if first := f.waitCall(t, "first status"); first.Text != "_A_\n" {
		t.Errorf("first = %q", first.Text)
	}
	waitIdle(session)

	f.fake.Advance(time.Second)
	if second := f.waitCall(t, "second status"); second.Kind != memory.Edit || second.Text != "_B_\n" {
		t.Errorf("second = %+v", second)
	}
	waitIdle(session)

	session.ClearStatus()
	waitIdle(session)
	f.fake.Advance(5 * time.Second)
	// With the status gone the message would be empty, so nothing is sent.
	testutil.RequireNoReceive(t, f.backend.Notify(), "status rotated after ClearStatus")

	session.Append("done")
	f.finalize(t, session)
	edits := f.backend.Edits()
	if last := edits[len(edits)-1]; last.Text != "done" {
		t.Errorf("final text = %q", last.Text)
	}
}

func TestLateRotationTickAfterClearStatusIsDropped(t *testing.T) {
	for _, test := range []struct {
		name string
		stop func(*Session)
	}{
		{"ClearStatus", (*Session).ClearStatus},
		{"StopRotatingStatus", (*Session).StopRotatingStatus},
	} {
		t.Run(test.name, func(t *testing.T) {
			f := newFixture(t, nil)
			session := f.start(t, SessionOptions{})
			session.Append("text")
			f.waitCall(t, "create")
			waitIdle(session)

			session.StartRotatingStatus(statusline.Config{Messages: []string{"A", "B"}, Interval: time.Second})
			f.waitCall(t, "first status")
			waitIdle(session)

			session.mu.Lock()
			rotator := session.rotator
			before, _ := session.buffer.Status()
			session.mu.Unlock()

			// A tick that picked "B" before the rotation stopped
			// delivers it only afterwards.
			test.stop(session)
			waitIdle(session)
			session.rotatedStatus(rotator, "B")

			session.mu.Lock()
			status, set := session.buffer.Status()
			session.mu.Unlock()
			if test.name == "ClearStatus" && set {
				t.Errorf("status = %q after ClearStatus, want none", status)
			}
			if test.name == "StopRotatingStatus" && status != before {
				t.Errorf("status = %q after StopRotatingStatus, want %q kept", status, before)
			}

			f.finalize(t, session)
			edits := f.backend.Edits()
			for _, edit := range edits {
				if strings.Contains(edit.Text, "_B_") {
					t.Errorf("late tick reached the message: %q", edit.Text)
				}
			}
		})
	}
}

func TestStartRotatingStatusReplacesPrevious(t *testing.T) {
	f := newFixture(t, nil)
	session := f.start(t, SessionOptions{})

	session.StartRotatingStatus(statusline.Config{Messages: []string{"old"}, Interval: time.Second})
	session.StartRotatingStatus(statusline.Config{Messages: []string{"new"}, Interval: time.Second})
	// Scheduler poll plus exactly one rotator tick.
	if got := f.fake.PendingCount(); got != 2 {
		t.Errorf("PendingCount = %d, want 2", got)
	}
	session.StopRotatingStatus()
	if got := f.fake.PendingCount(); got != 1 {
		t.Errorf("PendingCount after stop = %d, want 1", got)
	}
}

func TestFinalizeReturnsFinalFlushError(t *testing.T) {
	f := newFixture(t, nil)
	f.backend.SetHandler(func(context.Context, memory.Call) error {
		return &chat.APIError{Code: chat.CodeChannelNotFound, Message: "channel_not_found"}
	})
	session := f.start(t, SessionOptions{Channel: "C404"})

	session.Append("Hello")
	f.waitCall(t, "failing create")

	err := session.Finalize(context.Background())
	if !chat.IsCode(err, chat.CodeChannelNotFound) {
		t.Fatalf("Finalize = %v, want channel_not_found", err)
	}
	if !errors.Is(session.LastError(), err) {
		t.Errorf("LastError = %v, want %v", session.LastError(), err)
	}
	if !session.Closed() {
		t.Error("failed Finalize left the session open")
	}
}

func TestFinalizeReturnsRememberedError(t *testing.T) {
	f := newFixture(t, nil)
	var calls atomic.Int32
	f.backend.SetHandler(func(context.Context, memory.Call) error {
		if calls.Add(1) == 1 {
			return &chat.APIError{StatusCode: 400, Code: "invalid_blocks"}
		}
		return nil
	})
	session := f.start(t, SessionOptions{})

	session.Append("Hello")
	f.waitCall(t, "failing create")
	err := session.Finalize(context.Background())
	if !chat.IsCode(err, "invalid_blocks") {
		t.Fatalf("Finalize = %v, want the earlier error", err)
	}
	if text, ok := f.backend.Text("1"); !ok || text != "Hello" {
		t.Errorf("final flush did not deliver: %q %v", text, ok)
	}
}

func TestFlushesNeverOverlap(t *testing.T) {
	f := newFixture(t, nil)
	var active, maxActive atomic.Int32
	f.backend.SetHandler(func(context.Context, memory.Call) error {
		current := active.Add(1)
		defer active.Add(-1)
		for {
			previous := maxActive.Load()
			if current <= previous || maxActive.CompareAndSwap(previous, current) {
				break
			}
		}
		runtime.Gosched()
		return nil
	})
	session := f.start(t, SessionOptions{})

	for i := range 50 {
		session.Append("x")
		if i%10 == 0 {
			session.SetStatus("step")
		}
		f.fake.Advance(10 * time.Millisecond)
	}
	f.finalize(t, session)

	if got := maxActive.Load(); got != 1 {
		t.Errorf("max concurrent remote calls = %d, want 1", got)
	}
	if text, _ := f.backend.Text("1"); text != strings.Repeat("x", 50) {
		t.Errorf("final text = %q", text)
	}
}
