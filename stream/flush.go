// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package stream

import (
	"context"

	"github.com/bureau-foundation/textstream/chat"
	"github.com/bureau-foundation/textstream/lib/textbuffer"
	"github.com/bureau-foundation/textstream/lib/transport"
)

// scheduledFlush is the scheduler's Flush callback. It runs on the
// scheduler's flush goroutine and blocks until its link of the chain
// completes.
func (s *Session) scheduledFlush(force bool) error {
	result := s.enqueueFlush(s.ctx, force, false)
	<-result.done
	return result.err
}

// enqueueFlush appends a flush to the chain. The flush starts once
// every earlier flush has finished, whatever their outcome. A closing
// flush marks the session closed before the next link may start, so
// nothing queued behind it reaches the transport.
func (s *Session) enqueueFlush(ctx context.Context, force, closing bool) *flushResult {
	result := &flushResult{done: make(chan struct{})}

	s.mu.Lock()
	previous := s.tail
	s.tail = result.done
	s.mu.Unlock()

	go func() {
		defer close(result.done)
		if previous != nil {
			<-previous
		}
		result.err = s.flush(ctx, force)

		s.mu.Lock()
		if result.err != nil {
			s.lastError = result.err
		}
		if closing {
			s.closed = true
		}
		s.mu.Unlock()

		if result.err != nil {
			s.logger.Warn("flush failed", "force", force, "error", result.err)
		}
	}()
	return result
}

// flush reconciles the remote message with the buffer once.
func (s *Session) flush(ctx context.Context, force bool) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	if !force && s.buffer.Size() == 0 {
		s.mu.Unlock()
		return nil
	}
	if s.mode == ModeHybrid && !s.threadModeActive && s.buffer.Size() >= s.switchChars {
		s.switchToThreadLocked("size")
	}
	threaded := s.threadModeActive || s.mode == ModeThread
	s.mu.Unlock()

	if threaded {
		return s.flushThread(ctx, force)
	}

	err := s.flushEdit(ctx, force)
	if err != nil && s.mode == ModeHybrid && s.switchOn429 && transport.IsRateLimited(err) {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return nil
		}
		s.switchToThreadLocked("rate_limited")
		s.mu.Unlock()
		return s.flushThread(ctx, true)
	}
	return err
}

// switchToThreadLocked moves a hybrid session to thread delivery for
// good. The edited message becomes the thread root unless the session
// already has a thread, and the text it shows becomes the baseline for
// the first reply.
func (s *Session) switchToThreadLocked(reason string) {
	s.threadModeActive = true
	if s.threadID == "" && s.messageID != "" {
		s.threadID = s.messageID
	}
	s.lastSentText = s.lastSentBody
	s.logger.Info("switching to thread delivery",
		"reason", reason,
		"thread_id", s.threadID,
		"size", s.buffer.Size(),
	)
}

// flushEdit creates the message on first use and edits it afterwards,
// always with the status line applied.
func (s *Session) flushEdit(ctx context.Context, force bool) error {
	s.mu.Lock()
	rendered := s.buffer.Render()
	body := s.buffer.Text()
	if (rendered == s.lastSentText && !force) || rendered == "" {
		s.mu.Unlock()
		return nil
	}
	messageID := s.messageID
	threadID := s.threadID
	s.mu.Unlock()

	if messageID == "" {
		ref, err := s.transport.PostMessage(ctx, chat.PostRequest{
			Channel:  s.channel,
			Text:     rendered,
			ThreadID: threadID,
		})
		if err != nil {
			return err
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		if s.closed {
			return nil
		}
		s.messageID = ref.ID
		if s.threadID == "" {
			s.threadID = ref.ID
		}
		s.lastSentText = rendered
		s.lastSentBody = body
		s.logger.Debug("message created", "message_id", ref.ID)
		return nil
	}

	if _, err := s.transport.UpdateMessage(ctx, chat.UpdateRequest{
		Channel:   s.channel,
		MessageID: messageID,
		Text:      rendered,
	}); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.lastSentText = rendered
	s.lastSentBody = body
	return nil
}

// flushThread posts the root message on first use and the unsent
// suffix of the text as a thread reply afterwards. The status line is
// never sent in thread delivery.
func (s *Session) flushThread(ctx context.Context, force bool) error {
	s.mu.Lock()
	text := s.buffer.Text()
	if text == s.lastSentText && !force {
		s.mu.Unlock()
		return nil
	}

	if s.threadID == "" {
		s.mu.Unlock()
		if text == "" {
			return nil
		}
		ref, err := s.transport.PostMessage(ctx, chat.PostRequest{Channel: s.channel, Text: text})
		if err != nil {
			return err
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		if s.closed {
			return nil
		}
		s.threadID = ref.ID
		s.messageID = ref.ID
		s.lastSentText = text
		s.lastSentBody = text
		s.logger.Debug("thread root created", "thread_id", ref.ID)
		return nil
	}

	diff := textbuffer.DiffAppend(s.lastSentText, text)
	threadID := s.threadID
	s.mu.Unlock()
	if diff == "" {
		return nil
	}

	if _, err := s.transport.PostMessage(ctx, chat.PostRequest{
		Channel:  s.channel,
		Text:     diff,
		ThreadID: threadID,
	}); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.lastSentText = text
	s.lastSentBody = text
	return nil
}
