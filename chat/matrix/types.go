// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package matrix

// MessageContent is the content of an m.room.message event.
type MessageContent struct {
	MsgType       string          `json:"msgtype"`
	Body          string          `json:"body"`
	Format        string          `json:"format,omitempty"`
	FormattedBody string          `json:"formatted_body,omitempty"`
	NewContent    *MessageContent `json:"m.new_content,omitempty"`
	RelatesTo     *RelatesTo      `json:"m.relates_to,omitempty"`
}

// RelatesTo expresses a relationship to another event: a thread
// (RelType "m.thread") or a replacement (RelType "m.replace").
type RelatesTo struct {
	RelType       string     `json:"rel_type"`
	EventID       string     `json:"event_id"`
	IsFallingBack bool       `json:"is_falling_back,omitempty"`
	InReplyTo     *InReplyTo `json:"m.in_reply_to,omitempty"`
}

// InReplyTo references the event a message replies to.
type InReplyTo struct {
	EventID string `json:"event_id"`
}

const (
	msgTypeText = "m.text"
	formatHTML  = "org.matrix.custom.html"

	relThread  = "m.thread"
	relReplace = "m.replace"
)

// newTextMessage creates a top-level text message.
func newTextMessage(body string) MessageContent {
	return withFormattedBody(MessageContent{MsgType: msgTypeText, Body: body})
}

// newThreadReply creates a message inside the thread rooted at
// threadRootID.
func newThreadReply(threadRootID, body string) MessageContent {
	content := newTextMessage(body)
	content.RelatesTo = &RelatesTo{
		RelType:       relThread,
		EventID:       threadRootID,
		IsFallingBack: true,
		InReplyTo:     &InReplyTo{EventID: threadRootID},
	}
	return content
}

// newReplacement creates an edit of eventID whose new text is body.
func newReplacement(eventID, body string) MessageContent {
	replacement := newTextMessage(body)
	fallback := MessageContent{
		MsgType:    msgTypeText,
		Body:       "* " + body,
		NewContent: &replacement,
		RelatesTo:  &RelatesTo{RelType: relReplace, EventID: eventID},
	}
	if replacement.FormattedBody != "" {
		fallback.Format = formatHTML
		fallback.FormattedBody = "* " + replacement.FormattedBody
	}
	return fallback
}

// sendEventResponse is the body of a successful send.
type sendEventResponse struct {
	EventID string `json:"event_id"`
}
