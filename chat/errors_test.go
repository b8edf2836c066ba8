// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package chat

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestAPIErrorMessage(t *testing.T) {
	tests := []struct {
		name string
		err  *APIError
		want string
	}{
		{
			name: "normalized code with status",
			err:  &APIError{Code: CodeRateLimited, StatusCode: 429, Message: "slow down"},
			want: "chat: ratelimited (HTTP 429): slow down",
		},
		{
			name: "code only",
			err:  &APIError{Code: CodeChannelNotFound, Message: CodeChannelNotFound},
			want: "chat: channel_not_found",
		},
		{
			name: "backend code fallback",
			err:  &APIError{BackendCode: "M_UNKNOWN", StatusCode: 400, Message: "bad"},
			want: "chat: M_UNKNOWN (HTTP 400): bad",
		},
		{
			name: "bare status",
			err:  &APIError{StatusCode: 502},
			want: "chat: request failed (HTTP 502)",
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := test.err.Error(); got != test.want {
				t.Errorf("Error() = %q, want %q", got, test.want)
			}
		})
	}
}

func TestErrorHelpersSeeThroughWrapping(t *testing.T) {
	base := &APIError{Code: CodeRateLimited, StatusCode: 429, RetryAfter: 3 * time.Second}
	wrapped := fmt.Errorf("posting: %w", base)

	if !IsCode(wrapped, CodeRateLimited) {
		t.Error("IsCode did not unwrap")
	}
	if got := StatusCode(wrapped); got != 429 {
		t.Errorf("StatusCode = %d, want 429", got)
	}
	if got := RetryAfter(wrapped); got != 3*time.Second {
		t.Errorf("RetryAfter = %v, want 3s", got)
	}
	if !IsRateLimited(wrapped) {
		t.Error("IsRateLimited = false for wrapped 429")
	}
}

func TestIsRateLimited(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"429 status", &APIError{StatusCode: 429}, true},
		{"ratelimited code", &APIError{Code: CodeRateLimited}, true},
		{"fatal code", &APIError{Code: CodeChannelNotFound}, false},
		{"plain error", errors.New("ratelimited"), false},
		{"nil", nil, false},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := IsRateLimited(test.err); got != test.want {
				t.Errorf("IsRateLimited = %v, want %v", got, test.want)
			}
		})
	}
}
