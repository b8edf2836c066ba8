// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package chat

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Normalized error codes. Backends translate their native codes into
// this vocabulary.
const (
	CodeRateLimited = "ratelimited"

	CodeInvalidAuth      = "invalid_auth"
	CodeNotAuthed        = "not_authed"
	CodeTokenRevoked     = "token_revoked"
	CodeAccountInactive  = "account_inactive"
	CodeMissingScope     = "missing_scope"
	CodeInvalidArguments = "invalid_arguments"
	CodeInvalidArgName   = "invalid_arg_name"
	CodeInvalidArgValue  = "invalid_arg_value"
	CodeChannelNotFound  = "channel_not_found"
	CodeNotInChannel     = "not_in_channel"
	CodeRestrictedAction = "restricted_action"
	CodeInvalidArrayArg  = "invalid_array_arg"
	CodeInvalidCharset   = "invalid_charset"
	CodeMessageTooLong   = "msg_too_long"
)

// APIError is a failure reported by the remote service. Callers use
// errors.As to inspect it:
//
//	var apiErr *chat.APIError
//	if errors.As(err, &apiErr) && apiErr.Code == chat.CodeChannelNotFound { ... }
type APIError struct {
	// Code is the normalized error code. Empty when the service gave
	// none (a bare HTTP failure).
	Code string

	// BackendCode is the service's own error code, e.g. "M_FORBIDDEN".
	BackendCode string

	// Message is the human-readable description from the service.
	Message string

	// StatusCode is the HTTP status, or zero when the service reported
	// the error inside a successful response.
	StatusCode int

	// RetryAfter is the delay the service asked for before retrying.
	// Zero when absent.
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	var builder strings.Builder
	builder.WriteString("chat: ")
	switch {
	case e.Code != "":
		builder.WriteString(e.Code)
	case e.BackendCode != "":
		builder.WriteString(e.BackendCode)
	default:
		builder.WriteString("request failed")
	}
	if e.StatusCode != 0 {
		fmt.Fprintf(&builder, " (HTTP %d)", e.StatusCode)
	}
	if e.Message != "" && e.Message != e.Code {
		builder.WriteString(": ")
		builder.WriteString(e.Message)
	}
	return builder.String()
}

// IsCode reports whether err is an *APIError with the given normalized
// code.
func IsCode(err error, code string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}

// StatusCode returns the HTTP status of an *APIError in err's chain, or
// zero.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// RetryAfter returns the server-requested delay of an *APIError in
// err's chain, or zero.
func RetryAfter(err error) time.Duration {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.RetryAfter
	}
	return 0
}

// IsRateLimited reports whether err is a rate-limit response: HTTP 429
// or the normalized "ratelimited" code.
func IsRateLimited(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.StatusCode == http.StatusTooManyRequests || apiErr.Code == CodeRateLimited
}
