// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package matrix

import (
	"fmt"
	"time"

	"github.com/bureau-foundation/textstream/chat"
)

// Matrix error codes this backend understands.
const (
	ErrCodeForbidden       = "M_FORBIDDEN"
	ErrCodeUnknownToken    = "M_UNKNOWN_TOKEN"
	ErrCodeMissingToken    = "M_MISSING_TOKEN"
	ErrCodeUserDeactivated = "M_USER_DEACTIVATED"
	ErrCodeNotFound        = "M_NOT_FOUND"
	ErrCodeLimitExceeded   = "M_LIMIT_EXCEEDED"
	ErrCodeBadJSON         = "M_BAD_JSON"
	ErrCodeNotJSON         = "M_NOT_JSON"
	ErrCodeInvalidParam    = "M_INVALID_PARAM"
	ErrCodeMissingParam    = "M_MISSING_PARAM"
	ErrCodeTooLarge        = "M_TOO_LARGE"
	ErrCodeUnknown         = "M_UNKNOWN"
)

// normalizedCodes maps Matrix error codes to chat's vocabulary. Codes
// not listed keep an empty normalized code and are classified by HTTP
// status alone.
var normalizedCodes = map[string]string{
	ErrCodeLimitExceeded:   chat.CodeRateLimited,
	ErrCodeUnknownToken:    chat.CodeInvalidAuth,
	ErrCodeMissingToken:    chat.CodeNotAuthed,
	ErrCodeUserDeactivated: chat.CodeAccountInactive,
	ErrCodeForbidden:       chat.CodeRestrictedAction,
	ErrCodeNotFound:        chat.CodeChannelNotFound,
	ErrCodeBadJSON:         chat.CodeInvalidArguments,
	ErrCodeNotJSON:         chat.CodeInvalidArguments,
	ErrCodeInvalidParam:    chat.CodeInvalidArguments,
	ErrCodeMissingParam:    chat.CodeInvalidArguments,
	ErrCodeTooLarge:        chat.CodeMessageTooLong,
}

// errorResponse is the JSON body of every Matrix error response.
type errorResponse struct {
	Code         string `json:"errcode"`
	Message      string `json:"error"`
	RetryAfterMS int64  `json:"retry_after_ms"`
}

// apiError converts a decoded error body into a *chat.APIError. The
// body's retry_after_ms wins over the Retry-After header.
func (response errorResponse) apiError(statusCode int, headerRetryAfter time.Duration) *chat.APIError {
	retryAfter := headerRetryAfter
	if response.RetryAfterMS > 0 {
		retryAfter = time.Duration(response.RetryAfterMS) * time.Millisecond
	}
	message := response.Message
	if message == "" {
		message = fmt.Sprintf("%s with no description", response.Code)
	}
	return &chat.APIError{
		Code:        normalizedCodes[response.Code],
		BackendCode: response.Code,
		Message:     message,
		StatusCode:  statusCode,
		RetryAfter:  retryAfter,
	}
}
