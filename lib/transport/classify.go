// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"errors"
	"net/http"

	"github.com/bureau-foundation/textstream/chat"
	"github.com/bureau-foundation/textstream/lib/netutil"
)

// Class is the retry category of an error.
type Class int

const (
	// ClassNone is the class of a nil error.
	ClassNone Class = iota
	ClassRateLimited
	ClassFatal
	ClassTransient
	ClassOther
)

func (c Class) String() string {
	switch c {
	case ClassNone:
		return "none"
	case ClassRateLimited:
		return "rate_limited"
	case ClassFatal:
		return "fatal"
	case ClassTransient:
		return "transient"
	default:
		return "other"
	}
}

// fatalCodes are the normalized codes that no retry can fix.
var fatalCodes = map[string]struct{}{
	chat.CodeInvalidAuth:      {},
	chat.CodeNotAuthed:        {},
	chat.CodeTokenRevoked:     {},
	chat.CodeAccountInactive:  {},
	chat.CodeMissingScope:     {},
	chat.CodeInvalidArguments: {},
	chat.CodeInvalidArgName:   {},
	chat.CodeInvalidArgValue:  {},
	chat.CodeChannelNotFound:  {},
	chat.CodeNotInChannel:     {},
	chat.CodeRestrictedAction: {},
	chat.CodeInvalidArrayArg:  {},
	chat.CodeInvalidCharset:   {},
	chat.CodeMessageTooLong:   {},
}

// IsFatalCode reports whether code is in the fatal catalog.
func IsFatalCode(code string) bool {
	_, fatal := fatalCodes[code]
	return fatal
}

// Classify returns the retry class of err. Rate limiting is checked
// first, so a 429 carrying a fatal code still counts as rate limited.
func Classify(err error) Class {
	switch {
	case err == nil:
		return ClassNone
	case IsRateLimited(err):
		return ClassRateLimited
	case IsFatal(err):
		return ClassFatal
	case IsTransient(err):
		return ClassTransient
	default:
		return ClassOther
	}
}

// IsRateLimited reports whether err is a rate-limit rejection.
func IsRateLimited(err error) bool {
	return chat.IsRateLimited(err)
}

// IsFatal reports whether err carries a code from the fatal catalog.
func IsFatal(err error) bool {
	var apiErr *chat.APIError
	return errors.As(err, &apiErr) && IsFatalCode(apiErr.Code)
}

// IsTransient reports whether err is a server-side failure (HTTP 5xx)
// or a network failure.
func IsTransient(err error) bool {
	if chat.StatusCode(err) >= http.StatusInternalServerError {
		return true
	}
	return netutil.IsNetworkFailure(err)
}
