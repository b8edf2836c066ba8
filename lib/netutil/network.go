// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package netutil

import (
	"context"
	"errors"
	"io"
	"net"

	"golang.org/x/sys/unix"
)

// IsNetworkFailure reports whether err means the request did not get a
// response from the server: a timeout, a refused, reset or aborted
// connection, an unreachable network, or a failed DNS lookup.
//
// Context cancellation is not a network failure even though the HTTP
// client reports it through a *url.Error; the caller asked to stop.
func IsNetworkFailure(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var errno unix.Errno
	if errors.As(err, &errno) {
		switch errno {
		case unix.ETIMEDOUT, unix.ECONNRESET, unix.ECONNREFUSED, unix.ECONNABORTED,
			unix.EPIPE, unix.ENETUNREACH, unix.EHOSTUNREACH, unix.ENETDOWN:
			return true
		}
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	// A server that closes the connection mid-response surfaces as an
	// unexpected EOF from the HTTP client.
	return errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, context.DeadlineExceeded)
}
