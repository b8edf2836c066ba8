// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package version provides build version information for the
// textstream binary.
//
// Release builds inject the commit, dirty flag and build time with
// -ldflags -X, for example:
//
//	go build -ldflags "-X github.com/bureau-foundation/textstream/lib/version.GitCommit=$(git rev-parse --short HEAD)"
//
// Without them, [Current] falls back to the vcs.* settings the go
// command embeds in the binary. [Info] formats the result for
// --version; [Full] adds the Go version and GOOS/GOARCH.
package version
