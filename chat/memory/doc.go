// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package memory is an in-process chat.Backend. It records every call,
// keeps the latest text of each message, and lets tests inject failures
// or block calls through a Handler. The textstream CLI uses it for dry
// runs.
package memory
