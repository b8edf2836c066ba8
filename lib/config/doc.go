// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for textstream.
//
// Configuration is loaded from a single file specified by either the
// TEXTSTREAM_CONFIG environment variable (via [Load]) or a --config
// flag (via [LoadFile]). There is no automatic file search. The format
// follows the file extension: YAML, TOML, or JSON with comments.
//
// The file may contain environment-specific sections (development,
// staging, production) that override base values when
// [Config].Environment matches. Production defaults to JSON logs.
//
// Backend settings are expanded after loading: ${VAR} and
// ${VAR:-default} read the process environment, which is how tokens
// stay out of the file. No other environment variables override
// config values.
//
// Key exports:
//
//   - [Config] -- master struct with Backend, Scheduler, Transport,
//     Session, Status, Logging
//   - [Default] -- returns a Config with development defaults
//   - [Load] and [LoadFile] -- the two entry points for loading
//   - [Duration] -- a time.Duration written as "500ms" in any format
//
// Each section converts to the options of the package it configures,
// for example [SchedulerConfig.Config].
package config
