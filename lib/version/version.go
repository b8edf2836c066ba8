// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Set via -ldflags -X at build time. Empty means "not injected".
var (
	GitCommit = ""
	GitDirty  = ""
	BuildTime = ""

	// Version is the semantic version, set manually for releases.
	Version = "0.1.0-dev"
)

// Build describes the running binary.
type Build struct {
	Version string
	Commit  string
	Dirty   bool
	Time    string
}

// Current returns the build description. Values injected with -ldflags
// win; otherwise the VCS stamps the go command embeds are used, so a
// plain "go install" still reports its commit.
func Current() Build {
	return resolve(GitCommit, GitDirty, BuildTime, debug.ReadBuildInfo)
}

func resolve(commit, dirty, buildTime string, readBuildInfo func() (*debug.BuildInfo, bool)) Build {
	build := Build{
		Version: Version,
		Commit:  commit,
		Dirty:   dirty == "true",
		Time:    buildTime,
	}
	if info, ok := readBuildInfo(); ok {
		for _, setting := range info.Settings {
			switch setting.Key {
			case "vcs.revision":
				if build.Commit == "" {
					build.Commit = shortRevision(setting.Value)
				}
			case "vcs.time":
				if build.Time == "" {
					build.Time = setting.Value
				}
			case "vcs.modified":
				if dirty == "" {
					build.Dirty = setting.Value == "true"
				}
			}
		}
	}
	if build.Commit == "" {
		build.Commit = "unknown"
	}
	if build.Time == "" {
		build.Time = "unknown"
	}
	return build
}

func shortRevision(revision string) string {
	if len(revision) > 7 {
		return revision[:7]
	}
	return revision
}

// String formats the build for --version output:
// "0.1.0-dev (abc1234-dirty, 2026-01-01T00:00:00Z)".
func (b Build) String() string {
	dirty := ""
	if b.Dirty {
		dirty = "-dirty"
	}
	return fmt.Sprintf("%s (%s%s, %s)", b.Version, b.Commit, dirty, b.Time)
}

// Info returns Current formatted for --version output.
func Info() string {
	return Current().String()
}

// Full returns Info plus the Go version and platform.
func Full() string {
	return fmt.Sprintf("%s\n  Go: %s\n  Platform: %s/%s",
		Info(), runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
