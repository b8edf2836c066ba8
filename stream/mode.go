// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package stream

import (
	"fmt"
	"strings"
)

// Mode selects how a session delivers text.
type Mode int

const (
	ModeEdit Mode = iota
	ModeThread
	ModeHybrid
)

func (m Mode) String() string {
	switch m {
	case ModeEdit:
		return "edit"
	case ModeThread:
		return "thread"
	case ModeHybrid:
		return "hybrid"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode parses "edit", "thread" or "hybrid". Empty means ModeEdit.
func ParseMode(value string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "edit":
		return ModeEdit, nil
	case "thread":
		return ModeThread, nil
	case "hybrid":
		return ModeHybrid, nil
	default:
		return ModeEdit, fmt.Errorf("unknown mode %q (want edit, thread or hybrid)", value)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (m Mode) MarshalText() ([]byte, error) {
	if m < ModeEdit || m > ModeHybrid {
		return nil, fmt.Errorf("unknown mode %d", int(m))
	}
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler, so modes can be
// written by name in configuration files.
func (m *Mode) UnmarshalText(text []byte) error {
	parsed, err := ParseMode(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
