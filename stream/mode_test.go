// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package stream

import "testing"

func TestParseMode(t *testing.T) {
	tests := []struct {
		input   string
		want    Mode
		wantErr bool
	}{
		{"edit", ModeEdit, false},
		{"thread", ModeThread, false},
		{"hybrid", ModeHybrid, false},
		{"", ModeEdit, false},
		{" Hybrid ", ModeHybrid, false},
		{"stream", ModeEdit, true},
	}
	for _, test := range tests {
		got, err := ParseMode(test.input)
		if (err != nil) != test.wantErr {
			t.Errorf("ParseMode(%q) error = %v, wantErr %v", test.input, err, test.wantErr)
			continue
		}
		if !test.wantErr && got != test.want {
			t.Errorf("ParseMode(%q) = %v, want %v", test.input, got, test.want)
		}
	}
}

func TestModeTextRoundTrip(t *testing.T) {
	for _, mode := range []Mode{ModeEdit, ModeThread, ModeHybrid} {
		text, err := mode.MarshalText()
		if err != nil {
			t.Fatalf("%v.MarshalText: %v", mode, err)
		}
		var decoded Mode
		if err := decoded.UnmarshalText(text); err != nil {
			t.Fatalf("UnmarshalText(%q): %v", text, err)
		}
		if decoded != mode {
			t.Errorf("round trip of %v gave %v", mode, decoded)
		}
	}
	if _, err := Mode(9).MarshalText(); err == nil {
		t.Error("MarshalText of an unknown mode succeeded")
	}
}
