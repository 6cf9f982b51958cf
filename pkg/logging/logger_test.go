// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestLogger_WriterOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: LevelDebug, Writer: &buf, JSON: true, Quiet: true, Service: "test"})

	logger.Info("recovery attempt", "attempt", 1, "ok", true)

	line := strings.TrimSpace(buf.String())
	if line == "" {
		t.Fatal("expected a log line")
	}

	var entry map[string]any
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if entry["msg"] != "recovery attempt" {
		t.Errorf("expected msg 'recovery attempt', got %v", entry["msg"])
	}
	if entry["service"] != "test" {
		t.Errorf("expected service attribute, got %v", entry["service"])
	}
	if entry["attempt"] != float64(1) {
		t.Errorf("expected attempt=1, got %v", entry["attempt"])
	}
}

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: LevelWarn, Writer: &buf, Quiet: true})

	logger.Debug("dropped")
	logger.Info("dropped")
	logger.Warn("kept")
	logger.Error("kept")

	lines := strings.Count(strings.TrimSpace(buf.String()), "\n") + 1
	if lines != 2 {
		t.Errorf("expected 2 log lines, got %d: %q", lines, buf.String())
	}
}

func TestLogger_With(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: LevelInfo, Writer: &buf, JSON: true, Quiet: true})

	child := logger.With("run_id", "abc123")
	child.Info("stage complete")

	if !strings.Contains(buf.String(), "abc123") {
		t.Errorf("expected child attribute in output, got %q", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name string
		want Level
	}{
		{"debug", LevelDebug},
		{"DEBUG", LevelDebug},
		{"info", LevelInfo},
		{"warn", LevelWarn},
		{"warning", LevelWarn},
		{"Error", LevelError},
		{" info ", LevelInfo},
		{"", LevelInfo},
		{"verbose", LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.name); got != tt.want {
			t.Errorf("ParseLevel(%q) = %s, want %s", tt.name, got, tt.want)
		}
	}
}

func TestParseLevel_ConfiguresLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: ParseLevel("error"), Writer: &buf, Quiet: true})

	logger.Warn("dropped")
	logger.Error("kept")

	out := buf.String()
	if strings.Contains(out, "dropped") {
		t.Errorf("warn message survived error-level filter: %q", out)
	}
	if !strings.Contains(out, "kept") {
		t.Errorf("error message missing: %q", out)
	}
}

func TestLogger_Discard(t *testing.T) {
	// Must not panic and must accept all levels.
	logger := Discard()
	logger.Debug("a")
	logger.Info("b")
	logger.Warn("c")
	logger.Error("d")
}
