// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package recovery

import (
	"strings"
	"testing"
)

func TestBuildFallback_Defaults(t *testing.T) {
	rec := BuildFallback("completely unstructured text")

	if !rec.Degraded() {
		t.Error("fallback record must be degraded")
	}
	if errMark, _ := rec.GetString("error"); errMark != "json_parsing_failed" {
		t.Errorf("error marker = %q, want json_parsing_failed", errMark)
	}
	if conf, _ := rec.GetFloat("confidence"); conf != 0.0 {
		t.Errorf("default confidence = %v, want 0.0", conf)
	}
	for _, key := range []string{"has_candidate_solution", "requires_causal_analysis", "requires_metacognition", "verification_passed", "should_revise"} {
		if _, ok := rec.GetBool(key); !ok {
			t.Errorf("missing boolean default %q", key)
		}
	}
	if raw, _ := rec.GetString("original_response"); raw != "completely unstructured text" {
		t.Errorf("original_response = %q", raw)
	}
}

func TestBuildFallback_TruncatesRawText(t *testing.T) {
	long := strings.Repeat("x", 2000)
	rec := BuildFallback(long)
	raw, _ := rec.GetString("original_response")
	if len(raw) != rawTextLimit {
		t.Errorf("raw text length = %d, want %d", len(raw), rawTextLimit)
	}
}

func TestBuildFallback_RegexRecovery(t *testing.T) {
	raw := `The model said: confidence: 0.85 and "solution": "use the short path" but broke the format.`
	rec := BuildFallback(raw)

	if conf, _ := rec.GetFloat("confidence"); conf != 0.85 {
		t.Errorf("recovered confidence = %v, want 0.85", conf)
	}
	if sol, _ := rec.GetString("solution"); sol != "use the short path" {
		t.Errorf("recovered solution = %q", sol)
	}
	if has, _ := rec.GetBool("has_candidate_solution"); !has {
		t.Error("has_candidate_solution should be true after solution recovery")
	}
}

func TestBuildFallback_IgnoresOutOfRangeConfidence(t *testing.T) {
	rec := BuildFallback("confidence: 42.5 nonsense")
	if conf, _ := rec.GetFloat("confidence"); conf != 0.0 {
		t.Errorf("out-of-range confidence accepted: %v", conf)
	}
}

func TestBuildFallback_EmptyInput(t *testing.T) {
	rec := BuildFallback("")
	if rec == nil {
		t.Fatal("BuildFallback must never return nil")
	}
	if !rec.Degraded() {
		t.Error("empty-input fallback must be degraded")
	}
}
