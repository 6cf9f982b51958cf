// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package recovery

import (
	"regexp"
	"strconv"
)

// rawTextLimit bounds how much of the raw response a fallback record keeps.
const rawTextLimit = 500

var (
	fallbackConfidenceRe = regexp.MustCompile(`(?i)["']?confidence["']?\s*[:=]\s*([0-9]*\.?[0-9]+)`)
	fallbackSolutionRe   = regexp.MustCompile(`(?i)["']?solution["']?\s*[:=]\s*["']((?:[^"'\\]|\\.)+)["']`)
)

// BuildFallback constructs a degraded best-effort Record from raw generator
// output after every extraction strategy has failed.
//
// Description:
//
//	The record carries conservative defaults for every field a pipeline
//	stage might require: booleans false, scores zero, an explicit error
//	marker, and a bounded prefix of the raw text for debugging. A regex
//	pass then recovers a confidence-like number and a solution-like string
//	from the raw text, overwriting the defaults only when found.
//
//	This function cannot fail; it has no failure path.
func BuildFallback(rawText string) Record {
	raw := rawText
	if len(raw) > rawTextLimit {
		raw = raw[:rawTextLimit]
	}

	rec := Record{
		"error":                    "json_parsing_failed",
		"original_response":        raw,
		"solution":                 "",
		"confidence":               0.0,
		"reasoning_steps":          []any{},
		"has_candidate_solution":   false,
		"requires_causal_analysis": false,
		"requires_metacognition":   false,
		"complexity":               0.0,
		"verification_passed":      false,
		"verification_score":       0.0,
		"should_revise":            true,
	}

	if m := fallbackConfidenceRe.FindStringSubmatch(rawText); m != nil {
		if f, err := strconv.ParseFloat(m[1], 64); err == nil && f >= 0 && f <= 1 {
			rec["confidence"] = f
		}
	}
	if m := fallbackSolutionRe.FindStringSubmatch(rawText); m != nil {
		rec["solution"] = m[1]
		rec["has_candidate_solution"] = true
	}
	return rec
}
