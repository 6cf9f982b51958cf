// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package recovery

import (
	"fmt"
	"regexp"
	"strings"
)

// Strategy is one pure parsing attempt against raw text. Strategies never
// mutate shared state and never perform I/O.
type Strategy struct {
	// Name identifies the strategy in attempt reports and logs.
	Name string

	// Parse attempts to recover a Record from text.
	Parse func(text string) (Record, error)
}

// Strategies returns the extraction strategies in priority order, cheapest
// and most likely correct first. The order is part of the contract: the
// pipeline stops at the first success.
func Strategies() []Strategy {
	return []Strategy{
		{Name: "direct", Parse: parseDirect},
		{Name: "balanced", Parse: parseBalanced},
		{Name: "fenced", Parse: parseFenced},
		{Name: "embedded", Parse: parseEmbedded},
		{Name: "repaired", Parse: parseRepaired},
		{Name: "normalized", Parse: parseNormalized},
	}
}

// ExtractRecord runs the strategy set in order against text and returns the
// first Record recovered, along with one ExtractionAttempt per strategy
// tried. Returns a nil Record if every strategy fails.
func ExtractRecord(text string) (Record, []ExtractionAttempt) {
	attempts := make([]ExtractionAttempt, 0, 6)
	for _, s := range Strategies() {
		rec, err := s.Parse(text)
		if err != nil {
			attempts = append(attempts, ExtractionAttempt{
				Strategy: s.Name,
				Reason:   err.Error(),
			})
			continue
		}
		attempts = append(attempts, ExtractionAttempt{
			Strategy: s.Name,
			Success:  true,
			Record:   rec,
		})
		return rec, attempts
	}
	return nil, attempts
}

// ExtractJSON finds the first complete top-level JSON object in text.
//
// Description:
//
//	Walks the text from the first '{' tracking nesting depth and whether
//	the scanner is inside a quoted string (honoring backslash escapes).
//	This is the one routine requiring care: scanning from the first '{'
//	to the last '}' is wrong when trailing prose also contains braces,
//	and a plain counting scan is wrong when braces appear inside string
//	values.
//
// Outputs:
//
//	string - The balanced object span, exactly as it appears in text.
//	error - ErrNoJSON if no '{' exists, ErrIncompleteJSON if the object
//	  never balances.
func ExtractJSON(text string) (string, error) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", ErrNoJSON
	}
	span, err := balancedFrom(text, start)
	if err != nil {
		return "", err
	}
	return span, nil
}

// balancedFrom scans forward from an opening '{' at start and returns the
// span up to its matching '}'.
func balancedFrom(text string, start int) (string, error) {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		ch := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1], nil
			}
		}
	}
	return "", ErrIncompleteJSON
}

// parseDirect parses the trimmed text as-is. Works for well-formed output.
func parseDirect(text string) (Record, error) {
	return ParseRecord([]byte(strings.TrimSpace(text)))
}

// parseBalanced extracts the first balanced object span and parses it.
// Handles prose or markdown before and after the object.
func parseBalanced(text string) (Record, error) {
	span, err := ExtractJSON(text)
	if err != nil {
		return nil, err
	}
	rec, err := ParseRecord([]byte(span))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedJSON, err)
	}
	return rec, nil
}

var fenceRe = regexp.MustCompile("(?s)```[a-zA-Z]*[ \t]*\n?(.+?)\\s*(?:```|$)")

// boilerplatePrefixes are known lead-ins the generator wraps around data.
var boilerplatePrefixes = []string{
	"Here's the JSON response:",
	"Here is the JSON response:",
	"Here is the JSON:",
	"JSON response:",
	"Response:",
}

// parseFenced strips markdown code fences and boilerplate prefixes, then
// retries a direct parse on the inner content.
func parseFenced(text string) (Record, error) {
	inner, ok := stripFences(text)
	if !ok {
		return nil, fmt.Errorf("no code fence or boilerplate found")
	}
	return parseDirect(inner)
}

// stripFences removes fence markers and known prefixes. Returns false if
// nothing was stripped.
func stripFences(text string) (string, bool) {
	t := strings.TrimSpace(text)
	stripped := false
	for _, prefix := range boilerplatePrefixes {
		if strings.HasPrefix(t, prefix) {
			t = strings.TrimSpace(strings.TrimPrefix(t, prefix))
			stripped = true
		}
	}
	if m := fenceRe.FindStringSubmatch(t); m != nil {
		return m[1], true
	}
	return t, stripped
}

// parseEmbedded tries every balanced-looking object substring in order of
// appearance. Handles responses that mix prose with more than one candidate
// object, where only one of them is the data.
func parseEmbedded(text string) (Record, error) {
	lastErr := ErrNoJSON
	for i := 0; i < len(text); i++ {
		if text[i] != '{' {
			continue
		}
		span, err := balancedFrom(text, i)
		if err != nil {
			// An unbalanced outer object can still contain a complete
			// inner one; keep scanning from later openers.
			lastErr = ErrIncompleteJSON
			continue
		}
		if rec, err := ParseRecord([]byte(span)); err == nil {
			return rec, nil
		}
		lastErr = ErrMalformedJSON
	}
	return nil, lastErr
}

// parseRepaired runs the repair sub-steps in sequence, retrying a parse
// after each sub-step that changed the text.
func parseRepaired(text string) (Record, error) {
	t, _ := stripFences(text)
	if start := strings.IndexByte(t, '{'); start > 0 {
		t = t[start:]
	} else if start < 0 {
		return nil, ErrNoJSON
	}

	current := t
	for _, step := range repairSteps() {
		next := step.apply(current)
		if next == current {
			continue
		}
		current = next
		if rec, err := ParseRecord([]byte(strings.TrimSpace(current))); err == nil {
			return rec, nil
		}
	}
	// Final try on the fully repaired text, tolerating trailing prose.
	if span, err := ExtractJSON(current); err == nil {
		if rec, err := ParseRecord([]byte(span)); err == nil {
			return rec, nil
		}
	}
	return nil, ErrMalformedJSON
}

var whitespaceRe = regexp.MustCompile(`[\r\n\t]+`)

// parseNormalized collapses newlines and tabs as a last resort. Some
// backends emit hard-wrapped output that breaks string values across lines.
func parseNormalized(text string) (Record, error) {
	flat := whitespaceRe.ReplaceAllString(text, " ")
	if span, err := ExtractJSON(flat); err == nil {
		if rec, err := ParseRecord([]byte(span)); err == nil {
			return rec, nil
		}
	}
	return parseDirect(flat)
}
