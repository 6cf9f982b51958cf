// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package recovery

import (
	"encoding/json"
	"regexp"
	"strings"
)

// repairStep is one text transform that increases the odds a later parse
// succeeds. Steps are pure and idempotent.
type repairStep struct {
	name  string
	apply func(string) string
}

// repairSteps returns the repair transforms in application order.
func repairSteps() []repairStep {
	return []repairStep{
		{name: "normalize_quotes", apply: normalizeQuotes},
		{name: "quote_bare_keys", apply: quoteBareKeys},
		{name: "drop_trailing_commas", apply: dropTrailingCommas},
		{name: "coerce_primitives", apply: coercePrimitives},
		{name: "repair_truncation", apply: repairTruncation},
	}
}

// Repair applies the full repair sequence to text. Repair is idempotent:
// Repair(Repair(t)) == Repair(t) for any t.
func Repair(text string) string {
	for _, step := range repairSteps() {
		text = step.apply(text)
	}
	return text
}

// normalizeQuotes converts single-quoted strings to double-quoted ones.
//
// The scan is escape-aware and tracks whether it is inside a double-quoted
// string, so apostrophes in legitimate string values are left alone and
// double quotes inside converted strings get escaped.
func normalizeQuotes(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	inDouble := false
	inSingle := false
	escaped := false
	for i := 0; i < len(text); i++ {
		ch := text[i]
		if escaped {
			if inSingle && ch == '\'' {
				// \' has no meaning in the target form
				b.WriteByte('\'')
			} else {
				b.WriteByte('\\')
				b.WriteByte(ch)
			}
			escaped = false
			continue
		}
		if (inDouble || inSingle) && ch == '\\' {
			escaped = true
			continue
		}
		switch {
		case inDouble:
			if ch == '"' {
				inDouble = false
			}
			b.WriteByte(ch)
		case inSingle:
			switch ch {
			case '\'':
				inSingle = false
				b.WriteByte('"')
			case '"':
				b.WriteString(`\"`)
			default:
				b.WriteByte(ch)
			}
		default:
			switch ch {
			case '\'':
				inSingle = true
				b.WriteByte('"')
			case '"':
				inDouble = true
				b.WriteByte(ch)
			default:
				b.WriteByte(ch)
			}
		}
	}
	if escaped {
		b.WriteByte('\\')
	}
	return b.String()
}

// applyOutsideStrings splits text into string and non-string segments and
// applies fn only to the non-string ones, so transforms never touch content
// inside quoted values.
func applyOutsideStrings(text string, fn func(string) string) string {
	var b strings.Builder
	b.Grow(len(text))
	start := 0
	inString := false
	escaped := false
	for i := 0; i < len(text); i++ {
		ch := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
				b.WriteString(text[start : i+1])
				start = i + 1
			}
			continue
		}
		if ch == '"' {
			b.WriteString(fn(text[start:i]))
			start = i
			inString = true
		}
	}
	if inString {
		b.WriteString(text[start:])
	} else {
		b.WriteString(fn(text[start:]))
	}
	return b.String()
}

var bareKeyRe = regexp.MustCompile(`([{,]\s*)([A-Za-z_][A-Za-z0-9_]*)(\s*:)`)

// quoteBareKeys adds quotes around unquoted object keys, detected by a
// key-before-colon pattern outside string values.
func quoteBareKeys(text string) string {
	return applyOutsideStrings(text, func(seg string) string {
		return bareKeyRe.ReplaceAllString(seg, `$1"$2"$3`)
	})
}

var trailingCommaRe = regexp.MustCompile(`,(\s*[}\]])`)

// dropTrailingCommas removes commas directly before a closing delimiter.
func dropTrailingCommas(text string) string {
	return applyOutsideStrings(text, func(seg string) string {
		return trailingCommaRe.ReplaceAllString(seg, `$1`)
	})
}

var quotedPrimitiveRe = regexp.MustCompile(`:(\s*)"(-?\d+(?:\.\d+)?|true|false|null)"(\s*[,}\]])`)

// coercePrimitives unwraps quoted booleans, numbers and nulls in value
// position back to primitive form.
func coercePrimitives(text string) string {
	return quotedPrimitiveRe.ReplaceAllString(text, `:$1$2$3`)
}

// repairTruncation closes a text cut off mid-object: terminates an
// unterminated string, drops a trailing incomplete key-value fragment, and
// appends the missing closing delimiters in nesting order. Balanced text is
// returned unchanged.
func repairTruncation(text string) string {
	stack, inString := scanDelims(text)
	if len(stack) == 0 && !inString {
		return text
	}

	t := strings.TrimRight(text, " \t\r\n")
	if inString {
		t += `"`
	}
	t = dropIncompleteFragment(t)

	// The dropped fragment may have contained openers; recompute.
	stack, _ = scanDelims(t)
	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i] == '{' {
			t += "}"
		} else {
			t += "]"
		}
	}
	return t
}

// scanDelims returns the open delimiters in nesting order and whether the
// text ends inside a string.
func scanDelims(text string) ([]byte, bool) {
	var stack []byte
	inString := false
	escaped := false
	for i := 0; i < len(text); i++ {
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
		case '{', '[':
			stack = append(stack, ch)
		case '}':
			if len(stack) > 0 && stack[len(stack)-1] == '{' {
				stack = stack[:len(stack)-1]
			}
		case ']':
			if len(stack) > 0 && stack[len(stack)-1] == '[' {
				stack = stack[:len(stack)-1]
			}
		}
	}
	return stack, inString
}

var incompleteMemberRe = regexp.MustCompile(`^\s*"(?:[^"\\]|\\.)*"\s*:?\s*$`)

// dropIncompleteFragment removes a trailing object member that has a key
// but no complete value, so the appended closers produce parseable text.
// Only applies inside objects; a truncated array element is left for the
// closer pass.
func dropIncompleteFragment(text string) string {
	stack, _ := scanDelims(text)
	if len(stack) == 0 || stack[len(stack)-1] != '{' {
		return text
	}
	pos := lastDelimOutsideStrings(text)
	if pos < 0 {
		return text
	}
	// A member with a value survives; a bare key or dangling colon does
	// not. `"key": "v"` fails the match and is kept.
	tail := text[pos+1:]
	if !incompleteMemberRe.MatchString(tail) {
		return text
	}
	if text[pos] == ',' {
		return text[:pos]
	}
	return text[:pos+1]
}

// lastDelimOutsideStrings returns the index of the last ',', '{' or '['
// not inside a quoted string, or -1.
func lastDelimOutsideStrings(text string) int {
	pos := -1
	inString := false
	escaped := false
	for i := 0; i < len(text); i++ {
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
		case ',', '{', '[':
			pos = i
		}
	}
	return pos
}

// RepairAndParse is the convenience form used by callers outside the
// strategy chain: full repair, then a balanced-scan parse.
func RepairAndParse(text string) (Record, error) {
	repaired := Repair(text)
	if span, err := ExtractJSON(repaired); err == nil {
		var rec Record
		if err := json.Unmarshal([]byte(span), &rec); err == nil && rec != nil {
			return rec, nil
		}
	}
	return nil, ErrMalformedJSON
}
