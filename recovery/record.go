// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package recovery turns raw generator output into structured records.
//
// The central problem is that an external text generator returns JSON-ish
// text corrupted in predictable ways: markdown fences, single quotes,
// unquoted keys, trailing commas, truncation, prose wrapped around the data.
// The package runs an ordered set of extraction strategies over that text,
// repairs it when needed, retries generation under an escalating budget,
// and falls back to a degraded best-effort record when everything fails.
// Recover never returns an error for parse problems; callers detect
// degradation via Record.Degraded.
package recovery

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Record is structured key-value data recovered from generator output.
// Values are the usual JSON shapes: string, float64, bool, nil, nested
// map[string]any, []any.
type Record map[string]any

// ParseRecord decodes data into a Record. The top level must be an object.
func ParseRecord(data []byte) (Record, error) {
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("top-level value is not an object")
	}
	return rec, nil
}

// GetString returns the value for key if it is a string.
func (r Record) GetString(key string) (string, bool) {
	v, ok := r[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// GetFloat returns the value for key if it is a number.
func (r Record) GetFloat(key string) (float64, bool) {
	v, ok := r[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

// GetBool returns the value for key if it is a boolean.
func (r Record) GetBool(key string) (bool, bool) {
	v, ok := r[key]
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}

// Keys returns the record's keys in sorted order.
func (r Record) Keys() []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Degraded reports whether the record came from the fallback path.
// Fallback records always carry an "error" marker field.
func (r Record) Degraded() bool {
	_, ok := r["error"]
	return ok
}

// Clone returns a deep copy of the record.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, inner := range t {
			out[k] = cloneValue(inner)
		}
		return out
	case Record:
		return map[string]any(t.Clone())
	case []any:
		out := make([]any, len(t))
		for i, inner := range t {
			out[i] = cloneValue(inner)
		}
		return out
	default:
		return v
	}
}
