// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package llm provides the text-generation client boundary for reasonkit.
//
// The recovery pipeline treats a generation backend as an opaque call that
// returns text or fails. Implementations must be safe for concurrent use.
package llm

import (
	"context"
	"errors"
	"fmt"
)

// GenerationParams controls a single generation call.
type GenerationParams struct {
	// Temperature controls randomness (0.0-2.0 depending on backend).
	Temperature float64 `json:"temperature"`

	// MaxTokens limits the completion length. Zero means backend default.
	MaxTokens int `json:"max_tokens"`
}

// Client defines the standard interface for any text-generation backend.
type Client interface {
	// Generate sends a prompt to the backend and returns the raw text.
	//
	// Inputs:
	//   ctx - Context for cancellation and timeout
	//   prompt - The user prompt
	//   system - The system prompt; may be empty
	//   params - Generation parameters
	//
	// Outputs:
	//   string - The raw generated text
	//   error - A *Failure if the backend did not return text
	Generate(ctx context.Context, prompt, system string, params GenerationParams) (string, error)

	// Name returns the provider name (e.g., "openai", "ollama", "mock").
	Name() string
}

// Failure is the error returned when a backend does not return text
// (transport error, timeout, quota). Callers never inspect transport detail
// beyond the reason string.
type Failure struct {
	// Reason is a short category such as "transport", "timeout", "empty".
	Reason string

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (f *Failure) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("generation failed (%s): %v", f.Reason, f.Err)
	}
	return fmt.Sprintf("generation failed (%s)", f.Reason)
}

// Unwrap exposes the underlying cause for errors.Is/As.
func (f *Failure) Unwrap() error { return f.Err }

// NewFailure wraps err as a generation failure with the given reason.
func NewFailure(reason string, err error) *Failure {
	return &Failure{Reason: reason, Err: err}
}

// IsFailure reports whether err is (or wraps) a generation Failure.
func IsFailure(err error) bool {
	var f *Failure
	return errors.As(err, &f)
}
