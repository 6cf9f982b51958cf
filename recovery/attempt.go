// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package recovery

// ExtractionAttempt records one strategy invocation against one response.
type ExtractionAttempt struct {
	// Strategy is the strategy name ("direct", "balanced", ...).
	Strategy string

	// Success is true if the strategy produced a Record.
	Success bool

	// Record is the recovered data on success, nil otherwise.
	Record Record

	// Reason is the failure reason on failure, empty otherwise.
	Reason string
}

// Outcome classifies how a retry round ended.
type Outcome string

const (
	// OutcomeRecord means a Record was recovered in this round.
	OutcomeRecord Outcome = "record"

	// OutcomeEscalate means the round failed and a stricter retry follows.
	OutcomeEscalate Outcome = "escalate"

	// OutcomeExhausted means the round failed with no retries left.
	OutcomeExhausted Outcome = "exhausted"
)

// RecoveryAttempt records one retry round. Immutable once the round closes.
type RecoveryAttempt struct {
	// Index is the attempt index, 0..MaxRetries. The regeneration call
	// gets index MaxRetries+1.
	Index int

	// Prompt is the prompt variant used for this round.
	Prompt string

	// MaxTokens is the escalated token allowance for this round.
	MaxTokens int

	// Regeneration marks the single post-exhaustion correction call.
	Regeneration bool

	// GenerationError is the generation failure message, if the backend
	// call itself failed.
	GenerationError string

	// RawText is the backend's raw response for this round, empty when
	// the call failed.
	RawText string

	// Extractions lists the strategies tried against this round's text.
	Extractions []ExtractionAttempt

	// Outcome is how the round ended.
	Outcome Outcome
}
