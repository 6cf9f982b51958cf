// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package reasoning provides a state-machine-driven reasoning pipeline.
//
// A run moves a problem through a fixed sequence of stages: IDLE,
// PARSE_INPUT, MAP_REPRESENTATION, FAST_PASS, SLOW_PASS, META_EVALUATION,
// CAUSAL_ANALYSIS, GENERATE_RESPONSE, SELF_VERIFY, COMPLETE, and ERROR.
// Each stage that needs generated content calls the recovery pipeline and
// folds the returned record into the stage context; the next state is then
// computed by a pure, deterministic transition function. The generator is
// never asked to choose the next state.
//
// Thread Safety:
//
//	One run owns its entire stage context exclusively. Independent runs
//	may execute concurrently; they share no mutable state.
package reasoning

// PipelineState represents a state in the reasoning pipeline state machine.
//
// Valid state transitions are enforced by the state machine. Invalid
// transitions return ErrInvalidTransition.
type PipelineState string

const (
	// StateIdle is the initial state before a problem is received.
	StateIdle PipelineState = "IDLE"

	// StateParseInput validates and decomposes the problem statement.
	StateParseInput PipelineState = "PARSE_INPUT"

	// StateMapRepresentation builds an internal representation of the
	// problem.
	StateMapRepresentation PipelineState = "MAP_REPRESENTATION"

	// StateFastPass attempts a quick, low-cost solution.
	StateFastPass PipelineState = "FAST_PASS"

	// StateSlowPass performs deliberate step-by-step reasoning.
	StateSlowPass PipelineState = "SLOW_PASS"

	// StateMetaEvaluation reviews the reasoning so far for consistency.
	StateMetaEvaluation PipelineState = "META_EVALUATION"

	// StateCausalAnalysis traces cause-effect structure in the problem.
	StateCausalAnalysis PipelineState = "CAUSAL_ANALYSIS"

	// StateGenerateResponse composes the final answer.
	StateGenerateResponse PipelineState = "GENERATE_RESPONSE"

	// StateSelfVerify checks the composed answer against the problem.
	StateSelfVerify PipelineState = "SELF_VERIFY"

	// StateComplete indicates successful completion.
	StateComplete PipelineState = "COMPLETE"

	// StateError indicates an unrecoverable stage error occurred.
	StateError PipelineState = "ERROR"
)

// String returns the string representation of the state.
func (s PipelineState) String() string {
	return string(s)
}

// IsTerminal returns true if the state is COMPLETE or ERROR.
func (s PipelineState) IsTerminal() bool {
	return s == StateComplete || s == StateError
}

// AllStates returns all valid pipeline states.
func AllStates() []PipelineState {
	return []PipelineState{
		StateIdle,
		StateParseInput,
		StateMapRepresentation,
		StateFastPass,
		StateSlowPass,
		StateMetaEvaluation,
		StateCausalAnalysis,
		StateGenerateResponse,
		StateSelfVerify,
		StateComplete,
		StateError,
	}
}
