// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package reasoning

import (
	"fmt"
	"sync"
	"time"
)

// StageFlags are the derived booleans the transition function reads. They
// are folded out of stage records before each transition; the transition
// function itself never looks at raw records.
type StageFlags struct {
	// HasCandidateSolution is true once some stage produced a solution.
	HasCandidateSolution bool

	// ConfidenceAboveThreshold is true when the latest confidence meets
	// the configured threshold.
	ConfidenceAboveThreshold bool

	// CausalRequired is true when the problem needs cause-effect
	// analysis.
	CausalRequired bool

	// HighComplexity is true when the problem warrants a metacognitive
	// review pass.
	HighComplexity bool

	// ErrorOccurred is true when a stage raised an unrecoverable error.
	ErrorOccurred bool
}

// TransitionEntry is one (state, timestamp) pair in the transition log.
type TransitionEntry struct {
	State PipelineState `json:"state"`
	At    time.Time     `json:"at"`
}

// TransitionLog is the append-only ordered sequence of states a run moved
// through. It exists for loop detection and observability; no control
// decision reads it beyond "did we repeat the current state".
type TransitionLog struct {
	entries []TransitionEntry
}

// maxTransitions is the hard ceiling on log length: twice the number of
// distinct states. Reaching it forces COMPLETE.
var maxTransitions = 2 * len(AllStates())

// Append records entering a state.
func (l *TransitionLog) Append(state PipelineState) {
	l.entries = append(l.entries, TransitionEntry{State: state, At: time.Now()})
}

// Last returns the most recently logged state.
func (l *TransitionLog) Last() (PipelineState, bool) {
	if len(l.entries) == 0 {
		return "", false
	}
	return l.entries[len(l.entries)-1].State, true
}

// Len returns the number of logged transitions.
func (l *TransitionLog) Len() int {
	return len(l.entries)
}

// Entries returns a copy of the log.
func (l *TransitionLog) Entries() []TransitionEntry {
	out := make([]TransitionEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

// StateMachine manages valid state transitions for the reasoning pipeline.
//
// The state machine enforces the following transition graph:
//
//	IDLE → PARSE_INPUT                        : Problem received
//	PARSE_INPUT → MAP_REPRESENTATION          : Problem decomposed
//	MAP_REPRESENTATION → FAST_PASS            : Representation built
//	FAST_PASS → GENERATE_RESPONSE             : Confident candidate found
//	FAST_PASS → SLOW_PASS                     : No confident candidate
//	SLOW_PASS → CAUSAL_ANALYSIS               : Causal structure required
//	SLOW_PASS → META_EVALUATION               : High complexity, no causal
//	SLOW_PASS → GENERATE_RESPONSE             : Straightforward problem
//	CAUSAL_ANALYSIS → META_EVALUATION         : High complexity
//	CAUSAL_ANALYSIS → GENERATE_RESPONSE       : Causal chain resolved
//	META_EVALUATION → GENERATE_RESPONSE       : Review complete
//	GENERATE_RESPONSE → SELF_VERIFY           : Answer composed
//	SELF_VERIFY → COMPLETE                    : Verification done
//	* → COMPLETE                              : Loop detected or ceiling hit
//	* → ERROR                                 : Unrecoverable stage error
//
// The next state is computed by a pure function of the current state and
// the StageFlags; the validity map above only guards against programming
// mistakes.
//
// Thread Safety:
//
//	StateMachine is safe for concurrent use.
type StateMachine struct {
	mu sync.RWMutex

	// transitions maps (from, to) pairs that are valid.
	transitions map[PipelineState]map[PipelineState]bool
}

// NewStateMachine creates a new state machine with all valid transitions.
func NewStateMachine() *StateMachine {
	sm := &StateMachine{
		transitions: make(map[PipelineState]map[PipelineState]bool),
	}

	for _, state := range AllStates() {
		sm.transitions[state] = make(map[PipelineState]bool)
	}

	sm.addTransition(StateIdle, StateParseInput)
	sm.addTransition(StateParseInput, StateMapRepresentation)
	sm.addTransition(StateMapRepresentation, StateFastPass)

	sm.addTransition(StateFastPass, StateGenerateResponse)
	sm.addTransition(StateFastPass, StateSlowPass)

	sm.addTransition(StateSlowPass, StateCausalAnalysis)
	sm.addTransition(StateSlowPass, StateMetaEvaluation)
	sm.addTransition(StateSlowPass, StateGenerateResponse)

	sm.addTransition(StateCausalAnalysis, StateMetaEvaluation)
	sm.addTransition(StateCausalAnalysis, StateGenerateResponse)

	sm.addTransition(StateMetaEvaluation, StateGenerateResponse)
	sm.addTransition(StateGenerateResponse, StateSelfVerify)
	sm.addTransition(StateSelfVerify, StateComplete)

	// Loop prevention and error handling reach the terminals from
	// anywhere.
	for _, state := range AllStates() {
		if state == StateComplete || state == StateError {
			continue
		}
		sm.addTransition(state, StateComplete)
		sm.addTransition(state, StateError)
	}

	return sm
}

// addTransition registers a valid transition.
func (sm *StateMachine) addTransition(from, to PipelineState) {
	sm.transitions[from][to] = true
}

// CanTransition checks if a transition from one state to another is valid.
//
// Thread Safety: This method is safe for concurrent use.
func (sm *StateMachine) CanTransition(from, to PipelineState) bool {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if toMap, ok := sm.transitions[from]; ok {
		return toMap[to]
	}
	return false
}

// Next computes the next state from the current state and flags, applying
// loop prevention and the transition ceiling.
//
// Description:
//
//	Pure and deterministic: the same state, flags, and log position
//	always produce the same next state. Precedence order is: loop
//	prevention (forced COMPLETE), stage error (ERROR), then the
//	transition table.
//
// Outputs:
//
//	PipelineState - The state to enter.
//	string - Human-readable reason for the transition.
func (sm *StateMachine) Next(from PipelineState, flags StageFlags, log *TransitionLog) (PipelineState, string) {
	if log != nil && log.Len() >= maxTransitions {
		return StateComplete, "transition ceiling reached"
	}

	next := nextState(from, flags)

	// Loop prevention takes precedence over the table: the current state
	// is the last logged state, so re-entering it would repeat forever.
	if next == from {
		return StateComplete, "loop detected: " + from.String() + " repeated"
	}

	return next, sm.TransitionReason(from, next)
}

// nextState is the deterministic transition table.
func nextState(from PipelineState, flags StageFlags) PipelineState {
	if flags.ErrorOccurred {
		return StateError
	}

	switch from {
	case StateIdle:
		return StateParseInput
	case StateParseInput:
		return StateMapRepresentation
	case StateMapRepresentation:
		return StateFastPass
	case StateFastPass:
		if flags.HasCandidateSolution && flags.ConfidenceAboveThreshold {
			return StateGenerateResponse
		}
		return StateSlowPass
	case StateSlowPass:
		if flags.CausalRequired {
			return StateCausalAnalysis
		}
		if flags.HighComplexity {
			return StateMetaEvaluation
		}
		return StateGenerateResponse
	case StateCausalAnalysis:
		if flags.HighComplexity {
			return StateMetaEvaluation
		}
		return StateGenerateResponse
	case StateMetaEvaluation:
		return StateGenerateResponse
	case StateGenerateResponse:
		return StateSelfVerify
	case StateSelfVerify:
		return StateComplete
	}
	return StateError
}

// Transition validates a transition and returns an error if it is not in
// the table.
func (sm *StateMachine) Transition(from, to PipelineState) error {
	if !sm.CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}

// ValidTransitionsFrom returns all valid transitions from a given state.
//
// Thread Safety: This method is safe for concurrent use.
func (sm *StateMachine) ValidTransitionsFrom(from PipelineState) []PipelineState {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	var result []PipelineState
	if toMap, ok := sm.transitions[from]; ok {
		for state, valid := range toMap {
			if valid {
				result = append(result, state)
			}
		}
	}
	return result
}

// TransitionReason provides a human-readable description of a transition.
func (sm *StateMachine) TransitionReason(from, to PipelineState) string {
	key := from.String() + "->" + to.String()

	reasons := map[string]string{
		"IDLE->PARSE_INPUT":                    "Problem received",
		"PARSE_INPUT->MAP_REPRESENTATION":      "Problem decomposed",
		"MAP_REPRESENTATION->FAST_PASS":        "Internal representation built",
		"FAST_PASS->GENERATE_RESPONSE":         "Confident candidate solution found",
		"FAST_PASS->SLOW_PASS":                 "No confident candidate, escalating",
		"SLOW_PASS->CAUSAL_ANALYSIS":           "Causal structure required",
		"SLOW_PASS->META_EVALUATION":           "High complexity, reviewing reasoning",
		"SLOW_PASS->GENERATE_RESPONSE":         "Deliberate pass produced answer",
		"CAUSAL_ANALYSIS->META_EVALUATION":     "High complexity after causal pass",
		"CAUSAL_ANALYSIS->GENERATE_RESPONSE":   "Causal chain resolved",
		"META_EVALUATION->GENERATE_RESPONSE":   "Metacognitive review complete",
		"GENERATE_RESPONSE->SELF_VERIFY":       "Answer composed",
		"SELF_VERIFY->COMPLETE":                "Verification done",
	}

	if reason, ok := reasons[key]; ok {
		return reason
	}
	if to == StateError {
		return "Unrecoverable stage error"
	}
	if to == StateComplete {
		return "Forced completion"
	}
	return "Unknown transition"
}
