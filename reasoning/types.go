// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package reasoning

import (
	"time"

	"github.com/AleutianAI/reasonkit/recovery"
)

// Request is one problem submitted to the reasoning pipeline.
type Request struct {
	// Problem is the problem statement. Must not be empty.
	Problem string `json:"problem"`

	// Domain is a free-form domain hint carried through to the prompts
	// ("logic", "math", ...). Interpreted by the generator, never
	// validated here.
	Domain string `json:"domain,omitempty"`

	// Format is a free-form answer format hint, same contract as Domain.
	Format string `json:"format,omitempty"`
}

// Result is the outcome of one pipeline run. A run always produces a
// Result unless the caller's context expired.
type Result struct {
	// RunID uniquely identifies the run.
	RunID string `json:"run_id"`

	// State is the terminal state, COMPLETE or ERROR.
	State PipelineState `json:"state"`

	// Solution is the final answer. Empty when the run errored before
	// composing one.
	Solution string `json:"solution"`

	// Confidence is the final confidence estimate, 0-1.
	Confidence float64 `json:"confidence"`

	// VerificationPassed reports the self-verification outcome.
	VerificationPassed bool `json:"verification_passed"`

	// Degraded is true when any stage had to fall back to a degraded
	// record.
	Degraded bool `json:"degraded"`

	// FailureReason carries the single explanatory reason when State is
	// ERROR.
	FailureReason string `json:"failure_reason,omitempty"`

	// Transitions is the full transition log for the run.
	Transitions []TransitionEntry `json:"transitions"`

	// StageRecords holds the record each stage folded in, keyed by state.
	StageRecords map[PipelineState]recovery.Record `json:"stage_records,omitempty"`

	// Duration is the total wall time of the run.
	Duration time.Duration `json:"duration"`
}

// stageContext is the per-run mutable state. One run owns it exclusively.
type stageContext struct {
	problem string
	domain  string
	format  string

	// Latest candidate answer and its confidence.
	solution   string
	confidence float64

	verificationPassed bool

	records  map[PipelineState]recovery.Record
	flags    StageFlags
	degraded bool

	// failure is set by the stage that raised the unrecoverable error.
	failure string
}

// fold merges a stage record into the context and rederives the flags.
func (sc *stageContext) fold(state PipelineState, rec recovery.Record, threshold float64) {
	sc.records[state] = rec
	if rec.Degraded() {
		sc.degraded = true
	}

	if sol, ok := rec.GetString("solution"); ok && sol != "" {
		sc.solution = sol
		sc.flags.HasCandidateSolution = true
	}
	if sol, ok := rec.GetString("final_solution"); ok && sol != "" {
		sc.solution = sol
		sc.flags.HasCandidateSolution = true
	}
	if conf, ok := rec.GetFloat("confidence"); ok {
		sc.confidence = conf
	}
	if conf, ok := rec.GetFloat("confidence_assessment"); ok {
		sc.confidence = conf
	}
	sc.flags.ConfidenceAboveThreshold = sc.confidence >= threshold

	if causal, ok := rec.GetBool("requires_causal_analysis"); ok {
		sc.flags.CausalRequired = causal
	}
	meta, hasMeta := rec.GetBool("requires_metacognition")
	level, hasLevel := rec.GetFloat("complexity_level")
	if hasMeta || hasLevel {
		sc.flags.HighComplexity = (hasMeta && meta) || (hasLevel && level >= 4)
	}

	if passed, ok := rec.GetBool("verification_passed"); ok {
		sc.verificationPassed = passed
	}
	if adj, ok := rec.GetFloat("confidence_adjustment"); ok {
		sc.confidence += adj
		if sc.confidence < 0 {
			sc.confidence = 0
		}
		if sc.confidence > 1 {
			sc.confidence = 1
		}
	}
}
