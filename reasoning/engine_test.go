// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package reasoning

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/AleutianAI/reasonkit/llm"
	"github.com/AleutianAI/reasonkit/pkg/logging"
	"github.com/AleutianAI/reasonkit/recovery"
)

func testEngine(client llm.Client, opts ...EngineOption) *Engine {
	budget := recovery.DefaultBudget()
	budget.RetryDelay = 0
	p := recovery.NewPipeline(client, budget, logging.Discard())
	return NewEngine(p, logging.Discard(), opts...)
}

// stageResponder routes mock responses by markers in the stage prompts.
func stageResponder(responses map[string]string) func(prompt, system string, params llm.GenerationParams) (string, error) {
	return func(prompt, system string, params llm.GenerationParams) (string, error) {
		for marker, response := range responses {
			if strings.Contains(prompt, marker) {
				return response, nil
			}
		}
		return "{}", nil
	}
}

func statePath(transitions []TransitionEntry) []PipelineState {
	states := make([]PipelineState, len(transitions))
	for i, e := range transitions {
		states[i] = e.State
	}
	return states
}

func assertPath(t *testing.T, got []PipelineState, want []PipelineState) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("path = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("path[%d] = %s, want %s (full path %v)", i, got[i], want[i], got)
		}
	}
}

func TestEngine_FastPath(t *testing.T) {
	mock := llm.NewMockClient().WithResponseFunc(stageResponder(map[string]string{
		"Decompose the problem": `{"problem_type": "lookup", "complexity_level": 1,
			"requires_causal_analysis": false, "requires_metacognition": false}`,
		"quick heuristic":    `{"solution": "forty-two", "confidence": 0.95}`,
		"Compose the final":  `{"final_solution": "forty-two", "confidence": 0.95}`,
		"Check the answer":   `{"verification_passed": true, "verification_score": 0.9}`,
	}))
	e := testEngine(mock)

	result, err := e.Run(context.Background(), Request{Problem: "what is the answer?"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	assertPath(t, statePath(result.Transitions), []PipelineState{
		StateIdle,
		StateParseInput,
		StateMapRepresentation,
		StateFastPass,
		StateGenerateResponse,
		StateSelfVerify,
		StateComplete,
	})
	if result.State != StateComplete {
		t.Errorf("state = %s", result.State)
	}
	if result.Solution != "forty-two" {
		t.Errorf("solution = %q", result.Solution)
	}
	if !result.VerificationPassed {
		t.Error("verification should have passed")
	}
	if result.Degraded {
		t.Error("run should not be degraded")
	}
	if result.RunID == "" {
		t.Error("missing run ID")
	}
}

func TestEngine_FullDeliberatePath(t *testing.T) {
	mock := llm.NewMockClient().WithResponseFunc(stageResponder(map[string]string{
		"Decompose the problem": `{"problem_type": "diagnosis", "complexity_level": 5,
			"requires_causal_analysis": true, "requires_metacognition": true}`,
		"quick heuristic":      `{"solution": "maybe the disk", "confidence": 0.3}`,
		"step by step":         `{"solution": "the disk filled up", "confidence": 0.7}`,
		"cause-effect":         `{"solution": "log rotation stopped, disk filled", "confidence": 0.8}`,
		"Review the reasoning": `{"confidence_assessment": 0.85, "should_revise": false}`,
		"Compose the final":    `{"final_solution": "restart log rotation", "confidence": 0.9}`,
		"Check the answer":     `{"verification_passed": true, "verification_score": 0.85}`,
	}))
	e := testEngine(mock)

	result, err := e.Run(context.Background(), Request{
		Problem: "service is down, why?",
		Domain:  "operations",
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	assertPath(t, statePath(result.Transitions), []PipelineState{
		StateIdle,
		StateParseInput,
		StateMapRepresentation,
		StateFastPass,
		StateSlowPass,
		StateCausalAnalysis,
		StateMetaEvaluation,
		StateGenerateResponse,
		StateSelfVerify,
		StateComplete,
	})
	if result.Solution != "restart log rotation" {
		t.Errorf("solution = %q", result.Solution)
	}
	if !result.VerificationPassed {
		t.Error("verification should have passed")
	}
}

func TestEngine_SlowPassWithoutCausal(t *testing.T) {
	mock := llm.NewMockClient().WithResponseFunc(stageResponder(map[string]string{
		"Decompose the problem": `{"complexity_level": 2,
			"requires_causal_analysis": false, "requires_metacognition": false}`,
		"quick heuristic":   `{"solution": "unsure", "confidence": 0.4}`,
		"step by step":      `{"solution": "worked out", "confidence": 0.9}`,
		"Compose the final": `{"final_solution": "worked out", "confidence": 0.9}`,
		"Check the answer":  `{"verification_passed": true, "verification_score": 0.9}`,
	}))
	e := testEngine(mock)

	result, err := e.Run(context.Background(), Request{Problem: "medium problem"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	assertPath(t, statePath(result.Transitions), []PipelineState{
		StateIdle,
		StateParseInput,
		StateMapRepresentation,
		StateFastPass,
		StateSlowPass,
		StateGenerateResponse,
		StateSelfVerify,
		StateComplete,
	})
}

func TestEngine_EmptyProblemErrors(t *testing.T) {
	mock := llm.NewMockClient()
	e := testEngine(mock)

	result, err := e.Run(context.Background(), Request{Problem: "   "})
	if err != nil {
		t.Fatalf("Run should not return a Go error for stage failures: %v", err)
	}
	if result.State != StateError {
		t.Errorf("state = %s, want ERROR", result.State)
	}
	if !strings.Contains(result.FailureReason, "empty problem") {
		t.Errorf("failure reason = %q", result.FailureReason)
	}
	if mock.CallCount() != 0 {
		t.Errorf("no generation call should happen, got %d", mock.CallCount())
	}

	path := statePath(result.Transitions)
	if path[len(path)-1] != StateError {
		t.Errorf("last transition = %s, want ERROR", path[len(path)-1])
	}
}

func TestEngine_DegradedRunStillCompletes(t *testing.T) {
	// Fast pass returns garbage on every attempt, so that stage degrades;
	// the run must still reach COMPLETE with the degraded flag set.
	mock := llm.NewMockClient().WithResponseFunc(stageResponder(map[string]string{
		"Decompose the problem": `{"complexity_level": 1}`,
		"quick heuristic":       `this is not JSON and never will be`,
		"could not be parsed":   `still not JSON`,
		"step by step":          `{"solution": "recovered later", "confidence": 0.9}`,
		"Compose the final":     `{"final_solution": "recovered later", "confidence": 0.9}`,
		"Check the answer":      `{"verification_passed": true, "verification_score": 0.8}`,
	}))
	e := testEngine(mock)

	result, err := e.Run(context.Background(), Request{Problem: "tricky"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.State != StateComplete {
		t.Errorf("state = %s, want COMPLETE", result.State)
	}
	if !result.Degraded {
		t.Error("run with a degraded stage must be marked degraded")
	}
	if result.Solution != "recovered later" {
		t.Errorf("solution = %q", result.Solution)
	}

	// The degraded fast pass has no confident candidate, so the slow pass
	// must have run.
	found := false
	for _, e := range result.Transitions {
		if e.State == StateSlowPass {
			found = true
		}
	}
	if !found {
		t.Error("degraded fast pass should escalate to SLOW_PASS")
	}
}

func TestEngine_ContextCancellation(t *testing.T) {
	mock := llm.NewMockClient()
	e := testEngine(mock)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := e.Run(ctx, Request{Problem: "anything"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if result != nil {
		t.Error("abandoned run must discard partial results")
	}
}

func TestEngine_NoCandidateSolutionErrors(t *testing.T) {
	// Every stage parses but none ever produces a solution, so
	// GENERATE_RESPONSE cannot proceed.
	mock := llm.NewMockClient().WithResponseFunc(stageResponder(map[string]string{
		"Decompose the problem": `{"complexity_level": 1}`,
		"quick heuristic":       `{"confidence": 0.1}`,
		"step by step":          `{"confidence": 0.2}`,
	}))
	e := testEngine(mock)

	result, err := e.Run(context.Background(), Request{Problem: "unanswerable"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.State != StateError {
		t.Errorf("state = %s, want ERROR", result.State)
	}
	if !strings.Contains(result.FailureReason, "no candidate solution") {
		t.Errorf("failure reason = %q", result.FailureReason)
	}
}

func TestEngine_ConfidenceThresholdOption(t *testing.T) {
	mock := llm.NewMockClient().WithResponseFunc(stageResponder(map[string]string{
		"Decompose the problem": `{"complexity_level": 1}`,
		"quick heuristic":       `{"solution": "ok-ish", "confidence": 0.6}`,
		"Compose the final":     `{"final_solution": "ok-ish", "confidence": 0.6}`,
		"Check the answer":      `{"verification_passed": true, "verification_score": 0.7}`,
	}))
	e := testEngine(mock, WithConfidenceThreshold(0.5))

	result, err := e.Run(context.Background(), Request{Problem: "easy enough"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	for _, entry := range result.Transitions {
		if entry.State == StateSlowPass {
			t.Error("lowered threshold should have taken the fast path")
		}
	}
	if result.State != StateComplete {
		t.Errorf("state = %s", result.State)
	}
}

func TestEngine_RunDuration(t *testing.T) {
	e := testEngine(llm.NewMockClient())
	result, err := e.Run(context.Background(), Request{Problem: "time me"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Duration <= 0 || result.Duration > time.Minute {
		t.Errorf("implausible duration %s", result.Duration)
	}
}
