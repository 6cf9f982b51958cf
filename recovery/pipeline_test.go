// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package recovery

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/AleutianAI/reasonkit/llm"
	"github.com/AleutianAI/reasonkit/pkg/logging"
)

func testBudget() Budget {
	return Budget{
		MaxRetries:          3,
		RetryDelay:          0,
		MaxTokens:           2000,
		TokenEscalationStep: 1000,
		Temperature:         0.2,
	}
}

func TestPipeline_FirstAttemptSuccess(t *testing.T) {
	mock := llm.NewMockClient()
	p := NewPipeline(mock, testBudget(), logging.Discard())

	rec := p.Recover(context.Background(), EscalatingPrompt("solve it"), "sys")
	if rec == nil {
		t.Fatal("Recover must never return nil")
	}
	if rec.Degraded() {
		t.Error("clean response should not degrade")
	}
	if sol, _ := rec.GetString("solution"); sol != "mock solution" {
		t.Errorf("solution = %q", sol)
	}
	if mock.CallCount() != 1 {
		t.Errorf("call count = %d, want 1", mock.CallCount())
	}
}

func TestPipeline_EscalatesThenSucceeds(t *testing.T) {
	mock := llm.NewMockClient().
		QueueText("sorry, I cannot produce structured output").
		QueueText("still prose only, no data").
		QueueText(`{"solution": "third time", "confidence": 0.8}`)
	p := NewPipeline(mock, testBudget(), logging.Discard())

	rec, attempts := p.RecoverWithReport(context.Background(), EscalatingPrompt("solve it"), "")
	if rec.Degraded() {
		t.Fatalf("expected recovery, got degraded record: %v", rec)
	}
	if sol, _ := rec.GetString("solution"); sol != "third time" {
		t.Errorf("solution = %q", sol)
	}
	if mock.CallCount() != 3 {
		t.Errorf("call count = %d, want 3", mock.CallCount())
	}

	wantOutcomes := []Outcome{OutcomeEscalate, OutcomeEscalate, OutcomeRecord}
	if len(attempts) != len(wantOutcomes) {
		t.Fatalf("attempts = %d, want %d", len(attempts), len(wantOutcomes))
	}
	for i, a := range attempts {
		if a.Outcome != wantOutcomes[i] {
			t.Errorf("attempt %d outcome = %s, want %s", i, a.Outcome, wantOutcomes[i])
		}
	}
}

// Later attempts must carry stricter prompts and a larger token allowance.
func TestPipeline_EscalationRaisesBudget(t *testing.T) {
	mock := llm.NewMockClient().SetDefaultText("never parseable")
	budget := testBudget()
	p := NewPipeline(mock, budget, logging.Discard())

	p.Recover(context.Background(), EscalatingPrompt("base prompt"), "")

	calls := mock.Calls()
	if len(calls) < 2 {
		t.Fatalf("expected multiple calls, got %d", len(calls))
	}
	for i := 1; i < len(calls)-1; i++ {
		if calls[i].Params.MaxTokens != budget.MaxTokens+i*budget.TokenEscalationStep {
			t.Errorf("attempt %d max tokens = %d", i, calls[i].Params.MaxTokens)
		}
		if calls[i].Prompt == calls[i-1].Prompt {
			t.Errorf("attempt %d prompt identical to previous", i)
		}
		if !strings.Contains(calls[i].Prompt, "base prompt") {
			t.Errorf("attempt %d lost the base prompt", i)
		}
	}
}

func TestPipeline_RegenerationRecovers(t *testing.T) {
	budget := testBudget()
	budget.MaxRetries = 1

	mock := llm.NewMockClient().
		QueueText("garbage one").
		QueueText("garbage two").
		QueueText(`{"solution": "regenerated", "confidence": 0.7}`)
	p := NewPipeline(mock, budget, logging.Discard())

	rec, attempts := p.RecoverWithReport(context.Background(), EscalatingPrompt("solve"), "")
	if rec.Degraded() {
		t.Fatalf("expected regeneration to recover, got %v", rec)
	}
	if sol, _ := rec.GetString("solution"); sol != "regenerated" {
		t.Errorf("solution = %q", sol)
	}

	last := attempts[len(attempts)-1]
	if !last.Regeneration {
		t.Error("final attempt should be the regeneration call")
	}
	if !strings.Contains(last.Prompt, "garbage two") {
		t.Error("regeneration prompt should quote the failed output")
	}
	// Base attempts plus exactly one regeneration call.
	if mock.CallCount() != budget.MaxRetries+2 {
		t.Errorf("call count = %d, want %d", mock.CallCount(), budget.MaxRetries+2)
	}
}

func TestPipeline_FallbackAfterExhaustion(t *testing.T) {
	budget := testBudget()
	mock := llm.NewMockClient().SetDefaultText("prose that never parses")
	p := NewPipeline(mock, budget, logging.Discard())

	rec, attempts := p.RecoverWithReport(context.Background(), EscalatingPrompt("solve"), "")
	if rec == nil {
		t.Fatal("Recover must never return nil")
	}
	if !rec.Degraded() {
		t.Error("exhausted recovery must return a degraded record")
	}
	if raw, _ := rec.GetString("original_response"); raw == "" {
		t.Error("fallback should carry the raw text")
	}

	// max_retries + 1 base attempts + 1 regeneration.
	if mock.CallCount() != budget.MaxRetries+2 {
		t.Errorf("call count = %d, want %d", mock.CallCount(), budget.MaxRetries+2)
	}

	// Attempt indices are strictly increasing from 0.
	for i, a := range attempts {
		if a.Index != i {
			t.Errorf("attempt %d has index %d", i, a.Index)
		}
	}
	if attempts[len(attempts)-1].Outcome != OutcomeExhausted {
		t.Errorf("final outcome = %s, want exhausted", attempts[len(attempts)-1].Outcome)
	}
}

func TestPipeline_GenerationFailuresAbsorbed(t *testing.T) {
	budget := testBudget()
	mock := llm.NewMockClient().WithError(errors.New("connection refused"))
	p := NewPipeline(mock, budget, logging.Discard())

	rec, attempts := p.RecoverWithReport(context.Background(), EscalatingPrompt("solve"), "")
	if rec == nil {
		t.Fatal("Recover must never return nil even when every call fails")
	}
	if !rec.Degraded() {
		t.Error("expected degraded record")
	}

	// No raw text ever arrived, so no regeneration call is made.
	if mock.CallCount() != budget.MaxRetries+1 {
		t.Errorf("call count = %d, want %d", mock.CallCount(), budget.MaxRetries+1)
	}
	for _, a := range attempts {
		if a.GenerationError == "" {
			t.Errorf("attempt %d missing generation error", a.Index)
		}
	}
}

func TestPipeline_OneLogEventPerAttempt(t *testing.T) {
	var buf bytes.Buffer
	log := logging.New(logging.Config{Writer: &buf, JSON: true, Quiet: true})

	budget := testBudget()
	budget.MaxRetries = 2
	mock := llm.NewMockClient().SetDefaultText("unparseable prose")
	p := NewPipeline(mock, budget, log)

	p.Recover(context.Background(), EscalatingPrompt("solve"), "")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	// 3 base attempts + 1 regeneration = 4 rounds, one event each.
	if len(lines) != 4 {
		t.Fatalf("log events = %d, want 4:\n%s", len(lines), buf.String())
	}
	for _, line := range lines {
		if !strings.Contains(line, "all extraction strategies failed") {
			t.Errorf("unexpected log line: %s", line)
		}
	}
}

func TestPipeline_ContextCancellation(t *testing.T) {
	budget := testBudget()
	budget.RetryDelay = 50 * time.Millisecond
	mock := llm.NewMockClient().SetDefaultText("unparseable")
	p := NewPipeline(mock, budget, logging.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec := p.Recover(ctx, EscalatingPrompt("solve"), "")
	if rec == nil {
		t.Fatal("Recover must return a record even when cancelled")
	}
	if !rec.Degraded() {
		t.Error("cancelled recovery must degrade")
	}
	// The first attempt runs against the dead context, then the retry
	// delay observes cancellation.
	if mock.CallCount() > 1 {
		t.Errorf("call count = %d, want at most 1", mock.CallCount())
	}
}

func TestPipeline_CacheHit(t *testing.T) {
	mock := llm.NewMockClient()
	p := NewPipeline(mock, testBudget(), logging.Discard(), WithCache(time.Minute, 10))

	build := EscalatingPrompt("cached question")
	first := p.Recover(context.Background(), build, "sys")
	second := p.Recover(context.Background(), build, "sys")

	if mock.CallCount() != 1 {
		t.Errorf("call count = %d, want 1 (second should hit cache)", mock.CallCount())
	}
	if sol1, _ := first.GetString("solution"); sol1 == "" {
		t.Error("first recovery missing solution")
	}
	sol1, _ := first.GetString("solution")
	sol2, _ := second.GetString("solution")
	if sol1 != sol2 {
		t.Errorf("cache returned different record: %q vs %q", sol1, sol2)
	}

	// Mutating the returned record must not poison the cache.
	second["solution"] = "mutated"
	third := p.Recover(context.Background(), build, "sys")
	if sol3, _ := third.GetString("solution"); sol3 != sol1 {
		t.Errorf("cached record was mutated: %q", sol3)
	}
}

func TestPipeline_DegradedRecordsNotCached(t *testing.T) {
	mock := llm.NewMockClient().
		QueueText("first call fails to parse").
		QueueText("second also fails").
		QueueText("third also fails").
		QueueText("fourth also fails").
		QueueText("regen also fails")
	budget := testBudget()
	p := NewPipeline(mock, budget, logging.Discard(), WithCache(time.Minute, 10))

	build := EscalatingPrompt("hard question")
	first := p.Recover(context.Background(), build, "")
	if !first.Degraded() {
		t.Fatal("expected degraded first recovery")
	}

	// A fresh call must go back to the backend instead of the cache.
	before := mock.CallCount()
	second := p.Recover(context.Background(), build, "")
	if mock.CallCount() == before {
		t.Error("degraded record was served from cache")
	}
	if second.Degraded() {
		// Default mock text is valid JSON, so the retry recovers.
		t.Error("second recovery should succeed from default response")
	}
}

func TestPipeline_NilPromptBuilder(t *testing.T) {
	var buf bytes.Buffer
	log := logging.New(logging.Config{Writer: &buf, JSON: true, Quiet: true})
	mock := llm.NewMockClient()
	p := NewPipeline(mock, testBudget(), log)

	rec := p.Recover(context.Background(), nil, "")
	if rec == nil {
		t.Fatal("Recover must not return nil for nil builder")
	}
	if !rec.Degraded() {
		t.Error("nil builder must produce a degraded record")
	}
	if mock.CallCount() != 0 {
		t.Errorf("nil builder must not reach the backend, got %d calls", mock.CallCount())
	}
	if !strings.Contains(buf.String(), ErrNilPromptBuilder.Error()) {
		t.Errorf("log should carry the nil-builder error, got %q", buf.String())
	}

	buf.Reset()
	if _, attempts := p.RecoverWithReport(context.Background(), nil, ""); attempts != nil {
		t.Error("nil builder must produce no attempt report")
	}
	if !strings.Contains(buf.String(), ErrNilPromptBuilder.Error()) {
		t.Errorf("report path should log the same error, got %q", buf.String())
	}
}
