// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package reasoning

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/AleutianAI/reasonkit/pkg/logging"
	"github.com/AleutianAI/reasonkit/recovery"
)

var tracer = otel.Tracer("reasonkit.reasoning")

// defaultConfidenceThreshold gates the fast-pass shortcut.
const defaultConfidenceThreshold = 0.8

// Engine drives problems through the reasoning pipeline.
//
// Description:
//
//	Each Run walks the state machine from IDLE to a terminal state. Every
//	stage that needs generated content goes through the recovery
//	pipeline, so a stage sees either clean structured data or a degraded
//	record, never raw text or a parse error. A run returns a Go error
//	only when the caller's context expires; every other failure mode is
//	expressed in the Result.
//
// Thread Safety: Engine is safe for concurrent use; each run owns its own
// stage context.
type Engine struct {
	pipeline  *recovery.Pipeline
	sm        *StateMachine
	log       *logging.Logger
	threshold float64
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithConfidenceThreshold overrides the fast-pass confidence gate.
func WithConfidenceThreshold(t float64) EngineOption {
	return func(e *Engine) {
		if t > 0 && t <= 1 {
			e.threshold = t
		}
	}
}

// NewEngine creates a reasoning engine.
//
// Inputs:
//
//	pipeline - Recovery pipeline wrapping the generation backend. Must
//	  not be nil.
//	log - Logger; must not be nil.
func NewEngine(pipeline *recovery.Pipeline, log *logging.Logger, opts ...EngineOption) *Engine {
	e := &Engine{
		pipeline:  pipeline,
		sm:        NewStateMachine(),
		log:       log,
		threshold: defaultConfidenceThreshold,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run executes one full pipeline run for a problem.
//
// Outputs:
//
//	*Result - Always non-nil on a nil error, including runs that end in
//	  ERROR.
//	error - Only the caller's context error; the run is abandoned and
//	  partial state discarded.
func (e *Engine) Run(ctx context.Context, req Request) (*Result, error) {
	runID := uuid.New().String()
	ctx, span := tracer.Start(ctx, "Engine.Run")
	defer span.End()
	span.SetAttributes(attribute.String("run.id", runID))

	log := e.log.With("run_id", runID)
	log.Info("starting reasoning run")

	start := time.Now()
	sc := &stageContext{
		problem: strings.TrimSpace(req.Problem),
		domain:  req.Domain,
		format:  req.Format,
		records: make(map[PipelineState]recovery.Record),
	}

	tlog := &TransitionLog{}
	state := StateIdle
	tlog.Append(state)

	for !state.IsTerminal() {
		if err := ctx.Err(); err != nil {
			log.Warn("run abandoned", "state", state, "error", err)
			return nil, err
		}

		next, reason := e.sm.Next(state, sc.flags, tlog)
		if err := e.sm.Transition(state, next); err != nil {
			// Table and validity map disagree; treat as a stage error
			// rather than panic.
			log.Error("transition rejected", "from", state, "to", next, "error", err)
			sc.failure = err.Error()
			next = StateError
		}

		log.Debug("state transition", "from", state, "to", next, "reason", reason)
		state = next
		tlog.Append(state)
		if state.IsTerminal() {
			break
		}

		if err := e.runStage(ctx, state, sc); err != nil {
			if ctx.Err() != nil {
				log.Warn("run abandoned in stage", "state", state, "error", ctx.Err())
				return nil, ctx.Err()
			}
			sc.flags.ErrorOccurred = true
			sc.failure = err.Error()
			log.Error("stage failed", "state", state, "error", err)
		}
	}

	result := &Result{
		RunID:              runID,
		State:              state,
		Solution:           sc.solution,
		Confidence:         sc.confidence,
		VerificationPassed: sc.verificationPassed,
		Degraded:           sc.degraded,
		FailureReason:      sc.failure,
		Transitions:        tlog.Entries(),
		StageRecords:       sc.records,
		Duration:           time.Since(start),
	}

	span.SetAttributes(
		attribute.String("run.state", state.String()),
		attribute.Bool("run.degraded", result.Degraded),
		attribute.Int("run.transitions", len(result.Transitions)),
	)
	log.Info("reasoning run finished",
		"state", state,
		"degraded", result.Degraded,
		"transitions", len(result.Transitions),
		"duration", result.Duration,
	)
	return result, nil
}

// runStage executes one stage, folding its record into the context.
// Returns a *StageError when the stage cannot proceed at all; degraded
// records are folded and the run continues.
func (e *Engine) runStage(ctx context.Context, state PipelineState, sc *stageContext) error {
	ctx, span := tracer.Start(ctx, "Engine."+state.String())
	defer span.End()

	// Structural preconditions first; a degraded upstream record cannot
	// repair a missing problem or a missing candidate answer.
	switch state {
	case StateParseInput:
		if sc.problem == "" {
			return &StageError{Stage: state, Reason: "empty problem statement", Err: ErrEmptyProblem}
		}
	case StateGenerateResponse:
		if !sc.flags.HasCandidateSolution {
			return &StageError{Stage: state, Reason: "no candidate solution to compose from"}
		}
	}

	rec := e.pipeline.Recover(ctx, recovery.EscalatingPrompt(stagePrompt(state, sc)), systemPrompt)
	sc.fold(state, rec, e.threshold)

	span.SetAttributes(attribute.Bool("stage.degraded", rec.Degraded()))
	return nil
}
