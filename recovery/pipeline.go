// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package recovery

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/AleutianAI/reasonkit/llm"
	"github.com/AleutianAI/reasonkit/pkg/logging"
)

// Budget bounds one recover call. Configuration, never mutated at runtime.
type Budget struct {
	// MaxRetries is the number of retry rounds after the base attempt.
	// Must be >= 0.
	MaxRetries int

	// RetryDelay is the pause between rounds.
	RetryDelay time.Duration

	// MaxTokens is the base token allowance for attempt 0.
	MaxTokens int

	// TokenEscalationStep is added to the token allowance each round,
	// since truncation is a common failure mode.
	TokenEscalationStep int

	// Temperature is passed through to the generation client.
	Temperature float64
}

// DefaultBudget returns the standard retry budget.
func DefaultBudget() Budget {
	return Budget{
		MaxRetries:          3,
		RetryDelay:          300 * time.Millisecond,
		MaxTokens:           2000,
		TokenEscalationStep: 1000,
		Temperature:         0.2,
	}
}

// PromptBuilder produces the prompt text for a given attempt index, so
// later attempts can embed progressively stricter formatting instructions.
type PromptBuilder func(attempt int) string

// escalationSuffixes are appended to the base prompt by attempt index.
// Index 0 is the base instruction set.
var escalationSuffixes = []string{
	"\n\nRespond with valid JSON only. Start with { and end with }.",
	"\n\nIMPORTANT: Respond with valid JSON only. Start with { and end with }. No additional text before or after.",
	"\n\nCRITICAL: Output a single JSON object and nothing else. Use double quotes for every key and string value. No markdown fences, no commentary.",
	"\n\nFINAL ATTEMPT: Return ONLY the JSON object. Any character outside the object is an error. Close every brace and bracket.",
}

// EscalatingPrompt wraps a base prompt in the standard escalation ladder.
func EscalatingPrompt(base string) PromptBuilder {
	return func(attempt int) string {
		if attempt >= len(escalationSuffixes) {
			attempt = len(escalationSuffixes) - 1
		}
		if attempt < 0 {
			attempt = 0
		}
		return base + escalationSuffixes[attempt]
	}
}

// regenerationPrompt builds the single post-exhaustion correction prompt,
// quoting the failed output.
func regenerationPrompt(failed string) string {
	if len(failed) > 2000 {
		failed = failed[:2000]
	}
	return fmt.Sprintf(
		"Your previous response could not be parsed as JSON:\n\n%s\n\n"+
			"Rewrite it as a single valid JSON object with the same content. "+
			"Double quotes for all keys and string values, no trailing commas, "+
			"no markdown fences, no text outside the object.", failed)
}

// Pipeline orchestrates generation, extraction, repair and fallback across
// a bounded retry budget.
//
// Description:
//
//	Recover never fails: it returns a Record on every path, degraded at
//	worst. Generation and parse failures are absorbed internally; the
//	caller detects degradation via Record.Degraded.
//
// Thread Safety: Pipeline is safe for concurrent use. Each recover call
// owns its own attempt state; the optional cache and flight group are
// internally synchronized.
type Pipeline struct {
	client llm.Client
	budget Budget
	log    *logging.Logger

	cache *RecordCache
	group singleflight.Group
	sem   chan struct{}
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithCache enables caching of non-degraded records keyed by base prompt
// and system text. Identical concurrent recoveries are collapsed into one
// generation flight.
func WithCache(ttl time.Duration, maxSize int) Option {
	return func(p *Pipeline) {
		p.cache = NewRecordCache(ttl, maxSize)
	}
}

// WithMaxConcurrent caps concurrent generation calls across all recover
// calls sharing this pipeline.
func WithMaxConcurrent(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.sem = make(chan struct{}, n)
		}
	}
}

// NewPipeline creates a recovery pipeline around a generation client.
//
// Inputs:
//
//	client - Generation backend. Must not be nil.
//	budget - Retry budget. MaxRetries must be >= 0.
//	log - Logger; must not be nil.
func NewPipeline(client llm.Client, budget Budget, log *logging.Logger, opts ...Option) *Pipeline {
	if budget.MaxRetries < 0 {
		budget.MaxRetries = 0
	}
	p := &Pipeline{
		client: client,
		budget: budget,
		log:    log,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Recover obtains a structured Record from the generation backend.
//
// Description:
//
//	Runs up to MaxRetries+1 attempts, each with a stricter prompt variant
//	and a larger token allowance, then one regeneration call quoting the
//	failed output, then the fallback builder. Always returns a non-nil
//	Record.
//
// Inputs:
//
//	ctx - Context for cancellation; on expiry the remaining budget is
//	  abandoned and a degraded record is returned.
//	build - Prompt variant builder. Must not be nil.
//	system - System text; may be empty.
func (p *Pipeline) Recover(ctx context.Context, build PromptBuilder, system string) Record {
	if build == nil {
		p.log.Error("recovery degraded", "error", ErrNilPromptBuilder)
		return BuildFallback("")
	}

	if p.cache != nil {
		key := build(0) + "\x00" + system
		if rec, ok := p.cache.Get(build(0), system); ok {
			recordCacheLookup(ctx, true)
			return rec
		}
		recordCacheLookup(ctx, false)

		v, _, _ := p.group.Do(key, func() (any, error) {
			rec, _ := p.run(ctx, build, system)
			return rec, nil
		})
		rec := v.(Record)
		p.cache.Set(build(0), system, rec)
		return rec.Clone()
	}

	rec, _ := p.run(ctx, build, system)
	return rec
}

// RecoverWithReport is Recover plus the per-round attempt report. It
// bypasses the cache and flight group so the report always reflects real
// rounds.
func (p *Pipeline) RecoverWithReport(ctx context.Context, build PromptBuilder, system string) (Record, []RecoveryAttempt) {
	if build == nil {
		p.log.Error("recovery degraded", "error", ErrNilPromptBuilder)
		return BuildFallback(""), nil
	}
	return p.run(ctx, build, system)
}

// run executes the retry loop. Always returns a non-nil Record.
func (p *Pipeline) run(ctx context.Context, build PromptBuilder, system string) (Record, []RecoveryAttempt) {
	ctx, span := tracer.Start(ctx, "Pipeline.Recover")
	defer span.End()

	start := time.Now()
	attempts := make([]RecoveryAttempt, 0, p.budget.MaxRetries+2)

	for i := 0; i <= p.budget.MaxRetries; i++ {
		if i > 0 && p.budget.RetryDelay > 0 {
			select {
			case <-ctx.Done():
				p.log.Warn("recovery abandoned before attempt", "attempt", i, "error", ctx.Err())
				return p.finish(ctx, span, start, BuildFallback(lastRawText(attempts)), attempts)
			case <-time.After(p.budget.RetryDelay):
			}
		}

		final := i == p.budget.MaxRetries
		round := p.runRound(ctx, RecoveryAttempt{
			Index:     i,
			Prompt:    build(i),
			MaxTokens: p.budget.MaxTokens + i*p.budget.TokenEscalationStep,
		}, system, final)
		attempts = append(attempts, round)
		recordAttempt(ctx, round.Outcome)

		if round.Outcome == OutcomeRecord {
			rec := round.Extractions[len(round.Extractions)-1].Record
			return p.finish(ctx, span, start, rec, attempts)
		}
	}

	// Exactly one regeneration call: quote the failed output and ask for a
	// corrected pure-data response. Skipped when no text ever came back.
	if lastRaw := lastRawText(attempts); lastRaw != "" && ctx.Err() == nil {
		round := p.runRound(ctx, RecoveryAttempt{
			Index:        p.budget.MaxRetries + 1,
			Prompt:       regenerationPrompt(lastRaw),
			MaxTokens:    p.budget.MaxTokens + (p.budget.MaxRetries+1)*p.budget.TokenEscalationStep,
			Regeneration: true,
		}, system, true)
		attempts = append(attempts, round)
		recordAttempt(ctx, round.Outcome)

		if round.Outcome == OutcomeRecord {
			rec := round.Extractions[len(round.Extractions)-1].Record
			return p.finish(ctx, span, start, rec, attempts)
		}
	}

	recordFallback(ctx)
	return p.finish(ctx, span, start, BuildFallback(lastRawText(attempts)), attempts)
}

// runRound makes one generation call and runs the strategy set against the
// result. Emits one log event describing the round.
func (p *Pipeline) runRound(ctx context.Context, round RecoveryAttempt, system string, final bool) RecoveryAttempt {
	if p.sem != nil {
		select {
		case p.sem <- struct{}{}:
			defer func() { <-p.sem }()
		case <-ctx.Done():
			round.GenerationError = ctx.Err().Error()
			round.Outcome = OutcomeExhausted
			return round
		}
	}

	raw, err := p.client.Generate(ctx, round.Prompt, system, llm.GenerationParams{
		Temperature: p.budget.Temperature,
		MaxTokens:   round.MaxTokens,
	})
	if err != nil {
		round.GenerationError = err.Error()
		round.Outcome = outcomeFor(final)
		p.log.Warn("generation failed",
			"attempt", round.Index,
			"regeneration", round.Regeneration,
			"error", err,
		)
		return round
	}
	round.RawText = raw

	rec, exts := ExtractRecord(raw)
	round.Extractions = exts
	if rec != nil {
		round.Outcome = OutcomeRecord
		strategy := exts[len(exts)-1].Strategy
		recordExtraction(ctx, strategy)
		p.log.Info("record recovered",
			"attempt", round.Index,
			"strategy", strategy,
			"regeneration", round.Regeneration,
		)
		return round
	}

	round.Outcome = outcomeFor(final)
	p.log.Warn("all extraction strategies failed",
		"attempt", round.Index,
		"strategies", len(exts),
		"regeneration", round.Regeneration,
	)
	return round
}

// finish records closing metrics and returns.
func (p *Pipeline) finish(ctx context.Context, span trace.Span, start time.Time, rec Record, attempts []RecoveryAttempt) (Record, []RecoveryAttempt) {
	degraded := rec.Degraded()
	span.SetAttributes(
		attribute.Bool("recovery.degraded", degraded),
		attribute.Int("recovery.rounds", len(attempts)),
	)
	recordRecoveryDuration(ctx, time.Since(start), degraded)
	return rec, attempts
}

// lastRawText returns the most recent raw response across rounds, for the
// regeneration prompt and the fallback builder.
func lastRawText(attempts []RecoveryAttempt) string {
	for i := len(attempts) - 1; i >= 0; i-- {
		if attempts[i].RawText != "" {
			return attempts[i].RawText
		}
	}
	return ""
}

func outcomeFor(final bool) Outcome {
	if final {
		return OutcomeExhausted
	}
	return OutcomeEscalate
}
