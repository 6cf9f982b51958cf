// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package reasoning

import (
	"fmt"
	"strings"
)

// systemPrompt frames every stage call.
const systemPrompt = "You are a careful reasoning engine. You respond only with JSON objects matching the requested fields."

// promptHeader renders the shared problem preamble.
func promptHeader(sc *stageContext) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Problem: %s\n", sc.problem)
	if sc.domain != "" {
		fmt.Fprintf(&b, "Domain: %s\n", sc.domain)
	}
	if sc.format != "" {
		fmt.Fprintf(&b, "Expected answer format: %s\n", sc.format)
	}
	return b.String()
}

// stagePrompt builds the base prompt for a stage. The recovery pipeline
// appends its own escalating format instructions per attempt.
func stagePrompt(state PipelineState, sc *stageContext) string {
	header := promptHeader(sc)

	switch state {
	case StateParseInput:
		return header + `
Decompose the problem.
Return JSON with: variables, constraints, problem_type, complexity_level (1-5),
reasoning_approach, requires_causal_analysis (bool), requires_metacognition (bool).`

	case StateMapRepresentation:
		return header + `
Build an internal representation of the problem: entities, relations between
them, and the goal condition.
Return JSON with: entities, relations, goal, assumptions.`

	case StateFastPass:
		return header + `
Attempt a quick heuristic solution using pattern matching.
Calibrate confidence honestly:
- 0.8-1.0: clear pattern match, standard problem type
- 0.5-0.7: partial pattern match, some uncertainty
- 0.0-0.4: unclear pattern, novel problem type
Return JSON with: solution, confidence (0-1), reasoning_steps, patterns_used.`

	case StateSlowPass:
		return header + fmt.Sprintf(`
The quick pass was not confident enough (confidence %.2f). Reason through the
problem step by step, verifying each inference before the next.
Return JSON with: solution, confidence (0-1), detailed_steps, logical_rules_used.`, sc.confidence)

	case StateCausalAnalysis:
		return header + fmt.Sprintf(`
Current candidate solution: %s
Trace the cause-effect structure of the problem: what drives what, and
whether the candidate solution respects it.
Return JSON with: causal_chain, interventions_considered, solution, confidence (0-1).`, sc.solution)

	case StateMetaEvaluation:
		return header + fmt.Sprintf(`
Current candidate solution: %s (confidence %.2f)
Review the reasoning so far for errors, gaps and unjustified assumptions.
Return JSON with: confidence_assessment (0-1), potential_errors,
reasoning_quality_score (0-1), should_revise (bool).`, sc.solution, sc.confidence)

	case StateGenerateResponse:
		return header + fmt.Sprintf(`
Candidate solution: %s
Compose the final answer, synthesizing the reasoning so far.
Return JSON with: final_solution, confidence (0-1), synthesis_reasoning.`, sc.solution)

	case StateSelfVerify:
		return header + fmt.Sprintf(`
Final answer: %s
Check the answer against the problem statement. Does it satisfy every
constraint?
Return JSON with: verification_passed (bool), verification_score (0-1),
issues_found, confidence_adjustment (-1 to 1).`, sc.solution)
	}
	return header
}
