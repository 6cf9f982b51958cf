// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package reasoning

import (
	"errors"
	"fmt"
)

// Sentinel errors for the reasoning package.
var (
	// ErrInvalidTransition indicates an attempted state transition that
	// is not in the transition table.
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrEmptyProblem indicates a run was started without a problem
	// statement.
	ErrEmptyProblem = errors.New("problem statement is empty")
)

// StageError indicates a pipeline stage cannot proceed even with a
// degraded record, for example when a required upstream field is
// structurally absent. It moves the run to the terminal ERROR state and is
// never silently retried.
type StageError struct {
	// Stage is the state in which the error occurred.
	Stage PipelineState

	// Reason is the single explanatory reason carried into the result.
	Reason string

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *StageError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("stage %s failed: %s: %v", e.Stage, e.Reason, e.Err)
	}
	return fmt.Sprintf("stage %s failed: %s", e.Stage, e.Reason)
}

// Unwrap exposes the underlying cause for errors.Is/As.
func (e *StageError) Unwrap() error { return e.Err }
