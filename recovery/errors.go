// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package recovery

import "errors"

// Sentinel errors for the recovery package.
var (
	// ErrNoJSON indicates the text contains no opening delimiter at all.
	ErrNoJSON = errors.New("no JSON object found in text")

	// ErrIncompleteJSON indicates an opening delimiter was found but no
	// balanced closing delimiter exists in the text.
	ErrIncompleteJSON = errors.New("incomplete JSON object in text")

	// ErrMalformedJSON indicates a candidate span was found but did not
	// parse even after repair.
	ErrMalformedJSON = errors.New("malformed JSON object in text")

	// ErrNilPromptBuilder indicates Recover was called without a prompt
	// builder.
	ErrNilPromptBuilder = errors.New("prompt builder must not be nil")

	// ErrNoClients indicates a consensus validation was requested with no
	// backing clients.
	ErrNoClients = errors.New("no generation clients configured")
)
