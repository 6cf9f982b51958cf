// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import "errors"

// Sentinel errors for the llm package.
var (
	// ErrNoAPIKey indicates no API key was supplied or found in the environment.
	ErrNoAPIKey = errors.New("no API key configured")

	// ErrEmptyResponse indicates the backend returned no usable text.
	ErrEmptyResponse = errors.New("backend returned empty response")
)
