// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MockClient is a mock generation client for testing.
//
// Responses are consumed from a queue; when the queue is empty the default
// text is returned. An error entry in the queue produces a generation
// Failure for that call only.
//
// Thread Safety: MockClient is safe for concurrent use.
type MockClient struct {
	mu sync.Mutex

	name        string
	queue       []mockResponse
	defaultText string
	respFunc    func(prompt, system string, params GenerationParams) (string, error)
	err         error
	calls       []GenerationCall
}

type mockResponse struct {
	text string
	err  error
}

// GenerationCall records one call to Generate.
type GenerationCall struct {
	Prompt    string
	System    string
	Params    GenerationParams
	Timestamp time.Time
}

// NewMockClient creates a mock client with a well-formed default response.
func NewMockClient() *MockClient {
	return &MockClient{
		name:        "mock",
		defaultText: `{"solution": "mock solution", "confidence": 0.9}`,
	}
}

// WithName sets the provider name.
func (c *MockClient) WithName(name string) *MockClient {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.name = name
	return c
}

// WithError configures every call to fail with err until Reset.
func (c *MockClient) WithError(err error) *MockClient {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.err = err
	return c
}

// WithResponseFunc sets a dynamic response function, overriding the queue.
func (c *MockClient) WithResponseFunc(f func(prompt, system string, params GenerationParams) (string, error)) *MockClient {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.respFunc = f
	return c
}

// QueueText queues a raw text response.
func (c *MockClient) QueueText(text string) *MockClient {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queue = append(c.queue, mockResponse{text: text})
	return c
}

// QueueError queues a single failing call.
func (c *MockClient) QueueError(err error) *MockClient {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queue = append(c.queue, mockResponse{err: err})
	return c
}

// SetDefaultText sets the response used when the queue is empty.
func (c *MockClient) SetDefaultText(text string) *MockClient {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.defaultText = text
	return c
}

// Generate implements the Client interface.
func (c *MockClient) Generate(ctx context.Context, prompt, system string, params GenerationParams) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.calls = append(c.calls, GenerationCall{
		Prompt:    prompt,
		System:    system,
		Params:    params,
		Timestamp: time.Now(),
	})

	if err := ctx.Err(); err != nil {
		return "", NewFailure("timeout", err)
	}
	if c.err != nil {
		return "", NewFailure("transport", c.err)
	}
	if c.respFunc != nil {
		return c.respFunc(prompt, system, params)
	}
	if len(c.queue) > 0 {
		next := c.queue[0]
		c.queue = c.queue[1:]
		if next.err != nil {
			return "", NewFailure("transport", next.err)
		}
		return next.text, nil
	}
	return c.defaultText, nil
}

// Name implements the Client interface.
func (c *MockClient) Name() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.name
}

// CallCount returns the number of Generate calls made.
func (c *MockClient) CallCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

// Calls returns a copy of all recorded calls.
func (c *MockClient) Calls() []GenerationCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	calls := make([]GenerationCall, len(c.calls))
	copy(calls, c.calls)
	return calls
}

// LastCall returns the most recent call, or nil if none were made.
func (c *MockClient) LastCall() *GenerationCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.calls) == 0 {
		return nil
	}
	call := c.calls[len(c.calls)-1]
	return &call
}

// Reset clears queue, calls and error configuration.
func (c *MockClient) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queue = nil
	c.calls = nil
	c.err = nil
	c.respFunc = nil
}

// Verify returns an error if queued responses were not consumed.
func (c *MockClient) Verify() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.queue) > 0 {
		return fmt.Errorf("mock: %d queued responses not consumed", len(c.queue))
	}
	return nil
}

var _ Client = (*MockClient)(nil)
