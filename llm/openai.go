// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"context"
	"os"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/AleutianAI/reasonkit/pkg/logging"
)

// OpenAIClient implements Client backed by the OpenAI chat completions API.
type OpenAIClient struct {
	client *openai.Client
	model  string
	log    *logging.Logger
}

// NewOpenAIClient creates an OpenAI-backed client.
//
// Inputs:
//
//	apiKey - API key; falls back to the OPENAI_API_KEY environment variable.
//	model - Model name; falls back to OPENAI_MODEL, then "gpt-4o-mini".
//	log - Logger; must not be nil.
//
// Outputs:
//
//	*OpenAIClient - Ready-to-use client.
//	error - If no API key is available.
func NewOpenAIClient(apiKey, model string, log *logging.Logger) (*OpenAIClient, error) {
	if apiKey == "" {
		apiKey = strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
	}
	if apiKey == "" {
		return nil, NewFailure("config", ErrNoAPIKey)
	}
	if model == "" {
		model = os.Getenv("OPENAI_MODEL")
	}
	if model == "" {
		model = "gpt-4o-mini"
		log.Warn("OPENAI_MODEL not set, defaulting to gpt-4o-mini")
	}
	log.Info("initializing OpenAI client", "model", model)
	return &OpenAIClient{
		client: openai.NewClient(apiKey),
		model:  model,
		log:    log,
	}, nil
}

// Generate implements the Client interface.
func (o *OpenAIClient) Generate(ctx context.Context, prompt, system string, params GenerationParams) (string, error) {
	o.log.Debug("generating text via OpenAI", "model", o.model)

	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if system != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role: openai.ChatMessageRoleSystem, Content: system,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role: openai.ChatMessageRoleUser, Content: prompt,
	})

	req := openai.ChatCompletionRequest{
		Model:       o.model,
		Messages:    messages,
		Temperature: float32(params.Temperature),
	}
	if params.MaxTokens > 0 {
		req.MaxCompletionTokens = params.MaxTokens
	}

	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		o.log.Error("OpenAI API call failed", "error", err)
		if ctx.Err() != nil {
			return "", NewFailure("timeout", err)
		}
		return "", NewFailure("transport", err)
	}
	if len(resp.Choices) == 0 {
		o.log.Warn("OpenAI returned no choices")
		return "", NewFailure("empty", nil)
	}

	o.log.Debug("received response from OpenAI", "finish_reason", resp.Choices[0].FinishReason)
	return resp.Choices[0].Message.Content, nil
}

// Name implements the Client interface.
func (o *OpenAIClient) Name() string { return "openai" }

// Ensure OpenAIClient implements Client.
var _ Client = (*OpenAIClient)(nil)
