// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/AleutianAI/reasonkit/pkg/logging"
)

var tracer = otel.Tracer("reasonkit.llm")

// OllamaClient implements Client backed by a local Ollama server.
type OllamaClient struct {
	httpClient *http.Client
	baseURL    string
	model      string
	log        *logging.Logger
}

type ollamaGenerateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	System  string         `json:"system,omitempty"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

type ollamaGenerateResponse struct {
	Model    string `json:"model"`
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// NewOllamaClient creates an Ollama-backed client.
//
// Inputs:
//
//	baseURL - Server URL; falls back to OLLAMA_BASE_URL.
//	model - Model name; falls back to OLLAMA_MODEL, then "gpt-oss".
//	log - Logger; must not be nil.
func NewOllamaClient(baseURL, model string, log *logging.Logger) (*OllamaClient, error) {
	if baseURL == "" {
		baseURL = os.Getenv("OLLAMA_BASE_URL")
	}
	if baseURL == "" {
		return nil, NewFailure("config", fmt.Errorf("no Ollama base URL configured"))
	}
	if model == "" {
		model = os.Getenv("OLLAMA_MODEL")
	}
	if model == "" {
		model = "gpt-oss"
		log.Warn("OLLAMA_MODEL not set, defaulting", "model", model)
	}
	baseURL = strings.TrimSuffix(baseURL, "/")
	log.Info("initializing Ollama client", "base_url", baseURL, "model", model)
	return &OllamaClient{
		httpClient: &http.Client{Timeout: 5 * time.Minute},
		baseURL:    baseURL,
		model:      model,
		log:        log,
	}, nil
}

// Generate implements the Client interface.
func (o *OllamaClient) Generate(ctx context.Context, prompt, system string, params GenerationParams) (string, error) {
	ctx, span := tracer.Start(ctx, "OllamaClient.Generate")
	defer span.End()
	span.SetAttributes(attribute.String("llm.model", o.model))

	options := map[string]any{
		"temperature": params.Temperature,
	}
	if params.MaxTokens > 0 {
		options["num_predict"] = params.MaxTokens
	}

	payload := ollamaGenerateRequest{
		Model:   o.model,
		Prompt:  prompt,
		System:  system,
		Stream:  false,
		Options: options,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", NewFailure("encode", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", NewFailure("transport", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		o.log.Error("Ollama API call failed", "error", err)
		if ctx.Err() != nil {
			return "", NewFailure("timeout", err)
		}
		return "", NewFailure("transport", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", NewFailure("transport", fmt.Errorf("ollama returned %d: %s", resp.StatusCode, respBody))
	}

	var decoded ollamaGenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", NewFailure("decode", err)
	}
	if decoded.Response == "" {
		return "", NewFailure("empty", ErrEmptyResponse)
	}

	o.log.Debug("received response from Ollama", "done", decoded.Done)
	return decoded.Response, nil
}

// Name implements the Client interface.
func (o *OllamaClient) Name() string { return "ollama" }

var _ Client = (*OllamaClient)(nil)
