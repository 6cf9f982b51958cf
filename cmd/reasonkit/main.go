// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Command reasonkit runs a reasoning pipeline over a single problem.
//
// The problem is read from the -problem flag or, when the flag is empty,
// from stdin. The result is printed as text or JSON.
//
// Usage:
//
//	go run ./cmd/reasonkit -problem "why is the service down?"
//	echo "why is the service down?" | go run ./cmd/reasonkit -format json
//
// With Ollama:
//
//	OLLAMA_BASE_URL=http://localhost:11434 go run ./cmd/reasonkit \
//	  -provider ollama -model llama3.1 -problem "..."
//
// With OpenAI:
//
//	OPENAI_API_KEY=sk-... go run ./cmd/reasonkit \
//	  -provider openai -model gpt-4o-mini -problem "..."
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/AleutianAI/reasonkit/config"
	"github.com/AleutianAI/reasonkit/llm"
	"github.com/AleutianAI/reasonkit/pkg/logging"
	"github.com/AleutianAI/reasonkit/reasoning"
	"github.com/AleutianAI/reasonkit/recovery"
)

func main() {
	configPath := flag.String("config", "", "Path to a YAML or JSON config file")
	provider := flag.String("provider", "ollama", "Generation backend: ollama, openai, or mock")
	model := flag.String("model", "llama3.1", "Model name for the chosen backend")
	problem := flag.String("problem", "", "Problem statement (reads stdin when empty)")
	domain := flag.String("domain", "", "Optional problem domain hint")
	format := flag.String("format", "text", "Output format: text or json")
	flag.Parse()

	if err := run(*configPath, *provider, *model, *problem, *domain, *format); err != nil {
		fmt.Fprintf(os.Stderr, "reasonkit: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, provider, model, problem, domain, format string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log := logging.New(logging.Config{
		Level:   logging.ParseLevel(cfg.Logging.Level),
		Service: "reasonkit",
		JSON:    cfg.Logging.JSON,
	})

	if problem == "" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("reading stdin: %w", err)
		}
		problem = strings.TrimSpace(string(data))
	}
	if problem == "" {
		return fmt.Errorf("no problem given (use -problem or pipe to stdin)")
	}

	client, err := buildClient(provider, model, log)
	if err != nil {
		return err
	}

	var opts []recovery.Option
	if cfg.Cache.Enabled {
		opts = append(opts, recovery.WithCache(cfg.Cache.TTL.Std(), cfg.Cache.MaxSize))
	}
	pipeline := recovery.NewPipeline(client, cfg.Budget(), log, opts...)
	engine := reasoning.NewEngine(pipeline, log,
		reasoning.WithConfidenceThreshold(cfg.Reasoning.ConfidenceThreshold))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	result, err := engine.Run(ctx, reasoning.Request{
		Problem: problem,
		Domain:  domain,
	})
	if err != nil {
		return fmt.Errorf("running pipeline: %w", err)
	}

	return printResult(os.Stdout, result, format)
}

func buildClient(provider, model string, log *logging.Logger) (llm.Client, error) {
	switch provider {
	case "ollama":
		baseURL := os.Getenv("OLLAMA_BASE_URL")
		if baseURL == "" {
			baseURL = "http://localhost:11434"
		}
		return llm.NewOllamaClient(baseURL, model, log)
	case "openai":
		apiKey := os.Getenv("OPENAI_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("openai provider requires OPENAI_API_KEY")
		}
		return llm.NewOpenAIClient(apiKey, model, log)
	case "mock":
		return llm.NewMockClient(), nil
	default:
		return nil, fmt.Errorf("unknown provider %q (want ollama, openai, or mock)", provider)
	}
}

func printResult(w io.Writer, result *reasoning.Result, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	case "text":
		fmt.Fprintf(w, "Run:        %s\n", result.RunID)
		fmt.Fprintf(w, "State:      %s\n", result.State)
		fmt.Fprintf(w, "Solution:   %s\n", result.Solution)
		fmt.Fprintf(w, "Confidence: %.2f\n", result.Confidence)
		fmt.Fprintf(w, "Verified:   %t\n", result.VerificationPassed)
		if result.Degraded {
			fmt.Fprintln(w, "Degraded:   true")
		}
		if result.FailureReason != "" {
			fmt.Fprintf(w, "Failure:    %s\n", result.FailureReason)
		}
		fmt.Fprintf(w, "Duration:   %s\n", result.Duration.Round(time.Millisecond))
		return nil
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}
