// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package config loads the static process configuration for reasonkit.
//
// Configuration is resolved in three layers: built-in defaults, an optional
// YAML (or JSON) file, then REASONKIT_* environment overrides. The result
// is validated once at load time and never mutated afterwards.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/reasonkit/recovery"
)

// Duration is a time.Duration that decodes from "300ms"-style strings in
// YAML and JSON config files. Bare numbers are read as nanoseconds.
type Duration time.Duration

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// String returns the standard duration formatting.
func (d Duration) String() string { return time.Duration(d).String() }

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if parsed, err := time.ParseDuration(value.Value); err == nil {
		*d = Duration(parsed)
		return nil
	}
	n, err := strconv.ParseInt(value.Value, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid duration %q", value.Value)
	}
	*d = Duration(n)
	return nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		parsed, perr := time.ParseDuration(s)
		if perr != nil {
			return fmt.Errorf("invalid duration %q: %w", s, perr)
		}
		*d = Duration(parsed)
		return nil
	}
	var n int64
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("invalid duration %s", data)
	}
	*d = Duration(n)
	return nil
}

// Config contains all reasonkit configuration.
//
// Thread Safety: Safe to read concurrently. Not safe to modify after
// creation.
type Config struct {
	// Recovery contains retry budget settings.
	Recovery RecoveryConfig `json:"recovery" yaml:"recovery"`

	// Reasoning contains pipeline settings.
	Reasoning ReasoningConfig `json:"reasoning" yaml:"reasoning"`

	// Cache contains record cache settings.
	Cache CacheConfig `json:"cache" yaml:"cache"`

	// Logging contains log output settings.
	Logging LoggingConfig `json:"logging" yaml:"logging"`
}

// RecoveryConfig contains retry budget settings.
type RecoveryConfig struct {
	// MaxRetries is the number of retry rounds after the base attempt.
	MaxRetries int `json:"max_retries" yaml:"max_retries"`

	// RetryDelay is the pause between rounds.
	RetryDelay Duration `json:"retry_delay" yaml:"retry_delay"`

	// MaxTokens is the base token allowance.
	MaxTokens int `json:"max_tokens" yaml:"max_tokens"`

	// TokenEscalationStep is added to the token allowance per attempt.
	TokenEscalationStep int `json:"token_escalation_step" yaml:"token_escalation_step"`

	// Temperature is passed to the generation backend.
	Temperature float64 `json:"temperature" yaml:"temperature"`

	// ConsensusThreshold is the minimum agreement (0-1) when multiple
	// independent backends are cross-checked. Accepted and ignored when
	// only one backend is configured.
	ConsensusThreshold float64 `json:"consensus_threshold" yaml:"consensus_threshold"`
}

// ReasoningConfig contains pipeline settings.
type ReasoningConfig struct {
	// ConfidenceThreshold gates the fast-pass shortcut.
	ConfidenceThreshold float64 `json:"confidence_threshold" yaml:"confidence_threshold"`
}

// CacheConfig contains record cache settings.
type CacheConfig struct {
	// Enabled turns the record cache on.
	Enabled bool `json:"enabled" yaml:"enabled"`

	// TTL is how long cached records stay valid.
	TTL Duration `json:"ttl" yaml:"ttl"`

	// MaxSize is the entry count before LRU eviction.
	MaxSize int `json:"max_size" yaml:"max_size"`
}

// LoggingConfig contains log output settings.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `json:"level" yaml:"level"`

	// JSON selects JSON output over text.
	JSON bool `json:"json" yaml:"json"`
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		Recovery: RecoveryConfig{
			MaxRetries:          3,
			RetryDelay:          Duration(300 * time.Millisecond),
			MaxTokens:           2000,
			TokenEscalationStep: 1000,
			Temperature:         0.2,
			ConsensusThreshold:  0.66,
		},
		Reasoning: ReasoningConfig{
			ConfidenceThreshold: 0.8,
		},
		Cache: CacheConfig{
			Enabled: false,
			TTL:     Duration(10 * time.Minute),
			MaxSize: 1000,
		},
		Logging: LoggingConfig{
			Level: "info",
			JSON:  false,
		},
	}
}

// Load resolves configuration from defaults, an optional file, and
// environment overrides.
//
// Inputs:
//
//	path - Config file path; empty or missing files fall back to
//	  defaults without error.
//
// Outputs:
//
//	Config - Validated configuration.
//	error - Parse or validation failure.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadConfigFile(path, &cfg); err != nil {
			return cfg, err
		}
	}

	loadConfigFromEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func loadConfigFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // File doesn't exist, use defaults
		}
		return err
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}

	// Try YAML first, then JSON. Both decoders reject unknown keys so a
	// typo'd key fails loudly instead of silently keeping the default.
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if yamlErr := dec.Decode(cfg); yamlErr != nil {
		jdec := json.NewDecoder(bytes.NewReader(data))
		jdec.DisallowUnknownFields()
		if jsonErr := jdec.Decode(cfg); jsonErr != nil {
			return fmt.Errorf("parse config (tried YAML and JSON): YAML error: %v, JSON error: %w", yamlErr, jsonErr)
		}
	}
	return nil
}

func loadConfigFromEnv(cfg *Config) {
	// Recovery
	if v := os.Getenv("REASONKIT_MAX_RETRIES"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Recovery.MaxRetries = i
		}
	}
	if v := os.Getenv("REASONKIT_RETRY_DELAY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Recovery.RetryDelay = Duration(d)
		}
	}
	if v := os.Getenv("REASONKIT_MAX_TOKENS"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Recovery.MaxTokens = i
		}
	}
	if v := os.Getenv("REASONKIT_TOKEN_ESCALATION_STEP"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Recovery.TokenEscalationStep = i
		}
	}
	if v := os.Getenv("REASONKIT_TEMPERATURE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Recovery.Temperature = f
		}
	}
	if v := os.Getenv("REASONKIT_CONSENSUS_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Recovery.ConsensusThreshold = f
		}
	}

	// Reasoning
	if v := os.Getenv("REASONKIT_CONFIDENCE_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Reasoning.ConfidenceThreshold = f
		}
	}

	// Cache
	if v := os.Getenv("REASONKIT_CACHE_ENABLED"); v != "" {
		cfg.Cache.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("REASONKIT_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Cache.TTL = Duration(d)
		}
	}
	if v := os.Getenv("REASONKIT_CACHE_MAX_SIZE"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Cache.MaxSize = i
		}
	}

	// Logging
	if v := os.Getenv("REASONKIT_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("REASONKIT_LOG_JSON"); v != "" {
		cfg.Logging.JSON = v == "true" || v == "1"
	}
}

// Validate checks the configuration for invalid values.
func (c Config) Validate() error {
	if c.Recovery.MaxRetries < 0 {
		return fmt.Errorf("max_retries must be >= 0, got %d", c.Recovery.MaxRetries)
	}
	if c.Recovery.RetryDelay < 0 {
		return fmt.Errorf("retry_delay must be >= 0, got %s", c.Recovery.RetryDelay)
	}
	if c.Recovery.MaxTokens <= 0 {
		return fmt.Errorf("max_tokens must be > 0, got %d", c.Recovery.MaxTokens)
	}
	if c.Recovery.TokenEscalationStep < 0 {
		return fmt.Errorf("token_escalation_step must be >= 0, got %d", c.Recovery.TokenEscalationStep)
	}
	if c.Recovery.ConsensusThreshold < 0 || c.Recovery.ConsensusThreshold > 1 {
		return fmt.Errorf("consensus_threshold must be in [0,1], got %f", c.Recovery.ConsensusThreshold)
	}
	if c.Reasoning.ConfidenceThreshold <= 0 || c.Reasoning.ConfidenceThreshold > 1 {
		return fmt.Errorf("confidence_threshold must be in (0,1], got %f", c.Reasoning.ConfidenceThreshold)
	}
	if c.Cache.Enabled {
		if c.Cache.TTL <= 0 {
			return fmt.Errorf("cache ttl must be > 0, got %s", c.Cache.TTL)
		}
		if c.Cache.MaxSize <= 0 {
			return fmt.Errorf("cache max_size must be > 0, got %d", c.Cache.MaxSize)
		}
	}
	return nil
}

// Budget converts the recovery settings into a pipeline budget.
func (c Config) Budget() recovery.Budget {
	return recovery.Budget{
		MaxRetries:          c.Recovery.MaxRetries,
		RetryDelay:          c.Recovery.RetryDelay.Std(),
		MaxTokens:           c.Recovery.MaxTokens,
		TokenEscalationStep: c.Recovery.TokenEscalationStep,
		Temperature:         c.Recovery.Temperature,
	}
}
