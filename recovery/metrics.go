// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package recovery

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Package-level tracer and meter for recovery operations.
var (
	tracer = otel.Tracer("reasonkit.recovery")
	meter  = otel.Meter("reasonkit.recovery")
)

// Metrics for the recovery pipeline.
var (
	recoveryAttempts  metric.Int64Counter
	recoveryFallbacks metric.Int64Counter
	extractionSuccess metric.Int64Counter
	recoveryDuration  metric.Float64Histogram
	recoveryCacheHits metric.Int64Counter
	recoveryCacheMiss metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		recoveryAttempts, err = meter.Int64Counter(
			"recovery_attempts_total",
			metric.WithDescription("Total number of recovery retry rounds"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		recoveryFallbacks, err = meter.Int64Counter(
			"recovery_fallbacks_total",
			metric.WithDescription("Total number of degraded fallback records built"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		extractionSuccess, err = meter.Int64Counter(
			"extraction_success_total",
			metric.WithDescription("Successful extractions by strategy"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		recoveryDuration, err = meter.Float64Histogram(
			"recovery_duration_seconds",
			metric.WithDescription("Duration of full recover calls"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		recoveryCacheHits, err = meter.Int64Counter(
			"recovery_cache_hits_total",
			metric.WithDescription("Total number of record cache hits"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		recoveryCacheMiss, err = meter.Int64Counter(
			"recovery_cache_misses_total",
			metric.WithDescription("Total number of record cache misses"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// recordAttempt records one retry round with its outcome.
func recordAttempt(ctx context.Context, outcome Outcome) {
	if err := initMetrics(); err != nil {
		return
	}
	recoveryAttempts.Add(ctx, 1,
		metric.WithAttributes(attribute.String("outcome", string(outcome))),
	)
}

// recordFallback records a degraded fallback record being built.
func recordFallback(ctx context.Context) {
	if err := initMetrics(); err != nil {
		return
	}
	recoveryFallbacks.Add(ctx, 1)
}

// recordExtraction records which strategy recovered a record.
func recordExtraction(ctx context.Context, strategy string) {
	if err := initMetrics(); err != nil {
		return
	}
	extractionSuccess.Add(ctx, 1,
		metric.WithAttributes(attribute.String("strategy", strategy)),
	)
}

// recordRecoveryDuration records the latency of a full recover call.
func recordRecoveryDuration(ctx context.Context, duration time.Duration, degraded bool) {
	if err := initMetrics(); err != nil {
		return
	}
	recoveryDuration.Record(ctx, duration.Seconds(),
		metric.WithAttributes(attribute.Bool("degraded", degraded)),
	)
}

// recordCacheLookup records a record cache hit or miss.
func recordCacheLookup(ctx context.Context, hit bool) {
	if err := initMetrics(); err != nil {
		return
	}
	if hit {
		recoveryCacheHits.Add(ctx, 1)
	} else {
		recoveryCacheMiss.Add(ctx, 1)
	}
}
