// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package recovery

import (
	"context"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/reasonkit/llm"
	"github.com/AleutianAI/reasonkit/pkg/logging"
)

// ProviderRecord pairs a recovered record with the backend that produced it.
type ProviderRecord struct {
	Provider string
	Record   Record
}

// ConsensusResult summarizes a cross-provider validation round.
type ConsensusResult struct {
	// Records holds one entry per provider, in configuration order.
	Records []ProviderRecord

	// Agreement is the mean pairwise solution similarity across
	// non-degraded records, 0.0-1.0.
	Agreement float64

	// Consensus is true when Agreement meets the configured threshold.
	Consensus bool

	// Solution is the answer from the highest-confidence non-degraded
	// record.
	Solution string

	// Confidence is the mean confidence across non-degraded records.
	Confidence float64
}

// ConsensusValidator cross-checks the same prompt against multiple
// independent generation backends and measures how well their answers
// agree.
//
// Thread Safety: ConsensusValidator is safe for concurrent use.
type ConsensusValidator struct {
	pipelines []*Pipeline
	names     []string
	threshold float64
	log       *logging.Logger
}

// NewConsensusValidator creates a validator over independent clients.
//
// Inputs:
//
//	clients - At least one generation backend.
//	budget - Retry budget applied to each backend independently.
//	threshold - Minimum agreement (0-1) for consensus.
//	log - Logger; must not be nil.
func NewConsensusValidator(clients []llm.Client, budget Budget, threshold float64, log *logging.Logger) (*ConsensusValidator, error) {
	if len(clients) == 0 {
		return nil, ErrNoClients
	}
	v := &ConsensusValidator{
		threshold: threshold,
		log:       log,
	}
	for _, c := range clients {
		v.pipelines = append(v.pipelines, NewPipeline(c, budget, log))
		v.names = append(v.names, c.Name())
	}
	return v, nil
}

// Validate recovers one record per backend in parallel and scores their
// agreement. Degraded records participate in the result list but are
// excluded from the agreement and confidence figures.
func (v *ConsensusValidator) Validate(ctx context.Context, build PromptBuilder, system string) (*ConsensusResult, error) {
	ctx, span := tracer.Start(ctx, "ConsensusValidator.Validate")
	defer span.End()

	records := make([]ProviderRecord, len(v.pipelines))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for i, p := range v.pipelines {
		i, p := i, p
		g.Go(func() error {
			rec := p.Recover(gctx, build, system)
			mu.Lock()
			records[i] = ProviderRecord{Provider: v.names[i], Record: rec}
			mu.Unlock()
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := &ConsensusResult{Records: records}

	var clean []Record
	for _, pr := range records {
		if !pr.Record.Degraded() {
			clean = append(clean, pr.Record)
		}
	}
	if len(clean) == 0 {
		v.log.Warn("consensus validation produced only degraded records")
		return result, nil
	}

	var confSum float64
	bestConf := -1.0
	for _, rec := range clean {
		conf, _ := rec.GetFloat("confidence")
		confSum += conf
		if conf > bestConf {
			bestConf = conf
			result.Solution, _ = rec.GetString("solution")
		}
	}
	result.Confidence = confSum / float64(len(clean))
	result.Agreement = meanPairwiseAgreement(clean)
	result.Consensus = result.Agreement >= v.threshold

	v.log.Info("consensus validation complete",
		"providers", len(records),
		"clean", len(clean),
		"agreement", result.Agreement,
		"consensus", result.Consensus,
	)
	return result, nil
}

// meanPairwiseAgreement averages solution similarity over all record pairs.
// A single record trivially agrees with itself.
func meanPairwiseAgreement(recs []Record) float64 {
	if len(recs) < 2 {
		return 1.0
	}
	var sum float64
	var pairs int
	for i := 0; i < len(recs); i++ {
		for j := i + 1; j < len(recs); j++ {
			si, _ := recs[i].GetString("solution")
			sj, _ := recs[j].GetString("solution")
			sum += solutionSimilarity(si, sj)
			pairs++
		}
	}
	return sum / float64(pairs)
}

// solutionSimilarity is the Jaccard overlap of lowercased word sets.
func solutionSimilarity(a, b string) float64 {
	wa := wordSet(a)
	wb := wordSet(b)
	if len(wa) == 0 && len(wb) == 0 {
		return 1.0
	}
	if len(wa) == 0 || len(wb) == 0 {
		return 0.0
	}
	inter := 0
	for w := range wa {
		if _, ok := wb[w]; ok {
			inter++
		}
	}
	union := len(wa) + len(wb) - inter
	return float64(inter) / float64(union)
}

func wordSet(s string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, w := range strings.Fields(strings.ToLower(s)) {
		out[strings.Trim(w, ".,;:!?\"'()")] = struct{}{}
	}
	delete(out, "")
	return out
}
