// Copyright (C) 2026 Equisight Labs
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/time/rate"

	"github.com/equisight-labs/equisight/services/llm"
	"github.com/equisight-labs/equisight/services/orchestrator/datatypes"
)

const evalPromptTemplate = `You are grading a retrieval-augmented answer. Score each dimension from 0.0 to 1.0.

- context_relevance: how relevant the retrieved passages are to the question.
- groundedness: how well the answer is supported by the passages.
- answer_relevance: how directly the answer addresses the question.

Respond with ONLY a JSON object: {"context_relevance": <n>, "groundedness": <n>, "answer_relevance": <n>}

Question:
%s

Passages:
%s

Answer:
%s`

// evalTemperature keeps the judge deterministic.
var evalTemperature = float32(0.0)

// Evaluator scores finished answers with a judge model.
//
// # Description
//
// The evaluator runs after [DONE] has been written, so its latency never
// delays the answer stream. A rate limiter bounds judge traffic: the
// evaluation is best-effort telemetry, and under load it is the first
// thing to shed.
//
// # Thread Safety
//
// Evaluator is safe for concurrent use.
type Evaluator struct {
	client  llm.LLMClient
	limiter *rate.Limiter
}

// NewEvaluator creates an Evaluator. evalsPerSecond bounds judge calls;
// burst allows short spikes.
func NewEvaluator(client llm.LLMClient, evalsPerSecond float64, burst int) *Evaluator {
	return &Evaluator{
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(evalsPerSecond), burst),
	}
}

// Evaluate scores one answered question.
//
// # Inputs
//
//   - ctx: Context for cancellation and timeout.
//   - question: The original user question.
//   - passages: The fused passages the answer was generated from.
//   - answerBody: The answer body with the SOURCES: tail removed.
//
// # Outputs
//
//   - datatypes.EvalScores: Scores clamped to [0, 1].
//   - error: Non-nil if rate limited, the judge call failed, or the
//     response was unparseable.
func (e *Evaluator) Evaluate(ctx context.Context, question string,
	passages []datatypes.RetrievedPassage, answerBody string) (datatypes.EvalScores, error) {

	if !e.limiter.Allow() {
		return datatypes.EvalScores{}, fmt.Errorf("evaluation rate limit exceeded")
	}

	var passageText strings.Builder
	for _, p := range passages {
		fmt.Fprintf(&passageText, "NAME: %s\nPASSAGE: %s\n", p.Name, p.Content)
	}

	prompt := fmt.Sprintf(evalPromptTemplate, question, passageText.String(), answerBody)
	raw, err := e.client.Generate(ctx, prompt, llm.GenerationParams{
		Temperature: &evalTemperature,
	})
	if err != nil {
		return datatypes.EvalScores{}, fmt.Errorf("judge call failed: %w", err)
	}

	scores, err := parseEvalScores(raw)
	if err != nil {
		return datatypes.EvalScores{}, err
	}
	return scores, nil
}

// parseEvalScores extracts the score JSON from judge output. Judges
// sometimes wrap the object in prose or code fences, so parsing starts at
// the first '{' and ends at the last '}'.
func parseEvalScores(raw string) (datatypes.EvalScores, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start == -1 || end <= start {
		return datatypes.EvalScores{}, fmt.Errorf("no JSON object in judge output")
	}

	var scores datatypes.EvalScores
	if err := json.Unmarshal([]byte(raw[start:end+1]), &scores); err != nil {
		return datatypes.EvalScores{}, fmt.Errorf("failed to parse judge output: %w", err)
	}

	scores.ContextRelevance = clamp01(scores.ContextRelevance)
	scores.Groundedness = clamp01(scores.Groundedness)
	scores.AnswerRelevance = clamp01(scores.AnswerRelevance)
	return scores, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
