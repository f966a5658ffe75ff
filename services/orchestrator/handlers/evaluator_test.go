// Copyright (C) 2026 Equisight Labs
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/equisight-labs/equisight/services/llm"
	"github.com/equisight-labs/equisight/services/orchestrator/datatypes"
)

// judgeLLM returns a canned judge response and records the prompt.
type judgeLLM struct {
	response   string
	err        error
	lastPrompt string
}

func (j *judgeLLM) Generate(ctx context.Context, prompt string, params llm.GenerationParams) (string, error) {
	j.lastPrompt = prompt
	return j.response, j.err
}

func (j *judgeLLM) GenerateStream(ctx context.Context, prompt string, params llm.GenerationParams, cb llm.StreamCallback) error {
	panic("not used")
}

// TestEvaluate_ParsesScores verifies a clean JSON response.
func TestEvaluate_ParsesScores(t *testing.T) {
	t.Parallel()

	judge := &judgeLLM{response: `{"context_relevance": 0.9, "groundedness": 0.8, "answer_relevance": 0.95}`}
	evaluator := NewEvaluator(judge, 10, 10)

	passages := []datatypes.RetrievedPassage{{Name: "문서", Content: "내용"}}
	scores, err := evaluator.Evaluate(context.Background(), "질문?", passages, "답변")
	require.NoError(t, err)

	assert.InDelta(t, 0.9, scores.ContextRelevance, 0.001)
	assert.InDelta(t, 0.8, scores.Groundedness, 0.001)
	assert.InDelta(t, 0.95, scores.AnswerRelevance, 0.001)

	assert.Contains(t, judge.lastPrompt, "NAME: 문서")
	assert.Contains(t, judge.lastPrompt, "질문?")
	assert.Contains(t, judge.lastPrompt, "답변")
}

// TestEvaluate_ToleratesWrappedJSON verifies extraction from prose and
// code fences around the object.
func TestEvaluate_ToleratesWrappedJSON(t *testing.T) {
	t.Parallel()

	judge := &judgeLLM{response: "Here are the scores:\n```json\n{\"context_relevance\": 1.0, \"groundedness\": 0.5, \"answer_relevance\": 0.7}\n```"}
	evaluator := NewEvaluator(judge, 10, 10)

	scores, err := evaluator.Evaluate(context.Background(), "q", nil, "a")
	require.NoError(t, err)
	assert.InDelta(t, 0.5, scores.Groundedness, 0.001)
}

// TestEvaluate_ClampsOutOfRange verifies scores outside [0, 1] are clamped.
func TestEvaluate_ClampsOutOfRange(t *testing.T) {
	t.Parallel()

	judge := &judgeLLM{response: `{"context_relevance": 1.7, "groundedness": -0.2, "answer_relevance": 0.5}`}
	evaluator := NewEvaluator(judge, 10, 10)

	scores, err := evaluator.Evaluate(context.Background(), "q", nil, "a")
	require.NoError(t, err)
	assert.Equal(t, 1.0, scores.ContextRelevance)
	assert.Equal(t, 0.0, scores.Groundedness)
}

// TestEvaluate_UnparseableOutput verifies garbage judge output errors.
func TestEvaluate_UnparseableOutput(t *testing.T) {
	t.Parallel()

	judge := &judgeLLM{response: "I cannot score this."}
	evaluator := NewEvaluator(judge, 10, 10)

	_, err := evaluator.Evaluate(context.Background(), "q", nil, "a")
	require.Error(t, err)
}

// TestEvaluate_RateLimited verifies exhausted limiters shed evaluations.
func TestEvaluate_RateLimited(t *testing.T) {
	t.Parallel()

	judge := &judgeLLM{response: `{"context_relevance": 1, "groundedness": 1, "answer_relevance": 1}`}
	evaluator := NewEvaluator(judge, 0.001, 1)

	_, err := evaluator.Evaluate(context.Background(), "q", nil, "a")
	require.NoError(t, err)

	_, err = evaluator.Evaluate(context.Background(), "q", nil, "a")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limit")
}

// TestEvalScores_String verifies the [EVAL] payload format.
func TestEvalScores_String(t *testing.T) {
	t.Parallel()

	s := datatypes.EvalScores{ContextRelevance: 0.9, Groundedness: 0.85, AnswerRelevance: 0.95}
	assert.Equal(t, "Context Relevance: 0.90, Groundedness: 0.85, Answer Relevance: 0.95", s.String())
}
