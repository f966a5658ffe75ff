// Copyright (C) 2026 Equisight Labs
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package conversation turns a follow-up question plus session history
// into a standalone query suitable for retrieval.
package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tmc/langchaingo/prompts"
	"go.opentelemetry.io/otel"

	"github.com/equisight-labs/equisight/services/llm"
	"github.com/equisight-labs/equisight/services/orchestrator/datatypes"
)

var tracer = otel.Tracer("equisight.orchestrator.conversation")

const condenseTemplate = `Given the following conversation and a follow up question, rephrase the follow up question to be a standalone question, in its original language.

Chat History:
{{.history}}

Follow Up Input: {{.question}}
Standalone question:`

// condenseTemperature keeps the rewrite deterministic.
var condenseTemperature = float32(0.0)

// Condenser rewrites follow-up questions into standalone queries.
//
// # Description
//
// When a session has history, pronouns and ellipses in the new question
// ("what about their competitors?") make raw retrieval useless. The
// condenser asks the LLM for a self-contained rewrite before retrieval.
// First turns skip the LLM entirely: with no history there is nothing to
// resolve, and the extra round trip would only add latency.
//
// # Thread Safety
//
// Condenser is safe for concurrent use after construction.
type Condenser struct {
	client   llm.LLMClient
	template prompts.PromptTemplate
}

// NewCondenser creates a Condenser backed by the given LLM client.
func NewCondenser(client llm.LLMClient) *Condenser {
	return &Condenser{
		client: client,
		template: prompts.NewPromptTemplate(condenseTemplate,
			[]string{"history", "question"}),
	}
}

// Condense returns a standalone version of question.
//
// # Inputs
//
//   - ctx: Context for cancellation and timeout.
//   - question: The raw user question.
//   - history: Session turns, oldest first. May be empty.
//
// # Outputs
//
//   - string: The standalone query. Equals question verbatim when history
//     is empty.
//   - error: Non-nil if the rewrite fails. Condensation failures are fatal
//     to the request; retrieving with an unresolved follow-up would
//     silently produce wrong context.
func (c *Condenser) Condense(ctx context.Context, question string, history []datatypes.Turn) (string, error) {
	if len(history) == 0 {
		return question, nil
	}

	ctx, span := tracer.Start(ctx, "Condenser.Condense")
	defer span.End()

	prompt, err := c.template.Format(map[string]any{
		"history":  RenderHistory(history),
		"question": question,
	})
	if err != nil {
		return "", fmt.Errorf("failed to format condense prompt: %w", err)
	}

	condensed, err := c.client.Generate(ctx, prompt, llm.GenerationParams{
		Temperature: &condenseTemperature,
	})
	if err != nil {
		return "", fmt.Errorf("query condensation failed: %w", err)
	}

	condensed = strings.TrimSpace(condensed)
	if condensed == "" {
		return "", fmt.Errorf("query condensation returned empty output")
	}

	slog.Debug("Condensed follow-up question",
		"original_len", len(question), "condensed_len", len(condensed))
	return condensed, nil
}

// RenderHistory formats turns for inclusion in a prompt, one line per
// turn, oldest first.
func RenderHistory(history []datatypes.Turn) string {
	var b strings.Builder
	for i, turn := range history {
		if i > 0 {
			b.WriteByte('\n')
		}
		switch turn.Role {
		case datatypes.RoleAssistant:
			b.WriteString("Assistant: ")
		default:
			b.WriteString("Human: ")
		}
		b.WriteString(turn.Text)
	}
	return b.String()
}
