// Copyright (C) 2026 Equisight Labs
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package prompt assembles the generation prompt from retrieved passages,
// session history, and optional market snapshot data.
package prompt

import (
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/prompts"

	"github.com/equisight-labs/equisight/services/orchestrator/conversation"
	"github.com/equisight-labs/equisight/services/orchestrator/datatypes"
)

const ragTemplate = `You are a stock analyst analyzing Samsung Electronics, SK Hynix, NVIDIA, and AMD.
Use the following passages and chat history to answer the user's question about the companies.
Each passage has a NAME which is the TITLE of the document. After your answer, leave a blank line and then give the source name of the passages you answered from. Put them in a comma separated list, prefixed with SOURCES:.
You must answer in korean.

Example:

Question: SK 하이닉스의 요즘 주가가 우상향하는 이유가 뭐야?
Response:
하이닉스의 주가가 상승하는 이유는 올해 영업이익이 역대 최대를 기록할 것이라는 전망 때문입니다.

SOURCES: SK하이닉스 역대 최대 실적 예상


If you don't know the answer, just say that you don't know, don't try to make up an answer.
{{.quotes}}
----
{{.context}}
---
{{.history}}
Question: {{.question}}
Response:`

// Assembler renders the final generation prompt.
//
// # Description
//
// The prompt carries a fixed analyst persona, a few-shot citation example,
// the fused passages as NAME/PASSAGE pairs in retrieval order, the session
// history, and optionally a live quote section from the market snapshot
// provider. The question placed in the prompt is the ORIGINAL user
// question, not the condensed one; condensation only serves retrieval.
//
// # Thread Safety
//
// Assembler is safe for concurrent use after construction.
type Assembler struct {
	template prompts.PromptTemplate
}

// NewAssembler creates an Assembler.
func NewAssembler() *Assembler {
	return &Assembler{
		template: prompts.NewPromptTemplate(ragTemplate,
			[]string{"quotes", "context", "history", "question"}),
	}
}

// Assemble renders the prompt.
//
// # Inputs
//
//   - question: The original user question.
//   - passages: Fused passages in retrieval order. May be empty; the
//     model is instructed to admit ignorance rather than invent answers.
//   - history: Session turns, oldest first. May be empty.
//   - quoteSection: Pre-rendered live quote block, or "" to omit.
func (a *Assembler) Assemble(question string, passages []datatypes.RetrievedPassage,
	history []datatypes.Turn, quoteSection string) (string, error) {

	var context strings.Builder
	for _, p := range passages {
		fmt.Fprintf(&context, "NAME: %s\nPASSAGE: %s\n", p.Name, p.Content)
	}

	historySection := ""
	if len(history) > 0 {
		historySection = "Chat history:\n" + conversation.RenderHistory(history) + "\n\n"
	}

	if quoteSection != "" {
		quoteSection = "\n" + strings.TrimSpace(quoteSection) + "\n"
	}

	out, err := a.template.Format(map[string]any{
		"quotes":   quoteSection,
		"context":  context.String(),
		"history":  historySection,
		"question": question,
	})
	if err != nil {
		return "", fmt.Errorf("failed to format generation prompt: %w", err)
	}
	return out, nil
}
