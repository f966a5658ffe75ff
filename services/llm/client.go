// Copyright (C) 2026 Equisight Labs
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package llm provides a backend-agnostic client interface for text
// generation, with OpenAI, Anthropic, and Ollama implementations selected
// by environment configuration.
package llm

import "context"

// GenerationParams are optional sampling parameters. Nil fields fall back
// to backend defaults.
type GenerationParams struct {
	Temperature *float32 `json:"temperature"`
	TopP        *float32 `json:"top_p"`
	MaxTokens   *int     `json:"max_tokens"`
	Stop        []string `json:"stop"`
}

// StreamEventType discriminates events delivered to a StreamCallback.
type StreamEventType string

const (
	StreamEventToken StreamEventType = "token"
	StreamEventError StreamEventType = "error"
)

// StreamEvent is one event from a streaming generation. Token events carry
// Content; error events carry Error.
type StreamEvent struct {
	Type    StreamEventType
	Content string
	Error   string
}

// StreamCallback receives stream events in model order. Returning a non-nil
// error aborts the stream; backends must stop requesting further fragments
// and return promptly.
type StreamCallback func(event StreamEvent) error

// LLMClient defines the standard interface for any LLM backend.
//
// Generate produces one complete response for a prompt (used by the query
// condenser and the evaluation pass). GenerateStream produces an
// incremental fragment sequence with an explicit end: the method returns
// nil after the final fragment has been delivered to the callback, or an
// error if the stream failed before completing. Fragment order given to
// the callback is the model's emission order.
type LLMClient interface {
	Generate(ctx context.Context, prompt string, params GenerationParams) (string, error)
	GenerateStream(ctx context.Context, prompt string, params GenerationParams, callback StreamCallback) error
}
