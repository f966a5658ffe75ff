// Copyright (C) 2026 Equisight Labs
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package datatypes provides data structures for the orchestrator service.
//
// This file contains the request types for the streaming chat endpoint.
// For retrieved-passage types see passage.go, for conversation turns see
// session.go.
package datatypes

import (
	"github.com/go-playground/validator/v10"
)

// MaxQuestionBytes is the maximum size of a question payload. Questions
// larger than this are rejected before any pipeline work starts.
const MaxQuestionBytes = 16 * 1024 // 16KB

// chatValidate is the validator instance for chat datatypes.
var chatValidate *validator.Validate

func init() {
	chatValidate = validator.New()
	_ = chatValidate.RegisterValidation("maxbytes", validateQuestionBytes)
}

// validateQuestionBytes checks byte length (not rune count) so oversized
// multi-byte payloads cannot slip past a rune-based limit.
func validateQuestionBytes(fl validator.FieldLevel) bool {
	return len(fl.Field().String()) <= MaxQuestionBytes
}

// ChatRequest represents the body of POST /chat.
//
// # Description
//
// ChatRequest carries the user's question. The session identifier travels
// in the session_id query parameter, not the body, matching the wire
// contract consumed by the web frontend and the CLI client.
//
// # Fields
//
//   - Question: Required. The user's natural-language question.
//
// # Validation
//
//   - Question: required, at most 16KB (byte length, maxbytes validator).
type ChatRequest struct {
	Question string `json:"question" validate:"required,maxbytes"`
}

// Validate validates the ChatRequest fields after JSON binding.
func (r *ChatRequest) Validate() error {
	return chatValidate.Struct(r)
}

// ChatErrorResponse is the JSON error body returned before a stream opens.
// Once streaming has begun, failures surface as a closed connection with
// no [DONE] marker instead.
type ChatErrorResponse struct {
	Msg string `json:"msg"`
}

// Message is a single role/content pair sent to an LLM backend.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
