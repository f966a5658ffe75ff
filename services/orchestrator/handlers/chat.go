// Copyright (C) 2026 Equisight Labs
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package handlers contains the HTTP handlers and streaming pipeline for
// the orchestrator service.
package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/equisight-labs/equisight/services/orchestrator/datatypes"
)

// AskQuestion returns the POST /chat handler.
//
// # Description
//
// Validates the request, resolves the session identifier, opens the SSE
// response, and hands off to the streaming pipeline. Requests without a
// session_id query parameter start a new session under a fresh UUID; the
// client learns the ID from the [SESSION_ID] ack and echoes it on
// follow-up turns.
//
// # Inputs (HTTP)
//
//   - Body: {"question": "..."} (required, at most 16KB)
//   - Query: session_id (optional)
//
// # Outputs (HTTP)
//
//   - 400 {"msg": ...}: Malformed JSON, missing or oversized question.
//   - 200 text/event-stream: The tagged event stream. Failures after the
//     stream opens surface as a closed connection with no [DONE].
//
// # Limitations
//
//   - Session IDs are not authenticated; any caller who knows an ID can
//     continue that session.
func AskQuestion(pipeline *Pipeline) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Step 1: Bind and validate before any expensive work.
		var req datatypes.ChatRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, datatypes.ChatErrorResponse{Msg: "invalid request body"})
			return
		}
		if err := req.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, datatypes.ChatErrorResponse{Msg: "Missing or invalid question"})
			return
		}

		// Step 2: Resolve the session.
		sessionID := c.Query("session_id")
		if sessionID == "" {
			sessionID = uuid.New().String()
			slog.Info("Starting new chat session", "sessionId", sessionID)
		}

		// Step 3: Open the SSE response.
		SetSSEHeaders(c.Writer)
		writer, err := NewStreamWriter(c.Writer)
		if err != nil {
			c.JSON(http.StatusInternalServerError, datatypes.ChatErrorResponse{Msg: "streaming unsupported"})
			return
		}

		// Step 4: Run the pipeline. Errors past this point cannot become
		// HTTP errors; they are logged inside Run.
		if err := pipeline.Run(c.Request.Context(), writer, sessionID, req.Question); err != nil {
			slog.Error("Chat stream ended with error", "sessionId", sessionID, "error", err)
		}
	}
}
