// Copyright (C) 2026 Equisight Labs
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/equisight-labs/equisight/services/orchestrator/history"
)

// GetSessionHistory returns the GET /v1/sessions/:sessionId/history handler.
//
// # Description
//
// Returns the session's turns oldest-first as JSON. Unknown sessions get
// an empty list, not a 404; the store cannot distinguish "never existed"
// from "expired".
func GetSessionHistory(store history.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID := c.Param("sessionId")

		turns, err := store.Load(c.Request.Context(), sessionID)
		if err != nil {
			slog.Error("Failed to load session history", "sessionId", sessionID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load session history"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"session_id": sessionID, "turns": turns})
	}
}

// DeleteSession returns the DELETE /v1/sessions/:sessionId handler.
func DeleteSession(store history.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID := c.Param("sessionId")

		if err := store.DeleteSession(c.Request.Context(), sessionID); err != nil {
			slog.Error("Failed to delete session", "sessionId", sessionID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fully delete session"})
			return
		}

		slog.Info("Successfully deleted all data for session", "sessionId", sessionID)
		c.JSON(http.StatusOK, gin.H{"status": "success", "deleted_session_id": sessionID})
	}
}
