// Copyright (C) 2026 Equisight Labs
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package routes wires the orchestrator's HTTP surface.
package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/equisight-labs/equisight/services/orchestrator/handlers"
	"github.com/equisight-labs/equisight/services/orchestrator/history"
)

// SetupRoutes registers every endpoint on the router.
//
//   - POST /chat is the streaming endpoint; session_id rides in the query
//     string so the body stays a bare question.
//   - /v1/sessions hosts the session administration routes.
//   - /health and /metrics serve container probes and Prometheus scrapes.
func SetupRoutes(router *gin.Engine, pipeline *handlers.Pipeline, store history.Store) {
	router.GET("/health", handlers.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.POST("/chat", handlers.AskQuestion(pipeline))

	v1 := router.Group("/v1")
	{
		sessions := v1.Group("/sessions")
		{
			sessions.GET("/:sessionId/history", handlers.GetSessionHistory(store))
			sessions.DELETE("/:sessionId", handlers.DeleteSession(store))
		}
	}
}
